package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/google/uuid"
)

// UserService — профиль, ключ выплат и административное пополнение баланса.
type UserService struct {
	userRepo repositories.UserRepository
	ledger   repositories.CreditLedger
	logger   *slog.Logger
}

func NewUserService(userRepo repositories.UserRepository, ledger repositories.CreditLedger, logger *slog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		ledger:   ledger,
		logger:   logger,
	}
}

func (s *UserService) GetByID(ctx context.Context, id int) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	user.PasswordHash = ""
	return user, nil
}

var payoutKeyTypes = map[string]bool{
	"phone": true,
	"iban":  true,
	"card":  true,
}

// UpdatePayoutKey регистрирует или заменяет ключ выплат игрока.
// Без ключа игрок не может участвовать в турнирах и получать призы.
func (s *UserService) UpdatePayoutKey(ctx context.Context, userID int, key, keyType string) (*models.User, error) {
	key = strings.TrimSpace(key)
	keyType = strings.ToLower(strings.TrimSpace(keyType))
	if key == "" {
		return nil, fmt.Errorf("%w: payout key must not be empty", ErrValidationFailed)
	}
	if !payoutKeyTypes[keyType] {
		return nil, fmt.Errorf("%w: unknown payout key type %q", ErrValidationFailed, keyType)
	}

	if err := s.userRepo.UpdatePayoutKey(ctx, userID, key, keyType); err != nil {
		return nil, mapRepositoryError(err)
	}
	return s.GetByID(ctx, userID)
}

// CreditBalance — административное зачисление кредитов через леджер.
// Прямых записей в баланс нет даже у админа.
func (s *UserService) CreditBalance(ctx context.Context, adminID, userID, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", ErrValidationFailed)
	}

	reference := fmt.Sprintf("admin:%d:%s", adminID, uuid.NewString())
	if err := s.ledger.Add(ctx, userID, amount, models.LedgerEventAdminCredit, reference); err != nil {
		return nil, mapRepositoryError(err)
	}
	s.logger.InfoContext(ctx, "admin credited user balance",
		slog.Int("admin_id", adminID),
		slog.Int("user_id", userID),
		slog.Int("amount", amount),
		slog.String("reference", reference))

	return s.GetByID(ctx, userID)
}
