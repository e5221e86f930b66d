package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/payment"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/Dosada05/tournament-payouts/storage"
	"github.com/shopspring/decimal"
)

// DepositService управляет эскроу-депозитом призового фонда: создание
// платёжного намерения и обработка подтверждения от шлюза.
type DepositService struct {
	txb            repositories.TxBeginner
	depositRepo    repositories.DepositRepository
	tournamentRepo repositories.TournamentRepository
	userRepo       repositories.UserRepository
	gateway        payment.PaymentGateway
	uploader       storage.FileUploader
	hub            *events.Hub
	logger         *slog.Logger
}

func NewDepositService(
	txb repositories.TxBeginner,
	depositRepo repositories.DepositRepository,
	tournamentRepo repositories.TournamentRepository,
	userRepo repositories.UserRepository,
	gateway payment.PaymentGateway,
	uploader storage.FileUploader,
	hub *events.Hub,
	logger *slog.Logger,
) *DepositService {
	return &DepositService{
		txb:            txb,
		depositRepo:    depositRepo,
		tournamentRepo: tournamentRepo,
		userRepo:       userRepo,
		gateway:        gateway,
		uploader:       uploader,
		hub:            hub,
		logger:         logger,
	}
}

// CreateDeposit создаёт депозит ровно на сумму призового фонда и переводит
// черновик в pending_deposit. При отказе шлюза ничего не сохраняется.
func (s *DepositService) CreateDeposit(ctx context.Context, organizerID, tournamentID int, amount decimal.Decimal) (*models.Deposit, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if tournament.OrganizerID != organizerID {
		return nil, ErrForbiddenOperation
	}
	if tournament.DepositConfirmed {
		return nil, ErrDepositAlreadyConfirmed
	}
	if tournament.Status != models.StatusDraft && tournament.Status != models.StatusPendingDeposit {
		return nil, fmt.Errorf("%w: deposit can only be created while draft or pending_deposit", ErrTournamentInvalidStatusTransition)
	}
	// Частичные и избыточные депозиты не принимаются.
	if !amount.Equal(tournament.PrizePoolAmount) {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrDepositAmountMismatch,
			tournament.PrizePoolAmount.StringFixed(2), amount.StringFixed(2))
	}

	if _, err := s.depositRepo.FindActiveByTournament(ctx, tournamentID); err == nil {
		return nil, ErrDepositAlreadyExists
	} else if !errors.Is(err, repositories.ErrDepositNotFound) {
		return nil, err
	}

	organizer, err := s.userRepo.GetByID(ctx, organizerID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	intent, err := s.gateway.CreateChargeIntent(ctx, amount, organizer.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExternalGateway, err)
	}

	// QR-код намерения сохраняем в объектное хранилище до записи депозита:
	// провал загрузки не фатален, депозит остаётся рабочим через код.
	var qrKey *string
	if len(intent.RawImage) > 0 && s.uploader != nil {
		key := fmt.Sprintf("deposits/%d/%s.png", tournamentID, intent.Reference)
		if _, upErr := s.uploader.Upload(ctx, key, "image/png", bytes.NewReader(intent.RawImage)); upErr != nil {
			s.logger.WarnContext(ctx, "failed to upload deposit QR image",
				slog.Int("tournament_id", tournamentID), slog.Any("error", upErr))
		} else {
			qrKey = &key
		}
	}

	deposit := &models.Deposit{
		TournamentID:     tournamentID,
		OrganizerID:      organizerID,
		Amount:           amount,
		GatewayReference: intent.Reference,
		DisplayableCode:  intent.DisplayableCode,
		QRCodeKey:        qrKey,
		Status:           models.DepositStatusPending,
	}

	tx, err := s.txb.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin deposit transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.depositRepo.Create(ctx, tx, deposit); err != nil {
		return nil, mapRepositoryError(err)
	}
	if err := s.tournamentRepo.SetDepositReference(ctx, tx, tournamentID, deposit.ID); err != nil {
		return nil, mapRepositoryError(err)
	}
	if tournament.Status == models.StatusDraft {
		if err := s.tournamentRepo.UpdateStatusIf(ctx, tx, tournamentID, models.StatusDraft, models.StatusPendingDeposit); err != nil {
			return nil, mapRepositoryError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deposit transaction: %w", err)
	}

	if qrKey != nil && s.uploader != nil {
		url := s.uploader.GetPublicURL(*qrKey)
		if url != "" {
			deposit.QRCodeURL = &url
		}
	}

	s.hub.BroadcastToRoom(tournamentRoomID(tournamentID), events.Message{
		Type:    events.TypeTournamentUpdated,
		Payload: map[string]interface{}{"tournament_id": tournamentID, "status": models.StatusPendingDeposit},
	})

	return deposit, nil
}

// HandleGatewayEvent обрабатывает входящее событие шлюза
// {gateway_reference, status}. Повторное подтверждение — no-op.
// Только этот путь выставляет deposit_confirmed у турнира.
func (s *DepositService) HandleGatewayEvent(ctx context.Context, gatewayReference, status string) error {
	deposit, err := s.depositRepo.GetByGatewayReference(ctx, gatewayReference)
	if err != nil {
		return mapRepositoryError(err)
	}

	switch status {
	case "confirmed":
		return s.confirmDeposit(ctx, deposit)
	case "failed":
		if deposit.Status != models.DepositStatusPending {
			return nil
		}
		if err := s.depositRepo.UpdateStatus(ctx, nil, deposit.ID, models.DepositStatusFailed, nil); err != nil {
			return mapRepositoryError(err)
		}
		s.logger.WarnContext(ctx, "deposit failed at gateway",
			slog.Int("deposit_id", deposit.ID), slog.String("gateway_reference", gatewayReference))
		return nil
	}
	return fmt.Errorf("%w: %q", ErrGatewayEventUnknownStatus, status)
}

func (s *DepositService) confirmDeposit(ctx context.Context, deposit *models.Deposit) error {
	// Идемпотентность: уже подтверждённый депозит не трогаем,
	// турнир не пере-переводится.
	if deposit.Status == models.DepositStatusConfirmed {
		return nil
	}
	if deposit.Status != models.DepositStatusPending {
		return fmt.Errorf("%w: deposit is %s", ErrValidationFailed, deposit.Status)
	}

	now := time.Now().UTC()

	tx, err := s.txb.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin confirmation transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.depositRepo.UpdateStatus(ctx, tx, deposit.ID, models.DepositStatusConfirmed, &now); err != nil {
		return mapRepositoryError(err)
	}
	if err := s.tournamentRepo.ConfirmDeposit(ctx, tx, deposit.TournamentID); err != nil {
		return mapRepositoryError(err)
	}
	if err := s.tournamentRepo.UpdateStatusIf(ctx, tx, deposit.TournamentID, models.StatusPendingDeposit, models.StatusOpen); err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) {
			return s.resolveConfirmConflict(ctx, tx, deposit)
		}
		return mapRepositoryError(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "deposit confirmed, tournament open",
		slog.Int("deposit_id", deposit.ID), slog.Int("tournament_id", deposit.TournamentID))

	room := tournamentRoomID(deposit.TournamentID)
	s.hub.BroadcastToRoom(room, events.Message{
		Type:    events.TypeDepositConfirmed,
		Payload: map[string]interface{}{"tournament_id": deposit.TournamentID, "deposit_id": deposit.ID},
	})
	s.hub.BroadcastToRoom(room, events.Message{
		Type:    events.TypeTournamentUpdated,
		Payload: map[string]interface{}{"tournament_id": deposit.TournamentID, "status": models.StatusOpen},
	})
	return nil
}

// resolveConfirmConflict разбирает провал перевода pending_deposit → open.
// Турнир уже открыт — это повторная доставка того же подтверждения, запись
// откатывается. Любой другой статус (турнир отменили, пока ждали оплату)
// означает, что деньги реально пришли: подтверждение депозита фиксируется,
// а возврат организатору остаётся за оператором.
func (s *DepositService) resolveConfirmConflict(ctx context.Context, tx repositories.Tx, deposit *models.Deposit) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, deposit.TournamentID)
	if err != nil {
		return mapRepositoryError(err)
	}
	if tournament.Status == models.StatusOpen {
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit confirmation transaction: %w", err)
	}
	s.logger.WarnContext(ctx, "deposit confirmed for tournament no longer awaiting it, manual refund required",
		slog.Int("deposit_id", deposit.ID),
		slog.Int("tournament_id", deposit.TournamentID),
		slog.String("tournament_status", string(tournament.Status)))
	return nil
}
