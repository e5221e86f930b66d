package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/google/uuid"
)

// ParticipantService инкапсулирует протокол регистрации: проверки допуска,
// атомарный контроль вместимости и списание взноса с компенсацией.
type ParticipantService struct {
	txb             repositories.TxBeginner
	participantRepo repositories.ParticipantRepository
	tournamentRepo  repositories.TournamentRepository
	userRepo        repositories.UserRepository
	ledger          repositories.CreditLedger
	notifier        *EmailService
	hub             *events.Hub
	logger          *slog.Logger
}

func NewParticipantService(
	txb repositories.TxBeginner,
	participantRepo repositories.ParticipantRepository,
	tournamentRepo repositories.TournamentRepository,
	userRepo repositories.UserRepository,
	ledger repositories.CreditLedger,
	notifier *EmailService,
	hub *events.Hub,
	logger *slog.Logger,
) *ParticipantService {
	return &ParticipantService{
		txb:             txb,
		participantRepo: participantRepo,
		tournamentRepo:  tournamentRepo,
		userRepo:        userRepo,
		ledger:          ledger,
		notifier:        notifier,
		hub:             hub,
		logger:          logger,
	}
}

// Join регистрирует игрока в турнире. Порядок проверок фиксирован, каждая
// даёт отдельную ошибку. Списание взноса и вставка участника — сага:
// при неудачной вставке после успешного списания выполняется компенсирующий
// возврат. Окно между списанием и компенсацией при падении процесса
// закрывает ReconciliationService, а не эта функция.
func (s *ParticipantService) Join(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if tournament.Status != models.StatusOpen {
		return nil, ErrRegistrationNotOpen
	}

	// Проверка на повторную регистрацию
	_, err = s.participantRepo.FindByUserAndTournament(ctx, userID, tournamentID)
	if err == nil {
		return nil, ErrRegistrationConflict
	}
	if !errors.Is(err, repositories.ErrParticipantNotFound) {
		return nil, fmt.Errorf("failed to check existing registration: %w", err)
	}

	if !time.Now().Before(tournament.RegistrationDeadline) {
		return nil, ErrRegistrationDeadlinePassed
	}
	if !user.HasPayoutKey() {
		return nil, ErrPayoutKeyRequired
	}

	correlationID := uuid.NewString()
	reference := fmt.Sprintf("join:%d:%s", tournamentID, correlationID)

	charged := false
	if tournament.EntryFeeCredits > 0 {
		ok, spendErr := s.ledger.Spend(ctx, userID, tournament.EntryFeeCredits, models.LedgerEventEntryFee, reference)
		if spendErr != nil {
			return nil, mapRepositoryError(spendErr)
		}
		if !ok {
			return nil, ErrInsufficientFunds
		}
		charged = true
	}

	participant, err := s.registerParticipant(ctx, userID, tournamentID)
	if err != nil {
		if charged {
			if refundErr := s.ledger.Add(ctx, userID, tournament.EntryFeeCredits, models.LedgerEventRefund, reference); refundErr != nil {
				// Списание без регистрации и без возврата: найдёт сверка.
				s.logger.ErrorContext(ctx, "entry fee refund failed after registration failure",
					slog.Int("user_id", userID),
					slog.Int("tournament_id", tournamentID),
					slog.String("correlation_id", correlationID),
					slog.Any("error", refundErr))
			} else {
				s.logger.InfoContext(ctx, "entry fee refunded after registration failure",
					slog.Int("user_id", userID),
					slog.Int("tournament_id", tournamentID),
					slog.String("correlation_id", correlationID))
			}
		}
		return nil, err
	}

	// Уведомление организатора — строго best-effort.
	if s.notifier != nil {
		go func() {
			if notifyErr := s.notifyOrganizerOfJoin(tournament, user); notifyErr != nil {
				s.logger.Warn("failed to notify organizer about new participant",
					slog.Int("tournament_id", tournamentID), slog.Any("error", notifyErr))
			}
		}()
	}

	s.hub.BroadcastToRoom(tournamentRoomID(tournamentID), events.Message{
		Type:    events.TypeParticipantJoined,
		Payload: participant,
	})

	return participant, nil
}

// registerParticipant атомарно занимает слот и создаёт запись участника.
// Инкремент счётчика — условный UPDATE: при конкурентных join-ах ровно
// столько вызовов преуспеет, сколько осталось мест.
func (s *ParticipantService) registerParticipant(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	tx, err := s.txb.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.tournamentRepo.IncrementParticipants(ctx, tx, tournamentID); err != nil {
		return nil, mapRepositoryError(err)
	}

	participant := &models.Participant{
		UserID:       userID,
		TournamentID: tournamentID,
	}
	if err := s.participantRepo.Create(ctx, tx, participant); err != nil {
		return nil, mapRepositoryError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration transaction: %w", err)
	}
	return participant, nil
}

func (s *ParticipantService) notifyOrganizerOfJoin(tournament *models.Tournament, user *models.User) error {
	organizer, err := s.userRepo.GetByID(context.Background(), tournament.OrganizerID)
	if err != nil {
		return mapRepositoryError(err)
	}
	playerName := user.FirstName
	if user.Nickname != nil && *user.Nickname != "" {
		playerName = *user.Nickname
	}
	return s.notifier.SendParticipantJoined(organizer.Email, tournament.Name, playerName)
}

// Leave снимает регистрацию, пока турнир открыт. Взнос не возвращается:
// в леджер пишется пометка о невозврате, иначе после удаления строки
// участника сверка приняла бы списание за осиротевшее и вернула бы его.
func (s *ParticipantService) Leave(ctx context.Context, userID, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return mapRepositoryError(err)
	}
	if tournament.Status != models.StatusOpen {
		return ErrRegistrationNotOpen
	}

	participant, err := s.participantRepo.FindByUserAndTournament(ctx, userID, tournamentID)
	if err != nil {
		return mapRepositoryError(err)
	}

	tx, err := s.txb.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin leave transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.participantRepo.Delete(ctx, tx, participant.ID); err != nil {
		return mapRepositoryError(err)
	}
	if err := s.tournamentRepo.DecrementParticipants(ctx, tx, tournamentID); err != nil {
		return mapRepositoryError(err)
	}
	if tournament.EntryFeeCredits > 0 {
		if err := s.ledger.ForfeitEntryFee(ctx, tx, userID, tournamentID); err != nil {
			return mapRepositoryError(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit leave transaction: %w", err)
	}

	s.hub.BroadcastToRoom(tournamentRoomID(tournamentID), events.Message{
		Type:    events.TypeParticipantLeft,
		Payload: map[string]interface{}{"tournament_id": tournamentID, "user_id": userID},
	})
	return nil
}

// ListByTournament возвращает всех участников турнира.
func (s *ParticipantService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapRepositoryError(err)
	}
	return s.participantRepo.ListByTournament(ctx, tournamentID)
}
