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
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// TournamentService отвечает за создание турниров и переходы статусов,
// инициируемые организатором или планировщиком.
type TournamentService struct {
	tournamentRepo repositories.TournamentRepository
	depositRepo    repositories.DepositRepository
	hub            *events.Hub
	logger         *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	depositRepo repositories.DepositRepository,
	hub *events.Hub,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		tournamentRepo: tournamentRepo,
		depositRepo:    depositRepo,
		hub:            hub,
		logger:         logger,
	}
}

type CreateTournamentInput struct {
	Name                 string                        `json:"name"`
	Description          *string                       `json:"description"`
	MaxParticipants      int                           `json:"max_participants"`
	EntryFeeCredits      int                           `json:"entry_fee_credits"`
	PrizePoolAmount      decimal.Decimal               `json:"prize_pool_amount"`
	PrizeDistribution    models.PrizeDistributionTable `json:"prize_distribution"`
	RegistrationDeadline time.Time                     `json:"registration_deadline"`
}

var hundred = decimal.NewFromInt(100)

// validatePrizeTable проверяет таблицу распределения при создании турнира.
// Сумма процентов обязана равняться ровно 100 — это гарантия, на которую
// опирается распределение призов.
func validatePrizeTable(table models.PrizeDistributionTable) error {
	if len(table) == 0 {
		return ErrPrizeTableEmpty
	}
	seen := make(map[int]bool, len(table))
	sum := decimal.Zero
	for _, tier := range table {
		if tier.Placement <= 0 || seen[tier.Placement] {
			return ErrPrizeTableInvalidPlacement
		}
		seen[tier.Placement] = true
		if !tier.Percentage.IsPositive() {
			return ErrPrizeTableInvalidPercentage
		}
		sum = sum.Add(tier.Percentage)
	}
	if !sum.Equal(hundred) {
		return fmt.Errorf("%w: got %s", ErrPrizeTableSumNotHundred, sum.String())
	}
	return nil
}

func (s *TournamentService) Create(ctx context.Context, organizerID int, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, ErrTournamentNameRequired
	}
	if input.MaxParticipants <= 0 {
		return nil, ErrTournamentInvalidCapacity
	}
	if input.EntryFeeCredits < 0 {
		return nil, ErrTournamentInvalidEntryFee
	}
	if !input.PrizePoolAmount.IsPositive() {
		return nil, ErrTournamentInvalidPrizePool
	}
	if !input.RegistrationDeadline.After(time.Now()) {
		return nil, ErrTournamentDeadlineInPast
	}
	if err := validatePrizeTable(input.PrizeDistribution); err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		Name:                 input.Name,
		Description:          input.Description,
		OrganizerID:          organizerID,
		Status:               models.StatusDraft,
		MaxParticipants:      input.MaxParticipants,
		EntryFeeCredits:      input.EntryFeeCredits,
		PrizePoolAmount:      input.PrizePoolAmount,
		PrizeDistribution:    input.PrizeDistribution,
		RegistrationDeadline: input.RegistrationDeadline,
	}

	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, mapRepositoryError(err)
	}
	return tournament, nil
}

func (s *TournamentService) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return tournament, nil
}

func (s *TournamentService) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

// UpdateStatus выполняет переход статуса по инициативе организатора.
// Переходы, принадлежащие депозитному сервису и распределению призов,
// отсюда недоступны.
func (s *TournamentService) UpdateStatus(ctx context.Context, callerID, tournamentID int, next models.TournamentStatus) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if tournament.OrganizerID != callerID {
		return nil, ErrForbiddenOperation
	}
	if err := validateStatusTransition(tournament.Status, next); err != nil {
		return nil, err
	}
	if !isOrganizerTriggeredTransition(tournament.Status, next) {
		return nil, fmt.Errorf("%w: %s -> %s is not organizer-triggered", ErrTournamentInvalidStatusTransition, tournament.Status, next)
	}

	if err := s.tournamentRepo.UpdateStatusIf(ctx, nil, tournamentID, tournament.Status, next); err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) {
			return nil, fmt.Errorf("%w: tournament status changed concurrently", ErrTournamentInvalidStatusTransition)
		}
		return nil, mapRepositoryError(err)
	}
	tournament.Status = next

	s.hub.BroadcastToRoom(tournamentRoomID(tournamentID), events.Message{
		Type:    events.TypeTournamentUpdated,
		Payload: tournament,
	})
	return tournament, nil
}

// Cancel переводит турнир в cancelled из любого нетерминального состояния.
func (s *TournamentService) Cancel(ctx context.Context, callerID, tournamentID int) (*models.Tournament, error) {
	return s.UpdateStatus(ctx, callerID, tournamentID, models.StatusCancelled)
}

// Delete удаляет турнир. Разрешено только для draft и pending_deposit
// без подтверждённых денег.
func (s *TournamentService) Delete(ctx context.Context, callerID, tournamentID int) error {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return mapRepositoryError(err)
	}
	if tournament.OrganizerID != callerID {
		return ErrForbiddenOperation
	}
	if !isDeletableStatus(tournament.Status) || tournament.DepositConfirmed {
		return ErrTournamentNotDeletable
	}

	if err := s.tournamentRepo.Delete(ctx, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentStateConflict) {
			return ErrTournamentNotDeletable
		}
		return mapRepositoryError(err)
	}
	return nil
}

// AutoAdvanceByDeadline переводит открытые турниры с истёкшим дедлайном
// регистрации в in_progress. Вызывается планировщиком из main.
func (s *TournamentService) AutoAdvanceByDeadline(ctx context.Context) error {
	tournaments, err := s.tournamentRepo.ListOpenPastDeadline(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to list tournaments past deadline: %w", err)
	}
	if len(tournaments) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, t := range tournaments {
		t := t
		g.Go(func() error {
			err := s.tournamentRepo.UpdateStatusIf(gctx, nil, t.ID, models.StatusOpen, models.StatusInProgress)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentStateConflict) {
					// Кто-то уже перевёл турнир — не ошибка планировщика.
					return nil
				}
				return fmt.Errorf("failed to auto-advance tournament %d: %w", t.ID, err)
			}
			s.logger.InfoContext(gctx, "tournament auto-advanced past registration deadline",
				slog.Int("tournament_id", t.ID))
			t.Status = models.StatusInProgress
			s.hub.BroadcastToRoom(tournamentRoomID(t.ID), events.Message{
				Type:    events.TypeTournamentUpdated,
				Payload: t,
			})
			return nil
		})
	}
	return g.Wait()
}
