package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/payment"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/shopspring/decimal"
)

// DistributionService считает суммы выплат по таблице распределения и гонит
// их через платёжный адаптер. Отказ одной выплаты не прерывает остальные
// и не портит состояние турнира.
type DistributionService struct {
	distributionRepo repositories.DistributionRepository
	participantRepo  repositories.ParticipantRepository
	tournamentRepo   repositories.TournamentRepository
	userRepo         repositories.UserRepository
	payouts          payment.PayoutAdapter
	notifier         *EmailService
	hub              *events.Hub
	logger           *slog.Logger
	transferTimeout  time.Duration
}

const defaultTransferTimeout = 30 * time.Second

func NewDistributionService(
	distributionRepo repositories.DistributionRepository,
	participantRepo repositories.ParticipantRepository,
	tournamentRepo repositories.TournamentRepository,
	userRepo repositories.UserRepository,
	payouts payment.PayoutAdapter,
	notifier *EmailService,
	hub *events.Hub,
	logger *slog.Logger,
) *DistributionService {
	return &DistributionService{
		distributionRepo: distributionRepo,
		participantRepo:  participantRepo,
		tournamentRepo:   tournamentRepo,
		userRepo:         userRepo,
		payouts:          payouts,
		notifier:         notifier,
		hub:              hub,
		logger:           logger,
		transferTimeout:  defaultTransferTimeout,
	}
}

// PlayerResult — итоговое место одного игрока, поданное организатором.
type PlayerResult struct {
	UserID    int `json:"user_id"`
	Placement int `json:"placement"`
}

// DistributeOutcome — структурированный результат распределения.
// Частичный провал — это данные, а не ошибка: AllSuccessful=false и
// незаполненный prizes_distributed_at сигналят о необходимости повторного
// прогона упавших выплат.
type DistributeOutcome struct {
	Distributions []*models.Distribution `json:"distributions"`
	AllSuccessful bool                   `json:"all_successful"`
}

// computePrizeAmounts считает суммы по местам: pool × pct / 100 с банковским
// округлением до минорной единицы валюты. Остаток округления получает
// наименьшее место пакета (обычно первое) — валюта не создаётся и не
// теряется.
func computePrizeAmounts(pool decimal.Decimal, table models.PrizeDistributionTable, placements []int) map[int]decimal.Decimal {
	amounts := make(map[int]decimal.Decimal, len(placements))
	exactTotal := decimal.Zero
	roundedTotal := decimal.Zero
	for _, placement := range placements {
		pct, _ := table.PercentageFor(placement)
		exact := pool.Mul(pct).Div(hundred)
		rounded := exact.RoundBank(2)
		amounts[placement] = rounded
		exactTotal = exactTotal.Add(exact)
		roundedTotal = roundedTotal.Add(rounded)
	}

	remainder := exactTotal.RoundBank(2).Sub(roundedTotal)
	if !remainder.IsZero() && len(placements) > 0 {
		first := placements[0]
		for _, p := range placements[1:] {
			if p < first {
				first = p
			}
		}
		amounts[first] = amounts[first].Add(remainder)
	}
	return amounts
}

type resolvedResult struct {
	result      PlayerResult
	participant *models.Participant
	user        *models.User
	amount      decimal.Decimal
}

// Distribute выплачивает призы по результатам. Все проверки выполняются до
// единого перевода; после старта выплаты обрабатываются строго
// последовательно с изоляцией отказов по игрокам.
func (s *DistributionService) Distribute(ctx context.Context, organizerID, tournamentID int, results []PlayerResult) (*DistributeOutcome, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if tournament.OrganizerID != organizerID {
		return nil, ErrForbiddenOperation
	}
	if tournament.PrizesDistributedAt != nil {
		return nil, ErrPrizesAlreadyDistributed
	}
	if tournament.Status != models.StatusAwaitingResult {
		return nil, ErrTournamentNotAwaitingResult
	}
	if !tournament.DepositConfirmed {
		return nil, ErrDepositNotConfirmed
	}

	// Следы прошлого прогона при ещё не завершённом турнире — обрыв между
	// выплатами и фиксацией статуса. Повторный запуск заплатил бы дважды.
	existing, err := s.distributionRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	if len(existing) > 0 {
		return nil, ErrDistributionAlreadyStarted
	}

	resolved, err := s.validateResults(ctx, tournament, results)
	if err != nil {
		return nil, err
	}

	// Выплаты идут в порядке мест: победитель первым.
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].result.Placement < resolved[j].result.Placement
	})

	outcome := &DistributeOutcome{
		Distributions: make([]*models.Distribution, 0, len(resolved)),
		AllSuccessful: true,
	}

	for _, r := range resolved {
		distribution, execErr := s.executePayout(ctx, tournament, r)
		if execErr != nil {
			return nil, execErr
		}
		if distribution.Status != models.DistributionStatusConfirmed {
			outcome.AllSuccessful = false
		}
		outcome.Distributions = append(outcome.Distributions, distribution)
	}

	now := time.Now().UTC()
	if err := s.tournamentRepo.StampResultsSubmitted(ctx, nil, tournamentID, now); err != nil {
		return nil, mapRepositoryError(err)
	}
	// Турнир завершается независимо от исходов отдельных выплат.
	if err := s.tournamentRepo.UpdateStatusIf(ctx, nil, tournamentID, models.StatusAwaitingResult, models.StatusCompleted); err != nil {
		if !errors.Is(err, repositories.ErrTournamentStateConflict) {
			return nil, mapRepositoryError(err)
		}
	}
	if outcome.AllSuccessful {
		if err := s.tournamentRepo.StampPrizesDistributed(ctx, nil, tournamentID, now); err != nil {
			return nil, mapRepositoryError(err)
		}
	} else {
		s.logger.WarnContext(ctx, "prize distribution partially failed",
			slog.Int("tournament_id", tournamentID))
	}

	s.hub.BroadcastToRoom(tournamentRoomID(tournamentID), events.Message{
		Type:    events.TypeDistributionCompleted,
		Payload: outcome,
	})

	return outcome, nil
}

// validateResults выполняет все проверки пакета до движения денег.
// Игроки без ключа выплат перечисляются все разом.
func (s *DistributionService) validateResults(ctx context.Context, tournament *models.Tournament, results []PlayerResult) ([]resolvedResult, error) {
	if len(results) == 0 {
		return nil, ErrResultsEmpty
	}

	seenUsers := make(map[int]bool, len(results))
	seenPlacements := make(map[int]bool, len(results))
	placements := make([]int, 0, len(results))
	for _, r := range results {
		if seenUsers[r.UserID] || seenPlacements[r.Placement] {
			return nil, ErrResultsDuplicate
		}
		seenUsers[r.UserID] = true
		seenPlacements[r.Placement] = true
		if _, ok := tournament.PrizeDistribution.PercentageFor(r.Placement); !ok {
			return nil, fmt.Errorf("%w: placement %d", ErrPlacementNotInTable, r.Placement)
		}
		placements = append(placements, r.Placement)
	}

	amounts := computePrizeAmounts(tournament.PrizePoolAmount, tournament.PrizeDistribution, placements)

	resolved := make([]resolvedResult, 0, len(results))
	var missingKeys []int
	for _, r := range results {
		participant, err := s.participantRepo.FindByUserAndTournament(ctx, r.UserID, tournament.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return nil, fmt.Errorf("%w: user %d is not registered in tournament %d", ErrParticipantNotFound, r.UserID, tournament.ID)
			}
			return nil, err
		}
		user, err := s.userRepo.GetByID(ctx, r.UserID)
		if err != nil {
			return nil, mapRepositoryError(err)
		}
		if !user.HasPayoutKey() {
			missingKeys = append(missingKeys, r.UserID)
			continue
		}
		resolved = append(resolved, resolvedResult{
			result:      r,
			participant: participant,
			user:        user,
			amount:      amounts[r.Placement],
		})
	}
	if len(missingKeys) > 0 {
		return nil, &MissingPayoutKeysError{UserIDs: missingKeys}
	}
	return resolved, nil
}

// executePayout проводит одну выплату: запись pending с копией ключа выплат,
// перевод с таймаутом, фиксация исхода. Ошибка возвращается только при
// отказе хранилища; отказ перевода записывается в саму Distribution.
func (s *DistributionService) executePayout(ctx context.Context, tournament *models.Tournament, r resolvedResult) (*models.Distribution, error) {
	distribution := &models.Distribution{
		TournamentID:      tournament.ID,
		ParticipantID:     r.participant.ID,
		Placement:         r.result.Placement,
		Amount:            r.amount,
		PayoutDestination: derefString(r.user.PayoutKey),
		Status:            models.DistributionStatusPending,
	}
	if err := s.distributionRepo.Create(ctx, nil, distribution); err != nil {
		return nil, mapRepositoryError(err)
	}

	description := fmt.Sprintf("Prize for placement %d, tournament %q", r.result.Placement, tournament.Name)

	transferCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	result, transferErr := s.payouts.Transfer(transferCtx, distribution.Amount, distribution.PayoutDestination, description)
	cancel()

	if transferErr != nil || !result.Success {
		message := "transfer rejected by payment network"
		if transferErr != nil {
			message = transferErr.Error()
		} else if result.Error != "" {
			message = result.Error
		}
		if err := s.distributionRepo.MarkFailed(ctx, nil, distribution.ID, message); err != nil {
			return nil, mapRepositoryError(err)
		}
		distribution.Status = models.DistributionStatusFailed
		distribution.ErrorMessage = &message

		// Место фиксируем и при неудачной выплате: повторный прогон платит
		// по уже известным местам.
		if err := s.participantRepo.SetPrizeResult(ctx, nil, r.participant.ID, r.result.Placement, r.amount, false, nil); err != nil {
			return nil, mapRepositoryError(err)
		}
		s.logger.ErrorContext(ctx, "prize payout failed",
			slog.Int("tournament_id", tournament.ID),
			slog.Int("participant_id", r.participant.ID),
			slog.Int("placement", r.result.Placement),
			slog.String("error", message))
		return distribution, nil
	}

	now := time.Now().UTC()
	if err := s.distributionRepo.MarkConfirmed(ctx, nil, distribution.ID, result.TransferID, now); err != nil {
		return nil, mapRepositoryError(err)
	}
	transferID := result.TransferID
	if err := s.participantRepo.SetPrizeResult(ctx, nil, r.participant.ID, r.result.Placement, r.amount, true, &transferID); err != nil {
		return nil, mapRepositoryError(err)
	}
	distribution.Status = models.DistributionStatusConfirmed
	distribution.TransferID = &transferID
	distribution.CompletedAt = &now

	if s.notifier != nil {
		email := r.user.Email
		amount := r.amount
		name := tournament.Name
		go func() {
			if notifyErr := s.notifier.SendPrizePaid(email, name, amount); notifyErr != nil {
				s.logger.Warn("failed to notify winner about payout", slog.Any("error", notifyErr))
			}
		}()
	}
	return distribution, nil
}

// ListByTournament возвращает аудит распределений турнира.
func (s *DistributionService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Distribution, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapRepositoryError(err)
	}
	return s.distributionRepo.ListByTournament(ctx, tournamentID)
}
