package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type participantFixture struct {
	svc             *ParticipantService
	tournamentRepo  *fakeTournamentRepo
	participantRepo *fakeParticipantRepo
	userRepo        *fakeUserRepo
	ledger          *fakeLedger
	tournament      *models.Tournament
	player          *models.User
}

func newParticipantFixture(t *testing.T) *participantFixture {
	t.Helper()
	f := &participantFixture{
		tournamentRepo:  newFakeTournamentRepo(),
		participantRepo: newFakeParticipantRepo(),
		userRepo:        newFakeUserRepo(),
		ledger:          newFakeLedger(),
	}
	f.ledger.participants = f.participantRepo
	f.svc = NewParticipantService(
		&fakeTxBeginner{}, f.participantRepo, f.tournamentRepo, f.userRepo,
		f.ledger, nil, events.NewHub(), testLogger(),
	)

	f.tournament = f.tournamentRepo.add(&models.Tournament{
		Name:                 "Open Series",
		OrganizerID:          1,
		Status:               models.StatusOpen,
		MaxParticipants:      8,
		EntryFeeCredits:      100,
		PrizePoolAmount:      decimal.NewFromInt(1000),
		RegistrationDeadline: time.Now().Add(24 * time.Hour),
	})

	key := "acct-42"
	keyType := "iban"
	f.player = f.userRepo.add(&models.User{
		FirstName:     "Dana",
		Email:         "dana@example.com",
		Role:          models.RolePlayer,
		PayoutKey:     &key,
		PayoutKeyType: &keyType,
	})
	f.ledger.balances[f.player.ID] = 500
	return f
}

func TestJoinRejectsWhenNotOpen(t *testing.T) {
	for _, status := range []models.TournamentStatus{
		models.StatusDraft, models.StatusPendingDeposit, models.StatusInProgress,
		models.StatusAwaitingResult, models.StatusCompleted, models.StatusCancelled,
	} {
		f := newParticipantFixture(t)
		f.tournament.Status = status
		f.tournamentRepo.add(f.tournament)

		_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
		require.ErrorIsf(t, err, ErrRegistrationNotOpen, "status %s", status)
	}
}

func TestJoinChargesFeeAndRegisters(t *testing.T) {
	f := newParticipantFixture(t)

	p, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.NoError(t, err)
	require.NotZero(t, p.ID)
	require.Equal(t, f.player.ID, p.UserID)
	require.Equal(t, 400, f.ledger.balances[f.player.ID])

	tournament, err := f.tournamentRepo.GetByID(context.Background(), f.tournament.ID)
	require.NoError(t, err)
	require.Equal(t, 1, tournament.CurrentParticipants)

	require.Len(t, f.ledger.entries, 1)
	entry := f.ledger.entries[0]
	require.Equal(t, models.LedgerEventEntryFee, entry.EventType)
	require.Equal(t, -100, entry.Change)
	require.True(t, strings.HasPrefix(derefString(entry.Reference), fmt.Sprintf("join:%d:", f.tournament.ID)))
}

func TestJoinRefundsFeeWhenSlotUnavailable(t *testing.T) {
	f := newParticipantFixture(t)
	f.tournament.MaxParticipants = 0
	f.tournamentRepo.add(f.tournament)

	_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrTournamentFull)

	// Списание компенсировано возвратом с той же ссылкой
	require.Equal(t, 500, f.ledger.balances[f.player.ID])
	require.Len(t, f.ledger.entries, 2)
	spend, refund := f.ledger.entries[0], f.ledger.entries[1]
	require.Equal(t, models.LedgerEventEntryFee, spend.EventType)
	require.Equal(t, models.LedgerEventRefund, refund.EventType)
	require.Equal(t, derefString(spend.Reference), derefString(refund.Reference))
}

func TestJoinConcurrentCapacity(t *testing.T) {
	f := newParticipantFixture(t)
	f.tournament.MaxParticipants = 3
	f.tournamentRepo.add(f.tournament)

	players := []*models.User{f.player}
	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("acct-%d", i)
		keyType := "iban"
		u := f.userRepo.add(&models.User{
			Email:         fmt.Sprintf("p%d@example.com", i),
			Role:          models.RolePlayer,
			PayoutKey:     &key,
			PayoutKeyType: &keyType,
		})
		f.ledger.balances[u.ID] = 500
		players = append(players, u)
	}

	errs := make([]error, len(players))
	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(i, userID int) {
			defer wg.Done()
			_, errs[i] = f.svc.Join(context.Background(), userID, f.tournament.ID)
		}(i, p.ID)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrTournamentFull)
		// Проигравшие гонку получают взнос обратно
		require.Equal(t, 500, f.ledger.balances[players[i].ID])
	}
	require.Equal(t, 3, succeeded)

	tournament, err := f.tournamentRepo.GetByID(context.Background(), f.tournament.ID)
	require.NoError(t, err)
	require.Equal(t, 3, tournament.CurrentParticipants)

	participants, err := f.participantRepo.ListByTournament(context.Background(), f.tournament.ID)
	require.NoError(t, err)
	require.Len(t, participants, 3)
}

func TestJoinRejectsDuplicateRegistration(t *testing.T) {
	f := newParticipantFixture(t)
	f.participantRepo.add(&models.Participant{UserID: f.player.ID, TournamentID: f.tournament.ID})

	_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrRegistrationConflict)
}

func TestJoinRejectsAfterDeadline(t *testing.T) {
	f := newParticipantFixture(t)
	f.tournament.RegistrationDeadline = time.Now().Add(-time.Minute)
	f.tournamentRepo.add(f.tournament)

	_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrRegistrationDeadlinePassed)
}

func TestJoinRequiresPayoutKey(t *testing.T) {
	f := newParticipantFixture(t)
	f.player.PayoutKey = nil
	f.userRepo.add(f.player)

	_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrPayoutKeyRequired)

	// Деньги не трогались
	require.Equal(t, 500, f.ledger.balances[f.player.ID])
	require.Empty(t, f.ledger.entries)
}

func TestJoinInsufficientFunds(t *testing.T) {
	f := newParticipantFixture(t)
	f.ledger.balances[f.player.ID] = 99

	_, err := f.svc.Join(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// Баланс не изменился: условное списание не прошло
	require.Equal(t, 99, f.ledger.balances[f.player.ID])
}

func TestJoinUnknownUserOrTournament(t *testing.T) {
	f := newParticipantFixture(t)

	_, err := f.svc.Join(context.Background(), 999, f.tournament.ID)
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Join(context.Background(), f.player.ID, 999)
	require.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestLeaveOnlyWhileOpen(t *testing.T) {
	f := newParticipantFixture(t)
	f.participantRepo.add(&models.Participant{UserID: f.player.ID, TournamentID: f.tournament.ID})
	f.tournament.Status = models.StatusInProgress
	f.tournamentRepo.add(f.tournament)

	err := f.svc.Leave(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrRegistrationNotOpen)
}

func TestLeaveWithoutRegistration(t *testing.T) {
	f := newParticipantFixture(t)

	err := f.svc.Leave(context.Background(), f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestLeaveForfeitsEntryFee(t *testing.T) {
	f := newParticipantFixture(t)
	ctx := context.Background()

	_, err := f.svc.Join(ctx, f.player.ID, f.tournament.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(ctx, f.player.ID, f.tournament.ID))

	// Взнос не возвращается, слот освобождён
	require.Equal(t, 400, f.ledger.balances[f.player.ID])
	_, err = f.participantRepo.FindByUserAndTournament(ctx, f.player.ID, f.tournament.ID)
	require.ErrorIs(t, err, repositories.ErrParticipantNotFound)

	tournament, err := f.tournamentRepo.GetByID(ctx, f.tournament.ID)
	require.NoError(t, err)
	require.Zero(t, tournament.CurrentParticipants)

	// Списание закрыто нулевой пометкой с той же ссылкой
	last := f.ledger.entries[len(f.ledger.entries)-1]
	require.Equal(t, models.LedgerEventForfeit, last.EventType)
	require.Zero(t, last.Change)
	require.Equal(t, derefString(f.ledger.entries[0].Reference), derefString(last.Reference))
}
