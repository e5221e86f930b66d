package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/stretchr/testify/require"
)

func backdateLastEntry(l *fakeLedger, age time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[len(l.entries)-1].CreatedAt = time.Now().Add(-age)
}

func backdateAllEntries(l *fakeLedger, age time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at := time.Now().Add(-age)
	for _, e := range l.entries {
		e.CreatedAt = at
	}
}

func TestReconcileRefundsOrphanedEntryFee(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.balances[1] = 500

	ok, err := ledger.Spend(ctx, 1, 100, models.LedgerEventEntryFee, "join:1:42:abc")
	require.NoError(t, err)
	require.True(t, ok)
	backdateLastEntry(ledger, 10*time.Minute)

	svc := NewReconciliationService(ledger, testLogger())
	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, refunded)
	require.Equal(t, 500, ledger.balances[1])

	last := ledger.entries[len(ledger.entries)-1]
	require.Equal(t, models.LedgerEventRefund, last.EventType)
	require.Equal(t, 100, last.Change)
	require.Equal(t, "join:1:42:abc", derefString(last.Reference))
}

func TestReconcileSkipsFreshEntries(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.balances[1] = 500

	// Регистрация могла ещё не зафиксироваться
	_, err := ledger.Spend(ctx, 1, 100, models.LedgerEventEntryFee, "join:1:42:fresh")
	require.NoError(t, err)

	svc := NewReconciliationService(ledger, testLogger())
	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, refunded)
	require.Equal(t, 400, ledger.balances[1])
}

func TestReconcileDoesNotRefundTwice(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.balances[1] = 500

	_, err := ledger.Spend(ctx, 1, 100, models.LedgerEventEntryFee, "join:1:42:once")
	require.NoError(t, err)
	backdateLastEntry(ledger, 10*time.Minute)

	svc := NewReconciliationService(ledger, testLogger())

	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, refunded)

	refunded, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, refunded)
	require.Equal(t, 500, ledger.balances[1])
}

func TestReconcileIgnoresMatchedSpends(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.balances[1] = 500

	// Компенсация по той же ссылке уже существует
	_, err := ledger.Spend(ctx, 1, 100, models.LedgerEventEntryFee, "join:1:42:matched")
	require.NoError(t, err)
	backdateLastEntry(ledger, 10*time.Minute)
	require.NoError(t, ledger.Add(ctx, 1, 100, models.LedgerEventRefund, "join:1:42:matched"))

	svc := NewReconciliationService(ledger, testLogger())
	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, refunded)
}

func TestReconcileSkipsRegisteredParticipants(t *testing.T) {
	ctx := context.Background()
	f := newParticipantFixture(t)

	// Успешная регистрация: списание имеет строку участника
	_, err := f.svc.Join(ctx, f.player.ID, f.tournament.ID)
	require.NoError(t, err)
	backdateAllEntries(f.ledger, 10*time.Minute)

	svc := NewReconciliationService(f.ledger, testLogger())
	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, refunded)
	require.Equal(t, 400, f.ledger.balances[f.player.ID])
}

func TestReconcileDoesNotRefundLeaverFee(t *testing.T) {
	ctx := context.Background()
	f := newParticipantFixture(t)

	// Выход удаляет строку участника, но оставляет пометку о невозврате
	_, err := f.svc.Join(ctx, f.player.ID, f.tournament.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(ctx, f.player.ID, f.tournament.ID))
	backdateAllEntries(f.ledger, 10*time.Minute)

	svc := NewReconciliationService(f.ledger, testLogger())
	refunded, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	require.Zero(t, refunded, "взнос вышедшего игрока не возвращается")
	require.Equal(t, 400, f.ledger.balances[f.player.ID])
}
