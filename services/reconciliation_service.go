package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/repositories"
)

// ReconciliationService ищет списания взноса, оставшиеся без регистрации
// участника — окно падения процесса между леджером и транзакцией регистрации.
// Найденные списания компенсируются автоматически.
type ReconciliationService struct {
	ledger repositories.CreditLedger
	logger *slog.Logger
	window time.Duration
}

func NewReconciliationService(ledger repositories.CreditLedger, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{
		ledger: ledger,
		logger: logger,
		window: 24 * time.Hour,
	}
}

// Reconcile возвращает число компенсированных списаний.
// Свежие списания (младше минуты) пропускаются: регистрация могла ещё
// не успеть зафиксироваться.
func (s *ReconciliationService) Reconcile(ctx context.Context) (int, error) {
	since := time.Now().Add(-s.window)
	entries, err := s.ledger.ListUnmatchedEntryFees(ctx, since)
	if err != nil {
		return 0, err
	}

	refunded := 0
	cutoff := time.Now().Add(-time.Minute)
	for _, entry := range entries {
		if entry.CreatedAt.After(cutoff) {
			continue
		}
		reference := derefString(entry.Reference)
		if err := s.ledger.Add(ctx, entry.UserID, -entry.Change, models.LedgerEventRefund, reference); err != nil {
			s.logger.ErrorContext(ctx, "reconciliation refund failed",
				slog.Int("ledger_entry_id", entry.ID),
				slog.Int("user_id", entry.UserID),
				slog.Any("error", err))
			continue
		}
		refunded++
		s.logger.InfoContext(ctx, "orphaned entry fee refunded",
			slog.Int("ledger_entry_id", entry.ID),
			slog.Int("user_id", entry.UserID),
			slog.Int("amount", -entry.Change),
			slog.String("reference", reference))
	}
	return refunded, nil
}
