package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
)

var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// CreditLedger — атомарные операции над кредитным балансом игрока.
// Списание и зачисление пишут запись аудита в той же транзакции.
type CreditLedger interface {
	// Spend списывает amount, только если баланс достаточен.
	// Возвращает false (не ошибку) при нехватке средств.
	Spend(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) (bool, error)

	// Add — компенсирующее или административное зачисление.
	Add(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) error

	// ForfeitEntryFee помечает взнос игрока в турнире невозвратным: нулевая
	// запись entry_fee_forfeit с той же ссылкой, что и списание. Вызывается
	// при добровольном выходе, чтобы сверка не приняла списание за осиротевшее.
	ForfeitEntryFee(ctx context.Context, exec SQLExecutor, userID, tournamentID int) error

	// ListUnmatchedEntryFees возвращает списания entry_fee без соответствующей
	// записи участника — след падения между списанием и регистрацией.
	ListUnmatchedEntryFees(ctx context.Context, since time.Time) ([]*models.LedgerEntry, error)
}

type postgresCreditLedger struct {
	db *sql.DB
}

func NewPostgresCreditLedger(db *sql.DB) CreditLedger {
	return &postgresCreditLedger{db: db}
}

func (l *postgresCreditLedger) Spend(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("ledger spend amount must be positive, got %d", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	// Условный декремент — единственная точка, где проверяется достаточность
	// средств. Проверка и списание неразделимы.
	var balanceAfter int
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET credit_balance = credit_balance - $1
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance`,
		amount, userID,
	).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Либо нет пользователя, либо не хватает средств. Различаем.
			var exists bool
			if checkErr := l.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); checkErr != nil {
				return false, fmt.Errorf("failed to check user existence: %w", checkErr)
			}
			if !exists {
				return false, ErrUserNotFound
			}
			return false, nil
		}
		return false, fmt.Errorf("failed to spend credits: %w", err)
	}

	if err := l.insertEntry(ctx, tx, userID, -amount, balanceAfter, eventType, reference); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit ledger spend: %w", err)
	}
	return true, nil
}

func (l *postgresCreditLedger) Add(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger add amount must be positive, got %d", amount)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	var balanceAfter int
	err = tx.QueryRowContext(ctx, `
		UPDATE users
		SET credit_balance = credit_balance + $1
		WHERE id = $2
		RETURNING credit_balance`,
		amount, userID,
	).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to add credits: %w", err)
	}

	if err := l.insertEntry(ctx, tx, userID, amount, balanceAfter, eventType, reference); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger add: %w", err)
	}
	return nil
}

func (l *postgresCreditLedger) insertEntry(ctx context.Context, exec SQLExecutor, userID, change, balanceAfter int, eventType models.LedgerEventType, reference string) error {
	var ref *string
	if reference != "" {
		ref = &reference
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, change, balance_after, event_type, reference)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, change, balanceAfter, eventType, ref,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (l *postgresCreditLedger) ForfeitEntryFee(ctx context.Context, exec SQLExecutor, userID, tournamentID int) error {
	executor := SQLExecutor(l.db)
	if exec != nil {
		executor = exec
	}
	// Последнее незакрытое списание взноса этого игрока в этом турнире.
	// Без такого списания (бесплатный турнир) не вставляется ничего.
	_, err := executor.ExecContext(ctx, `
		INSERT INTO ledger_entries (user_id, change, balance_after, event_type, reference)
		SELECT le.user_id, 0, (SELECT credit_balance FROM users WHERE id = le.user_id), $3, le.reference
		FROM ledger_entries le
		WHERE le.user_id = $1
		  AND le.event_type = $4
		  AND le.reference LIKE 'join:' || $2::text || ':%'
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_entries x
			WHERE x.reference = le.reference AND x.event_type IN ($5, $3)
		  )
		ORDER BY le.created_at DESC
		LIMIT 1`,
		userID, tournamentID, models.LedgerEventForfeit, models.LedgerEventEntryFee, models.LedgerEventRefund,
	)
	if err != nil {
		return fmt.Errorf("failed to forfeit entry fee: %w", err)
	}
	return nil
}

func (l *postgresCreditLedger) ListUnmatchedEntryFees(ctx context.Context, since time.Time) ([]*models.LedgerEntry, error) {
	// Списание со ссылкой вида "join:<tournament_id>:<uuid>" без строки участника,
	// без компенсирующего возврата и без пометки о невозврате с той же ссылкой.
	query := `
		SELECT le.id, le.user_id, le.change, le.balance_after, le.event_type, le.reference, le.created_at
		FROM ledger_entries le
		WHERE le.event_type = $1
		  AND le.created_at >= $2
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_entries r
			WHERE r.event_type IN ($3, $4) AND r.reference = le.reference
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM participants p
			WHERE p.user_id = le.user_id
			  AND p.tournament_id = split_part(le.reference, ':', 2)::int
		  )
		ORDER BY le.created_at`

	rows, err := l.db.QueryContext(ctx, query, models.LedgerEventEntryFee, since, models.LedgerEventRefund, models.LedgerEventForfeit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched entry fees: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.LedgerEntry, 0)
	for rows.Next() {
		e := &models.LedgerEntry{}
		if scanErr := rows.Scan(&e.ID, &e.UserID, &e.Change, &e.BalanceAfter, &e.EventType, &e.Reference, &e.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", scanErr)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
