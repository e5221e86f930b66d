package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentNameConflict  = errors.New("tournament name conflict for this organizer")
	ErrTournamentStateConflict = errors.New("tournament is not in the expected state")
	ErrTournamentCapacityFull  = errors.New("tournament has reached max participants")
	ErrTournamentInvalidOrg    = errors.New("invalid organizer reference")
	ErrTournamentInUse         = errors.New("tournament is in use (participants/deposits exist)")
)

type ListTournamentsFilter struct {
	OrganizerID *int
	Status      *models.TournamentStatus
	Limit       int
	Offset      int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)

	// UpdateStatusIf выполняет условный переход статуса (compare-and-set).
	// Возвращает ErrTournamentStateConflict, если турнир не в ожидаемом статусе.
	UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error

	// IncrementParticipants атомарно увеличивает счётчик участников,
	// только если турнир открыт и лимит не достигнут.
	IncrementParticipants(ctx context.Context, exec SQLExecutor, id int) error
	DecrementParticipants(ctx context.Context, exec SQLExecutor, id int) error

	// SetDepositReference привязывает созданный депозит к турниру.
	SetDepositReference(ctx context.Context, exec SQLExecutor, id, depositID int) error

	// ConfirmDeposit выставляет deposit_confirmed. Единственный легальный
	// вызывающий — обработчик подтверждения депозита.
	ConfirmDeposit(ctx context.Context, exec SQLExecutor, id int) error

	StampResultsSubmitted(ctx context.Context, exec SQLExecutor, id int, at time.Time) error
	StampPrizesDistributed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error

	// Delete удаляет только черновики и турниры, ожидающие депозит.
	Delete(ctx context.Context, id int) error

	// ListOpenPastDeadline возвращает открытые турниры с истёкшим дедлайном
	// регистрации для автоматического перевода в in_progress.
	ListOpenPastDeadline(ctx context.Context, now time.Time) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, description, organizer_id, status, max_participants, current_participants,
	entry_fee_credits, prize_pool_amount, prize_distribution, deposit_confirmed, deposit_id,
	registration_deadline, results_submitted_at, prizes_distributed_at, created_at`

func scanTournament(scanner interface{ Scan(dest ...interface{}) error }, t *models.Tournament) error {
	return scanner.Scan(
		&t.ID, &t.Name, &t.Description, &t.OrganizerID, &t.Status, &t.MaxParticipants,
		&t.CurrentParticipants, &t.EntryFeeCredits, &t.PrizePoolAmount, &t.PrizeDistribution,
		&t.DepositConfirmed, &t.DepositID, &t.RegistrationDeadline, &t.ResultsSubmittedAt,
		&t.PrizesDistributedAt, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, description, organizer_id, status, max_participants,
			entry_fee_credits, prize_pool_amount, prize_distribution, registration_deadline
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, current_participants, created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.Description, t.OrganizerID, t.Status, t.MaxParticipants,
		t.EntryFeeCredits, t.PrizePoolAmount, t.PrizeDistribution, t.RegistrationDeadline,
	).Scan(&t.ID, &t.CurrentParticipants, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.OrganizerID != nil {
		query += fmt.Sprintf(" AND organizer_id = $%d", argID)
		args = append(args, *filter.OrganizerID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY registration_deadline DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) UpdateStatusIf(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStateConflict)
}

func (r *postgresTournamentRepository) IncrementParticipants(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	// Единственный оператор: проверка лимита и инкремент неразделимы,
	// иначе конкурентные join-ы переполняют турнир.
	query := `
		UPDATE tournaments
		SET current_participants = current_participants + 1
		WHERE id = $1
		  AND status = $2
		  AND current_participants < max_participants`
	result, err := executor.ExecContext(ctx, query, id, models.StatusOpen)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentCapacityFull)
}

func (r *postgresTournamentRepository) DecrementParticipants(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments
		SET current_participants = current_participants - 1
		WHERE id = $1 AND current_participants > 0`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SetDepositReference(ctx context.Context, exec SQLExecutor, id, depositID int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET deposit_id = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, depositID, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ConfirmDeposit(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET deposit_confirmed = TRUE WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) StampResultsSubmitted(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET results_submitted_at = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, at, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) StampPrizesDistributed(ctx context.Context, exec SQLExecutor, id int, at time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET prizes_distributed_at = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, at, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	// Статусный фильтр дублирует проверку сервиса: турнир, покинувший
	// pending_deposit, не удаляется даже при гонке.
	query := `DELETE FROM tournaments WHERE id = $1 AND status IN ($2, $3)`
	result, err := r.db.ExecContext(ctx, query, id, models.StatusDraft, models.StatusPendingDeposit)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentStateConflict)
}

func (r *postgresTournamentRepository) ListOpenPastDeadline(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE status = $1 AND registration_deadline <= $2`

	rows, err := r.db.QueryContext(ctx, query, models.StatusOpen, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments past deadline: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament past deadline: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "tournaments_organizer_id_name_key" {
				return ErrTournamentNameConflict
			}
		case "23503":
			switch pqErr.Constraint {
			case "tournaments_organizer_id_fkey":
				return ErrTournamentInvalidOrg
			default:
				return ErrTournamentInUse
			}
		}
	}
	return err
}
