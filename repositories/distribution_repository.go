package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
)

var ErrDistributionNotFound = errors.New("distribution not found")

type DistributionRepository interface {
	Create(ctx context.Context, exec SQLExecutor, d *models.Distribution) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Distribution, error)

	// MarkConfirmed и MarkFailed двигают статус только вперёд; записи не удаляются.
	MarkConfirmed(ctx context.Context, exec SQLExecutor, id int, transferID string, completedAt time.Time) error
	MarkFailed(ctx context.Context, exec SQLExecutor, id int, errorMessage string) error
}

type postgresDistributionRepository struct {
	db *sql.DB
}

func NewPostgresDistributionRepository(db *sql.DB) DistributionRepository {
	return &postgresDistributionRepository{db: db}
}

func (r *postgresDistributionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const distributionColumns = `id, tournament_id, participant_id, placement, amount, payout_destination, status, transfer_id, error_message, completed_at, created_at`

func (r *postgresDistributionRepository) Create(ctx context.Context, exec SQLExecutor, d *models.Distribution) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO distributions (tournament_id, participant_id, placement, amount, payout_destination, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		d.TournamentID, d.ParticipantID, d.Placement, d.Amount, d.PayoutDestination, d.Status,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create distribution: %w", err)
	}
	return nil
}

func (r *postgresDistributionRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Distribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM distributions WHERE tournament_id = $1 ORDER BY placement`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	distributions := make([]*models.Distribution, 0)
	for rows.Next() {
		d := &models.Distribution{}
		if scanErr := rows.Scan(
			&d.ID, &d.TournamentID, &d.ParticipantID, &d.Placement, &d.Amount,
			&d.PayoutDestination, &d.Status, &d.TransferID, &d.ErrorMessage,
			&d.CompletedAt, &d.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", scanErr)
		}
		distributions = append(distributions, d)
	}
	return distributions, rows.Err()
}

func (r *postgresDistributionRepository) MarkConfirmed(ctx context.Context, exec SQLExecutor, id int, transferID string, completedAt time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE distributions
		SET status = $1, transfer_id = $2, completed_at = $3
		WHERE id = $4 AND status = $5`
	result, err := executor.ExecContext(ctx, query,
		models.DistributionStatusConfirmed, transferID, completedAt, id, models.DistributionStatusPending)
	if err != nil {
		return fmt.Errorf("failed to confirm distribution: %w", err)
	}
	return checkAffectedRows(result, ErrDistributionNotFound)
}

func (r *postgresDistributionRepository) MarkFailed(ctx context.Context, exec SQLExecutor, id int, errorMessage string) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE distributions
		SET status = $1, error_message = $2
		WHERE id = $3 AND status = $4`
	result, err := executor.ExecContext(ctx, query,
		models.DistributionStatusFailed, errorMessage, id, models.DistributionStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark distribution failed: %w", err)
	}
	return checkAffectedRows(result, ErrDistributionNotFound)
}
