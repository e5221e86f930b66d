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
	ErrDepositNotFound = errors.New("deposit not found")
	// ErrDepositActiveExists — на турнир уже есть депозит в статусе pending или confirmed.
	ErrDepositActiveExists = errors.New("an active deposit already exists for this tournament")
)

type DepositRepository interface {
	Create(ctx context.Context, exec SQLExecutor, d *models.Deposit) error
	GetByID(ctx context.Context, id int) (*models.Deposit, error)
	GetByGatewayReference(ctx context.Context, ref string) (*models.Deposit, error)
	FindActiveByTournament(ctx context.Context, tournamentID int) (*models.Deposit, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.DepositStatus, confirmedAt *time.Time) error
}

type postgresDepositRepository struct {
	db *sql.DB
}

func NewPostgresDepositRepository(db *sql.DB) DepositRepository {
	return &postgresDepositRepository{db: db}
}

func (r *postgresDepositRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const depositColumns = `id, tournament_id, organizer_id, amount, gateway_reference, displayable_code, qr_code_key, status, created_at, confirmed_at`

func (r *postgresDepositRepository) scanDeposit(scanner interface{ Scan(dest ...interface{}) error }, d *models.Deposit) error {
	return scanner.Scan(
		&d.ID, &d.TournamentID, &d.OrganizerID, &d.Amount, &d.GatewayReference,
		&d.DisplayableCode, &d.QRCodeKey, &d.Status, &d.CreatedAt, &d.ConfirmedAt,
	)
}

func (r *postgresDepositRepository) Create(ctx context.Context, exec SQLExecutor, d *models.Deposit) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO deposits (tournament_id, organizer_id, amount, gateway_reference, displayable_code, qr_code_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		d.TournamentID, d.OrganizerID, d.Amount, d.GatewayReference, d.DisplayableCode, d.QRCodeKey, d.Status,
	).Scan(&d.ID, &d.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// Частичный уникальный индекс: один не-failed/refunded депозит на турнир.
			if pqErr.Constraint == "deposits_tournament_id_active_key" {
				return ErrDepositActiveExists
			}
		}
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

func (r *postgresDepositRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Deposit, error) {
	d := &models.Deposit{}
	err := r.scanDeposit(r.db.QueryRowContext(ctx, query, args...), d)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to find deposit: %w", err)
	}
	return d, nil
}

func (r *postgresDepositRepository) GetByID(ctx context.Context, id int) (*models.Deposit, error) {
	return r.findOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id)
}

func (r *postgresDepositRepository) GetByGatewayReference(ctx context.Context, ref string) (*models.Deposit, error) {
	return r.findOne(ctx, `SELECT `+depositColumns+` FROM deposits WHERE gateway_reference = $1`, ref)
}

func (r *postgresDepositRepository) FindActiveByTournament(ctx context.Context, tournamentID int) (*models.Deposit, error) {
	query := `SELECT ` + depositColumns + ` FROM deposits WHERE tournament_id = $1 AND status IN ($2, $3)`
	return r.findOne(ctx, query, tournamentID, models.DepositStatusPending, models.DepositStatusConfirmed)
}

func (r *postgresDepositRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.DepositStatus, confirmedAt *time.Time) error {
	executor := r.getExecutor(exec)
	query := `UPDATE deposits SET status = $1, confirmed_at = COALESCE($2, confirmed_at) WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, status, confirmedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update deposit status: %w", err)
	}
	return checkAffectedRows(result, ErrDepositNotFound)
}
