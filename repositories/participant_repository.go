package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantConflict          = errors.New("participant conflict: user already registered for this tournament")
	ErrParticipantUserInvalid       = errors.New("participant user conflict or invalid")
	ErrParticipantTournamentInvalid = errors.New("participant tournament conflict or invalid")
)

type ParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	FindByID(ctx context.Context, id int) (*models.Participant, error)
	FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error

	// SetPrizeResult фиксирует место, сумму приза и результат выплаты.
	SetPrizeResult(ctx context.Context, exec SQLExecutor, id int, placement int, amount decimal.Decimal, paid bool, transferID *string) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO participants (user_id, tournament_id)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query, p.UserID, p.TournamentID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "participants_user_id_tournament_id_key" {
					return ErrParticipantConflict
				}
			case "23503": // foreign_key_violation
				switch pqErr.Constraint {
				case "participants_user_id_fkey":
					return ErrParticipantUserInvalid
				case "participants_tournament_id_fkey":
					return ErrParticipantTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) scanParticipant(rowScanner interface {
	Scan(dest ...interface{}) error
}, p *models.Participant) error {
	return rowScanner.Scan(
		&p.ID,
		&p.UserID,
		&p.TournamentID,
		&p.Placement,
		&p.PrizeAmount,
		&p.PrizePaid,
		&p.PrizeTransferID,
		&p.CreatedAt,
	)
}

const participantColumns = `id, user_id, tournament_id, placement, prize_amount, prize_paid, prize_transfer_id, created_at`

func (r *postgresParticipantRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Participant, error) {
	p := &models.Participant{}
	row := r.db.QueryRowContext(ctx, query, args...)
	err := r.scanParticipant(row, p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) FindByID(ctx context.Context, id int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *postgresParticipantRepository) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE user_id = $1 AND tournament_id = $2`
	return r.findOne(ctx, query, userID, tournamentID)
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE tournament_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		p := &models.Participant{}
		if scanErr := r.scanParticipant(rows, p); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", scanErr)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (r *postgresParticipantRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	query := `DELETE FROM participants WHERE id = $1`
	result, err := executor.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresParticipantRepository) SetPrizeResult(ctx context.Context, exec SQLExecutor, id int, placement int, amount decimal.Decimal, paid bool, transferID *string) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE participants
		SET placement = $1, prize_amount = $2, prize_paid = $3, prize_transfer_id = $4
		WHERE id = $5`
	result, err := executor.ExecContext(ctx, query, placement, amount, paid, transferID, id)
	if err != nil {
		return fmt.Errorf("failed to set prize result: %w", err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}
