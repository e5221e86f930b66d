package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant — регистрация игрока в турнире.
// Пара (tournament_id, user_id) уникальна на уровне БД.
type Participant struct {
	ID              int              `json:"id" db:"id"`
	UserID          int              `json:"user_id" db:"user_id"`
	TournamentID    int              `json:"tournament_id" db:"tournament_id"`
	Placement       *int             `json:"placement,omitempty" db:"placement"`
	PrizeAmount     *decimal.Decimal `json:"prize_amount,omitempty" db:"prize_amount"`
	PrizePaid       bool             `json:"prize_paid" db:"prize_paid"`
	PrizeTransferID *string          `json:"prize_transfer_id,omitempty" db:"prize_transfer_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`

	User *User `json:"user,omitempty" db:"-"`
}
