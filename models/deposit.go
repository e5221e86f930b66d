package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "pending"
	DepositStatusConfirmed DepositStatus = "confirmed"
	DepositStatusFailed    DepositStatus = "failed"
	DepositStatusRefunded  DepositStatus = "refunded"
)

// Deposit — эскроу-депозит призового фонда от организатора.
// На турнир одновременно может существовать не более одного депозита
// в статусе, отличном от failed/refunded.
type Deposit struct {
	ID               int             `json:"id" db:"id"`
	TournamentID     int             `json:"tournament_id" db:"tournament_id"`
	OrganizerID      int             `json:"organizer_id" db:"organizer_id"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	GatewayReference string          `json:"gateway_reference" db:"gateway_reference"`
	DisplayableCode  string          `json:"displayable_code" db:"displayable_code"`
	QRCodeKey        *string         `json:"-" db:"qr_code_key"`
	QRCodeURL        *string         `json:"qr_code_url,omitempty" db:"-"`
	Status           DepositStatus   `json:"status" db:"status"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
}
