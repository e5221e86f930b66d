package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DistributionStatus string

const (
	DistributionStatusPending   DistributionStatus = "pending"
	DistributionStatusConfirmed DistributionStatus = "confirmed"
	DistributionStatusFailed    DistributionStatus = "failed"
)

// Distribution — одна попытка выплаты приза за одно место.
// PayoutDestination копируется из профиля игрока в момент распределения,
// чтобы последующая смена ключа не влияла на аудит.
// Записи никогда не удаляются, статус движется только вперёд.
type Distribution struct {
	ID                int                `json:"id" db:"id"`
	TournamentID      int                `json:"tournament_id" db:"tournament_id"`
	ParticipantID     int                `json:"participant_id" db:"participant_id"`
	Placement         int                `json:"placement" db:"placement"`
	Amount            decimal.Decimal    `json:"amount" db:"amount"`
	PayoutDestination string             `json:"payout_destination" db:"payout_destination"`
	Status            DistributionStatus `json:"status" db:"status"`
	TransferID        *string            `json:"transfer_id,omitempty" db:"transfer_id"`
	ErrorMessage      *string            `json:"error_message,omitempty" db:"error_message"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
}
