package models

import "time"

type LedgerEventType string

const (
	LedgerEventEntryFee    LedgerEventType = "entry_fee"
	LedgerEventRefund      LedgerEventType = "entry_fee_refund"
	LedgerEventForfeit     LedgerEventType = "entry_fee_forfeit"
	LedgerEventAdminCredit LedgerEventType = "admin_credit"
)

// LedgerEntry — запись аудиторского следа кредитного леджера.
// Только добавляется, никогда не изменяется и не удаляется.
// Reference — корреляционный идентификатор операции (uuid),
// по нему сверка находит списания без созданного участника.
type LedgerEntry struct {
	ID           int             `json:"id" db:"id"`
	UserID       int             `json:"user_id" db:"user_id"`
	Change       int             `json:"change" db:"change"`
	BalanceAfter int             `json:"balance_after" db:"balance_after"`
	EventType    LedgerEventType `json:"event_type" db:"event_type"`
	Reference    *string         `json:"reference,omitempty" db:"reference"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
