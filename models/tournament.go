package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	StatusDraft          TournamentStatus = "draft"
	StatusPendingDeposit TournamentStatus = "pending_deposit"
	StatusOpen           TournamentStatus = "open"
	StatusInProgress     TournamentStatus = "in_progress"
	StatusAwaitingResult TournamentStatus = "awaiting_result"
	StatusCompleted      TournamentStatus = "completed"
	StatusCancelled      TournamentStatus = "cancelled"
)

// IsTerminal сообщает, достиг ли турнир конечного состояния.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PrizeTier — одна строка таблицы распределения призового фонда.
type PrizeTier struct {
	Placement  int             `json:"placement"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PrizeDistributionTable хранится в колонке JSONB.
type PrizeDistributionTable []PrizeTier

func (t PrizeDistributionTable) Value() (driver.Value, error) {
	return json.Marshal(t)
}

func (t *PrizeDistributionTable) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	}
	return fmt.Errorf("unsupported source type for PrizeDistributionTable: %T", src)
}

// PercentageFor возвращает процент для указанного места.
func (t PrizeDistributionTable) PercentageFor(placement int) (decimal.Decimal, bool) {
	for _, tier := range t {
		if tier.Placement == placement {
			return tier.Percentage, true
		}
	}
	return decimal.Decimal{}, false
}

// Tournament представляет турнир с призовым фондом.
type Tournament struct {
	ID                   int                    `json:"id" db:"id"`
	Name                 string                 `json:"name" db:"name"`
	Description          *string                `json:"description,omitempty" db:"description"`
	OrganizerID          int                    `json:"organizer_id" db:"organizer_id"`
	Status               TournamentStatus       `json:"status" db:"status"`
	MaxParticipants      int                    `json:"max_participants" db:"max_participants"`
	CurrentParticipants  int                    `json:"current_participants" db:"current_participants"`
	EntryFeeCredits      int                    `json:"entry_fee_credits" db:"entry_fee_credits"`
	PrizePoolAmount      decimal.Decimal        `json:"prize_pool_amount" db:"prize_pool_amount"`
	PrizeDistribution    PrizeDistributionTable `json:"prize_distribution" db:"prize_distribution"`
	DepositConfirmed     bool                   `json:"deposit_confirmed" db:"deposit_confirmed"`
	DepositID            *int                   `json:"deposit_id,omitempty" db:"deposit_id"`
	RegistrationDeadline time.Time              `json:"registration_deadline" db:"registration_deadline"`
	ResultsSubmittedAt   *time.Time             `json:"results_submitted_at,omitempty" db:"results_submitted_at"`
	PrizesDistributedAt  *time.Time             `json:"prizes_distributed_at,omitempty" db:"prizes_distributed_at"`
	CreatedAt            time.Time              `json:"created_at" db:"created_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Organizer    *User         `json:"organizer,omitempty" db:"-"`
	Participants []Participant `json:"participants,omitempty" db:"-"`
	Deposit      *Deposit      `json:"deposit,omitempty" db:"-"`
}
