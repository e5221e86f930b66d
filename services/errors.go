package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed             = errors.New("validation failed")
	ErrPasswordTooShort             = errors.New("password is too short")
	ErrTournamentNameRequired       = errors.New("tournament name is required")
	ErrTournamentInvalidCapacity    = errors.New("tournament max participants must be positive")
	ErrTournamentInvalidEntryFee    = errors.New("tournament entry fee must not be negative")
	ErrTournamentInvalidPrizePool   = errors.New("tournament prize pool must be positive")
	ErrTournamentDeadlineInPast     = errors.New("registration deadline must be in the future")
	ErrPrizeTableEmpty              = errors.New("prize distribution table must not be empty")
	ErrPrizeTableInvalidPlacement   = errors.New("prize distribution placements must be unique positive ranks")
	ErrPrizeTableInvalidPercentage  = errors.New("prize distribution percentages must be positive")
	ErrPrizeTableSumNotHundred      = errors.New("prize distribution percentages must sum to exactly 100")
	ErrDepositAmountMismatch        = errors.New("deposit amount must equal the prize pool exactly")
	ErrResultsEmpty                 = errors.New("results must not be empty")
	ErrResultsDuplicate             = errors.New("results contain a duplicate player or placement")
	ErrPlacementNotInTable          = errors.New("result placement is not present in the prize distribution table")
	ErrGatewayEventUnknownStatus    = errors.New("unknown payment gateway event status")

	// Ошибки состояния жизненного цикла
	ErrTournamentInvalidStatus           = errors.New("invalid tournament status provided")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrRegistrationNotOpen               = errors.New("tournament registration is not open")
	ErrRegistrationDeadlinePassed        = errors.New("tournament registration deadline has passed")
	ErrTournamentNotDeletable            = errors.New("tournament can only be deleted while draft or pending deposit")
	ErrTournamentNotAwaitingResult       = errors.New("tournament is not awaiting results")
	ErrDepositNotConfirmed               = errors.New("prize pool deposit is not confirmed")
	ErrDepositAlreadyConfirmed           = errors.New("prize pool deposit is already confirmed")
	ErrDepositAlreadyExists              = errors.New("an active deposit already exists for this tournament")
	ErrPrizesAlreadyDistributed          = errors.New("prizes have already been distributed for this tournament")
	ErrDistributionAlreadyStarted        = errors.New("a distribution run has already been recorded for this tournament")

	// Ошибки конфликтов
	ErrUserEmailConflict    = errors.New("email address is already in use")
	ErrRegistrationConflict = errors.New("user is already registered for this tournament")
	ErrTournamentFull       = errors.New("tournament registration is full")

	// Ошибки денег
	ErrInsufficientFunds = errors.New("insufficient credit balance")
	ErrPayoutKeyRequired = errors.New("a registered payout key is required")
	ErrExternalGateway   = errors.New("payment gateway request failed")

	// Ошибки аутентификации и авторизации
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")

	// Ошибки, специфичные для сущностей
	ErrUserNotFound         = errors.New("user not found")
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrParticipantNotFound  = errors.New("participant registration not found")
	ErrDepositNotFound      = errors.New("deposit not found")
	ErrDistributionNotFound = errors.New("distribution not found")
)

// MissingPayoutKeysError перечисляет всех игроков без ключа выплат.
// Распределение отклоняется целиком до единого перевода.
type MissingPayoutKeysError struct {
	UserIDs []int
}

func (e *MissingPayoutKeysError) Error() string {
	ids := make([]int, len(e.UserIDs))
	copy(ids, e.UserIDs)
	sort.Ints(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("players without a registered payout key: %s", strings.Join(parts, ", "))
}

func (e *MissingPayoutKeysError) Unwrap() error {
	return ErrPayoutKeyRequired
}
