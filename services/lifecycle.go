package services

import (
	"fmt"

	"github.com/Dosada05/tournament-payouts/models"
)

// Жизненный цикл турнира:
// draft → pending_deposit → open → in_progress → awaiting_result → completed,
// cancelled достижим из любого нетерминального состояния.
// Переходы в обход или назад отклоняются и никогда не подменяются.

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	if current == next {
		return true
	}
	allowedTransitions := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft:          {models.StatusPendingDeposit, models.StatusCancelled},
		models.StatusPendingDeposit: {models.StatusOpen, models.StatusCancelled},
		models.StatusOpen:           {models.StatusInProgress, models.StatusCancelled},
		models.StatusInProgress:     {models.StatusAwaitingResult, models.StatusCancelled},
		models.StatusAwaitingResult: {models.StatusCompleted, models.StatusCancelled},
		models.StatusCompleted:      {},
		models.StatusCancelled:      {},
	}
	for _, allowedNextStatus := range allowedTransitions[current] {
		if next == allowedNextStatus {
			return true
		}
	}
	return false
}

func validateStatusTransition(current, next models.TournamentStatus) error {
	if !isValidStatusTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, current, next)
	}
	return nil
}

// isOrganizerTriggeredTransition ограничивает переходы, доступные организатору
// напрямую. draft → pending_deposit совершает депозитный сервис,
// pending_deposit → open — только подтверждение депозита,
// awaiting_result → completed — только распределение призов.
func isOrganizerTriggeredTransition(current, next models.TournamentStatus) bool {
	if next == models.StatusCancelled {
		return !current.IsTerminal()
	}
	switch {
	case current == models.StatusOpen && next == models.StatusInProgress:
		return true
	case current == models.StatusInProgress && next == models.StatusAwaitingResult:
		return true
	}
	return false
}

func isDeletableStatus(s models.TournamentStatus) bool {
	return s == models.StatusDraft || s == models.StatusPendingDeposit
}
