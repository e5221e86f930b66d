package services

import (
	"errors"
	"strconv"

	"github.com/Dosada05/tournament-payouts/repositories"
)

// tournamentRoomID — имя комнаты событий для турнира.
func tournamentRoomID(tournamentID int) string {
	return "tournament_" + strconv.Itoa(tournamentID)
}

// mapRepositoryError переводит ошибки уровня хранилища в ошибки сервисного
// слоя; HTTP-маппинг работает только с сервисными ошибками.
func mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrUserEmailConflict):
		return ErrUserEmailConflict
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrTournamentCapacityFull):
		return ErrTournamentFull
	case errors.Is(err, repositories.ErrTournamentStateConflict):
		return ErrTournamentInvalidStatusTransition
	case errors.Is(err, repositories.ErrParticipantNotFound):
		return ErrParticipantNotFound
	case errors.Is(err, repositories.ErrParticipantConflict):
		return ErrRegistrationConflict
	case errors.Is(err, repositories.ErrDepositNotFound):
		return ErrDepositNotFound
	case errors.Is(err, repositories.ErrDepositActiveExists):
		return ErrDepositAlreadyExists
	case errors.Is(err, repositories.ErrDistributionNotFound):
		return ErrDistributionNotFound
	}
	return err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
