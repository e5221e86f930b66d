package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-payouts/middleware"
	"github.com/Dosada05/tournament-payouts/services"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(us *services.UserService) *UserHandler {
	return &UserHandler{
		userService: us,
	}
}

// MeHandler обрабатывает GET /users/me
func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	user, err := h.userService.GetByID(r.Context(), currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdatePayoutKeyHandler обрабатывает PUT /users/me/payout-key
func (h *UserHandler) UpdatePayoutKeyHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		PayoutKey     string `json:"payout_key"`
		PayoutKeyType string `json:"payout_key_type"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.PayoutKey == "" || input.PayoutKeyType == "" {
		badRequestResponse(w, r, errors.New("payout_key and payout_key_type are required"))
		return
	}

	user, err := h.userService.UpdatePayoutKey(r.Context(), currentUserID, input.PayoutKey, input.PayoutKeyType)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CreditBalanceHandler обрабатывает POST /admin/users/{userID}/credits
func (h *UserHandler) CreditBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := idFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	adminID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input struct {
		Amount int `json:"amount"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.CreditBalance(r.Context(), adminID, userID, input.Amount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
