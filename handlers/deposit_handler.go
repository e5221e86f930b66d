package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-payouts/middleware"
	"github.com/Dosada05/tournament-payouts/services"
	"github.com/shopspring/decimal"
)

type DepositHandler struct {
	depositService *services.DepositService
	webhookSecret  string
}

func NewDepositHandler(depositService *services.DepositService, webhookSecret string) *DepositHandler {
	return &DepositHandler{
		depositService: depositService,
		webhookSecret:  webhookSecret,
	}
}

// CreateHandler обрабатывает POST /tournaments/{tournamentID}/deposit
func (h *DepositHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := idFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create deposit")
		return
	}

	var input struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if !input.Amount.IsPositive() {
		badRequestResponse(w, r, errors.New("amount must be positive"))
		return
	}

	deposit, err := h.depositService.CreateDeposit(r.Context(), currentUserID, tournamentID, input.Amount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"deposit": deposit}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// WebhookHandler обрабатывает POST /webhooks/payments — события платёжного
// шлюза. Шлюз повторяет доставку до получения 2xx, поэтому обработка
// идемпотентна, а дубликаты получают 200.
func (h *DepositHandler) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(signature), []byte(h.webhookSecret)) != 1 {
		unauthorizedResponse(w, r, "invalid webhook signature")
		return
	}

	var event struct {
		GatewayReference string `json:"gateway_reference"`
		Status           string `json:"status"`
	}
	if err := readJSON(w, r, &event); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if event.GatewayReference == "" || event.Status == "" {
		badRequestResponse(w, r, errors.New("gateway_reference and status are required"))
		return
	}

	if err := h.depositService.HandleGatewayEvent(r.Context(), event.GatewayReference, event.Status); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "event processed"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
