package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/tournament-payouts/events"
	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/Dosada05/tournament-payouts/services"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

// staticDepositRepo отдаёт один и тот же депозит по любой известной ссылке.
type staticDepositRepo struct {
	deposit *models.Deposit
}

func (r *staticDepositRepo) Create(ctx context.Context, exec repositories.SQLExecutor, d *models.Deposit) error {
	return nil
}

func (r *staticDepositRepo) GetByID(ctx context.Context, id int) (*models.Deposit, error) {
	if r.deposit == nil || r.deposit.ID != id {
		return nil, repositories.ErrDepositNotFound
	}
	copied := *r.deposit
	return &copied, nil
}

func (r *staticDepositRepo) GetByGatewayReference(ctx context.Context, ref string) (*models.Deposit, error) {
	if r.deposit == nil || r.deposit.GatewayReference != ref {
		return nil, repositories.ErrDepositNotFound
	}
	copied := *r.deposit
	return &copied, nil
}

func (r *staticDepositRepo) FindActiveByTournament(ctx context.Context, tournamentID int) (*models.Deposit, error) {
	return nil, repositories.ErrDepositNotFound
}

func (r *staticDepositRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.DepositStatus, confirmedAt *time.Time) error {
	r.deposit.Status = status
	return nil
}

func newWebhookHandler(deposit *models.Deposit) *DepositHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewDepositService(
		nil, &staticDepositRepo{deposit: deposit}, nil, nil,
		nil, nil, events.NewHub(), logger,
	)
	return NewDepositHandler(svc, testWebhookSecret)
}

func postWebhook(h *DepositHandler, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}
	rr := httptest.NewRecorder()
	h.WebhookHandler(rr, req)
	return rr
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	h := newWebhookHandler(nil)

	rr := postWebhook(h, "wrong-secret", `{"gateway_reference":"pi_1","status":"confirmed"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postWebhook(h, "", `{"gateway_reference":"pi_1","status":"confirmed"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := newWebhookHandler(nil)

	rr := postWebhook(h, testWebhookSecret, `{"gateway_reference":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postWebhook(h, testWebhookSecret, `{"gateway_reference":"pi_1"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postWebhook(h, testWebhookSecret, `{"gateway_reference":"pi_1","status":"confirmed","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookUnknownReference(t *testing.T) {
	h := newWebhookHandler(nil)
	rr := postWebhook(h, testWebhookSecret, `{"gateway_reference":"pi_ghost","status":"confirmed"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhookDuplicateConfirmationReturnsOK(t *testing.T) {
	h := newWebhookHandler(&models.Deposit{
		ID:               1,
		TournamentID:     7,
		GatewayReference: "pi_dup",
		Status:           models.DepositStatusConfirmed,
	})

	// Шлюз повторяет доставку до 2xx: дубликат должен получить 200
	rr := postWebhook(h, testWebhookSecret, `{"gateway_reference":"pi_dup","status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestWebhookUnknownStatus(t *testing.T) {
	h := newWebhookHandler(&models.Deposit{
		ID:               1,
		GatewayReference: "pi_odd",
		Status:           models.DepositStatusPending,
	})
	rr := postWebhook(h, testWebhookSecret, `{"gateway_reference":"pi_odd","status":"exploded"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
