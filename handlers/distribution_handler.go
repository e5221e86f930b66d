package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-payouts/middleware"
	"github.com/Dosada05/tournament-payouts/services"
)

type DistributionHandler struct {
	distributionService *services.DistributionService
}

func NewDistributionHandler(ds *services.DistributionService) *DistributionHandler {
	return &DistributionHandler{
		distributionService: ds,
	}
}

// DistributeHandler обрабатывает POST /tournaments/{tournamentID}/distribute.
// 200 с all_successful=false означает частичный провал выплат: состояние
// записано, упавшие переводы можно разбирать по списку distributions.
func (h *DistributionHandler) DistributeHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := idFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to distribute prizes")
		return
	}

	var input struct {
		Results []services.PlayerResult `json:"results"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.distributionService.Distribute(r.Context(), currentUserID, tournamentID, input.Results)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{
		"distributions":  outcome.Distributions,
		"all_successful": outcome.AllSuccessful,
	}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /tournaments/{tournamentID}/distributions
func (h *DistributionHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := idFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	distributions, err := h.distributionService.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"distributions": distributions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
