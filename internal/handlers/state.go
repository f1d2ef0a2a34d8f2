package handlers

import (
	"net/http"

	"oauth-refresh/internal/refresh"

	"go.uber.org/zap"
)

// StateHandler serves the orchestrator's last aggregate snapshot
type StateHandler struct {
	refresher *refresh.Refresher
	logger    *zap.Logger
}

// NewStateHandler creates a new state handler
func NewStateHandler(refresher *refresh.Refresher, logger *zap.Logger) *StateHandler {
	return &StateHandler{
		refresher: refresher,
		logger:    logger,
	}
}

// HandleState handles GET /v1/admin/get_state. It always succeeds; before
// the first cycle the snapshot is a null state.
func (h *StateHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, http.StatusOK, ResponseTypeQuery, h.refresher.Query())
}
