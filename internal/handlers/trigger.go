package handlers

import (
	"fmt"
	"net/http"

	"oauth-refresh/internal/database"
	"oauth-refresh/internal/refresh"
	svcerrors "oauth-refresh/pkg/errors"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// TriggerHandler runs an on-demand refresh for a single connection
type TriggerHandler struct {
	repo    database.Repository
	trigger *refresh.Trigger
	logger  *zap.Logger
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(repo database.Repository, trigger *refresh.Trigger, logger *zap.Logger) *TriggerHandler {
	return &TriggerHandler{
		repo:    repo,
		trigger: trigger,
		logger:  logger,
	}
}

// HandleTrigger handles POST /v1/integration/trigger/{id}. The attempt's
// outcome is reported in the envelope whether it succeeded or not; only a
// missing connection or a repository failure maps to an error status.
func (h *TriggerHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, svcerrors.WithMessage(svcerrors.ErrValidation, "connection id is required"))
		return
	}

	connection, err := h.repo.GetConnection(ctx, id)
	if err != nil {
		writeError(w, svcerrors.Wrap(err, svcerrors.ErrInternalServer))
		return
	}
	if connection == nil {
		writeError(w, svcerrors.WithMessage(svcerrors.ErrNotFound, fmt.Sprintf("connection %s not found", id)))
		return
	}

	h.logger.Info("Triggering refresh for connection", zap.String("connection_id", id))

	outcome := h.trigger.Trigger(ctx, *connection)

	writeResponse(w, http.StatusOK, ResponseTypeTrigger, map[string]interface{}{
		"id":      id,
		"outcome": outcome,
	})
}
