package notification

import (
	"encoding/json"
	"net/http"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/schema"
)

// HTTPHandler adapts Protocol to net/http for POST /notifications.
type HTTPHandler struct {
	protocol *Protocol
	logger   corekit.Logger
}

func NewHTTPHandler(protocol *Protocol, logger corekit.Logger) *HTTPHandler {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &HTTPHandler{protocol: protocol, logger: corekit.WithComponent(logger, "notification.http")}
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleSubmit handles POST /notifications.
func (h *HTTPHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload schema.Notification
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	evt, err := h.protocol.Accept(ctx, &payload)
	if err != nil {
		h.logger.ErrorWithContext(ctx, "failed to accept notification", map[string]interface{}{"error": err.Error()})
		h.writeError(w, corekit.HTTPStatus(err), err.Error())
		return
	}

	resp := struct {
		EventID string `json:"event_id"`
		State   State  `json:"state"`
	}{EventID: evt.ID, State: evt.State}

	w.Header().Set("Content-Type", "application/json")
	status := http.StatusAccepted
	if evt.State == StateExpired {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}
