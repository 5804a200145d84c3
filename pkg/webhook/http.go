package webhook

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/store"
)

// HTTPHandler adapts Registry/Manager to net/http for the webhook
// registration surface: POST /webhooks, DELETE /webhooks/{id},
// GET /webhooks/{id}/stats.
type HTTPHandler struct {
	registry *Registry
	store    store.EventStore
	logger   corekit.Logger
}

func NewHTTPHandler(registry *Registry, es store.EventStore, logger corekit.Logger) *HTTPHandler {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	return &HTTPHandler{registry: registry, store: es, logger: corekit.WithComponent(logger, "webhook.http")}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// HandleRegister handles POST /webhooks.
func (h *HTTPHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var payload schema.WebhookRegistration
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := schema.Validate(&payload, schema.KindWebhookRegistration); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	wh := h.registry.Register(payload.URL, payload.Secret, payload.EventTypes)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(struct {
		ID string `json:"id"`
	}{ID: wh.ID})
}

// HandleUnregister handles DELETE /webhooks/{id}.
func (h *HTTPHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	id := extractID(r.URL.Path)
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "webhook id is required")
		return
	}
	if !h.registry.Unregister(id) {
		h.writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStats handles GET /webhooks/{id}/stats: the latest persisted
// metrics snapshot for the webhook, or zero-valued stats if none have
// been aggregated yet.
func (h *HTTPHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	id := extractID(strings.TrimSuffix(r.URL.Path, "/stats"))
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "webhook id is required")
		return
	}
	wh, ok := h.registry.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "webhook not found")
		return
	}

	metrics := Metrics{WebhookID: id}
	if h.store != nil {
		records, err := h.store.Query(r.Context(), store.KindWebhook, store.Filter{Since: time.Now().Add(-24 * time.Hour)}, 0)
		if err == nil {
			for _, rec := range records {
				if rec.Status != "metrics_snapshot" {
					continue
				}
				if wid, _ := rec.Data["webhook_id"].(string); wid != id {
					continue
				}
				metrics = recordToMetrics(rec)
				break // newest-first: the first match is the latest snapshot
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Metrics
		TotalDeliveries      int64      `json:"total_deliveries"`
		SuccessfulDeliveries int64      `json:"successful_deliveries"`
		FailedDeliveries     int64      `json:"failed_deliveries"`
		LastDeliveryAt       *time.Time `json:"last_delivery_at,omitempty"`
	}{
		Metrics:              metrics,
		TotalDeliveries:      wh.TotalDeliveries,
		SuccessfulDeliveries: wh.SuccessfulDeliveries,
		FailedDeliveries:     wh.FailedDeliveries,
		LastDeliveryAt:       lastDeliveryPtr(wh.LastDeliveryAt),
	})
}

func lastDeliveryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func recordToMetrics(rec *store.Record) Metrics {
	asFloat := func(v interface{}) float64 {
		f, _ := v.(float64)
		return f
	}
	id, _ := rec.Data["webhook_id"].(string)
	return Metrics{
		WebhookID:     id,
		AvgDeliveryMs: asFloat(rec.Data["avg_delivery_ms"]),
		SuccessRate:   asFloat(rec.Data["success_rate"]),
		ErrorRate:     asFloat(rec.Data["error_rate"]),
		Throughput:    asFloat(rec.Data["throughput"]),
	}
}

// extractID strips either the full-path or bare-path webhooks prefix,
// mirroring taskapi's extractTaskID so the same handler works whether
// it's mounted at /api/v1/webhooks/ or, in a package test, /webhooks/.
func extractID(path string) string {
	id := strings.TrimPrefix(path, "/api/v1/webhooks/")
	id = strings.TrimPrefix(id, "/webhooks/")
	if id == path {
		return ""
	}
	if idx := strings.Index(id, "/"); idx > 0 {
		id = id[:idx]
	}
	return id
}
