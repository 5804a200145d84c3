// Command taskmeshd runs the taskmesh server: task dispatch tracking,
// the notification protocol, webhook delivery, and agent end-task
// handling, behind a single HTTP(+WS) listener. The action execution
// engine (pkg/executor, pkg/actions, pkg/adapters) is a standalone
// subsystem exercised by its own tests — see DESIGN.md's C7/C8 entries
// for why this binary does not construct it.
//
// Exit codes: 0 clean shutdown, 1 configuration error, 2 event store
// unavailable, 3 listen failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/corewire/taskmesh/internal/config"
	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/internal/telemetrykit"
	"github.com/corewire/taskmesh/pkg/audit"
	"github.com/corewire/taskmesh/pkg/endtask"
	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/security"
	"github.com/corewire/taskmesh/pkg/store"
	"github.com/corewire/taskmesh/pkg/taskapi"
	"github.com/corewire/taskmesh/pkg/webhook"
)

const apiVersion = "v1"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := os.Getenv("TASKMESH_CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskmeshd: configuration error: %v\n", err)
		return 1
	}

	logger := corekit.NewSimpleLoggerFromEnv(cfg.Logging.Level, cfg.Logging.Format)
	log := corekit.WithComponent(corekit.Logger(logger), "taskmeshd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		provider, err := telemetrykit.NewOTelProvider(ctx, telemetrykit.ProviderConfig{
			ServiceName: cfg.Name,
			Endpoint:    cfg.Telemetry.Endpoint,
		})
		if err != nil {
			log.Error("failed to start telemetry provider", map[string]interface{}{"error": err.Error()})
			return 1
		}
		defer provider.Shutdown(context.Background())
	}

	es, closeStore, err := buildStore(cfg, log)
	if err != nil {
		log.Error("event store unavailable", map[string]interface{}{"error": err.Error()})
		return 2
	}
	defer closeStore()

	auditLogger := audit.NewLogger(audit.DefaultConfig(), &audit.EventStoreSink{Store: es})
	defer auditLogger.Close()

	secManager := security.NewManager(security.WithLogger(corekit.Logger(logger)))

	webhookRegistry := webhook.NewRegistry()
	webhookManager := webhook.NewManager(webhook.Config{
		Workers:    cfg.Webhook.Workers,
		Retry:      webhook.DefaultRetryPolicy(),
		Logger:     corekit.Logger(logger),
		TotalTimeout: cfg.Webhook.Timeout,
	}, webhookRegistry, es)
	defer webhookManager.Close()

	notifProtocol := notification.NewProtocol(notification.DefaultConfig(), es)
	hub := notification.NewHub(notifProtocol, corekit.Logger(logger), nil)
	notifProtocol.SetBroadcaster(hub)

	endtaskManager := endtask.NewManager(es, webhookManager, notifProtocol, corekit.Logger(logger))
	taskManager := taskapi.NewManager(es, notifProtocol, corekit.Logger(logger))

	mux := http.NewServeMux()
	registerRoutes(mux, routeDeps{
		taskManager:     taskManager,
		security:        secManager,
		notifProtocol:   notifProtocol,
		hub:             hub,
		webhookRegistry: webhookRegistry,
		webhookStore:    es,
		endtaskManager:  endtaskManager,
		logger:          corekit.Logger(logger),
		startedAt:       time.Now(),
	})

	handler := telemetrykit.TracingMiddlewareWithConfig(cfg.Name, &telemetrykit.TracingMiddlewareConfig{
		ExcludedPaths: []string{"/api/v1/health"},
	})(withResponseHeaders(mux))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		log.Error("listen failed", map[string]interface{}{"error": err.Error()})
		return 3
	case <-ctx.Done():
		log.Info("shutting down", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown did not complete cleanly", map[string]interface{}{"error": err.Error()})
	}
	return 0
}

// buildStore wires a RedisStore when TASKMESH_REDIS_URL (or its config
// default) resolves, falling back to MemoryStore for local/dev runs —
// matching the examples' "degrade cleanly when the backing service
// can't be reached" convention rather than treating Redis as mandatory.
func buildStore(cfg *config.Config, log corekit.Logger) (store.EventStore, func(), error) {
	if cfg.Redis.URL == "" {
		ms := store.NewMemoryStore()
		return ms, func() { ms.Close() }, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = cfg.Redis.PoolSize
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, falling back to in-memory event store", map[string]interface{}{"error": err.Error()})
		client.Close()
		ms := store.NewMemoryStore()
		return ms, func() { ms.Close() }, nil
	}

	rs := store.NewRedisStore(client, store.WithRedisLogger(log))
	return rs, func() { rs.Close() }, nil
}

// withResponseHeaders stamps every response with the API version and
// how long the handler took, injecting the duration header at the
// point the handler flushes its own (net/http ignores header writes
// after that point).
func withResponseHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("X-API-Version", apiVersion)
		next.ServeHTTP(&durationWriter{ResponseWriter: w, start: start}, r)
	})
}

type durationWriter struct {
	http.ResponseWriter
	start     time.Time
	wroteOnce bool
}

func (w *durationWriter) stampDuration() {
	if !w.wroteOnce {
		w.wroteOnce = true
		w.Header().Set("X-Request-Duration", time.Since(w.start).String())
	}
}

func (w *durationWriter) WriteHeader(status int) {
	w.stampDuration()
	w.ResponseWriter.WriteHeader(status)
}

func (w *durationWriter) Write(b []byte) (int, error) {
	w.stampDuration()
	return w.ResponseWriter.Write(b)
}

type routeDeps struct {
	taskManager     *taskapi.Manager
	security        *security.Manager
	notifProtocol   *notification.Protocol
	hub             *notification.Hub
	webhookRegistry *webhook.Registry
	webhookStore    store.EventStore
	endtaskManager  *endtask.Manager
	logger          corekit.Logger
	startedAt       time.Time
}

func registerRoutes(mux *http.ServeMux, deps routeDeps) {
	taskHandler := taskapi.NewHTTPHandler(deps.taskManager, deps.security, deps.logger)
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			taskHandler.HandleSubmit(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/tasks/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		taskHandler.HandleSubmitBatch(w, r)
	})
	mux.HandleFunc("/api/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/status") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		taskHandler.HandleStatus(w, r)
	})

	notifHandler := notification.NewHTTPHandler(deps.notifProtocol, deps.logger)
	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		notifHandler.HandleSubmit(w, r)
	})
	mux.Handle("/api/v1/ws", deps.hub)

	webhookHandler := webhook.NewHTTPHandler(deps.webhookRegistry, deps.webhookStore, deps.logger)
	mux.HandleFunc("/api/v1/webhooks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		webhookHandler.HandleRegister(w, r)
	})
	mux.HandleFunc("/api/v1/webhooks/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/stats") && r.Method == http.MethodGet:
			webhookHandler.HandleStats(w, r)
		case r.Method == http.MethodDelete:
			webhookHandler.HandleUnregister(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/agent/end-task", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handleEndTask(deps.endtaskManager, w, r)
	})

	mux.HandleFunc("/api/v1/schemas", handleSchemas)
	mux.HandleFunc("/api/v1/schemas/", handleSchemaByType)

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		handleHealth(deps, w, r)
	})
}

func handleSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Schemas map[string]map[string]interface{} `json:"schemas"`
	}{Schemas: schema.Descriptors()})
}

func handleSchemaByType(w http.ResponseWriter, r *http.Request) {
	payloadType := strings.TrimPrefix(r.URL.Path, "/api/v1/schemas/")
	descriptor, ok := schema.Descriptor(payloadType)
	if !ok {
		writeJSON(w, http.StatusNotFound, struct {
			Error string `json:"error"`
		}{Error: "unknown payload type"})
		return
	}
	writeJSON(w, http.StatusOK, descriptor)
}

func handleHealth(deps routeDeps, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status    string            `json:"status"`
		UptimeSec int64             `json:"uptime_seconds"`
		Components map[string]string `json:"components"`
	}{
		Status:    "ok",
		UptimeSec: int64(time.Since(deps.startedAt).Seconds()),
		Components: map[string]string{
			"event_store":          "ok",
			"notification_protocol": "ok",
			"webhook_manager":      "ok",
			"security_manager":     "ok",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func handleEndTask(mgr *endtask.Manager, w http.ResponseWriter, r *http.Request) {
	var event schema.AgentEndTask
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, struct {
			Error string `json:"error"`
		}{Error: "invalid request body"})
		return
	}

	report, err := mgr.EndTask(r.Context(), &event)
	if err != nil {
		writeJSON(w, corekit.HTTPStatus(err), struct {
			Error string `json:"error"`
		}{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
