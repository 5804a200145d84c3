package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/internal/telemetrykit"
	"github.com/corewire/taskmesh/pkg/store"
)

// Config tunes queue size, worker count, timeouts, and retry/metrics
// schedules.
type Config struct {
	QueueSize       int
	Workers         int
	ConnectTimeout  time.Duration
	TotalTimeout    time.Duration
	Retry           RetryPolicy
	MetricsInterval time.Duration
	Logger          corekit.Logger
}

func DefaultConfig() Config {
	return Config{
		QueueSize:       1000,
		Workers:         4,
		ConnectTimeout:  10 * time.Second,
		TotalTimeout:    60 * time.Second,
		Retry:           DefaultRetryPolicy(),
		MetricsInterval: 60 * time.Second,
		Logger:          corekit.NoOpLogger{},
	}
}

type deliveryTask struct {
	Webhook   *Webhook
	EventType string
	Payload   map[string]interface{}
	DeliveryID string
	Attempt   int
}

type attemptRecord struct {
	success    bool
	durationMs int64
	at         time.Time
}

// Manager drives the four cooperating webhook workloads: ingress,
// delivery workers, retry scheduler, and the periodic metrics worker.
type Manager struct {
	cfg      Config
	registry *Registry
	store    store.EventStore
	logger   corekit.Logger
	client   *http.Client

	ingress   chan *deliveryTask
	scheduler *retryScheduler

	statsMu sync.Mutex
	stats   map[string][]attemptRecord

	closeOnce sync.Once
	stopped   chan struct{}
	wg        sync.WaitGroup
}

func NewManager(cfg Config, registry *Registry, es store.EventStore) *Manager {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 60 * time.Second
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = corekit.NoOpLogger{}
	}

	client := telemetrykit.NewTracedHTTPClientWithTransport(&http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	})
	client.Timeout = cfg.TotalTimeout

	m := &Manager{
		cfg:      cfg,
		registry: registry,
		store:    es,
		logger:   corekit.WithComponent(cfg.Logger, "webhook.manager"),
		ingress:  make(chan *deliveryTask, cfg.QueueSize),
		stats:    make(map[string][]attemptRecord),
		stopped:  make(chan struct{}),
		client:   client,
	}
	m.scheduler = newRetryScheduler(m.ingress)

	m.wg.Add(1)
	go func() { defer m.wg.Done(); m.scheduler.run() }()

	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() { defer m.wg.Done(); m.deliveryWorker() }()
	}

	m.wg.Add(1)
	go func() { defer m.wg.Done(); m.metricsWorker() }()

	return m
}

// Close stops all workers. Already-enqueued deliveries are abandoned.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopped)
		m.scheduler.stop()
		m.wg.Wait()
	})
}

// Send enqueues one delivery task per active webhook subscribed to
// eventType (optionally narrowed to targetIDs). Returns ErrBackpressure
// if the ingress queue is full for any matched webhook.
func (m *Manager) Send(ctx context.Context, eventType string, payload map[string]interface{}, targetIDs ...string) error {
	webhooks := m.registry.ByEventType(eventType, targetIDs)
	for _, w := range webhooks {
		task := &deliveryTask{
			Webhook:    w,
			EventType:  eventType,
			Payload:    payload,
			DeliveryID: uuid.New().String(),
			Attempt:    1,
		}
		select {
		case m.ingress <- task:
		default:
			return fmt.Errorf("webhook: %w: ingress queue full for webhook %s", corekit.ErrBackpressure, w.ID)
		}
	}
	return nil
}

func (m *Manager) deliveryWorker() {
	for {
		select {
		case task := <-m.ingress:
			m.deliver(task)
		case <-m.stopped:
			return
		}
	}
}

func (m *Manager) deliver(task *deliveryTask) {
	start := time.Now()
	statusCode, err := m.attempt(task)
	duration := time.Since(start)

	success := err == nil && isSuccessStatus(statusCode)
	m.recordStat(task.Webhook.ID, success, duration)

	status := "failed"
	if success {
		status = "success"
	}
	m.persistAttempt(task, status, statusCode, duration, err)

	if success {
		m.registry.recordDelivery(task.Webhook.ID, true)
		return
	}

	if statusCode == http.StatusGone {
		m.registry.recordDelivery(task.Webhook.ID, false)
		m.registry.Deactivate(task.Webhook.ID)
		m.logger.Warn("webhook returned 410 Gone, disabling", map[string]interface{}{"webhook_id": task.Webhook.ID})
		return
	}

	if task.Attempt > m.cfg.Retry.MaxRetries {
		m.registry.recordDelivery(task.Webhook.ID, false)
		m.persistAttempt(task, "dead_letter", statusCode, duration, err)
		m.logger.Error("webhook delivery exhausted retries, dead-lettered", map[string]interface{}{
			"webhook_id": task.Webhook.ID, "delivery_id": task.DeliveryID, "attempts": task.Attempt,
		})
		return
	}

	next := &deliveryTask{
		Webhook:    task.Webhook,
		EventType:  task.EventType,
		Payload:    task.Payload,
		DeliveryID: task.DeliveryID,
		Attempt:    task.Attempt + 1,
	}
	delay := m.cfg.Retry.delayFor(next.Attempt - 1)
	m.scheduler.schedule(next, delay)
}

// attempt performs one HTTP delivery and returns the response status
// code (0 if the request never completed).
func (m *Manager) attempt(task *deliveryTask) (int, error) {
	body, err := json.Marshal(task.Payload)
	if err != nil {
		return 0, fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, task.Webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-ID", task.Webhook.ID)
	req.Header.Set("X-Event-Type", task.EventType)
	req.Header.Set("X-Delivery-ID", task.DeliveryID)
	req.Header.Set("X-Timestamp", time.Now().UTC().Format(time.RFC3339))
	if task.Webhook.Secret != "" {
		req.Header.Set("X-Signature-SHA256", Sign(task.Webhook.Secret, task.Payload))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func isSuccessStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return true
	}
	return false
}

func (m *Manager) persistAttempt(task *deliveryTask, status string, statusCode int, duration time.Duration, deliverErr error) {
	if m.store == nil {
		return
	}
	data := map[string]interface{}{
		"webhook_id":  task.Webhook.ID,
		"delivery_id": task.DeliveryID,
		"event_type":  task.EventType,
		"attempt":     task.Attempt,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	if deliverErr != nil {
		data["error"] = deliverErr.Error()
	}
	_, err := m.store.Append(context.Background(), store.KindDeliveryAttempt, &store.Record{
		Status: status,
		Data:   data,
	})
	if err != nil {
		m.logger.Error("failed to persist delivery attempt", map[string]interface{}{"error": err.Error()})
	}
}

func (m *Manager) recordStat(webhookID string, success bool, d time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats[webhookID] = append(m.stats[webhookID], attemptRecord{success: success, durationMs: d.Milliseconds(), at: time.Now()})
}

// Metrics is the periodic per-webhook aggregate (spec §4.5 step 4).
type Metrics struct {
	WebhookID     string  `json:"webhook_id"`
	AvgDeliveryMs float64 `json:"avg_delivery_ms"`
	SuccessRate   float64 `json:"success_rate"`
	ErrorRate     float64 `json:"error_rate"`
	Throughput    float64 `json:"throughput"`
}

func (m *Manager) metricsWorker() {
	ticker := time.NewTicker(m.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.aggregateMetrics()
		case <-m.stopped:
			return
		}
	}
}

func (m *Manager) aggregateMetrics() {
	cutoff := time.Now().Add(-time.Hour)
	m.statsMu.Lock()
	snapshot := make(map[string][]attemptRecord, len(m.stats))
	for id, records := range m.stats {
		kept := records[:0:0]
		for _, r := range records {
			if r.at.After(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			m.stats[id] = kept
			snapshot[id] = kept
		} else {
			delete(m.stats, id)
		}
	}
	m.statsMu.Unlock()

	for id, records := range snapshot {
		metrics := computeMetrics(id, records)
		if m.store == nil {
			continue
		}
		_, err := m.store.Append(context.Background(), store.KindWebhook, &store.Record{
			Status: "metrics_snapshot",
			Data: map[string]interface{}{
				"webhook_id":      metrics.WebhookID,
				"avg_delivery_ms": metrics.AvgDeliveryMs,
				"success_rate":    metrics.SuccessRate,
				"error_rate":      metrics.ErrorRate,
				"throughput":      metrics.Throughput,
			},
		})
		if err != nil {
			m.logger.Error("failed to persist webhook metrics", map[string]interface{}{"webhook_id": id, "error": err.Error()})
		}
	}
}

func computeMetrics(webhookID string, records []attemptRecord) Metrics {
	var successCount int
	var totalMs int64
	for _, r := range records {
		if r.success {
			successCount++
		}
		totalMs += r.durationMs
	}
	n := float64(len(records))
	return Metrics{
		WebhookID:     webhookID,
		AvgDeliveryMs: float64(totalMs) / n,
		SuccessRate:   float64(successCount) / n,
		ErrorRate:     1 - float64(successCount)/n,
		Throughput:    n, // deliveries in the trailing hour window
	}
}
