package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/pkg/store"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	a := CanonicalJSON(map[string]interface{}{"b": 1, "a": 2})
	b := CanonicalJSON(map[string]interface{}{"a": 2, "b": 1})
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":2,"b":1}`, string(a))
}

func TestSignIsDeterministic(t *testing.T) {
	payload := map[string]interface{}{"event": "x"}
	assert.Equal(t, Sign("secret", payload), Sign("secret", payload))
	assert.NotEqual(t, Sign("secret", payload), Sign("other", payload))
}

func TestByEventTypeMatchesAllWildcardAndActiveOnly(t *testing.T) {
	r := NewRegistry()
	w1 := r.Register("http://a", "", []string{"all"})
	w2 := r.Register("http://b", "", []string{"task_completed"})
	r.Register("http://c", "", []string{"other"})
	r.Deactivate(w2.ID)

	matched := r.ByEventType("task_completed", nil)
	ids := map[string]bool{}
	for _, w := range matched {
		ids[w.ID] = true
	}
	assert.True(t, ids[w1.ID])
	assert.False(t, ids[w2.ID])
}

type receivedRequest struct {
	headers http.Header
	body    []byte
}

func TestDeliverySucceedsAndSignsWhenSecretPresent(t *testing.T) {
	var mu sync.Mutex
	var received []receivedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		mu.Lock()
		received = append(received, receivedRequest{headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := NewRegistry()
	wh := registry.Register(server.URL, "supersecret", []string{"all"})
	es := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Retry.InitialDelay = 10 * time.Millisecond
	m := NewManager(cfg, registry, es)
	defer m.Close()

	require.NoError(t, m.Send(context.Background(), "task_completed", map[string]interface{}{"task_id": "t1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	req := received[0]
	mu.Unlock()
	assert.Equal(t, wh.ID, req.headers.Get("X-Webhook-ID"))
	assert.Equal(t, "task_completed", req.headers.Get("X-Event-Type"))
	assert.NotEmpty(t, req.headers.Get("X-Delivery-ID"))
	assert.Contains(t, req.headers.Get("X-Signature-SHA256"), "sha256=")

	got, ok := registry.Get(wh.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.TotalDeliveries)
	assert.Equal(t, int64(1), got.SuccessfulDeliveries)
	assert.Equal(t, int64(0), got.FailedDeliveries)
	assert.False(t, got.LastDeliveryAt.IsZero())
}

func TestDeliveryRetriesOnFailureThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := NewRegistry()
	registry.Register(server.URL, "", []string{"all"})
	es := store.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Retry.InitialDelay = 10 * time.Millisecond
	cfg.Retry.Jitter = false
	m := NewManager(cfg, registry, es)
	defer m.Close()

	require.NoError(t, m.Send(context.Background(), "task_completed", map[string]interface{}{"task_id": "t1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDeliveryDisablesWebhookOn410(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	registry := NewRegistry()
	wh := registry.Register(server.URL, "", []string{"all"})
	es := store.NewMemoryStore()
	m := NewManager(DefaultConfig(), registry, es)
	defer m.Close()

	require.NoError(t, m.Send(context.Background(), "task_completed", map[string]interface{}{}))

	require.Eventually(t, func() bool {
		got, _ := registry.Get(wh.ID)
		return !got.Active
	}, time.Second, 5*time.Millisecond)

	got, _ := registry.Get(wh.ID)
	assert.Equal(t, int64(1), got.TotalDeliveries)
	assert.Equal(t, int64(0), got.SuccessfulDeliveries)
	assert.Equal(t, int64(1), got.FailedDeliveries)
}

func TestSendReturnsBackpressureWhenQueueFull(t *testing.T) {
	// Built directly (not via NewManager) so no worker goroutines drain
	// the queue, letting a single-slot buffer fill deterministically.
	registry := NewRegistry()
	registry.Register("http://example.invalid", "", []string{"all"})
	m := &Manager{registry: registry, ingress: make(chan *deliveryTask, 1)}

	require.NoError(t, m.Send(context.Background(), "task_completed", map[string]interface{}{}))
	err := m.Send(context.Background(), "task_completed", map[string]interface{}{})
	require.Error(t, err)
}

func TestAggregateMetricsComputesRatesAndPersists(t *testing.T) {
	registry := NewRegistry()
	wh := registry.Register("http://example.invalid", "", []string{"all"})
	es := store.NewMemoryStore()
	m := NewManager(DefaultConfig(), registry, es)
	defer m.Close()

	m.recordStat(wh.ID, true, 10*time.Millisecond)
	m.recordStat(wh.ID, false, 20*time.Millisecond)
	m.aggregateMetrics()

	records, err := es.Query(context.Background(), store.KindWebhook, store.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "metrics_snapshot", records[0].Status)
	assert.Equal(t, 0.5, records[0].Data["success_rate"])
}
