package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewire/taskmesh/pkg/endtask"
	"github.com/corewire/taskmesh/pkg/notification"
	"github.com/corewire/taskmesh/pkg/schema"
	"github.com/corewire/taskmesh/pkg/security"
	"github.com/corewire/taskmesh/pkg/store"
	"github.com/corewire/taskmesh/pkg/taskapi"
	"github.com/corewire/taskmesh/pkg/webhook"
)

// newTestServer wires the same component graph as run(), minus Redis
// and telemetry, and returns an httptest.Server exercising the real
// route table via registerRoutes.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	es := store.NewMemoryStore()
	t.Cleanup(func() { es.Close() })

	secManager := security.NewManager()
	secManager.Grant(&security.Permission{
		UserID:    "orchestrator-1",
		Roles:     map[string]struct{}{"user": {}},
		Clearance: security.ClearanceStandard,
	})

	webhookRegistry := webhook.NewRegistry()
	webhookManager := webhook.NewManager(webhook.Config{
		Workers:      1,
		Retry:        webhook.DefaultRetryPolicy(),
		TotalTimeout: 5 * time.Second,
	}, webhookRegistry, es)
	t.Cleanup(webhookManager.Close)

	notifProtocol := notification.NewProtocol(notification.DefaultConfig(), es)
	hub := notification.NewHub(notifProtocol, nil, nil)
	notifProtocol.SetBroadcaster(hub)

	endtaskManager := endtask.NewManager(es, webhookManager, notifProtocol, nil)
	taskManager := taskapi.NewManager(es, notifProtocol, nil)

	mux := http.NewServeMux()
	registerRoutes(mux, routeDeps{
		taskManager:     taskManager,
		security:        secManager,
		notifProtocol:   notifProtocol,
		hub:             hub,
		webhookRegistry: webhookRegistry,
		webhookStore:    es,
		endtaskManager:  endtaskManager,
		startedAt:       time.Now(),
	})

	srv := httptest.NewServer(withResponseHeaders(mux))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthReportsOK(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apiVersion, resp.Header.Get("X-API-Version"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Duration"))

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestSchemaCatalogListsAllPayloadKinds(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/schemas")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Schemas map[string]map[string]interface{} `json:"schemas"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Schemas, string(schema.KindTaskExecution))
	assert.Contains(t, body.Schemas, string(schema.KindAgentEndTask))
}

func TestSchemaByTypeUnknownReturns404(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/schemas/not_a_real_type")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTaskSubmitThenStatusRoundTrips(t *testing.T) {
	srv := newTestServer(t)

	task := schema.TaskExecution{
		TaskID:      "t-1",
		TaskType:    schema.TaskTypeCodeGeneration,
		Description: "generate a parser",
		Priority:    schema.PriorityNormal,
		OrchestratorInfo: schema.OrchestratorInfo{
			AgentID:   "orchestrator-1",
			Timestamp: "2026-01-01T00:00:00Z",
		},
	}
	body, err := json.Marshal(task)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/v1/tasks", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted struct {
		ExecutionID string `json:"execution_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.ExecutionID)

	statusResp, err := http.Get(srv.URL + "/api/v1/tasks/" + submitted.ExecutionID + "/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)

	var task2 struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&task2))
	assert.Equal(t, "pending", task2.Status)
}

func TestTaskSubmitDeniesUnknownAgent(t *testing.T) {
	srv := newTestServer(t)

	task := schema.TaskExecution{
		TaskID:      "t-2",
		TaskType:    schema.TaskTypeCodeGeneration,
		Description: "generate a parser",
		Priority:    schema.PriorityNormal,
		OrchestratorInfo: schema.OrchestratorInfo{
			AgentID:   "unregistered-agent",
			Timestamp: "2026-01-01T00:00:00Z",
		},
	}
	body, err := json.Marshal(task)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/v1/tasks", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhookRegisterAndUnregister(t *testing.T) {
	srv := newTestServer(t)

	reg := map[string]interface{}{
		"url":         "https://example.com/hook",
		"event_types": []string{"task_completed"},
	}
	body, err := json.Marshal(reg)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/v1/webhooks", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/webhooks/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// Unregistering again should now 404: extractID must have parsed the
	// /api/v1/webhooks/{id} path correctly the first time.
	delResp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, delResp2.StatusCode)
}

func TestMethodNotAllowedOnTasksCollection(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
