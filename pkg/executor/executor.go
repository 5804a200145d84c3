// Package executor implements the Execution Engine (spec §4.8): the
// hot path that turns `execute(action_name, input, user_id)` into a
// security-checked, rate-limited, retried adapter invocation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
	"github.com/corewire/taskmesh/internal/resilience"
	"github.com/corewire/taskmesh/pkg/actions"
	"github.com/corewire/taskmesh/pkg/audit"
	"github.com/corewire/taskmesh/pkg/security"
	"github.com/corewire/taskmesh/pkg/store"
)

// Status is the closed set of ExecutionContext states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Adapter invokes one action against its downstream system. Adapters
// are resolved by identifier at execution time (spec §4.7); a missing
// binding is ErrAdapterUnavailable, never a silent fallback.
type Adapter interface {
	Invoke(ctx context.Context, actionName string, input map[string]interface{}) (map[string]interface{}, error)
}

// AdapterResolver looks up an Adapter by the registry's adapter id.
type AdapterResolver interface {
	Resolve(adapterID string) (Adapter, bool)
}

// ExecutionContext is the single mutable record an owning driver
// goroutine advances through its state machine; every other reader
// must go through the engine's accessors, which clone before returning.
type ExecutionContext struct {
	ID            string
	ActionName    string
	UserID        string
	Input         map[string]interface{}
	Status        Status
	Result        map[string]interface{}
	Error         string
	RetryAttempts int
	CreatedAt     time.Time
	StartedAt     time.Time
	CompletedAt   time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *ExecutionContext) snapshot() *ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *c
	clone.cancel = nil
	return &clone
}

func (c *ExecutionContext) setStatus(s Status) {
	c.mu.Lock()
	c.Status = s
	c.mu.Unlock()
}

// Config tunes the engine's concurrency and timeout defaults.
type Config struct {
	MaxConcurrency     int
	DefaultStepTimeout time.Duration
	GlobalRateWindow   time.Duration
	Logger             corekit.Logger
}

// DefaultConfig matches spec §4.8/§5 defaults: 30s adapter timeout,
// 1-minute global per-action rate window.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:     8,
		DefaultStepTimeout: 30 * time.Second,
		GlobalRateWindow:   time.Minute,
		Logger:             corekit.NoOpLogger{},
	}
}

// Engine is the execution driver. One Engine serves every execute()
// call concurrently, bounded by a semaphore.
type Engine struct {
	cfg       Config
	registry  *actions.Registry
	security  *security.Manager
	store     store.EventStore
	audit     *audit.Logger
	adapters  AdapterResolver
	logger    corekit.Logger
	semaphore chan struct{}

	mu         sync.RWMutex
	executions map[string]*ExecutionContext
	seq        uint64

	globalWindows map[string]*resilience.SlidingWindow
	windowsMu     sync.Mutex

	metrics *metrics
}

// NewEngine wires the engine to its collaborators. adapters may be nil
// until adapters are registered; an unresolved adapter id at execution
// time fails the action with ErrAdapterUnavailable regardless.
func NewEngine(cfg Config, registry *actions.Registry, sec *security.Manager, es store.EventStore, auditLogger *audit.Logger, adapters AdapterResolver) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.DefaultStepTimeout <= 0 {
		cfg.DefaultStepTimeout = 30 * time.Second
	}
	if cfg.GlobalRateWindow <= 0 {
		cfg.GlobalRateWindow = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = corekit.NoOpLogger{}
	}
	return &Engine{
		cfg:           cfg,
		registry:      registry,
		security:      sec,
		store:         es,
		audit:         auditLogger,
		adapters:      adapters,
		logger:        corekit.WithComponent(cfg.Logger, "executor.engine"),
		semaphore:     make(chan struct{}, cfg.MaxConcurrency),
		executions:    make(map[string]*ExecutionContext),
		globalWindows: make(map[string]*resilience.SlidingWindow),
		metrics:       newMetrics(),
	}
}

func (e *Engine) nextID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return fmt.Sprintf("exec-%d-%d", time.Now().UnixNano(), e.seq)
}

func (e *Engine) globalWindow(actionName string) *resilience.SlidingWindow {
	e.windowsMu.Lock()
	defer e.windowsMu.Unlock()
	w, ok := e.globalWindows[actionName]
	if !ok {
		w = resilience.NewSlidingWindow(time.Minute, 12)
		e.globalWindows[actionName] = w
	}
	return w
}

// Execute kicks off action_name's pipeline for input on behalf of
// userID and returns its execution_id immediately; the pipeline runs
// to completion (or cancellation) on its own goroutine, pollable via
// Status and cancellable via Cancel.
func (e *Engine) Execute(ctx context.Context, actionName string, input map[string]interface{}, userID string) (string, error) {
	def, ok := e.registry.Get(actionName)
	if !ok {
		return "", fmt.Errorf("executor: %w: action %s not registered", corekit.ErrAdapterUnavailable, actionName)
	}

	execCtx := &ExecutionContext{
		ID:         e.nextID(),
		ActionName: actionName,
		UserID:     userID,
		Input:      input,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	runCtx, cancel := context.WithCancel(context.Background())
	execCtx.cancel = cancel

	e.mu.Lock()
	e.executions[execCtx.ID] = execCtx
	e.mu.Unlock()

	go e.drive(runCtx, execCtx, def)

	return execCtx.ID, nil
}

func (e *Engine) drive(ctx context.Context, execCtx *ExecutionContext, def *actions.Definition) {
	select {
	case e.semaphore <- struct{}{}:
	case <-ctx.Done():
		execCtx.setStatus(StatusCancelled)
		return
	}
	defer func() { <-e.semaphore }()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("execution panicked", map[string]interface{}{
				"execution_id": execCtx.ID, "panic": fmt.Sprintf("%v", r), "stack": string(debug.Stack()),
			})
			execCtx.mu.Lock()
			execCtx.Status = StatusFailed
			execCtx.Error = fmt.Sprintf("panic: %v", r)
			execCtx.CompletedAt = time.Now().UTC()
			execCtx.mu.Unlock()
			e.metrics.record(execCtx.ActionName, StatusFailed, time.Since(execCtx.StartedAt))
		}
	}()

	needed := security.ClearanceStandard
	if def.SecurityLevel != "" {
		needed = security.Clearance(def.SecurityLevel)
	}

	// Step 2: security check (role/clearance/rate, approval gate).
	if err := e.security.CheckPermission(ctx, execCtx.UserID, execCtx.ActionName, needed); err != nil {
		e.fail(ctx, execCtx, "permission_denied", err)
		return
	}
	if e.security.RequireApproval(execCtx.ActionName) && !e.security.Approvals().CheckApprovalStatus(execCtx.ActionName, execCtx.Input) {
		e.fail(ctx, execCtx, "approval_missing", fmt.Errorf("executor: %w: %s requires approval", corekit.ErrApprovalRequired, execCtx.ActionName))
		return
	}

	// Step 3: global per-action rate limit, independent of the user limit.
	window := e.globalWindow(execCtx.ActionName)
	limit := def.RateLimit
	if limit <= 0 {
		limit = 10
	}
	if window.Total() >= uint64(limit) {
		e.fail(ctx, execCtx, "permission_denied", fmt.Errorf("executor: %w: global rate limit exceeded for %s", corekit.ErrBackpressure, execCtx.ActionName))
		return
	}
	window.RecordSuccess()

	// Step 4: input sanitization.
	if err := security.SanitizeInput(execCtx.Input); err != nil {
		e.fail(ctx, execCtx, "permission_denied", fmt.Errorf("executor: %w: %v", corekit.ErrValidation, err))
		return
	}

	e.runWithRetry(ctx, execCtx, def)
}

func (e *Engine) runWithRetry(ctx context.Context, execCtx *ExecutionContext, def *actions.Definition) {
	retryCount := def.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	timeout := time.Duration(def.Timeout) * time.Second
	if timeout <= 0 {
		timeout = e.cfg.DefaultStepTimeout
	}

	for {
		// Step 5: transition running, emit start audit.
		execCtx.mu.Lock()
		execCtx.Status = StatusRunning
		execCtx.StartedAt = time.Now().UTC()
		execCtx.mu.Unlock()
		e.emitAudit(ctx, "action_execution_start", audit.LevelInfo, execCtx, nil)

		result, err := e.invoke(ctx, execCtx, def, timeout)

		if err == nil {
			execCtx.mu.Lock()
			execCtx.Status = StatusCompleted
			execCtx.Result = result
			execCtx.CompletedAt = time.Now().UTC()
			execCtx.mu.Unlock()
			e.emitAudit(ctx, "action_execution_completed", audit.LevelInfo, execCtx, safeFields(result))
			e.metrics.record(execCtx.ActionName, StatusCompleted, execCtx.CompletedAt.Sub(execCtx.StartedAt))
			return
		}

		if ctx.Err() != nil {
			// The execution itself (not just this attempt's deadline) was
			// cancelled — a shutdown or explicit Cancel, not a failure.
			execCtx.mu.Lock()
			execCtx.Status = StatusCancelled
			execCtx.Error = err.Error()
			execCtx.CompletedAt = time.Now().UTC()
			execCtx.mu.Unlock()
			e.metrics.record(execCtx.ActionName, StatusCancelled, execCtx.CompletedAt.Sub(execCtx.StartedAt))
			return
		}

		timedOut := errors.Is(err, corekit.ErrTimeout)
		status := StatusFailed
		if timedOut {
			status = StatusTimeout
		}

		if corekit.IsTerminal(err) || execCtx.RetryAttempts >= retryCount {
			execCtx.mu.Lock()
			execCtx.Status = status
			execCtx.Error = err.Error()
			execCtx.CompletedAt = time.Now().UTC()
			execCtx.mu.Unlock()
			e.emitAudit(ctx, "action_execution_error", audit.LevelError, execCtx, map[string]interface{}{"error": err.Error()})
			e.metrics.record(execCtx.ActionName, status, execCtx.CompletedAt.Sub(execCtx.StartedAt))
			return
		}

		// Step 8/9: retry with exponential backoff, 2^retry_attempts seconds.
		delay := time.Duration(1<<uint(execCtx.RetryAttempts)) * time.Second
		execCtx.mu.Lock()
		execCtx.RetryAttempts++
		execCtx.mu.Unlock()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			execCtx.mu.Lock()
			execCtx.Status = StatusCancelled
			execCtx.CompletedAt = time.Now().UTC()
			execCtx.mu.Unlock()
			e.metrics.record(execCtx.ActionName, StatusCancelled, execCtx.CompletedAt.Sub(execCtx.StartedAt))
			return
		}
	}
}

func (e *Engine) invoke(ctx context.Context, execCtx *ExecutionContext, def *actions.Definition, timeout time.Duration) (map[string]interface{}, error) {
	if e.adapters == nil {
		return nil, fmt.Errorf("executor: %w: no adapter resolver configured", corekit.ErrAdapterUnavailable)
	}
	adapter, ok := e.adapters.Resolve(def.AdapterID)
	if !ok {
		return nil, fmt.Errorf("executor: %w: adapter %s not available", corekit.ErrAdapterUnavailable, def.AdapterID)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result map[string]interface{}
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		result, err := adapter.Invoke(callCtx, execCtx.ActionName, execCtx.Input)
		ch <- outcome{result, err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("executor: %w", corekit.ErrCancelled)
		}
		return nil, fmt.Errorf("executor: %w", corekit.ErrTimeout)
	}
}

func (e *Engine) fail(ctx context.Context, execCtx *ExecutionContext, auditType string, err error) {
	execCtx.mu.Lock()
	execCtx.Status = StatusFailed
	execCtx.Error = err.Error()
	execCtx.CompletedAt = time.Now().UTC()
	execCtx.mu.Unlock()
	e.emitAudit(ctx, auditType, audit.LevelWarning, execCtx, map[string]interface{}{"error": err.Error()})
	e.metrics.record(execCtx.ActionName, StatusFailed, 0)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, level audit.Level, execCtx *ExecutionContext, extra map[string]interface{}) {
	if e.audit == nil {
		return
	}
	data := map[string]interface{}{"action_name": execCtx.ActionName}
	for k, v := range extra {
		data[k] = v
	}
	_, _ = e.audit.Log(ctx, eventType, level, data, execCtx.UserID, execCtx.ActionName, execCtx.ID)
}

// safeFields whitelists the fields safe to audit from an adapter
// result — never raw secrets.
func safeFields(result map[string]interface{}) map[string]interface{} {
	if result == nil {
		return nil
	}
	safe := make(map[string]interface{})
	for _, key := range []string{"status", "id", "url"} {
		if v, ok := result[key]; ok {
			safe[key] = v
		}
	}
	return safe
}

// Status returns a snapshot of the execution, or nil if unknown.
func (e *Engine) Status(executionID string) *ExecutionContext {
	e.mu.RLock()
	execCtx, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	return execCtx.snapshot()
}

// Cancel marks an active execution cancelled at its next safe
// checkpoint; the caller is responsible for verifying clearance before
// calling this.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	execCtx, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("executor: %w: execution %s not found", corekit.ErrNotFound, executionID)
	}
	execCtx.mu.Lock()
	cancel := execCtx.cancel
	execCtx.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Metrics returns a point-in-time view of execution counts and timing.
func (e *Engine) Metrics() Snapshot {
	return e.metrics.snapshot()
}

// metrics aggregates counts-by-status, success rate, average duration,
// and top-N actions across every execution the engine has driven.
type metrics struct {
	mu           sync.Mutex
	byStatus     map[Status]int64
	byAction     map[string]int64
	totalSuccess int64
	totalCount   int64
	totalMillis  int64
}

func newMetrics() *metrics {
	return &metrics{byStatus: make(map[Status]int64), byAction: make(map[string]int64)}
}

func (m *metrics) record(actionName string, status Status, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byStatus[status]++
	m.byAction[actionName]++
	m.totalCount++
	if status == StatusCompleted {
		m.totalSuccess++
	}
	m.totalMillis += duration.Milliseconds()
}

// Snapshot is the read-only metrics view (spec §4.8's "observable metrics").
type Snapshot struct {
	CountsByStatus map[Status]int64
	SuccessRate    float64
	AvgDurationMs  float64
	TopActions     []ActionCount
}

// ActionCount pairs an action name with its execution count.
type ActionCount struct {
	Name  string
	Count int64
}

func (m *metrics) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[Status]int64, len(m.byStatus))
	for k, v := range m.byStatus {
		counts[k] = v
	}

	var successRate, avgMs float64
	if m.totalCount > 0 {
		successRate = float64(m.totalSuccess) / float64(m.totalCount)
		avgMs = float64(m.totalMillis) / float64(m.totalCount)
	}

	top := make([]ActionCount, 0, len(m.byAction))
	for name, count := range m.byAction {
		top = append(top, ActionCount{Name: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > 10 {
		top = top[:10]
	}

	return Snapshot{CountsByStatus: counts, SuccessRate: successRate, AvgDurationMs: avgMs, TopActions: top}
}
