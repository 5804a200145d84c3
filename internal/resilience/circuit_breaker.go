package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corewire/taskmesh/internal/corekit"
)

// CircuitState is one of closed, open, half-open.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	ErrorThreshold   float64       // error rate (0..1) that trips the breaker
	VolumeThreshold  int           // minimum requests before ErrorThreshold is evaluated
	SleepWindow      time.Duration // time open before trying half-open
	HalfOpenRequests int           // trial requests allowed while half-open
	SuccessThreshold float64       // success rate among trial requests needed to close
	WindowSize       time.Duration
	BucketCount      int
	Logger           corekit.Logger
}

// DefaultCircuitBreakerConfig mirrors production defaults: trip at 50%
// errors once at least 10 requests have been seen, recover after 30s.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		ErrorThreshold:   0.5,
		VolumeThreshold:  10,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 5,
		SuccessThreshold: 0.6,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		Logger:           corekit.NoOpLogger{},
	}
}

// CircuitBreaker implements the standard closed/open/half-open state
// machine over a SlidingWindow of recent outcomes.
type CircuitBreaker struct {
	config *CircuitBreakerConfig
	window *SlidingWindow
	logger corekit.Logger

	mu             sync.Mutex
	state          CircuitState
	stateChangedAt time.Time

	halfOpenInFlight atomic.Int32
	halfOpenSuccess  atomic.Int32
	halfOpenFailure  atomic.Int32
}

// NewCircuitBreaker builds a breaker named by config.Name. A nil config
// falls back to DefaultCircuitBreakerConfig("default").
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("default")
	}
	if config.WindowSize == 0 {
		config.WindowSize = 60 * time.Second
	}
	if config.BucketCount == 0 {
		config.BucketCount = 10
	}
	if config.Logger == nil {
		config.Logger = corekit.NoOpLogger{}
	}
	return &CircuitBreaker{
		config:         config,
		window:         NewSlidingWindow(config.WindowSize, config.BucketCount),
		logger:         corekit.WithComponent(config.Logger, "resilience.circuit_breaker"),
		state:          StateClosed,
		stateChangedAt: time.Now(),
	}
}

// CanExecute reports whether a new call may proceed right now.
func (cb *CircuitBreaker) CanExecute() bool {
	switch cb.currentState() {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenInFlight.Load() < int32(cb.config.HalfOpenRequests)
	default:
		return false
	}
}

func (cb *CircuitBreaker) currentState() CircuitState {
	cb.mu.Lock()
	state := cb.state
	changedAt := cb.stateChangedAt
	cb.mu.Unlock()

	if state == StateOpen && time.Since(changedAt) >= cb.config.SleepWindow {
		cb.transition(StateOpen, StateHalfOpen)
		return StateHalfOpen
	}
	return state
}

func (cb *CircuitBreaker) transition(from, to CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != from {
		return
	}
	cb.state = to
	cb.stateChangedAt = time.Now()
	if to == StateHalfOpen {
		cb.halfOpenInFlight.Store(0)
		cb.halfOpenSuccess.Store(0)
		cb.halfOpenFailure.Store(0)
	}
	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.config.Name, "from": from.String(), "to": to.String(),
	})
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

// ExecuteWithTimeout runs fn under an optional timeout, recording the
// outcome against the sliding window and half-open trial counters.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	state := cb.currentState()
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker %q is open: %w", cb.config.Name, corekit.ErrAdapterUnavailable)
	}

	if state == StateHalfOpen {
		cb.halfOpenInFlight.Add(1)
		defer cb.halfOpenInFlight.Add(-1)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	var err error
	select {
	case <-runCtx.Done():
		err = runCtx.Err()
	case err = <-errCh:
	}

	cb.recordOutcome(state, err)
	return err
}

func (cb *CircuitBreaker) recordOutcome(state CircuitState, err error) {
	if err == nil {
		cb.window.RecordSuccess()
		if state == StateHalfOpen {
			successes := cb.halfOpenSuccess.Add(1)
			total := successes + cb.halfOpenFailure.Load()
			if total >= int32(cb.config.HalfOpenRequests) {
				if float64(successes)/float64(total) >= cb.config.SuccessThreshold {
					cb.transition(StateHalfOpen, StateClosed)
					cb.window.Reset()
				} else {
					cb.transition(StateHalfOpen, StateOpen)
				}
			}
		}
		return
	}

	cb.window.RecordFailure()
	if state == StateHalfOpen {
		cb.halfOpenFailure.Add(1)
		cb.transition(StateHalfOpen, StateOpen)
		return
	}

	total := cb.window.Total()
	if int(total) >= cb.config.VolumeThreshold && cb.window.ErrorRate() >= cb.config.ErrorThreshold {
		cb.transition(StateClosed, StateOpen)
	}
}

// GetState returns the breaker's current state as a string.
func (cb *CircuitBreaker) GetState() string {
	return cb.currentState().String()
}

// Reset forces the breaker back to closed with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.state = StateClosed
	cb.stateChangedAt = time.Now()
	cb.mu.Unlock()
	cb.window.Reset()
}

var _ corekit.CircuitBreaker = (*CircuitBreaker)(nil)
