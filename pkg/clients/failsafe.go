package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// DefaultShouldRetry determines if an HTTP request should be retried.
// Retries on network errors, server errors (5xx), and rate limits (429).
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// NeverRetry is used for non-idempotent calls such as mutations.
func NeverRetry(*http.Response, error) bool { return false }

// HTTPExecutorConfig configures the HTTP executor
type HTTPExecutorConfig struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// ShouldRetry determines if a response should trigger a retry
	ShouldRetry func(resp *http.Response, err error) bool

	// BreakerThreshold failures out of BreakerWindow calls open the circuit.
	// Zero disables the breaker.
	BreakerThreshold uint
	BreakerWindow    uint
	BreakerDelay     time.Duration

	Logger logging.Logger
}

// DefaultHTTPExecutorConfig returns sensible defaults for paged reads.
func DefaultHTTPExecutorConfig(name string) HTTPExecutorConfig {
	return HTTPExecutorConfig{
		Name:             name,
		MaxRetries:       2,
		BaseDelay:        100 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		ShouldRetry:      DefaultShouldRetry,
		BreakerThreshold: 5,
		BreakerWindow:    10,
		BreakerDelay:     15 * time.Second,
	}
}

func normalizeHTTPExecutorConfig(cfg HTTPExecutorConfig) HTTPExecutorConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	if cfg.BreakerWindow < cfg.BreakerThreshold {
		cfg.BreakerWindow = cfg.BreakerThreshold
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = 15 * time.Second
	}
	return cfg
}

// NewHTTPRetryPolicy creates a retry policy for HTTP requests
//
//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func NewHTTPRetryPolicy(cfg HTTPExecutorConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = normalizeHTTPExecutorConfig(cfg)
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(cfg.ShouldRetry).
		Build()
}

// NewHTTPExecutor creates a failsafe executor combining the retry policy and,
// when configured, a circuit breaker counting errors and 5xx responses.
//
//nolint:bodyclose // false positive: [*http.Response] is a generic type parameter, not an actual response
func NewHTTPExecutor(cfg HTTPExecutorConfig) failsafe.Executor[*http.Response] {
	cfg = normalizeHTTPExecutorConfig(cfg)
	retry := NewHTTPRetryPolicy(cfg)
	if cfg.BreakerThreshold == 0 {
		return failsafe.With(retry)
	}

	builder := circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(cfg.BreakerThreshold, cfg.BreakerWindow).
		WithDelay(cfg.BreakerDelay).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		})
	if cfg.Logger != nil {
		name := cfg.Name
		logger := cfg.Logger
		builder = builder.OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.WithFields(logging.Fields{
				"circuit_breaker": name,
				"from_state":      stateName(e.OldState),
				"to_state":        stateName(e.NewState),
			}).Warn("circuit breaker state change")
		})
	}
	return failsafe.With[*http.Response](retry, builder.Build())
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}

// ExecuteHTTP runs an HTTP request through the executor
func ExecuteHTTP(ctx context.Context, executor failsafe.Executor[*http.Response], fn func() (*http.Response, error)) (*http.Response, error) {
	return executor.WithContext(ctx).Get(fn)
}

// ReconnectConfig configures redial backoff for long-lived connections.
type ReconnectConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds redials; zero or negative means unbounded.
	MaxAttempts int
}

// NewReconnectExecutor returns an executor that retries fn with exponential
// backoff until it succeeds, attempts run out, or the context ends.
func NewReconnectExecutor(cfg ReconnectConfig) failsafe.Executor[any] {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 30 * time.Second
	}
	maxRetries := -1
	if cfg.MaxAttempts > 0 {
		maxRetries = cfg.MaxAttempts - 1
	}
	policy := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(maxRetries).
		WithJitterFactor(0.2).
		Build()
	return failsafe.With[any](policy)
}
