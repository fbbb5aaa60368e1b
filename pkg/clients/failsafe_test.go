package clients

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go"
)

//nolint:bodyclose // test responses have no body
func TestNewHTTPRetryPolicy_NormalizesConfigToBoundRetries(t *testing.T) {
	policy := NewHTTPRetryPolicy(HTTPExecutorConfig{MaxRetries: -3})

	var attempts int32
	_, err := failsafe.With(policy).Get(func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("network partition")
	})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected single attempt with negative retries, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPExecutor_RetriesServerErrors(t *testing.T) {
	cfg := DefaultHTTPExecutorConfig("fetch")
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	executor := NewHTTPExecutor(cfg)

	var attempts int32
	resp, err := ExecuteHTTP(context.Background(), executor, func() (*http.Response, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return &http.Response{StatusCode: http.StatusBadGateway}, nil
		}
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

//nolint:bodyclose // test responses have no body
func TestNewHTTPExecutor_NeverRetry(t *testing.T) {
	cfg := DefaultHTTPExecutorConfig("mutate")
	cfg.ShouldRetry = NeverRetry
	executor := NewHTTPExecutor(cfg)

	var attempts int32
	resp, err := ExecuteHTTP(context.Background(), executor, func() (*http.Response, error) {
		atomic.AddInt32(&attempts, 1)
		return &http.Response{StatusCode: http.StatusConflict}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusConflict || atomic.LoadInt32(&attempts) != 1 {
		t.Fatalf("expected a single 409 attempt")
	}
}

func TestNewReconnectExecutor_BoundedAttempts(t *testing.T) {
	executor := NewReconnectExecutor(ReconnectConfig{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3})

	var attempts int32
	err := executor.WithContext(context.Background()).Run(func() error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("dial refused")
	})
	if err == nil {
		t.Fatal("expected failure after attempts are exhausted")
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}
