package services

import (
  "context"
  "errors"
  "net/http"
  "net/http/httptest"
  "testing"
  "time"
)

func TestIsRetryableErr_Classification(t *testing.T) {
  if isRetryableErr(nil) {
    t.Fatalf("nil must not be retryable")
  }
  if isRetryableErr(context.Canceled) {
    t.Fatalf("cancellation must not be retryable")
  }
  if !isRetryableErr(context.DeadlineExceeded) {
    t.Fatalf("attempt timeout must be retryable")
  }
  if !isRetryableErr(&modelHTTPError{StatusCode: 429}) {
    t.Fatalf("429 must be retryable")
  }
  if !isRetryableErr(&modelHTTPError{StatusCode: 503}) {
    t.Fatalf("503 must be retryable")
  }
  if isRetryableErr(&modelHTTPError{StatusCode: 400}) {
    t.Fatalf("400 must not be retryable")
  }
}

func retryTestClient(t *testing.T, srv *httptest.Server, maxRetries int) *modelClient {
  t.Helper()
  return &modelClient{
    log:        testLogger(t).With("service", "ModelClient"),
    baseURL:    srv.URL,
    apiKey:     "test-key",
    model:      "gpt-4o",
    httpClient: srv.Client(),
    maxRetries: maxRetries,
  }
}

func TestDo_CanceledBeforeCallReturnsImmediately(t *testing.T) {
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    t.Errorf("no request should reach the server")
  }))
  defer srv.Close()

  ctx, cancel := context.WithCancel(context.Background())
  cancel()

  client := retryTestClient(t, srv, 3)
  err := client.do(ctx, "POST", "/v1/chat/completions", nil, nil)
  if !errors.Is(err, context.Canceled) {
    t.Fatalf("expected context.Canceled, got %v", err)
  }
}

func TestDo_CancellationCutsBackoffShort(t *testing.T) {
  srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
    w.WriteHeader(http.StatusInternalServerError)
  }))
  defer srv.Close()

  ctx, cancel := context.WithCancel(context.Background())
  go func() {
    time.Sleep(50 * time.Millisecond)
    cancel()
  }()

  client := retryTestClient(t, srv, 3)
  start := time.Now()
  err := client.do(ctx, "POST", "/v1/chat/completions", nil, nil)
  elapsed := time.Since(start)

  if !errors.Is(err, context.Canceled) {
    t.Fatalf("expected context.Canceled, got %v", err)
  }
  // The first backoff is ~1s jittered; cancellation must not wait it out.
  if elapsed > 800*time.Millisecond {
    t.Fatalf("cancellation waited out the backoff: %s", elapsed)
  }
}
