package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. Domain
// adapters use one wrapper per backing service.
type HTTPWrapper struct {
	client *http.Client
	cb     *CircuitBreaker
	name   string
	logger *zap.Logger
}

// NewHTTPWrapper creates a breaker-protected HTTP client.
func NewHTTPWrapper(client *http.Client, name string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	cb := New(name, HTTPProfile(), logger)
	return &HTTPWrapper{client: client, cb: cb, name: name, logger: logger}
}

// Do executes the request through the breaker. 5xx responses count as
// breaker failures but are still returned to the caller; 4xx do not
// trip the breaker.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var callErr error
		resp, callErr = hw.client.Do(req)
		if callErr != nil {
			return callErr
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})
	recordRequest(hw.name, err == nil)

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// State exposes the breaker state for health checks.
func (hw *HTTPWrapper) State() State {
	return hw.cb.State()
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
