package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

const maxResponseBytes = 1 << 20

// HTTPOracle posts classification requests as JSON to a dedicated endpoint.
type HTTPOracle struct {
	endpoint   string
	apiKey     string
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	backoffFactory func() backoff.BackOff
}

// callError carries the outcome a failed attempt should be reported as.
type callError struct {
	outcome schemas.OracleOutcome
	err     error
}

func (e *callError) Error() string { return e.err.Error() }
func (e *callError) Unwrap() error { return e.err }

// NewHTTPOracle creates an oracle client for the configured endpoint.
func NewHTTPOracle(cfg config.OracleConfig, logger *zap.Logger) (*HTTPOracle, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &HTTPOracle{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.Named("oracle.http"),
		backoffFactory: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			// The caller's context deadline bounds the total.
			b.MaxElapsedTime = 0
			return b
		},
	}, nil
}

// Name identifies the backend.
func (o *HTTPOracle) Name() string { return "http" }

// Close releases idle connections.
func (o *HTTPOracle) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// Classify sends one request and validates the answer. Transport errors,
// 429 and 5xx responses are retried up to maxRetries times within the
// context deadline.
func (o *HTTPOracle) Classify(ctx context.Context, req schemas.OracleRequest) schemas.OracleResult {
	start := time.Now()
	result := o.classify(ctx, req)
	result.Latency = time.Since(start)
	return result
}

func (o *HTTPOracle) classify(ctx context.Context, req schemas.OracleRequest) schemas.OracleResult {
	body, err := json.Marshal(req)
	if err != nil {
		return schemas.OracleFailure(schemas.OracleTransportError, fmt.Errorf("failed to marshal oracle request: %w", err))
	}

	var resp *schemas.OracleResponse
	operation := func() error {
		// Wait fails early when the next token would arrive after the deadline.
		if err := o.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(&callError{schemas.OracleTimedOut, fmt.Errorf("rate limiter: %w", err)})
		}
		parsed, err := o.post(ctx, body)
		if err != nil {
			return err
		}
		resp = parsed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(o.backoffFactory(), uint64(o.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		o.logger.Debug("Oracle call failed, retrying.", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		outcome := outcomeFor(ctx, err)
		var ce *callError
		if outcome != schemas.OracleTimedOut && errors.As(err, &ce) {
			outcome = ce.outcome
		}
		o.logger.Warn("Oracle call failed.",
			zap.String("outcome", outcome.String()),
			zap.Int("steps", len(req.Steps)),
			zap.Error(err))
		return schemas.OracleFailure(outcome, err)
	}
	return schemas.OracleSuccess(resp)
}

// post performs a single attempt.
func (o *HTTPOracle) post(ctx context.Context, body []byte) (*schemas.OracleResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(&callError{schemas.OracleTransportError, fmt.Errorf("failed to create HTTP request: %w", err)})
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	httpResp, err := o.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, &callError{schemas.OracleTransportError, fmt.Errorf("oracle request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &callError{schemas.OracleTransportError, fmt.Errorf("failed to read oracle response: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		statusErr := &callError{schemas.OracleTransportError, fmt.Errorf("oracle returned status %d: %s", httpResp.StatusCode, truncate(respBody, 200))}
		switch httpResp.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, statusErr
		default:
			return nil, backoff.Permanent(statusErr)
		}
	}

	var doc any
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, backoff.Permanent(&callError{schemas.OracleInvalidResponse, fmt.Errorf("%w: %v", errMalformedResponse, err)})
	}
	parsed, err := validateResponse(doc)
	if err != nil {
		return nil, backoff.Permanent(&callError{schemas.OracleInvalidResponse, err})
	}
	return parsed, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
