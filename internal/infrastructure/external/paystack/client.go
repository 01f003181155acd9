// Package paystack implements the enrollment.Gateway port against the
// Paystack transaction API.
package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/pkg/circuitbreaker"
	"github.com/ndmx/upscale/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DefaultBaseURL is the production Paystack API.
const DefaultBaseURL = "https://api.paystack.co"

// ClientConfig contains configuration for the Paystack client.
type ClientConfig struct {
	// BaseURL is the Paystack API base URL.
	BaseURL string

	// SecretKey is sent as a Bearer token.
	SecretKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// RequestsPerSecond and Burst shape outbound traffic.
	RequestsPerSecond float64
	Burst             int

	// Breaker guards both endpoints. Defaults to circuitbreaker.GatewayBreaker.
	Breaker *circuitbreaker.CircuitBreaker

	// RetryOptions apply to Verify only. Defaults to retry.GatewayOptions.
	RetryOptions []retry.Option

	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(secretKey string) ClientConfig {
	return ClientConfig{
		BaseURL:           DefaultBaseURL,
		SecretKey:         secretKey,
		Timeout:           10 * time.Second,
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the Paystack API client.
type Client struct {
	http      *resty.Client
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	retryOpts []retry.Option
	logger    *slog.Logger
}

var _ enrollment.Gateway = (*Client)(nil)

// NewClient creates a new Paystack client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "paystack")

	if config.Breaker == nil {
		config.Breaker = circuitbreaker.GatewayBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}
	if config.RetryOptions == nil {
		config.RetryOptions = retry.GatewayOptions()
	}

	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetAuthToken(config.SecretKey).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:      httpClient,
		limiter:   rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		breaker:   config.Breaker,
		retryOpts: config.RetryOptions,
		logger:    logger,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Initialize creates a Paystack transaction for req.Reference.
// It is not retried: a repeated initialize for the same reference is
// rejected by Paystack.
func (c *Client) Initialize(ctx context.Context, req enrollment.InitializeRequest) (enrollment.InitializeResult, error) {
	var env envelope[initializeDataDTO]

	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(toInitializeDTO(req)).
			Post("/transaction/initialize")
		return decode(resp, err, &env)
	})
	if err != nil {
		return enrollment.InitializeResult{}, fmt.Errorf("initialize %s: %w", req.Reference, err)
	}
	if !env.Status || env.Data.AuthorizationURL == "" {
		return enrollment.InitializeResult{}, fmt.Errorf("initialize %s: rejected: %s", req.Reference, env.Message)
	}

	ref := env.Data.Reference
	if ref == "" {
		ref = req.Reference
	}
	c.logger.Debug("transaction initialized", "reference", ref)

	return enrollment.InitializeResult{
		AuthorizationURL: env.Data.AuthorizationURL,
		AccessCode:       env.Data.AccessCode,
		Reference:        ref,
	}, nil
}

// Verify fetches the gateway's view of a transaction.
//
// A definitive refusal (HTTP 400, 404 or "status": false) is returned as a
// failed VerifyResult. Transport errors, 5xx, 429, other 4xx such as a
// rejected secret key, and an open breaker are returned as errors matching
// shared.ErrServiceUnavailable. Only transport errors, 5xx and 429 are retried.
func (c *Client) Verify(ctx context.Context, reference string) (enrollment.VerifyResult, error) {
	res, err := retry.DoWithData(ctx, func(ctx context.Context) (enrollment.VerifyResult, error) {
		var res enrollment.VerifyResult
		err := c.call(ctx, func(ctx context.Context) error {
			var env envelope[verifyDataDTO]
			resp, err := c.http.R().
				SetContext(ctx).
				Get("/transaction/verify/" + url.PathEscape(reference))
			err = decode(resp, err, &env)

			var apiErr *APIError
			if errors.As(err, &apiErr) {
				switch {
				case apiErr.Refusal():
					// A refusal is an answer, not an outage.
					c.logger.Info("verification refused", "reference", reference, "status_code", apiErr.StatusCode, "message", apiErr.Message)
					res = refused(reference, apiErr.Message)
					return nil
				case !apiErr.Temporary():
					return retry.Permanent(err)
				case apiErr.RetryAfter > 0:
					return retry.RetryableAfter(err, apiErr.RetryAfter)
				}
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return retry.Retryable(err)
			}

			if !env.Status {
				res = refused(reference, env.Message)
				return nil
			}
			res = env.Data.toResult()
			return nil
		})
		return res, err
	}, c.retryOpts...)
	if err != nil {
		return enrollment.VerifyResult{}, fmt.Errorf("verify %s: %w", reference, err)
	}
	return res, nil
}

func refused(reference, message string) enrollment.VerifyResult {
	return enrollment.VerifyResult{
		Reference:       reference,
		Status:          enrollment.TxFailed,
		GatewayResponse: message,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// call waits for the outbound limiter and runs fn through the breaker.
// Breaker rejections and limiter timeouts surface as unavailability.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", shared.ErrServiceUnavailable, err)
	}

	err := c.breaker.Execute(ctx, fn)
	if circuitbreaker.IsRejection(err) {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}
	return err
}

// decode turns a resty response into either a filled envelope or an error.
func decode[T any](resp *resty.Response, err error, out *envelope[T]) error {
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
	}

	body := resp.Body()
	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		var errEnv envelope[json.RawMessage]
		if json.Unmarshal(body, &errEnv) == nil {
			apiErr.Message = errEnv.Message
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			apiErr.RetryAfter = parseRetryAfter(resp.Header().Get("Retry-After"))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", shared.ErrServiceUnavailable, err)
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// BreakerState reports the breaker state for health checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
