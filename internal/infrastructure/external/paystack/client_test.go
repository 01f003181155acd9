package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/pkg/circuitbreaker"
	"github.com/ndmx/upscale/pkg/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*ClientConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultClientConfig("sk_test_123")
	cfg.BaseURL = srv.URL
	cfg.Timeout = time.Second
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.RetryOptions = []retry.Option{
		retry.WithMaxAttempts(3),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestInitialize(t *testing.T) {
	var got initializeRequestDTO
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code":       "abc",
				"reference":         got.Reference,
			},
		})
	}, nil)

	res, err := c.Initialize(context.Background(), enrollment.InitializeRequest{
		Email:       "a@x.com",
		Amount:      shared.Naira(50_000),
		Currency:    shared.CurrencyNGN,
		Reference:   "upscale_0b7c2f7e_00112233445566778899aabbccddeeff",
		CallbackURL: "https://upscale.test/api/v1/payments/callback",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), got.Amount)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, "upscale_0b7c2f7e_00112233445566778899aabbccddeeff", res.Reference)
}

func TestInitialize_NotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := c.Initialize(context.Background(), enrollment.InitializeRequest{Reference: "r1", Email: "a@x.com", Amount: 100})

	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.EqualValues(t, 1, hits.Load())
}

func TestVerify_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref_1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "Verification successful",
			"data": map[string]any{
				"id":               4099260516,
				"status":           "success",
				"reference":        "ref_1",
				"amount":           5_000_000,
				"currency":         "NGN",
				"paid_at":          "2024-09-01T12:05:00.000Z",
				"gateway_response": "Successful",
			},
		})
	}, nil)

	res, err := c.Verify(context.Background(), "ref_1")

	require.NoError(t, err)
	assert.Equal(t, enrollment.TxSuccess, res.Status)
	assert.Equal(t, shared.Naira(50_000), res.Amount)
	assert.Equal(t, "NGN", res.Currency)
	assert.Equal(t, time.Date(2024, 9, 1, 12, 5, 0, 0, time.UTC), res.PaidAt)
}

func TestVerify_StatusMapping(t *testing.T) {
	cases := map[string]enrollment.TransactionStatus{
		"abandoned": enrollment.TxAbandoned,
		"failed":    enrollment.TxFailed,
		"reversed":  enrollment.TxReversed,
		"ongoing":   enrollment.TxPending,
		"mystery":   enrollment.TxUnknown,
	}
	for wire, want := range cases {
		assert.Equal(t, want, mapStatus(wire), wire)
	}
}

func TestVerify_RefusalIsFailedResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  false,
			"message": "Transaction reference not found",
		})
	}, nil)

	res, err := c.Verify(context.Background(), "ref_missing")

	require.NoError(t, err)
	assert.Equal(t, enrollment.TxFailed, res.Status)
	assert.Equal(t, "Transaction reference not found", res.GatewayResponse)
}

func TestVerify_ServerErrorsRetriedThenUnavailable(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := c.Verify(context.Background(), "ref_1")

	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.EqualValues(t, 3, hits.Load())
}

func TestVerify_RecoversAfterTransientError(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": true,
			"data":   map[string]any{"status": "success", "reference": "ref_1", "amount": 100, "currency": "NGN"},
		})
	}, nil)

	res, err := c.Verify(context.Background(), "ref_1")

	require.NoError(t, err)
	assert.Equal(t, enrollment.TxSuccess, res.Status)
	assert.EqualValues(t, 2, hits.Load())
}

func TestVerify_OpenBreakerShortCircuits(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *ClientConfig) {
		cfg.Breaker = circuitbreaker.New("paystack", circuitbreaker.WithFailureThreshold(1))
	})

	_, err := c.Verify(context.Background(), "ref_1")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.Equal(t, circuitbreaker.StateOpen, c.BreakerState())

	_, err = c.Verify(context.Background(), "ref_1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	assert.EqualValues(t, 1, hits.Load())
}

func TestVerify_TimeoutIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, func(cfg *ClientConfig) {
		cfg.Timeout = 50 * time.Millisecond
		cfg.RetryOptions = []retry.Option{retry.WithMaxAttempts(1)}
	})

	_, err := c.Verify(context.Background(), "ref_1")

	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

func TestVerify_RejectedKeyIsUnavailable(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity} {
		var hits atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			writeJSON(w, code, map[string]any{"status": false, "message": "Invalid key"})
		}, nil)

		res, err := c.Verify(context.Background(), "ref_1")

		assert.ErrorIs(t, err, shared.ErrServiceUnavailable, "status %d", code)
		assert.Empty(t, res.Status, "status %d", code)
		assert.EqualValues(t, 1, hits.Load(), "status %d is not retried", code)
	}
}

func TestAPIError_Classification(t *testing.T) {
	cases := []struct {
		code      int
		refusal   bool
		temporary bool
	}{
		{http.StatusBadRequest, true, false},
		{http.StatusNotFound, true, false},
		{http.StatusUnauthorized, false, false},
		{http.StatusForbidden, false, false},
		{http.StatusTooManyRequests, false, true},
		{http.StatusBadGateway, false, true},
	}
	for _, tc := range cases {
		e := &APIError{StatusCode: tc.code}
		assert.Equal(t, tc.refusal, e.Refusal(), "refusal %d", tc.code)
		assert.Equal(t, tc.temporary, e.Temporary(), "temporary %d", tc.code)
		assert.Equal(t, !tc.refusal, errors.Is(e, shared.ErrServiceUnavailable), "unavailable %d", tc.code)
	}
}
