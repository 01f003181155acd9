package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/interface/http/handlers"
	"github.com/ndmx/upscale/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

const apiVersion = "v1"

// writeJSON writes a success response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeEnvelope(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONList writes a success response with a total count.
func writeJSONList(w http.ResponseWriter, r *http.Request, data interface{}, total int) {
	writeEnvelope(w, http.StatusOK, JSONResponse{
		Success:   true,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion, TotalCount: total},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, r, status, &APIError{Code: code, Message: message})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, apiErr *APIError) {
	writeEnvelope(w, status, JSONResponse{
		Success:   false,
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: apiVersion},
		RequestID: getRequestID(r.Context()),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// gatewayRetryAfter is advertised when the payment gateway is unavailable.
const gatewayRetryAfter = 30 * time.Second

// retryAfterError carries a Retry-After hint for the response.
type retryAfterError struct {
	error
	after time.Duration
}

func (e retryAfterError) Unwrap() error { return e.error }

func withRetryAfter(err error, after time.Duration) error {
	if after <= 0 {
		return err
	}
	return retryAfterError{error: err, after: after}
}

// validationError lists invalid request fields.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string { return "request validation failed" }

func (e *validationError) Unwrap() error { return shared.ErrValidation }

// errorMapping translates an error kind to a status and a stable code.
type errorMapping struct {
	target error
	status int
	code   string
}

// mappings are checked in order: specific domain errors before base kinds.
var mappings = []errorMapping{
	{handlers.ErrInvalidSession, http.StatusUnauthorized, "unauthorized"},
	{shared.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{shared.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{shared.ErrAccountLocked, http.StatusLocked, "account_locked"},
	{shared.ErrOriginRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{shared.ErrSuspiciousPath, http.StatusNotFound, "not_found"},
	{shared.ErrDuplicateActiveIntent, http.StatusConflict, "duplicate_active_intent"},
	{shared.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{shared.ErrVerificationFailed, http.StatusPaymentRequired, "verification_failed"},
	{shared.ErrNotEnrolled, http.StatusForbidden, "not_enrolled"},
	{shared.ErrInvalidPlan, http.StatusBadRequest, "invalid_plan"},
	{shared.ErrWeakPassword, http.StatusBadRequest, "weak_password"},
	{shared.ErrInvalidAccountEmail, http.StatusBadRequest, "invalid_email"},
	{shared.ErrNoOutstandingBalance, http.StatusConflict, "no_outstanding_balance"},
	{shared.ErrLegPending, http.StatusConflict, "installment_pending"},
	{shared.ErrNotFound, http.StatusNotFound, "not_found"},
	{shared.ErrAlreadyExists, http.StatusConflict, "conflict"},
	{shared.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{shared.ErrStateTransition, http.StatusConflict, "invalid_state"},
	{shared.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{shared.ErrForbidden, http.StatusForbidden, "forbidden"},
	{shared.ErrValidation, http.StatusBadRequest, "validation_error"},
	{shared.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{shared.ErrEmptyValue, http.StatusBadRequest, "validation_error"},
	{shared.ErrInvalidEmail, http.StatusBadRequest, "validation_error"},
	{shared.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
}

// writeError maps err to a response. Unknown errors are logged and
// reported as 500 without details.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}

		apiErr := &APIError{Code: m.code, Message: publicMessage(err, m.target, m.status)}
		var ve *validationError
		if errors.As(err, &ve) {
			apiErr.Fields = ve.fields
		}

		switch {
		case m.status == http.StatusTooManyRequests, shared.IsRetryable(err):
			after := gatewayRetryAfter
			var ra retryAfterError
			if errors.As(err, &ra) {
				after = ra.after
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(after.Seconds()))))
		case m.status == http.StatusUnauthorized:
			w.Header().Set("WWW-Authenticate", `Bearer realm="upscale"`)
		}

		writeAPIError(w, r, m.status, apiErr)
		return
	}

	logger.FromContext(r.Context()).Error("request failed",
		logger.String("path", r.URL.Path),
		logger.Err(err),
	)
	writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
}

// publicMessage returns the domain message of the matched error. Wrapped
// infrastructure detail is never exposed.
func publicMessage(err, target error, status int) string {
	var de *shared.DomainError
	if errors.As(target, &de) {
		return de.Message
	}
	if errors.As(err, &de) {
		return de.Message
	}
	switch {
	case errors.Is(target, handlers.ErrInvalidSession):
		return "A valid session token is required"
	case errors.Is(target, shared.ErrValidation):
		return "Request validation failed"
	default:
		return http.StatusText(status)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return jsonName(f.Tag.Get("json"))
	})
	return v
}

// jsonName returns the field name from a json tag; "-" hides the field.
func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

// decode reads a JSON body into dst and validates its tags.
func (s *Server) decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &validationError{fields: map[string]string{"body": "must be a valid JSON object"}}
	}
	return s.check(dst)
}

// check validates dst and converts validator errors to field messages.
func (s *Server) check(dst interface{}) error {
	err := s.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &validationError{fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid id"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "is invalid"
	}
}
