package errors

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/metrics"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/server/middleware"
)

var statusByCode = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeValidationFailed:   http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeConflict:           http.StatusConflict,
	CodeExternalService:    http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:            http.StatusGatewayTimeout,
}

// HTTPStatusFromCode maps an error code to its HTTP status; unknown codes
// are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// EnsureCorrelationID sets the envelope's correlation ID to the request ID
// in ctx, keeping an existing ID when ctx has none.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	if ctx != nil {
		if id := middleware.GetRequestID(ctx); id != "" {
			return envelope.WithCorrelationID(id)
		}
	}
	if envelope.CorrelationID != "" {
		return envelope
	}
	return envelope.WithCorrelationID("fallback-" + errors.GenerateCorrelationID())
}

// HTTPErrorResponse is the JSON body of every API error.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ResponseDetails copies the caller-facing details. Context entries such
// as wrapped_error are log-only.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil || len(envelope.Details) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(envelope.Details))
	for k, v := range envelope.Details {
		out[k] = v
	}
	return out
}

// RespondWithError classifies err and writes the JSON error response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope := FromError(ctx, err)
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}
	RespondWithEnvelope(w, r, envelope)
}

// RespondWithEnvelope writes envelope as JSON, logs it and counts it. A 503
// carrying retry_after also sets Retry-After in whole seconds.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(orInternalError(envelope), ctx)
	status := HTTPStatusFromEnvelope(envelope)

	if retry, ok := envelope.Details["retry_after"].(string); ok && status == http.StatusServiceUnavailable {
		if d, err := time.ParseDuration(retry); err == nil && d > 0 {
			w.Header().Set("Retry-After", formatSeconds(d))
		}
	}

	logEnvelope(envelope, status)
	endpoint := ""
	if r != nil {
		endpoint = middleware.EndpointLabel(r)
	}
	metrics.RecordError(envelope.Code, status, endpoint)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   ResponseDetails(envelope),
		RequestID: envelope.CorrelationID,
	}})
}

// orInternalError substitutes a critical internal error for nil.
func orInternalError(envelope *errors.ErrorEnvelope) *errors.ErrorEnvelope {
	if envelope != nil {
		return envelope
	}
	return EnsureEnvelope(nil)
}

func formatSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

// logEnvelope logs server errors at error level, and client errors at warn
// or info depending on severity.
func logEnvelope(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := make([]zap.Field, 0, 4+len(envelope.Context))
	fields = append(fields,
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID))
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for k, v := range envelope.Context {
		fields = append(fields, zap.Any(k, v))
	}

	switch {
	case status >= 500, envelope.Severity == errors.SeverityCritical, envelope.Severity == errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case envelope.Severity == errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
