package errors

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/core/provider"
	"github.com/lumenhour/lumenhour/internal/core/store"
	"github.com/lumenhour/lumenhour/internal/server/middleware"
)

// Error codes shared by the API and CLI.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout            = "TIMEOUT"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// User Errors (400-level)
func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeUnauthorized, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// Server Errors (500-level)
func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// Wrap builds an envelope for err under code, carrying the request's
// correlation ID and the wrapped error text.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	envelope = envelope.WithTraceID(extractTraceID(ctx))
	return withWrappedError(envelope, err)
}

// FromError classifies domain errors into envelopes. Unknown errors become
// INTERNAL_ERROR.
func FromError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var (
		validation  *core.ValidationError
		circuitOpen *engine.CircuitOpenError
		upstream    *engine.HTTPError
		configErr   *provider.ConfigError
	)

	switch {
	case stderrors.As(err, &validation):
		return Wrap(ctx, CodeValidationFailed, err, validation.Error()).
			WithDetails(map[string]interface{}{"field": validation.Field})
	case stderrors.Is(err, engine.ErrInvalidRequest):
		return Wrap(ctx, CodeInvalidInput, err, err.Error())
	case stderrors.Is(err, engine.ErrLocationNotFound):
		return Wrap(ctx, CodeNotFound, err, err.Error())
	case stderrors.Is(err, store.ErrBuiltinLocation):
		return Wrap(ctx, CodeConflict, err, err.Error())
	case stderrors.As(err, &circuitOpen):
		return Wrap(ctx, CodeServiceUnavailable, err, "upstream temporarily unavailable").
			WithDetails(map[string]interface{}{
				"domain":      circuitOpen.Domain,
				"retry_after": circuitOpen.RetryAfter.Round(time.Second).String(),
			})
	case stderrors.Is(err, provider.ErrNoLocation):
		return Wrap(ctx, CodeExternalService, err, "location could not be detected")
	case stderrors.As(err, &configErr):
		env := Wrap(ctx, CodeConfigInvalid, err, configErr.Error())
		env, _ = env.WithSeverity(errors.SeverityHigh)
		return env
	case stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(ctx, CodeTimeout, err, "upstream request timed out")
	case stderrors.As(err, &upstream):
		return Wrap(ctx, CodeExternalService, err, "upstream request failed").
			WithDetails(map[string]interface{}{"upstream_status": upstream.StatusCode})
	case stderrors.Is(err, engine.ErrInvalidPayload):
		return Wrap(ctx, CodeExternalService, err, "upstream returned an invalid response")
	case stderrors.Is(err, engine.ErrClosed):
		return Wrap(ctx, CodeServiceUnavailable, err, "server is shutting down")
	}

	env := Wrap(ctx, CodeInternal, err, "unexpected error")
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// extractCorrelationID returns the request ID from ctx or a fresh UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if id := middleware.GetRequestID(ctx); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// extractTraceID uses the correlation ID until a tracer is wired in.
func extractTraceID(ctx context.Context) string {
	return extractCorrelationID(ctx)
}

// EnsureEnvelope classifies err, turning nil into a critical internal error.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return env
	}
	return FromError(context.Background(), err)
}

// withWrappedError keeps err's text in the envelope context, which is
// logged but never returned to API callers.
func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	if updated, werr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); werr == nil {
		return updated
	}
	return envelope
}
