package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/core/provider"
	"github.com/lumenhour/lumenhour/internal/core/store"
)

func TestFromErrorClassifiesDomainErrors(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"validation", &core.ValidationError{Field: "latitude", Message: "out of range"}, CodeValidationFailed},
		{"invalid request", fmt.Errorf("%w: missing url", engine.ErrInvalidRequest), CodeInvalidInput},
		{"not found", fmt.Errorf("%w: atlantis", engine.ErrLocationNotFound), CodeNotFound},
		{"builtin", fmt.Errorf("%w: eiffel-tower", store.ErrBuiltinLocation), CodeConflict},
		{"circuit", &engine.CircuitOpenError{Domain: "api.pexels.com", RetryAfter: time.Minute}, CodeServiceUnavailable},
		{"no location", fmt.Errorf("%w: both lookups failed", provider.ErrNoLocation), CodeExternalService},
		{"config", &provider.ConfigError{Provider: "pexels", Setting: "api_key"}, CodeConfigInvalid},
		{"timeout", fmt.Errorf("weather: %w", context.DeadlineExceeded), CodeTimeout},
		{"upstream", &engine.HTTPError{StatusCode: 502}, CodeExternalService},
		{"payload", fmt.Errorf("%w: not json", engine.ErrInvalidPayload), CodeExternalService},
		{"closed", engine.ErrClosed, CodeServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := FromError(ctx, tc.err)
			require.NotNil(t, env)
			assert.Equal(t, tc.code, env.Code)
			assert.NotEmpty(t, env.CorrelationID)
		})
	}

	assert.Nil(t, FromError(ctx, nil))
}

func TestFromErrorDetails(t *testing.T) {
	env := FromError(context.Background(), &core.ValidationError{Field: "date", Message: "bad"})
	assert.Equal(t, "date", ResponseDetails(env)["field"])

	env = FromError(context.Background(), &engine.CircuitOpenError{Domain: "ipapi.co", RetryAfter: 90 * time.Second})
	details := ResponseDetails(env)
	assert.Equal(t, "ipapi.co", details["domain"])
	assert.Equal(t, "1m30s", details["retry_after"])
	assert.NotContains(t, details, "wrapped_error")
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusFromCode(CodeValidationFailed))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeNotFound))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatusFromCode(CodeUnauthorized))
	assert.Equal(t, http.StatusConflict, HTTPStatusFromCode(CodeConflict))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeExternalService))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromCode(CodeServiceUnavailable))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode(CodeTimeout))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode(CodeConfigInvalid))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/golden-hour", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, &engine.CircuitOpenError{Domain: "ipapi.co", RetryAfter: 1500 * time.Millisecond})

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, CodeServiceUnavailable, body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestEnsureEnvelopeNil(t *testing.T) {
	env := EnsureEnvelope(nil)
	require.NotNil(t, env)
	assert.Equal(t, CodeInternal, env.Code)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1", formatSeconds(200*time.Millisecond))
	assert.Equal(t, "60", formatSeconds(time.Minute))
}

func TestRespondWithEnvelopeKeepsWrappedErrorOutOfBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/golden-hour", nil)
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, Wrap(req.Context(), CodeExternalService, stderrors.New("dial tcp: refused"), "upstream request failed"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "dial tcp")
}

func TestRespondWithNilEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithEnvelope(rec, nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
