package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	apperrors "github.com/lumenhour/lumenhour/internal/errors"
)

type stubReports struct {
	got    engine.ReportRequest
	report *core.Report
	err    error
}

func (s *stubReports) Report(_ context.Context, req engine.ReportRequest) (*core.Report, error) {
	s.got = req
	return s.report, s.err
}

type stubLocations map[string]*core.LocationRecord

func (s stubLocations) ListLocations(context.Context) ([]core.LocationRecord, error) {
	var out []core.LocationRecord
	for _, record := range s {
		out = append(out, *record)
	}
	return out, nil
}

func (s stubLocations) GetLocation(_ context.Context, slug string) (*core.LocationRecord, error) {
	return s[slug], nil
}

type stubOptimizer struct {
	stats   engine.Stats
	cleared bool
}

func (s *stubOptimizer) Stats() engine.Stats { return s.stats }
func (s *stubOptimizer) ClearCache()         { s.cleared = true }

func newAPIRouter(api *API) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/golden-hour", api.GoldenHour)
	r.Get("/api/v1/locations", api.ListLocations)
	r.Get("/api/v1/locations/{slug}", api.GetLocation)
	r.Get("/admin/optimizer", api.OptimizerStats)
	r.Get("/admin/optimizer/policies", api.DomainPolicies)
	r.Delete("/admin/optimizer/cache", api.ClearOptimizerCache)
	return r
}

func serve(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func sampleReport() *core.Report {
	return &core.Report{
		ID:          "r-1",
		GeneratedAt: time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
		Location: core.Location{
			Name:        "48.8566, 2.3522",
			Coordinates: core.Coordinates{Latitude: 48.8566, Longitude: 2.3522},
			Timezone:    "Europe/Paris",
			Source:      core.LocationSourceCoordinates,
		},
		Sun:       core.SunTimes{Date: "2024-06-21", Timezone: "Europe/Paris"},
		PlaceName: "Paris, France",
	}
}

func TestGoldenHourByCoordinates(t *testing.T) {
	reports := &stubReports{report: sampleReport()}
	rec := serve(t, newAPIRouter(&API{Reports: reports}), http.MethodGet,
		"/api/v1/golden-hour?lat=48.8566&lon=2.3522&date=2024-06-21&tz=Europe/Paris&no_photos=true")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.NotNil(t, reports.got.Coordinates)
	assert.InDelta(t, 48.8566, reports.got.Coordinates.Latitude, 1e-9)
	assert.Equal(t, "Europe/Paris", reports.got.Timezone)
	assert.Equal(t, "2024-06-21", reports.got.Date.Format(dateLayout))
	assert.True(t, reports.got.SkipPhotos)
	assert.False(t, reports.got.SkipWeather)

	var report core.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "Paris, France", report.PlaceName)
}

func TestGoldenHourByLocationAndClientIP(t *testing.T) {
	reports := &stubReports{report: sampleReport()}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/golden-hour?location=eiffel-tower", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	newAPIRouter(&API{Reports: reports}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, reports.got.Coordinates)
	assert.Equal(t, "eiffel-tower", reports.got.Location)
	assert.Equal(t, "203.0.113.9", reports.got.IP)
}

func TestGoldenHourMarkdown(t *testing.T) {
	reports := &stubReports{report: sampleReport()}
	rec := serve(t, newAPIRouter(&API{Reports: reports}), http.MethodGet,
		"/api/v1/golden-hour?lat=48.8566&lon=2.3522&format=md")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/markdown"))
	assert.Contains(t, rec.Body.String(), "#")
}

func TestGoldenHourRejectsBadQueries(t *testing.T) {
	api := &API{Reports: &stubReports{report: sampleReport()}}
	handler := newAPIRouter(api)

	cases := map[string]string{
		"lat only":     "/api/v1/golden-hour?lat=10",
		"bad lat":      "/api/v1/golden-hour?lat=north&lon=10",
		"out of range": "/api/v1/golden-hour?lat=95&lon=10",
		"bad date":     "/api/v1/golden-hour?lat=10&lon=10&date=21/06/2024",
		"bad bool":     "/api/v1/golden-hour?lat=10&lon=10&no_weather=maybe",
		"table format": "/api/v1/golden-hour?lat=10&lon=10&format=table",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, handler, http.MethodGet, target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apperrors.CodeValidationFailed, decodeError(t, rec).Error.Code)
		})
	}
}

func TestGoldenHourMapsEngineErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("%w: atlantis", engine.ErrLocationNotFound), http.StatusNotFound, apperrors.CodeNotFound},
		{"circuit open", &engine.CircuitOpenError{Domain: "ipapi.co", RetryAfter: 30 * time.Second}, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable},
		{"upstream", &engine.HTTPError{StatusCode: 500}, http.StatusBadGateway, apperrors.CodeExternalService},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, apperrors.CodeTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &API{Reports: &stubReports{err: tc.err}}
			rec := serve(t, newAPIRouter(api), http.MethodGet, "/api/v1/golden-hour?location=atlantis")
			require.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Error.Code)
		})
	}
}

func TestGoldenHourCircuitOpenSetsRetryAfter(t *testing.T) {
	api := &API{Reports: &stubReports{err: &engine.CircuitOpenError{Domain: "ipapi.co", RetryAfter: 42 * time.Second}}}
	rec := serve(t, newAPIRouter(api), http.MethodGet, "/api/v1/golden-hour")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestGoldenHourWithoutBuilder(t *testing.T) {
	rec := serve(t, newAPIRouter(&API{}), http.MethodGet, "/api/v1/golden-hour?lat=1&lon=1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLocationsEndpoints(t *testing.T) {
	locations := stubLocations{
		"backyard": {Location: core.Location{Slug: "backyard", Name: "Backyard", Source: core.LocationSourceSaved}},
	}
	handler := newAPIRouter(&API{Locations: locations})

	rec := serve(t, handler, http.MethodGet, "/api/v1/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Locations []core.LocationRecord `json:"locations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.Locations, 1)
	assert.Equal(t, "backyard", list.Locations[0].Location.Slug)

	rec = serve(t, handler, http.MethodGet, "/api/v1/locations/Backyard")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, handler, http.MethodGet, "/api/v1/locations/nowhere")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Error.Code)
}

func TestLocationsFallBackToBuiltIns(t *testing.T) {
	handler := newAPIRouter(&API{})

	rec := serve(t, handler, http.MethodGet, "/api/v1/locations")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Locations []core.LocationRecord `json:"locations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Locations, len(core.BuiltInLocations))

	slug := core.BuiltInLocations[0].Slug
	rec = serve(t, handler, http.MethodGet, "/api/v1/locations/"+slug)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptimizerAdminEndpoints(t *testing.T) {
	optimizer := &stubOptimizer{stats: engine.Stats{QueueDepth: 2, CacheSize: 7}}
	handler := newAPIRouter(&API{Optimizer: optimizer})

	rec := serve(t, handler, http.MethodGet, "/admin/optimizer")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats engine.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.QueueDepth)
	assert.Equal(t, 7, stats.CacheSize)

	rec = serve(t, handler, http.MethodDelete, "/admin/optimizer/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, optimizer.cleared)
	assert.JSONEq(t, `{"cleared":7}`, rec.Body.String())

	rec = serve(t, handler, http.MethodGet, "/admin/optimizer/policies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api.openweathermap.org")
}

func TestOptimizerAdminWithoutOptimizer(t *testing.T) {
	rec := serve(t, newAPIRouter(&API{}), http.MethodGet, "/admin/optimizer")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
