package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/core/provider"
	"github.com/lumenhour/lumenhour/internal/core/solar"
	"github.com/lumenhour/lumenhour/internal/server"
	"github.com/lumenhour/lumenhour/internal/server/handlers"
)

const weatherBody = `{
  "weather": [{"main": "Clear", "description": "clear sky", "icon": "01d"}],
  "main": {"temp": 21.0, "feels_like": 20.5, "humidity": 50},
  "visibility": 10000,
  "wind": {"speed": 2.1},
  "clouds": {"all": 10},
  "dt": 1750521600
}`

// newStack wires the real optimizer, providers and orchestrator behind the
// HTTP server, with upstream APIs answered by httpmock.
func newStack(t *testing.T) (*httpmock.MockTransport, *engine.Optimizer, *httptest.Server) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, provider.DefaultNominatimURL,
		httpmock.NewStringResponder(200, `{"display_name":"Tour Eiffel, Paris, France",
			"address":{"tourism":"Tour Eiffel","city":"Paris","state":"Île-de-France","country":"France"}}`))
	transport.RegisterResponder(http.MethodGet, provider.DefaultOpenWeatherURL,
		httpmock.NewStringResponder(200, weatherBody))

	optimizer := engine.New(engine.Options{
		Client:    &http.Client{Transport: transport},
		UserAgent: "lumenhour-integration/1.0",
	})
	t.Cleanup(func() { _ = optimizer.Close() })

	orchestrator := &engine.Orchestrator{
		Sun:             solar.NewCalculator(),
		Geocoder:        provider.NewReverseGeocoder(optimizer, "lumenhour-integration/1.0"),
		Weather:         provider.NewWeatherProvider(optimizer, "test-key"),
		Locator:         provider.NewGeoIPProvider(optimizer),
		DefaultTimezone: time.UTC,
	}

	srv := server.New("127.0.0.1", 0, server.WithAPI(&handlers.API{
		Reports:   orchestrator,
		Optimizer: optimizer,
	}))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return transport, optimizer, ts
}

func getJSON(t *testing.T, client *http.Client, url string, target any) int {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp.StatusCode
}

func TestGoldenHourEndToEnd(t *testing.T) {
	transport, _, ts := newStack(t)
	url := ts.URL + "/api/v1/golden-hour?lat=48.8584&lon=2.2945&date=2025-06-21&tz=Europe/Paris&no_photos=true"

	var report core.Report
	require.Equal(t, http.StatusOK, getJSON(t, ts.Client(), url, &report))
	assert.Equal(t, "2025-06-21", report.Sun.Date)
	assert.Equal(t, "Europe/Paris", report.Sun.Timezone)
	assert.True(t, report.Sun.Sunrise.Before(report.Sun.Sunset))
	assert.Equal(t, "Tour Eiffel, Île-de-France, France", report.PlaceName)
	require.NotNil(t, report.Weather)
	assert.Equal(t, "clear sky", report.Weather.Description)

	// the second report is served from the optimizer cache
	var again core.Report
	require.Equal(t, http.StatusOK, getJSON(t, ts.Client(), url, &again))
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET "+provider.DefaultNominatimURL])
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET "+provider.DefaultOpenWeatherURL])
}

func TestOptimizerAdminEndToEnd(t *testing.T) {
	_, optimizer, ts := newStack(t)
	url := ts.URL + "/api/v1/golden-hour?lat=48.8584&lon=2.2945&tz=Europe/Paris&no_photos=true"
	require.Equal(t, http.StatusOK, getJSON(t, ts.Client(), url, nil))
	require.Positive(t, optimizer.Stats().CacheSize)

	var stats engine.Stats
	require.Equal(t, http.StatusOK, getJSON(t, ts.Client(), ts.URL+"/admin/optimizer", &stats))
	assert.Equal(t, optimizer.Stats().CacheSize, stats.CacheSize)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/admin/optimizer/cache", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, optimizer.Stats().CacheSize)
}

func TestGoldenHourUpstreamOutageDegradesReport(t *testing.T) {
	transport, _, ts := newStack(t)
	transport.RegisterResponder(http.MethodGet, provider.DefaultOpenWeatherURL,
		httpmock.NewStringResponder(503, `{"message":"maintenance"}`))

	var report core.Report
	url := ts.URL + "/api/v1/golden-hour?lat=48.8584&lon=2.2945&tz=Europe/Paris&no_photos=true"
	require.Equal(t, http.StatusOK, getJSON(t, ts.Client(), url, &report))
	assert.Nil(t, report.Weather)
	assert.NotEmpty(t, report.Warnings)
}
