package output

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

func sampleReport(t *testing.T) *core.Report {
	t.Helper()
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	at := func(h, m int) time.Time { return time.Date(2024, 6, 21, h, m, 0, 0, paris) }

	return &core.Report{
		ID:        "r-1",
		PlaceName: "Eiffel Tower, Paris, France",
		Location: core.Location{
			Name:        "Eiffel Tower",
			Coordinates: core.Coordinates{Latitude: 48.8584, Longitude: 2.2945},
			Timezone:    "Europe/Paris",
			Source:      core.LocationSourceBuiltin,
		},
		Sun: core.SunTimes{
			Date:          "2024-06-21",
			Timezone:      "Europe/Paris",
			Dawn:          at(5, 6),
			Sunrise:       at(5, 47),
			SolarNoon:     at(13, 51),
			Sunset:        at(21, 58),
			Dusk:          at(22, 39),
			MorningBlue:   core.Window{Start: at(5, 6), End: at(5, 20)},
			MorningGolden: core.Window{Start: at(5, 20), End: at(6, 35)},
			EveningGolden: core.Window{Start: at(21, 8), End: at(22, 25)},
			EveningBlue:   core.Window{Start: at(22, 25), End: at(22, 39)},
		},
		Weather: &core.Weather{
			TemperatureC: 21.5,
			FeelsLikeC:   21,
			CloudCover:   40,
			VisibilityM:  10000,
			Description:  "scattered clouds",
			Conditions:   core.ConditionsExcellent,
		},
		Photos: []core.Photo{
			{ID: "1", Source: "pexels", PageURL: "https://www.pexels.com/photo/1", Photographer: "Ana|Lima"},
		},
		Warnings: []string{"place name unavailable: timeout"},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.ErrorContains(t, err, "csv")
}

func TestFormatExtension(t *testing.T) {
	require.Equal(t, "txt", FormatTable.Extension())
	require.Equal(t, "json", FormatJSON.Extension())
	require.Equal(t, "md", FormatMarkdown.Extension())
}

func TestReportFormatters(t *testing.T) {
	report := sampleReport(t)

	tableRendered, err := NewFormatter(FormatTable).FormatReport(report)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "EVENT")
	require.Contains(t, tableRendered, "Golden hour (evening)")
	require.Contains(t, tableRendered, "21:08 - 22:25")
	require.Contains(t, tableRendered, "1h17m")
	require.Contains(t, tableRendered, "Weather:")
	require.Contains(t, tableRendered, "Conditions: excellent")
	require.Contains(t, tableRendered, "Warnings:")

	jsonRendered, err := NewFormatter(FormatJSON).FormatReport(report)
	require.NoError(t, err)
	require.Contains(t, jsonRendered, "\"evening_golden_hour\"")
	require.Contains(t, jsonRendered, "\"place_name\": \"Eiffel Tower, Paris, France\"")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatReport(report)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(markdownRendered, "## Eiffel Tower"))
	require.Contains(t, markdownRendered, "| Event | Time | Notes |")
	require.Contains(t, markdownRendered, "### Inspiration")
	require.Contains(t, markdownRendered, "Ana\\|Lima")
}

func TestReportFormatterPolar(t *testing.T) {
	report := &core.Report{Sun: core.SunTimes{Date: "2024-06-21", Timezone: "Europe/Oslo", Polar: true}}

	rendered, err := NewFormatter(FormatTable).FormatReport(report)
	require.NoError(t, err)
	require.Contains(t, rendered, "polar day or night")
	require.Contains(t, rendered, "some events do not occur")
}

func TestBatchFormatters(t *testing.T) {
	results := []core.BatchResult{
		{Line: 1, Input: "eiffel-tower", Report: sampleReport(t)},
		{Line: 2, Input: "atlantis", Error: "location not found: atlantis"},
	}

	tableRendered, err := NewFormatter(FormatTable).FormatBatch(results)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "05:20 - 06:35")
	require.Contains(t, tableRendered, "error: location not found")
	require.Contains(t, tableRendered, "1/2 succeeded")

	jsonRendered, err := NewFormatter(FormatJSON).FormatBatch(results)
	require.NoError(t, err)
	require.Contains(t, jsonRendered, "\"line\": 2")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatBatch(results)
	require.NoError(t, err)
	require.Contains(t, markdownRendered, "## Line 2: atlantis")
}

func TestStatsAndPolicies(t *testing.T) {
	reset := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	stats := engine.Stats{
		QueueDepth: 2,
		CacheSize:  5,
		RateLimits: []engine.RateLimitSnapshot{
			{Domain: "nominatim.openstreetmap.org", Count: 1, Limit: 1, Window: "1s", ResetAt: &reset},
		},
		Breakers: []engine.BreakerSnapshot{
			{Domain: "api.pexels.com", State: engine.BreakerOpen, Failures: 5, RetryAfter: "42s"},
		},
	}

	rendered, err := NewFormatter(FormatTable).FormatStats(stats)
	require.NoError(t, err)
	require.Contains(t, rendered, "Queue depth: 2")
	require.Contains(t, rendered, "1 / 1s")
	require.Contains(t, rendered, "api.pexels.com")

	rendered, err = NewFormatter(FormatJSON).FormatStats(stats)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"queue_depth\": 2")

	policies := engine.Policies(engine.NewRateLimiter(nil), nil)
	rendered, err = NewFormatter(FormatTable).FormatPolicies(policies)
	require.NoError(t, err)
	require.Contains(t, rendered, "45 / 1m0s")
	require.Contains(t, rendered, "unlimited")

	rendered, err = NewFormatter(FormatJSON).FormatPolicies(policies)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"cache_ttl\": \"15m0s\"")

	rendered, err = NewFormatter(FormatMarkdown).FormatPolicies(policies)
	require.NoError(t, err)
	require.Contains(t, rendered, "| ip-api.com | 45 / 1m0s | 1h0m0s |")
}

func TestLocationFormatters(t *testing.T) {
	records := []core.LocationRecord{
		{Location: core.BuiltInLocations[0], IsBuiltin: true},
		{Location: core.Location{Slug: "backyard", Name: "Backyard", Coordinates: core.Coordinates{Latitude: 1, Longitude: 2}}},
	}

	rendered, err := NewFormatter(FormatTable).FormatLocations(records)
	require.NoError(t, err)
	require.Contains(t, rendered, "built-in")
	require.Contains(t, rendered, "backyard")

	rendered, err = NewFormatter(FormatJSON).FormatLocations(records)
	require.NoError(t, err)
	require.Contains(t, rendered, "\"builtin\": true")
}

func TestDurationText(t *testing.T) {
	require.Equal(t, "45m", durationText(45*time.Minute))
	require.Equal(t, "1h05m", durationText(65*time.Minute))
	require.Equal(t, "", durationText(0))
}
