package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// TableFormatter renders results as ASCII tables.
type TableFormatter struct{}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatReport renders the sun events as a table followed by weather, photo
// and warning sections.
func (f *TableFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.SetTitle(reportTitle(report))
	t.AppendHeader(table.Row{"Event", "Time", "Notes"})
	for _, row := range sunRows(report) {
		t.AppendRow(table.Row{row.Event, row.Time, row.Notes})
	}
	if report.Sun.Polar {
		t.AppendFooter(table.Row{"", "", "some events do not occur on this date"})
	}

	rendered := t.Render()
	rendered += renderSections(reportSections(report), false)
	return rendered, nil
}

// FormatBatch renders one summary row per input line.
func (f *TableFormatter) FormatBatch(results []core.BatchResult) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Line", "Input", "Golden (morning)", "Golden (evening)", "Status"})

	failed := 0
	for _, result := range results {
		if !result.OK() {
			failed++
			t.AppendRow(table.Row{result.Line, result.Input, "-", "-", "error: " + result.Error})
			continue
		}
		report := result.Report
		loc := reportLocation(report)
		status := "ok"
		if len(report.Warnings) > 0 {
			status = fmt.Sprintf("ok (%d warnings)", len(report.Warnings))
		}
		t.AppendRow(table.Row{
			result.Line,
			result.Input,
			windowText(report.Sun.MorningGolden, loc),
			windowText(report.Sun.EveningGolden, loc),
			status,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d/%d succeeded", len(results)-failed, len(results))})

	return t.Render(), nil
}

// FormatStats renders queue, cache, limiter and breaker state.
func (f *TableFormatter) FormatStats(stats engine.Stats) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Queue depth: %d\nCached responses: %d\n\n", stats.QueueDepth, stats.CacheSize))

	limits := newTable()
	limits.SetTitle("Rate limits")
	limits.AppendHeader(table.Row{"Domain", "Used", "Limit", "Resets", "Backoff until"})
	for _, snap := range stats.RateLimits {
		limits.AppendRow(table.Row{snap.Domain, snap.Count, limitText(snap.Limit, snap.Window), timeText(snap.ResetAt), timeText(snap.BackoffUntil)})
	}
	sb.WriteString(limits.Render())

	if len(stats.Breakers) > 0 {
		breakers := newTable()
		breakers.SetTitle("Circuit breakers")
		breakers.AppendHeader(table.Row{"Domain", "State", "Failures", "Retry after"})
		for _, snap := range stats.Breakers {
			retry := snap.RetryAfter
			if retry == "" {
				retry = "-"
			}
			breakers.AppendRow(table.Row{snap.Domain, string(snap.State), snap.Failures, retry})
		}
		sb.WriteString("\n\n")
		sb.WriteString(breakers.Render())
	}
	return sb.String(), nil
}

// FormatPolicies renders the per-domain quota and cache TTL table.
func (f *TableFormatter) FormatPolicies(policies []engine.DomainPolicy) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Domain", "Quota", "Cache TTL"})
	for _, policy := range policies {
		t.AppendRow(table.Row{
			policy.Domain,
			limitText(policy.Limit.RequestsPerWindow, policy.Limit.WindowDuration.String()),
			policy.CacheTTL.String(),
		})
	}
	t.AppendFooter(table.Row{"other domains", "unlimited", engine.DefaultCacheTTL.String()})
	return t.Render(), nil
}

// FormatLocations renders saved and built-in locations.
func (f *TableFormatter) FormatLocations(records []core.LocationRecord) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Slug", "Name", "Place", "Coordinates", "Timezone", "Type"})
	for _, record := range records {
		kind := "saved"
		if record.IsBuiltin {
			kind = "built-in"
		}
		location := record.Location
		t.AppendRow(table.Row{location.Slug, location.Name, locationPlace(location), location.Coordinates.String(), location.Timezone, kind})
	}
	return t.Render(), nil
}
