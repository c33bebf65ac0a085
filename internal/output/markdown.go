package output

import (
	"fmt"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatReport renders a report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(reportTitle(report))))
	sb.WriteString("| Event | Time | Notes |\n")
	sb.WriteString("|-------|------|-------|\n")
	for _, row := range sunRows(report) {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(row.Event),
			escapeMarkdownCell(row.Time),
			escapeMarkdownCell(row.Notes),
		))
	}
	if report.Sun.Polar {
		sb.WriteString("\n_Some events do not occur on this date._\n")
	}

	sb.WriteString(renderSections(reportSections(report), true))
	return sb.String(), nil
}

// FormatBatch renders every report in input order, with failures inline.
func (f *MarkdownFormatter) FormatBatch(results []core.BatchResult) (string, error) {
	rendered := make([]string, 0, len(results))
	for _, result := range results {
		if !result.OK() {
			rendered = append(rendered, fmt.Sprintf("## Line %d: %s\n\n**Error**: %s\n",
				result.Line, escapeMarkdownCell(result.Input), escapeMarkdownCell(result.Error)))
			continue
		}
		value, err := f.FormatReport(result.Report)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, value)
	}
	return strings.Join(rendered, "\n\n"), nil
}

// FormatStats renders optimizer state as Markdown.
func (f *MarkdownFormatter) FormatStats(stats engine.Stats) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Optimizer\n\n")
	sb.WriteString(fmt.Sprintf("- Queue depth: %d\n- Cached responses: %d\n\n", stats.QueueDepth, stats.CacheSize))
	sb.WriteString("| Domain | Used | Limit | Resets | Backoff until |\n")
	sb.WriteString("|--------|------|-------|--------|---------------|\n")
	for _, snap := range stats.RateLimits {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
			escapeMarkdownCell(snap.Domain), snap.Count, limitText(snap.Limit, snap.Window), timeText(snap.ResetAt), timeText(snap.BackoffUntil)))
	}
	if len(stats.Breakers) > 0 {
		sb.WriteString("\n| Domain | Breaker | Failures | Retry after |\n")
		sb.WriteString("|--------|---------|----------|-------------|\n")
		for _, snap := range stats.Breakers {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
				escapeMarkdownCell(snap.Domain), snap.State, snap.Failures, snap.RetryAfter))
		}
	}
	return sb.String(), nil
}

// FormatPolicies renders the per-domain policy table as Markdown.
func (f *MarkdownFormatter) FormatPolicies(policies []engine.DomainPolicy) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Domain | Quota | Cache TTL |\n")
	sb.WriteString("|--------|-------|-----------|\n")
	for _, policy := range policies {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeMarkdownCell(policy.Domain),
			limitText(policy.Limit.RequestsPerWindow, policy.Limit.WindowDuration.String()),
			policy.CacheTTL))
	}
	return sb.String(), nil
}

// FormatLocations renders locations as a Markdown table.
func (f *MarkdownFormatter) FormatLocations(records []core.LocationRecord) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Slug | Name | Place | Coordinates | Timezone | Built-in |\n")
	sb.WriteString("|------|------|-------|-------------|----------|----------|\n")
	for _, record := range records {
		location := record.Location
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %t |\n",
			escapeMarkdownCell(location.Slug),
			escapeMarkdownCell(location.Name),
			escapeMarkdownCell(locationPlace(location)),
			location.Coordinates.String(),
			location.Timezone,
			record.IsBuiltin))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
