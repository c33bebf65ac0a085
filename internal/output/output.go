package output

import (
	"fmt"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// Format selects how reports, batches and optimizer state are rendered.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Extension is the file extension used when a rendering is written to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// Formatter renders reports and optimizer state.
type Formatter interface {
	FormatReport(report *core.Report) (string, error)
	FormatBatch(results []core.BatchResult) (string, error)
	FormatStats(stats engine.Stats) (string, error)
	FormatPolicies(policies []engine.DomainPolicy) (string, error)
	FormatLocations(records []core.LocationRecord) (string, error)
}

// ParseFormat accepts table, json, markdown or md, case-insensitively. An
// empty value means table.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table, json or markdown)", value)
	}
}

// NewFormatter returns the renderer for format; unknown formats get a table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}
