package output

import (
	"encoding/json"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
)

// JSONFormatter renders values as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatReport renders a report as JSON.
func (f *JSONFormatter) FormatReport(report *core.Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.encode(report)
}

// FormatBatch renders batch results as a JSON array.
func (f *JSONFormatter) FormatBatch(results []core.BatchResult) (string, error) {
	if results == nil {
		results = []core.BatchResult{}
	}
	return f.encode(results)
}

// FormatStats renders optimizer stats as JSON.
func (f *JSONFormatter) FormatStats(stats engine.Stats) (string, error) {
	return f.encode(stats)
}

// FormatPolicies renders domain policies with human-readable durations.
func (f *JSONFormatter) FormatPolicies(policies []engine.DomainPolicy) (string, error) {
	type policyJSON struct {
		Domain            string `json:"domain"`
		RequestsPerWindow int    `json:"requests_per_window,omitempty"`
		Window            string `json:"window,omitempty"`
		Unlimited         bool   `json:"unlimited,omitempty"`
		CacheTTL          string `json:"cache_ttl"`
	}
	out := make([]policyJSON, 0, len(policies))
	for _, policy := range policies {
		entry := policyJSON{
			Domain:   policy.Domain,
			CacheTTL: policy.CacheTTL.String(),
		}
		if policy.Limit.Unlimited() {
			entry.Unlimited = true
		} else {
			entry.RequestsPerWindow = policy.Limit.RequestsPerWindow
			entry.Window = policy.Limit.WindowDuration.String()
		}
		out = append(out, entry)
	}
	return f.encode(out)
}

// FormatLocations renders location records as JSON.
func (f *JSONFormatter) FormatLocations(records []core.LocationRecord) (string, error) {
	type locationJSON struct {
		core.Location
		Builtin bool `json:"builtin"`
	}
	out := make([]locationJSON, 0, len(records))
	for _, record := range records {
		out = append(out, locationJSON{Location: record.Location, Builtin: record.IsBuiltin})
	}
	return f.encode(out)
}

func (f *JSONFormatter) encode(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
