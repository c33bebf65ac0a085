package core

import "time"

// BatchResult captures the report (or failure) for one batch input line.
type BatchResult struct {
	Line        int       `json:"line"`
	Input       string    `json:"input"`
	Report      *Report   `json:"report,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// OK reports whether the line produced a report.
func (r BatchResult) OK() bool {
	return r.Report != nil && r.Error == ""
}
