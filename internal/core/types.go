package core

import "time"

// Row is one CSV record keyed by header name. A nil value is an absent
// field and binds as NULL; an empty string is a present, empty value.
type Row map[string]*string

// RowError records a data row that was not inserted. The import continues.
type RowError struct {
	Line   int      `json:"line"` // CSV line where the record starts
	Reason string   `json:"reason"`
	Data   []string `json:"data,omitempty"`
}

// ImportResult summarizes one import run.
type ImportResult struct {
	ImportID  string        `json:"import_id"`
	Source    string        `json:"source"`
	Table     string        `json:"table"`
	Columns   []string      `json:"columns"`
	Attempted int           `json:"attempted"`
	Inserted  int           `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Committed bool          `json:"committed"`
	RowErrors []RowError    `json:"row_errors,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Phase     ImportPhase   `json:"phase"`
}

func (r *ImportResult) addRowError(e RowError) {
	r.RowErrors = append(r.RowErrors, e)
	r.Skipped = len(r.RowErrors)
}
