package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// QueryStatus is the execution status reported with a result.
type QueryStatus string

const (
	QueryStatusCompleted QueryStatus = "completed"
	QueryStatusFailed    QueryStatus = "failed"
)

// QueryResult is the response of the dataset and card query endpoints.
type QueryResult struct {
	Data        QueryData       `json:"data"`
	DatabaseID  DatabaseID      `json:"database_id,omitempty"`
	Status      QueryStatus     `json:"status"`
	RowCount    int             `json:"row_count"`
	RunningTime int64           `json:"running_time"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	JSONQuery   json.RawMessage `json:"json_query,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorType   string          `json:"error_type,omitempty"`
}

// Failed reports whether the server ran the query and it failed.
func (r *QueryResult) Failed() bool {
	return r.Status == QueryStatusFailed || r.Error != ""
}

// QueryData holds the columns and rows of a result.
type QueryData struct {
	Cols []Column `json:"cols"`
	Rows [][]any  `json:"rows"`
}

// Column describes one result column.
type Column struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	BaseType      string   `json:"base_type"`
	EffectiveType string   `json:"effective_type,omitempty"`
	SemanticType  *string  `json:"semantic_type,omitempty"`
	FieldRef      any      `json:"field_ref,omitempty"`
	ID            *FieldID `json:"id,omitempty"`
}

// ColumnIndex returns the position of the named column, or -1.
func (d QueryData) ColumnIndex(name string) int {
	for i, c := range d.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ExportFormat is a download format for query results. The set is open: the
// predefined values are the ones the server ships with.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

var exportFormatPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Validate rejects formats that cannot be used as a path segment.
func (f ExportFormat) Validate() error {
	if !exportFormatPattern.MatchString(string(f)) {
		return fmt.Errorf("invalid export format %q", string(f))
	}
	return nil
}
