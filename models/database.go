package models

import (
	"errors"
	"time"
)

// Database is a data source connected to the BI instance.
type Database struct {
	ID          DatabaseID `json:"id"`
	Name        string     `json:"name"`
	Engine      string     `json:"engine"`
	Description *string    `json:"description,omitempty"`
	IsSample    bool       `json:"is_sample"`
	IsFullSync  bool       `json:"is_full_sync"`
	Features    []string   `json:"features,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// CheckRequired reports a decoded database missing its identity.
func (d *Database) CheckRequired() error {
	if d.ID == 0 || d.Name == "" {
		return errors.New("database requires id and name")
	}
	return nil
}

// DatabaseMetadata is returned by GET /api/database/:id/metadata: the
// database with its tables and their fields.
type DatabaseMetadata struct {
	ID     DatabaseID `json:"id"`
	Name   string     `json:"name"`
	Engine string     `json:"engine"`
	Tables []Table    `json:"tables"`
}

// Table finds a table by schema and name. An empty schema matches any.
func (m *DatabaseMetadata) Table(schema, name string) (Table, bool) {
	for _, t := range m.Tables {
		if t.Name == name && (schema == "" || t.Schema == schema) {
			return t, true
		}
	}
	return Table{}, false
}

// Table is a database table or view.
type Table struct {
	ID             TableID    `json:"id"`
	DBID           DatabaseID `json:"db_id"`
	Name           string     `json:"name"`
	DisplayName    string     `json:"display_name"`
	Schema         string     `json:"schema"`
	Description    *string    `json:"description,omitempty"`
	EntityType     string     `json:"entity_type,omitempty"`
	VisibilityType *string    `json:"visibility_type,omitempty"`
	Fields         []Field    `json:"fields,omitempty"`
}

// IsHidden reports whether the table is hidden from normal views.
func (t Table) IsHidden() bool {
	if t.VisibilityType == nil {
		return false
	}
	switch *t.VisibilityType {
	case "hidden", "technical", "cruft":
		return true
	}
	return false
}

// Field is a column of a table.
type Field struct {
	ID             FieldID  `json:"id"`
	TableID        TableID  `json:"table_id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	BaseType       string   `json:"base_type"`
	EffectiveType  string   `json:"effective_type,omitempty"`
	SemanticType   *string  `json:"semantic_type,omitempty"`
	Description    *string  `json:"description,omitempty"`
	VisibilityType string   `json:"visibility_type,omitempty"`
	FKTargetID     *FieldID `json:"fk_target_field_id,omitempty"`
}

// IsPK reports whether the field is a primary key.
func (f Field) IsPK() bool { return f.SemanticType != nil && *f.SemanticType == "type/PK" }

// IsFK reports whether the field is a foreign key.
func (f Field) IsFK() bool { return f.SemanticType != nil && *f.SemanticType == "type/FK" }

// CreateDatabaseRequest is the body of POST /api/database.
type CreateDatabaseRequest struct {
	Name        string                 `json:"name"`
	Engine      string                 `json:"engine"`
	Details     map[string]interface{} `json:"details"`
	IsFullSync  *bool                  `json:"is_full_sync,omitempty"`
	Description *string                `json:"description,omitempty"`
}

// UpdateDatabaseRequest is the body of PUT /api/database/:id.
type UpdateDatabaseRequest struct {
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	IsFullSync  *bool                  `json:"is_full_sync,omitempty"`
}

// SyncResult is the acknowledgement of POST /api/database/:id/sync_schema.
type SyncResult struct {
	Status string `json:"status"`
}

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status string `json:"status"`
}

// Healthy reports whether the instance answered "ok".
func (h HealthStatus) Healthy() bool { return h.Status == "ok" }
