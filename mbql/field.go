// Package mbql builds the query payloads accepted by POST /api/dataset:
// structured MBQL queries (source table or card, filters, aggregations,
// breakouts, ordering, limit) and native SQL queries with typed template
// parameters.
//
// Example:
//
//	q, err := mbql.FromTable(5).
//	    Database(1).
//	    Filter(mbql.Field(7).GreaterThan(10)).
//	    Aggregate(mbql.Count()).
//	    OrderBy(mbql.Field(7), mbql.Asc).
//	    Limit(20).
//	    Build()
package mbql

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

// AnyType is the base type used for name-based references with no known type.
const AnyType = "type/*"

// FieldRef references a column, either by field id or by name.
type FieldRef struct {
	ID           models.FieldID
	Name         string
	BaseType     string
	SourceField  *models.FieldID
	TemporalUnit string
}

// Field references a column by id.
func Field(id models.FieldID) FieldRef {
	return FieldRef{ID: id}
}

// FieldNamed references a column by name, as used for native-query sources
// and nested queries.
func FieldNamed(name, baseType string) FieldRef {
	if baseType == "" {
		baseType = AnyType
	}
	return FieldRef{Name: name, BaseType: baseType}
}

// WithSourceField marks the reference as reached through a foreign key.
func (f FieldRef) WithSourceField(id models.FieldID) FieldRef {
	f.SourceField = &id
	return f
}

// WithTemporalUnit buckets a date column, e.g. "month".
func (f FieldRef) WithTemporalUnit(unit string) FieldRef {
	f.TemporalUnit = unit
	return f
}

func (f FieldRef) validate() error {
	switch {
	case f.ID > 0 && f.Name != "":
		return apierr.New(apierr.KindValidation, "field reference has both id and name")
	case f.ID <= 0 && f.Name == "":
		return apierr.New(apierr.KindValidation, "field reference needs a positive id or a name")
	}
	return nil
}

func (f FieldRef) options() map[string]interface{} {
	opts := map[string]interface{}{}
	if f.BaseType != "" {
		opts["base-type"] = f.BaseType
	}
	if f.SourceField != nil {
		opts["source-field"] = *f.SourceField
	}
	if f.TemporalUnit != "" {
		opts["temporal-unit"] = f.TemporalUnit
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// MarshalJSON encodes ["field", id-or-name, options-or-null].
func (f FieldRef) MarshalJSON() ([]byte, error) {
	var target interface{} = f.ID
	if f.Name != "" {
		target = f.Name
	}
	return json.Marshal([]interface{}{"field", target, f.options()})
}

// UnmarshalJSON accepts the current ["field", …] form and the legacy
// ["field-id", id] and ["field-literal", name, type] forms.
func (f *FieldRef) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) < 2 {
		return fmt.Errorf("field reference must be a clause: %s", data)
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return fmt.Errorf("field reference tag: %w", err)
	}

	*f = FieldRef{}
	switch tag {
	case "field":
		if err := f.decodeTarget(parts[1]); err != nil {
			return err
		}
		if len(parts) > 2 {
			return f.decodeOptions(parts[2])
		}
		return nil
	case "field-id":
		return json.Unmarshal(parts[1], &f.ID)
	case "field-literal":
		if err := json.Unmarshal(parts[1], &f.Name); err != nil {
			return err
		}
		if len(parts) > 2 {
			return json.Unmarshal(parts[2], &f.BaseType)
		}
		return nil
	}
	return fmt.Errorf("unsupported field reference %q", tag)
}

func (f *FieldRef) decodeTarget(raw json.RawMessage) error {
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return json.Unmarshal(raw, &f.Name)
	}
	return json.Unmarshal(raw, &f.ID)
}

func (f *FieldRef) decodeOptions(raw json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var opts struct {
		BaseType     string          `json:"base-type"`
		SourceField  *models.FieldID `json:"source-field"`
		TemporalUnit string          `json:"temporal-unit"`
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return fmt.Errorf("field options: %w", err)
	}
	f.BaseType = opts.BaseType
	f.SourceField = opts.SourceField
	f.TemporalUnit = opts.TemporalUnit
	return nil
}
