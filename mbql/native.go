package mbql

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

// ValueKind is the type of a native query parameter value.
type ValueKind int

const (
	ValueText ValueKind = iota
	ValueNumber
	ValueDate
	ValueBoolean
	ValueList
)

// Value is a typed template parameter value.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Date   time.Time
	Bool   bool
	List   []Value
}

func Text(s string) Value         { return Value{Kind: ValueText, Text: s} }
func Number(n float64) Value      { return Value{Kind: ValueNumber, Number: n} }
func Date(t time.Time) Value      { return Value{Kind: ValueDate, Date: t} }
func Boolean(b bool) Value        { return Value{Kind: ValueBoolean, Bool: b} }
func List(values ...Value) Value  { return Value{Kind: ValueList, List: values} }

// InferValue maps a Go value to a typed parameter value: strings are text,
// numeric kinds are numbers, bools are booleans, time.Time is a date and
// slices are lists.
func InferValue(v interface{}) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return Text(x), nil
	case bool:
		return Boolean(x), nil
	case time.Time:
		return Date(x), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case nil:
		return Value{}, fmt.Errorf("nil parameter value")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("parameter value %v is not a finite number", f)
		}
		return Number(f), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := InferValue(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	}
	return Value{}, fmt.Errorf("unsupported parameter value of type %T", v)
}

func (v Value) wire() interface{} {
	switch v.Kind {
	case ValueNumber:
		return v.Number
	case ValueDate:
		if v.Date.Hour() == 0 && v.Date.Minute() == 0 && v.Date.Second() == 0 && v.Date.Nanosecond() == 0 {
			return v.Date.Format("2006-01-02")
		}
		return v.Date.Format(time.RFC3339)
	case ValueBoolean:
		return v.Bool
	case ValueList:
		out := make([]interface{}, len(v.List))
		for i, item := range v.List {
			out[i] = item.wire()
		}
		return out
	default:
		return v.Text
	}
}

func (v Value) elementKind() ValueKind {
	if v.Kind == ValueList && len(v.List) > 0 {
		return v.List[0].elementKind()
	}
	return v.Kind
}

// TagType is the template-tag type sent for the value.
func (v Value) TagType() string {
	switch v.elementKind() {
	case ValueNumber:
		return "number"
	case ValueDate:
		return "date"
	default:
		return "text"
	}
}

// ParameterType is the parameter type sent for the value.
func (v Value) ParameterType() string {
	switch v.elementKind() {
	case ValueNumber:
		return "number/="
	case ValueDate:
		return "date/single"
	default:
		return "category"
	}
}

// TemplateTag declares a placeholder of a native query.
type TemplateTag struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	DisplayName string `json:"display-name,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
}

// Parameter is a value bound to a template tag.
type Parameter struct {
	Type   string        `json:"type"`
	Target []interface{} `json:"target"`
	Value  interface{}   `json:"value"`
}

// VariableParameter binds value to the template tag called name.
func VariableParameter(name string, value Value) Parameter {
	return Parameter{
		Type:   value.ParameterType(),
		Target: []interface{}{"variable", []interface{}{"template-tag", name}},
		Value:  value.wire(),
	}
}

// Placeholder is a {{name}} occurrence in a native query. Placeholders that
// only appear inside [[ … ]] sections are optional.
type Placeholder struct {
	Name     string
	Optional bool
}

var (
	placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)
	optionalPattern    = regexp.MustCompile(`(?s)\[\[(.*?)\]\]`)
)

type binding struct {
	name  string
	value Value
}

// NativeQuery is a SQL query with {{name}} placeholders and optional [[ … ]]
// sections. Parameters are sent in the order they were first bound.
type NativeQuery struct {
	Database models.DatabaseID
	SQL      string

	params []binding
	errs   []error
}

// NewNativeQuery creates a native query over sql.
func NewNativeQuery(sql string) *NativeQuery {
	return &NativeQuery{SQL: sql}
}

// WithDatabase sets the database the query runs against.
func (q *NativeQuery) WithDatabase(id models.DatabaseID) *NativeQuery {
	q.Database = id
	return q
}

// Param binds a typed value to a placeholder. Rebinding a name replaces the
// value and keeps its original position.
func (q *NativeQuery) Param(name string, v Value) *NativeQuery {
	for i := range q.params {
		if q.params[i].name == name {
			q.params[i].value = v
			return q
		}
	}
	q.params = append(q.params, binding{name: name, value: v})
	return q
}

// Bind binds a Go value, inferring its type with InferValue.
func (q *NativeQuery) Bind(name string, v interface{}) *NativeQuery {
	value, err := InferValue(v)
	if err != nil {
		q.errs = append(q.errs, apierr.Wrap(err, apierr.KindValidation, fmt.Sprintf("parameter %q", name)))
		return q
	}
	return q.Param(name, value)
}

// Params returns the bound parameter names in binding order.
func (q *NativeQuery) Params() []string {
	names := make([]string, len(q.params))
	for i, p := range q.params {
		names[i] = p.name
	}
	return names
}

func (q *NativeQuery) lookup(name string) (Value, bool) {
	for _, p := range q.params {
		if p.name == name {
			return p.value, true
		}
	}
	return Value{}, false
}

// Placeholders lists the distinct placeholders in order of first appearance.
func (q *NativeQuery) Placeholders() []Placeholder {
	optional := map[string]bool{}
	for _, section := range optionalPattern.FindAllStringSubmatch(q.SQL, -1) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(section[1], -1) {
			optional[m[1]] = true
		}
	}
	required := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(optionalPattern.ReplaceAllString(q.SQL, ""), -1) {
		required[m[1]] = true
	}

	var out []Placeholder
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(q.SQL, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Placeholder{Name: name, Optional: optional[name] && !required[name]})
	}
	return out
}

// Validate reports a required placeholder without a value, or a value bound to
// a name that does not appear in the query.
func (q *NativeQuery) Validate() error {
	if len(q.errs) > 0 {
		return q.errs[0]
	}
	if strings.TrimSpace(q.SQL) == "" {
		return apierr.New(apierr.KindValidation, "native query is empty")
	}
	known := map[string]bool{}
	for _, p := range q.Placeholders() {
		known[p.Name] = true
		if _, ok := q.lookup(p.Name); !ok && !p.Optional {
			return apierr.Newf(apierr.KindValidation, "missing value for parameter %q", p.Name)
		}
	}
	for _, p := range q.params {
		if !known[p.name] {
			return apierr.Newf(apierr.KindValidation, "parameter %q does not appear in the query", p.name)
		}
	}
	return nil
}

// Rendered returns the query text with unfilled optional sections removed.
func (q *NativeQuery) Rendered() string {
	return optionalPattern.ReplaceAllStringFunc(q.SQL, func(section string) string {
		for _, m := range placeholderPattern.FindAllStringSubmatch(section, -1) {
			if _, ok := q.lookup(m[1]); !ok {
				return ""
			}
		}
		return section
	})
}

type nativeBody struct {
	Query        string                 `json:"query"`
	TemplateTags map[string]TemplateTag `json:"template-tags,omitempty"`
}

type nativeDataset struct {
	Database   models.DatabaseID `json:"database"`
	Type       string            `json:"type"`
	Native     nativeBody        `json:"native"`
	Parameters []Parameter       `json:"parameters,omitempty"`
}

// MarshalJSON validates the query and encodes the dataset payload.
func (q NativeQuery) MarshalJSON() ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	body := nativeBody{Query: q.Rendered()}
	present := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(body.Query, -1) {
		present[m[1]] = true
	}
	var params []Parameter
	for _, p := range q.params {
		if !present[p.name] {
			continue
		}
		if body.TemplateTags == nil {
			body.TemplateTags = make(map[string]TemplateTag, len(q.params))
		}
		body.TemplateTags[p.name] = TemplateTag{Name: p.name, Type: p.value.TagType()}
		params = append(params, VariableParameter(p.name, p.value))
	}
	return json.Marshal(nativeDataset{
		Database:   q.Database,
		Type:       "native",
		Native:     body,
		Parameters: params,
	})
}
