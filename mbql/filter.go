package mbql

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/birbparty/metabase-go/apierr"
)

// Operator is a filter clause operator.
type Operator string

const (
	OpEq         Operator = "="
	OpNotEq      Operator = "!="
	OpLess       Operator = "<"
	OpLessEq     Operator = "<="
	OpGreater    Operator = ">"
	OpGreaterEq  Operator = ">="
	OpBetween    Operator = "between"
	OpIsNull     Operator = "is-null"
	OpNotNull    Operator = "not-null"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts-with"
	OpEndsWith   Operator = "ends-with"
	OpIn         Operator = "in"
	OpAnd        Operator = "and"
	OpOr         Operator = "or"
	OpNot        Operator = "not"
)

// Filter is a node of the filter tree. Leaves carry Field and Values; and, or
// and not carry Clauses. Values are held as canonical JSON so a parsed filter
// compares equal to the one that produced it.
type Filter struct {
	Op      Operator
	Field   *FieldRef
	Values  []json.RawMessage
	Clauses []Filter

	err error
}

func literal(v interface{}) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return compact(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("filter value %v: %w", v, err)
	}
	return data, nil
}

func compact(raw []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func leaf(op Operator, f FieldRef, values ...interface{}) Filter {
	out := Filter{Op: op, Field: &f}
	for _, v := range values {
		raw, err := literal(v)
		if err != nil {
			out.err = apierr.Wrap(err, apierr.KindValidation, "invalid filter value")
			return out
		}
		out.Values = append(out.Values, raw)
	}
	return out
}

func (f FieldRef) Eq(v interface{}) Filter             { return leaf(OpEq, f, v) }
func (f FieldRef) NotEq(v interface{}) Filter          { return leaf(OpNotEq, f, v) }
func (f FieldRef) LessThan(v interface{}) Filter       { return leaf(OpLess, f, v) }
func (f FieldRef) LessOrEqual(v interface{}) Filter    { return leaf(OpLessEq, f, v) }
func (f FieldRef) GreaterThan(v interface{}) Filter    { return leaf(OpGreater, f, v) }
func (f FieldRef) GreaterOrEqual(v interface{}) Filter { return leaf(OpGreaterEq, f, v) }
func (f FieldRef) Between(lo, hi interface{}) Filter   { return leaf(OpBetween, f, lo, hi) }
func (f FieldRef) IsNull() Filter                      { return leaf(OpIsNull, f) }
func (f FieldRef) NotNull() Filter                     { return leaf(OpNotNull, f) }
func (f FieldRef) Contains(s string) Filter            { return leaf(OpContains, f, s) }
func (f FieldRef) StartsWith(s string) Filter          { return leaf(OpStartsWith, f, s) }
func (f FieldRef) EndsWith(s string) Filter            { return leaf(OpEndsWith, f, s) }

// In matches any of values. A single value is an equality filter.
func (f FieldRef) In(values ...interface{}) Filter {
	if len(values) == 1 {
		return leaf(OpEq, f, values[0])
	}
	return leaf(OpIn, f, values...)
}

// And combines filters; a single filter is returned unchanged.
func And(filters ...Filter) Filter { return combine(OpAnd, filters) }

// Or matches when any filter matches; a single filter is returned unchanged.
func Or(filters ...Filter) Filter { return combine(OpOr, filters) }

// Not negates a filter.
func Not(f Filter) Filter { return Filter{Op: OpNot, Clauses: []Filter{f}} }

func combine(op Operator, filters []Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return Filter{Op: op, Clauses: filters}
}

// Validate checks the arity of every clause in the tree.
func (f Filter) Validate() error {
	if f.err != nil {
		return f.err
	}
	switch f.Op {
	case OpAnd, OpOr:
		if len(f.Clauses) < 2 {
			return apierr.Newf(apierr.KindValidation, "%s filter needs at least two clauses", f.Op)
		}
	case OpNot:
		if len(f.Clauses) != 1 {
			return apierr.New(apierr.KindValidation, "not filter needs exactly one clause")
		}
	default:
		return f.validateLeaf()
	}
	for _, c := range f.Clauses {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f Filter) validateLeaf() error {
	if f.Field == nil {
		return apierr.Newf(apierr.KindValidation, "%q filter has no field", f.Op)
	}
	if err := f.Field.validate(); err != nil {
		return err
	}
	want := 1
	switch f.Op {
	case OpIsNull, OpNotNull:
		want = 0
	case OpBetween:
		want = 2
	case OpIn:
		if len(f.Values) < 2 {
			return apierr.New(apierr.KindValidation, "in filter needs at least two values")
		}
		return nil
	case OpEq, OpNotEq, OpLess, OpLessEq, OpGreater, OpGreaterEq, OpContains, OpStartsWith, OpEndsWith:
	default:
		return apierr.Newf(apierr.KindValidation, "unknown filter operator %q", f.Op)
	}
	if len(f.Values) != want {
		return apierr.Newf(apierr.KindValidation, "%q filter takes %d value(s), got %d", f.Op, want, len(f.Values))
	}
	return nil
}

// MarshalJSON encodes the clause. "in" is sent in the server's form, an
// equality clause with several values.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	op := f.Op
	if op == OpIn {
		op = OpEq
	}
	clause := []interface{}{op}
	switch f.Op {
	case OpAnd, OpOr, OpNot:
		for _, c := range f.Clauses {
			clause = append(clause, c)
		}
	default:
		if f.Field != nil {
			clause = append(clause, *f.Field)
		}
		for _, v := range f.Values {
			clause = append(clause, v)
		}
	}
	return json.Marshal(clause)
}

// UnmarshalJSON decodes a clause; an equality clause with several values
// becomes "in".
func (f *Filter) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return fmt.Errorf("filter must be a clause: %s", data)
	}
	var op Operator
	if err := json.Unmarshal(parts[0], &op); err != nil {
		return fmt.Errorf("filter operator: %w", err)
	}

	*f = Filter{Op: op}
	switch op {
	case OpAnd, OpOr, OpNot:
		for _, p := range parts[1:] {
			var c Filter
			if err := json.Unmarshal(p, &c); err != nil {
				return err
			}
			f.Clauses = append(f.Clauses, c)
		}
		return nil
	}

	if len(parts) < 2 {
		return fmt.Errorf("%q filter has no field", op)
	}
	var ref FieldRef
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return err
	}
	f.Field = &ref
	for _, p := range parts[2:] {
		raw, err := compact(p)
		if err != nil {
			return err
		}
		f.Values = append(f.Values, raw)
	}
	if op == OpEq && len(f.Values) > 1 {
		f.Op = OpIn
	}
	return nil
}
