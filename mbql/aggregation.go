package mbql

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/birbparty/metabase-go/apierr"
)

// AggregationKind is the aggregate function.
type AggregationKind string

const (
	AggCount    AggregationKind = "count"
	AggSum      AggregationKind = "sum"
	AggAvg      AggregationKind = "avg"
	AggMin      AggregationKind = "min"
	AggMax      AggregationKind = "max"
	AggDistinct AggregationKind = "distinct"
	AggCumSum   AggregationKind = "cum-sum"
	AggCumCount AggregationKind = "cum-count"
	AggStdDev   AggregationKind = "stddev"
	AggShare    AggregationKind = "share"
	AggCustom   AggregationKind = "custom"
)

// Aggregation is one entry of the query's aggregation list. Name, when set,
// is the output column name and can be used by OrderByAggregate.
type Aggregation struct {
	Kind       AggregationKind
	Field      *FieldRef
	Condition  *Filter
	Expression json.RawMessage
	Name       string
}

func Count() Aggregation                  { return Aggregation{Kind: AggCount} }
func CountOf(f FieldRef) Aggregation      { return Aggregation{Kind: AggCount, Field: &f} }
func Sum(f FieldRef) Aggregation          { return Aggregation{Kind: AggSum, Field: &f} }
func Avg(f FieldRef) Aggregation          { return Aggregation{Kind: AggAvg, Field: &f} }
func Min(f FieldRef) Aggregation          { return Aggregation{Kind: AggMin, Field: &f} }
func Max(f FieldRef) Aggregation          { return Aggregation{Kind: AggMax, Field: &f} }
func Distinct(f FieldRef) Aggregation     { return Aggregation{Kind: AggDistinct, Field: &f} }
func CumSum(f FieldRef) Aggregation       { return Aggregation{Kind: AggCumSum, Field: &f} }
func CumCount() Aggregation               { return Aggregation{Kind: AggCumCount} }
func StdDev(f FieldRef) Aggregation       { return Aggregation{Kind: AggStdDev, Field: &f} }
func Share(condition Filter) Aggregation  { return Aggregation{Kind: AggShare, Condition: &condition} }
func Custom(expr json.RawMessage) Aggregation {
	if c, err := compact(expr); err == nil {
		expr = c
	}
	return Aggregation{Kind: AggCustom, Expression: expr}
}

// Named sets the output column name.
func (a Aggregation) Named(name string) Aggregation {
	a.Name = name
	return a
}

func (a Aggregation) validate() error {
	switch a.Kind {
	case AggCount, AggCumCount:
		if a.Field != nil {
			return a.Field.validate()
		}
	case AggSum, AggAvg, AggMin, AggMax, AggDistinct, AggCumSum, AggStdDev:
		if a.Field == nil {
			return apierr.Newf(apierr.KindValidation, "%s aggregation needs a field", a.Kind)
		}
		return a.Field.validate()
	case AggShare:
		if a.Condition == nil {
			return apierr.New(apierr.KindValidation, "share aggregation needs a condition")
		}
		return a.Condition.Validate()
	case AggCustom:
		if len(a.Expression) == 0 || !json.Valid(a.Expression) {
			return apierr.New(apierr.KindValidation, "custom aggregation needs a JSON expression")
		}
	default:
		return apierr.Newf(apierr.KindValidation, "unknown aggregation %q", a.Kind)
	}
	return nil
}

func (a Aggregation) clause() (interface{}, error) {
	switch a.Kind {
	case AggCustom:
		return a.Expression, nil
	case AggShare:
		if a.Condition == nil {
			return nil, apierr.New(apierr.KindValidation, "share aggregation needs a condition")
		}
		return []interface{}{a.Kind, *a.Condition}, nil
	}
	if a.Field == nil {
		return []interface{}{a.Kind}, nil
	}
	return []interface{}{a.Kind, *a.Field}, nil
}

// MarshalJSON encodes the aggregation, wrapping named ones in
// ["aggregation-options", clause, {"name": …, "display-name": …}].
func (a Aggregation) MarshalJSON() ([]byte, error) {
	inner, err := a.clause()
	if err != nil {
		return nil, err
	}
	if a.Name == "" {
		return json.Marshal(inner)
	}
	return json.Marshal([]interface{}{
		"aggregation-options",
		inner,
		map[string]string{"name": a.Name, "display-name": a.Name},
	})
}

// UnmarshalJSON decodes an aggregation. Clauses that are not one of the named
// kinds are kept verbatim as custom expressions.
func (a *Aggregation) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return fmt.Errorf("aggregation must be a clause: %s", data)
	}
	var tag string
	_ = json.Unmarshal(parts[0], &tag)

	*a = Aggregation{}
	if tag == "aggregation-options" && len(parts) >= 2 {
		if err := a.UnmarshalJSON(parts[1]); err != nil {
			return err
		}
		if len(parts) > 2 {
			var opts struct {
				Name        string `json:"name"`
				DisplayName string `json:"display-name"`
			}
			if err := json.Unmarshal(parts[2], &opts); err != nil {
				return fmt.Errorf("aggregation options: %w", err)
			}
			a.Name = opts.Name
			if a.Name == "" {
				a.Name = opts.DisplayName
			}
		}
		return nil
	}

	kind := AggregationKind(tag)
	switch kind {
	case AggCount, AggCumCount, AggSum, AggAvg, AggMin, AggMax, AggDistinct, AggCumSum, AggStdDev:
		a.Kind = kind
		if len(parts) > 1 {
			var ref FieldRef
			if err := json.Unmarshal(parts[1], &ref); err != nil {
				return err
			}
			a.Field = &ref
		}
		return nil
	case AggShare:
		if len(parts) > 1 {
			var cond Filter
			if err := json.Unmarshal(parts[1], &cond); err != nil {
				return err
			}
			a.Kind = kind
			a.Condition = &cond
			return nil
		}
	}

	expr, err := compact(bytes.TrimSpace(data))
	if err != nil {
		return err
	}
	a.Kind = AggCustom
	a.Expression = expr
	return nil
}
