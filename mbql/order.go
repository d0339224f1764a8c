package mbql

import (
	"encoding/json"
	"fmt"

	"github.com/birbparty/metabase-go/apierr"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderBy sorts by a field or by the aggregation at a position in the
// aggregation list.
type OrderBy struct {
	Direction   Direction
	Field       *FieldRef
	Aggregation *int
}

func (o OrderBy) validate(aggregations int) error {
	if o.Direction != Asc && o.Direction != Desc {
		return apierr.Newf(apierr.KindValidation, "unknown sort direction %q", o.Direction)
	}
	switch {
	case o.Field != nil && o.Aggregation != nil:
		return apierr.New(apierr.KindValidation, "order-by targets both a field and an aggregation")
	case o.Field != nil:
		return o.Field.validate()
	case o.Aggregation != nil:
		if *o.Aggregation < 0 || *o.Aggregation >= aggregations {
			return apierr.Newf(apierr.KindValidation, "order-by aggregation index %d out of range", *o.Aggregation)
		}
		return nil
	}
	return apierr.New(apierr.KindValidation, "order-by has no target")
}

// MarshalJSON encodes [direction, field] or [direction, ["aggregation", i]].
func (o OrderBy) MarshalJSON() ([]byte, error) {
	if o.Aggregation != nil {
		return json.Marshal([]interface{}{o.Direction, []interface{}{"aggregation", *o.Aggregation}})
	}
	if o.Field == nil {
		return nil, apierr.New(apierr.KindValidation, "order-by has no target")
	}
	return json.Marshal([]interface{}{o.Direction, *o.Field})
}

// UnmarshalJSON decodes an order-by clause.
func (o *OrderBy) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) != 2 {
		return fmt.Errorf("order-by must be [direction, target]: %s", data)
	}
	*o = OrderBy{}
	if err := json.Unmarshal(parts[0], &o.Direction); err != nil {
		return err
	}

	var target []json.RawMessage
	if err := json.Unmarshal(parts[1], &target); err != nil || len(target) == 0 {
		return fmt.Errorf("order-by target: %s", parts[1])
	}
	var tag string
	_ = json.Unmarshal(target[0], &tag)
	if tag == "aggregation" && len(target) >= 2 {
		var idx int
		if err := json.Unmarshal(target[1], &idx); err != nil {
			return err
		}
		o.Aggregation = &idx
		return nil
	}
	var ref FieldRef
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return err
	}
	o.Field = &ref
	return nil
}
