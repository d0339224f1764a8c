package mbql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

const cardSourcePrefix = "card__"

// Query is a structured MBQL query. It encodes as a complete dataset query:
// {"database": …, "type": "query", "query": {…}}.
type Query struct {
	Database     models.DatabaseID
	SourceTable  *models.TableID
	SourceCard   *models.CardID
	Fields       []FieldRef
	Filter       *Filter
	Aggregations []Aggregation
	Breakouts    []FieldRef
	OrderBy      []OrderBy
	Limit        *int
}

type innerQuery struct {
	SourceTable json.RawMessage `json:"source-table,omitempty"`
	SourceCard  *models.CardID  `json:"source-card,omitempty"`
	Fields      []FieldRef      `json:"fields,omitempty"`
	Filter      *Filter         `json:"filter,omitempty"`
	Aggregation []Aggregation   `json:"aggregation,omitempty"`
	Breakout    []FieldRef      `json:"breakout,omitempty"`
	OrderBy     []OrderBy       `json:"order-by,omitempty"`
	Limit       *int            `json:"limit,omitempty"`
}

type datasetEnvelope struct {
	Database   models.DatabaseID `json:"database,omitempty"`
	Type       string            `json:"type"`
	Query      json.RawMessage   `json:"query,omitempty"`
	Native     json.RawMessage   `json:"native,omitempty"`
	Parameters json.RawMessage   `json:"parameters,omitempty"`
}

// Validate checks the source and every clause of the query.
func (q Query) Validate() error {
	if (q.SourceTable == nil) == (q.SourceCard == nil) {
		return apierr.New(apierr.KindValidation, "query needs exactly one of source table or source card")
	}
	for _, f := range q.Fields {
		if err := f.validate(); err != nil {
			return err
		}
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return err
		}
	}
	for _, a := range q.Aggregations {
		if err := a.validate(); err != nil {
			return err
		}
	}
	for _, b := range q.Breakouts {
		if err := b.validate(); err != nil {
			return err
		}
	}
	for _, o := range q.OrderBy {
		if err := o.validate(len(q.Aggregations)); err != nil {
			return err
		}
	}
	if q.Limit != nil && *q.Limit < 0 {
		return apierr.New(apierr.KindValidation, "limit must not be negative")
	}
	return nil
}

// Inner encodes only the "query" object of the dataset query.
func (q Query) Inner() ([]byte, error) {
	inner := innerQuery{
		Fields:      q.Fields,
		Filter:      q.Filter,
		Aggregation: q.Aggregations,
		Breakout:    q.Breakouts,
		OrderBy:     q.OrderBy,
		Limit:       q.Limit,
	}
	switch {
	case q.SourceTable != nil:
		inner.SourceTable = json.RawMessage(strconv.FormatInt(int64(*q.SourceTable), 10))
	case q.SourceCard != nil:
		inner.SourceTable = json.RawMessage(strconv.Quote(cardSourcePrefix + q.SourceCard.String()))
	}
	return json.Marshal(inner)
}

// MarshalJSON encodes the complete dataset query.
func (q Query) MarshalJSON() ([]byte, error) {
	inner, err := q.Inner()
	if err != nil {
		return nil, err
	}
	return json.Marshal(datasetEnvelope{Database: q.Database, Type: "query", Query: inner})
}

// UnmarshalJSON decodes a dataset query of type "query".
func (q *Query) UnmarshalJSON(data []byte) error {
	var env datasetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type != "query" {
		return fmt.Errorf("dataset query type %q is not an MBQL query", env.Type)
	}
	if len(env.Query) == 0 {
		return fmt.Errorf("MBQL dataset query has no query object")
	}
	var inner innerQuery
	if err := json.Unmarshal(env.Query, &inner); err != nil {
		return err
	}

	*q = Query{
		Database:     env.Database,
		Fields:       inner.Fields,
		Filter:       inner.Filter,
		Aggregations: inner.Aggregation,
		Breakouts:    inner.Breakout,
		OrderBy:      inner.OrderBy,
		Limit:        inner.Limit,
		SourceCard:   inner.SourceCard,
	}
	if len(inner.SourceTable) > 0 {
		return q.decodeSourceTable(inner.SourceTable)
	}
	return nil
}

func (q *Query) decodeSourceTable(raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		if !strings.HasPrefix(s, cardSourcePrefix) {
			return fmt.Errorf("unsupported source-table %q", s)
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(s, cardSourcePrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("source-table %q: %w", s, err)
		}
		card := models.CardID(n)
		q.SourceCard = &card
		return nil
	}
	var table models.TableID
	if err := json.Unmarshal(raw, &table); err != nil {
		return err
	}
	q.SourceTable = &table
	return nil
}

// ParseQuery decodes a serialized MBQL dataset query.
func ParseQuery(data []byte) (Query, error) {
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, apierr.Wrap(err, apierr.KindSerialization, "parse MBQL query")
	}
	return q, nil
}
