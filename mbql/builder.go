package mbql

import (
	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

// Builder assembles a Query fluently. Problems are collected and reported by
// Build, so a chain never needs intermediate error checks.
//
// Build guarantees that every referenced field is well formed, that order-by
// entries naming an aggregation resolve to an existing aggregation alias (and
// are sent by position), and that at most one limit was given.
type Builder struct {
	q       Query
	filters []Filter
	orders  []pendingOrder
	limited bool
	errs    []error
}

type pendingOrder struct {
	dir   Direction
	field *FieldRef
	alias string
	index *int
}

// FromTable starts a query over a table.
func FromTable(id models.TableID) *Builder {
	return &Builder{q: Query{SourceTable: &id}}
}

// FromCard starts a query over the results of a saved card.
func FromCard(id models.CardID) *Builder {
	return &Builder{q: Query{SourceCard: &id}}
}

// Database sets the database the query runs against.
func (b *Builder) Database(id models.DatabaseID) *Builder {
	b.q.Database = id
	return b
}

// Fields restricts the selected columns.
func (b *Builder) Fields(fields ...FieldRef) *Builder {
	b.q.Fields = append(b.q.Fields, fields...)
	return b
}

// Filter adds a filter. Several calls are combined with and.
func (b *Builder) Filter(f Filter) *Builder {
	b.filters = append(b.filters, f)
	return b
}

// Aggregate adds an aggregation.
func (b *Builder) Aggregate(a Aggregation) *Builder {
	b.q.Aggregations = append(b.q.Aggregations, a)
	return b
}

// Breakout groups by the given fields.
func (b *Builder) Breakout(fields ...FieldRef) *Builder {
	b.q.Breakouts = append(b.q.Breakouts, fields...)
	return b
}

// OrderBy sorts by a field.
func (b *Builder) OrderBy(f FieldRef, dir Direction) *Builder {
	b.orders = append(b.orders, pendingOrder{dir: dir, field: &f})
	return b
}

// OrderByAggregate sorts by the aggregation named alias. The alias may be
// added after this call; it is resolved by Build.
func (b *Builder) OrderByAggregate(alias string, dir Direction) *Builder {
	b.orders = append(b.orders, pendingOrder{dir: dir, alias: alias})
	return b
}

// OrderByAggregation sorts by the aggregation at index.
func (b *Builder) OrderByAggregation(index int, dir Direction) *Builder {
	b.orders = append(b.orders, pendingOrder{dir: dir, index: &index})
	return b
}

// Limit caps the number of rows. It may be called once.
func (b *Builder) Limit(n int) *Builder {
	if b.limited {
		b.errs = append(b.errs, apierr.New(apierr.KindValidation, "limit already set"))
		return b
	}
	b.limited = true
	b.q.Limit = &n
	return b
}

// Build validates and returns the query. Failures are Validation errors.
func (b *Builder) Build() (Query, error) {
	if len(b.errs) > 0 {
		return Query{}, b.errs[0]
	}

	q := b.q
	q.Fields = append([]FieldRef(nil), b.q.Fields...)
	q.Aggregations = append([]Aggregation(nil), b.q.Aggregations...)
	q.Breakouts = append([]FieldRef(nil), b.q.Breakouts...)
	if len(q.Fields) == 0 {
		q.Fields = nil
	}
	if len(q.Aggregations) == 0 {
		q.Aggregations = nil
	}
	if len(q.Breakouts) == 0 {
		q.Breakouts = nil
	}

	if len(b.filters) > 0 {
		f := And(b.filters...)
		q.Filter = &f
	}

	aliases := make(map[string]int, len(q.Aggregations))
	for i, a := range q.Aggregations {
		if a.Name == "" {
			continue
		}
		if _, dup := aliases[a.Name]; dup {
			return Query{}, apierr.Newf(apierr.KindValidation, "duplicate aggregation name %q", a.Name)
		}
		aliases[a.Name] = i
	}

	for _, o := range b.orders {
		entry := OrderBy{Direction: o.dir, Field: o.field, Aggregation: o.index}
		if o.alias != "" {
			idx, ok := aliases[o.alias]
			if !ok {
				return Query{}, apierr.Newf(apierr.KindValidation, "order-by references unknown aggregation %q", o.alias)
			}
			entry.Aggregation = &idx
		}
		q.OrderBy = append(q.OrderBy, entry)
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}
