package sdk

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/birbparty/metabase-go/internal/service"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

// QueryOptions controls caching of one query result. Results are cached
// only when Cache is set; TTL overrides the configured default, up to the
// configured maximum.
type QueryOptions = service.QueryOptions

// ExecuteSQL runs sql against a database.
//
// Example:
//
//	result, err := client.ExecuteSQL(ctx, 1, "SELECT count(*) FROM orders")
//	fmt.Println(result.RowCount)
func (c *Client) ExecuteSQL(ctx context.Context, db models.DatabaseID, sql string) (*models.QueryResult, error) {
	return c.ExecuteNativeQueryWith(ctx, db, mbql.NewNativeQuery(sql), QueryOptions{})
}

// ExecuteSQLWithParams binds params to the {{name}} placeholders of sql and
// runs it. Parameter types are inferred from the Go values: strings are
// text, numbers are numbers, time.Time values are dates and slices are
// lists. A placeholder without a value fails with a Validation error before
// anything is sent.
//
// Example:
//
//	result, err := client.ExecuteSQLWithParams(ctx, 1,
//	    "SELECT * FROM orders WHERE status = {{status}} [[AND total > {{min}}]]",
//	    map[string]interface{}{"status": "done"})
func (c *Client) ExecuteSQLWithParams(ctx context.Context, db models.DatabaseID, sql string, params map[string]interface{}) (*models.QueryResult, error) {
	return call(ctx, c, "execute_sql", true, func(ctx context.Context) (*models.QueryResult, error) {
		return c.queries.ExecuteSQLWithParams(ctx, db, sql, params, QueryOptions{})
	}, attribute.Int64("metabase.database_id", int64(db)))
}

// ExecuteNativeQuery runs a prepared native query against db. The query is
// not modified.
func (c *Client) ExecuteNativeQuery(ctx context.Context, db models.DatabaseID, q *mbql.NativeQuery) (*models.QueryResult, error) {
	return c.ExecuteNativeQueryWith(ctx, db, q, QueryOptions{})
}

// ExecuteNativeQueryWith is ExecuteNativeQuery with result caching options.
func (c *Client) ExecuteNativeQueryWith(ctx context.Context, db models.DatabaseID, q *mbql.NativeQuery, opts QueryOptions) (*models.QueryResult, error) {
	return call(ctx, c, "execute_native_query", true, func(ctx context.Context) (*models.QueryResult, error) {
		return c.queries.ExecuteNative(ctx, onDatabase(q, db), opts)
	}, attribute.Int64("metabase.database_id", int64(db)))
}

// ExecuteMBQL runs a structured query.
func (c *Client) ExecuteMBQL(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	return c.ExecuteMBQLWith(ctx, q, QueryOptions{})
}

// ExecuteMBQLWith is ExecuteMBQL with result caching options.
//
// Example:
//
//	result, err := client.ExecuteMBQLWith(ctx, q, sdk.QueryOptions{
//	    Cache: true,
//	    TTL:   5 * time.Minute,
//	})
func (c *Client) ExecuteMBQLWith(ctx context.Context, q mbql.Query, opts QueryOptions) (*models.QueryResult, error) {
	return call(ctx, c, "execute_mbql", true, func(ctx context.Context) (*models.QueryResult, error) {
		return c.queries.ExecuteMBQL(ctx, q, opts)
	}, attribute.Int64("metabase.database_id", int64(q.Database)))
}

// ExecutePivot runs a structured query with subtotal rows for every
// breakout combination.
func (c *Client) ExecutePivot(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	return call(ctx, c, "execute_pivot", true, func(ctx context.Context) (*models.QueryResult, error) {
		return c.queries.ExecutePivot(ctx, q, QueryOptions{})
	}, attribute.Int64("metabase.database_id", int64(q.Database)))
}

// ExecuteCardQuery runs a stored card. params override the card's defaults.
func (c *Client) ExecuteCardQuery(ctx context.Context, id models.CardID, params ...mbql.Parameter) (*models.QueryResult, error) {
	return call(ctx, c, "execute_card_query", true, func(ctx context.Context) (*models.QueryResult, error) {
		return c.queries.ExecuteCard(ctx, id, params, QueryOptions{})
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// ExportCardQuery downloads the results of a stored card in format.
//
// Example:
//
//	csv, err := client.ExportCardQuery(ctx, 42, models.ExportCSV)
func (c *Client) ExportCardQuery(ctx context.Context, id models.CardID, format models.ExportFormat, params ...mbql.Parameter) ([]byte, error) {
	return call(ctx, c, "export_card_query", true, func(ctx context.Context) ([]byte, error) {
		return c.queries.ExportCard(ctx, id, format, params)
	}, attribute.Int64("metabase.card_id", int64(id)), attribute.String("metabase.export_format", string(format)))
}

// ExportMBQL downloads the results of a structured query in format.
func (c *Client) ExportMBQL(ctx context.Context, q mbql.Query, format models.ExportFormat) ([]byte, error) {
	return call(ctx, c, "export_mbql", true, func(ctx context.Context) ([]byte, error) {
		return c.queries.ExportMBQL(ctx, q, format)
	}, attribute.String("metabase.export_format", string(format)))
}

// ExportSQL downloads the results of a native query in format. params may
// be nil.
func (c *Client) ExportSQL(ctx context.Context, db models.DatabaseID, sql string, params map[string]interface{}, format models.ExportFormat) ([]byte, error) {
	return call(ctx, c, "export_sql", true, func(ctx context.Context) ([]byte, error) {
		return c.queries.ExportNative(ctx, service.NativeWithParams(db, sql, params), format)
	}, attribute.Int64("metabase.database_id", int64(db)), attribute.String("metabase.export_format", string(format)))
}

// onDatabase returns q aimed at db without changing the caller's query.
func onDatabase(q *mbql.NativeQuery, db models.DatabaseID) *mbql.NativeQuery {
	if q == nil {
		return nil
	}
	cp := *q
	return cp.WithDatabase(db)
}
