package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

// QueryOptions controls result caching of one execution. Results are not
// cached unless Cache is set.
type QueryOptions struct {
	Cache bool
	// TTL overrides the default query TTL, capped at the configured maximum
	TTL time.Duration
}

// QueryService executes native, structured and stored queries.
type QueryService struct {
	base
	repo repository.QueryRepository
}

func NewQueryService(repo repository.QueryRepository, c *cache.Cache, cfg Config) *QueryService {
	return &QueryService{
		base: newBase(c, cfg, "query_service"),
		repo: repo,
	}
}

// ExecuteSQL runs sql against a database without parameters.
func (s *QueryService) ExecuteSQL(ctx context.Context, db models.DatabaseID, sql string, opts QueryOptions) (*models.QueryResult, error) {
	return s.ExecuteNative(ctx, mbql.NewNativeQuery(sql).WithDatabase(db), opts)
}

// ExecuteSQLWithParams binds params by name, inferring their types, and runs
// the query. Parameters are sent in name order.
func (s *QueryService) ExecuteSQLWithParams(ctx context.Context, db models.DatabaseID, sql string, params map[string]interface{}, opts QueryOptions) (*models.QueryResult, error) {
	return s.ExecuteNative(ctx, NativeWithParams(db, sql, params), opts)
}

// NativeWithParams builds a native query binding params in name order.
func NativeWithParams(db models.DatabaseID, sql string, params map[string]interface{}) *mbql.NativeQuery {
	q := mbql.NewNativeQuery(sql).WithDatabase(db)
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Bind(name, params[name])
	}
	return q
}

// ExecuteNative runs a prepared native query. Missing parameters fail with
// Validation before anything is sent.
func (s *QueryService) ExecuteNative(ctx context.Context, q *mbql.NativeQuery, opts QueryOptions) (*models.QueryResult, error) {
	if q == nil {
		return nil, apierr.New(apierr.KindValidation, "native query is nil")
	}
	if q.Database == 0 {
		return nil, apierr.New(apierr.KindValidation, "native query needs a database")
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, invalid(err, "invalid native query")
	}
	res, err := s.cached(ctx, opts, cache.QueryKey(payload), func(ctx context.Context) (*models.QueryResult, error) {
		return s.repo.ExecuteNative(ctx, q)
	})
	return res, fail(err, "execute native query")
}

// ExecuteMBQL runs a structured query.
func (s *QueryService) ExecuteMBQL(ctx context.Context, q mbql.Query, opts QueryOptions) (*models.QueryResult, error) {
	payload, err := s.mbqlPayload(q)
	if err != nil {
		return nil, err
	}
	res, err := s.cached(ctx, opts, cache.QueryKey(payload), func(ctx context.Context) (*models.QueryResult, error) {
		return s.repo.ExecuteMBQL(ctx, q)
	})
	return res, fail(err, "execute MBQL query")
}

// ExecutePivot runs a structured query through the pivot endpoint, which adds
// subtotal rows for every breakout combination.
func (s *QueryService) ExecutePivot(ctx context.Context, q mbql.Query, opts QueryOptions) (*models.QueryResult, error) {
	payload, err := s.mbqlPayload(q)
	if err != nil {
		return nil, err
	}
	key := cache.QueryKey(append([]byte("pivot:"), payload...))
	res, err := s.cached(ctx, opts, key, func(ctx context.Context) (*models.QueryResult, error) {
		return s.repo.ExecutePivot(ctx, q)
	})
	return res, fail(err, "execute pivot query")
}

// ExecuteCard runs a stored card. params override the card's defaults.
func (s *QueryService) ExecuteCard(ctx context.Context, id models.CardID, params []mbql.Parameter, opts QueryOptions) (*models.QueryResult, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, invalid(err, "invalid card parameters")
	}
	res, err := s.cached(ctx, opts, cache.CardQueryKey(id, encoded), func(ctx context.Context) (*models.QueryResult, error) {
		return s.repo.ExecuteCard(ctx, id, params)
	})
	return res, fail(err, "execute card %d", id)
}

// ExportCard downloads the results of a stored card.
func (s *QueryService) ExportCard(ctx context.Context, id models.CardID, format models.ExportFormat, params []mbql.Parameter) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, invalid(err, "export card")
	}
	out, err := s.repo.ExportCard(ctx, id, format, params)
	if err != nil {
		return nil, fail(err, "export card %d", id)
	}
	return out, nil
}

// ExportMBQL downloads the results of a structured query.
func (s *QueryService) ExportMBQL(ctx context.Context, q mbql.Query, format models.ExportFormat) ([]byte, error) {
	if _, err := s.mbqlPayload(q); err != nil {
		return nil, err
	}
	return s.export(ctx, mbql.DatasetQuery{MBQL: &q}, format)
}

// ExportNative downloads the results of a native query.
func (s *QueryService) ExportNative(ctx context.Context, q *mbql.NativeQuery, format models.ExportFormat) ([]byte, error) {
	if q == nil {
		return nil, apierr.New(apierr.KindValidation, "native query is nil")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.export(ctx, mbql.DatasetQuery{Native: q}, format)
}

func (s *QueryService) export(ctx context.Context, dq mbql.DatasetQuery, format models.ExportFormat) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, invalid(err, "export dataset")
	}
	out, err := s.repo.ExportDataset(ctx, dq, format)
	if err != nil {
		return nil, fail(err, "export %s query", dq.Type())
	}
	return out, nil
}

func (s *QueryService) mbqlPayload(q mbql.Query) ([]byte, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, invalid(err, "invalid MBQL query")
	}
	return payload, nil
}

// cached runs load through the query namespace when opts ask for it.
func (s *QueryService) cached(ctx context.Context, opts QueryOptions, key string, load func(context.Context) (*models.QueryResult, error)) (*models.QueryResult, error) {
	if !opts.Cache || s.cache == nil {
		return load(ctx)
	}
	return cache.Fetch(ctx, s.cache, key, s.cache.QueryTTL(opts.TTL), load)
}
