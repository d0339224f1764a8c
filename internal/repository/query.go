package repository

import (
	"context"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

// QueryRepository runs ad-hoc and stored queries.
type QueryRepository interface {
	ExecuteNative(ctx context.Context, q *mbql.NativeQuery) (*models.QueryResult, error)
	ExecuteMBQL(ctx context.Context, q mbql.Query) (*models.QueryResult, error)
	ExecutePivot(ctx context.Context, q mbql.Query) (*models.QueryResult, error)
	ExecuteCard(ctx context.Context, id models.CardID, params []mbql.Parameter) (*models.QueryResult, error)
	ExportCard(ctx context.Context, id models.CardID, format models.ExportFormat, params []mbql.Parameter) ([]byte, error)
	ExportDataset(ctx context.Context, q mbql.DatasetQuery, format models.ExportFormat) ([]byte, error)
}

// HTTPQueryRepository talks to /api/dataset and the card query endpoints.
type HTTPQueryRepository struct {
	transport Transport
}

func NewQueryRepository(t Transport) *HTTPQueryRepository {
	return &HTTPQueryRepository{transport: t}
}

type cardQueryRequest struct {
	Parameters []mbql.Parameter `json:"parameters,omitempty"`
}

// ExecuteNative posts a native dataset. Native queries may have side effects,
// so the request is not retried once written.
func (r *HTTPQueryRepository) ExecuteNative(ctx context.Context, q *mbql.NativeQuery) (*models.QueryResult, error) {
	if q == nil {
		return nil, apierr.New(apierr.KindValidation, "native query is nil")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return r.run(ctx, "/api/dataset", q, false)
}

// ExecuteMBQL posts a structured query. MBQL only reads, so it retries like a
// GET.
func (r *HTTPQueryRepository) ExecuteMBQL(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return r.run(ctx, "/api/dataset", q, true)
}

func (r *HTTPQueryRepository) ExecutePivot(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return r.run(ctx, "/api/dataset/pivot", q, true)
}

func (r *HTTPQueryRepository) ExecuteCard(ctx context.Context, id models.CardID, params []mbql.Parameter) (*models.QueryResult, error) {
	return r.run(ctx, cardPath(id)+"/query", cardQueryRequest{Parameters: params}, false)
}

func (r *HTTPQueryRepository) ExportCard(ctx context.Context, id models.CardID, format models.ExportFormat, params []mbql.Parameter) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, apierr.Wrap(err, apierr.KindValidation, "export card")
	}
	return r.transport.PostBinary(ctx, cardPath(id)+"/query/"+string(format), cardQueryRequest{Parameters: params})
}

// ExportDataset posts the dataset payload itself to /api/dataset/<format>.
func (r *HTTPQueryRepository) ExportDataset(ctx context.Context, q mbql.DatasetQuery, format models.ExportFormat) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, apierr.Wrap(err, apierr.KindValidation, "export dataset")
	}
	if q.Native != nil {
		if err := q.Native.Validate(); err != nil {
			return nil, err
		}
	}
	if q.MBQL != nil {
		if err := q.MBQL.Validate(); err != nil {
			return nil, err
		}
	}
	return r.transport.PostBinary(ctx, "/api/dataset/"+string(format), q)
}

func (r *HTTPQueryRepository) run(ctx context.Context, path string, body interface{}, idempotent bool) (*models.QueryResult, error) {
	result := &models.QueryResult{}
	post := r.transport.Post
	if idempotent {
		post = r.transport.PostIdempotent
	}
	if err := post(ctx, path, body, result); err != nil {
		return nil, err
	}
	if result.Failed() {
		msg := result.Error
		if msg == "" {
			msg = "query failed"
		}
		return nil, apierr.New(apierr.KindQueryExecution, msg).WithRequest("POST", path, "")
	}
	return result, nil
}
