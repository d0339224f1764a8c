package repository

import (
	"context"

	"github.com/birbparty/metabase-go/models"
)

// DatabaseRepository manages connected data sources and their metadata.
type DatabaseRepository interface {
	List(ctx context.Context, params models.ListParams) ([]models.Database, error)
	Get(ctx context.Context, id models.DatabaseID) (*models.Database, error)
	Create(ctx context.Context, req models.CreateDatabaseRequest) (*models.Database, error)
	Update(ctx context.Context, id models.DatabaseID, req models.UpdateDatabaseRequest) (*models.Database, error)
	Delete(ctx context.Context, id models.DatabaseID) error

	Metadata(ctx context.Context, id models.DatabaseID) (*models.DatabaseMetadata, error)
	Fields(ctx context.Context, id models.DatabaseID) ([]models.Field, error)
	Schemas(ctx context.Context, id models.DatabaseID) ([]string, error)
	SyncSchema(ctx context.Context, id models.DatabaseID) (*models.SyncResult, error)
}

// HTTPDatabaseRepository talks to /api/database.
type HTTPDatabaseRepository struct {
	transport Transport
}

func NewDatabaseRepository(t Transport) *HTTPDatabaseRepository {
	return &HTTPDatabaseRepository{transport: t}
}

func databasePath(id models.DatabaseID) string {
	return "/api/database/" + id.String()
}

// List returns the databases. The server wraps the listing as {"data": [...]}
// and does not paginate.
func (r *HTTPDatabaseRepository) List(ctx context.Context, params models.ListParams) ([]models.Database, error) {
	dbs, err := getList[models.Database](ctx, r.transport, "/api/database", localPage(params))
	if err != nil {
		return nil, err
	}
	return models.Page(dbs, params), nil
}

func (r *HTTPDatabaseRepository) Get(ctx context.Context, id models.DatabaseID) (*models.Database, error) {
	db := &models.Database{}
	if err := r.transport.Get(ctx, databasePath(id), nil, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (r *HTTPDatabaseRepository) Create(ctx context.Context, req models.CreateDatabaseRequest) (*models.Database, error) {
	db := &models.Database{}
	if err := r.transport.Post(ctx, "/api/database", req, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (r *HTTPDatabaseRepository) Update(ctx context.Context, id models.DatabaseID, req models.UpdateDatabaseRequest) (*models.Database, error) {
	db := &models.Database{}
	if err := r.transport.Put(ctx, databasePath(id), req, db); err != nil {
		return nil, err
	}
	return db, nil
}

func (r *HTTPDatabaseRepository) Delete(ctx context.Context, id models.DatabaseID) error {
	return r.transport.Delete(ctx, databasePath(id))
}

func (r *HTTPDatabaseRepository) Metadata(ctx context.Context, id models.DatabaseID) (*models.DatabaseMetadata, error) {
	md := &models.DatabaseMetadata{}
	if err := r.transport.Get(ctx, databasePath(id)+"/metadata", nil, md); err != nil {
		return nil, err
	}
	return md, nil
}

func (r *HTTPDatabaseRepository) Fields(ctx context.Context, id models.DatabaseID) ([]models.Field, error) {
	return getList[models.Field](ctx, r.transport, databasePath(id)+"/fields", nil)
}

func (r *HTTPDatabaseRepository) Schemas(ctx context.Context, id models.DatabaseID) ([]string, error) {
	return getList[string](ctx, r.transport, databasePath(id)+"/schemas", nil)
}

// SyncSchema triggers a schema sync. Triggering twice is harmless, so the
// request is retried like a read.
func (r *HTTPDatabaseRepository) SyncSchema(ctx context.Context, id models.DatabaseID) (*models.SyncResult, error) {
	res := &models.SyncResult{}
	if err := r.transport.PostIdempotent(ctx, databasePath(id)+"/sync_schema", struct{}{}, res); err != nil {
		return nil, err
	}
	return res, nil
}
