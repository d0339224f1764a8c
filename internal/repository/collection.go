package repository

import (
	"context"

	"github.com/birbparty/metabase-go/models"
)

// CollectionRepository stores the collection tree.
type CollectionRepository interface {
	List(ctx context.Context, params models.ListParams) ([]models.Collection, error)
	Get(ctx context.Context, id models.CollectionID) (*models.Collection, error)
	Create(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error)
	Update(ctx context.Context, id models.CollectionID, req models.UpdateCollectionRequest) (*models.Collection, error)
	Delete(ctx context.Context, id models.CollectionID) error
	// Items lists the children of a collection.
	Items(ctx context.Context, id models.CollectionID, params models.ListParams) ([]models.CollectionItem, error)
	// Move re-parents a collection; RootCollectionID moves it to the top level.
	Move(ctx context.Context, id, parent models.CollectionID) (*models.Collection, error)
}

// HTTPCollectionRepository talks to /api/collection.
type HTTPCollectionRepository struct {
	transport Transport
}

func NewCollectionRepository(t Transport) *HTTPCollectionRepository {
	return &HTTPCollectionRepository{transport: t}
}

func collectionPath(id models.CollectionID) string {
	return "/api/collection/" + id.String()
}

func (r *HTTPCollectionRepository) List(ctx context.Context, params models.ListParams) ([]models.Collection, error) {
	collections, err := getList[models.Collection](ctx, r.transport, "/api/collection", localPage(params))
	if err != nil {
		return nil, err
	}
	return models.Page(collections, params), nil
}

func (r *HTTPCollectionRepository) Get(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	c := &models.Collection{}
	if err := r.transport.Get(ctx, collectionPath(id), nil, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *HTTPCollectionRepository) Create(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error) {
	c := &models.Collection{}
	if err := r.transport.Post(ctx, "/api/collection", req, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *HTTPCollectionRepository) Update(ctx context.Context, id models.CollectionID, req models.UpdateCollectionRequest) (*models.Collection, error) {
	c := &models.Collection{}
	if err := r.transport.Put(ctx, collectionPath(id), req, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *HTTPCollectionRepository) Delete(ctx context.Context, id models.CollectionID) error {
	return r.transport.Delete(ctx, collectionPath(id))
}

// Items pages server-side.
func (r *HTTPCollectionRepository) Items(ctx context.Context, id models.CollectionID, params models.ListParams) ([]models.CollectionItem, error) {
	return getList[models.CollectionItem](ctx, r.transport, collectionPath(id)+"/items", params.Values())
}

type moveRequest struct {
	// nil encodes as null, which the server reads as the root
	ParentID *int64 `json:"parent_id"`
}

func (r *HTTPCollectionRepository) Move(ctx context.Context, id, parent models.CollectionID) (*models.Collection, error) {
	var req moveRequest
	if !parent.IsRoot() {
		p := int64(parent)
		req.ParentID = &p
	}
	c := &models.Collection{}
	if err := r.transport.Put(ctx, collectionPath(id), req, c); err != nil {
		return nil, err
	}
	return c, nil
}
