package repository

import (
	"context"

	"github.com/birbparty/metabase-go/models"
)

// CardRepository stores saved questions.
type CardRepository interface {
	List(ctx context.Context, params models.ListParams) ([]models.Card, error)
	Get(ctx context.Context, id models.CardID) (*models.Card, error)
	Create(ctx context.Context, req models.CreateCardRequest) (*models.Card, error)
	Update(ctx context.Context, id models.CardID, req models.UpdateCardRequest) (*models.Card, error)
	Delete(ctx context.Context, id models.CardID) error
	// Copy duplicates a card under the same collection.
	Copy(ctx context.Context, id models.CardID) (*models.Card, error)
}

// HTTPCardRepository talks to /api/card.
type HTTPCardRepository struct {
	transport Transport
}

// NewCardRepository creates a card repository over t.
func NewCardRepository(t Transport) *HTTPCardRepository {
	return &HTTPCardRepository{transport: t}
}

func cardPath(id models.CardID) string {
	return "/api/card/" + id.String()
}

// List returns cards matching params. The endpoint does not paginate, so
// Limit and Offset are applied locally.
func (r *HTTPCardRepository) List(ctx context.Context, params models.ListParams) ([]models.Card, error) {
	cards, err := getList[models.Card](ctx, r.transport, "/api/card", localPage(params))
	if err != nil {
		return nil, err
	}
	return models.Page(cards, params), nil
}

func (r *HTTPCardRepository) Get(ctx context.Context, id models.CardID) (*models.Card, error) {
	card := &models.Card{}
	if err := r.transport.Get(ctx, cardPath(id), nil, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (r *HTTPCardRepository) Create(ctx context.Context, req models.CreateCardRequest) (*models.Card, error) {
	card := &models.Card{}
	if err := r.transport.Post(ctx, "/api/card", req, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (r *HTTPCardRepository) Update(ctx context.Context, id models.CardID, req models.UpdateCardRequest) (*models.Card, error) {
	card := &models.Card{}
	if err := r.transport.Put(ctx, cardPath(id), req, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (r *HTTPCardRepository) Delete(ctx context.Context, id models.CardID) error {
	return r.transport.Delete(ctx, cardPath(id))
}

func (r *HTTPCardRepository) Copy(ctx context.Context, id models.CardID) (*models.Card, error) {
	card := &models.Card{}
	if err := r.transport.Post(ctx, cardPath(id)+"/copy", struct{}{}, card); err != nil {
		return nil, err
	}
	return card, nil
}
