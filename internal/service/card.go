package service

import (
	"context"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/models"
)

// CardService manages saved questions.
type CardService struct {
	base
	repo        repository.CardRepository
	collections repository.CollectionRepository
}

// NewCardService creates a card service. collections is used to check that a
// target collection exists; c may be nil to disable caching.
func NewCardService(repo repository.CardRepository, collections repository.CollectionRepository, c *cache.Cache, cfg Config) *CardService {
	return &CardService{
		base:        newBase(c, cfg, "card_service"),
		repo:        repo,
		collections: collections,
	}
}

// List returns cards matching params.
func (s *CardService) List(ctx context.Context, params models.ListParams) ([]models.Card, error) {
	cards, err := cache.Fetch(ctx, s.cache, cache.CardListKey(params.Values().Encode()), 0, func(ctx context.Context) ([]models.Card, error) {
		return s.repo.List(ctx, params)
	})
	return cards, fail(err, "list cards")
}

// Get returns a card, from the cache when possible.
func (s *CardService) Get(ctx context.Context, id models.CardID) (*models.Card, error) {
	card, err := cache.Fetch(ctx, s.cache, cache.CardKey(id), 0, func(ctx context.Context) (*models.Card, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, fail(err, "get card %d", id)
	}
	return card, nil
}

// Create validates and stores a new card.
func (s *CardService) Create(ctx context.Context, req models.CreateCardRequest) (*models.Card, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: &req.Name, Description: req.Description}, true)
		p.checkCardType(s.cfg, req.Type)
		p.checkDatasetQuery(req.DatasetQuery, true)
		if err := s.checkCollection(ctx, &p, req.CollectionID); err != nil {
			return nil, err
		}
		if err := p.result("invalid card"); err != nil {
			return nil, err
		}
	}

	card, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fail(err, "create card")
	}
	s.invalidateCard(card.ID, req.CollectionID)
	return card, nil
}

// Update applies the non-nil fields of req.
func (s *CardService) Update(ctx context.Context, id models.CardID, req models.UpdateCardRequest) (*models.Card, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: req.Name, Description: req.Description}, false)
		if req.Type != nil {
			if *req.Type == "" {
				p.add("card type cannot be empty")
			}
			p.checkCardType(s.cfg, *req.Type)
		}
		p.checkDatasetQuery(req.DatasetQuery, false)
		if err := s.checkCollection(ctx, &p, req.CollectionID); err != nil {
			return nil, err
		}
		if err := p.result("invalid card"); err != nil {
			return nil, err
		}
	}

	// The previous collection's listing changes too when the card moves.
	var previous *models.CollectionID
	if req.CollectionID != nil {
		if old, err := s.Get(ctx, id); err == nil {
			previous = old.CollectionID
		}
	}

	card, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fail(err, "update card %d", id)
	}
	s.invalidateCard(id, card.CollectionID, previous)
	return card, nil
}

// Delete removes a card. With RequireArchiveBeforeDelete the card must be
// archived first.
func (s *CardService) Delete(ctx context.Context, id models.CardID) error {
	var (
		collection *models.CollectionID
		known      bool
	)
	if s.cfg.EnableBusinessRules && s.cfg.RequireArchiveBeforeDelete {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return fail(err, "delete card %d", id)
		}
		if !current.Archived {
			return apierr.Newf(apierr.KindValidation, "card %d must be archived before it can be deleted", id)
		}
		collection, known = current.CollectionID, true
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fail(err, "delete card %d", id)
	}
	s.invalidateCard(id, collection)
	if !known {
		// The card's collection is unknown here, so every cached collection
		// and listing goes.
		s.invalidate(nil, cache.KindCollection+"/")
	}
	return nil
}

// Archive hides a card from listings without deleting it.
func (s *CardService) Archive(ctx context.Context, id models.CardID) (*models.Card, error) {
	return s.setArchived(ctx, id, true)
}

// Unarchive restores an archived card.
func (s *CardService) Unarchive(ctx context.Context, id models.CardID) (*models.Card, error) {
	return s.setArchived(ctx, id, false)
}

func (s *CardService) setArchived(ctx context.Context, id models.CardID, archived bool) (*models.Card, error) {
	card, err := s.repo.Update(ctx, id, models.UpdateCardRequest{Archived: &archived})
	if err != nil {
		return nil, fail(err, "archive card %d", id)
	}
	s.invalidateCard(id, card.CollectionID)
	return card, nil
}

// Copy duplicates a card.
func (s *CardService) Copy(ctx context.Context, id models.CardID) (*models.Card, error) {
	card, err := s.repo.Copy(ctx, id)
	if err != nil {
		return nil, fail(err, "copy card %d", id)
	}
	s.invalidateCard(card.ID, card.CollectionID)
	return card, nil
}

// checkCollection records a missing target collection. Errors other than
// NotFound abort the check.
func (s *CardService) checkCollection(ctx context.Context, p *problems, id *models.CollectionID) error {
	if id == nil || id.IsRoot() || s.collections == nil {
		return nil
	}
	if _, err := s.collections.Get(ctx, *id); err != nil {
		if apierr.IsNotFound(err) {
			p.add("collection %s does not exist", *id)
			return nil
		}
		return fail(err, "check collection %s", *id)
	}
	return nil
}

func (s *CardService) invalidateCard(id models.CardID, collections ...*models.CollectionID) {
	prefixes := []string{cache.ListPrefix(cache.KindCard), cache.CardQueryPrefix(id)}
	for _, c := range collections {
		prefixes = append(prefixes, cache.CollectionItemsKey(collectionOrRoot(c)))
	}
	s.invalidate([]string{cache.CardKey(id)}, prefixes...)
}

func collectionOrRoot(id *models.CollectionID) models.CollectionID {
	if id == nil {
		return models.RootCollectionID
	}
	return *id
}
