package service

import (
	"context"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/models"
)

// maxDepth bounds ancestor walks so a corrupt tree cannot loop forever.
const maxDepth = 256

// CollectionService manages the collection tree.
type CollectionService struct {
	base
	repo repository.CollectionRepository
}

// NewCollectionService creates a collection service; c may be nil.
func NewCollectionService(repo repository.CollectionRepository, c *cache.Cache, cfg Config) *CollectionService {
	return &CollectionService{
		base: newBase(c, cfg, "collection_service"),
		repo: repo,
	}
}

// List returns collections matching params.
func (s *CollectionService) List(ctx context.Context, params models.ListParams) ([]models.Collection, error) {
	cols, err := cache.Fetch(ctx, s.cache, cache.CollectionListKey(params.Values().Encode()), 0, func(ctx context.Context) ([]models.Collection, error) {
		return s.repo.List(ctx, params)
	})
	return cols, fail(err, "list collections")
}

// Roots returns the live top-level collections.
func (s *CollectionService) Roots(ctx context.Context) ([]models.Collection, error) {
	return s.Children(ctx, models.RootCollectionID)
}

// Children returns the live collections directly under parent.
func (s *CollectionService) Children(ctx context.Context, parent models.CollectionID) ([]models.Collection, error) {
	all, err := s.List(ctx, models.ListParams{})
	if err != nil {
		return nil, err
	}
	out := make([]models.Collection, 0, len(all))
	for i := range all {
		if !all[i].Archived && all[i].Parent() == parent {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Get returns a collection. RootCollectionID is answered by the server.
func (s *CollectionService) Get(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	c, err := cache.Fetch(ctx, s.cache, cache.CollectionKey(id), 0, func(ctx context.Context) (*models.Collection, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, fail(err, "get collection %s", id)
	}
	return c, nil
}

// Items lists the children of a collection.
func (s *CollectionService) Items(ctx context.Context, id models.CollectionID, params models.ListParams) ([]models.CollectionItem, error) {
	key := cache.CollectionItemsKey(id)
	if q := params.Values().Encode(); q != "" {
		key += "?" + q
	}
	items, err := cache.Fetch(ctx, s.cache, key, 0, func(ctx context.Context) ([]models.CollectionItem, error) {
		return s.repo.Items(ctx, id, params)
	})
	return items, fail(err, "list items of collection %s", id)
}

// Create validates and stores a new collection.
func (s *CollectionService) Create(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: &req.Name, Description: req.Description, Color: req.Color}, true)
		if err := s.checkParent(ctx, &p, req.ParentID, namespaceOf(req.Namespace)); err != nil {
			return nil, err
		}
		if err := p.result("invalid collection"); err != nil {
			return nil, err
		}
	}

	c, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fail(err, "create collection")
	}
	s.invalidateCollection(c.ID, collectionOrRoot(req.ParentID))
	return c, nil
}

// Update applies the non-nil fields of req. Re-parenting is checked for
// cycles.
func (s *CollectionService) Update(ctx context.Context, id models.CollectionID, req models.UpdateCollectionRequest) (*models.Collection, error) {
	var current *models.Collection
	if req.ParentID != nil {
		var err error
		if current, err = s.Get(ctx, id); err != nil {
			return nil, err
		}
		if err := s.checkMove(ctx, current, *req.ParentID); err != nil {
			return nil, err
		}
	}
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: req.Name, Description: req.Description, Color: req.Color}, false)
		if err := p.result("invalid collection"); err != nil {
			return nil, err
		}
	}

	c, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fail(err, "update collection %s", id)
	}
	parents := []models.CollectionID{c.Parent()}
	if current != nil {
		parents = append(parents, current.Parent())
	}
	s.invalidateCollection(id, parents...)
	return c, nil
}

// Move re-parents a collection. RootCollectionID moves it to the top level.
func (s *CollectionService) Move(ctx context.Context, id, parent models.CollectionID) (*models.Collection, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMove(ctx, current, parent); err != nil {
		return nil, err
	}

	c, err := s.repo.Move(ctx, id, parent)
	if err != nil {
		return nil, fail(err, "move collection %s", id)
	}
	s.invalidateCollection(id, current.Parent(), parent)
	return c, nil
}

// Delete removes a collection.
func (s *CollectionService) Delete(ctx context.Context, id models.CollectionID) error {
	if id.IsRoot() {
		return apierr.New(apierr.KindValidation, "the root collection cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fail(err, "delete collection %s", id)
	}
	s.invalidateTree(id)
	return nil
}

// Archive hides a collection and, on the server, everything inside it.
func (s *CollectionService) Archive(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	return s.setArchived(ctx, id, true)
}

// Unarchive restores an archived collection.
func (s *CollectionService) Unarchive(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	return s.setArchived(ctx, id, false)
}

func (s *CollectionService) setArchived(ctx context.Context, id models.CollectionID, archived bool) (*models.Collection, error) {
	if id.IsRoot() {
		return nil, apierr.New(apierr.KindValidation, "the root collection cannot be archived")
	}
	c, err := s.repo.Update(ctx, id, models.UpdateCollectionRequest{Archived: &archived})
	if err != nil {
		return nil, fail(err, "archive collection %s", id)
	}
	s.invalidateTree(id)
	return c, nil
}

// checkParent records a missing parent or a namespace mismatch.
func (s *CollectionService) checkParent(ctx context.Context, p *problems, parent *models.CollectionID, namespace string) error {
	if parent == nil || parent.IsRoot() {
		return nil
	}
	pc, err := s.Get(ctx, *parent)
	if err != nil {
		if apierr.IsNotFound(err) {
			p.add("parent collection %s does not exist", *parent)
			return nil
		}
		return err
	}
	if pc.NamespaceName() != namespace {
		p.add("parent collection %s is in namespace %q, not %q", *parent, pc.NamespaceName(), namespace)
	}
	return nil
}

// checkMove rejects moves that would make a collection its own ancestor, and
// targets that do not exist.
func (s *CollectionService) checkMove(ctx context.Context, current *models.Collection, parent models.CollectionID) error {
	if s.cfg.EnableValidation {
		var p problems
		if err := s.checkParent(ctx, &p, &parent, current.NamespaceName()); err != nil {
			return err
		}
		if err := p.result("invalid move"); err != nil {
			return err
		}
	}
	if !s.cfg.EnableBusinessRules {
		return nil
	}
	if parent == current.ID {
		return apierr.New(apierr.KindValidation, "a collection cannot be its own parent")
	}

	ancestor := parent
	for depth := 0; !ancestor.IsRoot(); depth++ {
		if depth >= maxDepth {
			return apierr.Newf(apierr.KindValidation, "collection hierarchy above %s is too deep", parent)
		}
		if ancestor == current.ID {
			return apierr.Newf(apierr.KindValidation, "moving collection %s under %s would create a cycle", current.ID, parent)
		}
		c, err := s.Get(ctx, ancestor)
		if err != nil {
			return err
		}
		ancestor = c.Parent()
	}
	return nil
}

func (s *CollectionService) invalidateCollection(id models.CollectionID, parents ...models.CollectionID) {
	prefixes := []string{cache.ListPrefix(cache.KindCollection)}
	for _, p := range parents {
		prefixes = append(prefixes, cache.CollectionItemsKey(p))
	}
	s.invalidate([]string{cache.CollectionKey(id)}, prefixes...)
}

// invalidateTree drops everything that may live below id. Archiving and
// deleting cascade on the server, so cached cards, dashboards and every
// collection entry are dropped with it.
func (s *CollectionService) invalidateTree(id models.CollectionID) {
	s.invalidate([]string{cache.CollectionKey(id)},
		cache.KindCollection,
		cache.KindCard,
		cache.KindDashboard,
	)
}

func namespaceOf(ns *string) string {
	if ns == nil {
		return ""
	}
	return *ns
}
