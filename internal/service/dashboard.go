package service

import (
	"context"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/models"
)

// DashboardService manages dashboards.
type DashboardService struct {
	base
	repo        repository.DashboardRepository
	collections repository.CollectionRepository
}

func NewDashboardService(repo repository.DashboardRepository, collections repository.CollectionRepository, c *cache.Cache, cfg Config) *DashboardService {
	return &DashboardService{
		base:        newBase(c, cfg, "dashboard_service"),
		repo:        repo,
		collections: collections,
	}
}

func (s *DashboardService) List(ctx context.Context, params models.ListParams) ([]models.Dashboard, error) {
	ds, err := cache.Fetch(ctx, s.cache, cache.DashboardListKey(params.Values().Encode()), 0, func(ctx context.Context) ([]models.Dashboard, error) {
		return s.repo.List(ctx, params)
	})
	return ds, fail(err, "list dashboards")
}

func (s *DashboardService) Get(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	d, err := cache.Fetch(ctx, s.cache, cache.DashboardKey(id), 0, func(ctx context.Context) (*models.Dashboard, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, fail(err, "get dashboard %d", id)
	}
	return d, nil
}

func (s *DashboardService) Create(ctx context.Context, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: &req.Name, Description: req.Description}, true)
		if err := s.checkCollection(ctx, &p, req.CollectionID); err != nil {
			return nil, err
		}
		if err := p.result("invalid dashboard"); err != nil {
			return nil, err
		}
	}

	d, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fail(err, "create dashboard")
	}
	s.invalidateDashboard(d.ID, req.CollectionID)
	return d, nil
}

// Update applies the non-nil fields of req. A non-nil DashCards replaces the
// whole layout.
func (s *DashboardService) Update(ctx context.Context, id models.DashboardID, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: req.Name, Description: req.Description}, false)
		for _, dc := range req.DashCards {
			if dc.SizeX < 0 || dc.SizeY < 0 || dc.Row < 0 || dc.Col < 0 {
				p.add("dashboard card %d has a negative position or size", dc.ID)
			}
		}
		if err := s.checkCollection(ctx, &p, req.CollectionID); err != nil {
			return nil, err
		}
		if err := p.result("invalid dashboard"); err != nil {
			return nil, err
		}
	}

	var previous *models.CollectionID
	if req.CollectionID != nil {
		if old, err := s.Get(ctx, id); err == nil {
			previous = old.CollectionID
		}
	}

	d, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fail(err, "update dashboard %d", id)
	}
	s.invalidateDashboard(id, d.CollectionID, previous)
	return d, nil
}

func (s *DashboardService) Delete(ctx context.Context, id models.DashboardID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fail(err, "delete dashboard %d", id)
	}
	s.invalidate([]string{cache.DashboardKey(id)}, cache.ListPrefix(cache.KindDashboard), cache.KindCollection+"/")
	return nil
}

func (s *DashboardService) Archive(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	return s.setArchived(ctx, id, true)
}

func (s *DashboardService) Unarchive(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	return s.setArchived(ctx, id, false)
}

func (s *DashboardService) setArchived(ctx context.Context, id models.DashboardID, archived bool) (*models.Dashboard, error) {
	d, err := s.repo.Update(ctx, id, models.UpdateDashboardRequest{Archived: &archived})
	if err != nil {
		return nil, fail(err, "archive dashboard %d", id)
	}
	s.invalidateDashboard(id, d.CollectionID)
	return d, nil
}

func (s *DashboardService) checkCollection(ctx context.Context, p *problems, id *models.CollectionID) error {
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

func (s *DashboardService) invalidateDashboard(id models.DashboardID, collections ...*models.CollectionID) {
	prefixes := []string{cache.ListPrefix(cache.KindDashboard)}
	for _, c := range collections {
		prefixes = append(prefixes, cache.CollectionItemsKey(collectionOrRoot(c)))
	}
	s.invalidate([]string{cache.DashboardKey(id)}, prefixes...)
}
