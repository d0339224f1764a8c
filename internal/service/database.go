package service

import (
	"context"
	"strings"

	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/models"
)

// DatabaseService manages data sources. Metadata, fields and schemas are
// cached until the next sync or write.
type DatabaseService struct {
	base
	repo repository.DatabaseRepository
}

func NewDatabaseService(repo repository.DatabaseRepository, c *cache.Cache, cfg Config) *DatabaseService {
	return &DatabaseService{
		base: newBase(c, cfg, "database_service"),
		repo: repo,
	}
}

func (s *DatabaseService) List(ctx context.Context, params models.ListParams) ([]models.Database, error) {
	dbs, err := cache.Fetch(ctx, s.cache, cache.DatabaseListKey(params.Values().Encode()), 0, func(ctx context.Context) ([]models.Database, error) {
		return s.repo.List(ctx, params)
	})
	return dbs, fail(err, "list databases")
}

func (s *DatabaseService) Get(ctx context.Context, id models.DatabaseID) (*models.Database, error) {
	db, err := cache.Fetch(ctx, s.cache, cache.DatabaseKey(id), 0, func(ctx context.Context) (*models.Database, error) {
		return s.repo.Get(ctx, id)
	})
	if err != nil {
		return nil, fail(err, "get database %d", id)
	}
	return db, nil
}

func (s *DatabaseService) Create(ctx context.Context, req models.CreateDatabaseRequest) (*models.Database, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: &req.Name, Description: req.Description}, true)
		if strings.TrimSpace(req.Engine) == "" {
			p.add("engine is required")
		}
		if err := p.result("invalid database"); err != nil {
			return nil, err
		}
	}

	db, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fail(err, "create database")
	}
	s.invalidateDatabase(db.ID)
	return db, nil
}

func (s *DatabaseService) Update(ctx context.Context, id models.DatabaseID, req models.UpdateDatabaseRequest) (*models.Database, error) {
	if s.cfg.EnableValidation {
		var p problems
		p.check(fields{Name: req.Name, Description: req.Description}, false)
		if err := p.result("invalid database"); err != nil {
			return nil, err
		}
	}

	db, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, fail(err, "update database %d", id)
	}
	s.invalidateDatabase(id)
	return db, nil
}

func (s *DatabaseService) Delete(ctx context.Context, id models.DatabaseID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fail(err, "delete database %d", id)
	}
	s.invalidateDatabase(id)
	return nil
}

// Metadata returns the tables and fields of a database.
func (s *DatabaseService) Metadata(ctx context.Context, id models.DatabaseID) (*models.DatabaseMetadata, error) {
	md, err := cache.Fetch(ctx, s.cache, cache.DatabaseMetadataKey(id), 0, func(ctx context.Context) (*models.DatabaseMetadata, error) {
		return s.repo.Metadata(ctx, id)
	})
	if err != nil {
		return nil, fail(err, "get metadata of database %d", id)
	}
	return md, nil
}

func (s *DatabaseService) Fields(ctx context.Context, id models.DatabaseID) ([]models.Field, error) {
	fields, err := cache.Fetch(ctx, s.cache, cache.DatabaseKey(id)+"/fields", 0, func(ctx context.Context) ([]models.Field, error) {
		return s.repo.Fields(ctx, id)
	})
	return fields, fail(err, "list fields of database %d", id)
}

func (s *DatabaseService) Schemas(ctx context.Context, id models.DatabaseID) ([]string, error) {
	schemas, err := cache.Fetch(ctx, s.cache, cache.DatabaseKey(id)+"/schemas", 0, func(ctx context.Context) ([]string, error) {
		return s.repo.Schemas(ctx, id)
	})
	return schemas, fail(err, "list schemas of database %d", id)
}

// SyncSchema triggers a sync and drops the cached metadata of the database.
func (s *DatabaseService) SyncSchema(ctx context.Context, id models.DatabaseID) (*models.SyncResult, error) {
	res, err := s.repo.SyncSchema(ctx, id)
	if err != nil {
		return nil, fail(err, "sync database %d", id)
	}
	s.invalidateDatabase(id)
	return res, nil
}

func (s *DatabaseService) invalidateDatabase(id models.DatabaseID) {
	s.invalidate([]string{cache.DatabaseKey(id)},
		cache.ListPrefix(cache.KindDatabase),
		cache.DatabaseKey(id)+"/",
	)
}
