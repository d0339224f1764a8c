package repository

import (
	"context"

	"github.com/birbparty/metabase-go/models"
)

// DashboardRepository stores dashboards.
type DashboardRepository interface {
	List(ctx context.Context, params models.ListParams) ([]models.Dashboard, error)
	Get(ctx context.Context, id models.DashboardID) (*models.Dashboard, error)
	Create(ctx context.Context, req models.CreateDashboardRequest) (*models.Dashboard, error)
	Update(ctx context.Context, id models.DashboardID, req models.UpdateDashboardRequest) (*models.Dashboard, error)
	Delete(ctx context.Context, id models.DashboardID) error
}

// HTTPDashboardRepository talks to /api/dashboard.
type HTTPDashboardRepository struct {
	transport Transport
}

func NewDashboardRepository(t Transport) *HTTPDashboardRepository {
	return &HTTPDashboardRepository{transport: t}
}

func dashboardPath(id models.DashboardID) string {
	return "/api/dashboard/" + id.String()
}

func (r *HTTPDashboardRepository) List(ctx context.Context, params models.ListParams) ([]models.Dashboard, error) {
	dashboards, err := getList[models.Dashboard](ctx, r.transport, "/api/dashboard", localPage(params))
	if err != nil {
		return nil, err
	}
	return models.Page(dashboards, params), nil
}

func (r *HTTPDashboardRepository) Get(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	if err := r.transport.Get(ctx, dashboardPath(id), nil, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *HTTPDashboardRepository) Create(ctx context.Context, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	if err := r.transport.Post(ctx, "/api/dashboard", req, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *HTTPDashboardRepository) Update(ctx context.Context, id models.DashboardID, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	if err := r.transport.Put(ctx, dashboardPath(id), req, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *HTTPDashboardRepository) Delete(ctx context.Context, id models.DashboardID) error {
	return r.transport.Delete(ctx, dashboardPath(id))
}
