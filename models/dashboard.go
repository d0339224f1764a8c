package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Dashboard is a layout of cards.
type Dashboard struct {
	ID           DashboardID     `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	CollectionID *CollectionID   `json:"collection_id,omitempty"`
	Archived     bool            `json:"archived"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	DashCards    []DashboardCard `json:"dashcards,omitempty"`
	CreatorID    *UserID         `json:"creator_id,omitempty"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// CheckRequired reports a decoded dashboard missing its identity.
func (d *Dashboard) CheckRequired() error {
	if d.ID == 0 || d.Name == "" {
		return errors.New("dashboard requires id and name")
	}
	return nil
}

// DashboardCard places a card on the dashboard grid.
type DashboardCard struct {
	ID     int64   `json:"id"`
	CardID *CardID `json:"card_id,omitempty"`
	Row    int     `json:"row"`
	Col    int     `json:"col"`
	SizeX  int     `json:"size_x"`
	SizeY  int     `json:"size_y"`
}

// CreateDashboardRequest is the body of POST /api/dashboard.
type CreateDashboardRequest struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	CollectionID *CollectionID   `json:"collection_id,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
}

// UpdateDashboardRequest is the body of PUT /api/dashboard/:id. Nil fields are
// left unchanged; a non-nil DashCards replaces the whole layout.
type UpdateDashboardRequest struct {
	Name         *string         `json:"name,omitempty"`
	Description  *string         `json:"description,omitempty"`
	CollectionID *CollectionID   `json:"collection_id,omitempty"`
	Archived     *bool           `json:"archived,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	DashCards    []DashboardCard `json:"dashcards,omitempty"`
}
