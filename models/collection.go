package models

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Collection is a folder holding cards, dashboards and child collections.
type Collection struct {
	ID              CollectionID  `json:"id"`
	Name            string        `json:"name"`
	Description     *string       `json:"description,omitempty"`
	Color           *string       `json:"color,omitempty"`
	ParentID        *CollectionID `json:"parent_id,omitempty"`
	Location        string        `json:"location,omitempty"`
	Slug            string        `json:"slug,omitempty"`
	Namespace       *string       `json:"namespace,omitempty"`
	Archived        bool          `json:"archived"`
	PersonalOwnerID *UserID       `json:"personal_owner_id,omitempty"`
	CreatedAt       *time.Time    `json:"created_at,omitempty"`
}

// CheckRequired reports a decoded collection without a name.
func (c *Collection) CheckRequired() error {
	if c.Name == "" {
		return errors.New("collection requires name")
	}
	return nil
}

// Parent returns the parent collection. ParentID wins when present; otherwise
// the last segment of Location ("/1/7/") is used. Top-level collections report
// RootCollectionID.
func (c *Collection) Parent() CollectionID {
	if c.ParentID != nil {
		return *c.ParentID
	}
	segments := strings.Split(strings.Trim(c.Location, "/"), "/")
	if last := segments[len(segments)-1]; last != "" {
		if n, err := strconv.ParseInt(last, 10, 64); err == nil {
			return CollectionID(n)
		}
	}
	return RootCollectionID
}

// NamespaceName returns the collection namespace, "" for the default one.
func (c *Collection) NamespaceName() string {
	if c.Namespace == nil {
		return ""
	}
	return *c.Namespace
}

// CreateCollectionRequest is the body of POST /api/collection.
type CreateCollectionRequest struct {
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Color       *string       `json:"color,omitempty"`
	ParentID    *CollectionID `json:"parent_id,omitempty"`
	Namespace   *string       `json:"namespace,omitempty"`
}

// UpdateCollectionRequest is the body of PUT /api/collection/:id. Nil fields
// are left unchanged.
type UpdateCollectionRequest struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Color       *string       `json:"color,omitempty"`
	ParentID    *CollectionID `json:"parent_id,omitempty"`
	Archived    *bool         `json:"archived,omitempty"`
}

// CollectionItem is one entry of GET /api/collection/:id/items.
type CollectionItem struct {
	ID          int64   `json:"id"`
	Model       string  `json:"model"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Display     string  `json:"display,omitempty"`
	Archived    bool    `json:"archived"`
}

// Item model names reported by the collection items endpoint.
const (
	ItemModelCard       = "card"
	ItemModelDataset    = "dataset"
	ItemModelMetric     = "metric"
	ItemModelDashboard  = "dashboard"
	ItemModelCollection = "collection"
)
