package models

import (
	"encoding/json"
	"errors"
	"time"
)

// CardType is the kind of saved card. The server accepts question, model and
// metric; unknown values are passed through untouched.
type CardType string

const (
	CardTypeQuestion CardType = "question"
	CardTypeModel    CardType = "model"
	CardTypeMetric   CardType = "metric"
)

// Card is a saved question. DatasetQuery holds the stored query exactly as the
// server returned it; use mbql.ParseDatasetQuery to inspect it.
type Card struct {
	ID                    CardID          `json:"id"`
	Name                  string          `json:"name"`
	Description           *string         `json:"description,omitempty"`
	Type                  CardType        `json:"type,omitempty"`
	Display               string          `json:"display,omitempty"`
	DatasetQuery          json.RawMessage `json:"dataset_query,omitempty"`
	VisualizationSettings json.RawMessage `json:"visualization_settings,omitempty"`
	CollectionID          *CollectionID   `json:"collection_id,omitempty"`
	DatabaseID            *DatabaseID     `json:"database_id,omitempty"`
	TableID               *TableID        `json:"table_id,omitempty"`
	Archived              bool            `json:"archived"`
	EnableEmbedding       bool            `json:"enable_embedding"`
	EmbeddingParams       json.RawMessage `json:"embedding_params,omitempty"`
	CreatorID             *UserID         `json:"creator_id,omitempty"`
	CreatedAt             *time.Time      `json:"created_at,omitempty"`
	UpdatedAt             *time.Time      `json:"updated_at,omitempty"`
}

// CheckRequired reports a decoded card missing its identity.
func (c *Card) CheckRequired() error {
	if c.ID == 0 || c.Name == "" {
		return errors.New("card requires id and name")
	}
	return nil
}

// CreateCardRequest is the body of POST /api/card.
type CreateCardRequest struct {
	Name                  string          `json:"name"`
	Type                  CardType        `json:"type,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Display               string          `json:"display"`
	DatasetQuery          json.RawMessage `json:"dataset_query"`
	VisualizationSettings json.RawMessage `json:"visualization_settings"`
	CollectionID          *CollectionID   `json:"collection_id,omitempty"`
}

// UpdateCardRequest is the body of PUT /api/card/:id. Nil fields are left
// unchanged.
type UpdateCardRequest struct {
	Name                  *string         `json:"name,omitempty"`
	Type                  *CardType       `json:"type,omitempty"`
	Description           *string         `json:"description,omitempty"`
	Display               *string         `json:"display,omitempty"`
	DatasetQuery          json.RawMessage `json:"dataset_query,omitempty"`
	VisualizationSettings json.RawMessage `json:"visualization_settings,omitempty"`
	CollectionID          *CollectionID   `json:"collection_id,omitempty"`
	Archived              *bool           `json:"archived,omitempty"`
	EnableEmbedding       *bool           `json:"enable_embedding,omitempty"`
}
