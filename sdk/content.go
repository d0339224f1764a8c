package sdk

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/birbparty/metabase-go/models"
)

// Cards

// ListCards returns the cards matching params.
func (c *Client) ListCards(ctx context.Context, params models.ListParams) ([]models.Card, error) {
	return call(ctx, c, "list_cards", true, func(ctx context.Context) ([]models.Card, error) {
		return c.cards.List(ctx, params)
	})
}

// GetCard returns a card, from the cache when enabled.
func (c *Client) GetCard(ctx context.Context, id models.CardID) (*models.Card, error) {
	return call(ctx, c, "get_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Get(ctx, id)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// CreateCard creates a saved question, model or metric.
//
// Example:
//
//	card, err := client.CreateCard(ctx, models.CreateCardRequest{
//	    Name:         "Orders per day",
//	    Display:      "line",
//	    DatasetQuery: json.RawMessage(`{"database":1,"type":"query","query":{"source-table":5}}`),
//	})
func (c *Client) CreateCard(ctx context.Context, req models.CreateCardRequest) (*models.Card, error) {
	return call(ctx, c, "create_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Create(ctx, req)
	})
}

// UpdateCard applies the non-nil fields of req.
func (c *Client) UpdateCard(ctx context.Context, id models.CardID, req models.UpdateCardRequest) (*models.Card, error) {
	return call(ctx, c, "update_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Update(ctx, id, req)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, id models.CardID) error {
	return exec(ctx, c, "delete_card", true, func(ctx context.Context) error {
		return c.cards.Delete(ctx, id)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// ArchiveCard moves a card to the trash.
func (c *Client) ArchiveCard(ctx context.Context, id models.CardID) (*models.Card, error) {
	return call(ctx, c, "archive_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Archive(ctx, id)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// UnarchiveCard restores a card from the trash.
func (c *Client) UnarchiveCard(ctx context.Context, id models.CardID) (*models.Card, error) {
	return call(ctx, c, "unarchive_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Unarchive(ctx, id)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// CopyCard duplicates a card into the same collection.
func (c *Client) CopyCard(ctx context.Context, id models.CardID) (*models.Card, error) {
	return call(ctx, c, "copy_card", true, func(ctx context.Context) (*models.Card, error) {
		return c.cards.Copy(ctx, id)
	}, attribute.Int64("metabase.card_id", int64(id)))
}

// Collections

// ListCollections returns the collections matching params.
func (c *Client) ListCollections(ctx context.Context, params models.ListParams) ([]models.Collection, error) {
	return call(ctx, c, "list_collections", true, func(ctx context.Context) ([]models.Collection, error) {
		return c.collections.List(ctx, params)
	})
}

// RootCollections returns the top-level collections that are not archived.
func (c *Client) RootCollections(ctx context.Context) ([]models.Collection, error) {
	return call(ctx, c, "root_collections", true, c.collections.Roots)
}

// CollectionChildren returns the collections directly under parent.
func (c *Client) CollectionChildren(ctx context.Context, parent models.CollectionID) ([]models.Collection, error) {
	return call(ctx, c, "collection_children", true, func(ctx context.Context) ([]models.Collection, error) {
		return c.collections.Children(ctx, parent)
	}, attribute.String("metabase.collection_id", parent.String()))
}

// GetCollection returns a collection. models.RootCollectionID returns the
// root collection.
func (c *Client) GetCollection(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	return call(ctx, c, "get_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Get(ctx, id)
	}, attribute.String("metabase.collection_id", id.String()))
}

// CollectionItems lists the cards, dashboards and collections inside a
// collection. Limit and Offset are applied by the server.
func (c *Client) CollectionItems(ctx context.Context, id models.CollectionID, params models.ListParams) ([]models.CollectionItem, error) {
	return call(ctx, c, "collection_items", true, func(ctx context.Context) ([]models.CollectionItem, error) {
		return c.collections.Items(ctx, id, params)
	}, attribute.String("metabase.collection_id", id.String()))
}

// CreateCollection creates a collection.
func (c *Client) CreateCollection(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error) {
	return call(ctx, c, "create_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Create(ctx, req)
	})
}

// UpdateCollection applies the non-nil fields of req.
func (c *Client) UpdateCollection(ctx context.Context, id models.CollectionID, req models.UpdateCollectionRequest) (*models.Collection, error) {
	return call(ctx, c, "update_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Update(ctx, id, req)
	}, attribute.String("metabase.collection_id", id.String()))
}

// MoveCollection re-parents a collection; models.RootCollectionID moves it
// to the top level. Moves that would create a cycle are rejected.
func (c *Client) MoveCollection(ctx context.Context, id, parent models.CollectionID) (*models.Collection, error) {
	return call(ctx, c, "move_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Move(ctx, id, parent)
	}, attribute.String("metabase.collection_id", id.String()))
}

// ArchiveCollection moves a collection and its contents to the trash.
func (c *Client) ArchiveCollection(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	return call(ctx, c, "archive_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Archive(ctx, id)
	}, attribute.String("metabase.collection_id", id.String()))
}

// UnarchiveCollection restores a collection from the trash.
func (c *Client) UnarchiveCollection(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	return call(ctx, c, "unarchive_collection", true, func(ctx context.Context) (*models.Collection, error) {
		return c.collections.Unarchive(ctx, id)
	}, attribute.String("metabase.collection_id", id.String()))
}

// DeleteCollection deletes a collection.
func (c *Client) DeleteCollection(ctx context.Context, id models.CollectionID) error {
	return exec(ctx, c, "delete_collection", true, func(ctx context.Context) error {
		return c.collections.Delete(ctx, id)
	}, attribute.String("metabase.collection_id", id.String()))
}

// Dashboards

func (c *Client) ListDashboards(ctx context.Context, params models.ListParams) ([]models.Dashboard, error) {
	return call(ctx, c, "list_dashboards", true, func(ctx context.Context) ([]models.Dashboard, error) {
		return c.dashboards.List(ctx, params)
	})
}

func (c *Client) GetDashboard(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	return call(ctx, c, "get_dashboard", true, func(ctx context.Context) (*models.Dashboard, error) {
		return c.dashboards.Get(ctx, id)
	}, attribute.Int64("metabase.dashboard_id", int64(id)))
}

func (c *Client) CreateDashboard(ctx context.Context, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	return call(ctx, c, "create_dashboard", true, func(ctx context.Context) (*models.Dashboard, error) {
		return c.dashboards.Create(ctx, req)
	})
}

// UpdateDashboard applies the non-nil fields of req. A non-nil DashCards
// replaces the whole layout.
func (c *Client) UpdateDashboard(ctx context.Context, id models.DashboardID, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	return call(ctx, c, "update_dashboard", true, func(ctx context.Context) (*models.Dashboard, error) {
		return c.dashboards.Update(ctx, id, req)
	}, attribute.Int64("metabase.dashboard_id", int64(id)))
}

func (c *Client) DeleteDashboard(ctx context.Context, id models.DashboardID) error {
	return exec(ctx, c, "delete_dashboard", true, func(ctx context.Context) error {
		return c.dashboards.Delete(ctx, id)
	}, attribute.Int64("metabase.dashboard_id", int64(id)))
}

func (c *Client) ArchiveDashboard(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	return call(ctx, c, "archive_dashboard", true, func(ctx context.Context) (*models.Dashboard, error) {
		return c.dashboards.Archive(ctx, id)
	}, attribute.Int64("metabase.dashboard_id", int64(id)))
}

func (c *Client) UnarchiveDashboard(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	return call(ctx, c, "unarchive_dashboard", true, func(ctx context.Context) (*models.Dashboard, error) {
		return c.dashboards.Unarchive(ctx, id)
	}, attribute.Int64("metabase.dashboard_id", int64(id)))
}

// Databases

func (c *Client) ListDatabases(ctx context.Context, params models.ListParams) ([]models.Database, error) {
	return call(ctx, c, "list_databases", true, func(ctx context.Context) ([]models.Database, error) {
		return c.databases.List(ctx, params)
	})
}

func (c *Client) GetDatabase(ctx context.Context, id models.DatabaseID) (*models.Database, error) {
	return call(ctx, c, "get_database", true, func(ctx context.Context) (*models.Database, error) {
		return c.databases.Get(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

// CreateDatabase registers a data source. Details holds the engine specific
// connection settings.
func (c *Client) CreateDatabase(ctx context.Context, req models.CreateDatabaseRequest) (*models.Database, error) {
	return call(ctx, c, "create_database", true, func(ctx context.Context) (*models.Database, error) {
		return c.databases.Create(ctx, req)
	})
}

func (c *Client) UpdateDatabase(ctx context.Context, id models.DatabaseID, req models.UpdateDatabaseRequest) (*models.Database, error) {
	return call(ctx, c, "update_database", true, func(ctx context.Context) (*models.Database, error) {
		return c.databases.Update(ctx, id, req)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

func (c *Client) DeleteDatabase(ctx context.Context, id models.DatabaseID) error {
	return exec(ctx, c, "delete_database", true, func(ctx context.Context) error {
		return c.databases.Delete(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

// DatabaseMetadata returns the tables and fields of a database.
func (c *Client) DatabaseMetadata(ctx context.Context, id models.DatabaseID) (*models.DatabaseMetadata, error) {
	return call(ctx, c, "database_metadata", true, func(ctx context.Context) (*models.DatabaseMetadata, error) {
		return c.databases.Metadata(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

func (c *Client) DatabaseFields(ctx context.Context, id models.DatabaseID) ([]models.Field, error) {
	return call(ctx, c, "database_fields", true, func(ctx context.Context) ([]models.Field, error) {
		return c.databases.Fields(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

func (c *Client) DatabaseSchemas(ctx context.Context, id models.DatabaseID) ([]string, error) {
	return call(ctx, c, "database_schemas", true, func(ctx context.Context) ([]string, error) {
		return c.databases.Schemas(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}

// SyncDatabaseSchema asks the server to rescan a database. Cached metadata
// of the database is dropped.
func (c *Client) SyncDatabaseSchema(ctx context.Context, id models.DatabaseID) (*models.SyncResult, error) {
	return call(ctx, c, "sync_database_schema", true, func(ctx context.Context) (*models.SyncResult, error) {
		return c.databases.SyncSchema(ctx, id)
	}, attribute.Int64("metabase.database_id", int64(id)))
}
