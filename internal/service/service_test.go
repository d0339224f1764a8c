package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/internal/cache"
	"github.com/birbparty/metabase-go/internal/repository"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

var mbqlDataset = json.RawMessage(`{"database":2,"type":"query","query":{"source-table":5}}`)

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

func requireKind(t *testing.T, err error, kind apierr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apierr.KindOf(err), "error: %v", err)
}

func TestCardReadThroughAndInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCardRepository(models.Card{ID: 1, Name: "C", Type: models.CardTypeQuestion, DatasetQuery: mbqlDataset})
	svc := NewCardService(repo, nil, newCache(t), DefaultConfig())

	first, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	second, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.Calls(repository.OpGet))

	second.Name = "mutated"
	again, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "C", again.Name, "cached values are not shared")

	_, err = svc.Update(ctx, 1, models.UpdateCardRequest{Name: ptr("C2")})
	require.NoError(t, err)
	updated, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "C2", updated.Name)
	assert.Equal(t, 2, repo.Calls(repository.OpGet))

	require.NoError(t, svc.Delete(ctx, 1))
	_, err = svc.Get(ctx, 1)
	assert.True(t, apierr.IsNotFound(err))
	assert.Equal(t, 3, repo.Calls(repository.OpGet))
}

func TestCardConcurrentGetsShareOneFetch(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCardRepository(models.Card{ID: 1, Name: "C"})
	svc := NewCardService(repo, nil, newCache(t), DefaultConfig())

	var wg sync.WaitGroup
	names := make([]string, 20)
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := svc.Get(ctx, 1)
			if err == nil {
				names[i] = c.Name
			}
		}(i)
	}
	wg.Wait()
	calls := repo.Calls(repository.OpGet)

	for _, n := range names {
		assert.Equal(t, "C", n)
	}
	assert.GreaterOrEqual(t, repo.Calls(repository.OpGet), 1)
	_, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, calls, repo.Calls(repository.OpGet))
}

func TestCardListInvalidatedByCreate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCardRepository(models.Card{ID: 1, Name: "C"})
	svc := NewCardService(repo, nil, newCache(t), DefaultConfig())

	cards, err := svc.List(ctx, models.ListParams{})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	_, err = svc.List(ctx, models.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Calls(repository.OpList))

	_, err = svc.Create(ctx, models.CreateCardRequest{Name: "D", Display: "table", DatasetQuery: mbqlDataset})
	require.NoError(t, err)

	cards, err = svc.List(ctx, models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, cards, 2)
	assert.Equal(t, 2, repo.Calls(repository.OpList))
}

func TestCardCreateValidation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCardRepository()
	collections := repository.NewMockCollectionRepository()
	svc := NewCardService(repo, collections, nil, DefaultConfig())

	_, err := svc.Create(ctx, models.CreateCardRequest{
		Name:         " ",
		Type:         "dashboard",
		CollectionID: ptr(models.CollectionID(42)),
	})
	requireKind(t, err, apierr.KindValidation)
	msg := err.Error()
	assert.Contains(t, msg, "name cannot be empty")
	assert.Contains(t, msg, `card type "dashboard" is not allowed`)
	assert.Contains(t, msg, "dataset_query is required")
	assert.Contains(t, msg, "collection 42 does not exist")
	assert.Zero(t, repo.Calls(repository.OpCreate))

	_, err = svc.Create(ctx, models.CreateCardRequest{Name: "C", DatasetQuery: json.RawMessage(`{"type":"pivot"}`)})
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "dataset_query is malformed")

	_, err = svc.Create(ctx, models.CreateCardRequest{Name: strings.Repeat("x", 256), DatasetQuery: mbqlDataset})
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "name cannot exceed 255 characters")
}

func TestCardTypeAllowlistIsConfigurable(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.AllowedCardTypes = append(cfg.AllowedCardTypes, "semantic_layer")
	svc := NewCardService(repository.NewMockCardRepository(), nil, nil, cfg)

	card, err := svc.Create(ctx, models.CreateCardRequest{Name: "C", Type: "semantic_layer", DatasetQuery: mbqlDataset})
	require.NoError(t, err)
	assert.Equal(t, models.CardType("semantic_layer"), card.Type)
}

func TestValidationCanBeDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.EnableValidation = false
	repo := repository.NewMockCardRepository()
	svc := NewCardService(repo, nil, nil, cfg)

	_, err := svc.Create(ctx, models.CreateCardRequest{Name: ""})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Calls(repository.OpCreate))
}

func TestArchiveBeforeDelete(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RequireArchiveBeforeDelete = true
	repo := repository.NewMockCardRepository(models.Card{ID: 1, Name: "C"})
	svc := NewCardService(repo, nil, newCache(t), cfg)

	err := svc.Delete(ctx, 1)
	requireKind(t, err, apierr.KindValidation)
	assert.Zero(t, repo.Calls(repository.OpDelete))

	archived, err := svc.Archive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, archived.Archived)
	require.NoError(t, svc.Delete(ctx, 1))

	cfg.EnableBusinessRules = false
	repo.Put(models.Card{ID: 2, Name: "live"})
	require.NoError(t, NewCardService(repo, nil, nil, cfg).Delete(ctx, 2))
}

func TestServiceErrorsKeepKind(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCardRepository()
	svc := NewCardService(repo, nil, newCache(t), DefaultConfig())

	_, err := svc.Get(ctx, 9)
	requireKind(t, err, apierr.KindNotFound)
	assert.Contains(t, err.Error(), "get card 9")

	repo.FailWith(repository.OpList, apierr.FromStatus(503, "maintenance", ""))
	_, err = svc.List(ctx, models.ListParams{})
	requireKind(t, err, apierr.KindTransport)
	assert.True(t, apierr.IsRetryable(err))

	repo.FailWith(repository.OpList, nil)
	_, err = svc.List(ctx, models.ListParams{})
	require.NoError(t, err, "failures are not cached")
}

func TestCollectionValidation(t *testing.T) {
	ctx := context.Background()
	analytics := "analytics"
	repo := repository.NewMockCollectionRepository(
		models.Collection{ID: 1, Name: "Top", Location: "/"},
		models.Collection{ID: 2, Name: "Snippets", Location: "/", Namespace: &analytics},
	)
	svc := NewCollectionService(repo, nil, DefaultConfig())

	tests := []struct {
		name string
		req  models.CreateCollectionRequest
		want string
	}{
		{"short color", models.CreateCollectionRequest{Name: "A", Color: ptr("#FFF")}, "color must be a hex color (#RRGGBB)"},
		{"not hex", models.CreateCollectionRequest{Name: "A", Color: ptr("#GGGGGG")}, "color must be a hex color (#RRGGBB)"},
		{"long description", models.CreateCollectionRequest{Name: "A", Description: ptr(strings.Repeat("d", 5001))}, "description cannot exceed 5000 characters"},
		{"missing parent", models.CreateCollectionRequest{Name: "A", ParentID: ptr(models.CollectionID(99))}, "parent collection 99 does not exist"},
		{"namespace mismatch", models.CreateCollectionRequest{Name: "A", ParentID: ptr(models.CollectionID(2))}, `is in namespace "analytics"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			requireKind(t, err, apierr.KindValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Zero(t, repo.Calls(repository.OpCreate))

	c, err := svc.Create(ctx, models.CreateCollectionRequest{Name: "A", Color: ptr("#509EE3"), ParentID: ptr(models.CollectionID(1))})
	require.NoError(t, err)
	assert.Equal(t, models.CollectionID(1), c.Parent())
}

func TestCollectionCycles(t *testing.T) {
	ctx := context.Background()
	one, two := models.CollectionID(1), models.CollectionID(2)
	repo := repository.NewMockCollectionRepository(
		models.Collection{ID: 1, Name: "A", Location: "/"},
		models.Collection{ID: 2, Name: "B", Location: "/1/", ParentID: &one},
		models.Collection{ID: 3, Name: "C", Location: "/1/2/", ParentID: &two},
	)
	svc := NewCollectionService(repo, newCache(t), DefaultConfig())

	_, err := svc.Move(ctx, 1, 1)
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "own parent")

	_, err = svc.Move(ctx, 1, 3)
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "cycle")

	_, err = svc.Update(ctx, 1, models.UpdateCollectionRequest{ParentID: &two})
	requireKind(t, err, apierr.KindValidation)
	assert.Zero(t, repo.Calls(repository.OpMove))
	assert.Zero(t, repo.Calls(repository.OpUpdate))

	moved, err := svc.Move(ctx, 3, models.RootCollectionID)
	require.NoError(t, err)
	assert.True(t, moved.Parent().IsRoot())

	// C is top level now, so A may go under it.
	_, err = svc.Move(ctx, 1, 3)
	require.NoError(t, err)
}

func TestCollectionMoveInvalidatesItems(t *testing.T) {
	ctx := context.Background()
	one := models.CollectionID(1)
	repo := repository.NewMockCollectionRepository(
		models.Collection{ID: 1, Name: "A", Location: "/"},
		models.Collection{ID: 2, Name: "B", Location: "/"},
		models.Collection{ID: 3, Name: "C", Location: "/1/", ParentID: &one},
	)
	svc := NewCollectionService(repo, newCache(t), DefaultConfig())

	items, err := svc.Items(ctx, 1, models.ListParams{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	items, err = svc.Items(ctx, 2, models.ListParams{})
	require.NoError(t, err)
	require.Empty(t, items)
	assert.Equal(t, 2, repo.Calls(repository.OpItems))

	_, err = svc.Move(ctx, 3, 2)
	require.NoError(t, err)

	items, err = svc.Items(ctx, 1, models.ListParams{})
	require.NoError(t, err)
	assert.Empty(t, items)
	items, err = svc.Items(ctx, 2, models.ListParams{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 4, repo.Calls(repository.OpItems))

	roots, err := svc.Roots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 2)
	children, err := svc.Children(ctx, 2)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "C", children[0].Name)
}

func TestCardCreateInvalidatesCollectionItems(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	collections := repository.NewMockCollectionRepository(models.Collection{ID: 1, Name: "A", Location: "/"})
	cards := NewCardService(repository.NewMockCardRepository(), collections, c, DefaultConfig())
	cols := NewCollectionService(collections, c, DefaultConfig())

	_, err := cols.Items(ctx, 1, models.ListParams{})
	require.NoError(t, err)
	_, err = cards.Create(ctx, models.CreateCardRequest{Name: "C", DatasetQuery: mbqlDataset, CollectionID: ptr(models.CollectionID(1))})
	require.NoError(t, err)
	_, err = cols.Items(ctx, 1, models.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, collections.Calls(repository.OpItems))
}

func TestRootCollectionIsProtected(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockCollectionRepository()
	svc := NewCollectionService(repo, nil, DefaultConfig())

	requireKind(t, svc.Delete(ctx, models.RootCollectionID), apierr.KindValidation)
	_, err := svc.Archive(ctx, models.RootCollectionID)
	requireKind(t, err, apierr.KindValidation)
}

func TestInvalidationIsLogged(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := DefaultConfig()
	cfg.Logger = logrus.NewEntry(logger)

	repo := repository.NewMockDashboardRepository(models.Dashboard{ID: 1, Name: "D"})
	svc := NewDashboardService(repo, nil, newCache(t), cfg)
	_, err := svc.Update(context.Background(), 1, models.UpdateDashboardRequest{Name: ptr("E")})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "cache invalidated", entry.Message)
	assert.Equal(t, "dashboard_service", entry.Data["component"])
	assert.Contains(t, entry.Data["keys"], "dashboard/1")
}

func TestDashboardValidation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockDashboardRepository(models.Dashboard{ID: 1, Name: "D"})
	svc := NewDashboardService(repo, repository.NewMockCollectionRepository(), nil, DefaultConfig())

	_, err := svc.Create(ctx, models.CreateDashboardRequest{})
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "name is required")

	_, err = svc.Update(ctx, 1, models.UpdateDashboardRequest{DashCards: []models.DashboardCard{{ID: 4, SizeX: -1}}})
	requireKind(t, err, apierr.KindValidation)

	d, err := svc.Archive(ctx, 1)
	require.NoError(t, err)
	assert.True(t, d.Archived)
}

func TestDatabaseMetadataCachedUntilSync(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockDatabaseRepository(models.Database{ID: 2, Name: "Sample", Engine: "h2"})
	repo.SetMetadata(models.DatabaseMetadata{ID: 2, Name: "Sample", Tables: []models.Table{{ID: 5, Name: "ORDERS", Schema: "PUBLIC"}}})
	svc := NewDatabaseService(repo, newCache(t), DefaultConfig())

	for i := 0; i < 2; i++ {
		md, err := svc.Metadata(ctx, 2)
		require.NoError(t, err)
		require.Len(t, md.Tables, 1)
		_, err = svc.Schemas(ctx, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.Calls(repository.OpMetadata))
	assert.Equal(t, 1, repo.Calls(repository.OpSchemas))

	res, err := svc.SyncSchema(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)

	_, err = svc.Metadata(ctx, 2)
	require.NoError(t, err)
	_, err = svc.Schemas(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Calls(repository.OpMetadata))
	assert.Equal(t, 2, repo.Calls(repository.OpSchemas))

	_, err = svc.Create(ctx, models.CreateDatabaseRequest{Name: "pg"})
	requireKind(t, err, apierr.KindValidation)
	assert.Contains(t, err.Error(), "engine is required")
}

func TestExecuteSQLWithParamsBindsInNameOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockQueryRepository()
	repo.SetResult(models.QueryResult{Status: models.QueryStatusCompleted, RowCount: 3})
	svc := NewQueryService(repo, nil, DefaultConfig())

	res, err := svc.ExecuteSQLWithParams(ctx, 1, "SELECT * FROM o WHERE s={{s}} AND n > {{n}}", map[string]interface{}{
		"s": "done",
		"n": 5,
	}, QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)

	sent := repo.NativeQueries()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"n", "s"}, sent[0].Params())
}

func TestNativeValidationSendsNothing(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockQueryRepository()
	svc := NewQueryService(repo, nil, DefaultConfig())

	_, err := svc.ExecuteSQL(ctx, 1, "SELECT * FROM o WHERE s={{s}}", QueryOptions{})
	requireKind(t, err, apierr.KindValidation)

	_, err = svc.ExecuteSQL(ctx, 0, "SELECT 1", QueryOptions{})
	requireKind(t, err, apierr.KindValidation)

	_, err = svc.ExecuteSQLWithParams(ctx, 1, "SELECT {{x}}", map[string]interface{}{"x": struct{}{}}, QueryOptions{})
	requireKind(t, err, apierr.KindValidation)

	assert.Zero(t, repo.Calls(repository.OpExecuteNative))
}

func TestQueryCachingIsOptIn(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockQueryRepository()
	svc := NewQueryService(repo, newCache(t), DefaultConfig())

	q, err := mbql.FromTable(5).Database(2).Aggregate(mbql.Count()).Build()
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.ExecuteMBQL(ctx, q, QueryOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, repo.Calls(repository.OpExecuteMBQL))

	for i := 0; i < 2; i++ {
		_, err = svc.ExecuteMBQL(ctx, q, QueryOptions{Cache: true})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, repo.Calls(repository.OpExecuteMBQL))

	_, err = svc.ExecutePivot(ctx, q, QueryOptions{Cache: true})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Calls(repository.OpExecutePivot), "pivot results are keyed apart")
}

func TestCardResultsDroppedOnCardUpdate(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	queries := repository.NewMockQueryRepository()
	cardRepo := repository.NewMockCardRepository(models.Card{ID: 4, Name: "C", DatasetQuery: mbqlDataset})
	qs := NewQueryService(queries, c, DefaultConfig())
	cs := NewCardService(cardRepo, nil, c, DefaultConfig())

	opts := QueryOptions{Cache: true}
	_, err := qs.ExecuteCard(ctx, 4, nil, opts)
	require.NoError(t, err)
	_, err = qs.ExecuteCard(ctx, 4, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, queries.Calls(repository.OpExecuteCard))

	_, err = cs.Update(ctx, 4, models.UpdateCardRequest{Name: ptr("C2")})
	require.NoError(t, err)
	_, err = qs.ExecuteCard(ctx, 4, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, queries.Calls(repository.OpExecuteCard))
}

func TestExports(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMockQueryRepository()
	repo.SetExport([]byte("id\n1\n"))
	svc := NewQueryService(repo, nil, DefaultConfig())

	out, err := svc.ExportCard(ctx, 3, models.ExportCSV, nil)
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(out))

	q, err := mbql.FromTable(5).Database(2).Build()
	require.NoError(t, err)
	_, err = svc.ExportMBQL(ctx, q, "parquet")
	require.NoError(t, err, "export formats are open")

	_, err = svc.ExportNative(ctx, NativeWithParams(1, "SELECT {{a}}", map[string]interface{}{"a": 1}), models.ExportJSON)
	require.NoError(t, err)

	datasets := repo.Datasets()
	require.Len(t, datasets, 2)
	assert.Equal(t, "query", datasets[0].Type())
	assert.Equal(t, "native", datasets[1].Type())

	_, err = svc.ExportCard(ctx, 3, "CSV!", nil)
	requireKind(t, err, apierr.KindValidation)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultCardTypes, cfg.AllowedCardTypes)

	bad := Config{AllowedCardTypes: []models.CardType{""}}
	requireKind(t, bad.Validate(), apierr.KindConfiguration)
}
