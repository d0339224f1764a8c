package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/mbql"
	"github.com/birbparty/metabase-go/models"
)

// Operation names accepted by the mocks' Calls and FailWith.
const (
	OpList     = "list"
	OpGet      = "get"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpCopy     = "copy"
	OpItems    = "items"
	OpMove     = "move"
	OpMetadata = "metadata"
	OpFields   = "fields"
	OpSchemas  = "schemas"
	OpSync     = "sync"

	OpExecuteNative = "execute_native"
	OpExecuteMBQL   = "execute_mbql"
	OpExecutePivot  = "execute_pivot"
	OpExecuteCard   = "execute_card"
	OpExportCard    = "export_card"
	OpExportDataset = "export_dataset"
)

// recorder counts calls and injects failures per operation.
type recorder struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error
}

func (r *recorder) begin(ctx context.Context, op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[op]++
	if err := ctx.Err(); err != nil {
		e := apierr.Wrap(err, apierr.KindTransport, "request canceled")
		e.Retryable = false
		return e
	}
	return r.errs[op]
}

// Calls returns how many times op was invoked.
func (r *recorder) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// FailWith makes every later op return err. A nil err restores normal
// behavior.
func (r *recorder) FailWith(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = make(map[string]error)
	}
	if err == nil {
		delete(r.errs, op)
		return
	}
	r.errs[op] = err
}

func notFound(kind string, id fmt.Stringer) error {
	return apierr.FromStatus(http.StatusNotFound, fmt.Sprintf("%s %s not found", kind, id), "")
}

// memStore holds entities by id under its own lock.
type memStore[ID ~int64, T any] struct {
	mu     sync.RWMutex
	items  map[ID]T
	nextID ID
	idOf   func(T) ID
}

func newMemStore[ID ~int64, T any](idOf func(T) ID) *memStore[ID, T] {
	return &memStore[ID, T]{items: make(map[ID]T), nextID: 1, idOf: idOf}
}

func (s *memStore[ID, T]) put(items ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		id := s.idOf(it)
		s.items[id] = it
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
}

func (s *memStore[ID, T]) get(id ID) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	return it, ok
}

func (s *memStore[ID, T]) allocate() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

func (s *memStore[ID, T]) remove(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// list returns the entities accepted by keep, ordered by id.
func (s *memStore[ID, T]) list(keep func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.items))
	for _, it := range s.items {
		if keep == nil || keep(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.idOf(out[i]) < s.idOf(out[j]) })
	return out
}

func archivedMatches(p models.ListParams, archived bool) bool {
	switch {
	case p.Archived != nil:
		return *p.Archived == archived
	case p.Filter == models.ListArchived:
		return archived
	default:
		return !archived
	}
}

func collectionMatches(p models.ListParams, id *models.CollectionID) bool {
	if p.CollectionID == nil {
		return true
	}
	if id == nil {
		return p.CollectionID.IsRoot()
	}
	return *id == *p.CollectionID
}

// MockCardRepository is an in-memory CardRepository.
type MockCardRepository struct {
	recorder
	store *memStore[models.CardID, models.Card]
	now   func() time.Time
}

func NewMockCardRepository(cards ...models.Card) *MockCardRepository {
	m := &MockCardRepository{
		store: newMemStore(func(c models.Card) models.CardID { return c.ID }),
		now:   time.Now,
	}
	m.store.put(cards...)
	return m
}

// Put seeds or replaces cards.
func (m *MockCardRepository) Put(cards ...models.Card) { m.store.put(cards...) }

func (m *MockCardRepository) List(ctx context.Context, params models.ListParams) ([]models.Card, error) {
	if err := m.begin(ctx, OpList); err != nil {
		return nil, err
	}
	cards := m.store.list(func(c models.Card) bool {
		return archivedMatches(params, c.Archived) && collectionMatches(params, c.CollectionID)
	})
	return models.Page(cards, params), nil
}

func (m *MockCardRepository) Get(ctx context.Context, id models.CardID) (*models.Card, error) {
	if err := m.begin(ctx, OpGet); err != nil {
		return nil, err
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("card", id)
	}
	return &c, nil
}

func (m *MockCardRepository) Create(ctx context.Context, req models.CreateCardRequest) (*models.Card, error) {
	if err := m.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	now := m.now()
	c := models.Card{
		ID:                    m.store.allocate(),
		Name:                  req.Name,
		Description:           req.Description,
		Type:                  req.Type,
		Display:               req.Display,
		DatasetQuery:          req.DatasetQuery,
		VisualizationSettings: req.VisualizationSettings,
		CollectionID:          req.CollectionID,
		CreatedAt:             &now,
		UpdatedAt:             &now,
	}
	if c.Type == "" {
		c.Type = models.CardTypeQuestion
	}
	m.store.put(c)
	return &c, nil
}

func (m *MockCardRepository) Update(ctx context.Context, id models.CardID, req models.UpdateCardRequest) (*models.Card, error) {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return nil, err
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("card", id)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Type != nil {
		c.Type = *req.Type
	}
	if req.Description != nil {
		c.Description = req.Description
	}
	if req.Display != nil {
		c.Display = *req.Display
	}
	if req.DatasetQuery != nil {
		c.DatasetQuery = req.DatasetQuery
	}
	if req.VisualizationSettings != nil {
		c.VisualizationSettings = req.VisualizationSettings
	}
	if req.CollectionID != nil {
		c.CollectionID = req.CollectionID
	}
	if req.Archived != nil {
		c.Archived = *req.Archived
	}
	if req.EnableEmbedding != nil {
		c.EnableEmbedding = *req.EnableEmbedding
	}
	now := m.now()
	c.UpdatedAt = &now
	m.store.put(c)
	return &c, nil
}

func (m *MockCardRepository) Delete(ctx context.Context, id models.CardID) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if !m.store.remove(id) {
		return notFound("card", id)
	}
	return nil
}

func (m *MockCardRepository) Copy(ctx context.Context, id models.CardID) (*models.Card, error) {
	if err := m.begin(ctx, OpCopy); err != nil {
		return nil, err
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("card", id)
	}
	c.ID = m.store.allocate()
	c.Name += " - Duplicate"
	c.Archived = false
	m.store.put(c)
	return &c, nil
}

// MockCollectionRepository is an in-memory CollectionRepository. Items lists
// child collections plus whatever was registered with AddItems.
type MockCollectionRepository struct {
	recorder
	store *memStore[models.CollectionID, models.Collection]

	itemsMu sync.Mutex
	extra   map[models.CollectionID][]models.CollectionItem
}

func NewMockCollectionRepository(collections ...models.Collection) *MockCollectionRepository {
	m := &MockCollectionRepository{
		store: newMemStore(func(c models.Collection) models.CollectionID { return c.ID }),
		extra: make(map[models.CollectionID][]models.CollectionItem),
	}
	m.store.put(collections...)
	return m
}

func (m *MockCollectionRepository) Put(collections ...models.Collection) { m.store.put(collections...) }

// AddItems registers non-collection children of id.
func (m *MockCollectionRepository) AddItems(id models.CollectionID, items ...models.CollectionItem) {
	m.itemsMu.Lock()
	defer m.itemsMu.Unlock()
	m.extra[id] = append(m.extra[id], items...)
}

func (m *MockCollectionRepository) List(ctx context.Context, params models.ListParams) ([]models.Collection, error) {
	if err := m.begin(ctx, OpList); err != nil {
		return nil, err
	}
	cols := m.store.list(func(c models.Collection) bool {
		return archivedMatches(params, c.Archived)
	})
	return models.Page(cols, params), nil
}

func (m *MockCollectionRepository) Get(ctx context.Context, id models.CollectionID) (*models.Collection, error) {
	if err := m.begin(ctx, OpGet); err != nil {
		return nil, err
	}
	if id.IsRoot() {
		return &models.Collection{ID: models.RootCollectionID, Name: "Our analytics", Location: "/"}, nil
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("collection", id)
	}
	return &c, nil
}

func location(parent *models.Collection) string {
	if parent == nil {
		return "/"
	}
	return fmt.Sprintf("%s%d/", parent.Location, parent.ID)
}

func (m *MockCollectionRepository) parentLocation(id *models.CollectionID) string {
	if id == nil || id.IsRoot() {
		return "/"
	}
	p, ok := m.store.get(*id)
	if !ok {
		return "/"
	}
	return location(&p)
}

func (m *MockCollectionRepository) Create(ctx context.Context, req models.CreateCollectionRequest) (*models.Collection, error) {
	if err := m.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	c := models.Collection{
		ID:          m.store.allocate(),
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		ParentID:    req.ParentID,
		Namespace:   req.Namespace,
		Location:    m.parentLocation(req.ParentID),
	}
	m.store.put(c)
	return &c, nil
}

func (m *MockCollectionRepository) Update(ctx context.Context, id models.CollectionID, req models.UpdateCollectionRequest) (*models.Collection, error) {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return nil, err
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("collection", id)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = req.Description
	}
	if req.Color != nil {
		c.Color = req.Color
	}
	if req.ParentID != nil {
		c.ParentID = req.ParentID
		c.Location = m.parentLocation(req.ParentID)
	}
	if req.Archived != nil {
		c.Archived = *req.Archived
	}
	m.store.put(c)
	return &c, nil
}

func (m *MockCollectionRepository) Delete(ctx context.Context, id models.CollectionID) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if !m.store.remove(id) {
		return notFound("collection", id)
	}
	return nil
}

func (m *MockCollectionRepository) Items(ctx context.Context, id models.CollectionID, params models.ListParams) ([]models.CollectionItem, error) {
	if err := m.begin(ctx, OpItems); err != nil {
		return nil, err
	}
	children := m.store.list(func(c models.Collection) bool {
		return c.Parent() == id && archivedMatches(params, c.Archived)
	})
	items := make([]models.CollectionItem, 0, len(children))
	for _, c := range children {
		items = append(items, models.CollectionItem{
			ID:          int64(c.ID),
			Model:       models.ItemModelCollection,
			Name:        c.Name,
			Description: c.Description,
			Archived:    c.Archived,
		})
	}
	m.itemsMu.Lock()
	items = append(items, m.extra[id]...)
	m.itemsMu.Unlock()
	return models.Page(items, params), nil
}

func (m *MockCollectionRepository) Move(ctx context.Context, id, parent models.CollectionID) (*models.Collection, error) {
	if err := m.begin(ctx, OpMove); err != nil {
		return nil, err
	}
	c, ok := m.store.get(id)
	if !ok {
		return nil, notFound("collection", id)
	}
	if parent.IsRoot() {
		c.ParentID = nil
	} else {
		p := parent
		c.ParentID = &p
	}
	c.Location = m.parentLocation(c.ParentID)
	m.store.put(c)
	return &c, nil
}

// MockDashboardRepository is an in-memory DashboardRepository.
type MockDashboardRepository struct {
	recorder
	store *memStore[models.DashboardID, models.Dashboard]
}

func NewMockDashboardRepository(dashboards ...models.Dashboard) *MockDashboardRepository {
	m := &MockDashboardRepository{
		store: newMemStore(func(d models.Dashboard) models.DashboardID { return d.ID }),
	}
	m.store.put(dashboards...)
	return m
}

func (m *MockDashboardRepository) Put(dashboards ...models.Dashboard) { m.store.put(dashboards...) }

func (m *MockDashboardRepository) List(ctx context.Context, params models.ListParams) ([]models.Dashboard, error) {
	if err := m.begin(ctx, OpList); err != nil {
		return nil, err
	}
	ds := m.store.list(func(d models.Dashboard) bool {
		return archivedMatches(params, d.Archived) && collectionMatches(params, d.CollectionID)
	})
	return models.Page(ds, params), nil
}

func (m *MockDashboardRepository) Get(ctx context.Context, id models.DashboardID) (*models.Dashboard, error) {
	if err := m.begin(ctx, OpGet); err != nil {
		return nil, err
	}
	d, ok := m.store.get(id)
	if !ok {
		return nil, notFound("dashboard", id)
	}
	return &d, nil
}

func (m *MockDashboardRepository) Create(ctx context.Context, req models.CreateDashboardRequest) (*models.Dashboard, error) {
	if err := m.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	d := models.Dashboard{
		ID:           m.store.allocate(),
		Name:         req.Name,
		Description:  req.Description,
		CollectionID: req.CollectionID,
		Parameters:   req.Parameters,
	}
	m.store.put(d)
	return &d, nil
}

func (m *MockDashboardRepository) Update(ctx context.Context, id models.DashboardID, req models.UpdateDashboardRequest) (*models.Dashboard, error) {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return nil, err
	}
	d, ok := m.store.get(id)
	if !ok {
		return nil, notFound("dashboard", id)
	}
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Description != nil {
		d.Description = req.Description
	}
	if req.CollectionID != nil {
		d.CollectionID = req.CollectionID
	}
	if req.Archived != nil {
		d.Archived = *req.Archived
	}
	if req.Parameters != nil {
		d.Parameters = req.Parameters
	}
	if req.DashCards != nil {
		d.DashCards = req.DashCards
	}
	m.store.put(d)
	return &d, nil
}

func (m *MockDashboardRepository) Delete(ctx context.Context, id models.DashboardID) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if !m.store.remove(id) {
		return notFound("dashboard", id)
	}
	return nil
}

// MockDatabaseRepository is an in-memory DatabaseRepository. Metadata, Fields
// and Schemas are derived from what SetMetadata registered.
type MockDatabaseRepository struct {
	recorder
	store *memStore[models.DatabaseID, models.Database]

	metaMu   sync.RWMutex
	metadata map[models.DatabaseID]models.DatabaseMetadata
}

func NewMockDatabaseRepository(dbs ...models.Database) *MockDatabaseRepository {
	m := &MockDatabaseRepository{
		store:    newMemStore(func(d models.Database) models.DatabaseID { return d.ID }),
		metadata: make(map[models.DatabaseID]models.DatabaseMetadata),
	}
	m.store.put(dbs...)
	return m
}

func (m *MockDatabaseRepository) Put(dbs ...models.Database) { m.store.put(dbs...) }

// SetMetadata registers the tables of a database.
func (m *MockDatabaseRepository) SetMetadata(md models.DatabaseMetadata) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()
	m.metadata[md.ID] = md
}

func (m *MockDatabaseRepository) List(ctx context.Context, params models.ListParams) ([]models.Database, error) {
	if err := m.begin(ctx, OpList); err != nil {
		return nil, err
	}
	return models.Page(m.store.list(nil), params), nil
}

func (m *MockDatabaseRepository) Get(ctx context.Context, id models.DatabaseID) (*models.Database, error) {
	if err := m.begin(ctx, OpGet); err != nil {
		return nil, err
	}
	d, ok := m.store.get(id)
	if !ok {
		return nil, notFound("database", id)
	}
	return &d, nil
}

func (m *MockDatabaseRepository) Create(ctx context.Context, req models.CreateDatabaseRequest) (*models.Database, error) {
	if err := m.begin(ctx, OpCreate); err != nil {
		return nil, err
	}
	d := models.Database{
		ID:          m.store.allocate(),
		Name:        req.Name,
		Engine:      req.Engine,
		Description: req.Description,
	}
	if req.IsFullSync != nil {
		d.IsFullSync = *req.IsFullSync
	}
	m.store.put(d)
	return &d, nil
}

func (m *MockDatabaseRepository) Update(ctx context.Context, id models.DatabaseID, req models.UpdateDatabaseRequest) (*models.Database, error) {
	if err := m.begin(ctx, OpUpdate); err != nil {
		return nil, err
	}
	d, ok := m.store.get(id)
	if !ok {
		return nil, notFound("database", id)
	}
	if req.Name != nil {
		d.Name = *req.Name
	}
	if req.Description != nil {
		d.Description = req.Description
	}
	if req.IsFullSync != nil {
		d.IsFullSync = *req.IsFullSync
	}
	m.store.put(d)
	return &d, nil
}

func (m *MockDatabaseRepository) Delete(ctx context.Context, id models.DatabaseID) error {
	if err := m.begin(ctx, OpDelete); err != nil {
		return err
	}
	if !m.store.remove(id) {
		return notFound("database", id)
	}
	m.metaMu.Lock()
	delete(m.metadata, id)
	m.metaMu.Unlock()
	return nil
}

func (m *MockDatabaseRepository) lookupMetadata(id models.DatabaseID) (models.DatabaseMetadata, error) {
	if _, ok := m.store.get(id); !ok {
		return models.DatabaseMetadata{}, notFound("database", id)
	}
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()
	md, ok := m.metadata[id]
	if !ok {
		d, _ := m.store.get(id)
		md = models.DatabaseMetadata{ID: d.ID, Name: d.Name, Engine: d.Engine, Tables: []models.Table{}}
	}
	return md, nil
}

func (m *MockDatabaseRepository) Metadata(ctx context.Context, id models.DatabaseID) (*models.DatabaseMetadata, error) {
	if err := m.begin(ctx, OpMetadata); err != nil {
		return nil, err
	}
	md, err := m.lookupMetadata(id)
	if err != nil {
		return nil, err
	}
	return &md, nil
}

func (m *MockDatabaseRepository) Fields(ctx context.Context, id models.DatabaseID) ([]models.Field, error) {
	if err := m.begin(ctx, OpFields); err != nil {
		return nil, err
	}
	md, err := m.lookupMetadata(id)
	if err != nil {
		return nil, err
	}
	fields := []models.Field{}
	for _, t := range md.Tables {
		fields = append(fields, t.Fields...)
	}
	return fields, nil
}

func (m *MockDatabaseRepository) Schemas(ctx context.Context, id models.DatabaseID) ([]string, error) {
	if err := m.begin(ctx, OpSchemas); err != nil {
		return nil, err
	}
	md, err := m.lookupMetadata(id)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	schemas := []string{}
	for _, t := range md.Tables {
		if t.Schema != "" && !seen[t.Schema] {
			seen[t.Schema] = true
			schemas = append(schemas, t.Schema)
		}
	}
	sort.Strings(schemas)
	return schemas, nil
}

func (m *MockDatabaseRepository) SyncSchema(ctx context.Context, id models.DatabaseID) (*models.SyncResult, error) {
	if err := m.begin(ctx, OpSync); err != nil {
		return nil, err
	}
	if _, ok := m.store.get(id); !ok {
		return nil, notFound("database", id)
	}
	return &models.SyncResult{Status: "ok"}, nil
}

// CardQuery records one ExecuteCard or ExportCard call.
type CardQuery struct {
	CardID     models.CardID
	Format     models.ExportFormat
	Parameters []mbql.Parameter
}

// MockQueryRepository is an in-memory QueryRepository. Queries are validated
// like the HTTP repository does, then answered with the configured result.
type MockQueryRepository struct {
	recorder

	mu       sync.Mutex
	result   models.QueryResult
	export   []byte
	native   []*mbql.NativeQuery
	mbqls    []mbql.Query
	cards    []CardQuery
	datasets []mbql.DatasetQuery
}

func NewMockQueryRepository() *MockQueryRepository {
	return &MockQueryRepository{
		result: models.QueryResult{Status: models.QueryStatusCompleted, Data: models.QueryData{Cols: []models.Column{}, Rows: [][]any{}}},
	}
}

// SetResult sets what every execute call returns. A result with status
// failed is reported as a QueryExecution error.
func (m *MockQueryRepository) SetResult(r models.QueryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = r
}

// SetExport sets the bytes returned by the export calls.
func (m *MockQueryRepository) SetExport(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.export = append([]byte(nil), b...)
}

// NativeQueries returns the native queries executed so far.
func (m *MockQueryRepository) NativeQueries() []*mbql.NativeQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*mbql.NativeQuery(nil), m.native...)
}

// MBQLQueries returns the structured queries executed so far, pivots included.
func (m *MockQueryRepository) MBQLQueries() []mbql.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mbql.Query(nil), m.mbqls...)
}

// CardQueries returns the card executions and exports so far.
func (m *MockQueryRepository) CardQueries() []CardQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CardQuery(nil), m.cards...)
}

// Datasets returns the exported dataset queries.
func (m *MockQueryRepository) Datasets() []mbql.DatasetQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mbql.DatasetQuery(nil), m.datasets...)
}

func (m *MockQueryRepository) answer() (*models.QueryResult, error) {
	m.mu.Lock()
	r := m.result
	m.mu.Unlock()
	if r.Failed() {
		msg := r.Error
		if msg == "" {
			msg = "query failed"
		}
		return nil, apierr.New(apierr.KindQueryExecution, msg)
	}
	return &r, nil
}

func (m *MockQueryRepository) ExecuteNative(ctx context.Context, q *mbql.NativeQuery) (*models.QueryResult, error) {
	if err := m.begin(ctx, OpExecuteNative); err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apierr.New(apierr.KindValidation, "native query is nil")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.native = append(m.native, q)
	m.mu.Unlock()
	return m.answer()
}

func (m *MockQueryRepository) ExecuteMBQL(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	return m.executeMBQL(ctx, OpExecuteMBQL, q)
}

func (m *MockQueryRepository) ExecutePivot(ctx context.Context, q mbql.Query) (*models.QueryResult, error) {
	return m.executeMBQL(ctx, OpExecutePivot, q)
}

func (m *MockQueryRepository) executeMBQL(ctx context.Context, op string, q mbql.Query) (*models.QueryResult, error) {
	if err := m.begin(ctx, op); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.mbqls = append(m.mbqls, q)
	m.mu.Unlock()
	return m.answer()
}

func (m *MockQueryRepository) ExecuteCard(ctx context.Context, id models.CardID, params []mbql.Parameter) (*models.QueryResult, error) {
	if err := m.begin(ctx, OpExecuteCard); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cards = append(m.cards, CardQuery{CardID: id, Parameters: params})
	m.mu.Unlock()
	return m.answer()
}

func (m *MockQueryRepository) ExportCard(ctx context.Context, id models.CardID, format models.ExportFormat, params []mbql.Parameter) ([]byte, error) {
	if err := m.begin(ctx, OpExportCard); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, apierr.Wrap(err, apierr.KindValidation, "export card")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards = append(m.cards, CardQuery{CardID: id, Format: format, Parameters: params})
	return append([]byte(nil), m.export...), nil
}

func (m *MockQueryRepository) ExportDataset(ctx context.Context, q mbql.DatasetQuery, format models.ExportFormat) ([]byte, error) {
	if err := m.begin(ctx, OpExportDataset); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, apierr.Wrap(err, apierr.KindValidation, "export dataset")
	}
	if _, err := q.MarshalJSON(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = append(m.datasets, q)
	return append([]byte(nil), m.export...), nil
}

var (
	_ CardRepository       = (*MockCardRepository)(nil)
	_ CollectionRepository = (*MockCollectionRepository)(nil)
	_ DashboardRepository  = (*MockDashboardRepository)(nil)
	_ DatabaseRepository   = (*MockDatabaseRepository)(nil)
	_ QueryRepository      = (*MockQueryRepository)(nil)

	_ CardRepository       = (*HTTPCardRepository)(nil)
	_ CollectionRepository = (*HTTPCollectionRepository)(nil)
	_ DashboardRepository  = (*HTTPDashboardRepository)(nil)
	_ DatabaseRepository   = (*HTTPDatabaseRepository)(nil)
	_ QueryRepository      = (*HTTPQueryRepository)(nil)
)
