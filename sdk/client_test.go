package sdk

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/metabase-go/internal/testutil"
	"github.com/birbparty/metabase-go/models"
)

func newTestClient(t *testing.T, ms *testutil.MockServer, configure ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig().
		WithBaseURL(ms.URL).
		WithRetryPolicy(RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		})
	for _, fn := range configure {
		fn(cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newMockServer(t *testing.T) *testutil.MockServer {
	t.Helper()
	ms := testutil.NewMockServer()
	ms.WithSession()
	t.Cleanup(ms.Close)
	return ms
}

func login(t *testing.T, client *Client) {
	t.Helper()
	require.NoError(t, client.Authenticate(context.Background(), models.EmailPassword{
		Email:    testutil.TestEmail,
		Password: testutil.TestPassword,
	}))
}

func ptr[T any](v T) *T { return &v }

func TestLoginThenCurrentUser(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)

	assert.False(t, client.IsAuthenticated())
	login(t, client)

	assert.True(t, client.IsAuthenticated())
	user, err := client.CurrentUser()
	require.NoError(t, err)
	assert.Equal(t, "a@x", user.Email)
	assert.Equal(t, "A", user.FirstName)

	current := ms.RequestsTo(http.MethodGet, "/api/user/current")
	require.Len(t, current, 1)
	assert.Equal(t, testutil.TestToken, current[0].Headers.Get("X-Metabase-Session"))
}

func TestAuthenticateRejected(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)

	err := client.Authenticate(context.Background(), models.EmailPassword{Email: "a@x", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.False(t, client.IsAuthenticated())
}

func TestCallsRequireSession(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)
	ctx := context.Background()

	_, err := client.GetCard(ctx, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = client.ExecuteSQL(ctx, 1, "SELECT 1")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, client.DeleteCollection(ctx, 3), ErrUnauthenticated)
	_, err = client.CurrentUser()
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Zero(t, ms.GetRequestCount())
}

func TestHealthCheckWithoutSession(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/health", http.StatusOK, map[string]string{"status": "ok"})
	client := newTestClient(t, ms)

	status, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
}

func TestGetCardIsCached(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusOK, testutil.TestCard(1, "C"))
	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	first, err := client.GetCard(ctx, 1)
	require.NoError(t, err)
	second, err := client.GetCard(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, "C", first.Name)
	assert.Equal(t, models.CardTypeQuestion, first.Type)
	assert.Equal(t, first, second)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 1)
}

func TestUpdateCardInvalidates(t *testing.T) {
	ms := newMockServer(t)
	var (
		mu   sync.Mutex
		name = "C"
	)
	ms.RegisterHandler("GET /api/card/1", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		mu.Lock()
		defer mu.Unlock()
		return http.StatusOK, testutil.TestCard(1, name)
	})
	ms.RegisterHandler("PUT /api/card/1", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		mu.Lock()
		defer mu.Unlock()
		name = "C2"
		return http.StatusOK, testutil.TestCard(1, name)
	})
	ms.Respond("DELETE /api/card/1", http.StatusNoContent, nil)

	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	_, err := client.GetCard(ctx, 1)
	require.NoError(t, err)
	_, err = client.GetCard(ctx, 1)
	require.NoError(t, err)

	updated, err := client.UpdateCard(ctx, 1, models.UpdateCardRequest{Name: ptr("C2")})
	require.NoError(t, err)
	assert.Equal(t, "C2", updated.Name)

	put := ms.RequestsTo(http.MethodPut, "/api/card/1")
	require.Len(t, put, 1)
	assert.JSONEq(t, `{"name":"C2"}`, string(put[0].Body))

	card, err := client.GetCard(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "C2", card.Name)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 2)

	require.NoError(t, client.DeleteCard(ctx, 1))
	_, err = client.GetCard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 3)
}

func TestConcurrentGetsShareOneRequest(t *testing.T) {
	ms := newMockServer(t)
	ms.WithDelayedResponse("GET /api/card/1", 50*time.Millisecond, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, testutil.TestCard(1, "C")
	})
	client := newTestClient(t, ms)
	login(t, client)

	const callers = 10
	var wg sync.WaitGroup
	names := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			card, err := client.GetCard(context.Background(), 1)
			errs[i] = err
			if err == nil {
				names[i] = card.Name
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "C", names[i])
	}
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 1)
}

func TestUnauthorizedClearsSession(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusUnauthorized, testutil.Raw("Unauthenticated"))
	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	_, err := client.GetCard(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.False(t, client.IsAuthenticated())

	sent := ms.GetRequestCount()
	_, err = client.GetCard(ctx, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, sent, ms.GetRequestCount())
}

func TestLogout(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusOK, testutil.TestCard(1, "C"))
	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	_, err := client.GetCard(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, client.Logout(ctx))

	assert.False(t, client.IsAuthenticated())
	assert.Len(t, ms.RequestsTo(http.MethodDelete, "/api/session"), 1)
	_, err = client.GetCard(ctx, 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	require.NoError(t, client.Logout(ctx), "logging out twice is fine")

	login(t, client)
	_, err = client.GetCard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 2, "cache is dropped on logout")
}

func TestRefreshSession(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)
	ctx := context.Background()

	assert.ErrorIs(t, client.RefreshSession(ctx), ErrUnauthenticated)

	login(t, client)
	require.NoError(t, client.RefreshSession(ctx))
	assert.True(t, client.IsAuthenticated())
	assert.Len(t, ms.RequestsTo(http.MethodPost, "/api/session"), 2)
}

func TestSessionTokenCredentials(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusOK, testutil.TestCard(1, "C"))
	client := newTestClient(t, ms)
	ctx := context.Background()

	require.NoError(t, client.Authenticate(ctx, models.SessionToken{Token: testutil.TestToken}))
	_, err := client.GetCard(ctx, 1)
	require.NoError(t, err)

	assert.Empty(t, ms.RequestsTo(http.MethodPost, "/api/session"))
	reqs := ms.RequestsTo(http.MethodGet, "/api/card/1")
	require.Len(t, reqs, 1)
	assert.Equal(t, testutil.TestToken, reqs[0].Headers.Get("X-Metabase-Session"))
	assert.NotEmpty(t, reqs[0].Headers.Get("X-Request-Id"))
}

func TestCacheToggle(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/card/1", http.StatusOK, testutil.TestCard(1, "C"))
	client := newTestClient(t, ms, func(c *Config) { c.WithCache(false) })
	login(t, client)
	ctx := context.Background()

	assert.False(t, client.IsCacheEnabled())
	for i := 0; i < 2; i++ {
		_, err := client.GetCard(ctx, 1)
		require.NoError(t, err)
	}
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 2)

	client.SetCacheEnabled(true)
	for i := 0; i < 2; i++ {
		_, err := client.GetCard(ctx, 1)
		require.NoError(t, err)
	}
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 3)

	client.ClearCache()
	_, err := client.GetCard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/card/1"), 4)
}

func TestValidationErrorsSendNothing(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)
	login(t, client)
	sent := ms.GetRequestCount()

	_, err := client.CreateCollection(context.Background(), models.CreateCollectionRequest{
		Name:  "",
		Color: ptr("blue"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "name cannot be empty")
	assert.Contains(t, err.Error(), "color must be a hex color")
	assert.Equal(t, sent, ms.GetRequestCount())
}

func TestCollectionsEndToEnd(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/collection", http.StatusOK, []interface{}{
		testutil.TestCollection(1, "Sales", 0),
		testutil.TestCollection(2, "EMEA", 1),
	})
	ms.Respond("GET /api/collection/root", http.StatusOK, map[string]interface{}{"id": "root", "name": "Our analytics"})
	ms.Respond("GET /api/collection/1", http.StatusOK, testutil.TestCollection(1, "Sales", 0))
	ms.Respond("GET /api/collection/2", http.StatusOK, testutil.TestCollection(2, "EMEA", 1))
	ms.Respond("PUT /api/collection/2", http.StatusOK, testutil.TestCollection(2, "EMEA", 0))
	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	root, err := client.GetCollection(ctx, models.RootCollectionID)
	require.NoError(t, err)
	assert.True(t, root.ID.IsRoot())

	roots, err := client.RootCollections(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Sales", roots[0].Name)

	_, err = client.MoveCollection(ctx, 1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "cycle")

	moved, err := client.MoveCollection(ctx, 2, models.RootCollectionID)
	require.NoError(t, err)
	assert.True(t, moved.Parent().IsRoot())

	put := ms.RequestsTo(http.MethodPut, "/api/collection/2")
	require.Len(t, put, 1)
	assert.JSONEq(t, `{"parent_id":null}`, string(put[0].Body))
}

func TestDatabaseMetadataEndToEnd(t *testing.T) {
	ms := newMockServer(t)
	ms.Respond("GET /api/database/2/metadata", http.StatusOK, map[string]interface{}{
		"id": 2, "name": "Sample", "engine": "h2",
		"tables": []interface{}{map[string]interface{}{"id": 5, "db_id": 2, "name": "ORDERS", "schema": "PUBLIC"}},
	})
	ms.Respond("POST /api/database/2/sync_schema", http.StatusOK, map[string]string{"status": "ok"})
	client := newTestClient(t, ms)
	login(t, client)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		md, err := client.DatabaseMetadata(ctx, 2)
		require.NoError(t, err)
		require.Len(t, md.Tables, 1)
		assert.Equal(t, "ORDERS", md.Tables[0].Name)
	}
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/database/2/metadata"), 1)

	res, err := client.SyncDatabaseSchema(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)

	_, err = client.DatabaseMetadata(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, ms.RequestsTo(http.MethodGet, "/api/database/2/metadata"), 2)
}

type countingObserver struct {
	NoopObserver
	started atomic.Int32
	retried atomic.Int32
}

func (o *countingObserver) OnRequestStart(method, path string) { o.started.Add(1) }

func (o *countingObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	o.retried.Add(1)
}

func TestObserverAndMetrics(t *testing.T) {
	ms := newMockServer(t)
	ms.WithRetryResponse("GET /api/card/1", 1, http.StatusServiceUnavailable, testutil.TestCard(1, "C"))
	reg := prometheus.NewRegistry()
	observer := &countingObserver{}
	client := newTestClient(t, ms, func(c *Config) {
		c.WithMetricsRegisterer(reg).WithObserver(observer)
	})
	login(t, client)

	_, err := client.GetCard(context.Background(), 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, observer.started.Load(), int32(3))
	assert.Equal(t, int32(1), observer.retried.Load())

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
		if f.GetName() == "metabase_client_authenticated" {
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, byName["metabase_client_requests_total"])
	assert.True(t, byName["metabase_client_retries_total"])
	assert.True(t, byName["metabase_client_cache_misses_total"])
}

func TestClose(t *testing.T) {
	ms := newMockServer(t)
	client := newTestClient(t, ms)
	login(t, client)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.GetCard(context.Background(), 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	err = client.Authenticate(context.Background(), models.SessionToken{Token: "x"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSetTimeout(t *testing.T) {
	ms := newMockServer(t)
	ms.WithDelayedResponse("GET /api/card/1", 200*time.Millisecond, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, testutil.TestCard(1, "C")
	})
	client := newTestClient(t, ms, func(c *Config) { c.WithRetries(1) })
	login(t, client)

	assert.ErrorIs(t, client.SetTimeout(0), ErrConfiguration)
	require.NoError(t, client.SetTimeout(20*time.Millisecond))

	_, err := client.GetCard(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, KindTransport, KindOf(err))
}
