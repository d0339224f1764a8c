package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	hits, misses atomic.Int32
}

func (r *countingRecorder) OnCacheHit(string)  { r.hits.Add(1) }
func (r *countingRecorder) OnCacheMiss(string) { r.misses.Add(1) }

func newTestCache(t *testing.T, mods ...func(*Config)) (*Cache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Now = clk.Now
	for _, mod := range mods {
		mod(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c, clk
}

func TestGetSetAndTTL(t *testing.T) {
	c, clk := newTestCache(t)

	key := CardKey(1)
	c.Set(key, []byte(`{"id":1}`), time.Minute)

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, string(got))

	clk.Advance(59 * time.Second)
	_, ok = c.Get(key)
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok, "entry expires at its TTL")
	assert.Zero(t, c.Len(), "expired entries are dropped on read")
}

func TestDefaultTTLPerNamespace(t *testing.T) {
	c, clk := newTestCache(t, func(cfg *Config) {
		cfg.MetadataTTL = time.Hour
		cfg.QueryTTL = time.Minute
		cfg.MaxQueryTTL = 5 * time.Minute
	})

	c.Set(DatabaseMetadataKey(2), []byte(`{}`), 0)
	c.Set(QueryKey([]byte(`{"database":1}`)), []byte(`{}`), 0)
	c.Set(QueryKey([]byte(`{"database":2}`)), []byte(`{}`), time.Hour)

	clk.Advance(2 * time.Minute)
	_, ok := c.Get(DatabaseMetadataKey(2))
	assert.True(t, ok)
	_, ok = c.Get(QueryKey([]byte(`{"database":1}`)))
	assert.False(t, ok, "query results default to the query TTL")
	_, ok = c.Get(QueryKey([]byte(`{"database":2}`)))
	assert.True(t, ok)

	clk.Advance(4 * time.Minute)
	_, ok = c.Get(QueryKey([]byte(`{"database":2}`)))
	assert.False(t, ok, "a requested query TTL is capped at the maximum")
}

func TestQueryTTL(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, 60*time.Second, c.QueryTTL(0))
	assert.Equal(t, 5*time.Second, c.QueryTTL(5*time.Second))
	assert.Equal(t, 10*time.Minute, c.QueryTTL(time.Hour))
}

func TestLRUBound(t *testing.T) {
	c, _ := newTestCache(t, func(cfg *Config) {
		cfg.Shards = 1
		cfg.MaxEntries = 2
	})

	c.Set("a", []byte("1"), 0)
	c.Set("b", []byte("2"), 0)
	_, _ = c.Get("a")
	c.Set("c", []byte("3"), 0)

	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestDisableMakesOperationsNoOps(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("card/1", []byte("1"), 0)

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	_, ok := c.Get("card/1")
	assert.False(t, ok)
	c.Set("card/2", []byte("2"), 0)
	assert.Equal(t, 1, c.Len(), "disabling neither evicts nor stores")

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := c.Load(context.Background(), "card/3", 0, func(context.Context) ([]byte, error) {
			calls++
			return []byte("3"), nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)

	c.SetEnabled(true)
	_, ok = c.Get("card/1")
	assert.True(t, ok, "entries survive a disable/enable cycle")
}

func TestDeleteAppliesWhileDisabled(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set("card/1", []byte("1"), 0)
	c.SetEnabled(false)
	c.Delete("card/1")
	c.SetEnabled(true)

	_, ok := c.Get("card/1")
	assert.False(t, ok)
}

func TestDeletePrefixAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	c.Set(CardListKey("f=all"), []byte("[]"), 0)
	c.Set(CardListKey("f=mine"), []byte("[]"), 0)
	c.Set(CollectionListKey(""), []byte("[]"), 0)
	c.Set(CardKey(4), []byte("{}"), 0)

	assert.Equal(t, 2, c.DeletePrefix(ListPrefix(KindCard)))
	_, ok := c.Get(CollectionListKey(""))
	assert.True(t, ok)
	_, ok = c.Get(CardKey(4))
	assert.True(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestLoadReadsThrough(t *testing.T) {
	rec := &countingRecorder{}
	c, _ := newTestCache(t, func(cfg *Config) { cfg.Recorder = rec })

	calls := 0
	fetch := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`"v"`), nil
	}
	for i := 0; i < 3; i++ {
		got, err := c.Load(context.Background(), "card/9", 0, fetch)
		require.NoError(t, err)
		assert.Equal(t, `"v"`, string(got))
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(2), rec.hits.Load())
	assert.Equal(t, int32(1), rec.misses.Load())
}

func TestLoadDoesNotCacheFailures(t *testing.T) {
	c, _ := newTestCache(t)
	boom := apierr.New(apierr.KindTransport, "boom")

	_, err := c.Load(context.Background(), "card/1", 0, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
	assert.Zero(t, c.Len())
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	c, _ := newTestCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`{"id":1}`), nil
	}

	const n = 20
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
		results = make([]string, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			got, err := c.Load(context.Background(), "card/1", 0, fetch)
			assert.NoError(t, err)
			results[i] = string(got)
		}(i)
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, `{"id":1}`, r)
	}
}

func TestConcurrentLoadsShareOneError(t *testing.T) {
	c, _ := newTestCache(t)

	var calls atomic.Int32
	release := make(chan struct{})
	boom := apierr.New(apierr.KindNotFound, "missing")

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Load(context.Background(), "card/2", 0, func(context.Context) ([]byte, error) {
				calls.Add(1)
				<-release
				return nil, boom
			})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		assert.True(t, errors.Is(err, apierr.ErrNotFound))
	}
}

func TestWaiterMayLeaveOnCancellation(t *testing.T) {
	c, _ := newTestCache(t)

	release := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), "card/5", 0, func(context.Context) ([]byte, error) {
			<-release
			return []byte("5"), nil
		})
		leaderDone <- err
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Load(ctx, "card/5", 0, func(context.Context) ([]byte, error) {
		t.Error("waiter must not fetch")
		return nil, nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, apierr.IsRetryable(err))

	close(release)
	require.NoError(t, <-leaderDone)
	_, ok := c.Get("card/5")
	assert.True(t, ok, "the leader's result is still cached")
}

func TestCanceledFetchInsertsNothing(t *testing.T) {
	c, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	fetchDone := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := c.Load(ctx, "card/6", 0, func(ctx context.Context) ([]byte, error) {
		defer close(fetchDone)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.Error(t, err)
	<-fetchDone
	assert.Zero(t, c.Len())
}

func TestLoadRacingInvalidationDoesNotInsert(t *testing.T) {
	c, _ := newTestCache(t)

	got, err := c.Load(context.Background(), "card/7", 0, func(context.Context) ([]byte, error) {
		// a write lands while the origin fetch is in flight
		c.Delete("card/7")
		return []byte("stale"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", string(got))

	_, ok := c.Get("card/7")
	assert.False(t, ok)
}

func TestFetchTyped(t *testing.T) {
	c, _ := newTestCache(t)

	type card struct {
		ID   models.CardID `json:"id"`
		Tags []string      `json:"tags"`
	}
	calls := 0
	load := func(context.Context) (card, error) {
		calls++
		return card{ID: 3, Tags: []string{"a"}}, nil
	}

	first, err := Fetch(context.Background(), c, CardKey(3), 0, load)
	require.NoError(t, err)
	first.Tags[0] = "mutated"

	second, err := Fetch(context.Background(), c, CardKey(3), 0, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, second.Tags, "cached values are never aliased")
	assert.Equal(t, 1, calls)

	var nilCache *Cache
	_, err = Fetch(context.Background(), nilCache, CardKey(3), 0, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "card/1", CardKey(1))
	assert.Equal(t, "collection/root", CollectionKey(models.RootCollectionID))
	assert.Equal(t, "collection/4/items", CollectionItemsKey(4))
	assert.Equal(t, "database/2/metadata", DatabaseMetadataKey(2))
	assert.Equal(t, "dashboard/8", DashboardKey(8))
	assert.Equal(t, "card:list:", CardListKey(""))
	assert.NotEqual(t, CardListKey("f=all"), CardListKey("f=mine"))
	assert.Equal(t, NamespaceQuery, NamespaceOf(QueryKey([]byte("x"))))
	assert.Equal(t, NamespaceMetadata, NamespaceOf(CardKey(1)))
	assert.Len(t, QueryKey([]byte("x")), len(QueryPrefix)+64)

	key := CardQueryKey(1, []byte(`[]`))
	assert.Equal(t, NamespaceQuery, NamespaceOf(key))
	assert.True(t, strings.HasPrefix(key, CardQueryPrefix(1)))
	assert.False(t, strings.HasPrefix(CardQueryKey(10, nil), CardQueryPrefix(1)))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{MaxEntries: 4}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Shards, "never more shards than entries")
	assert.Equal(t, 5*time.Minute, cfg.MetadataTTL)

	bad := Config{QueryTTL: -1}
	assert.True(t, errors.Is(bad.Validate(), apierr.ErrConfiguration))
}

func BenchmarkLoadHit(b *testing.B) {
	c, err := New(DefaultConfig())
	require.NoError(b, err)
	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("card/%d", i), []byte("{}"), 0)
	}
	fetch := func(context.Context) ([]byte, error) { return []byte("{}"), nil }

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = c.Load(context.Background(), fmt.Sprintf("card/%d", i%100), 0, fetch)
			i++
		}
	})
}
