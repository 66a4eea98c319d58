package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashmirror/internal/catalog"
	"dashmirror/internal/events"
	"dashmirror/internal/models"
	"dashmirror/internal/transport"
	"dashmirror/internal/trust"
)

func testEngine(t *testing.T, opts Options) (*catalog.Store, *Engine) {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := trust.NewRegistry()
	httpc := transport.New(registry.IsTrusted)
	return store, NewEngine(store, httpc, registry, events.NewBus(), opts)
}

func insertService(t *testing.T, store *catalog.Store, id, url string, checkedAt *time.Time) {
	t.Helper()
	require.NoError(t, store.InsertService(context.Background(), models.Service{
		ID:            id,
		Name:          id,
		URL:           url,
		Health:        models.HealthUnknown,
		LastCheckedAt: checkedAt,
	}))
}

func TestProbeClassification(t *testing.T) {
	tests := []struct {
		name string
		head int
		get  int // 0 means the GET retry must not happen
		want models.HealthState
	}{
		{name: "200 is healthy", head: http.StatusOK, want: models.HealthHealthy},
		{name: "404 still proves liveness", head: http.StatusNotFound, want: models.HealthHealthy},
		{name: "302 is a terminal healthy response", head: http.StatusFound, want: models.HealthHealthy},
		{name: "501 head retried as get, 200 wins", head: http.StatusNotImplemented, get: http.StatusOK, want: models.HealthHealthy},
		{name: "501 head retried as get, 503 is final", head: http.StatusNotImplemented, get: http.StatusServiceUnavailable, want: models.HealthUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var methods []string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				methods = append(methods, r.Method)
				if r.Method == http.MethodHead {
					w.WriteHeader(tt.head)
					return
				}
				w.WriteHeader(tt.get)
			}))
			t.Cleanup(srv.Close)

			store, engine := testEngine(t, Options{})
			insertService(t, store, "svc", srv.URL, nil)

			state, err := engine.RefreshOne(context.Background(), "svc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)

			require.NotEmpty(t, methods)
			assert.Equal(t, http.MethodHead, methods[0])
			if tt.get == 0 {
				assert.Len(t, methods, 1, "no retry expected")
			} else {
				require.Len(t, methods, 2, "5xx HEAD must retry once as GET")
				assert.Equal(t, http.MethodGet, methods[1])
			}

			got, err := store.GetService(context.Background(), "svc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Health)
			assert.NotNil(t, got.LastCheckedAt)
		})
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close() // nothing listens here anymore

	store, engine := testEngine(t, Options{})
	insertService(t, store, "svc", target, nil)

	state, err := engine.RefreshOne(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, models.HealthUnhealthy, state)
}

func TestIsRedirectLoop(t *testing.T) {
	err := &url.Error{Op: "Head", URL: "http://x", Err: errors.New("stopped after 10 redirects")}
	assert.True(t, isRedirectLoop(err))
	assert.False(t, isRedirectLoop(errors.New("connection refused")))
	assert.False(t, isRedirectLoop(nil))
}

func TestCheckAllHonorsCacheInterval(t *testing.T) {
	var mu sync.Mutex
	probed := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		probed[r.URL.Path] = true
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store, engine := testEngine(t, Options{
		CyclePeriod:   60 * time.Second,
		CacheInterval: 55 * time.Second,
	})

	fresh := time.Now().Add(-10 * time.Second)
	stale := time.Now().Add(-56 * time.Second)
	insertService(t, store, "fresh", srv.URL+"/fresh", &fresh)
	insertService(t, store, "stale", srv.URL+"/stale", &stale)
	insertService(t, store, "never", srv.URL+"/never", nil)
	insertService(t, store, "widget", "", nil)

	engine.CheckAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, probed["/fresh"], "entry checked 10s ago must be skipped")
	assert.True(t, probed["/stale"], "entry checked 56s ago must be probed")
	assert.True(t, probed["/never"], "never-checked entry must be probed")
}

func TestCheckAllConcurrencyCeiling(t *testing.T) {
	const ceiling = 3

	var inflight, peak atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inflight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store, engine := testEngine(t, Options{Concurrency: ceiling})
	for i := 0; i < 20; i++ {
		insertService(t, store, string(rune('a'+i)), srv.URL, nil)
	}

	engine.CheckAll(context.Background())

	assert.LessOrEqual(t, peak.Load(), int64(ceiling), "probe burst exceeded ceiling")

	cycle, ok := engine.Latest()
	require.True(t, ok)
	assert.Len(t, cycle.Samples, 20)
}

func TestStartMonitoringIdempotent(t *testing.T) {
	_, engine := testEngine(t, Options{CyclePeriod: time.Hour})

	engine.StartMonitoring()
	engine.StartMonitoring() // no-op, must not stack a second loop
	assert.True(t, engine.Running())

	engine.StopMonitoring()
	assert.False(t, engine.Running())
	engine.StopMonitoring() // second stop is a no-op
}

func TestRefreshOneBypassesCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	store, engine := testEngine(t, Options{})
	justChecked := time.Now()
	insertService(t, store, "svc", srv.URL, &justChecked)

	state, err := engine.RefreshOne(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, models.HealthHealthy, state)
	assert.Equal(t, int64(1), hits.Load(), "cache interval does not apply to a forced refresh")
}

func TestOptionsDefaults(t *testing.T) {
	var o Options
	o.applyDefaults()
	assert.Equal(t, DefaultCyclePeriod, o.CyclePeriod)
	assert.Equal(t, DefaultCacheInterval, o.CacheInterval)
	assert.Equal(t, int64(DefaultConcurrency), o.Concurrency)
	assert.Less(t, o.CacheInterval, o.CyclePeriod)
}
