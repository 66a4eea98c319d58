package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashmirror/internal/catalog"
	"dashmirror/internal/dashboard"
	"dashmirror/internal/events"
	"dashmirror/internal/health"
	"dashmirror/internal/models"
	"dashmirror/internal/reconcile"
	"dashmirror/internal/secrets"
	"dashmirror/internal/syncer"
	"dashmirror/internal/transport"
	"dashmirror/internal/trust"
)

type testEnv struct {
	api      *httptest.Server
	store    *catalog.Store
	registry *trust.Registry
	secrets  *secrets.Store
	bus      *events.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	secretStore, err := secrets.NewStore(filepath.Join(dir, "secrets.json"))
	require.NoError(t, err)

	registry := trust.NewRegistry()
	bus := events.NewBus()
	httpc := transport.New(registry.IsTrusted)
	client := dashboard.NewClient(httpc)
	reconciler := reconcile.New(store)
	engine := health.NewEngine(store, httpc, registry, bus, health.Options{})
	sync := syncer.NewService(store, client, reconciler, secretStore, registry, bus, engine, time.Minute)

	srv := New(":0", store, sync, engine, secretStore, registry, bus)
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &testEnv{api: api, store: store, registry: registry, secrets: secretStore, bus: bus}
}

func (env *testEnv) do(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, env.api.URL+path, &body)
	require.NoError(t, err)
	resp, err := env.api.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestManualServiceLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/services", map[string]any{
		"name": "Gitea",
		"url":  "http://git.lan:3000",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[models.Service](t, resp)
	assert.True(t, created.IsManuallyAdded)
	assert.Empty(t, created.OriginKey)
	assert.Equal(t, models.DefaultCategory, created.Category)
	assert.Equal(t, models.HealthUnknown, created.Health)

	resp = env.do(t, http.MethodPut, "/api/services/"+created.ID, map[string]any{
		"name":     "Gitea (home)",
		"url":      "http://git.lan:3000",
		"category": "Dev",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[models.Service](t, resp)
	assert.Equal(t, "Gitea (home)", updated.Name)
	assert.Equal(t, "Dev", updated.Category)

	resp = env.do(t, http.MethodDelete, "/api/services/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/services", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]models.Service](t, resp))
}

func TestSyncedServiceRejectsManualOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.UpsertConnection(ctx, models.Connection{
		ID: "dash", Name: "dash", BaseURL: "http://dash.lan", SyncEnabled: true,
	}))
	require.NoError(t, env.store.InsertService(ctx, models.Service{
		ID:           "svc-1",
		ConnectionID: "dash",
		OriginKey:    "Jellyfin",
		Name:         "Jellyfin",
		URL:          "https://media.lan",
		Category:     "Media",
		Health:       models.HealthUnknown,
	}))

	resp := env.do(t, http.MethodDelete, "/api/services/svc-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPut, "/api/services/svc-1", map[string]any{
		"name":      "Renamed",
		"url":       "http://elsewhere",
		"category":  "Video",
		"trust_tls": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[models.Service](t, resp)
	assert.Equal(t, "Jellyfin", updated.Name, "reconciler-owned field must not change")
	assert.Equal(t, "https://media.lan", updated.URL)
	assert.Equal(t, "Video", updated.Category)
	assert.True(t, updated.TrustTLS)
	assert.True(t, env.registry.IsTrusted("media.lan"), "TLS override registers the host")

	resp = env.do(t, http.MethodPut, "/api/services/svc-1", map[string]any{
		"category":  "Video",
		"trust_tls": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated = decodeBody[models.Service](t, resp)
	assert.False(t, updated.TrustTLS)
	assert.False(t, env.registry.IsTrusted("media.lan"), "clearing the override untrusts the host")
}

func TestConnectionCreateStoresCredential(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/connections", map[string]any{
		"id":        "home",
		"base_url":  "https://dash.lan:8443",
		"trust_tls": true,
		"username":  "admin",
		"password":  "hunter2",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conn := decodeBody[models.Connection](t, resp)
	assert.True(t, conn.HasCredential)

	creds := env.secrets.Get("home")
	require.NotNil(t, creds)
	assert.Equal(t, "admin", creds.Username)
	assert.True(t, env.registry.IsTrusted("dash.lan"))

	resp = env.do(t, http.MethodPut, "/api/connections/home", map[string]any{
		"base_url":         "https://dash.lan:8443",
		"clear_credential": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conn = decodeBody[models.Connection](t, resp)
	assert.False(t, conn.HasCredential)
	assert.Nil(t, env.secrets.Get("home"))
	assert.False(t, env.registry.IsTrusted("dash.lan"), "dropping trust_tls untrusts the host")
}

func TestConnectionCreateRequiresBaseURL(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/connections", map[string]any{"name": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestTrustEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/trust", map[string]any{"host": "NAS.local"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/trust", nil)
	listing := decodeBody[map[string][]string](t, resp)
	assert.Equal(t, []string{"nas.local"}, listing["hosts"])

	resp = env.do(t, http.MethodDelete, "/api/trust/nas.local", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	assert.False(t, env.registry.IsTrusted("nas.local"))
}

func TestHealthLatestEmpty(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	assert.Nil(t, body["started_at"])
}

func TestSyncUnknownConnection(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/connections/ghost/sync", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestEventsWebsocketPushesSnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snapshot map[string]any
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot["type"])

	env.bus.Publish(events.Event{Type: events.CatalogUpdated, ConnectionID: "home"})

	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.CatalogUpdated, ev.Type)
	assert.Equal(t, "home", ev.ConnectionID)
}
