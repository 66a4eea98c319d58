package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashmirror/internal/catalog"
	"dashmirror/internal/models"
)

func timeNow(t *testing.T) time.Time {
	t.Helper()
	return time.Now().UTC().Truncate(time.Millisecond)
}

func testFixture(t *testing.T) (*catalog.Store, *Reconciler, models.Connection) {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conn := models.Connection{ID: "conn-1", Name: "Dash", BaseURL: "http://dash:3000", SyncEnabled: true}
	require.NoError(t, store.UpsertConnection(context.Background(), conn))

	return store, New(store), conn
}

func parsedFixture() ([]models.ParsedService, []models.ParsedBookmark) {
	services := []models.ParsedService{
		{OriginKey: "Sonarr", Name: "Sonarr", URL: "http://nas:8989", Category: "Media", SortOrder: 0},
		{OriginKey: "Radarr", Name: "Radarr", URL: "http://nas:7878", Category: "Media", SortOrder: 1},
	}
	bookmarks := []models.ParsedBookmark{
		{OriginKey: "Dev/GitHub", Name: "GitHub", Href: "https://github.com", Category: "Dev", SortOrder: 0},
	}
	return services, bookmarks
}

func TestReconcileCreatesEntries(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	delta, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)

	assert.Equal(t, 2, delta.ServicesCreated)
	assert.Equal(t, 1, delta.BookmarksCreated)
	assert.Equal(t, 0, delta.ServicesDeleted)

	stored, err := store.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEmpty(t, stored[0].ID)
	assert.Equal(t, models.HealthUnknown, stored[0].Health)
	assert.False(t, stored[0].IsManuallyAdded)

	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastSyncAt, "successful reconciliation stamps the connection")
}

func TestReconcileIdempotent(t *testing.T) {
	_, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)

	delta, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)
	assert.True(t, delta.Empty(), "second run with unchanged input must produce zero mutations, got %+v", delta)
}

func TestReconcilePreservesIdentityAcrossSyncs(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)
	first, err := store.ListServices(ctx)
	require.NoError(t, err)

	// Same payload again: identities survive, nothing is recreated.
	_, err = r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)
	second, err := store.ListServices(ctx)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].OriginKey, second[i].OriginKey)
	}
}

func TestReconcileUpdatesMutableFieldsOnly(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, _ := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, nil)
	require.NoError(t, err)

	// Mark Sonarr healthy as the health engine would.
	stored, err := store.ListServices(ctx)
	require.NoError(t, err)
	var sonarrID string
	for _, svc := range stored {
		if svc.OriginKey == "Sonarr" {
			sonarrID = svc.ID
		}
	}
	require.NotEmpty(t, sonarrID)
	require.NoError(t, store.ApplyHealth(ctx, []catalog.HealthUpdate{
		{ServiceID: sonarrID, State: models.HealthHealthy, CheckedAt: timeNow(t)},
	}))

	services[0].Name = "Sonarr v4"
	services[0].URL = "http://nas:8990"
	delta, err := r.Reconcile(ctx, conn, services, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.ServicesUpdated)

	got, err := store.GetService(ctx, sonarrID)
	require.NoError(t, err)
	assert.Equal(t, "Sonarr v4", got.Name)
	assert.Equal(t, "http://nas:8990", got.URL)
	assert.Equal(t, models.HealthHealthy, got.Health, "sync never touches health state")
	assert.NotNil(t, got.LastCheckedAt)
}

func TestReconcileDeletesVanishedEntries(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)

	delta, err := r.Reconcile(ctx, conn, services[:1], bookmarks)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.ServicesDeleted)

	stored, err := store.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Sonarr", stored[0].OriginKey)
}

func TestReconcileEmptyFetchDeletesNothing(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)

	// A transient empty response for one type must not wipe that type.
	delta, err := r.Reconcile(ctx, conn, nil, bookmarks)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.ServicesDeleted)

	delta, err = r.Reconcile(ctx, conn, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.ServicesDeleted)
	assert.Equal(t, 0, delta.BookmarksDeleted)

	stored, err := store.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	marks, err := store.ListBookmarks(ctx)
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func TestReconcileManualEntriesInvisible(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	manual := models.Service{
		ID:              "manual-1",
		ConnectionID:    conn.ID,
		Name:            "Router Admin",
		URL:             "http://192.168.1.1",
		Category:        "Infra",
		IsManuallyAdded: true,
		Health:          models.HealthUnknown,
	}
	require.NoError(t, store.InsertService(ctx, manual))

	services, bookmarks := parsedFixture()
	for i := 0; i < 3; i++ {
		_, err := r.Reconcile(ctx, conn, services, bookmarks)
		require.NoError(t, err)
	}
	// A shrinking fetch deletes synced entries but never the manual one.
	_, err := r.Reconcile(ctx, conn, services[:1], bookmarks)
	require.NoError(t, err)

	got, err := store.GetService(ctx, "manual-1")
	require.NoError(t, err)
	assert.Equal(t, manual, got)
}

func TestReconcilePrunesOrphanedCategoryIcons(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	services, bookmarks := parsedFixture()
	_, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)

	require.NoError(t, store.SetCategoryIcon(ctx, models.CategoryIcon{Category: "media", Icon: "mdi-movie"}))
	require.NoError(t, store.SetCategoryIcon(ctx, models.CategoryIcon{Category: "ghost", Icon: "mdi-ghost"}))

	delta, err := r.Reconcile(ctx, conn, services, bookmarks)
	require.NoError(t, err)
	assert.Equal(t, 1, delta.CategoriesPruned)

	prefs, err := store.ListCategoryIcons(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, "media", prefs[0].Category)
}

func TestReconcileScopedToConnection(t *testing.T) {
	store, r, conn := testFixture(t)
	ctx := context.Background()

	other := models.Connection{ID: "conn-2", Name: "Other", BaseURL: "http://other:3000"}
	require.NoError(t, store.UpsertConnection(ctx, other))
	_, err := r.Reconcile(ctx, other, []models.ParsedService{
		{OriginKey: "Grafana", Name: "Grafana", URL: "http://other:3001"},
	}, nil)
	require.NoError(t, err)

	services, _ := parsedFixture()
	_, err = r.Reconcile(ctx, conn, services, nil)
	require.NoError(t, err)

	// Syncing conn-1 with a payload missing Grafana must not delete it:
	// it belongs to conn-2.
	stored, err := store.ListServices(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}
