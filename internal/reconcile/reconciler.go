package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dashmirror/internal/catalog"
	"dashmirror/internal/models"
)

// Delta summarises what one reconciliation changed.
type Delta struct {
	ServicesCreated  int `json:"services_created"`
	ServicesUpdated  int `json:"services_updated"`
	ServicesDeleted  int `json:"services_deleted"`
	BookmarksCreated int `json:"bookmarks_created"`
	BookmarksUpdated int `json:"bookmarks_updated"`
	BookmarksDeleted int `json:"bookmarks_deleted"`
	CategoriesPruned int `json:"categories_pruned"`
}

// Empty reports whether the reconciliation changed nothing.
func (d Delta) Empty() bool {
	return d == Delta{}
}

// Reconciler diffs a freshly parsed catalog against the persisted one and
// applies the minimal changeset. Manual entries are invisible to it;
// entries with an origin key are owned by it.
type Reconciler struct {
	store *catalog.Store
}

// New builds a reconciler over the catalog store.
func New(store *catalog.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile applies parsed services and bookmarks for one connection.
// Deletion of a type only happens when that type's parsed list is
// non-empty, so a transient empty fetch can never wipe the catalog. The
// whole changeset, including the connection's sync stamp, commits as one
// transaction.
func (r *Reconciler) Reconcile(ctx context.Context, conn models.Connection, services []models.ParsedService, bookmarks []models.ParsedBookmark) (Delta, error) {
	var delta Delta

	batch := catalog.Batch{
		StampConnection: conn.ID,
		StampedAt:       time.Now().UTC(),
	}

	existingServices, err := r.store.ListSyncedServices(ctx, conn.ID)
	if err != nil {
		return delta, fmt.Errorf("reconcile: load services: %w", err)
	}
	r.reconcileServices(conn, services, existingServices, &batch, &delta)

	existingBookmarks, err := r.store.ListSyncedBookmarks(ctx, conn.ID)
	if err != nil {
		return delta, fmt.Errorf("reconcile: load bookmarks: %w", err)
	}
	r.reconcileBookmarks(conn, bookmarks, existingBookmarks, &batch, &delta)

	if err := r.pruneCategories(ctx, &batch, &delta); err != nil {
		return delta, err
	}

	if err := r.store.ApplyBatch(ctx, batch); err != nil {
		return delta, fmt.Errorf("reconcile: commit: %w", err)
	}
	return delta, nil
}

func (r *Reconciler) reconcileServices(conn models.Connection, parsed []models.ParsedService, existing []models.Service, batch *catalog.Batch, delta *Delta) {
	byKey := make(map[string]models.Service, len(existing))
	for _, svc := range existing {
		byKey[svc.OriginKey] = svc
	}

	seen := make(map[string]struct{}, len(parsed))
	for _, p := range parsed {
		seen[p.OriginKey] = struct{}{}

		current, ok := byKey[p.OriginKey]
		if !ok {
			batch.CreateServices = append(batch.CreateServices, models.Service{
				ID:           uuid.NewString(),
				ConnectionID: conn.ID,
				OriginKey:    p.OriginKey,
				Name:         p.Name,
				URL:          p.URL,
				Icon:         p.Icon,
				Description:  p.Description,
				Category:     p.Category,
				SortOrder:    p.SortOrder,
				Health:       models.HealthUnknown,
			})
			delta.ServicesCreated++
			continue
		}

		updated := current
		updated.Name = p.Name
		updated.URL = p.URL
		updated.Icon = p.Icon
		updated.Description = p.Description
		updated.Category = p.Category
		updated.SortOrder = p.SortOrder
		if updated != current {
			batch.UpdateServices = append(batch.UpdateServices, updated)
			delta.ServicesUpdated++
		}
	}

	// Deletion is conditional on a non-empty fetch for this type.
	if len(parsed) > 0 {
		for _, svc := range existing {
			if _, ok := seen[svc.OriginKey]; !ok {
				batch.DeleteServices = append(batch.DeleteServices, svc.ID)
				delta.ServicesDeleted++
			}
		}
	}
}

func (r *Reconciler) reconcileBookmarks(conn models.Connection, parsed []models.ParsedBookmark, existing []models.Bookmark, batch *catalog.Batch, delta *Delta) {
	byKey := make(map[string]models.Bookmark, len(existing))
	for _, b := range existing {
		byKey[b.OriginKey] = b
	}

	seen := make(map[string]struct{}, len(parsed))
	for _, p := range parsed {
		seen[p.OriginKey] = struct{}{}

		current, ok := byKey[p.OriginKey]
		if !ok {
			batch.CreateBookmarks = append(batch.CreateBookmarks, models.Bookmark{
				ID:           uuid.NewString(),
				ConnectionID: conn.ID,
				OriginKey:    p.OriginKey,
				Name:         p.Name,
				Href:         p.Href,
				Icon:         p.Icon,
				Abbr:         p.Abbr,
				Category:     p.Category,
				SortOrder:    p.SortOrder,
			})
			delta.BookmarksCreated++
			continue
		}

		updated := current
		updated.Name = p.Name
		updated.Href = p.Href
		updated.Icon = p.Icon
		updated.Abbr = p.Abbr
		updated.Category = p.Category
		updated.SortOrder = p.SortOrder
		if updated != current {
			batch.UpdateBookmarks = append(batch.UpdateBookmarks, updated)
			delta.BookmarksUpdated++
		}
	}

	if len(parsed) > 0 {
		for _, b := range existing {
			if _, ok := seen[b.OriginKey]; !ok {
				batch.DeleteBookmarks = append(batch.DeleteBookmarks, b.ID)
				delta.BookmarksDeleted++
			}
		}
	}
}

// pruneCategories marks icon preferences for deletion when no service or
// bookmark will reference their category once the batch commits.
func (r *Reconciler) pruneCategories(ctx context.Context, batch *catalog.Batch, delta *Delta) error {
	prefs, err := r.store.ListCategoryIcons(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load category icons: %w", err)
	}
	if len(prefs) == 0 {
		return nil
	}

	allServices, err := r.store.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load all services: %w", err)
	}
	allBookmarks, err := r.store.ListBookmarks(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load all bookmarks: %w", err)
	}

	deleted := make(map[string]struct{}, len(batch.DeleteServices)+len(batch.DeleteBookmarks))
	for _, id := range batch.DeleteServices {
		deleted[id] = struct{}{}
	}
	for _, id := range batch.DeleteBookmarks {
		deleted[id] = struct{}{}
	}
	updatedCategory := make(map[string]string, len(batch.UpdateServices)+len(batch.UpdateBookmarks))
	for _, svc := range batch.UpdateServices {
		updatedCategory[svc.ID] = svc.Category
	}
	for _, b := range batch.UpdateBookmarks {
		updatedCategory[b.ID] = b.Category
	}

	referenced := make(map[string]struct{})
	addRef := func(id, category string) {
		if _, gone := deleted[id]; gone {
			return
		}
		if c, ok := updatedCategory[id]; ok {
			category = c
		}
		category = strings.ToLower(strings.TrimSpace(category))
		if category != "" {
			referenced[category] = struct{}{}
		}
	}
	for _, svc := range allServices {
		addRef(svc.ID, svc.Category)
	}
	for _, b := range allBookmarks {
		addRef(b.ID, b.Category)
	}
	for _, svc := range batch.CreateServices {
		addRef(svc.ID, svc.Category)
	}
	for _, b := range batch.CreateBookmarks {
		addRef(b.ID, b.Category)
	}

	for _, pref := range prefs {
		if _, ok := referenced[pref.Category]; !ok {
			batch.DeleteCategories = append(batch.DeleteCategories, pref.Category)
			delta.CategoriesPruned++
		}
	}
	return nil
}
