package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dashmirror/internal/models"
)

// Batch is one reconciliation changeset. ApplyBatch commits the whole
// batch in a single transaction: partial application is never observable.
type Batch struct {
	CreateServices   []models.Service
	UpdateServices   []models.Service
	DeleteServices   []string
	CreateBookmarks  []models.Bookmark
	UpdateBookmarks  []models.Bookmark
	DeleteBookmarks  []string
	DeleteCategories []string

	// StampConnection records a successful sync time on the connection.
	StampConnection string
	StampedAt       time.Time
}

// Empty reports whether the batch would change nothing besides the stamp.
func (b Batch) Empty() bool {
	return len(b.CreateServices) == 0 && len(b.UpdateServices) == 0 &&
		len(b.DeleteServices) == 0 && len(b.CreateBookmarks) == 0 &&
		len(b.UpdateBookmarks) == 0 && len(b.DeleteBookmarks) == 0 &&
		len(b.DeleteCategories) == 0
}

// ApplyBatch commits a reconciliation changeset atomically.
func (s *Store) ApplyBatch(ctx context.Context, b Batch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, svc := range b.CreateServices {
			if err := insertService(ctx, tx, svc); err != nil {
				return err
			}
		}
		for _, svc := range b.UpdateServices {
			if err := updateService(ctx, tx, svc); err != nil {
				return err
			}
		}
		for _, id := range b.DeleteServices {
			if _, err := tx.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id); err != nil {
				return fmt.Errorf("catalog: batch delete service %q: %w", id, err)
			}
		}

		for _, bm := range b.CreateBookmarks {
			if err := insertBookmark(ctx, tx, bm); err != nil {
				return err
			}
		}
		for _, bm := range b.UpdateBookmarks {
			if err := updateBookmark(ctx, tx, bm); err != nil {
				return err
			}
		}
		for _, id := range b.DeleteBookmarks {
			if _, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id); err != nil {
				return fmt.Errorf("catalog: batch delete bookmark %q: %w", id, err)
			}
		}

		for _, category := range b.DeleteCategories {
			if err := deleteCategoryIcon(ctx, tx, category); err != nil {
				return err
			}
		}

		if b.StampConnection != "" {
			at := b.StampedAt
			if at.IsZero() {
				at = time.Now()
			}
			if _, err := tx.ExecContext(ctx, `
                UPDATE connections SET last_sync_at = ? WHERE id = ?
            `, formatTime(&at), b.StampConnection); err != nil {
				return fmt.Errorf("catalog: stamp connection %q: %w", b.StampConnection, err)
			}
		}
		return nil
	})
}
