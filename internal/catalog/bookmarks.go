package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"dashmirror/internal/models"
)

const bookmarkColumns = `id, connection_id, origin_key, name, href, icon, abbr,
    category, sort_order, is_manual`

// ListBookmarks returns every bookmark in catalog order.
func (s *Store) ListBookmarks(ctx context.Context) ([]models.Bookmark, error) {
	return s.queryBookmarks(ctx, `
        SELECT `+bookmarkColumns+`
        FROM bookmarks
        ORDER BY sort_order, name
    `)
}

// ListSyncedBookmarks returns the non-manual bookmarks for one connection.
func (s *Store) ListSyncedBookmarks(ctx context.Context, connectionID string) ([]models.Bookmark, error) {
	return s.queryBookmarks(ctx, `
        SELECT `+bookmarkColumns+`
        FROM bookmarks
        WHERE is_manual = 0 AND connection_id = ?
        ORDER BY sort_order, name
    `, connectionID)
}

// InsertBookmark adds a single manual bookmark.
func (s *Store) InsertBookmark(ctx context.Context, b models.Bookmark) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertBookmark(ctx, tx, b)
	})
}

// UpdateBookmark rewrites a single bookmark record.
func (s *Store) UpdateBookmark(ctx context.Context, b models.Bookmark) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateBookmark(ctx, tx, b)
	})
}

// DeleteBookmark removes a single bookmark record.
func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("catalog: delete bookmark %q: %w", id, err)
		}
		return nil
	})
}

func (s *Store) queryBookmarks(ctx context.Context, query string, args ...any) ([]models.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list bookmarks: %w", err)
	}
	defer rows.Close()

	var bookmarks []models.Bookmark
	for rows.Next() {
		var (
			b         models.Bookmark
			connID    sql.NullString
			originKey sql.NullString
			icon      sql.NullString
			abbr      sql.NullString
			category  sql.NullString
		)
		if err := rows.Scan(
			&b.ID, &connID, &originKey, &b.Name, &b.Href, &icon, &abbr,
			&category, &b.SortOrder, &b.IsManuallyAdded,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan bookmark: %w", err)
		}
		b.ConnectionID = connID.String
		b.OriginKey = originKey.String
		b.Icon = icon.String
		b.Abbr = abbr.String
		b.Category = category.String
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate bookmarks: %w", err)
	}
	return bookmarks, nil
}

func insertBookmark(ctx context.Context, tx *sql.Tx, b models.Bookmark) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO bookmarks (`+bookmarkColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		b.ID, b.ConnectionID, b.OriginKey, b.Name, b.Href, b.Icon, b.Abbr,
		b.Category, b.SortOrder, b.IsManuallyAdded,
	)
	if err != nil {
		return fmt.Errorf("catalog: insert bookmark %q: %w", b.Name, err)
	}
	return nil
}

func updateBookmark(ctx context.Context, tx *sql.Tx, b models.Bookmark) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE bookmarks SET
            name = ?, href = ?, icon = ?, abbr = ?, category = ?, sort_order = ?
        WHERE id = ?
    `,
		b.Name, b.Href, b.Icon, b.Abbr, b.Category, b.SortOrder, b.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: update bookmark %q: %w", b.ID, err)
	}
	return nil
}
