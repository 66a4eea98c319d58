package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dashmirror/internal/models"
)

// ListCategoryIcons returns every category icon preference.
func (s *Store) ListCategoryIcons(ctx context.Context) ([]models.CategoryIcon, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT category, icon, cleared
        FROM category_icons
        ORDER BY category
    `)
	if err != nil {
		return nil, fmt.Errorf("catalog: list category icons: %w", err)
	}
	defer rows.Close()

	var prefs []models.CategoryIcon
	for rows.Next() {
		var (
			pref models.CategoryIcon
			icon sql.NullString
		)
		if err := rows.Scan(&pref.Category, &icon, &pref.Cleared); err != nil {
			return nil, fmt.Errorf("catalog: scan category icon: %w", err)
		}
		pref.Icon = icon.String
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate category icons: %w", err)
	}
	return prefs, nil
}

// SetCategoryIcon stores an icon choice (or explicit no-icon) for a
// category. Category names are keyed lowercased.
func (s *Store) SetCategoryIcon(ctx context.Context, pref models.CategoryIcon) error {
	pref.Category = strings.ToLower(strings.TrimSpace(pref.Category))
	if pref.Category == "" {
		return fmt.Errorf("catalog: set category icon: category required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO category_icons (category, icon, cleared)
            VALUES (?, ?, ?)
            ON CONFLICT(category) DO UPDATE SET
                icon = excluded.icon,
                cleared = excluded.cleared
        `, pref.Category, pref.Icon, pref.Cleared)
		if err != nil {
			return fmt.Errorf("catalog: set category icon %q: %w", pref.Category, err)
		}
		return nil
	})
}

// DeleteCategoryIcon removes one category icon preference.
func (s *Store) DeleteCategoryIcon(ctx context.Context, category string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteCategoryIcon(ctx, tx, category)
	})
}

func deleteCategoryIcon(ctx context.Context, tx *sql.Tx, category string) error {
	category = strings.ToLower(strings.TrimSpace(category))
	if _, err := tx.ExecContext(ctx, `DELETE FROM category_icons WHERE category = ?`, category); err != nil {
		return fmt.Errorf("catalog: delete category icon %q: %w", category, err)
	}
	return nil
}
