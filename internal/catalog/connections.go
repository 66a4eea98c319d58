package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"dashmirror/internal/models"
)

const connectionColumns = `id, name, base_url, sync_enabled, trust_tls, has_credential, last_sync_at`

// ListConnections returns every configured dashboard connection.
func (s *Store) ListConnections(ctx context.Context) ([]models.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT `+connectionColumns+`
        FROM connections
        ORDER BY name
    `)
	if err != nil {
		return nil, fmt.Errorf("catalog: list connections: %w", err)
	}
	defer rows.Close()

	var connections []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan connection: %w", err)
		}
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate connections: %w", err)
	}
	return connections, nil
}

// GetConnection retrieves one connection by identifier.
func (s *Store) GetConnection(ctx context.Context, id string) (models.Connection, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+connectionColumns+`
        FROM connections
        WHERE id = ?
    `, id)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return models.Connection{}, NotFoundError{Entity: "connection", Key: id}
	}
	if err != nil {
		return models.Connection{}, fmt.Errorf("catalog: get connection %q: %w", id, err)
	}
	return conn, nil
}

// UpsertConnection inserts or updates a dashboard connection.
func (s *Store) UpsertConnection(ctx context.Context, conn models.Connection) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO connections (`+connectionColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                base_url = excluded.base_url,
                sync_enabled = excluded.sync_enabled,
                trust_tls = excluded.trust_tls,
                has_credential = excluded.has_credential,
                last_sync_at = excluded.last_sync_at
        `,
			conn.ID, conn.Name, conn.BaseURL, conn.SyncEnabled,
			conn.TrustTLS, conn.HasCredential, formatTime(conn.LastSyncAt),
		)
		if err != nil {
			return fmt.Errorf("catalog: upsert connection %q: %w", conn.ID, err)
		}
		return nil
	})
}

// DeleteConnection removes a connection together with every catalog entry
// it owns, in one transaction.
func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM services WHERE connection_id = ? AND is_manual = 0`,
			`DELETE FROM bookmarks WHERE connection_id = ? AND is_manual = 0`,
			`DELETE FROM connections WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("catalog: delete connection %q: %w", id, err)
			}
		}
		return nil
	})
}

func scanConnection(row rowScanner) (models.Connection, error) {
	var (
		conn    models.Connection
		syncRaw sql.NullString
	)
	err := row.Scan(
		&conn.ID, &conn.Name, &conn.BaseURL, &conn.SyncEnabled,
		&conn.TrustTLS, &conn.HasCredential, &syncRaw,
	)
	if err != nil {
		return models.Connection{}, err
	}
	conn.LastSyncAt = parseTime(syncRaw)
	return conn, nil
}
