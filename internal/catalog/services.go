package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dashmirror/internal/models"
)

const serviceColumns = `id, connection_id, origin_key, name, url, icon, description,
    category, sort_order, is_manual, trust_tls, health, last_checked_at`

// ListServices returns every service in catalog order.
func (s *Store) ListServices(ctx context.Context) ([]models.Service, error) {
	return s.queryServices(ctx, `
        SELECT `+serviceColumns+`
        FROM services
        ORDER BY sort_order, name
    `)
}

// ListSyncedServices returns the non-manual services for one connection;
// these are the only entries visible to the reconciler.
func (s *Store) ListSyncedServices(ctx context.Context, connectionID string) ([]models.Service, error) {
	return s.queryServices(ctx, `
        SELECT `+serviceColumns+`
        FROM services
        WHERE is_manual = 0 AND connection_id = ?
        ORDER BY sort_order, name
    `, connectionID)
}

// GetService retrieves one service by identifier.
func (s *Store) GetService(ctx context.Context, id string) (models.Service, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT `+serviceColumns+`
        FROM services
        WHERE id = ?
    `, id)

	svc, err := scanService(row)
	if err == sql.ErrNoRows {
		return models.Service{}, NotFoundError{Entity: "service", Key: id}
	}
	if err != nil {
		return models.Service{}, fmt.Errorf("catalog: get service %q: %w", id, err)
	}
	return svc, nil
}

// InsertService adds a single service outside of a reconciliation batch,
// for manual user additions.
func (s *Store) InsertService(ctx context.Context, svc models.Service) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertService(ctx, tx, svc)
	})
}

// UpdateService rewrites a single service record.
func (s *Store) UpdateService(ctx context.Context, svc models.Service) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return updateService(ctx, tx, svc)
	})
}

// DeleteService removes a single service record.
func (s *Store) DeleteService(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("catalog: delete service %q: %w", id, err)
		}
		return nil
	})
}

// HealthUpdate is one probed result to commit back to the catalog.
type HealthUpdate struct {
	ServiceID string
	State     models.HealthState
	CheckedAt time.Time
}

// ApplyHealth writes a cycle's probe results in one transaction, touching
// only the health state and checked-at columns. Entries outside the batch
// are left as they are.
func (s *Store) ApplyHealth(ctx context.Context, updates []HealthUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			checked := u.CheckedAt
			if _, err := tx.ExecContext(ctx, `
                UPDATE services SET health = ?, last_checked_at = ?
                WHERE id = ?
            `, string(u.State), formatTime(&checked), u.ServiceID); err != nil {
				return fmt.Errorf("catalog: apply health for %q: %w", u.ServiceID, err)
			}
		}
		return nil
	})
}

func (s *Store) queryServices(ctx context.Context, query string, args ...any) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate services: %w", err)
	}
	return services, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (models.Service, error) {
	var (
		svc        models.Service
		connID     sql.NullString
		originKey  sql.NullString
		url        sql.NullString
		icon       sql.NullString
		descr      sql.NullString
		category   sql.NullString
		health     string
		checkedRaw sql.NullString
	)
	err := row.Scan(
		&svc.ID, &connID, &originKey, &svc.Name, &url, &icon, &descr,
		&category, &svc.SortOrder, &svc.IsManuallyAdded, &svc.TrustTLS,
		&health, &checkedRaw,
	)
	if err != nil {
		return models.Service{}, err
	}
	svc.ConnectionID = connID.String
	svc.OriginKey = originKey.String
	svc.URL = url.String
	svc.Icon = icon.String
	svc.Description = descr.String
	svc.Category = category.String
	svc.Health = models.HealthState(health)
	svc.LastCheckedAt = parseTime(checkedRaw)
	return svc, nil
}

func insertService(ctx context.Context, tx *sql.Tx, svc models.Service) error {
	if svc.Health == "" {
		svc.Health = models.HealthUnknown
	}
	_, err := tx.ExecContext(ctx, `
        INSERT INTO services (`+serviceColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `,
		svc.ID, svc.ConnectionID, svc.OriginKey, svc.Name, svc.URL,
		svc.Icon, svc.Description, svc.Category, svc.SortOrder,
		svc.IsManuallyAdded, svc.TrustTLS, string(svc.Health),
		formatTime(svc.LastCheckedAt),
	)
	if err != nil {
		return fmt.Errorf("catalog: insert service %q: %w", svc.Name, err)
	}
	return nil
}

// updateService rewrites the mutable fields but never health state or
// identity, which belong to the health engine and creation respectively.
func updateService(ctx context.Context, tx *sql.Tx, svc models.Service) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE services SET
            name = ?, url = ?, icon = ?, description = ?, category = ?,
            sort_order = ?, trust_tls = ?
        WHERE id = ?
    `,
		svc.Name, svc.URL, svc.Icon, svc.Description, svc.Category,
		svc.SortOrder, svc.TrustTLS, svc.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: update service %q: %w", svc.ID, err)
	}
	return nil
}
