package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dashmirror/internal/catalog"
	"dashmirror/internal/dashboard"
	"dashmirror/internal/events"
	"dashmirror/internal/health"
	"dashmirror/internal/models"
	"dashmirror/internal/reconcile"
	"dashmirror/internal/secrets"
	"dashmirror/internal/trust"
)

const minRefresh = 15 * time.Second

// Service keeps every sync-enabled dashboard connection reconciled on a
// fixed cadence, and exposes an on-demand sync path for the UI.
type Service struct {
	store      *catalog.Store
	client     *dashboard.Client
	reconciler *reconcile.Reconciler
	secrets    *secrets.Store
	registry   *trust.Registry
	bus        *events.Bus
	engine     *health.Engine
	refresh    time.Duration

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService wires the sync loop. engine may be nil when health probing
// after sync is not wanted.
func NewService(store *catalog.Store, client *dashboard.Client, reconciler *reconcile.Reconciler, secretStore *secrets.Store, registry *trust.Registry, bus *events.Bus, engine *health.Engine, refresh time.Duration) *Service {
	if refresh < minRefresh {
		refresh = minRefresh
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      store,
		client:     client,
		reconciler: reconciler,
		secrets:    secretStore,
		registry:   registry,
		bus:        bus,
		engine:     engine,
		refresh:    refresh,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the background sync loop. Calling it twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.doneCh = make(chan struct{})
	go s.run(s.doneCh)
}

// Stop terminates the background sync loop and waits for it to exit, so
// no sync pass is still writing when the caller tears the store down.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	doneCh := s.doneCh
	s.mu.Unlock()

	s.cancel()
	<-doneCh
}

func (s *Service) run(doneCh chan struct{}) {
	defer close(doneCh)

	s.syncAll()

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.syncAll()
		case <-s.ctx.Done():
			return
		}
	}
}

// syncAll runs one pass over every sync-enabled connection. A failing
// connection is logged and skipped; the loop never dies over one source.
func (s *Service) syncAll() {
	connections, err := s.store.ListConnections(s.ctx)
	if err != nil {
		log.Printf("sync: list connections: %v", err)
		return
	}

	for _, conn := range connections {
		if !conn.SyncEnabled {
			continue
		}
		if _, err := s.SyncConnection(s.ctx, conn); err != nil {
			log.Printf("sync: %s: %v", conn.Name, err)
		}
	}
}

// SyncNow fetches and reconciles a single connection on demand, then
// kicks a health cycle so new entries get a state promptly.
func (s *Service) SyncNow(ctx context.Context, connectionID string) (reconcile.Delta, error) {
	conn, err := s.store.GetConnection(ctx, connectionID)
	if err != nil {
		return reconcile.Delta{}, err
	}

	delta, err := s.SyncConnection(ctx, conn)
	if err != nil {
		return delta, err
	}
	if s.engine != nil {
		go s.engine.CheckAll(context.Background())
	}
	return delta, nil
}

// SyncConnection performs one fetch + reconcile pass for conn. Fetch
// failures surface as typed errors and leave the catalog untouched.
func (s *Service) SyncConnection(ctx context.Context, conn models.Connection) (reconcile.Delta, error) {
	if conn.TrustTLS {
		if host := trust.HostOf(conn.BaseURL); host != "" {
			s.registry.Trust(host)
		}
	}

	var creds *dashboard.Credentials
	if s.secrets != nil && conn.HasCredential {
		creds = s.secrets.Get(conn.ID)
	}

	services, bookmarks, err := s.client.FetchAll(ctx, conn, creds)
	if err != nil {
		return reconcile.Delta{}, fmt.Errorf("sync %s: %w", conn.Name, err)
	}

	delta, err := s.reconciler.Reconcile(ctx, conn, services, bookmarks)
	if err != nil {
		return delta, fmt.Errorf("sync %s: %w", conn.Name, err)
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.CatalogUpdated, ConnectionID: conn.ID})
		if delta.ServicesCreated > 0 || delta.ServicesUpdated > 0 || delta.BookmarksCreated > 0 || delta.BookmarksUpdated > 0 {
			s.bus.Publish(events.Event{Type: events.IconsReloaded, ConnectionID: conn.ID})
		}
	}
	return delta, nil
}

// ReloadIcons tells observers to drop any cached icon renderings.
func (s *Service) ReloadIcons() {
	if s.bus != nil {
		s.bus.Publish(events.Event{Type: events.IconsReloaded})
	}
}
