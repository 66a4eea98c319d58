package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dashmirror/internal/catalog"
	"dashmirror/internal/config"
	"dashmirror/internal/dashboard"
	"dashmirror/internal/events"
	"dashmirror/internal/health"
	"dashmirror/internal/models"
	"dashmirror/internal/reconcile"
	"dashmirror/internal/secrets"
	"dashmirror/internal/server"
	"dashmirror/internal/syncer"
	"dashmirror/internal/transport"
	"dashmirror/internal/trust"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to configuration file (YAML)")
		addr       = flag.String("addr", ":8080", "address for the web server")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0o700); err != nil {
		log.Fatalf("create data directory: %v", err)
	}
	store, err := catalog.Open(filepath.Join(cfg.DataDirectory, "catalog.db"))
	if err != nil {
		log.Fatalf("open catalog: %v", err)
	}
	defer store.Close()

	secretStore, err := secrets.NewStore(filepath.Join(cfg.DataDirectory, "secrets.json"))
	if err != nil {
		log.Fatalf("open secret store: %v", err)
	}

	ctx := context.Background()
	if err := seedConnections(ctx, cfg, store, secretStore); err != nil {
		log.Fatalf("seed connections: %v", err)
	}

	registry := trust.NewRegistry()
	if err := recoverTrust(ctx, store, registry); err != nil {
		log.Fatalf("recover trust registry: %v", err)
	}

	bus := events.NewBus()
	httpc := transport.New(registry.IsTrusted)
	client := dashboard.NewClient(httpc)
	reconciler := reconcile.New(store)

	engine := health.NewEngine(store, httpc, registry, bus, health.Options{
		CyclePeriod:   time.Duration(cfg.Health.CycleSeconds) * time.Second,
		CacheInterval: time.Duration(cfg.Health.CacheSeconds) * time.Second,
		Concurrency:   cfg.Health.Concurrency,
	})
	engine.StartMonitoring()
	defer engine.StopMonitoring()

	sync := syncer.NewService(store, client, reconciler, secretStore, registry, bus, engine,
		time.Duration(cfg.SyncIntervalSec)*time.Second)
	sync.Start()
	defer sync.Stop()

	srv := server.New(*addr, store, sync, engine, secretStore, registry, bus)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("dashmirror listening on %s (%d connection(s), cycle %ds)",
		*addr, len(cfg.Connections), cfg.Health.CycleSeconds)
	if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// seedConnections imports configured dashboard sources into the catalog.
// Credentials found in the config file are moved into the secret store so
// they never round-trip through the API.
func seedConnections(ctx context.Context, cfg config.Config, store *catalog.Store, secretStore *secrets.Store) error {
	for _, seed := range cfg.Connections {
		conn := models.Connection{
			ID:          seed.ID,
			Name:        seed.Name,
			BaseURL:     seed.BaseURL,
			SyncEnabled: seed.SyncEnabled == nil || *seed.SyncEnabled,
			TrustTLS:    seed.TrustTLS,
		}
		if existing, err := store.GetConnection(ctx, seed.ID); err == nil {
			conn.HasCredential = existing.HasCredential
			conn.LastSyncAt = existing.LastSyncAt
		} else if !catalog.IsNotFound(err) {
			return err
		}
		if seed.Username != "" {
			if err := secretStore.Save(conn.ID, dashboard.Credentials{
				Username: seed.Username,
				Password: seed.Password,
			}); err != nil {
				return err
			}
			conn.HasCredential = true
		}
		if err := store.UpsertConnection(ctx, conn); err != nil {
			return err
		}
	}
	return nil
}

// recoverTrust repopulates the in-memory trust registry from persisted
// connections and per-service overrides after a restart.
func recoverTrust(ctx context.Context, store *catalog.Store, registry *trust.Registry) error {
	connections, err := store.ListConnections(ctx)
	if err != nil {
		return err
	}
	services, err := store.ListServices(ctx)
	if err != nil {
		return err
	}
	registry.Recover(connections, services)
	return nil
}
