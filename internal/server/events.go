package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"dashmirror/internal/models"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingInterval = 30 * time.Second
)

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// catalogSnapshot is the first frame pushed to a fresh subscriber so the
// UI can render without a separate REST round-trip.
type catalogSnapshot struct {
	Type        string              `json:"type"`
	GeneratedAt time.Time           `json:"generated_at"`
	Services    []models.Service    `json:"services"`
	Bookmarks   []models.Bookmark   `json:"bookmarks"`
	Connections []models.Connection `json:"connections"`
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveEventsConnection(r, conn)
}

func (s *Server) serveEventsConnection(r *http.Request, conn *websocket.Conn) {
	defer conn.Close()

	if err := s.writeSnapshot(r, conn); err != nil {
		return
	}

	sub, cancel := s.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) writeSnapshot(r *http.Request, conn *websocket.Conn) error {
	ctx := r.Context()
	services, err := s.store.ListServices(ctx)
	if err != nil {
		return err
	}
	bookmarks, err := s.store.ListBookmarks(ctx)
	if err != nil {
		return err
	}
	connections, err := s.store.ListConnections(ctx)
	if err != nil {
		return err
	}
	snapshot := catalogSnapshot{
		Type:        "snapshot",
		GeneratedAt: time.Now().UTC(),
		Services:    services,
		Bookmarks:   bookmarks,
		Connections: connections,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
	return conn.WriteJSON(snapshot)
}
