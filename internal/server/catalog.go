package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"dashmirror/internal/catalog"
	"dashmirror/internal/dashboard"
	"dashmirror/internal/events"
	"dashmirror/internal/models"
	"dashmirror/internal/trust"
)

// servicePayload carries the fields a user may set on a service. Identity
// and provenance fields are never taken from the request.
type servicePayload struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Category    string `json:"category"`
	SortOrder   int    `json:"sort_order"`
	TrustTLS    bool   `json:"trust_tls"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.ListServices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var payload servicePayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	svc := models.Service{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(payload.Name),
		URL:             payload.URL,
		Icon:            payload.Icon,
		Description:     payload.Description,
		Category:        payload.Category,
		SortOrder:       payload.SortOrder,
		IsManuallyAdded: true,
		TrustTLS:        payload.TrustTLS,
		Health:          models.HealthUnknown,
	}
	if svc.Category == "" {
		svc.Category = models.DefaultCategory
	}
	if err := s.store.InsertService(r.Context(), svc); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if svc.TrustTLS {
		if host := trust.HostOf(svc.URL); host != "" {
			s.registry.Trust(host)
		}
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated})
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var payload servicePayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	previousHost := trust.HostOf(existing.URL)

	if existing.IsManuallyAdded {
		if strings.TrimSpace(payload.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		existing.Name = strings.TrimSpace(payload.Name)
		existing.URL = payload.URL
		existing.Icon = payload.Icon
		existing.Description = payload.Description
		existing.SortOrder = payload.SortOrder
	}
	// Synced entries belong to the reconciler; only the TLS override and
	// the category grouping survive a sync, so only those are editable.
	existing.Category = payload.Category
	if existing.Category == "" {
		existing.Category = models.DefaultCategory
	}
	existing.TrustTLS = payload.TrustTLS

	if err := s.store.UpdateService(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing.TrustTLS {
		if host := trust.HostOf(existing.URL); host != "" {
			s.registry.Trust(host)
		}
	} else if previousHost != "" {
		s.registry.Untrust(previousHost)
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated})
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existing.IsManuallyAdded {
		writeError(w, http.StatusConflict, "synced services are removed by their source, not by hand")
		return
	}
	if err := s.store.DeleteService(r.Context(), existing.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckService(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.engine.RefreshOne(r.Context(), id)
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "service not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "health": state})
}

type bookmarkPayload struct {
	Name      string `json:"name"`
	Href      string `json:"href"`
	Icon      string `json:"icon"`
	Abbr      string `json:"abbr"`
	Category  string `json:"category"`
	SortOrder int    `json:"sort_order"`
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListBookmarks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bookmarks)
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var payload bookmarkPayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Name) == "" || strings.TrimSpace(payload.Href) == "" {
		writeError(w, http.StatusBadRequest, "name and href are required")
		return
	}
	mark := models.Bookmark{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(payload.Name),
		Href:            payload.Href,
		Icon:            payload.Icon,
		Abbr:            payload.Abbr,
		Category:        payload.Category,
		SortOrder:       payload.SortOrder,
		IsManuallyAdded: true,
	}
	if mark.Category == "" {
		mark.Category = models.DefaultCategory
	}
	if err := s.store.InsertBookmark(r.Context(), mark); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated})
	writeJSON(w, http.StatusCreated, mark)
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListBookmarks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id := r.PathValue("id")
	var existing *models.Bookmark
	for i := range bookmarks {
		if bookmarks[i].ID == id {
			existing = &bookmarks[i]
			break
		}
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "bookmark not found")
		return
	}
	var payload bookmarkPayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if existing.IsManuallyAdded {
		if strings.TrimSpace(payload.Name) == "" || strings.TrimSpace(payload.Href) == "" {
			writeError(w, http.StatusBadRequest, "name and href are required")
			return
		}
		existing.Name = strings.TrimSpace(payload.Name)
		existing.Href = payload.Href
		existing.Icon = payload.Icon
		existing.Abbr = payload.Abbr
		existing.SortOrder = payload.SortOrder
	}
	existing.Category = payload.Category
	if existing.Category == "" {
		existing.Category = models.DefaultCategory
	}
	if err := s.store.UpdateBookmark(r.Context(), *existing); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated})
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.store.ListBookmarks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	id := r.PathValue("id")
	for _, mark := range bookmarks {
		if mark.ID != id {
			continue
		}
		if !mark.IsManuallyAdded {
			writeError(w, http.StatusConflict, "synced bookmarks are removed by their source, not by hand")
			return
		}
		if err := s.store.DeleteBookmark(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.bus.Publish(events.Event{Type: events.CatalogUpdated})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "bookmark not found")
}

type connectionPayload struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	BaseURL         string `json:"base_url"`
	SyncEnabled     *bool  `json:"sync_enabled"`
	TrustTLS        bool   `json:"trust_tls"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ClearCredential bool   `json:"clear_credential"`
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := s.store.ListConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, connections)
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var payload connectionPayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.BaseURL) == "" {
		writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}
	conn := models.Connection{
		ID:          payload.ID,
		Name:        payload.Name,
		BaseURL:     strings.TrimSpace(payload.BaseURL),
		SyncEnabled: payload.SyncEnabled == nil || *payload.SyncEnabled,
		TrustTLS:    payload.TrustTLS,
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Name == "" {
		conn.Name = conn.ID
	}
	if payload.Username != "" {
		if err := s.secretStore.Save(conn.ID, dashboard.Credentials{
			Username: payload.Username,
			Password: payload.Password,
		}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		conn.HasCredential = true
	}
	if err := s.store.UpsertConnection(r.Context(), conn); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if conn.TrustTLS {
		if host := trust.HostOf(conn.BaseURL); host != "" {
			s.registry.Trust(host)
		}
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.store.GetConnection(r.Context(), r.PathValue("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var payload connectionPayload
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.BaseURL) == "" {
		writeError(w, http.StatusBadRequest, "base_url is required")
		return
	}
	previousHost := trust.HostOf(conn.BaseURL)

	conn.BaseURL = strings.TrimSpace(payload.BaseURL)
	if payload.Name != "" {
		conn.Name = payload.Name
	}
	if payload.SyncEnabled != nil {
		conn.SyncEnabled = *payload.SyncEnabled
	}
	conn.TrustTLS = payload.TrustTLS

	switch {
	case payload.ClearCredential:
		if err := s.secretStore.Delete(conn.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		conn.HasCredential = false
	case payload.Username != "":
		if err := s.secretStore.Save(conn.ID, dashboard.Credentials{
			Username: payload.Username,
			Password: payload.Password,
		}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		conn.HasCredential = true
	}

	if err := s.store.UpsertConnection(r.Context(), conn); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	host := trust.HostOf(conn.BaseURL)
	if conn.TrustTLS {
		if host != "" {
			s.registry.Trust(host)
		}
	} else if previousHost != "" {
		s.registry.Untrust(previousHost)
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.store.GetConnection(r.Context(), r.PathValue("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.DeleteConnection(r.Context(), conn.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.secretStore.Delete(conn.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if host := trust.HostOf(conn.BaseURL); host != "" {
		s.registry.Untrust(host)
	}
	s.bus.Publish(events.Event{Type: events.CatalogUpdated, ConnectionID: conn.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	icons, err := s.store.ListCategoryIcons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, icons)
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.PathValue("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	var payload struct {
		Icon    string `json:"icon"`
		Cleared bool   `json:"cleared"`
	}
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pref := models.CategoryIcon{Category: category, Icon: payload.Icon, Cleared: payload.Cleared}
	if err := s.store.SetCategoryIcon(r.Context(), pref); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.syncer.ReloadIcons()
	writeJSON(w, http.StatusOK, pref)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCategoryIcon(r.Context(), r.PathValue("category")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.syncer.ReloadIcons()
	w.WriteHeader(http.StatusNoContent)
}
