package trust

import (
	"net/url"
	"strings"
	"sync"

	"dashmirror/internal/models"
)

// Registry tracks hostnames exempted from standard certificate validation.
// It is read on every TLS handshake by probe workers and mutated by the
// setup and sync flows, so all access goes through the mutex.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]struct{})}
}

// Trust marks a host as exempt from certificate validation.
func (r *Registry) Trust(host string) {
	host = normalize(host)
	if host == "" {
		return
	}
	r.mu.Lock()
	r.hosts[host] = struct{}{}
	r.mu.Unlock()
}

// Untrust removes a host from the registry.
func (r *Registry) Untrust(host string) {
	host = normalize(host)
	r.mu.Lock()
	delete(r.hosts, host)
	r.mu.Unlock()
}

// IsTrusted reports whether certificate validation is relaxed for host.
func (r *Registry) IsTrusted(host string) bool {
	host = normalize(host)
	r.mu.RLock()
	_, ok := r.hosts[host]
	r.mu.RUnlock()
	return ok
}

// TrustMany registers a batch of hosts in one lock acquisition.
func (r *Registry) TrustMany(hosts []string) {
	r.mu.Lock()
	for _, h := range hosts {
		h = normalize(h)
		if h == "" {
			continue
		}
		r.hosts[h] = struct{}{}
	}
	r.mu.Unlock()
}

// Clear removes every trusted host.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.hosts = make(map[string]struct{})
	r.mu.Unlock()
}

// Hosts returns a copy of the trusted host set.
func (r *Registry) Hosts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.hosts))
	for h := range r.hosts {
		out = append(out, h)
	}
	return out
}

// Recover repopulates the registry from persisted state: every trust-enabled
// connection's host, every service endpoint whose host matches a
// trust-enabled connection, and every service with its own TLS override.
// Invoked once at process start, not during steady-state operation.
func (r *Registry) Recover(connections []models.Connection, services []models.Service) {
	trustedConnections := make(map[string]bool, len(connections))
	var hosts []string

	for _, conn := range connections {
		trustedConnections[conn.ID] = conn.TrustTLS
		if conn.TrustTLS {
			if h := HostOf(conn.BaseURL); h != "" {
				hosts = append(hosts, h)
			}
		}
	}

	for _, svc := range services {
		if svc.URL == "" {
			continue
		}
		if svc.TrustTLS || trustedConnections[svc.ConnectionID] {
			if h := HostOf(svc.URL); h != "" {
				hosts = append(hosts, h)
			}
		}
	}

	r.TrustMany(hosts)
}

// HostOf extracts the lowercased hostname (without port) from a raw URL.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalize(u.Hostname())
}

func normalize(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
