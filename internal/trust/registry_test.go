package trust

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"dashmirror/internal/models"
)

func TestRegistryCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Trust("NAS.Local")

	assert.True(t, r.IsTrusted("nas.local"))
	assert.True(t, r.IsTrusted("NAS.LOCAL"))
	assert.False(t, r.IsTrusted("other.local"))

	r.Untrust("nas.LOCAL")
	assert.False(t, r.IsTrusted("nas.local"))
}

func TestRegistryTrustManyAndClear(t *testing.T) {
	r := NewRegistry()
	r.TrustMany([]string{"a.local", "  B.local ", "", "c.local"})

	assert.True(t, r.IsTrusted("a.local"))
	assert.True(t, r.IsTrusted("b.local"))
	assert.True(t, r.IsTrusted("c.local"))
	assert.Len(t, r.Hosts(), 3)

	r.Clear()
	assert.Empty(t, r.Hosts())
	assert.False(t, r.IsTrusted("a.local"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		host := fmt.Sprintf("host-%d.local", i)
		go func() {
			defer wg.Done()
			r.Trust(host)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.IsTrusted(host)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, r.Hosts(), 16)
}

func TestRegistryRecover(t *testing.T) {
	connections := []models.Connection{
		{ID: "c1", BaseURL: "https://dash.local:3000", TrustTLS: true},
		{ID: "c2", BaseURL: "https://public.example.com", TrustTLS: false},
	}
	services := []models.Service{
		{ConnectionID: "c1", URL: "https://sonarr.local:8989"},
		{ConnectionID: "c2", URL: "https://strict.example.com"},
		{ConnectionID: "c2", URL: "https://override.local", TrustTLS: true},
		{ConnectionID: "c1", URL: ""}, // widget-only, no host
	}

	r := NewRegistry()
	r.Recover(connections, services)

	assert.True(t, r.IsTrusted("dash.local"))
	assert.True(t, r.IsTrusted("sonarr.local"))
	assert.True(t, r.IsTrusted("override.local"))
	assert.False(t, r.IsTrusted("public.example.com"))
	assert.False(t, r.IsTrusted("strict.example.com"))
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://NAS.Local:5001/path", "nas.local"},
		{"http://192.168.1.10:8080", "192.168.1.10"},
		{"not a url at %%", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HostOf(tt.raw), "HostOf(%q)", tt.raw)
	}
}
