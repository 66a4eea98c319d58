package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIcon(t *testing.T) {
	tests := []struct {
		name string
		icon string
		base string
		want string
	}{
		{
			name: "bare name resolves to dashboard-icons",
			icon: "sonarr",
			want: "https://cdn.jsdelivr.net/gh/walkxcode/dashboard-icons/png/sonarr.png",
		},
		{
			name: "simple icon prefix",
			icon: "si-github",
			want: "https://cdn.jsdelivr.net/npm/simple-icons@latest/icons/github.svg",
		},
		{
			name: "mdi icon keeps color suffix as fragment",
			icon: "mdi-home-#ff0000",
			want: "https://cdn.jsdelivr.net/npm/@mdi/svg@latest/svg/home.svg#ff0000",
		},
		{
			name: "mdi icon without color",
			icon: "mdi-account-multiple",
			want: "https://cdn.jsdelivr.net/npm/@mdi/svg@latest/svg/account-multiple.svg",
		},
		{
			name: "root-relative path resolves against base origin",
			icon: "/static/icon.png",
			base: "http://host:3000/some/page",
			want: "http://host:3000/static/icon.png",
		},
		{
			name: "absolute url unchanged",
			icon: "https://example.com/icon.svg",
			want: "https://example.com/icon.svg",
		},
		{
			name: "selfhosted set lowercases hyphenates and strips extension",
			icon: "sh-My App.png",
			want: "https://cdn.jsdelivr.net/gh/selfhst/icons/png/my-app.png",
		},
		{
			name: "bare name strips image extension",
			icon: "Sonarr.PNG",
			want: "https://cdn.jsdelivr.net/gh/walkxcode/dashboard-icons/png/sonarr.png",
		},
		{
			name: "emoji token passes through",
			icon: "🚀",
			want: "🚀",
		},
		{
			name: "empty stays empty",
			icon: "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIcon(tt.icon, tt.base))
		})
	}
}

func TestSplitColorSuffix(t *testing.T) {
	name, color := splitColorSuffix("home-#ff0000")
	assert.Equal(t, "home", name)
	assert.Equal(t, "#ff0000", color)

	// A trailing segment that is not a hex color stays part of the name.
	name, color = splitColorSuffix("account-multiple")
	assert.Equal(t, "account-multiple", name)
	assert.Equal(t, "", color)

	name, color = splitColorSuffix("home-#zzz")
	assert.Equal(t, "home-#zzz", name)
	assert.Equal(t, "", color)
}
