package dashboard

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Icon CDN roots. None of these are cached locally; the renderer fetches
// them directly.
const (
	simpleIconsCDN    = "https://cdn.jsdelivr.net/npm/simple-icons@latest/icons"
	mdiCDN            = "https://cdn.jsdelivr.net/npm/@mdi/svg@latest/svg"
	selfhostIconsCDN  = "https://cdn.jsdelivr.net/gh/selfhst/icons/png"
	dashboardIconsCDN = "https://cdn.jsdelivr.net/gh/walkxcode/dashboard-icons/png"
)

var (
	imageExtRe = regexp.MustCompile(`(?i)\.(png|svg|jpe?g|gif|webp)$`)
	hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// NormalizeIcon turns a dashboard icon reference into a directly fetchable
// URL. Emoji tokens pass through untouched for the renderer. An mdi color
// suffix is carried forward as a URL fragment, never dropped: the renderer
// applies it at paint time.
func NormalizeIcon(icon, baseURL string) string {
	icon = strings.TrimSpace(icon)
	if icon == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(icon, "http://"), strings.HasPrefix(icon, "https://"):
		return icon

	case strings.HasPrefix(icon, "/"):
		return resolveAgainstOrigin(icon, baseURL)

	case strings.HasPrefix(icon, "si-"):
		return simpleIconsCDN + "/" + slugify(strings.TrimPrefix(icon, "si-")) + ".svg"

	case strings.HasPrefix(icon, "mdi-"):
		name, color := splitColorSuffix(strings.TrimPrefix(icon, "mdi-"))
		u := mdiCDN + "/" + slugify(name) + ".svg"
		if color != "" {
			u += color
		}
		return u

	case strings.HasPrefix(icon, "sh-"):
		return selfhostIconsCDN + "/" + slugify(strings.TrimPrefix(icon, "sh-")) + ".png"

	case isEmojiToken(icon):
		return icon

	default:
		return dashboardIconsCDN + "/" + slugify(icon) + ".png"
	}
}

// slugify lowercases, hyphenates spaces and strips a trailing image
// extension, matching how the icon packs name their files.
func slugify(name string) string {
	name = imageExtRe.ReplaceAllString(name, "")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "-")
}

// splitColorSuffix separates an optional trailing "-#rrggbb" color token
// from an mdi icon name.
func splitColorSuffix(name string) (string, string) {
	idx := strings.LastIndex(name, "-#")
	if idx < 0 {
		return name, ""
	}
	color := name[idx+1:]
	if !hexColorRe.MatchString(color) {
		return name, ""
	}
	return name[:idx], color
}

func resolveAgainstOrigin(path, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return path
	}
	origin := url.URL{Scheme: base.Scheme, Host: base.Host}
	return origin.String() + path
}

// isEmojiToken reports whether the reference is an inline emoji rather
// than an icon-pack name.
func isEmojiToken(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return true
		}
	}
	return false
}
