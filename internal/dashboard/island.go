package dashboard

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"dashmirror/internal/models"
)

// extractStructured pulls service and bookmark groups out of the JSON data
// islands the dashboard framework embeds in script tags. The payload shape
// drifts between dashboard versions, so instead of a fixed path the whole
// document is walked for group objects carrying a name plus a services or
// bookmarks array. If this yields anything at all it is authoritative and
// the DOM fallback is skipped.
func extractStructured(doc *goquery.Document, baseURL string) ([]models.ParsedService, []models.ParsedBookmark) {
	w := &islandWalker{
		baseURL:      baseURL,
		seenServices: make(map[string]struct{}),
		seenmarks:    make(map[string]struct{}),
	}

	doc.Find(`script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" || !gjson.Valid(raw) {
			return
		}
		w.walk(gjson.Parse(raw))
	})

	return w.services, w.bookmarks
}

type islandWalker struct {
	baseURL      string
	services     []models.ParsedService
	bookmarks    []models.ParsedBookmark
	seenServices map[string]struct{}
	seenmarks    map[string]struct{}
}

func (w *islandWalker) walk(v gjson.Result) {
	if v.IsArray() {
		v.ForEach(func(_, item gjson.Result) bool {
			if !w.visitGroup(item) {
				w.walk(item)
			}
			return true
		})
		return
	}
	if v.IsObject() {
		v.ForEach(func(_, val gjson.Result) bool {
			w.walk(val)
			return true
		})
	}
}

// visitGroup consumes an object shaped like a service or bookmark group.
// Returns false when the object is neither, so the walk descends into it.
func (w *islandWalker) visitGroup(item gjson.Result) bool {
	if !item.IsObject() {
		return false
	}
	name := item.Get("name")
	if name.Type != gjson.String || name.String() == "" {
		return false
	}

	handled := false
	if services := item.Get("services"); services.IsArray() {
		w.serviceGroup(name.String(), services)
		handled = true
	}
	if bookmarks := item.Get("bookmarks"); bookmarks.IsArray() {
		w.bookmarkGroup(name.String(), bookmarks)
		handled = true
	}
	return handled
}

func (w *islandWalker) serviceGroup(group string, entries gjson.Result) {
	entries.ForEach(func(_, entry gjson.Result) bool {
		name := strings.TrimSpace(entry.Get("name").String())
		href := strings.TrimSpace(entry.Get("href").String())
		if name == "" || href == "" {
			// No href means a widget-only entry: nothing to open.
			return true
		}
		key := name
		if _, dup := w.seenServices[key]; dup {
			return true
		}
		w.seenServices[key] = struct{}{}

		w.services = append(w.services, models.ParsedService{
			OriginKey:   key,
			Name:        name,
			URL:         href,
			Icon:        NormalizeIcon(entry.Get("icon").String(), w.baseURL),
			Description: strings.TrimSpace(entry.Get("description").String()),
			Category:    group,
			SortOrder:   len(w.services),
		})
		return true
	})
}

func (w *islandWalker) bookmarkGroup(group string, entries gjson.Result) {
	entries.ForEach(func(_, entry gjson.Result) bool {
		name := strings.TrimSpace(entry.Get("name").String())
		href := strings.TrimSpace(entry.Get("href").String())
		if name == "" || href == "" {
			return true
		}
		key := group + "/" + name
		if _, dup := w.seenmarks[key]; dup {
			return true
		}
		w.seenmarks[key] = struct{}{}

		w.bookmarks = append(w.bookmarks, models.ParsedBookmark{
			OriginKey: key,
			Name:      name,
			Href:      href,
			Icon:      NormalizeIcon(entry.Get("icon").String(), w.baseURL),
			Abbr:      strings.TrimSpace(entry.Get("abbr").String()),
			Category:  group,
			SortOrder: len(w.bookmarks),
		})
		return true
	})
}
