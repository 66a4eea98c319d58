package dashboard

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dashmirror/internal/models"
)

const (
	groupHeaderSelector  = `h2, h3, [class*="group-name"], [class*="group-title"], [class*="groups-header"]`
	serviceUnitSelector  = `[class*="service"]`
	serviceTitleSelector = `[class*="service-title"], [class*="service-name"], h4`
	descriptionSelector  = `[class*="description"], p`
)

var backgroundImageRe = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

// extractDOM is the fallback scrape used when no JSON island yields
// records: group headers are located first and their sibling service units
// collected per group; when no headers exist at all, every service-classed
// element in the document is treated as ungrouped.
func extractDOM(doc *goquery.Document, baseURL string) []models.ParsedService {
	p := &domParser{baseURL: baseURL, seen: make(map[string]struct{})}

	headers := doc.Find(groupHeaderSelector)
	if headers.Length() == 0 {
		doc.Find(serviceUnitSelector).Each(func(_ int, unit *goquery.Selection) {
			p.visitUnit("", unit)
		})
		return p.services
	}

	headers.Each(func(_ int, header *goquery.Selection) {
		group := strings.TrimSpace(header.Text())
		scope := header.NextUntil(groupHeaderSelector)
		units := scope.Filter(serviceUnitSelector).AddSelection(scope.Find(serviceUnitSelector))
		units.Each(func(_ int, unit *goquery.Selection) {
			p.visitUnit(group, unit)
		})
	})
	return p.services
}

type domParser struct {
	baseURL  string
	services []models.ParsedService
	seen     map[string]struct{}
}

func (p *domParser) visitUnit(group string, unit *goquery.Selection) {
	name := strings.TrimSpace(unit.Find(serviceTitleSelector).First().Text())
	anchor := unit.Find("a[href]").First()
	if name == "" {
		name = strings.TrimSpace(anchor.Text())
	}
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	if name == "" || href == "" {
		return
	}

	key, _ := unit.Attr("id")
	if key == "" {
		key = name
	}
	if _, dup := p.seen[key]; dup {
		return
	}
	p.seen[key] = struct{}{}

	p.services = append(p.services, models.ParsedService{
		OriginKey:   key,
		Name:        name,
		URL:         href,
		Icon:        NormalizeIcon(p.unitIcon(unit), p.baseURL),
		Description: strings.TrimSpace(unit.Find(descriptionSelector).First().Text()),
		Category:    group,
		SortOrder:   len(p.services),
	})
}

func (p *domParser) unitIcon(unit *goquery.Selection) string {
	if src, ok := unit.Find("img[src]").First().Attr("src"); ok && src != "" {
		return src
	}
	icon := ""
	unit.Find(`[style*="background-image"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if m := backgroundImageRe.FindStringSubmatch(style); m != nil {
			icon = m[1]
			return false
		}
		return true
	})
	return icon
}
