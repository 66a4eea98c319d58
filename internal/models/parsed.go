package models

// ParsedService is one service record extracted from a remote dashboard
// page, before reconciliation against the local catalog.
type ParsedService struct {
	OriginKey   string `json:"origin_key"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	SortOrder   int    `json:"sort_order"`
}

// ParsedBookmark is one bookmark record extracted from a remote dashboard.
type ParsedBookmark struct {
	OriginKey string `json:"origin_key"`
	Name      string `json:"name"`
	Href      string `json:"href"`
	Icon      string `json:"icon,omitempty"`
	Abbr      string `json:"abbr,omitempty"`
	Category  string `json:"category,omitempty"`
	SortOrder int    `json:"sort_order"`
}
