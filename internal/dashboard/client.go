package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"dashmirror/internal/models"
	"dashmirror/internal/transport"
)

// maxBodyBytes caps how much of a dashboard page is read. Dashboard pages
// are small; anything past this is not the page we are looking for.
const maxBodyBytes = 8 << 20

// Credentials carry an optional basic-auth pair for a connection.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client fetches a remote dashboard page and extracts its service and
// bookmark catalog.
type Client struct {
	httpc *transport.Client
}

// NewClient builds a config client over the shared transport.
func NewClient(tc *transport.Client) *Client {
	return &Client{httpc: tc}
}

// FetchAll retrieves the dashboard page for conn and returns its parsed
// services and bookmarks. Structured extraction from the embedded JSON
// islands is attempted first and is authoritative when it yields anything;
// the DOM scrape runs only when it does not.
func (c *Client) FetchAll(ctx context.Context, conn models.Connection, creds *Credentials) ([]models.ParsedService, []models.ParsedBookmark, error) {
	base := strings.TrimSpace(conn.BaseURL)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil, &FetchError{Kind: FetchInvalidURL, URL: base, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchInvalidURL, URL: base, Err: err}
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Cache-Control", "no-cache")
	if creds != nil && creds.Username != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.httpc.Fetch.Do(req)
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchNetwork, URL: base, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, &FetchError{Kind: FetchAuth, URL: base, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, nil, &FetchError{Kind: FetchInvalidResponse, URL: base, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchNetwork, URL: base, Err: err}
	}
	if !utf8.Valid(body) {
		return nil, nil, &FetchError{Kind: FetchDecode, URL: base, Err: fmt.Errorf("response is not valid text")}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &FetchError{Kind: FetchDecode, URL: base, Err: err}
	}

	services, bookmarks := extractStructured(doc, base)
	if len(services) > 0 || len(bookmarks) > 0 {
		return services, bookmarks, nil
	}

	return extractDOM(doc, base), nil, nil
}
