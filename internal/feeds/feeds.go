// Package feeds provides RSS/Atom feed fetching and parsing, producing the
// candidate items the pipeline starts from.
package feeds

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"skim/internal/core"
	"skim/internal/logger"
)

// RSS represents an RSS feed structure
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Atom represents an Atom feed structure
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// Channel represents an RSS channel
type Channel struct {
	Title string    `xml:"title"`
	Items []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item
type RSSItem struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Enclosure   Enclosure `xml:"enclosure"`
}

// Enclosure represents an RSS enclosure (used for item images)
type Enclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// AtomLink represents an Atom link element
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry represents an Atom entry
type AtomEntry struct {
	Title   string     `xml:"title"`
	Link    []AtomLink `xml:"link"`
	Summary string     `xml:"summary"`
	Content string     `xml:"content"`
}

// Manager fetches and parses feeds over HTTP.
type Manager struct {
	client    *http.Client
	userAgent string
}

// NewManager creates a feed manager with the given fetch timeout.
func NewManager(timeout time.Duration, userAgent string) *Manager {
	return &Manager{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// FetchAll fetches every configured feed URL and returns the discovered
// items with dense ids assigned in discovery order. A feed that fails to
// fetch or parse is logged and skipped; the remaining feeds still
// contribute.
func (m *Manager) FetchAll(feedURLs []string) []core.Item {
	var items []core.Item
	nextID := 0

	for _, feedURL := range feedURLs {
		entries, err := m.Fetch(feedURL)
		if err != nil {
			logger.Error("Failed to fetch feed", err, "url", feedURL)
			continue
		}
		for _, entry := range entries {
			entry.ID = nextID
			entry.Fingerprint = core.Fingerprint(entry.Title)
			nextID++
			items = append(items, entry)
		}
		logger.Debug("Fetched feed", "url", feedURL, "items", len(entries))
	}

	return items
}

// Fetch retrieves one feed and parses it as RSS or Atom. Item IDs are left
// zero; FetchAll assigns them across feeds.
func (m *Manager) Fetch(feedURL string) ([]core.Item, error) {
	req, err := http.NewRequest(http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	const maxFeedBytes = 8 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	raw := string(body)

	// Try RSS first, then Atom.
	var rss RSS
	if err := xml.NewDecoder(strings.NewReader(raw)).Decode(&rss); err == nil && rss.Channel.Title != "" {
		return parseRSS(rss), nil
	}

	var atom Atom
	if err := xml.NewDecoder(strings.NewReader(raw)).Decode(&atom); err == nil && atom.Title != "" {
		return parseAtom(atom), nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func parseRSS(rss RSS) []core.Item {
	items := make([]core.Item, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		image := ""
		if strings.HasPrefix(item.Enclosure.Type, "image/") {
			image = item.Enclosure.URL
		}
		items = append(items, core.Item{
			Title: strings.TrimSpace(item.Title),
			Link:  strings.TrimSpace(item.Link),
			Body:  strings.TrimSpace(item.Description),
			Image: image,
		})
	}
	return items
}

func parseAtom(atom Atom) []core.Item {
	items := make([]core.Item, 0, len(atom.Entries))
	for _, entry := range atom.Entries {
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		body := entry.Summary
		if body == "" {
			body = entry.Content
		}
		items = append(items, core.Item{
			Title: strings.TrimSpace(entry.Title),
			Link:  strings.TrimSpace(link),
			Body:  strings.TrimSpace(body),
		})
	}
	return items
}
