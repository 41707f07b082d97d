// Package fetch retrieves full article content for items whose feed body is
// only a stub. Failures never propagate: the pipeline treats missing content
// as an empty body and moves on.
package fetch

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"skim/internal/logger"
)

var multiNewlineRegex = regexp.MustCompile(`\n{3,}`)

// Fetcher downloads article pages and extracts their readable text.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher with the given timeout.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// ArticleText fetches the page at url and returns its extracted text. Any
// failure (network, status, parse) is logged and yields "".
func (f *Fetcher) ArticleText(url string) string {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		logger.Warn("Failed to build article request", "url", url, "error", err.Error())
		return ""
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Warn("Failed to fetch article", "url", url, "error", err.Error())
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Article fetch returned non-OK status", "url", url, "status", resp.StatusCode)
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		logger.Warn("Failed to parse article HTML", "url", url, "error", err.Error())
		return ""
	}

	return ExtractText(doc)
}

// ExtractText pulls the readable text out of a parsed HTML document,
// dropping boilerplate elements first.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript").Remove()

	var textBuilder strings.Builder
	selection := doc.Find("article, main, [role='main']")
	if selection.Length() == 0 {
		selection = doc.Find("body")
	}

	selection.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
		text := strings.TrimSpace(item.Text())
		if text == "" {
			return
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	})

	text := textBuilder.String()
	if text == "" {
		// Non-article pages may have no block elements at all.
		text = selection.Text()
	}

	text = multiNewlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
