// Package fetch downloads web pages for the agent's autonomous
// research. It reduces a page to its title, headings, and readable
// body text so research notes can quote structure, not markup.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emberhearth/ember/internal/httpkit"
)

const (
	requestTimeout = 30 * time.Second

	// maxBodyBytes caps how much of a response we read (5 MB).
	maxBodyBytes int64 = 5 * 1024 * 1024

	// defaultMaxChars bounds extracted text when the caller passes 0.
	defaultMaxChars = 40000
)

// Page is the readable reduction of a fetched URL.
type Page struct {
	URL        string   `json:"url"`
	Title      string   `json:"title,omitempty"`
	Headings   []string `json:"headings,omitempty"`
	Text       string   `json:"text"`
	Truncated  bool     `json:"truncated,omitempty"`
	StatusCode int      `json:"status_code"`
}

// Reader fetches pages over HTTP.
type Reader struct {
	client *http.Client
}

// NewReader creates a Reader with the shared HTTP defaults.
func NewReader() *Reader {
	return &Reader{
		client: httpkit.NewClient(httpkit.WithTimeout(requestTimeout)),
	}
}

// Read fetches rawURL and extracts its readable content. maxChars
// limits the text; 0 uses the default. A scheme-less URL is assumed
// to be HTTPS.
func (r *Reader) Read(ctx context.Context, rawURL string, maxChars int) (*Page, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: bad url %q: %w", rawURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}

	page := &Page{URL: rawURL, StatusCode: resp.StatusCode}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	switch {
	case strings.Contains(contentType, "text/html"), strings.Contains(contentType, "xhtml"):
		page.Title, page.Headings, page.Text = reduceHTML(string(body))
	case strings.Contains(contentType, "text/plain"):
		page.Text = strings.TrimSpace(string(body))
	default:
		if !utf8.Valid(body) {
			page.Text = fmt.Sprintf("(binary content, %s, %d bytes)", contentType, len(body))
			return page, nil
		}
		page.Text = strings.TrimSpace(string(body))
	}

	if utf8.RuneCountInString(page.Text) > maxChars {
		page.Text = cutRunes(page.Text, maxChars)
		page.Truncated = true
	}
	return page, nil
}

// cutRunes truncates s to n runes without splitting a character.
func cutRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count >= n {
			return s[:i]
		}
		count++
	}
	return s
}
