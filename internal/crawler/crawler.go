// Package crawler is the boundary collaborator for the source site:
// form-based login carried by a cookie jar, HTML scraping of the
// finished-match listing for transcript links, and transcript download.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrLoginFailed is returned when the login form submits but the landing
// page does not contain the configured welcome string.
var ErrLoginFailed = fmt.Errorf("crawler: login failed")

// Config points the client at the source site's fixed paths.
type Config struct {
	BaseURL      string // e.g. "https://www.example.com"
	LoginPath    string // form POST target, default "/login"
	ListPath     string // URL template containing "{userId}" and "{days}"
	ExportPrefix string // default "/bg/export/"
	WelcomeText  string // substring that marks a successful login
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.ExportPrefix == "" {
		c.ExportPrefix = "/bg/export/"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// MatchRef is one finished match discovered in the listing page: its
// export URL and the match id extracted from that URL's path.
type MatchRef struct {
	MatchID string
	URL     string
}

// Client is a session-carrying HTTP client against the source site.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client with a fresh, empty cookie jar.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("crawler: new cookie jar: %w", err)
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Jar: jar, Timeout: cfg.Timeout},
	}, nil
}

// Login submits the source site's login form and verifies the resulting
// page contains the configured welcome string. The session cookie set by
// the response is retained by the client's jar for subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("crawler: build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crawler: login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("crawler: read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), c.cfg.WelcomeText) {
		return ErrLoginFailed
	}
	return nil
}

var exportHrefRe = regexp.MustCompile(`/([A-Za-z0-9_-]+)/?$`)

// ListFinished fetches the finished-match listing for userID over the
// requested days window and returns every "/bg/export/..." link found on
// the page, in page order.
func (c *Client) ListFinished(ctx context.Context, userID string, days int) ([]MatchRef, error) {
	listURL := strings.NewReplacer("{userId}", userID, "{days}", fmt.Sprintf("%d", days)).Replace(c.cfg.ListPath)
	if !strings.HasPrefix(listURL, "http") {
		listURL = c.cfg.BaseURL + listURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("crawler: build listing request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawler: listing request: %w", err)
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crawler: parse listing page: %w", err)
	}

	var refs []MatchRef
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := attr.Val
				if !strings.Contains(href, c.cfg.ExportPrefix) || seen[href] {
					continue
				}
				seen[href] = true
				m := exportHrefRe.FindStringSubmatch(href)
				if m == nil {
					continue
				}
				full := href
				if !strings.HasPrefix(full, "http") {
					full = c.cfg.BaseURL + href
				}
				refs = append(refs, MatchRef{MatchID: m[1], URL: full})
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return refs, nil
}

// Download fetches the transcript text at url.
func (c *Client) Download(ctx context.Context, transcriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return "", fmt.Errorf("crawler: build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("crawler: download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crawler: download %s: HTTP %d", transcriptURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("crawler: read download body: %w", err)
	}
	return string(body), nil
}
