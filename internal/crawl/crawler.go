// Package crawl walks a documentation site breadth-first, staying under the
// root URL's path prefix, and hands back the text of each page.
package crawl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultMaxPages = 500

// Page is one fetched document.
type Page struct {
	URL   string
	Title string
	Text  string
}

type Crawler struct {
	client     *http.Client
	exclusions []*regexp.Regexp
	userAgent  string
}

type Option func(*Crawler)

// WithTimeout bounds each page fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Crawler) { c.client.Timeout = d }
}

// WithExclusions skips URLs matching any of the patterns.
func WithExclusions(patterns []string) Option {
	return func(c *Crawler) {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				slog.Warn("ignoring invalid exclusion pattern", "pattern", p, "error", err)
				continue
			}
			c.exclusions = append(c.exclusions, re)
		}
	}
}

func New(opts ...Option) *Crawler {
	c := &Crawler{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "docpipe/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches rootURL and every reachable page under its path prefix,
// breadth-first, up to maxPages. Fetch errors on individual pages are logged
// and skipped; only an unusable root is fatal.
func (c *Crawler) Crawl(ctx context.Context, rootURL string, maxPages int) ([]Page, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("parse root url: %w", err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", root.Scheme)
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	prefix := root.String()

	frontier := []string{prefix}
	visited := map[string]bool{prefix: true}
	var pages []Page

	for len(frontier) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		pageURL := frontier[0]
		frontier = frontier[1:]

		page, links, err := c.fetch(ctx, pageURL)
		if err != nil {
			if pageURL == prefix {
				return nil, fmt.Errorf("fetch root page: %w", err)
			}
			slog.WarnContext(ctx, "skipping unreachable page", "url", pageURL, "error", err)
			continue
		}
		pages = append(pages, page)

		for _, link := range links {
			if visited[link] || !strings.HasPrefix(link, prefix) || c.excluded(link) {
				continue
			}
			visited[link] = true
			frontier = append(frontier, link)
		}
	}

	slog.InfoContext(ctx, "crawl finished", "root", rootURL, "pages", len(pages))
	return pages, nil
}

func (c *Crawler) excluded(link string) bool {
	for _, re := range c.exclusions {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Page{}, nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return Page{}, nil, fmt.Errorf("unsupported content type %q", ct)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, nil, err
	}
	title, text, links, err := ParsePage(base, resp.Body)
	if err != nil {
		return Page{}, nil, fmt.Errorf("parse page: %w", err)
	}
	return Page{URL: pageURL, Title: title, Text: text}, links, nil
}
