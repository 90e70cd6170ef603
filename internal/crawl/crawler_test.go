package crawl_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpipe/internal/crawl"
)

func docsSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/":
			fmt.Fprint(w, `<html><head><title>Docs Home</title></head><body>
				<nav><a href="/docs/ignored-nav">nav link</a></nav>
				<p>Welcome to the documentation.</p>
				<a href="/docs/guide">Guide</a>
				<a href="/docs/guide#section">Guide section</a>
				<a href="/docs/internal/secret">Secret</a>
				<a href="/other/page">Outside</a>
				<a href="https://elsewhere.example/x">External</a>
			</body></html>`)
		case "/docs/guide":
			fmt.Fprint(w, `<html><head><title>Guide</title></head><body>
				<h1>Guide</h1><p>How to configure the pipeline.</p>
				<a href="/docs/">Home</a>
			</body></html>`)
		case "/docs/internal/secret":
			fmt.Fprint(w, `<html><body><p>should be excluded</p></body></html>`)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/other/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>outside the prefix</p></body></html>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestCrawl(t *testing.T) {
	ts := docsSite(t)
	c := crawl.New(crawl.WithExclusions([]string{`/internal/`}))

	pages, err := c.Crawl(context.Background(), ts.URL+"/docs/", 10)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	byURL := map[string]crawl.Page{}
	for _, p := range pages {
		byURL[p.URL] = p
	}

	home, ok := byURL[ts.URL+"/docs/"]
	require.True(t, ok, "root page crawled")
	assert.Equal(t, "Docs Home", home.Title)
	assert.Contains(t, home.Text, "Welcome to the documentation.")
	assert.NotContains(t, home.Text, "nav link", "nav content is stripped")

	guide, ok := byURL[ts.URL+"/docs/guide"]
	require.True(t, ok, "fragment link deduplicated to one page")
	assert.Equal(t, "Guide", guide.Title)
	assert.Contains(t, guide.Text, "How to configure the pipeline.")
}

func TestCrawl_MaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/")
		fmt.Fprintf(w, `<html><body><p>page %s with body text</p><a href="/%sx">next</a></body></html>`, n, n)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := crawl.New()
	pages, err := c.Crawl(context.Background(), ts.URL+"/", 3)
	require.NoError(t, err)
	assert.Len(t, pages, 3)
}

func TestCrawl_UnreachableRootFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer ts.Close()

	c := crawl.New()
	_, err := c.Crawl(context.Background(), ts.URL+"/docs/", 10)
	assert.Error(t, err)
}

func TestCrawl_SkipsBrokenPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docs/" {
			fmt.Fprint(w, `<html><body><p>root page body text</p>
				<a href="/docs/broken">broken</a><a href="/docs/ok">ok</a></body></html>`)
			return
		}
		if r.URL.Path == "/docs/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `<html><body><p>fine page body text</p></body></html>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := crawl.New()
	pages, err := c.Crawl(context.Background(), ts.URL+"/docs/", 10)
	require.NoError(t, err)
	assert.Len(t, pages, 2, "broken page skipped, crawl continues")
}

func TestParsePage(t *testing.T) {
	base, _ := url.Parse("http://docs.example/guide/")
	doc := `<html><head><title>T</title><script>var x=1;</script></head><body>
		<h1>Heading</h1>
		<p>Paragraph one.</p>
		<a href="sub/page">relative</a>
		<a href="mailto:x@example.com">mail</a>
		<a href="javascript:void(0)">js</a>
	</body></html>`

	title, text, links, err := crawl.ParsePage(base, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "T", title)
	assert.Contains(t, text, "Heading")
	assert.Contains(t, text, "Paragraph one.")
	assert.NotContains(t, text, "var x=1", "script content stripped")
	assert.Equal(t, []string{"http://docs.example/guide/sub/page"}, links)
}
