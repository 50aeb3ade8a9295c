package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/crawler"
	"github.com/JakeFAU/thegirl-crawler/internal/id/uuid"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/memory"
)

// site is a fake listing site that counts hits per path.
type site struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newSite(t *testing.T, routes map[string]http.HandlerFunc) *site {
	t.Helper()
	s := &site{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		if h, ok := routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func html(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, body)
	}
}

func listing(hrefs ...string) http.HandlerFunc {
	var b strings.Builder
	b.WriteString(`<html><body><div class="announcements-page rubric-page__announcements">`)
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<div class="announcements-page__announcement">`+
			`<span class="announce-inline__title"><a href="%s">link</a></span></div>`, href)
	}
	b.WriteString(`</div></body></html>`)
	return html(b.String())
}

func article(title string, tags ...string) http.HandlerFunc {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if title != "" {
		fmt.Fprintf(&b, `<header class="article__header"><div class="article__header-top">`+
			`<h1 class="article__title">%s</h1></div></header>`, title)
	}
	b.WriteString(`<div class="tags article-footer__tags"><ul class="tags__list">`)
	for _, tag := range tags {
		fmt.Fprintf(&b, `<li><a class="tags__tag-link">%s</a></li>`, tag)
	}
	b.WriteString(`</ul></div></body></html>`)
	return html(b.String())
}

func spiderConfig(s *site, pages int) crawler.Config {
	cfg := crawler.DefaultConfig()
	cfg.StartURL = s.URL + "/tests/page-1/"
	cfg.AllowedDomain = "127.0.0.1"
	cfg.URLPrefix = s.URL
	cfg.PageNum = pages
	cfg.Delay = 0
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func newSpider(t *testing.T, cfg crawler.Config, store crawler.RecordStore) *crawler.Spider {
	t.Helper()
	pipeline, err := crawler.NewPipeline(store, zap.NewNop())
	require.NoError(t, err)
	spider, err := crawler.NewSpider(cfg, pipeline, uuid.New(), zap.NewNop())
	require.NoError(t, err)
	return spider
}

func recordsByURL(store *memory.RecordStore) map[string]crawler.Record {
	out := make(map[string]crawler.Record)
	for _, r := range store.Records() {
		out[r.URL] = r
	}
	return out
}

func TestSpiderCrawlsListingAndArticles(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/a/", "/tests/b/", "/tests/a/", "https://example.org/tests/offsite/"),
		"/tests/page-2/": listing("/tests/old/", "/tests/b/"),
		"/tests/page-3/": listing(),
		"/tests/a/":      article("Какой ты цветок?", "#Тесты", "Drama! 2023 — Part#1"),
		"/tests/b/":      article(""),
		"/tests/old/": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/tests/new/", http.StatusMovedPermanently)
		},
		"/tests/new/": article("Moved"),
	})
	store := memory.NewRecordStore()
	spider := newSpider(t, spiderConfig(s, 3), store)

	stats, err := spider.Run(context.Background())
	require.NoError(t, err)

	records := recordsByURL(store)
	require.Len(t, records, 3)

	a := records[s.URL+"/tests/a/"]
	require.NotNil(t, a.Title)
	assert.Equal(t, "Какой ты цветок?", *a.Title)
	assert.Equal(t, "Тесты#Drama 2023  Part1", a.Tags)
	assert.Regexp(t, `^[0-9a-f]{32}$`, a.ID)

	b := records[s.URL+"/tests/b/"]
	assert.Nil(t, b.Title, "missing title is stored as null")
	assert.Equal(t, "", b.Tags)

	moved, ok := records[s.URL+"/tests/new/"]
	require.True(t, ok, "the final URL after redirects is recorded")
	assert.Equal(t, "Moved", moved.TitleOrEmpty())

	assert.Equal(t, 1, s.hitCount("/tests/page-1/"), "the start page is not fetched twice")
	assert.Equal(t, 1, s.hitCount("/tests/a/"), "duplicate links are fetched once")
	assert.Equal(t, 1, s.hitCount("/tests/b/"))
	assert.Equal(t, 1, s.hitCount("/tests/page-3/"))

	assert.Equal(t, int64(3), stats.ListingPages)
	assert.Equal(t, int64(3), stats.Articles)
	assert.Equal(t, int64(3), stats.Stored)
	assert.Equal(t, int64(0), stats.Duplicates)
	assert.Equal(t, int64(0), stats.FetchErrors)
	assert.Equal(t, int64(0), stats.ExtractErrors)
	assert.Equal(t, stats, spider.Stats())
}

func TestSpiderSecondRunOnlyCountsDuplicates(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/a/", "/tests/b/"),
		"/tests/a/":      article("A"),
		"/tests/b/":      article("B"),
	})
	store := memory.NewRecordStore()
	cfg := spiderConfig(s, 1)

	first, err := newSpider(t, cfg, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Stored)

	second, err := newSpider(t, cfg, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Stored)
	assert.Equal(t, int64(2), second.Duplicates)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSpiderOutOfRangePolicies(t *testing.T) {
	t.Parallel()

	routes := map[string]http.HandlerFunc{
		"/tests/page-1/": listing(),
		"/tests/page-2/": listing("/tests/a/"),
		"/tests/page-3/": listing("/tests/b/"),
		"/tests/a/":      article("A"),
		"/tests/b/":      article("B"),
	}

	t.Run("continue", func(t *testing.T) {
		t.Parallel()
		s := newSite(t, routes)
		store := memory.NewRecordStore()
		_, err := newSpider(t, spiderConfig(s, 3), store).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, s.hitCount("/tests/page-3/"))
		assert.Len(t, store.Records(), 2)
	})

	t.Run("stop", func(t *testing.T) {
		t.Parallel()
		s := newSite(t, routes)
		store := memory.NewRecordStore()
		cfg := spiderConfig(s, 3)
		cfg.OutOfRange = crawler.OutOfRangeStop
		_, err := newSpider(t, cfg, store).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, s.hitCount("/tests/page-2/"))
		assert.Equal(t, 0, s.hitCount("/tests/page-3/"))
		assert.Empty(t, store.Records())
	})
}

func TestSpiderZeroPagesFetchesOnlyStart(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/a/"),
		"/tests/a/":      article("A"),
	})
	store := memory.NewRecordStore()
	stats, err := newSpider(t, spiderConfig(s, 0), store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.hitCount("/tests/page-1/"))
	assert.Equal(t, 0, s.hitCount("/tests/a/"))
	assert.Equal(t, int64(0), stats.ListingPages)
	assert.Empty(t, store.Records())
}

func TestSpiderRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/flaky/", "/tests/gone/"),
		"/tests/flaky/": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			article("Flaky")(w, r)
		},
	})
	store := memory.NewRecordStore()
	spider := newSpider(t, spiderConfig(s, 1), store)
	spider.SetRetryPolicy(2, 10*time.Millisecond)

	stats, err := spider.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, s.hitCount("/tests/flaky/"))
	assert.Equal(t, 1, s.hitCount("/tests/gone/"), "404 is not retried")
	assert.Equal(t, int64(1), stats.Stored)
	assert.Equal(t, int64(1), stats.FetchErrors)
	_, ok := recordsByURL(store)[s.URL+"/tests/flaky/"]
	assert.True(t, ok)
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

func TestSpiderCountsExtractErrorsSeparately(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/a/"),
		"/tests/a/":      article("A"),
	})
	store := memory.NewRecordStore()
	pipeline, err := crawler.NewPipeline(store, zap.NewNop())
	require.NoError(t, err)
	spider, err := crawler.NewSpider(spiderConfig(s, 1), pipeline, failingIDs{}, zap.NewNop())
	require.NoError(t, err)

	stats, err := spider.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.ExtractErrors)
	assert.Equal(t, int64(0), stats.StoreErrors)
	assert.Equal(t, int64(0), stats.Articles)
	assert.Empty(t, store.Records())
}

func TestSpiderCanceledContext(t *testing.T) {
	t.Parallel()

	s := newSite(t, map[string]http.HandlerFunc{
		"/tests/page-1/": listing("/tests/a/"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSpider(t, spiderConfig(s, 1), memory.NewRecordStore()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.hitCount("/tests/a/"))
}

func TestNewSpiderValidation(t *testing.T) {
	t.Parallel()

	pipeline, err := crawler.NewPipeline(memory.NewRecordStore(), zap.NewNop())
	require.NoError(t, err)

	cfg := crawler.DefaultConfig()
	cfg.StartURL = "tests/page-1/"
	_, err = crawler.NewSpider(cfg, pipeline, uuid.New(), zap.NewNop())
	assert.Error(t, err)

	_, err = crawler.NewSpider(crawler.DefaultConfig(), nil, uuid.New(), zap.NewNop())
	assert.Error(t, err)

	_, err = crawler.NewSpider(crawler.DefaultConfig(), pipeline, nil, zap.NewNop())
	assert.Error(t, err)

	cfg = crawler.DefaultConfig()
	cfg.Selectors.TagItem = "./a[@class="
	_, err = crawler.NewSpider(cfg, pipeline, uuid.New(), zap.NewNop())
	assert.Error(t, err)
}
