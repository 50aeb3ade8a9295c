package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/config"
	"github.com/JakeFAU/thegirl-crawler/internal/storage/sqlite"
)

const listingHTML = `<html><body>
<div class="announcements-page rubric-page__announcements">
  <div class="announcements-page__announcement">
    <span class="announce-inline__title"><a href="/tests/first/">First</a></span>
  </div>
  <div class="announcements-page__announcement">
    <span class="announce-inline__title"><a href="/tests/second/">Second</a></span>
  </div>
</div>
</body></html>`

const articleHTML = `<html><body>
<header class="article__header"><div class="article__header-top">
  <h1 class="article__title">%s</h1>
</div></header>
<div class="tags article-footer__tags"><ul class="tags__list">
  <li><a class="tags__tag-link">#Тест!</a></li>
  <li><a class="tags__tag-link">#Drama 2023</a></li>
</ul></div>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tests/page-1/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, listingHTML)
	})
	mux.HandleFunc("/tests/page-2/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `<html><body><p>empty</p></body></html>`)
	})
	mux.HandleFunc("/tests/first/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, articleHTML, "First test")
	})
	mux.HandleFunc("/tests/second/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, articleHTML, "Second test")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testConfig(t *testing.T, site *httptest.Server) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Crawler.StartURL = site.URL + "/tests/page-1/"
	cfg.Crawler.AllowedDomain = "127.0.0.1"
	cfg.Crawler.URLPrefix = site.URL
	cfg.Crawler.PageNum = 2
	cfg.Crawler.Delay = 0
	cfg.Crawler.RequestTimeout = 5 * time.Second
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.Path = filepath.Join(t.TempDir(), "crawl.db")
	return cfg
}

func TestRunStoresArticlesOnce(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t, site)
	cfg.Archive.Backend = config.ArchiveLocal
	cfg.Archive.BaseDir = filepath.Join(t.TempDir(), "archive")

	ctx := context.Background()
	require.NoError(t, run(ctx, cfg, zap.NewNop()))
	require.NoError(t, run(ctx, cfg, zap.NewNop()))

	store, err := sqlite.NewRecordStore(ctx, sqlite.Config{Path: cfg.Store.Path, Table: cfg.Store.Table})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	record, err := store.Get(ctx, site.URL+"/tests/first/")
	require.NoError(t, err)
	require.NotNil(t, record.Title)
	assert.Equal(t, "First test", *record.Title)
	assert.Equal(t, "Тест#Drama 2023", record.Tags)
	assert.Len(t, record.ID, 32)

	var archived int
	err = filepath.Walk(cfg.Archive.BaseDir, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr == nil && !info.IsDir() {
			archived++
		}
		return walkErr
	})
	require.NoError(t, err)
	assert.Equal(t, 2, archived, "only newly stored articles are archived")
}

func TestRunCanceledBeforeStart(t *testing.T) {
	site := newSite(t)
	cfg := testConfig(t, site)
	cfg.Store.Driver = config.DriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, cfg, zap.NewNop()))
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = openStore(ctx, config.StoreConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "x.db"),
		Table:  "tests",
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = openStore(ctx, config.StoreConfig{Driver: config.DriverPostgres})
	assert.Error(t, err)

	_, err = openStore(ctx, config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestPipelineOptions(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	opts, cleanup, err := pipelineOptions(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Len(t, opts, 1, "clock only")

	cfg.Archive.Backend = config.ArchiveLocal
	cfg.Archive.BaseDir = t.TempDir()
	opts, cleanup, err = pipelineOptions(context.Background(), cfg)
	require.NoError(t, err)
	cleanup()
	assert.Len(t, opts, 2)

	cfg.Archive.Timezone = "Nowhere/Land"
	_, cleanup, err = pipelineOptions(context.Background(), cfg)
	cleanup()
	assert.Error(t, err)
}

func TestRootCmdRejectsBadInput(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}
