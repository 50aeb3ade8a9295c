package crawler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/metrics"
)

// Request context keys and crawl steps.
const (
	stepKey    = "step"
	pageKey    = "page"
	attemptKey = "attempt"

	stepStart   = "start"
	stepListing = "listing"
	stepArticle = "article"
)

// Spider drives the crawl: start page, listing pages, then article pages.
type Spider struct {
	cfg       Config
	extractor *Extractor
	pipeline  *Pipeline
	ids       IDGenerator
	retry     *RetryPolicy
	logger    *zap.Logger

	// ceiling is the highest listing page still worth fetching.
	ceiling atomic.Int64

	listingPages  atomic.Int64
	articles      atomic.Int64
	stored        atomic.Int64
	duplicates    atomic.Int64
	fetchErrors   atomic.Int64
	extractErrors atomic.Int64
	storeErrors   atomic.Int64
}

// NewSpider validates cfg, compiles its selectors and builds a Spider.
func NewSpider(cfg Config, pipeline *Pipeline, ids IDGenerator, logger *zap.Logger) (*Spider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	extractor, err := NewExtractor(cfg.Selectors)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Spider{
		cfg:       cfg,
		extractor: extractor,
		pipeline:  pipeline,
		ids:       ids,
		retry:     NewRetryPolicy(cfg.MaxRetries),
		logger:    logger,
	}, nil
}

// Run crawls from the start URL until every scheduled request has finished
// or ctx is canceled, and returns the run statistics.
func (s *Spider) Run(ctx context.Context) (Stats, error) {
	s.ceiling.Store(math.MaxInt64)

	collector, err := s.newCollector(ctx)
	if err != nil {
		return Stats{}, err
	}

	s.logger.Info("Starting crawl",
		zap.String("start_url", s.cfg.StartURL),
		zap.Int("page_num", s.cfg.PageNum),
		zap.Duration("delay", s.cfg.Delay),
	)
	startCtx := colly.NewContext()
	startCtx.Put(stepKey, stepStart)
	if err := collector.Request(http.MethodGet, s.cfg.StartURL, nil, startCtx, nil); err != nil {
		return s.Stats(), fmt.Errorf("visit start url: %w", err)
	}
	collector.Wait()

	stats := s.Stats()
	s.logger.Info("Crawl finished",
		zap.Int64("listing_pages", stats.ListingPages),
		zap.Int64("articles", stats.Articles),
		zap.Int64("stored", stats.Stored),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("fetch_errors", stats.FetchErrors),
		zap.Int64("extract_errors", stats.ExtractErrors),
		zap.Int64("store_errors", stats.StoreErrors),
	)
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// Stats returns a snapshot of the run counters.
func (s *Spider) Stats() Stats {
	return Stats{
		ListingPages:  s.listingPages.Load(),
		Articles:      s.articles.Load(),
		Stored:        s.stored.Load(),
		Duplicates:    s.duplicates.Load(),
		FetchErrors:   s.fetchErrors.Load(),
		ExtractErrors: s.extractErrors.Load(),
		StoreErrors:   s.storeErrors.Load(),
	}
}

func (s *Spider) newCollector(ctx context.Context) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(s.cfg.allowedHosts()...),
		colly.UserAgent(s.cfg.UserAgent),
		colly.Async(true),
		colly.StdlibContext(ctx),
	)
	collector.AllowURLRevisit = false
	collector.IgnoreRobotsTxt = !s.cfg.RespectRobots
	if s.cfg.RequestTimeout > 0 {
		collector.SetRequestTimeout(s.cfg.RequestTimeout)
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.cfg.Parallelism,
		Delay:       s.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	collector.OnRequest(s.handleRequest(ctx))
	collector.OnResponse(func(r *colly.Response) {
		s.handleResponse(ctx, collector, r)
	})
	collector.OnError(s.handleError(ctx))
	return collector, nil
}

func (s *Spider) handleRequest(ctx context.Context) func(*colly.Request) {
	return func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if r.Ctx.Get(stepKey) != stepListing {
			return
		}
		if page := pageNumber(r.Ctx); int64(page) > s.ceiling.Load() {
			metrics.ObservePage(r.URL.String(), stepListing, "aborted", 0)
			metrics.ObserveAbortedPage()
			s.logger.Debug("Skipping listing page past the end of the listing",
				zap.String("url", r.URL.String()),
				zap.Int("page", page),
			)
			r.Abort()
		}
	}
}

func (s *Spider) handleResponse(ctx context.Context, collector *colly.Collector, r *colly.Response) {
	step := r.Ctx.Get(stepKey)
	metrics.ObservePage(r.Request.URL.String(), step, "ok", len(r.Body))

	switch step {
	case stepStart:
		s.paginate(collector, r)
	case stepListing:
		s.scheduleArticles(collector, r, pageNumber(r.Ctx))
	case stepArticle:
		s.processArticle(ctx, r)
	default:
		s.logger.Warn("Response without crawl step", zap.String("url", r.Request.URL.String()))
	}
}

// paginate schedules every listing page derived from the start response.
// The page equal to the start response is extracted in place since the
// collector does not revisit URLs.
func (s *Spider) paginate(collector *colly.Collector, r *colly.Response) {
	current := r.Request.URL.String()
	for _, page := range ListingPages(current, s.cfg.PageToken, s.cfg.PageNum) {
		if page.URL == current {
			s.scheduleArticles(collector, r, page.Number)
			continue
		}
		ctx := colly.NewContext()
		ctx.Put(stepKey, stepListing)
		ctx.Put(pageKey, strconv.Itoa(page.Number))
		s.schedule(collector, page.URL, ctx)
	}
}

func (s *Spider) scheduleArticles(collector *colly.Collector, r *colly.Response, page int) {
	s.listingPages.Add(1)
	doc, err := ParseHTML(r.Body)
	if err != nil {
		s.logger.Warn("Failed to parse listing page", zap.String("url", r.Request.URL.String()), zap.Error(err))
		s.markListingEnd(page)
		return
	}
	links := s.extractor.Links(doc)
	if len(links) == 0 {
		s.logger.Info("Listing page has no articles",
			zap.String("url", r.Request.URL.String()),
			zap.Int("page", page),
		)
		s.markListingEnd(page)
		return
	}
	for _, href := range links {
		ctx := colly.NewContext()
		ctx.Put(stepKey, stepArticle)
		s.schedule(collector, ResolveLink(s.cfg.URLPrefix, href), ctx)
	}
}

func (s *Spider) processArticle(ctx context.Context, r *colly.Response) {
	finalURL := r.Request.URL.String()
	id, err := s.ids.NewID()
	if err != nil {
		s.extractErrors.Add(1)
		s.logger.Error("Failed to generate record id", zap.String("url", finalURL), zap.Error(err))
		return
	}
	record, err := s.extractor.Article(id, finalURL, r.Body)
	if err != nil {
		s.extractErrors.Add(1)
		s.logger.Error("Failed to extract article", zap.String("url", finalURL), zap.Error(err))
		return
	}
	s.articles.Add(1)

	stored, err := s.pipeline.Process(ctx, Article{Record: record, Body: r.Body})
	switch {
	case err != nil:
		s.storeErrors.Add(1)
		s.logger.Error("Failed to store record", zap.String("url", finalURL), zap.Error(err))
	case stored:
		s.stored.Add(1)
		s.logger.Info("Stored record",
			zap.String("id", record.ID),
			zap.String("url", record.URL),
			zap.String("title", record.TitleOrEmpty()),
			zap.String("tags", record.Tags),
		)
	default:
		s.duplicates.Add(1)
	}
}

func (s *Spider) handleError(ctx context.Context) func(*colly.Response, error) {
	return func(r *colly.Response, err error) {
		step := r.Ctx.Get(stepKey)
		url := r.Request.URL.String()
		if s.tryRetry(ctx, r, err) {
			return
		}
		s.fetchErrors.Add(1)
		metrics.ObservePage(url, step, "error", 0)

		msg := "Request failed"
		switch r.StatusCode {
		case http.StatusTooManyRequests:
			msg = "Rate limited"
		case http.StatusForbidden:
			msg = "Forbidden"
		case http.StatusNotFound:
			msg = "Not found"
		}
		s.logger.Error(msg,
			zap.String("url", url),
			zap.String("step", step),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
		if step == stepListing {
			s.markListingEnd(pageNumber(r.Ctx))
		}
	}
}

// tryRetry schedules another attempt for a transient failure and reports
// whether it did.
func (s *Spider) tryRetry(ctx context.Context, r *colly.Response, err error) bool {
	attempt := ctxInt(r.Ctx, attemptKey)
	if ctx.Err() != nil || !s.retry.ShouldRetry(err, r.StatusCode, attempt) {
		return false
	}
	var retryAfter string
	if r.Headers != nil {
		retryAfter = r.Headers.Get("Retry-After")
	}
	wait := s.retry.Backoff(attempt, retryAfter)
	url := r.Request.URL.String()
	metrics.ObservePage(url, r.Ctx.Get(stepKey), "retry", 0)
	s.logger.Warn("Retrying request",
		zap.String("url", url),
		zap.Int("status_code", r.StatusCode),
		zap.Int("attempt", attempt+1),
		zap.Duration("wait", wait),
		zap.Error(err),
	)
	pause(ctx, wait)
	if ctx.Err() != nil {
		return false
	}
	r.Ctx.Put(attemptKey, strconv.Itoa(attempt+1))
	if retryErr := r.Request.Retry(); retryErr != nil {
		s.logger.Warn("Failed to schedule retry", zap.String("url", url), zap.Error(retryErr))
		return false
	}
	return true
}

func (s *Spider) schedule(collector *colly.Collector, url string, ctx *colly.Context) {
	err := collector.Request(http.MethodGet, url, nil, ctx, nil)
	if err == nil {
		return
	}
	var visited *colly.AlreadyVisitedError
	if errors.As(err, &visited) {
		s.logger.Debug("Already visited", zap.String("url", url))
		return
	}
	s.logger.Warn("Failed to schedule request",
		zap.String("url", url),
		zap.String("step", ctx.Get(stepKey)),
		zap.Error(err),
	)
}

// markListingEnd lowers the listing ceiling when the stop policy is active.
func (s *Spider) markListingEnd(page int) {
	if s.cfg.OutOfRange != OutOfRangeStop || page <= 0 {
		return
	}
	for {
		current := s.ceiling.Load()
		if int64(page) >= current {
			return
		}
		if s.ceiling.CompareAndSwap(current, int64(page)) {
			s.logger.Info("Listing end detected; later pages will be skipped", zap.Int("page", page))
			return
		}
	}
}

func pageNumber(ctx *colly.Context) int {
	return ctxInt(ctx, pageKey)
}

func ctxInt(ctx *colly.Context, key string) int {
	n, err := strconv.Atoi(ctx.Get(key))
	if err != nil {
		return 0
	}
	return n
}
