package crawler

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults describing the thegirl.ru tests section.
const (
	DefaultStartURL      = "https://thegirl.ru/tests/page-1/"
	DefaultAllowedDomain = "thegirl.ru"
	DefaultURLPrefix     = "https://www.thegirl.ru"
	DefaultPageToken     = "page"
	DefaultPageNum       = 608
	DefaultDelay         = 5 * time.Second
	DefaultMaxRetries    = 2
	DefaultUserAgent     = "thegirl-crawler/1.0 (+https://github.com/JakeFAU/thegirl-crawler)"

	DefaultLinkXPath = "//div[contains(@class, 'announcements-page rubric-page__announcements')]" +
		"//div[@class = 'announcements-page__announcement']" +
		"//span[contains(@class, 'announce-inline__title')]/a/@href"
	DefaultTitleXPath = "//header[@class = 'article__header']/div[@class = 'article__header-top']" +
		"/h1[@class = 'article__title']//text()"
	DefaultTagsXPath    = "//div[@class = 'tags article-footer__tags']/ul[@class = 'tags__list']/li"
	DefaultTagItemXPath = "./a[@class = 'tags__tag-link']//text()"
)

// OutOfRangePolicy decides what happens to listing pages past the real end
// of the listing.
type OutOfRangePolicy string

const (
	// OutOfRangeContinue fetches every configured listing page; empty ones are no-ops.
	OutOfRangeContinue OutOfRangePolicy = "continue"
	// OutOfRangeStop aborts pending listing pages above the first empty or failed one.
	OutOfRangeStop OutOfRangePolicy = "stop"
)

// Selectors holds the XPath expressions bound to the site markup.
type Selectors struct {
	Link    string
	Title   string
	Tags    string
	TagItem string
}

// Config captures every knob that influences a crawl run.
type Config struct {
	StartURL       string
	AllowedDomain  string
	URLPrefix      string
	PageToken      string
	PageNum        int
	Delay          time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	RespectRobots  bool
	Parallelism    int
	MaxRetries     int
	OutOfRange     OutOfRangePolicy
	Selectors      Selectors
}

// DefaultConfig returns the configuration of the original tests crawl.
func DefaultConfig() Config {
	return Config{
		StartURL:       DefaultStartURL,
		AllowedDomain:  DefaultAllowedDomain,
		URLPrefix:      DefaultURLPrefix,
		PageToken:      DefaultPageToken,
		PageNum:        DefaultPageNum,
		Delay:          DefaultDelay,
		RequestTimeout: 30 * time.Second,
		UserAgent:      DefaultUserAgent,
		RespectRobots:  false,
		Parallelism:    1,
		MaxRetries:     DefaultMaxRetries,
		OutOfRange:     OutOfRangeContinue,
		Selectors: Selectors{
			Link:    DefaultLinkXPath,
			Title:   DefaultTitleXPath,
			Tags:    DefaultTagsXPath,
			TagItem: DefaultTagItemXPath,
		},
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	u, err := url.Parse(c.StartURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("crawler.start_url must be an absolute URL, got %q", c.StartURL)
	}
	if strings.TrimSpace(c.AllowedDomain) == "" {
		return fmt.Errorf("crawler.allowed_domain must be set")
	}
	if strings.TrimSpace(c.URLPrefix) == "" {
		return fmt.Errorf("crawler.url_prefix must be set")
	}
	if c.PageToken == "" {
		return fmt.Errorf("crawler.page_token must be set")
	}
	if c.PageNum < 0 {
		return fmt.Errorf("crawler.page_num must be >= 0")
	}
	if c.Delay < 0 {
		return fmt.Errorf("crawler.delay must be >= 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("crawler.request_timeout must be >= 0")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("crawler.parallelism must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	switch c.OutOfRange {
	case OutOfRangeContinue, OutOfRangeStop:
	default:
		return fmt.Errorf("crawler.out_of_range must be %q or %q, got %q",
			OutOfRangeContinue, OutOfRangeStop, c.OutOfRange)
	}
	return nil
}

// allowedHosts returns the allowed domain together with its www. host.
func (c Config) allowedHosts() []string {
	domain := strings.ToLower(strings.TrimSpace(c.AllowedDomain))
	bare := strings.TrimPrefix(domain, "www.")
	return []string{bare, "www." + bare}
}
