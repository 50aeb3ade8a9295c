package crawler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Extractor applies the compiled site selectors to listing and article pages.
// Missing matches produce empty values, never errors.
type Extractor struct {
	link    *xpath.Expr
	title   *xpath.Expr
	tags    *xpath.Expr
	tagItem *xpath.Expr
}

// NewExtractor compiles the selectors, rejecting invalid or empty expressions.
func NewExtractor(sel Selectors) (*Extractor, error) {
	compile := func(name, expr string) (*xpath.Expr, error) {
		if strings.TrimSpace(expr) == "" {
			return nil, fmt.Errorf("selectors.%s must be set", name)
		}
		compiled, err := xpath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile selectors.%s: %w", name, err)
		}
		return compiled, nil
	}

	var (
		e   Extractor
		err error
	)
	if e.link, err = compile("link_xpath", sel.Link); err != nil {
		return nil, err
	}
	if e.title, err = compile("title_xpath", sel.Title); err != nil {
		return nil, err
	}
	if e.tags, err = compile("tags_xpath", sel.Tags); err != nil {
		return nil, err
	}
	if e.tagItem, err = compile("tag_item_xpath", sel.TagItem); err != nil {
		return nil, err
	}
	return &e, nil
}

// ParseHTML parses a response body into a document tree.
func ParseHTML(body []byte) (*html.Node, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Links returns the non-blank article hrefs of a listing page in document order.
func (e *Extractor) Links(doc *html.Node) []string {
	var links []string
	for _, node := range htmlquery.QuerySelectorAll(doc, e.link) {
		if href := strings.TrimSpace(htmlquery.InnerText(node)); href != "" {
			links = append(links, href)
		}
	}
	return links
}

// Title returns the first non-blank title match, or nil when there is none.
func (e *Extractor) Title(doc *html.Node) *string {
	for _, node := range htmlquery.QuerySelectorAll(doc, e.title) {
		if text := strings.TrimSpace(htmlquery.InnerText(node)); text != "" {
			return &text
		}
	}
	return nil
}

// Tags returns the sanitized tag tokens of an article joined by TagSeparator.
func (e *Extractor) Tags(doc *html.Node) string {
	var raw []string
	for _, item := range htmlquery.QuerySelectorAll(doc, e.tags) {
		link := htmlquery.QuerySelector(item, e.tagItem)
		if link == nil {
			continue
		}
		raw = append(raw, htmlquery.InnerText(link))
	}
	return JoinTags(raw)
}

// Article builds the record for an article page fetched from finalURL.
func (e *Extractor) Article(id, finalURL string, body []byte) (Record, error) {
	doc, err := ParseHTML(body)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:    id,
		URL:   finalURL,
		Title: e.Title(doc),
		Tags:  e.Tags(doc),
	}, nil
}

// ResolveLink turns a listing href into an absolute article URL. Relative
// hrefs are appended to prefix; absolute http(s) URLs are kept.
func ResolveLink(prefix, href string) string {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return href
	}
	return prefix + href
}
