package crawler

import (
	"fmt"
	"strings"
)

// ListingPrefix derives the listing URL prefix from a listing page URL: the
// part before the last hyphen, with the page token appended when missing.
//
//	https://thegirl.ru/tests/page-1/ -> https://thegirl.ru/tests/page
func ListingPrefix(rawURL, token string) string {
	prefix := rawURL
	if idx := strings.LastIndex(rawURL, "-"); idx >= 0 {
		prefix = rawURL[:idx]
	}
	if !strings.HasSuffix(prefix, token) {
		prefix += token
	}
	return prefix
}

// ListingPages builds listing pages 1..pageNum in ascending order.
func ListingPages(rawURL, token string, pageNum int) []ListingPage {
	if pageNum <= 0 {
		return nil
	}
	prefix := ListingPrefix(rawURL, token)
	pages := make([]ListingPage, 0, pageNum)
	for page := 1; page <= pageNum; page++ {
		pages = append(pages, ListingPage{
			Number: page,
			URL:    fmt.Sprintf("%s-%d/", prefix, page),
		})
	}
	return pages
}
