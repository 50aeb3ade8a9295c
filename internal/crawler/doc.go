// Package crawler implements the listing-to-article traversal: the colly
// spider, the XPath extraction steps, listing pagination, and the pipeline
// that hands scraped records to a RecordStore.
package crawler
