// Package main hosts the crawler entrypoint.
//
// A run walks the thegirl.ru tests listing: the start page is fetched, every
// listing page up to crawler.page_num is derived from its URL, article links
// are pulled from each listing page, and each article yields one record with
// a random id, the final URL, the title and the sanitized tags. Records land
// in the configured store (sqlite by default) and are deduplicated by URL, so
// repeated runs only add new articles.
//
// Optional plumbing:
//   - archive.backend=local|gcs keeps the raw HTML of newly stored articles.
//   - pubsub.topic_name announces each newly stored record on Pub/Sub.
//   - metrics.addr starts the operator HTTP server (/healthz, /readyz,
//     /metrics, /v1/records/count, /v1/records/exists, /v1/stats) for the
//     duration of the run.
//
// Run locally: go run ./cmd/crawler --config config.yaml, or rely on CRAWLER_*
// environment overrides such as CRAWLER_CRAWLER_PAGE_NUM=3.
package main
