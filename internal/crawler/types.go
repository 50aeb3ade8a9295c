package crawler

// Record is one scraped article. It is the unit written to a RecordStore.
type Record struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	// Title is nil when the article page has no title node.
	Title *string `json:"title"`
	Tags  string  `json:"tags"`
}

// TitleOrEmpty returns the title text or an empty string when it is missing.
func (r Record) TitleOrEmpty() string {
	if r.Title == nil {
		return ""
	}
	return *r.Title
}

// ListingPage is a page number of the paginated listing and its URL.
type ListingPage struct {
	Number int
	URL    string
}

// Article pairs an extracted record with the raw page body it came from.
type Article struct {
	Record Record
	Body   []byte
}

// Stats summarizes a crawl run.
type Stats struct {
	ListingPages  int64 `json:"listing_pages"`
	Articles      int64 `json:"articles"`
	Stored        int64 `json:"stored"`
	Duplicates    int64 `json:"duplicates"`
	FetchErrors   int64 `json:"fetch_errors"`
	ExtractErrors int64 `json:"extract_errors"`
	StoreErrors   int64 `json:"store_errors"`
}

// RecordNotification is published for every newly stored record.
type RecordNotification struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Title         *string `json:"title"`
	Tags          string  `json:"tags"`
	ArchiveURI    string  `json:"archive_uri,omitempty"`
	ContentSHA256 string  `json:"content_sha256,omitempty"`
	StoredAt      string  `json:"stored_at"`
}
