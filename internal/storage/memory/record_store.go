package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/thegirl-crawler/internal/crawler"
)

// RecordStore keeps records in memory, deduplicated by URL.
type RecordStore struct {
	mu    sync.RWMutex
	byURL map[string]crawler.Record
	ids   map[string]struct{}
	order []string
}

// NewRecordStore creates an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		byURL: make(map[string]crawler.Record),
		ids:   make(map[string]struct{}),
	}
}

// Save stores the record unless its URL is already present.
func (s *RecordStore) Save(_ context.Context, record crawler.Record) (bool, error) {
	if record.ID == "" || record.URL == "" {
		return false, fmt.Errorf("record id and url are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[record.URL]; ok {
		return false, nil
	}
	if _, ok := s.ids[record.ID]; ok {
		return false, fmt.Errorf("record id %s already stored", record.ID)
	}
	s.byURL[record.URL] = cloneRecord(record)
	s.ids[record.ID] = struct{}{}
	s.order = append(s.order, record.URL)
	return true, nil
}

// Exists reports whether url is stored.
func (s *RecordStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[url]
	return ok, nil
}

// Count returns the number of stored records.
func (s *RecordStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byURL)), nil
}

// Records returns copies of the stored records in insertion order.
func (s *RecordStore) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, cloneRecord(s.byURL[url]))
	}
	return out
}

// Close is a no-op.
func (s *RecordStore) Close() error { return nil }

func cloneRecord(r crawler.Record) crawler.Record {
	if r.Title != nil {
		title := *r.Title
		r.Title = &title
	}
	return r
}
