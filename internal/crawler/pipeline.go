package crawler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/thegirl-crawler/internal/clock/system"
	"github.com/JakeFAU/thegirl-crawler/internal/metrics"
)

const (
	archiveContentType = "text/html; charset=utf-8"
	tracerName         = "github.com/JakeFAU/thegirl-crawler/internal/crawler"
)

// Pipeline is the persistence sink for scraped articles. Every article goes
// to the RecordStore; newly stored ones are optionally archived and announced.
type Pipeline struct {
	store         RecordStore
	archive       BlobStore
	archivePrefix string
	publisher     Publisher
	topic         string
	clock         Clock
	logger        *zap.Logger
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithArchive keeps the raw HTML of newly stored articles under prefix.
func WithArchive(store BlobStore, prefix string) PipelineOption {
	return func(p *Pipeline) {
		p.archive = store
		p.archivePrefix = prefix
	}
}

// WithPublisher publishes a RecordNotification to topic for each new record.
func WithPublisher(publisher Publisher, topic string) PipelineOption {
	return func(p *Pipeline) {
		p.publisher = publisher
		p.topic = topic
	}
}

// WithClock overrides the clock used for archive paths and notifications.
func WithClock(clock Clock) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// NewPipeline builds a Pipeline around store.
func NewPipeline(store RecordStore, logger *zap.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		store:  store,
		clock:  system.New(time.UTC),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	metrics.Init()
	return p, nil
}

// Process stores the article record and reports whether it was new.
// Duplicates are skipped without error; store failures are returned.
func (p *Pipeline) Process(ctx context.Context, article Article) (bool, error) {
	record := article.Record
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.Process")
	defer span.End()
	span.SetAttributes(attribute.String("record.url", record.URL))

	stored, err := p.store.Save(ctx, record)
	if err != nil {
		metrics.ObserveRecord(metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return false, fmt.Errorf("save record %s: %w", record.URL, err)
	}
	span.SetAttributes(attribute.Bool("record.stored", stored))
	if !stored {
		metrics.ObserveRecord(metrics.OutcomeDuplicate)
		p.logger.Debug("Skipping duplicate record", zap.String("url", record.URL))
		return false, nil
	}
	metrics.ObserveRecord(metrics.OutcomeStored)

	now := p.clock.Now()
	archiveURI := p.archiveBody(ctx, record, article.Body, now)
	p.publish(ctx, record, archiveURI, contentHash(article.Body), now)
	return true, nil
}

func (p *Pipeline) archiveBody(ctx context.Context, record Record, body []byte, now time.Time) string {
	if p.archive == nil || len(body) == 0 {
		return ""
	}
	objectName := path.Join(p.archivePrefix, now.Format("2006-01-02"), record.ID+".html")
	uri, err := p.archive.PutObject(ctx, objectName, archiveContentType, bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("Failed to archive article", zap.String("url", record.URL), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) publish(ctx context.Context, record Record, archiveURI, hash string, now time.Time) {
	if p.publisher == nil || p.topic == "" {
		return
	}
	payload := RecordNotification{
		ID:            record.ID,
		URL:           record.URL,
		Title:         record.Title,
		Tags:          record.Tags,
		ArchiveURI:    archiveURI,
		ContentSHA256: hash,
		StoredAt:      now.Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.topic, payload); err != nil {
		p.logger.Warn("Failed to publish record notification",
			zap.String("url", record.URL),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
	}
}

func contentHash(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
