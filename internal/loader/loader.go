// Package loader drives the paginated fetch-normalize-commit pipeline.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apicon/sneakerdb/internal/api"
	"github.com/apicon/sneakerdb/internal/catalog"
	"github.com/apicon/sneakerdb/internal/metrics"
)

// CatalogAPI fetches pages of raw catalog records.
type CatalogAPI interface {
	Sneakers(ctx context.Context, limit, page int) (api.Page, error)
}

// PageStore accepts one page of normalized rows at a time.
type PageStore interface {
	AppendPage(ctx context.Context, rows []catalog.Row) error
}

// Config controls Driver behavior.
type Config struct {
	PageSize int
	// Concurrency of 1 loads pages strictly in order; higher values run a
	// bounded worker pool. Store writes stay serialized either way.
	Concurrency  int
	PageRetries  int
	RetryBackoff time.Duration
}

// Summary reports what a run actually loaded, so an incomplete artifact is
// detectable without scanning logs.
type Summary struct {
	Count       int
	Pages       int
	PagesLoaded int
	PagesFailed int
	Records     int
}

// Driver pages through the catalog, normalizing and committing every record.
// A failed page is logged and skipped; the run continues.
type Driver struct {
	api        CatalogAPI
	store      PageStore
	normalizer *catalog.Normalizer
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Driver.
func New(catalogAPI CatalogAPI, store PageStore, normalizer *catalog.Normalizer, cfg Config, logger *zap.Logger) *Driver {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Driver{
		api:        catalogAPI,
		store:      store,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// LoadAll fetches page 0 to learn the total count, then loads every page.
// The returned Summary is valid even when some pages failed; the error is
// non-nil only for failures that abort the whole run.
func (d *Driver) LoadAll(ctx context.Context) (Summary, error) {
	// Page 0 is re-requested by the page loop below; the fetch cache makes
	// the second call free.
	first, err := d.api.Sneakers(ctx, d.cfg.PageSize, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch first page: %w", err)
	}
	summary := Summary{Count: first.Count}
	if first.Count == 0 {
		d.logger.Warn("catalog reports zero records")
		return summary, nil
	}
	lastPage := (first.Count + d.cfg.PageSize - 1) / d.cfg.PageSize - 1
	summary.Pages = lastPage + 1
	d.logger.Info("loading catalog",
		zap.Int("count", first.Count),
		zap.Int("pages", summary.Pages),
		zap.Int("concurrency", d.cfg.Concurrency),
	)

	if d.cfg.Concurrency > 1 {
		err = d.loadConcurrently(ctx, lastPage, &summary)
	} else {
		err = d.loadSequentially(ctx, lastPage, &summary)
	}
	if err != nil {
		return summary, err
	}

	d.logger.Info("catalog load finished",
		zap.Int("pages_loaded", summary.PagesLoaded),
		zap.Int("pages_failed", summary.PagesFailed),
		zap.Int("records", summary.Records),
	)
	return summary, nil
}

// loadSequentially fetches and commits one page at a time, in page order.
func (d *Driver) loadSequentially(ctx context.Context, lastPage int, summary *Summary) error {
	for page := 0; page <= lastPage; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Info("processing page", zap.Int("page", page), zap.Int("last_page", lastPage))
		d.loadAndRecord(ctx, page, summary, nil)
	}
	return nil
}

// loadConcurrently runs the page loop on a bounded worker pool. Only use
// this against providers that tolerate parallel requests; the shared rate
// limiter in the API client still applies.
func (d *Driver) loadConcurrently(ctx context.Context, lastPage int, summary *Summary) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)

	var mu sync.Mutex
	for page := 0; page <= lastPage; page++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.loadAndRecord(ctx, page, summary, &mu)
			return nil
		})
	}
	return g.Wait()
}

// loadAndRecord loads one page and folds the outcome into the summary. Page
// failures are recorded, not propagated.
func (d *Driver) loadAndRecord(ctx context.Context, page int, summary *Summary, mu *sync.Mutex) {
	start := time.Now()
	records, err := d.loadPageWithRetry(ctx, page)

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	if err != nil {
		d.logger.Error("page failed", zap.Int("page", page), zap.Error(err))
		metrics.ObservePage(metrics.PageFailed, time.Since(start))
		summary.PagesFailed++
		return
	}
	metrics.ObservePage(metrics.PageLoaded, time.Since(start))
	metrics.ObserveRecords(records)
	summary.PagesLoaded++
	summary.Records += records
}

func (d *Driver) loadPageWithRetry(ctx context.Context, page int) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= d.cfg.PageRetries; attempt++ {
		if attempt > 0 {
			d.logger.Warn("retrying page",
				zap.Int("page", page),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * d.cfg.RetryBackoff):
			}
		}
		records, err := d.loadPage(ctx, page)
		if err == nil {
			return records, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// loadPage fetches one page and commits its rows in a single transaction. A
// malformed record aborts the whole page: the page is the skip granularity.
func (d *Driver) loadPage(ctx context.Context, page int) (int, error) {
	p, err := d.api.Sneakers(ctx, d.cfg.PageSize, page)
	if err != nil {
		return 0, err
	}

	rows := make([]catalog.Row, 0, len(p.Results))
	for i, raw := range p.Results {
		doc, err := catalog.DecodeRecord(raw)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		rec, images, err := d.normalizer.Normalize(doc)
		if err != nil {
			observeMismatch(err)
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, catalog.Row{Record: rec, Images: images})
	}

	if err := d.store.AppendPage(ctx, rows); err != nil {
		return 0, fmt.Errorf("append page: %w", err)
	}
	return len(rows), nil
}

func observeMismatch(err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownBrand):
		metrics.ObserveVocabularyMismatch("brand")
	case errors.Is(err, catalog.ErrUnknownGender):
		metrics.ObserveVocabularyMismatch("gender")
	}
}
