// Package store builds the sneaker catalog store in a scratch location and
// publishes it as a single durable SQLite file.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/apicon/sneakerdb/internal/catalog"
)

//go:embed schema.sql
var defaultSchema string

// Gender values excluded from the reference table. Normalization upstream
// already rewrites record-level values to the singular forms; keeping the
// plurals out of the lookup table enforces the same rule on the reference
// data itself.
var excludedGenders = map[string]struct{}{
	"MENS":   {},
	"WOMENS": {},
}

// Builder accumulates normalized rows into a scratch store. Writes are
// serialized internally, so concurrent page loaders may share one Builder.
type Builder struct {
	mu     sync.Mutex
	db     *sql.DB
	dir    string
	logger *zap.Logger
}

// NewBuilder opens a fresh scratch store in a temporary directory. The
// scratch store is discarded by Publish or Close.
func NewBuilder(logger *zap.Logger) (*Builder, error) {
	dir, err := os.MkdirTemp("", "sneakerdb-scratch-")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "sneakers.db"))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("open scratch store: %w", err)
	}
	// The store is single-writer; a second connection would only contend.
	db.SetMaxOpenConns(1)
	return &Builder{db: db, dir: dir, logger: logger}, nil
}

// CreateSchema runs the DDL script against the scratch store. An empty ddl
// falls back to the embedded default schema.
func (b *Builder) CreateSchema(ctx context.Context, ddl string) error {
	if ddl == "" {
		ddl = defaultSchema
	}
	b.logger.Info("creating store schema")
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertBrands fills the brand reference table.
func (b *Builder) InsertBrands(ctx context.Context, brands []string) error {
	return b.insertVocabulary(ctx, "INSERT INTO brands(brand) VALUES (?)", brands, nil)
}

// InsertGenders fills the gender reference table, excluding the raw plural
// forms.
func (b *Builder) InsertGenders(ctx context.Context, genders []string) error {
	return b.insertVocabulary(ctx, "INSERT INTO genders(gender) VALUES (?)", genders, excludedGenders)
}

func (b *Builder) insertVocabulary(ctx context.Context, query string, values []string, excluded map[string]struct{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vocabulary insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, v := range values {
		if _, skip := excluded[v]; skip {
			continue
		}
		if _, err := tx.ExecContext(ctx, query, v); err != nil {
			return fmt.Errorf("insert vocabulary value %q: %w", v, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vocabulary insert: %w", err)
	}
	return nil
}

// AppendPage commits one page worth of rows in a single transaction.
func (b *Builder) AppendPage(ctx context.Context, rows []catalog.Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin page append: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, row := range rows {
		if err := insertSneaker(ctx, tx, row.Record); err != nil {
			return err
		}
		for _, img := range row.Images {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO images_360(sku, position, image) VALUES (?, ?, ?)",
				img.SKU, img.Position, img.Image,
			); err != nil {
				return fmt.Errorf("insert 360 image for %s: %w", img.SKU, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit page: %w", err)
	}
	return nil
}

func insertSneaker(ctx context.Context, tx *sql.Tx, rec catalog.NormalizedRecord) error {
	const query = `
INSERT INTO sneakers (
	sku, brand, gender, name, colorway, silhouette, story,
	releaseDate, releaseYear, estimatedMarketValue, retailPrice,
	image_original, image_small, image_thumbnail,
	link_flightClub, link_goat, link_stadiumGoods, link_stockX
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	args := []any{
		rec.SKU,
		nullString(rec.Brand),
		nullString(rec.Gender),
		nullString(rec.Name),
		nullString(rec.Colorway),
		nullString(rec.Silhouette),
		nullString(rec.Story),
		nullString(rec.ReleaseDate),
		nullInt(rec.ReleaseYear),
		nullInt(rec.EstimatedMarketValue),
		nullInt(rec.RetailPrice),
		nullString(rec.ImageOriginal),
		nullString(rec.ImageSmall),
		nullString(rec.ImageThumbnail),
		nullString(rec.LinkFlightClub),
		nullString(rec.LinkGoat),
		nullString(rec.LinkStadiumGoods),
		nullString(rec.LinkStockX),
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert sneaker %s: %w", rec.SKU, err)
	}
	return nil
}

// BuildSearchIndex populates the full-text index from the final row set and
// optimizes it.
func (b *Builder) BuildSearchIndex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("populating search index")
	if _, err := b.db.ExecContext(ctx, `
INSERT INTO sneakers_fts(brand, name, silhouette, colorway, sku)
SELECT brand, name, silhouette, colorway, sku FROM sneakers`,
	); err != nil {
		return fmt.Errorf("populate search index: %w", err)
	}
	b.logger.Info("optimizing search index")
	if _, err := b.db.ExecContext(ctx,
		"INSERT INTO sneakers_fts(sneakers_fts) VALUES ('optimize')",
	); err != nil {
		return fmt.Errorf("optimize search index: %w", err)
	}
	return nil
}

// Publish copies the finished scratch store to target and discards the
// scratch. The copy lands under a temporary name and is renamed into place so
// a crashed publish never leaves a half-written artifact behind.
func (b *Builder) Publish(ctx context.Context, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	tmp := target + ".publish"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear stale publish file: %w", err)
	}

	b.logger.Info("publishing store", zap.String("target", target))
	if _, err := b.db.ExecContext(ctx, "VACUUM INTO ?", tmp); err != nil {
		return fmt.Errorf("copy store to %s: %w", tmp, err)
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close scratch store: %w", err)
	}
	b.db = nil
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove previous artifact: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("move artifact into place: %w", err)
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("discard scratch store: %w", err)
	}
	return nil
}

// Close releases the scratch store without publishing. Safe after Publish.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	if rmErr := os.RemoveAll(b.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
