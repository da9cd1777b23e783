package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SearchResult is one full-text match from a published store.
type SearchResult struct {
	SKU        string
	Brand      string
	Name       string
	Silhouette string
	Colorway   string
}

// Search runs a full-text query against a published store. The query uses
// FTS5 match syntax; an exact SKU should be quoted.
func Search(ctx context.Context, dbPath, query string, limit int) ([]SearchResult, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dbPath, err)
	}
	defer func() {
		_ = db.Close()
	}()

	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
SELECT brand, name, silhouette, colorway, sku
FROM sneakers_fts
WHERE sneakers_fts MATCH ?
ORDER BY rank
LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var brand, name, silhouette, colorway sql.NullString
		if err := rows.Scan(&brand, &name, &silhouette, &colorway, &r.SKU); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		r.Brand = brand.String
		r.Name = name.String
		r.Silhouette = silhouette.String
		r.Colorway = colorway.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}
