// Package catalog defines the sneaker record model and its normalization
// rules.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Closed-world key sets for raw records. Upstream contract drift (a missing
// or extra key) must fail loudly rather than load garbage.
var (
	recordKeys = keySet(
		"brand", "gender", "estimatedMarketValue", "releaseYear", "story",
		"id", "colorway", "silhouette", "sku", "image", "retailPrice",
		"links", "name", "releaseDate",
	)
	imageKeys = keySet("360", "original", "small", "thumbnail")
	linkKeys  = keySet("flightClub", "goat", "stadiumGoods", "stockX")
)

// Flattened sub-field orderings, also used by the round-trip accessors.
var (
	imageSizes = []string{"original", "small", "thumbnail"}
	linkSites  = []string{"flightClub", "goat", "stadiumGoods", "stockX"}
)

// NormalizedRecord is one validated, flattened catalog row keyed by SKU.
// Zero-valued optional fields ("" or 0) are absent and stored as NULL.
type NormalizedRecord struct {
	SKU        string
	Brand      string
	Gender     string
	Name       string
	Colorway   string
	Silhouette string
	Story      string

	ReleaseDate          string
	ReleaseYear          int64
	EstimatedMarketValue int64
	RetailPrice          int64

	ImageOriginal  string
	ImageSmall     string
	ImageThumbnail string

	LinkFlightClub   string
	LinkGoat         string
	LinkStadiumGoods string
	LinkStockX       string
}

// Image360Entry is one frame of a record's 360-degree image sequence.
type Image360Entry struct {
	SKU      string
	Position int
	Image    string
}

// Row pairs a normalized record with its child 360-image rows.
type Row struct {
	Record NormalizedRecord
	Images []Image360Entry
}

// ImageFields returns the non-empty flattened image URL fields keyed by size.
func (r NormalizedRecord) ImageFields() map[string]string {
	out := map[string]string{}
	for size, v := range map[string]string{
		"original":  r.ImageOriginal,
		"small":     r.ImageSmall,
		"thumbnail": r.ImageThumbnail,
	} {
		if v != "" {
			out[size] = v
		}
	}
	return out
}

// LinkFields returns the non-empty flattened marketplace link fields keyed by
// site.
func (r NormalizedRecord) LinkFields() map[string]string {
	out := map[string]string{}
	for site, v := range map[string]string{
		"flightClub":   r.LinkFlightClub,
		"goat":         r.LinkGoat,
		"stadiumGoods": r.LinkStadiumGoods,
		"stockX":       r.LinkStockX,
	} {
		if v != "" {
			out[site] = v
		}
	}
	return out
}

// DecodeRecord parses one raw catalog record, preserving numeric literals as
// json.Number so integer fields survive untouched.
func DecodeRecord(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func keySet(keys ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// validateKeys checks that doc holds exactly the expected key set.
func validateKeys(doc map[string]any, expected map[string]struct{}, what string) error {
	var missing, extra []string
	for k := range expected {
		if _, ok := doc[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range doc {
		if _, ok := expected[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return fmt.Errorf("%w: %s missing=%v extra=%v", ErrSchemaViolation, what, missing, extra)
}
