package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// releaseDateSentinel marks records the provider has no real date for.
const releaseDateSentinel = "0001-01-01"

var releaseDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Normalizer validates raw catalog records against the brand and gender
// reference vocabularies and flattens them into store rows. The vocabularies
// are fixed at construction; one Normalizer serves a whole run.
type Normalizer struct {
	brands  map[string]struct{}
	genders map[string]struct{}
	logger  *zap.Logger
}

// NewNormalizer builds a Normalizer over the given reference vocabularies.
func NewNormalizer(brands, genders []string, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		brands:  keySet(brands...),
		genders: keySet(genders...),
		logger:  logger,
	}
}

// Normalize transforms one raw record into a validated row plus its ordered
// 360-image entries. Any violation of the closed schema or the reference
// vocabularies fails the record; a releaseYear/releaseDate disagreement is
// logged at error level but does not.
func (n *Normalizer) Normalize(raw map[string]any) (NormalizedRecord, []Image360Entry, error) {
	var rec NormalizedRecord

	if err := validateKeys(raw, recordKeys, "record"); err != nil {
		return rec, nil, err
	}
	images, err := subDocument(raw, "image", imageKeys)
	if err != nil {
		return rec, nil, err
	}
	links, err := subDocument(raw, "links", linkKeys)
	if err != nil {
		return rec, nil, err
	}

	// The provider's internal uuid is discarded; sku is the primary key.
	sku, err := stringField(raw, "sku")
	if err != nil {
		return rec, nil, err
	}
	if sku == "" {
		return rec, nil, ErrMissingSKU
	}
	rec.SKU = sku

	if rec.EstimatedMarketValue, err = positiveIntField(raw, "estimatedMarketValue"); err != nil {
		return rec, nil, err
	}
	if rec.RetailPrice, err = positiveIntField(raw, "retailPrice"); err != nil {
		return rec, nil, err
	}

	if rec.Story, err = stringField(raw, "story"); err != nil {
		return rec, nil, err
	}
	if rec.Colorway, err = stringField(raw, "colorway"); err != nil {
		return rec, nil, err
	}
	if rec.Silhouette, err = stringField(raw, "silhouette"); err != nil {
		return rec, nil, err
	}
	if rec.Name, err = stringField(raw, "name"); err != nil {
		return rec, nil, err
	}

	if rec.Gender, err = n.normalizeGender(raw); err != nil {
		return rec, nil, err
	}
	if rec.Brand, err = n.normalizeBrand(raw); err != nil {
		return rec, nil, err
	}

	if err := n.reconcileDate(raw, &rec); err != nil {
		return rec, nil, err
	}

	if err := flattenImages(images, &rec); err != nil {
		return rec, nil, err
	}
	if err := flattenLinks(links, &rec); err != nil {
		return rec, nil, err
	}

	entries, err := image360Entries(images, sku)
	if err != nil {
		return rec, nil, err
	}
	return rec, entries, nil
}

func (n *Normalizer) normalizeGender(raw map[string]any) (string, error) {
	v, err := stringField(raw, "gender")
	if err != nil {
		return "", err
	}
	v = strings.ToUpper(v)
	// MENS -> MEN, WOMENS -> WOMEN; the plural forms never appear in the
	// reference vocabulary.
	if strings.HasSuffix(v, "MENS") {
		v = strings.TrimSuffix(v, "S")
	}
	if _, ok := n.genders[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGender, v)
	}
	return v, nil
}

func (n *Normalizer) normalizeBrand(raw map[string]any) (string, error) {
	v, err := stringField(raw, "brand")
	if err != nil {
		return "", err
	}
	v = strings.ToUpper(v)
	if _, ok := n.brands[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBrand, v)
	}
	return v, nil
}

// reconcileDate applies the releaseDate/releaseYear repair rules: the
// 0001-01-01 sentinel counts as absent, a truncated "00YY" century is
// rewritten to "20YY", a missing year is filled from the date, and a
// two-digit year gets its century back. A remaining disagreement between the
// two fields is logged, not fatal.
func (n *Normalizer) reconcileDate(raw map[string]any, rec *NormalizedRecord) error {
	rd, err := stringField(raw, "releaseDate")
	if err != nil {
		return err
	}
	ry, err := intField(raw, "releaseYear")
	if err != nil {
		return err
	}
	if ry < 0 {
		ry = 0
	}

	if rd == releaseDateSentinel {
		rd = ""
	}
	if rd != "" {
		if !releaseDatePattern.MatchString(rd) {
			return fmt.Errorf("%w: %q", ErrDateFormat, rd)
		}
		if strings.HasPrefix(rd, "00") {
			rd = "20" + rd[2:]
		}
		potentialYear, err := strconv.ParseInt(rd[:4], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrDateFormat, rd)
		}
		if ry == 0 {
			n.logger.Info("filling releaseYear from releaseDate",
				zap.String("sku", rec.SKU),
				zap.Int64("year", potentialYear),
			)
			ry = potentialYear
		} else {
			if ry < 99 {
				// Same truncation as the date prefix.
				ry += 2000
			}
			if ry != potentialYear {
				n.logger.Error("releaseYear and releaseDate do not match",
					zap.String("sku", rec.SKU),
					zap.Int64("releaseYear", ry),
					zap.String("releaseDate", rd),
				)
			}
		}
	}

	rec.ReleaseDate = rd
	rec.ReleaseYear = ry
	return nil
}

func flattenImages(images map[string]any, rec *NormalizedRecord) error {
	for _, size := range imageSizes {
		v, err := stringField(images, size)
		if err != nil {
			return err
		}
		switch size {
		case "original":
			rec.ImageOriginal = v
		case "small":
			rec.ImageSmall = v
		case "thumbnail":
			rec.ImageThumbnail = v
		}
	}
	return nil
}

func flattenLinks(links map[string]any, rec *NormalizedRecord) error {
	for _, site := range linkSites {
		v, err := stringField(links, site)
		if err != nil {
			return err
		}
		switch site {
		case "flightClub":
			rec.LinkFlightClub = v
		case "goat":
			rec.LinkGoat = v
		case "stadiumGoods":
			rec.LinkStadiumGoods = v
		case "stockX":
			rec.LinkStockX = v
		}
	}
	return nil
}

func image360Entries(images map[string]any, sku string) ([]Image360Entry, error) {
	seq, ok := images["360"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: image.360 is not a list", ErrSchemaViolation)
	}
	if len(seq) == 0 {
		return nil, nil
	}
	entries := make([]Image360Entry, 0, len(seq))
	for pos, item := range seq {
		url, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: image.360[%d] is not a string", ErrSchemaViolation, pos)
		}
		entries = append(entries, Image360Entry{SKU: sku, Position: pos, Image: url})
	}
	return entries, nil
}

func subDocument(doc map[string]any, field string, expected map[string]struct{}) (map[string]any, error) {
	sub, ok := doc[field].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a document", ErrSchemaViolation, field)
	}
	if err := validateKeys(sub, expected, field); err != nil {
		return nil, err
	}
	return sub, nil
}

func stringField(doc map[string]any, field string) (string, error) {
	v, ok := doc[field].(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrSchemaViolation, field)
	}
	return strings.TrimSpace(v), nil
}

func intField(doc map[string]any, field string) (int64, error) {
	num, ok := doc[field].(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrSchemaViolation, field)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer: %v", ErrSchemaViolation, field, err)
	}
	return v, nil
}

// positiveIntField keeps only values > 0; zero or negative values are dropped
// rather than stored.
func positiveIntField(doc map[string]any, field string) (int64, error) {
	v, err := intField(doc, field)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, nil
	}
	return v, nil
}
