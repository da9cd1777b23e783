package catalog

import "errors"

// Normalization errors. Per-record failures wrap one of these so callers can
// classify them with errors.Is.
var (
	ErrSchemaViolation = errors.New("record does not match the expected schema")
	ErrMissingSKU      = errors.New("record has an empty sku")
	ErrUnknownBrand    = errors.New("unknown brand")
	ErrUnknownGender   = errors.New("unknown gender")
	ErrDateFormat      = errors.New("malformed release date")
)
