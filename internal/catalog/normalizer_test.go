package catalog

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var testBrands = []string{"NIKE", "JORDAN", "ADIDAS"}

var testGenders = []string{"MEN", "WOMEN", "YOUTH", "INFANT", "UNISEX"}

// rawRecord renders a complete valid record, then applies overrides. An
// override with a nil value deletes the key.
func rawRecord(t *testing.T, overrides map[string]any) map[string]any {
	t.Helper()
	base := `{
		"id": "6410ba27-9d2c-4f4e-9f2b-59e4e3a0f3a1",
		"sku": "DD1391-100",
		"brand": "Nike",
		"gender": "men",
		"name": "Dunk Low Retro White Black",
		"colorway": "White/Black",
		"silhouette": "Dunk Low",
		"story": " A classic returns. ",
		"releaseDate": "2021-03-10",
		"releaseYear": 2021,
		"estimatedMarketValue": 250,
		"retailPrice": 100,
		"image": {
			"360": ["https://img.example/360/0.jpg", "https://img.example/360/1.jpg"],
			"original": "https://img.example/original.jpg",
			"small": "https://img.example/small.jpg",
			"thumbnail": ""
		},
		"links": {
			"flightClub": "https://flightclub.example/dd1391-100",
			"goat": "",
			"stadiumGoods": "  ",
			"stockX": "https://stockx.example/dd1391-100"
		}
	}`
	rec, err := DecodeRecord(json.RawMessage(base))
	require.NoError(t, err)
	for k, v := range overrides {
		if v == nil {
			delete(rec, k)
			continue
		}
		rec[k] = v
	}
	return rec
}

func newTestNormalizer(t *testing.T) (*Normalizer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	return NewNormalizer(testBrands, testGenders, zap.New(core)), logs
}

func TestNormalizeValidRecord(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	rec, images, err := n.Normalize(rawRecord(t, nil))
	require.NoError(t, err)

	require.Equal(t, "DD1391-100", rec.SKU)
	require.Equal(t, "NIKE", rec.Brand)
	require.Equal(t, "MEN", rec.Gender)
	require.Equal(t, "A classic returns.", rec.Story)
	require.Equal(t, "2021-03-10", rec.ReleaseDate)
	require.Equal(t, int64(2021), rec.ReleaseYear)
	require.Equal(t, int64(250), rec.EstimatedMarketValue)
	require.Equal(t, int64(100), rec.RetailPrice)

	// Empty-after-trim sub-fields are omitted, not stored as "".
	require.Equal(t, "https://img.example/original.jpg", rec.ImageOriginal)
	require.Equal(t, "https://img.example/small.jpg", rec.ImageSmall)
	require.Empty(t, rec.ImageThumbnail)
	require.Empty(t, rec.LinkGoat)
	require.Empty(t, rec.LinkStadiumGoods)
	require.Equal(t, "https://stockx.example/dd1391-100", rec.LinkStockX)

	require.Equal(t, []Image360Entry{
		{SKU: "DD1391-100", Position: 0, Image: "https://img.example/360/0.jpg"},
		{SKU: "DD1391-100", Position: 1, Image: "https://img.example/360/1.jpg"},
	}, images)
}

func TestNormalizeGender(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	cases := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "MENS", want: "MEN"},
		{in: "WOMENS", want: "WOMEN"},
		{in: "MEN", want: "MEN"},
		{in: "womens", want: "WOMEN"},
		{in: "unisex", want: "UNISEX"},
		{in: "toddler", wantErr: ErrUnknownGender},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			rec, _, err := n.Normalize(rawRecord(t, map[string]any{"gender": tc.in}))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, rec.Gender)
		})
	}
}

func TestNormalizeUnknownBrand(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	_, _, err := n.Normalize(rawRecord(t, map[string]any{"brand": "Yeezy Industries"}))
	require.ErrorIs(t, err, ErrUnknownBrand)
}

func TestNormalizeSchemaViolations(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	cases := []struct {
		name     string
		override map[string]any
	}{
		{name: "missing story", override: map[string]any{"story": nil}},
		{name: "extra key", override: map[string]any{"surprise": "hi"}},
		{name: "story not a string", override: map[string]any{"story": json.Number("7")}},
		{name: "price not a number", override: map[string]any{"retailPrice": "100"}},
		{name: "price not an integer", override: map[string]any{"retailPrice": json.Number("99.5")}},
		{name: "links not a document", override: map[string]any{"links": "nope"}},
		{name: "image missing thumbnail", override: map[string]any{"image": map[string]any{
			"360": []any{}, "original": "x", "small": "y",
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := n.Normalize(rawRecord(t, tc.override))
			require.ErrorIs(t, err, ErrSchemaViolation)
		})
	}
}

func TestNormalizeMissingSKU(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	_, _, err := n.Normalize(rawRecord(t, map[string]any{"sku": "  "}))
	require.ErrorIs(t, err, ErrMissingSKU)
}

func TestNormalizeNonPositiveMoneyFieldsOmitted(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	for _, v := range []string{"0", "-5"} {
		t.Run(v, func(t *testing.T) {
			rec, _, err := n.Normalize(rawRecord(t, map[string]any{
				"estimatedMarketValue": json.Number(v),
			}))
			require.NoError(t, err)
			require.Zero(t, rec.EstimatedMarketValue)
		})
	}
}

func TestReconcileDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		date       string
		year       string
		wantDate   string
		wantYear   int64
		wantErr    error
		wantLogged bool // error-level mismatch entry
	}{
		{
			name: "century rewrite", date: "0099-05-01", year: "0",
			wantDate: "2099-05-01", wantYear: 2099,
		},
		{
			name: "sentinel treated as absent", date: "0001-01-01", year: "0",
			wantDate: "", wantYear: 0,
		},
		{
			name: "empty date keeps year", date: "", year: "2015",
			wantDate: "", wantYear: 2015,
		},
		{
			name: "year filled from date", date: "2015-03-01", year: "0",
			wantDate: "2015-03-01", wantYear: 2015,
		},
		{
			name: "truncated year repaired", date: "2015-03-01", year: "15",
			wantDate: "2015-03-01", wantYear: 2015,
		},
		{
			name: "mismatch kept and logged", date: "2015-03-01", year: "2014",
			wantDate: "2015-03-01", wantYear: 2014, wantLogged: true,
		},
		{
			name: "malformed date", date: "March 1, 2015", year: "2015",
			wantErr: ErrDateFormat,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, logs := newTestNormalizer(t)
			rec, _, err := n.Normalize(rawRecord(t, map[string]any{
				"releaseDate": tc.date,
				"releaseYear": json.Number(tc.year),
			}))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantDate, rec.ReleaseDate)
			require.Equal(t, tc.wantYear, rec.ReleaseYear)

			mismatches := logs.FilterLevelExact(zapcore.ErrorLevel).Len()
			if tc.wantLogged {
				require.Equal(t, 1, mismatches, "expected one mismatch log entry")
			} else {
				require.Zero(t, mismatches, "unexpected error-level log entry")
			}
		})
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	raw := rawRecord(t, nil)
	rec, _, err := n.Normalize(raw)
	require.NoError(t, err)

	// Reconstructing the image/link documents from the flattened fields
	// recovers exactly the non-empty subset of the originals.
	require.Equal(t, map[string]string{
		"original": "https://img.example/original.jpg",
		"small":    "https://img.example/small.jpg",
	}, rec.ImageFields())
	require.Equal(t, map[string]string{
		"flightClub": "https://flightclub.example/dd1391-100",
		"stockX":     "https://stockx.example/dd1391-100",
	}, rec.LinkFields())
}

func TestDecodeRecordPreservesIntegers(t *testing.T) {
	t.Parallel()

	rec, err := DecodeRecord(json.RawMessage(`{"retailPrice": 12345678901}`))
	require.NoError(t, err)
	num, ok := rec["retailPrice"].(json.Number)
	require.True(t, ok, "expected json.Number, got %T", rec["retailPrice"])
	require.Equal(t, "12345678901", num.String())
}

func TestNormalizeErrorMessagesNameTheField(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	_, _, err := n.Normalize(rawRecord(t, map[string]any{"gender": "toddler"}))
	require.ErrorContains(t, err, fmt.Sprintf("%q", "TODDLER"))
}
