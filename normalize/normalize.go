package normalize

import (
	"github.com/dnldd/refinery/shared"
)

// renameTable maps known source field names to their canonical names. The
// source universe covers the B3 exchange feed names alongside the canonical
// names themselves.
var renameTable = map[string]string{
	"Fechamento":     shared.FieldClose,
	"Volume":         shared.FieldVolume,
	"Abertura":       shared.FieldOpen,
	"Maxima":         shared.FieldHigh,
	"Minima":         shared.FieldLow,
	"Data":           shared.FieldDate,
	"Ticker":         shared.FieldTicker,
	"TickerCompleto": shared.FieldTickerFull,
	"Dividendos":     shared.FieldDividends,
	"Desdobramentos": shared.FieldSplitFactor,
	"Ano":            shared.FieldYear,
	"Mes":            shared.FieldMonth,
	"Dia":            shared.FieldDay,
}

// Apply canonicalizes the field names of the provided row. Known source
// names are renamed, absent source names are skipped and unknown fields
// pass through unchanged. Renames are independent of each other, the
// operation is order agnostic.
func Apply(row shared.RawRow) shared.RawRow {
	normalized := make(shared.RawRow, len(row))
	for field, value := range row {
		canonical, ok := renameTable[field]
		if !ok {
			canonical = field
		}

		if _, exists := normalized[canonical]; exists && canonical != field {
			// A field already carrying its canonical name takes precedence
			// over a renamed alias of it.
			continue
		}

		normalized[canonical] = value
	}

	return normalized
}

// ApplyAll canonicalizes the field names of all provided rows.
func ApplyAll(rows []shared.RawRow) []shared.RawRow {
	normalized := make([]shared.RawRow, len(rows))
	for idx := range rows {
		normalized[idx] = Apply(rows[idx])
	}

	return normalized
}
