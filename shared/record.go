package shared

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// DateLayout is the format layout for parsing raw record dates.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the format layout for raw record dates carrying a time component.
	DateTimeLayout = "2006-01-02 15:04:05"
)

// Canonical raw record field names. Source files may use differing names,
// the normalizer maps them to these before parsing.
const (
	FieldTicker      = "ticker"
	FieldTickerFull  = "ticker_full"
	FieldDate        = "date"
	FieldOpen        = "open"
	FieldHigh        = "high"
	FieldLow         = "low"
	FieldClose       = "close"
	FieldVolume      = "volume"
	FieldDividends   = "dividends"
	FieldSplitFactor = "split_factor"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldDay         = "day"
)

// RawRow represents a raw input row keyed by its source field names.
type RawRow map[string]gjson.Result

// RawRecord represents a single reported price row for a ticker.
type RawRecord struct {
	Ticker      string
	Date        time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.NullDecimal
	Dividends   decimal.Decimal
	SplitFactor decimal.Decimal
	TickerFull  string

	// Seq is the ingestion sequence number assigned by the reader. It fixes
	// the intra-group ordering used for first/last representative picks
	// during aggregation.
	Seq int64
}

// SummaryKey uniquely identifies a day of activity for a ticker.
type SummaryKey struct {
	Ticker string
	Date   string
}

// Key returns the daily grouping key for the record.
func (r *RawRecord) Key() SummaryKey {
	return SummaryKey{
		Ticker: r.Ticker,
		Date:   r.Date.Format(DateLayout),
	}
}

// DailySummary represents a day of aggregated activity for a ticker.
type DailySummary struct {
	Ticker       string
	Date         time.Time
	TotalVolume  decimal.NullDecimal
	AvgClose     decimal.Decimal
	RecordCount  int64
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal
	DividendsSum decimal.Decimal
	TickerFull   string
}

// EnrichedRecord represents a daily summary enriched with trailing metrics,
// partition columns and processing metadata. It is never mutated once the
// quality annotator has stamped it.
type EnrichedRecord struct {
	DailySummary

	// MovingAvg7 is the trailing 7-row moving average of the close.
	MovingAvg7 decimal.Decimal
	// PctChange is the day over day close change in percent. It is invalid
	// when the previous close is zero, leaving the change undefined.
	PctChange  decimal.NullDecimal
	PeriodHigh decimal.Decimal
	PeriodLow  decimal.Decimal

	PartitionDate string
	Year          int
	Month         int
	Day           int

	ProcessedAt time.Time
	IsValid     bool
}
