package window

import (
	"slices"
	"strings"

	"github.com/dnldd/refinery/shared"
	"github.com/shopspring/decimal"
)

const (
	// MovingAverageSize is the number of rows covered by the trailing moving
	// average window. The window is row based, calendar gaps in trading days
	// are not backfilled.
	MovingAverageSize = 7
)

var hundred = decimal.NewFromInt(100)

// pctChange computes the day over day close change in percent. The change
// is zero for the first row of a sequence and undefined when the previous
// close is zero.
func pctChange(current, previous decimal.Decimal, first bool) decimal.NullDecimal {
	if first {
		return decimal.NewNullDecimal(decimal.Zero)
	}

	if previous.IsZero() {
		return decimal.NullDecimal{}
	}

	change := current.Sub(previous).Div(previous).Mul(hundred)

	return decimal.NewNullDecimal(change)
}

// enrichTicker computes trailing and whole history metrics for a single
// ticker's summaries. The summaries must be sorted ascending by date.
func enrichTicker(summaries []shared.DailySummary) []shared.EnrichedRecord {
	periodHigh := summaries[0].High
	periodLow := summaries[0].Low
	for idx := range summaries {
		if summaries[idx].High.GreaterThan(periodHigh) {
			periodHigh = summaries[idx].High
		}
		if summaries[idx].Low.LessThan(periodLow) {
			periodLow = summaries[idx].Low
		}
	}

	enriched := make([]shared.EnrichedRecord, 0, len(summaries))
	closes := make([]decimal.Decimal, 0, len(summaries))

	for idx := range summaries {
		closes = append(closes, summaries[idx].Close)

		start := idx - (MovingAverageSize - 1)
		if start < 0 {
			start = 0
		}
		win := closes[start : idx+1]

		record := shared.EnrichedRecord{
			DailySummary: summaries[idx],
			MovingAvg7:   decimal.Avg(win[0], win[1:]...),
			PctChange:    pctChange(summaries[idx].Close, closes[max(0, idx-1)], idx == 0),
			PeriodHigh:   periodHigh,
			PeriodLow:    periodLow,
		}

		enriched = append(enriched, record)
	}

	return enriched
}

// Enrich computes per ticker trailing and whole history metrics for the
// provided summaries. Each ticker's sequence is materialized and sorted
// ascending by date before any metric is emitted, later rows depend on a
// sequential scan of earlier ones. The returned records are ordered by
// ticker then date.
func Enrich(summaries []shared.DailySummary) []shared.EnrichedRecord {
	tickers := make(map[string][]shared.DailySummary)
	for idx := range summaries {
		tickers[summaries[idx].Ticker] = append(tickers[summaries[idx].Ticker], summaries[idx])
	}

	names := make([]string, 0, len(tickers))
	for name := range tickers {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)

	enriched := make([]shared.EnrichedRecord, 0, len(summaries))
	for _, name := range names {
		sequence := tickers[name]
		slices.SortFunc(sequence, func(a, b shared.DailySummary) int {
			return a.Date.Compare(b.Date)
		})

		enriched = append(enriched, enrichTicker(sequence)...)
	}

	return enriched
}
