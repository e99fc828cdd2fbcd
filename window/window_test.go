package window

import (
	"testing"
	"time"

	"github.com/dnldd/refinery/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

// summarySequence builds a date ordered summary sequence for the provided
// ticker from the given closes, the high and low of each day mirror the close.
func summarySequence(ticker string, start time.Time, closes []string) []shared.DailySummary {
	summaries := make([]shared.DailySummary, 0, len(closes))
	for idx := range closes {
		close := decimal.RequireFromString(closes[idx])
		summaries = append(summaries, shared.DailySummary{
			Ticker: ticker,
			Date:   start.AddDate(0, 0, idx),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
		})
	}

	return summaries
}

func TestEnrich(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	closes := []string{"10.00", "10.50", "9.80", "11.00", "10.90", "10.95", "11.20", "11.10"}

	enriched := Enrich(summarySequence("XYZ4", start, closes))
	assert.Equal(t, len(closes), len(enriched))

	// Ensure the percent change is zero at the first row of a sequence.
	assert.True(t, enriched[0].PctChange.Valid)
	assert.True(t, enriched[0].PctChange.Decimal.IsZero())

	// Ensure the percent change at day 3 matches the close lag computation.
	assert.Equal(t, "-6.667", enriched[2].PctChange.Decimal.Round(3).String())

	// Ensure the trailing moving average at day 8 covers days 2 through 8
	// only, the window is row based with a fixed size of 7.
	assert.Equal(t, "10.779", enriched[7].MovingAvg7.Round(3).String())

	// Ensure the moving average of the first row is its own close.
	assert.True(t, enriched[0].MovingAvg7.Equal(decimal.RequireFromString("10.00")))

	// Ensure the whole history extremes are broadcast identically to every
	// row of the ticker and equal the true extremes of the sequence.
	periodHigh := decimal.RequireFromString("11.20")
	periodLow := decimal.RequireFromString("9.80")
	for idx := range enriched {
		assert.True(t, enriched[idx].PeriodHigh.Equal(periodHigh))
		assert.True(t, enriched[idx].PeriodLow.Equal(periodLow))
	}

	// Ensure every moving average lies within the bounds of its window.
	for idx := range enriched {
		lo := idx - (MovingAverageSize - 1)
		if lo < 0 {
			lo = 0
		}

		winMin := decimal.RequireFromString(closes[lo])
		winMax := winMin
		for widx := lo; widx <= idx; widx++ {
			close := decimal.RequireFromString(closes[widx])
			if close.LessThan(winMin) {
				winMin = close
			}
			if close.GreaterThan(winMax) {
				winMax = close
			}
		}

		assert.True(t, enriched[idx].MovingAvg7.GreaterThanOrEqual(winMin))
		assert.True(t, enriched[idx].MovingAvg7.LessThanOrEqual(winMax))
	}
}

func TestEnrichZeroPreviousClose(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// Ensure the percent change following a zero close is undefined rather
	// than a division by zero artifact.
	enriched := Enrich(summarySequence("XYZ4", start, []string{"10.00", "0", "12.00"}))
	assert.Equal(t, 3, len(enriched))
	assert.True(t, enriched[0].PctChange.Valid)
	assert.True(t, enriched[1].PctChange.Valid)
	assert.Equal(t, "-100", enriched[1].PctChange.Decimal.String())
	assert.False(t, enriched[2].PctChange.Valid)
}

func TestEnrichMultipleTickers(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	summaries := summarySequence("VALE3", start, []string{"61.20", "60.80"})
	summaries = append(summaries, summarySequence("PETR4", start, []string{"37.50", "38.00", "36.90"})...)

	// Ensure tickers are enriched independently and the output is ordered
	// by ticker then date.
	enriched := Enrich(summaries)
	assert.Equal(t, 5, len(enriched))
	assert.Equal(t, "PETR4", enriched[0].Ticker)
	assert.Equal(t, "VALE3", enriched[3].Ticker)

	petr4High := decimal.RequireFromString("38.00")
	for idx := range enriched[:3] {
		assert.True(t, enriched[idx].PeriodHigh.Equal(petr4High))
	}

	vale3High := decimal.RequireFromString("61.20")
	for _, record := range enriched[3:] {
		assert.True(t, record.PeriodHigh.Equal(vale3High))
	}

	// Ensure each ticker's scan restarts, the first row of every ticker has
	// a zero percent change.
	assert.True(t, enriched[0].PctChange.Decimal.IsZero())
	assert.True(t, enriched[3].PctChange.Decimal.IsZero())
}

func TestEnrichUnsortedInput(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	summaries := summarySequence("XYZ4", start, []string{"10.00", "10.50", "9.80"})

	// Ensure sequences are sorted by date before any metric is computed.
	unsorted := []shared.DailySummary{summaries[2], summaries[0], summaries[1]}
	enriched := Enrich(unsorted)

	assert.Equal(t, 3, len(enriched))
	assert.True(t, enriched[0].Date.Before(enriched[1].Date))
	assert.True(t, enriched[1].Date.Before(enriched[2].Date))
	assert.True(t, enriched[0].PctChange.Decimal.IsZero())
	assert.Equal(t, "-6.667", enriched[2].PctChange.Decimal.Round(3).String())
}
