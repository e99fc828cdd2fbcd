package aggregate

import (
	"slices"
	"strings"

	"github.com/dnldd/refinery/shared"
	"github.com/shopspring/decimal"
)

// summarize reduces the provided group of records sharing a (ticker, date)
// key into a daily summary. The group must be ordered by sequence number,
// the open and full ticker name are picked from the first record and the
// close from the last.
func summarize(group []shared.RawRecord) shared.DailySummary {
	first := group[0]
	last := group[len(group)-1]

	summary := shared.DailySummary{
		Ticker:      first.Ticker,
		Date:        first.Date,
		RecordCount: int64(len(group)),
		Open:        first.Open,
		Close:       last.Close,
		High:        first.High,
		Low:         first.Low,
		TickerFull:  first.TickerFull,
	}

	var closeSum decimal.Decimal
	for idx := range group {
		record := &group[idx]

		closeSum = closeSum.Add(record.Close)
		summary.DividendsSum = summary.DividendsSum.Add(record.Dividends)

		if record.Volume.Valid {
			// A group where every volume is null sums to a null total volume,
			// null contributions are skipped rather than zeroed.
			summary.TotalVolume = decimal.NewNullDecimal(
				summary.TotalVolume.Decimal.Add(record.Volume.Decimal))
		}

		if record.High.GreaterThan(summary.High) {
			summary.High = record.High
		}
		if record.Low.LessThan(summary.Low) {
			summary.Low = record.Low
		}
	}

	summary.AvgClose = closeSum.Div(decimal.NewFromInt(summary.RecordCount))

	return summary
}

// DailySummaries reduces the provided normalized records into one summary
// per (ticker, date) group. Groups are ordered internally by ingestion
// sequence number and the returned summaries are sorted by ticker then date.
func DailySummaries(records []shared.RawRecord) []shared.DailySummary {
	groups := make(map[shared.SummaryKey][]shared.RawRecord)
	for idx := range records {
		key := records[idx].Key()
		groups[key] = append(groups[key], records[idx])
	}

	summaries := make([]shared.DailySummary, 0, len(groups))
	for _, group := range groups {
		slices.SortFunc(group, func(a, b shared.RawRecord) int {
			switch {
			case a.Seq < b.Seq:
				return -1
			case a.Seq > b.Seq:
				return 1
			default:
				return 0
			}
		})

		summaries = append(summaries, summarize(group))
	}

	slices.SortFunc(summaries, func(a, b shared.DailySummary) int {
		if cmp := strings.Compare(a.Ticker, b.Ticker); cmp != 0 {
			return cmp
		}

		return a.Date.Compare(b.Date)
	})

	return summaries
}
