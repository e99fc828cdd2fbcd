package quality

import (
	"time"

	"github.com/dnldd/refinery/shared"
)

// isValid reports whether the provided record passes the validity checks, a
// record is valid when it has a known total volume and a positive close.
func isValid(record *shared.EnrichedRecord) bool {
	return record.TotalVolume.Valid && record.Close.IsPositive()
}

// Annotate stamps partition columns, processing metadata and the validity
// flag on the provided enriched records. The records are annotated in place
// and are immutable afterwards.
func Annotate(records []shared.EnrichedRecord, processedAt time.Time) []shared.EnrichedRecord {
	for idx := range records {
		record := &records[idx]

		record.PartitionDate = record.Date.Format(shared.DateLayout)
		record.Year = record.Date.Year()
		record.Month = int(record.Date.Month())
		record.Day = record.Date.Day()

		record.ProcessedAt = processedAt
		record.IsValid = isValid(record)
	}

	return records
}
