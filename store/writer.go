package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dnldd/refinery/shared"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	// maxWriters is the default maximum number of concurrent partition writers.
	maxWriters = 8
	// partitionFile is the file name of the data file inside a partition.
	partitionFile = "part-00000.parquet"
)

// PartitionKeys are the partition columns of the written dataset layout.
var PartitionKeys = []string{"partition_date", "ticker"}

// enrichedRow is the parquet row layout for an enriched record.
type enrichedRow struct {
	Ticker        string   `parquet:"name=ticker, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TickerFull    string   `parquet:"name=ticker_full, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date          string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TotalVolume   *float64 `parquet:"name=total_volume, type=DOUBLE, repetitiontype=OPTIONAL"`
	AvgClose      float64  `parquet:"name=avg_close, type=DOUBLE"`
	RecordCount   int64    `parquet:"name=record_count, type=INT64"`
	Open          float64  `parquet:"name=open, type=DOUBLE"`
	High          float64  `parquet:"name=high, type=DOUBLE"`
	Low           float64  `parquet:"name=low, type=DOUBLE"`
	Close         float64  `parquet:"name=close, type=DOUBLE"`
	DividendsSum  float64  `parquet:"name=dividends_sum, type=DOUBLE"`
	MovingAvg7    float64  `parquet:"name=moving_avg_7, type=DOUBLE"`
	PctChange     *float64 `parquet:"name=pct_change, type=DOUBLE, repetitiontype=OPTIONAL"`
	PeriodHigh    float64  `parquet:"name=period_high, type=DOUBLE"`
	PeriodLow     float64  `parquet:"name=period_low, type=DOUBLE"`
	PartitionDate string   `parquet:"name=partition_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year          int32    `parquet:"name=year, type=INT32"`
	Month         int32    `parquet:"name=month, type=INT32"`
	Day           int32    `parquet:"name=day, type=INT32"`
	ProcessedAt   int64    `parquet:"name=processed_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	IsValid       bool     `parquet:"name=is_valid, type=BOOLEAN"`
}

// newEnrichedRow converts the provided enriched record to its parquet row layout.
func newEnrichedRow(record *shared.EnrichedRecord) *enrichedRow {
	row := &enrichedRow{
		Ticker:        record.Ticker,
		TickerFull:    record.TickerFull,
		Date:          record.Date.Format(shared.DateLayout),
		AvgClose:      record.AvgClose.InexactFloat64(),
		RecordCount:   record.RecordCount,
		Open:          record.Open.InexactFloat64(),
		High:          record.High.InexactFloat64(),
		Low:           record.Low.InexactFloat64(),
		Close:         record.Close.InexactFloat64(),
		DividendsSum:  record.DividendsSum.InexactFloat64(),
		MovingAvg7:    record.MovingAvg7.InexactFloat64(),
		PeriodHigh:    record.PeriodHigh.InexactFloat64(),
		PeriodLow:     record.PeriodLow.InexactFloat64(),
		PartitionDate: record.PartitionDate,
		Year:          int32(record.Year),
		Month:         int32(record.Month),
		Day:           int32(record.Day),
		ProcessedAt:   record.ProcessedAt.UnixMilli(),
		IsValid:       record.IsValid,
	}

	if record.TotalVolume.Valid {
		volume := record.TotalVolume.Decimal.InexactFloat64()
		row.TotalVolume = &volume
	}
	if record.PctChange.Valid {
		change := record.PctChange.Decimal.InexactFloat64()
		row.PctChange = &change
	}

	return row
}

// partitionKey identifies a physical output partition.
type partitionKey struct {
	PartitionDate string
	Ticker        string
}

// path returns the partition's directory path relative to the dataset root.
func (k *partitionKey) path() string {
	return filepath.Join(
		fmt.Sprintf("partition_date=%s", k.PartitionDate),
		fmt.Sprintf("ticker=%s", k.Ticker),
	)
}

// validate asserts the partition key components are usable as directory
// names, a component carrying a path separator or dot traversal would
// escape the dataset root.
func (k *partitionKey) validate() error {
	for _, component := range []string{k.PartitionDate, k.Ticker} {
		switch {
		case component == "", component == ".", component == "..":
			return fmt.Errorf("invalid partition key component %q", component)
		case strings.ContainsAny(component, `/\`):
			return fmt.Errorf("partition key component %q contains a path separator", component)
		}
	}

	return nil
}

// WriterConfig represents the configuration for the partition writer.
type WriterConfig struct {
	// OutputDir is the live dataset directory, replaced wholesale on every run.
	OutputDir string
	// MaxWriters caps the number of concurrent partition writers.
	MaxWriters int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Writer persists enriched records as a partitioned, snappy compressed
// parquet dataset.
type Writer struct {
	cfg *WriterConfig
}

// NewWriter initializes a new partition writer.
func NewWriter(cfg *WriterConfig) *Writer {
	if cfg.MaxWriters <= 0 {
		cfg.MaxWriters = maxWriters
	}

	return &Writer{
		cfg: cfg,
	}
}

// writePartition writes the provided records of a single partition to a
// parquet file under the given dataset root.
func writePartition(root string, key partitionKey, records []*shared.EnrichedRecord) error {
	dir := filepath.Join(root, key.path())
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("creating partition directory '%s': %w", dir, err)
	}

	path := filepath.Join(dir, partitionFile)
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating partition file '%s': %w", path, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(enrichedRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("creating parquet writer for '%s': %w", path, err)
	}

	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for idx := range records {
		err = pw.Write(newEnrichedRow(records[idx]))
		if err != nil {
			fw.Close()
			return fmt.Errorf("writing parquet row to '%s': %w", path, err)
		}
	}

	err = pw.WriteStop()
	if err != nil {
		fw.Close()
		return fmt.Errorf("finalizing parquet file '%s': %w", path, err)
	}

	err = fw.Close()
	if err != nil {
		return fmt.Errorf("closing partition file '%s': %w", path, err)
	}

	return nil
}

// partition groups the provided records by their output partition.
func partition(records []shared.EnrichedRecord) map[partitionKey][]*shared.EnrichedRecord {
	partitions := make(map[partitionKey][]*shared.EnrichedRecord)
	for idx := range records {
		key := partitionKey{
			PartitionDate: records[idx].PartitionDate,
			Ticker:        records[idx].Ticker,
		}

		partitions[key] = append(partitions[key], &records[idx])
	}

	return partitions
}

// stage writes all partitions under the provided staging root. Distinct
// partitions are written concurrently, each partition has a single writer.
func (w *Writer) stage(ctx context.Context, root string, partitions map[partitionKey][]*shared.EnrichedRecord) error {
	workers := make(chan struct{}, w.cfg.MaxWriters)
	writeErrs := make(chan error, len(partitions))

	var wg sync.WaitGroup
	for key, records := range partitions {
		if err := ctx.Err(); err != nil {
			break
		}

		workers <- struct{}{}
		wg.Add(1)
		go func(key partitionKey, records []*shared.EnrichedRecord) {
			defer func() {
				<-workers
				wg.Done()
			}()

			err := writePartition(root, key, records)
			if err != nil {
				writeErrs <- err
			}
		}(key, records)
	}

	wg.Wait()
	close(writeErrs)

	var errs error
	for err := range writeErrs {
		errs = errors.Join(errs, err)
	}
	if errs != nil {
		return errs
	}

	return ctx.Err()
}

// Write persists the provided enriched records, replacing the entire live
// dataset with this run's output. The run is staged under a temporary
// sibling directory and swapped into place only once every partition has
// been written, a failed run leaves the previous dataset untouched.
func (w *Writer) Write(ctx context.Context, records []shared.EnrichedRecord) (int, error) {
	partitions := partition(records)

	for key := range partitions {
		err := key.validate()
		if err != nil {
			return 0, fmt.Errorf("validating partition key: %w", err)
		}
	}

	parent := filepath.Dir(filepath.Clean(w.cfg.OutputDir))
	err := os.MkdirAll(parent, 0o755)
	if err != nil {
		return 0, fmt.Errorf("creating dataset parent directory: %w", err)
	}

	stageDir, err := os.MkdirTemp(parent, ".refined-stage-*")
	if err != nil {
		return 0, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stageDir)

	err = w.stage(ctx, stageDir, partitions)
	if err != nil {
		return 0, fmt.Errorf("staging dataset: %w", err)
	}

	err = os.RemoveAll(w.cfg.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("removing previous dataset: %w", err)
	}

	err = os.Rename(stageDir, w.cfg.OutputDir)
	if err != nil {
		return 0, fmt.Errorf("publishing dataset: %w", err)
	}

	w.cfg.Logger.Info().Msgf("wrote %d records across %d partitions to %s",
		len(records), len(partitions), w.cfg.OutputDir)

	return len(partitions), nil
}
