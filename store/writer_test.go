package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnldd/refinery/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
)

// enriched builds an annotated enriched record for the provided ticker and date.
func enriched(ticker, date string, close string) shared.EnrichedRecord {
	day, _ := time.Parse(shared.DateLayout, date)
	closeDec := decimal.RequireFromString(close)

	return shared.EnrichedRecord{
		DailySummary: shared.DailySummary{
			Ticker:      ticker,
			Date:        day,
			Open:        closeDec,
			High:        closeDec,
			Low:         closeDec,
			Close:       closeDec,
			AvgClose:    closeDec,
			RecordCount: 1,
			TotalVolume: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		},
		MovingAvg7:    closeDec,
		PctChange:     decimal.NewNullDecimal(decimal.Zero),
		PeriodHigh:    closeDec,
		PeriodLow:     closeDec,
		PartitionDate: date,
		Year:          day.Year(),
		Month:         int(day.Month()),
		Day:           day.Day(),
		ProcessedAt:   time.Date(2024, 3, 6, 9, 30, 0, 0, time.UTC),
		IsValid:       true,
	}
}

// readPartition reads back the rows of the provided partition file.
func readPartition(t *testing.T, path string) []enrichedRow {
	t.Helper()

	fr, err := local.NewLocalFileReader(path)
	assert.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(enrichedRow), 1)
	assert.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]enrichedRow, pr.GetNumRows())
	err = pr.Read(&rows)
	assert.NoError(t, err)

	return rows
}

func TestWriter(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "refined")

	logger := zerolog.Nop()
	writer := NewWriter(&WriterConfig{
		OutputDir: outputDir,
		Logger:    &logger,
	})

	records := []shared.EnrichedRecord{
		enriched("PETR4", "2024-01-02", "37.50"),
		enriched("PETR4", "2024-01-03", "38.00"),
		enriched("VALE3", "2024-01-02", "61.20"),
	}

	// Ensure each (partition date, ticker) pair becomes its own partition.
	partitions, err := writer.Write(context.Background(), records)
	assert.NoError(t, err)
	assert.Equal(t, 3, partitions)

	path := filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=PETR4", partitionFile)
	rows := readPartition(t, path)
	assert.Equal(t, 1, len(rows))
	assert.Equal(t, "PETR4", rows[0].Ticker)
	assert.Equal(t, "2024-01-02", rows[0].PartitionDate)
	assert.Equal(t, 37.5, rows[0].Close)
	assert.Equal(t, int32(2024), rows[0].Year)
	assert.True(t, rows[0].IsValid)
	assert.True(t, rows[0].TotalVolume != nil)

	// Ensure a null percent change is written as a null column value.
	undefined := enriched("XYZ4", "2024-01-02", "10.00")
	undefined.PctChange = decimal.NullDecimal{}
	_, err = writer.Write(context.Background(), []shared.EnrichedRecord{undefined})
	assert.NoError(t, err)

	path = filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=XYZ4", partitionFile)
	rows = readPartition(t, path)
	assert.Equal(t, 1, len(rows))
	assert.Equal(t, (*float64)(nil), rows[0].PctChange)
}

func TestWriterOverwrite(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "refined")

	logger := zerolog.Nop()
	writer := NewWriter(&WriterConfig{
		OutputDir: outputDir,
		Logger:    &logger,
	})

	// Write an initial dataset with two tickers.
	initial := []shared.EnrichedRecord{
		enriched("PETR4", "2024-01-02", "37.50"),
		enriched("VALE3", "2024-01-02", "61.20"),
	}
	_, err := writer.Write(context.Background(), initial)
	assert.NoError(t, err)

	// Ensure a rerun replaces the entire dataset, partitions absent from the
	// new run's output are destroyed.
	rerun := []shared.EnrichedRecord{
		enriched("PETR4", "2024-01-02", "37.50"),
	}
	_, err = writer.Write(context.Background(), rerun)
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=PETR4", partitionFile))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=VALE3"))
	assert.True(t, os.IsNotExist(err))

	// Ensure no staging leftovers remain beside the dataset.
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func TestWriterRejectsPathHostileKeys(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "refined")

	logger := zerolog.Nop()
	writer := NewWriter(&WriterConfig{
		OutputDir: outputDir,
		Logger:    &logger,
	})

	initial := []shared.EnrichedRecord{enriched("PETR4", "2024-01-02", "37.50")}
	_, err := writer.Write(context.Background(), initial)
	assert.NoError(t, err)

	// Ensure tickers carrying path separators or dot traversal are rejected
	// before any partition directory is built, they would escape the
	// dataset root.
	hostile := []string{"../PETR4", "a/b", `a\b`, ".", ".."}
	for _, ticker := range hostile {
		record := enriched("PETR4", "2024-01-02", "37.50")
		record.Ticker = ticker

		_, err = writer.Write(context.Background(), []shared.EnrichedRecord{record})
		assert.Error(t, err)
	}

	// Ensure a rejected run leaves the live dataset untouched and writes
	// nothing outside it.
	_, err = os.Stat(filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=PETR4", partitionFile))
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
}

func TestWriterFailurePreservesPrevious(t *testing.T) {
	dir := t.TempDir()
	outputDir := filepath.Join(dir, "refined")

	logger := zerolog.Nop()
	writer := NewWriter(&WriterConfig{
		OutputDir: outputDir,
		Logger:    &logger,
	})

	initial := []shared.EnrichedRecord{enriched("PETR4", "2024-01-02", "37.50")}
	_, err := writer.Write(context.Background(), initial)
	assert.NoError(t, err)

	// Ensure a cancelled run fails without touching the live dataset.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = writer.Write(ctx, []shared.EnrichedRecord{enriched("VALE3", "2024-01-02", "61.20")})
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(outputDir, "partition_date=2024-01-02", "ticker=PETR4", partitionFile))
	assert.NoError(t, err)
}
