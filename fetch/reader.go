package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dnldd/refinery/normalize"
	"github.com/dnldd/refinery/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ReaderConfig represents the configuration for the raw record reader.
type ReaderConfig struct {
	// InputPath is the preferred raw input file path.
	InputPath string
	// RawDir is the directory scanned for raw input files when the
	// preferred input path cannot be read.
	RawDir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Reader loads raw records from the storage collaborator. It is safe for
// concurrent use, sequence numbers stay unique across overlapping reads.
type Reader struct {
	cfg *ReaderConfig
	seq atomic.Int64
}

// NewReader initializes a new raw record reader.
func NewReader(cfg *ReaderConfig) *Reader {
	return &Reader{
		cfg: cfg,
	}
}

// parseRows extracts raw rows from the provided json document. The document
// is either a top level array of rows or an object carrying a records array.
func parseRows(doc *gjson.Result) []shared.RawRow {
	data := doc.Array()
	if !doc.IsArray() {
		data = doc.Get("records").Array()
	}

	rows := make([]shared.RawRow, 0, len(data))
	for idx := range data {
		row := make(shared.RawRow)
		data[idx].ForEach(func(key, value gjson.Result) bool {
			row[key.String()] = value
			return true
		})

		rows = append(rows, row)
	}

	return rows
}

// parseDecimal parses a decimal from the provided json field.
func parseDecimal(res gjson.Result) (decimal.Decimal, error) {
	if !res.Exists() || res.Type == gjson.Null {
		return decimal.Zero, nil
	}

	dec, err := decimal.NewFromString(res.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing decimal from %q: %w", res.String(), err)
	}

	return dec, nil
}

// parseDate parses a raw record date, tolerating a trailing time component.
func parseDate(value string) (time.Time, error) {
	date, err := time.Parse(shared.DateLayout, value)
	if err == nil {
		return date, nil
	}

	date, err = time.Parse(shared.DateTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing raw record date %q: %w", value, err)
	}

	return date, nil
}

// ParseRawRecords parses raw records from the provided rows. Field names are
// canonicalized before parsing, sequence numbers are assigned in ingestion
// order.
func (r *Reader) ParseRawRecords(rows []shared.RawRow) ([]shared.RawRecord, error) {
	records := make([]shared.RawRecord, 0, len(rows))

	for idx := range rows {
		row := normalize.Apply(rows[idx])

		var record shared.RawRecord

		record.Ticker = row[shared.FieldTicker].String()
		if record.Ticker == "" {
			return nil, fmt.Errorf("raw row %d has no ticker", idx)
		}

		dateField, ok := row[shared.FieldDate]
		if !ok {
			return nil, fmt.Errorf("raw row %d has no date", idx)
		}

		date, err := parseDate(dateField.String())
		if err != nil {
			return nil, err
		}
		record.Date = date

		record.Open, err = parseDecimal(row[shared.FieldOpen])
		if err != nil {
			return nil, fmt.Errorf("parsing open: %w", err)
		}
		record.High, err = parseDecimal(row[shared.FieldHigh])
		if err != nil {
			return nil, fmt.Errorf("parsing high: %w", err)
		}
		record.Low, err = parseDecimal(row[shared.FieldLow])
		if err != nil {
			return nil, fmt.Errorf("parsing low: %w", err)
		}
		record.Close, err = parseDecimal(row[shared.FieldClose])
		if err != nil {
			return nil, fmt.Errorf("parsing close: %w", err)
		}
		record.Dividends, err = parseDecimal(row[shared.FieldDividends])
		if err != nil {
			return nil, fmt.Errorf("parsing dividends: %w", err)
		}
		record.SplitFactor, err = parseDecimal(row[shared.FieldSplitFactor])
		if err != nil {
			return nil, fmt.Errorf("parsing split factor: %w", err)
		}

		volumeField := row[shared.FieldVolume]
		if volumeField.Exists() && volumeField.Type != gjson.Null {
			volume, err := parseDecimal(volumeField)
			if err != nil {
				return nil, fmt.Errorf("parsing volume: %w", err)
			}
			record.Volume = decimal.NewNullDecimal(volume)
		}

		record.TickerFull = row[shared.FieldTickerFull].String()

		record.Seq = r.seq.Add(1) - 1

		records = append(records, record)
	}

	return records, nil
}

// readFile loads raw rows from the provided file path.
func readFile(path string) ([]shared.RawRow, error) {
	readb, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading raw data from file with path '%s': %w", path, err)
	}

	doc := gjson.ParseBytes(readb)

	return parseRows(&doc), nil
}

// scanRawDir loads raw rows from every json file in the fallback raw
// directory, in lexical path order.
func (r *Reader) scanRawDir() ([]shared.RawRow, error) {
	matches, err := filepath.Glob(filepath.Join(r.cfg.RawDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scanning raw directory '%s': %w", r.cfg.RawDir, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no raw input files found in '%s'", r.cfg.RawDir)
	}

	var rows []shared.RawRow
	for idx := range matches {
		fileRows, err := readFile(matches[idx])
		if err != nil {
			return nil, err
		}

		rows = append(rows, fileRows...)
	}

	return rows, nil
}

// Read loads raw records for a run. The preferred input path is attempted
// first, falling back to scanning the raw directory when it cannot be read.
func (r *Reader) Read(ctx context.Context) ([]shared.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := readFile(r.cfg.InputPath)
	if err != nil {
		r.cfg.Logger.Warn().Msgf("reading preferred input: %v, scanning raw directory %s",
			err, r.cfg.RawDir)

		rows, err = r.scanRawDir()
		if err != nil {
			return nil, fmt.Errorf("scanning raw directory: %w", err)
		}
	}

	records, err := r.ParseRawRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("parsing raw records: %w", err)
	}

	r.cfg.Logger.Info().Msgf("loaded %d raw records", len(records))

	return records, nil
}
