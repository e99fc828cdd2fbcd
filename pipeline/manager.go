package pipeline

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dnldd/refinery/aggregate"
	"github.com/dnldd/refinery/shared"
	"github.com/dnldd/refinery/window"
	"github.com/rs/zerolog"
)

const (
	// maxWorkers is the default maximum number of concurrent ticker workers.
	maxWorkers = 8
)

// ManagerConfig represents the pipeline manager configuration.
type ManagerConfig struct {
	// MaxWorkers caps the number of concurrent ticker workers.
	MaxWorkers int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Manager coordinates the per ticker transformation workers. Aggregation
// and window enrichment are embarrassingly parallel across tickers, each
// worker owns its ticker's records end to end with no shared mutable state.
type Manager struct {
	cfg     *ManagerConfig
	workers chan struct{}
}

// NewManager initializes a new pipeline manager.
func NewManager(cfg *ManagerConfig) *Manager {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = maxWorkers
	}

	return &Manager{
		cfg:     cfg,
		workers: make(chan struct{}, cfg.MaxWorkers),
	}
}

// partitionByTicker splits the provided records into per ticker partitions,
// ordered by ticker name for deterministic output.
func partitionByTicker(records []shared.RawRecord) [][]shared.RawRecord {
	tickers := make(map[string][]shared.RawRecord)
	for idx := range records {
		tickers[records[idx].Ticker] = append(tickers[records[idx].Ticker], records[idx])
	}

	names := make([]string, 0, len(tickers))
	for name := range tickers {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)

	partitions := make([][]shared.RawRecord, 0, len(tickers))
	for _, name := range names {
		partitions = append(partitions, tickers[name])
	}

	return partitions
}

// transformTicker runs aggregation and window enrichment for a single
// ticker's records.
func transformTicker(records []shared.RawRecord) []shared.EnrichedRecord {
	summaries := aggregate.DailySummaries(records)
	return window.Enrich(summaries)
}

// Transform runs aggregation and window enrichment for all tickers, one
// worker per ticker partition. The returned records are ordered by ticker
// then date.
func (m *Manager) Transform(ctx context.Context, records []shared.RawRecord) ([]shared.EnrichedRecord, error) {
	partitions := partitionByTicker(records)

	// Each worker writes only its own result slot.
	results := make([][]shared.EnrichedRecord, len(partitions))

	var wg sync.WaitGroup
	for idx := range partitions {
		if err := ctx.Err(); err != nil {
			break
		}

		m.workers <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer func() {
				<-m.workers
				wg.Done()
			}()

			results[idx] = transformTicker(partitions[idx])
		}(idx)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enriched := make([]shared.EnrichedRecord, 0, len(records))
	for idx := range results {
		enriched = append(enriched, results[idx]...)
	}

	m.cfg.Logger.Info().Msgf("transformed %d raw records into %d enriched records across %d tickers",
		len(records), len(enriched), len(partitions))

	return enriched, nil
}
