package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/refinery/catalog"
	"github.com/dnldd/refinery/fetch"
	"github.com/dnldd/refinery/pipeline"
	"github.com/dnldd/refinery/quality"
	"github.com/dnldd/refinery/shared"
	"github.com/dnldd/refinery/store"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// RefineryConfig represents the configuration struct for the refinery service.
type RefineryConfig struct {
	// InputPath is the preferred raw input file path.
	InputPath string
	// RawDir is the fallback directory scanned for raw input files.
	RawDir string
	// OutputDir is the refined dataset directory.
	OutputDir string
	// DatasetName is the logical name the dataset is registered under.
	DatasetName string
	// CatalogEndpoint is the metadata catalog endpoint, registration is
	// disabled when empty.
	CatalogEndpoint string
	// CatalogUser is the metadata catalog user.
	CatalogUser string
	// CatalogPass is the metadata catalog user pass.
	CatalogPass string
	// MaxWorkers caps the number of concurrent ticker workers and
	// partition writers.
	MaxWorkers int
	// RunInterval schedules recurring runs when set, the service runs
	// once and exits when zero.
	RunInterval time.Duration
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *RefineryConfig) Validate() error {
	var errs error

	if cfg.InputPath == "" && cfg.RawDir == "" {
		errs = errors.Join(errs, fmt.Errorf("an input path or a raw directory must be provided"))
	}
	if cfg.OutputDir == "" {
		errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string"))
	}
	if cfg.DatasetName == "" {
		errs = errors.Join(errs, fmt.Errorf("dataset name cannot be an empty string"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Refinery represents the raw market data refinement service.
type Refinery struct {
	cfg      *RefineryConfig
	reader   *fetch.Reader
	pipeline *pipeline.Manager
	writer   *store.Writer
	catalog  shared.DatasetRegisterer
	logger   *zerolog.Logger
	runMtx   sync.Mutex
}

// NewRefinery initializes a new refinery service.
func NewRefinery(ctx context.Context, cfg *RefineryConfig) (*Refinery, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "refinery").Logger()

	readerLogger := logger.With().Str("component", "reader").Logger()
	reader := fetch.NewReader(&fetch.ReaderConfig{
		InputPath: cfg.InputPath,
		RawDir:    cfg.RawDir,
		Logger:    &readerLogger,
	})

	pipelineLogger := logger.With().Str("component", "pipeline").Logger()
	pipelineMgr := pipeline.NewManager(&pipeline.ManagerConfig{
		MaxWorkers: cfg.MaxWorkers,
		Logger:     &pipelineLogger,
	})

	writerLogger := logger.With().Str("component", "writer").Logger()
	writer := store.NewWriter(&store.WriterConfig{
		OutputDir:  cfg.OutputDir,
		MaxWriters: cfg.MaxWorkers,
		Logger:     &writerLogger,
	})

	var registerer shared.DatasetRegisterer
	if cfg.CatalogEndpoint != "" {
		catalogLogger := logger.With().Str("component", "catalog").Logger()
		cat, err := catalog.NewCatalog(ctx, &catalog.CatalogConfig{
			Endpoint: cfg.CatalogEndpoint,
			User:     cfg.CatalogUser,
			Pass:     cfg.CatalogPass,
			Logger:   &catalogLogger,
		})
		if err != nil {
			// The catalog is a best effort collaborator, an unreachable
			// catalog does not prevent runs.
			logger.Error().Msgf("connecting to catalog: %v", err)
		} else {
			registerer = cat
		}
	}

	service := &Refinery{
		cfg:      cfg,
		reader:   reader,
		pipeline: pipelineMgr,
		writer:   writer,
		catalog:  registerer,
		logger:   &logger,
	}

	return service, nil
}

// logSummary logs summary statistics for the written dataset.
func (r *Refinery) logSummary(records []shared.EnrichedRecord) {
	if len(records) == 0 {
		r.logger.Info().Msg("no records processed")
		return
	}

	tickerCounts := make(map[string]int)
	start := records[0].Date
	end := records[0].Date
	for idx := range records {
		tickerCounts[records[idx].Ticker]++

		if records[idx].Date.Before(start) {
			start = records[idx].Date
		}
		if records[idx].Date.After(end) {
			end = records[idx].Date
		}
	}

	for ticker, count := range tickerCounts {
		r.logger.Info().Msgf("ticker %s: %d records", ticker, count)
	}

	r.logger.Info().Msgf("period: %s to %s", start.Format(shared.DateLayout),
		end.Format(shared.DateLayout))
	r.logger.Info().Msgf("total records processed: %d", len(records))
}

// process executes a single pipeline run. Runs never overlap, a run
// triggered while another is in flight waits for it to complete. The writer
// replaces the whole dataset per run, two concurrent runs would race
// through the destructive overwrite of the same output directory.
func (r *Refinery) process(ctx context.Context) error {
	r.runMtx.Lock()
	defer r.runMtx.Unlock()

	runID := uuid.New().String()
	r.logger.Info().Msgf("starting run %s", runID)

	records, err := r.reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading raw records: %w", err)
	}

	enriched, err := r.pipeline.Transform(ctx, records)
	if err != nil {
		return fmt.Errorf("transforming records: %w", err)
	}

	enriched = quality.Annotate(enriched, time.Now())

	_, err = r.writer.Write(ctx, enriched)
	if err != nil {
		return fmt.Errorf("writing refined dataset: %w", err)
	}

	if r.catalog != nil {
		reg := &shared.Registration{
			RunID:         runID,
			Name:          r.cfg.DatasetName,
			Location:      r.cfg.OutputDir,
			PartitionKeys: store.PartitionKeys,
			RecordCount:   len(enriched),
			CompletedAt:   time.Now(),
		}

		err = r.catalog.RegisterDataset(ctx, reg)
		if err != nil {
			// Registration failures never abort a run, the written dataset
			// is the authoritative artifact.
			r.logger.Error().Msgf("registering dataset: %v", err)
		}
	}

	r.logSummary(enriched)
	r.logger.Info().Msgf("run %s done", runID)

	return nil
}

// Run handles the lifecycle processes of the refinery service.
func (r *Refinery) Run(ctx context.Context) {
	if r.cfg.RunInterval == 0 {
		err := r.process(ctx)
		if err != nil {
			r.logger.Error().Msgf("processing run: %v", err)
		}

		r.cfg.Cancel()
		return
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		r.logger.Error().Msgf("creating job scheduler: %v", err)
		r.cfg.Cancel()
		return
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(r.cfg.RunInterval),
		gocron.NewTask(func() {
			err := r.process(ctx)
			if err != nil {
				r.logger.Error().Msgf("processing scheduled run: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		// A run outlasting the interval reschedules the next one instead of
		// starting it concurrently.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		r.logger.Error().Msgf("scheduling runs: %v", err)
		r.cfg.Cancel()
		return
	}

	scheduler.Start()

	<-ctx.Done()

	err = scheduler.Shutdown()
	if err != nil {
		r.logger.Error().Msgf("shutting down job scheduler: %v", err)
	}
}
