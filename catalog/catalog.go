package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/refinery/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createDatasetTableSQL = "CREATE TABLE IF NOT EXISTS dataset (runid TEXT PRIMARY KEY, name TEXT, location TEXT, partitionkeys TEXT, recordcount INTEGER, completedon INTEGER)"
	registerDatasetSQL    = "INSERT OR REPLACE INTO dataset(runid, name, location, partitionkeys, recordcount, completedon) VALUES(?,?,?,?,?,?)"
)

// CatalogConfig is the configuration for the metadata catalog.
type CatalogConfig struct {
	// Endpoint represents the catalog connection endpoint.
	Endpoint string
	// User is the catalog user.
	User string
	// Pass is the catalog user pass.
	Pass string
	// Logger is the catalog logger.
	Logger *zerolog.Logger
}

// Catalog represents the metadata catalog connection. Registration is a
// best effort side effect of a pipeline run, callers log and swallow its
// errors rather than surfacing them.
type Catalog struct {
	cfg    *CatalogConfig
	client *rqlitehttp.Client
}

// Ensure the catalog implements the DatasetRegisterer interface.
var _ shared.DatasetRegisterer = (*Catalog)(nil)

// NewCatalog initializes a new metadata catalog connection.
func NewCatalog(ctx context.Context, cfg *CatalogConfig) (*Catalog, error) {
	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating catalog client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	c := &Catalog{
		cfg:    cfg,
		client: client,
	}

	err = c.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping catalog: %w", err)
	}

	return c, nil
}

// bootstrap initializes the catalog schema.
func (c *Catalog) bootstrap(ctx context.Context) error {
	_, err := c.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createDatasetTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	return nil
}

// RegisterDataset records the provided dataset registration in the catalog.
func (c *Catalog) RegisterDataset(ctx context.Context, reg *shared.Registration) error {
	c.cfg.Logger.Debug().Msg(spew.Sdump(reg))

	_, err := c.client.Execute(ctx, rqlitehttp.SQLStatements{
		{
			SQL: registerDatasetSQL,
			PositionalParams: []any{
				reg.RunID,
				reg.Name,
				reg.Location,
				strings.Join(reg.PartitionKeys, ","),
				reg.RecordCount,
				reg.CompletedAt.Unix(),
			},
		},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return fmt.Errorf("registering dataset '%s': %w", reg.Name, err)
	}

	return nil
}
