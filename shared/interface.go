package shared

import (
	"context"
	"time"
)

// Registration describes a written dataset run for catalog registration.
type Registration struct {
	// RunID is the unique id of the pipeline run that produced the dataset.
	RunID string
	// Name is the logical dataset name.
	Name string
	// Location is the filesystem location of the written dataset.
	Location string
	// PartitionKeys are the partition columns of the dataset layout.
	PartitionKeys []string
	// RecordCount is the number of enriched records written.
	RecordCount int
	// CompletedAt is the completion time of the run.
	CompletedAt time.Time
}

// DatasetRegisterer defines the requirements for registering written datasets
// with a metadata catalog.
type DatasetRegisterer interface {
	// RegisterDataset records the provided dataset registration in the catalog.
	RegisterDataset(ctx context.Context, reg *Registration) error
}
