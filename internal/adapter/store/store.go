// Package store defines the gridded dataset storage interfaces.
package store

import (
	"time"

	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/grid"
)

// DatasetReader is the interface for reading gridded datasets.
type DatasetReader interface {
	// Open reads the named variables of a file, or all of them.
	Open(path string, variables ...string) (*grid.Dataset, error)
}

// DatasetStore is the interface for reading and writing gridded datasets.
type DatasetStore interface {
	DatasetReader

	// Write replaces the file at path with the dataset.
	Write(path string, ds *grid.Dataset, opts netcdf.WriteOptions) error
}

// TimeReader is the interface for reading the time axis of a file.
type TimeReader interface {
	Times(path string) ([]time.Time, error)
}

var (
	_ DatasetStore = (*netcdf.Store)(nil)
	_ TimeReader   = (*netcdf.Store)(nil)
)
