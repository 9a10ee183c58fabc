package usecase

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/adapter/discovery"
	"go.ngs.io/ocean-matchup/internal/adapter/store"
	"go.ngs.io/ocean-matchup/internal/domain"
)

// BuildTimeIndex records the timestamps of every NetCDF file levels
// directories below root. Files without a time axis are left out.
func BuildTimeIndex(reader store.TimeReader, root string, levels int, log logrus.FieldLogger) (domain.TimeIndex, error) {
	pattern := discovery.SearchPattern(root, levels, "*.nc")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list model files %s: %w", pattern, err)
	}
	sort.Strings(paths)

	index := domain.TimeIndex{}
	for _, p := range paths {
		times, err := reader.Times(p)
		if err != nil {
			return nil, err
		}
		if len(times) == 0 {
			log.WithField("path", p).Debug("no time axis, not indexed")
			continue
		}
		index.Add(p, times)
	}
	log.WithFields(logrus.Fields{"files": len(index), "pattern": pattern}).Info("model time index built")
	return index, nil
}
