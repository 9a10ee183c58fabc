package usecase

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.ngs.io/ocean-matchup/internal/domain"
)

// resolveSource finds the observation product for a variable. User
// supplied data wins over the domain's own product, which wins over the
// global one. The source name comes from the <name>.txt marker file.
func resolveSource(dataDir string, d domain.Domain, variable string) (domain.ObservationSource, error) {
	if dataDir == "" {
		return domain.ObservationSource{}, domain.NewConfigError("data_dir", "no data directory configured")
	}

	candidates := []string{
		filepath.Join(dataDir, "gridded", "user", variable),
		filepath.Join(dataDir, "gridded", string(d), variable),
		filepath.Join(dataDir, "gridded", string(domain.DomainGlobal), variable),
	}
	dir := ""
	for _, c := range candidates {
		if entries, err := os.ReadDir(c); err == nil && len(entries) > 0 {
			dir = c
			break
		}
	}
	if dir == "" {
		return domain.ObservationSource{}, domain.NewConfigError(variable, "no observation data under %s", filepath.Join(dataDir, "gridded"))
	}

	markers, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return domain.ObservationSource{}, fmt.Errorf("failed to list markers in %s: %w", dir, err)
	}
	if len(markers) == 0 {
		return domain.ObservationSource{}, domain.NewConfigError(variable, "no source marker (<name>.txt) in %s", dir)
	}
	sort.Strings(markers)
	name := strings.TrimSuffix(filepath.Base(markers[0]), ".txt")
	return domain.ObservationSource{Name: name, Dir: dir}, nil
}

// observationFiles lists the NetCDF files below a source directory, split
// into monthly files and annual climatology files.
func observationFiles(dir string) (monthly, annual []string, err error) {
	err = filepath.WalkDir(dir, func(path string, e fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".nc") {
			return nil
		}
		if strings.Contains(e.Name(), "annual") {
			annual = append(annual, path)
		} else {
			monthly = append(monthly, path)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list observation files in %s: %w", dir, err)
	}
	sort.Strings(monthly)
	sort.Strings(annual)
	return monthly, annual, nil
}
