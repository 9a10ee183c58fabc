package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// GridPoint is one populated model grid cell.
type GridPoint struct {
	Lon, Lat float64
}

// WriteGrid stores grid points as a lon,lat CSV, creating parent
// directories. Duplicate points are written once.
func WriteGrid(path string, points []GridPoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	//nolint:gosec // G304: path is derived from the output directory.
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create grid file %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	werr := writer.Write([]string{"lon", "lat"})
	seen := make(map[GridPoint]bool, len(points))
	for _, p := range points {
		if werr != nil {
			break
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		werr = writer.Write([]string{
			strconv.FormatFloat(p.Lon, 'f', -1, 64),
			strconv.FormatFloat(p.Lat, 'f', -1, 64),
		})
	}
	writer.Flush()
	if werr == nil {
		werr = writer.Error()
	}
	if cerr := file.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("failed to write grid file %s: %w", path, werr)
	}
	return nil
}

// ReadGrid loads grid points written by WriteGrid.
func ReadGrid(path string) ([]GridPoint, error) {
	//nolint:gosec // G304: path is derived from the output directory.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grid file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) != 2 || header[0] != "lon" || header[1] != "lat" {
		return nil, fmt.Errorf("invalid CSV header: expected [lon lat], got %v", header)
	}

	points := make([]GridPoint, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		lon, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %w", record[0], err)
		}
		lat, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %w", record[1], err)
		}
		points = append(points, GridPoint{Lon: lon, Lat: lat})
	}
	return points, nil
}
