// Package csv reads the model mapping table and maintains the model grid
// cache.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.ngs.io/ocean-matchup/internal/domain"
)

// Columns required in a mapping table. Other columns are ignored.
var mappingHeaders = []string{"variable", "model_variable", "pattern"}

// LoadMapping reads a mapping table from a CSV file.
func LoadMapping(path string) ([]domain.MappingEntry, error) {
	//nolint:gosec // G304: path comes from the command line.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	entries, err := ReadMapping(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping file %s: %w", path, err)
	}
	return entries, nil
}

// ReadMapping parses a mapping table. Rows with an empty model expression
// are kept; the resolver filters them.
func ReadMapping(r io.Reader) ([]domain.MappingEntry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Locate the required columns.
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	cols := make([]int, len(mappingHeaders))
	for i, h := range mappingHeaders {
		col, ok := index[h]
		if !ok {
			return nil, fmt.Errorf("invalid CSV header: expected columns %v, got %v", mappingHeaders, header)
		}
		cols[i] = col
	}

	// Read data rows.
	entries := make([]domain.MappingEntry, 0)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line++

		field := func(i int) string {
			if cols[i] >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[cols[i]])
		}
		entry := domain.MappingEntry{
			Variable:      field(0),
			ModelVariable: field(1),
			Pattern:       field(2),
		}
		if entry.Variable == "" {
			return nil, fmt.Errorf("invalid CSV record on line %d: empty variable", line)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// WriteMapping writes a mapping table with the required columns.
func WriteMapping(w io.Writer, entries []domain.MappingEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(mappingHeaders); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, e := range entries {
		if err := writer.Write([]string{e.Variable, e.ModelVariable, e.Pattern}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
