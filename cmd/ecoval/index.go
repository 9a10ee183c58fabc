package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index MODEL_DIR",
	Short: "Build the model time index",
	Long: `index reads the time axis of every model file found --levels directories
below MODEL_DIR and writes the year/month of each timestamp as JSON. The index
is passed to 'ecoval run --time-index' to avoid rescanning large model runs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		index, err := usecase.BuildTimeIndex(netcdf.NewStore(log), args[0], cfg.Levels, log)
		if err != nil {
			return err
		}
		return writeTimeIndex(out, index)
	},
	DisableAutoGenTag: true,
}

func init() {
	indexCmd.Flags().StringP("output", "o", "time_index.json", "output file")
}

func writeTimeIndex(path string, index domain.TimeIndex) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	//nolint:gosec // G304: output path is provided by the user.
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := index.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	log.WithField("path", path).Info("time index written")
	return nil
}

func readTimeIndex(path string) (domain.TimeIndex, error) {
	//nolint:gosec // G304: index path is provided by the user.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open time index: %w", err)
	}
	defer func() { _ = f.Close() }()
	return domain.ReadTimeIndex(f)
}
