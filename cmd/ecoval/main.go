// Command ecoval builds gridded matchups between ocean biogeochemical model
// output and observation products.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.ngs.io/ocean-matchup/internal/config"
)

const version = "0.1.0"

var (
	cfg *config.Config
	log = logrus.New()
)

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ecoval",
	Short: "Gridded model/observation matchups for ocean biogeochemistry.",
	Long: `ecoval pairs ocean model output with gridded observation products on a
common grid, time axis and unit system and writes the pairs as NetCDF files.

Settings are read from .ecovalrc or ecovalrc in the working directory, then the
home directory, then from ECOVAL_<KEY> environment variables (data_dir, out_dir,
report, overwrite, levels, log_level). Command-line flags win over both.`,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return setConfig(cmd) },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("ecoval v%s\n", version)
	},
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	DisableAutoGenTag: true,
}

func init() {
	flags := Root.PersistentFlags()
	flags.String("data-dir", "", "observation data directory (overrides data_dir)")
	flags.String("out-dir", "", "matchup output directory (overrides out_dir)")
	flags.String("report", "", "markdown run report (overrides report)")
	flags.Int("levels", 0, "directory levels between the model root and the model files (overrides levels)")
	flags.Bool("overwrite", false, "regenerate matchups that already exist (overrides overwrite)")
	flags.String("log-level", "", "log level: debug, info, warn or error (overrides log_level)")
	flags.Bool("json-logs", false, "write logs as JSON")

	Root.AddCommand(versionCmd, runCmd, indexCmd)
}

// setConfig resolves the configuration and applies flag overrides.
func setConfig(cmd *cobra.Command) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("out-dir") {
		c.OutDir, _ = flags.GetString("out-dir")
	}
	if flags.Changed("report") {
		c.ReportPath, _ = flags.GetString("report")
	}
	if flags.Changed("levels") {
		c.Levels, _ = flags.GetInt("levels")
	}
	if flags.Changed("overwrite") {
		c.Overwrite, _ = flags.GetBool("overwrite")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if asJSON, _ := flags.GetBool("json-logs"); asJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if c.Source != "" {
		log.WithField("path", c.Source).Debug("configuration loaded")
	}
	cfg = c
	return nil
}

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
