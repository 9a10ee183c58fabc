// Package main provides the matchup inspection HTTP server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/config"
	httpHandler "go.ngs.io/ocean-matchup/internal/http"
	"go.ngs.io/ocean-matchup/internal/metrics"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("ocean-matchup server version %s\n", version)
		return
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	// Output locations default to the .ecovalrc settings.
	defaults := config.Default()
	outDir, reportPath := defaults.OutDir, defaults.ReportPath
	if cfg, err := config.Load(); err == nil {
		outDir, reportPath = cfg.OutDir, cfg.ReportPath
	} else {
		log.WithError(err).Warn("no usable ecoval configuration, using defaults")
	}
	port := getEnv("PORT", "8080")
	outDir = getEnv("MATCHUP_DIR", outDir)
	reportPath = getEnv("REPORT_PATH", reportPath)

	log.Info("Starting matchup inspection server...")
	log.Infof("Port: %s", port)
	log.Infof("Matchup directory: %s", outDir)
	log.Infof("Report: %s", reportPath)

	store := netcdf.NewStore(log)
	collector := metrics.NewCollector("ocean_matchup")
	catalogUC := usecase.NewCatalogUseCase(outDir, reportPath, store)

	router := httpHandler.SetupRouter(catalogUC, collector)

	addr := fmt.Sprintf(":%s", port)
	log.Infof("Server listening on %s", addr)
	log.Infof("Health check: http://localhost:%s/health", port)

	if err := router.Run(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Matchup Inspection Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  server [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  MATCHUP_DIR             Matchup output directory (default: out_dir from .ecovalrc, else matched)")
	fmt.Println("  REPORT_PATH             Markdown run report (default: matchup_report.md)")
	fmt.Println("  LOG_LEVEL               Log level (default: info)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                          Health check")
	fmt.Println("  GET /v1/variables                    List catalogue variables")
	fmt.Println("  GET /v1/matchups                     List written matchups")
	fmt.Println("  GET /v1/matchups/:domain/:variable   Describe the matchups of a variable")
	fmt.Println("  GET /v1/report                       Markdown run report")
	fmt.Println("  GET /metrics                         Prometheus metrics")
	fmt.Println()
}
