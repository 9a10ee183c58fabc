// Package report appends the markdown run report.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultPath is the report file name used when none is configured.
const DefaultPath = "matchup_report.md"

// Writer appends lines to a markdown report. Writes are best effort:
// failures are logged and never returned.
type Writer struct {
	path string
	log  logrus.FieldLogger
}

// NewWriter creates a report writer for path.
func NewWriter(path string, log logrus.FieldLogger) *Writer {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{path: path, log: log}
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}

// Line appends one line followed by a blank line.
func (w *Writer) Line(line string) {
	w.append(line + "\n\n")
}

// Lines appends each line followed by a blank line.
func (w *Writer) Lines(lines ...string) {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n\n")
	}
	w.append(b.String())
}

// RunHeader starts a run section and returns the run ID.
func (w *Writer) RunHeader(started time.Time) uuid.UUID {
	id := uuid.New()
	w.Lines(
		fmt.Sprintf("## Gridded matchups, run %s", id),
		fmt.Sprintf("Started: %s", started.UTC().Format(time.RFC3339)),
	)
	return id
}

// Matchup records the files used for a variable.
func (w *Writer) Matchup(variable string, paths []string, minYear, maxYear int, hasYears bool) {
	lines := []string{
		fmt.Sprintf("### Matchups for %s", variable),
		fmt.Sprintf("Number of paths: %d", len(paths)),
	}
	if hasYears {
		lines = append(lines,
			fmt.Sprintf("Minimum year: %d", minYear),
			fmt.Sprintf("Maximum year: %d", maxYear),
		)
	} else {
		lines = append(lines, "Minimum year: none", "Maximum year: none")
	}
	lines = append(lines, fmt.Sprintf("Files used for %s:", variable), "```")
	lines = append(lines, paths...)
	lines = append(lines, "```", `\newpage`)
	w.Lines(lines...)
}

func (w *Writer) append(text string) {
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.log.WithError(err).WithField("path", w.path).Warn("failed to create report directory")
			return
		}
	}
	//nolint:gosec // G304: report path comes from configuration.
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.log.WithError(err).WithField("path", w.path).Warn("failed to open report")
		return
	}
	if _, err := f.WriteString(text); err != nil {
		w.log.WithError(err).WithField("path", w.path).Warn("failed to write report")
	}
	if err := f.Close(); err != nil {
		w.log.WithError(err).WithField("path", w.path).Warn("failed to close report")
	}
}
