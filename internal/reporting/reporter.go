// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/store"
)

// Reporter defines the interface for writing run results to an output.
type Reporter interface {
	// WriteSummary renders the outcome of a whole run.
	WriteSummary(summary *evaluation.Summary) error
	// WriteTasks renders a task listing.
	WriteTasks(tasks []portal.EvaluationTask) error
	// WriteRuns renders journaled runs.
	WriteRuns(runs []store.RunInfo) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// The printer localises the text format and may be nil for the others.
func New(format, outputPath string, printer *i18n.Printer) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	r, err := NewWithWriter(format, writer, printer)
	if err != nil {
		if !isStdOut {
			writer.Close()
		}
		return nil, err
	}
	return r, nil
}

// NewWithWriter creates a reporter that takes ownership of w.
func NewWithWriter(format string, w io.WriteCloser, printer *i18n.Printer) (Reporter, error) {
	switch format {
	case "text":
		if printer == nil {
			var err error
			if printer, err = i18n.NewPrinter("en"); err != nil {
				return nil, err
			}
		}
		return NewTextReporter(w, printer), nil
	case "json":
		return NewJSONReporter(w), nil
	case "yaml":
		return NewYAMLReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
