// internal/reporting/text_reporter.go
package reporting

import (
	"bufio"
	"io"
	"time"

	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/store"
)

// TextReporter writes localised, human-readable lines.
type TextReporter struct {
	w       io.WriteCloser
	buf     *bufio.Writer
	printer *i18n.Printer
}

// NewTextReporter creates a text reporter writing to w.
func NewTextReporter(w io.WriteCloser, printer *i18n.Printer) *TextReporter {
	return &TextReporter{w: w, buf: bufio.NewWriter(w), printer: printer}
}

func (r *TextReporter) line(s string) {
	r.buf.WriteString(s)
	r.buf.WriteByte('\n')
}

func (r *TextReporter) WriteSummary(s *evaluation.Summary) error {
	p := r.printer
	r.line(p.Td("RunHeader", map[string]any{"RunID": s.RunID}))
	if s.NoPendingTasks {
		r.line(p.T("NoPendingTasks"))
		return r.buf.Flush()
	}

	for _, res := range s.Results {
		switch {
		case res.Succeeded():
			r.line(p.Td("TaskSucceeded", map[string]any{"Name": res.Task.DisplayName}))
		case res.Outcome == evaluation.OutcomeFailure.String():
			msg := res.Error
			if res.Response != "" {
				msg += " (" + res.Response + ")"
			}
			r.line(p.Td("TaskFailed", map[string]any{"Name": res.Task.DisplayName, "Error": msg}))
		default:
			r.line(p.Td("TaskDryRun", map[string]any{"Name": res.Task.DisplayName, "Fields": len(res.Fields)}))
		}
	}
	r.line(p.Td("RunTotals", map[string]any{"Completed": s.Completed, "Failed": s.Failed, "Total": len(s.Results)}))
	if s.Interrupted {
		r.line(p.T("RunInterrupted"))
	}
	return r.buf.Flush()
}

func (r *TextReporter) WriteTasks(tasks []portal.EvaluationTask) error {
	if len(tasks) == 0 {
		r.line(r.printer.T("NoPendingTasks"))
		return r.buf.Flush()
	}
	r.line(r.printer.Tp("TasksPending", len(tasks), nil))
	for _, t := range tasks {
		r.line(r.printer.Td("TaskLine", map[string]any{"Index": t.Index, "Name": t.DisplayName}))
	}
	return r.buf.Flush()
}

func (r *TextReporter) WriteRuns(runs []store.RunInfo) error {
	if len(runs) == 0 {
		r.line(r.printer.T("NoRuns"))
		return r.buf.Flush()
	}
	r.line(r.printer.T("RunsHeader"))
	for _, run := range runs {
		r.line(r.printer.Td("RunLine", map[string]any{
			"RunID":     run.RunID,
			"StartedAt": run.StartedAt.Local().Format(time.DateTime),
			"Completed": run.Completed,
			"Tasks":     run.Tasks,
		}))
	}
	return r.buf.Flush()
}

func (r *TextReporter) Close() error {
	if err := r.buf.Flush(); err != nil {
		r.w.Close()
		return err
	}
	return r.w.Close()
}
