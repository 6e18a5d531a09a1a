// internal/reporting/structured_reporter.go
package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/store"
	"gopkg.in/yaml.v3"
)

// document is the envelope of every structured write.
type document struct {
	Kind    string      `json:"kind" yaml:"kind"`
	Payload interface{} `json:"payload" yaml:"payload"`
}

// encodeFunc writes one value to the underlying writer.
type encodeFunc func(v interface{}) error

// StructuredReporter writes each report as a JSON or YAML document.
type StructuredReporter struct {
	w      io.WriteCloser
	encode encodeFunc
	close  func() error
}

// NewJSONReporter writes one indented JSON document per call.
func NewJSONReporter(w io.WriteCloser) *StructuredReporter {
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &StructuredReporter{w: w, encode: enc.Encode, close: func() error { return nil }}
}

// NewYAMLReporter writes a YAML stream with one document per call.
func NewYAMLReporter(w io.WriteCloser) *StructuredReporter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &StructuredReporter{w: w, encode: enc.Encode, close: enc.Close}
}

func (r *StructuredReporter) write(kind string, payload interface{}) error {
	if err := r.encode(document{Kind: kind, Payload: payload}); err != nil {
		return fmt.Errorf("failed to encode %s report: %w", kind, err)
	}
	return nil
}

func (r *StructuredReporter) WriteSummary(s *evaluation.Summary) error { return r.write("summary", s) }

func (r *StructuredReporter) WriteTasks(tasks []portal.EvaluationTask) error {
	if tasks == nil {
		tasks = []portal.EvaluationTask{}
	}
	return r.write("tasks", tasks)
}

func (r *StructuredReporter) WriteRuns(runs []store.RunInfo) error {
	if runs == nil {
		runs = []store.RunInfo{}
	}
	return r.write("runs", runs)
}

func (r *StructuredReporter) Close() error {
	if err := r.close(); err != nil {
		r.w.Close()
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	return r.w.Close()
}
