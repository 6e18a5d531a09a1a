// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/credentials"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/store"
	"github.com/xkilldash9x/quickeval/internal/testing/portalfake"
)

type staticSolver string

func (s staticSolver) Solve(context.Context, []byte) (string, error) { return string(s), nil }

// memJournal is an in-memory store.Journal.
type memJournal struct {
	mu      sync.Mutex
	results []evaluation.TaskResult
	closed  int
}

func (j *memJournal) Record(_ context.Context, r evaluation.TaskResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	return nil
}

func (j *memJournal) ListRun(_ context.Context, runID string) ([]evaluation.TaskResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []evaluation.TaskResult
	for _, r := range j.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (j *memJournal) Runs(_ context.Context, limit int) ([]store.RunInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	byID := map[string]*store.RunInfo{}
	for _, r := range j.results {
		info, ok := byID[r.RunID]
		if !ok {
			info = &store.RunInfo{RunID: r.RunID, StartedAt: r.StartedAt}
			byID[r.RunID] = info
		}
		info.Tasks++
		if r.Succeeded() {
			info.Completed++
		} else if r.Outcome == evaluation.OutcomeFailure.String() {
			info.Failed++
		}
	}
	runs := make([]store.RunInfo, 0, len(byID))
	for _, info := range byID {
		runs = append(runs, *info)
	}
	sort.Slice(runs, func(i, k int) bool { return runs[i].StartedAt.After(runs[k].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (j *memJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed++
	return nil
}

type memJournalProvider struct {
	journal *memJournal
	err     error
}

func (p memJournalProvider) Open(context.Context, config.Interface) (store.Journal, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.journal, nil
}

// testDeps signs in to fake with its own credentials and CAPTCHA answer.
func testDeps(fake *portalfake.Portal, journals journalProvider) portalDeps {
	return portalDeps{
		credentials: func(config.Interface, *i18n.Printer, console) (portal.CredentialProvider, error) {
			return credentials.Static{Username: fake.Username, Password: fake.Password}, nil
		},
		solver: func(context.Context, config.Interface, *i18n.Printer, console, *zap.Logger) (portal.CaptchaSolver, error) {
			return staticSolver(fake.Captcha), nil
		},
		journal: journals,
	}
}

// testEnv is a config file pointing at a fake portal plus the report path.
type testEnv struct {
	ConfigPath string
	ReportPath string
}

func newTestEnv(t *testing.T, baseURL string, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		ConfigPath: filepath.Join(dir, "quickeval.yaml"),
		ReportPath: filepath.Join(dir, "report.json"),
	}
	cfg := fmt.Sprintf(`logger:
  level: error
portal:
  base_url: %s
  request_rate: 0
credentials:
  source: static
evaluation:
  phase_pause: 0s
  task_pause: 0s
report:
  format: json
  output: %s
locale: en
%s`, baseURL, env.ReportPath, extra)
	require.NoError(t, os.WriteFile(env.ConfigPath, []byte(cfg), 0o600))
	return env
}

// runCommand executes the command tree with args and stdin.
func runCommand(t *testing.T, deps portalDeps, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := newRootCommand(deps)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// readDocument decodes a JSON report envelope written by the reporter.
func readDocument(t *testing.T, path string, payload interface{}) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.NoError(t, json.Unmarshal(doc.Payload, payload))
	return doc.Kind
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
