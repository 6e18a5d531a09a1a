// cmd/evaluate_test.go
package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/testing/portalfake"
)

func pendingTasks() []portal.EvaluationTask {
	return []portal.EvaluationTask{
		{ID: "kt-1", DisplayName: "高等数学", Index: 0},
		{ID: "kt-3", DisplayName: "线性代数", Index: 2},
		{ID: "kt-4", DisplayName: "大学英语", Index: 3},
	}
}

func ids(tasks []portal.EvaluationTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{name: "all", input: " ALL ", want: []string{"kt-1", "kt-3", "kt-4"}},
		{name: "commas", input: "0,2", want: []string{"kt-1", "kt-3"}},
		{name: "spaces keep order", input: "3 0", want: []string{"kt-4", "kt-1"}},
		{name: "full-width comma", input: "2，3", want: []string{"kt-3", "kt-4"}},
		{name: "duplicates dropped", input: "2, 2,0", want: []string{"kt-3", "kt-1"}},
		{name: "empty", input: "  ", wantErr: "no course selected"},
		{name: "not a number", input: "0,x", wantErr: `"x" is not a course number`},
		{name: "already evaluated index", input: "1", wantErr: "no pending course has number 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.input, pendingTasks())
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestPromptSelection(t *testing.T) {
	printer, err := i18n.NewPrinter("en")
	require.NoError(t, err)

	t.Run("retries until valid", func(t *testing.T) {
		var out strings.Builder
		got, err := promptSelection(context.Background(), pendingTasks(), printer, strings.NewReader("9\n3\n"), &out)
		require.NoError(t, err)
		assert.Equal(t, []string{"kt-4"}, ids(got))

		text := out.String()
		assert.Contains(t, text, "3 courses waiting for evaluation:")
		assert.Contains(t, text, "  [2] 线性代数")
		assert.Contains(t, text, "Invalid selection: no pending course has number 9")
		assert.Equal(t, 2, strings.Count(text, "Enter the numbers to evaluate"))
	})

	t.Run("last line without newline", func(t *testing.T) {
		var out strings.Builder
		got, err := promptSelection(context.Background(), pendingTasks(), printer, strings.NewReader("0"), &out)
		require.NoError(t, err)
		assert.Equal(t, []string{"kt-1"}, ids(got))
	})

	t.Run("input ends", func(t *testing.T) {
		var out strings.Builder
		_, err := promptSelection(context.Background(), pendingTasks(), printer, strings.NewReader(""), &out)
		assert.ErrorContains(t, err, "failed to read selection")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var out strings.Builder
		_, err := promptSelection(ctx, pendingTasks(), printer, strings.NewReader("0\n"), &out)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// newCourseFake serves two pending courses around an evaluated one.
func newCourseFake(t *testing.T) *portalfake.Portal {
	fake := portalfake.New(t)
	fake.SetCourses(
		portalfake.Course{ID: "kt-1", Name: "高等数学", QuestionnaireID: "wj-1"},
		portalfake.Course{ID: "kt-2", Name: "大学物理", QuestionnaireID: "wj-1", Evaluated: true},
		portalfake.Course{ID: "kt-3", Name: "线性代数", QuestionnaireID: "wj-2"},
	)
	return fake
}

func TestEvaluate_All(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")
	journal := &memJournal{}

	_, stderr, err := runCommand(t, testDeps(fake, memJournalProvider{journal: journal}), "",
		"evaluate", "--all", "-c", env.ConfigPath)
	require.NoError(t, err)

	assert.True(t, fake.IsEvaluated("kt-1"))
	assert.True(t, fake.IsEvaluated("kt-3"))
	assert.Contains(t, stderr, "Login attempt 1/3: signed in.")
	assert.Contains(t, stderr, "(1/2) Evaluating 高等数学 ...")
	assert.Contains(t, stderr, "(2/2) Evaluating 线性代数 ...")
	assert.Contains(t, stderr, "OK     线性代数")

	var summary evaluation.Summary
	assert.Equal(t, "summary", readDocument(t, env.ReportPath, &summary))
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "confirmed_saved", summary.Results[0].State)

	require.Len(t, journal.results, 2)
	assert.Equal(t, summary.RunID, journal.results[0].RunID)
	assert.Equal(t, 1, journal.closed)
}

func TestEvaluate_Select(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")

	_, _, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "",
		"evaluate", "--select", "2", "-c", env.ConfigPath)
	require.NoError(t, err)

	assert.False(t, fake.IsEvaluated("kt-1"))
	assert.True(t, fake.IsEvaluated("kt-3"))
	for _, s := range fake.Submissions() {
		assert.Equal(t, "kt-3", s.TaskID)
	}
}

func TestEvaluate_Prompted(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")

	_, stderr, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "1\n0\n",
		"evaluate", "-c", env.ConfigPath)
	require.NoError(t, err)

	assert.Contains(t, stderr, "  [0] 高等数学")
	assert.Contains(t, stderr, "Invalid selection: no pending course has number 1")
	assert.True(t, fake.IsEvaluated("kt-1"))
	assert.False(t, fake.IsEvaluated("kt-3"))
}

func TestEvaluate_DryRun(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")

	_, stderr, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "",
		"evaluate", "--all", "--dry-run", "-c", env.ConfigPath)
	require.NoError(t, err)

	assert.Empty(t, fake.Submissions())
	assert.Contains(t, stderr, "not submitted")

	var summary evaluation.Summary
	readDocument(t, env.ReportPath, &summary)
	assert.True(t, summary.DryRun)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, "pending", summary.Results[0].Outcome)
	assert.NotEmpty(t, summary.Results[0].Fields)
}

func TestEvaluate_TaskFailure(t *testing.T) {
	fake := newCourseFake(t)
	fake.SetConfirmBody("kt-1", `{"result":"fail"}`)
	env := newTestEnv(t, fake.URL(), "")

	_, stderr, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "",
		"evaluate", "--all", "-c", env.ConfigPath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTasksFailed))
	assert.Contains(t, stderr, "FAILED 高等数学")

	var summary evaluation.Summary
	readDocument(t, env.ReportPath, &summary)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "PROTOCOL_VIOLATION", summary.Results[0].ErrorCode)
	assert.Equal(t, `{"result":"fail"}`, summary.Results[0].Response)
	assert.True(t, fake.IsEvaluated("kt-3"), "a failed task does not stop the run")
}

func TestEvaluate_NoPendingTasks(t *testing.T) {
	fake := portalfake.New(t)
	fake.SetCourses(portalfake.Course{ID: "kt-1", Name: "高等数学", QuestionnaireID: "wj", Evaluated: true})
	env := newTestEnv(t, fake.URL(), "")

	_, _, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "",
		"evaluate", "-c", env.ConfigPath)
	require.NoError(t, err, "nothing to do is not an error and needs no selection")

	var summary evaluation.Summary
	readDocument(t, env.ReportPath, &summary)
	assert.True(t, summary.NoPendingTasks)
	assert.Empty(t, fake.Submissions())
}

func TestEvaluate_AuthFailure(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")
	deps := testDeps(fake, memJournalProvider{err: errJournalDisabled})
	deps.solver = func(context.Context, config.Interface, *i18n.Printer, console, *zap.Logger) (portal.CaptchaSolver, error) {
		return staticSolver("zzzz"), nil
	}

	_, stderr, err := runCommand(t, deps, "", "evaluate", "--all", "-c", env.ConfigPath)
	require.Error(t, err)
	assert.Equal(t, portal.ErrCodeAuthFailure, portal.CodeOf(err))
	assert.Contains(t, stderr, "Login attempt 3/3: the CAPTCHA was wrong.")
	assert.Contains(t, stderr, "Could not sign in after 3 attempts.")
	assert.Equal(t, 0, fake.Hits("/student/teachingAssessment/evaluation/queryAll"))
}

func TestEvaluate_ListingFailureAborts(t *testing.T) {
	fake := newCourseFake(t)
	fake.SetListStatus(500)
	env := newTestEnv(t, fake.URL(), "")

	_, _, err := runCommand(t, testDeps(fake, memJournalProvider{err: errJournalDisabled}), "",
		"evaluate", "--all", "-c", env.ConfigPath)
	require.Error(t, err)
	assert.Equal(t, portal.ErrCodeTransport, portal.CodeOf(err))
	assert.Empty(t, fake.Submissions())
}

func TestEvaluate_FlagValidation(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")
	deps := testDeps(fake, memJournalProvider{err: errJournalDisabled})

	_, _, err := runCommand(t, deps, "", "evaluate", "--all", "--select", "0", "-c", env.ConfigPath)
	assert.ErrorContains(t, err, "none of the others can be")

	_, _, err = runCommand(t, deps, "", "evaluate", "--all", "--radio", "middle", "-c", env.ConfigPath)
	assert.ErrorContains(t, err, "invalid --radio")
	assert.Equal(t, 0, fake.TotalHits(), "bad flags are rejected before signing in")
}
