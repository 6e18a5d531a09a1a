// cmd/list_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/quickeval/internal/portal"
)

func TestList(t *testing.T) {
	fake := newCourseFake(t)
	env := newTestEnv(t, fake.URL(), "")
	deps := testDeps(fake, memJournalProvider{err: errJournalDisabled})

	t.Run("pending only", func(t *testing.T) {
		_, _, err := runCommand(t, deps, "", "list", "-c", env.ConfigPath)
		require.NoError(t, err)

		var tasks []portal.EvaluationTask
		assert.Equal(t, "tasks", readDocument(t, env.ReportPath, &tasks))
		require.Len(t, tasks, 2)
		assert.Equal(t, portal.EvaluationTask{ID: "kt-3", DisplayName: "线性代数", QuestionnaireID: "wj-2", Index: 2}, tasks[1])
	})

	t.Run("including evaluated, yaml flag override", func(t *testing.T) {
		_, _, err := runCommand(t, deps, "", "list", "--include-evaluated", "-f", "yaml", "-c", env.ConfigPath)
		require.NoError(t, err)
		data := readFile(t, env.ReportPath)
		assert.Contains(t, data, "kind: tasks")
		assert.Contains(t, data, "evaluated: true")
		assert.Contains(t, data, "id: kt-2")
	})

	assert.Empty(t, fake.Submissions(), "listing never submits")
}
