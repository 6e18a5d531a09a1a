// internal/evaluation/helpers_test.go
package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/network"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/testing/portalfake"
	"go.uber.org/zap/zaptest"
)

type fixedSolver string

func (s fixedSolver) Solve(context.Context, []byte) (string, error) { return string(s), nil }

type fixedCreds portal.Credentials

func (c fixedCreds) Credentials(context.Context) (portal.Credentials, error) {
	return portal.Credentials(c), nil
}

// loggedIn returns a session authenticated against fake.
func loggedIn(t *testing.T, fake *portalfake.Portal) *portal.SessionContext {
	t.Helper()
	logger := zaptest.NewLogger(t)
	endpoints, err := portal.NewEndpoints(fake.URL())
	require.NoError(t, err)

	sess := portal.NewSessionContext(network.NewClient(network.NewDefaultClientConfig()), endpoints, logger)
	t.Cleanup(sess.Close)

	m := portal.NewManager(sess, config.NewDefaultConfig().Login(), logger)
	_, err = m.Authenticate(context.Background(),
		fixedCreds{Username: fake.Username, Password: fake.Password},
		fixedSolver(fake.Captcha), nil)
	require.NoError(t, err)
	return sess
}

// recordingObserver captures runner notifications.
type recordingObserver struct {
	started  []string
	finished []TaskResult
	err      error
}

func (o *recordingObserver) TaskStarted(_ context.Context, index, total int, task portal.EvaluationTask) {
	o.started = append(o.started, task.ID)
}

func (o *recordingObserver) TaskFinished(_ context.Context, result TaskResult) error {
	o.finished = append(o.finished, result)
	return o.err
}
