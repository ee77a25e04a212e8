package workflows

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap/zaptest"

	"github.com/chatflow/orchestrator/internal/activities"
	"github.com/chatflow/orchestrator/internal/streaming"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (n *recordingNotifier) Publish(_ context.Context, evt streaming.Event) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return "1-0", nil
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Message)
	}
	return out
}

type testEnv struct {
	*testsuite.TestWorkflowEnvironment
	fs       afero.Fs
	notifier *recordingNotifier
}

// newTestEnv registers every workflow and the real activities over an in-memory
// workspace. Tests override individual activities with OnActivity.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var s testsuite.WorkflowTestSuite
	env := s.NewTestWorkflowEnvironment()

	fs := afero.NewMemMapFs()
	n := &recordingNotifier{}
	acts := activities.New(activities.Config{SimulateProviders: true}, activities.Deps{
		Logger:   zaptest.NewLogger(t),
		Fs:       fs,
		Notifier: n,
	})
	for name, fn := range acts.ByName() {
		env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	for name, fn := range New(nil).ByName() {
		env.RegisterWorkflowWithOptions(fn, workflow.RegisterOptions{Name: name})
	}
	return &testEnv{TestWorkflowEnvironment: env, fs: fs, notifier: n}
}

func (e *testEnv) query(t *testing.T, name string, out interface{}) {
	t.Helper()
	val, err := e.QueryWorkflow(name)
	require.NoError(t, err)
	require.NoError(t, val.Get(out))
}
