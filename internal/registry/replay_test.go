package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/chatflow/orchestrator/internal/tools"
	"github.com/chatflow/orchestrator/internal/workflows"
)

func TestRegisterAllWorkflows(t *testing.T) {
	rec := &recordingRegistrar{}
	names := RegisterAllWorkflows(rec, workflows.New(tools.NewDefaultRegistry()))
	assert.Len(t, names, 8)
	assert.ElementsMatch(t, names, rec.workflows)
}

// TestReplayRecordedHistories replays histories exported with
// `temporal workflow show --output json` into testdata/histories.
func TestReplayRecordedHistories(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "histories", "*.json"))
	require.NoError(t, err)
	if len(files) == 0 {
		t.Skip("no recorded histories under testdata/histories")
	}
	wf := workflows.New(tools.NewDefaultRegistry())
	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			require.NoError(t, ReplayHistories(wf, zaptest.NewLogger(t), f))
		})
	}
}
