package registry

import (
	"fmt"
	"sort"

	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/temporal"
	"github.com/chatflow/orchestrator/internal/workflows"
)

// WorkflowRegistry is the workflow half of Registrar. worker.WorkflowReplayer satisfies it.
type WorkflowRegistry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
}

// RegisterAllWorkflows registers every workflow type under its wire name and returns the names.
func RegisterAllWorkflows(r WorkflowRegistry, wf *workflows.Workflows) []string {
	all := wf.ByName()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.RegisterWorkflowWithOptions(all[name], workflow.RegisterOptions{Name: name})
	}
	return names
}

// ReplayHistories replays exported JSON histories against the current workflow code.
// A non-deterministic change fails the replay of the affected history.
func ReplayHistories(wf *workflows.Workflows, logger *zap.Logger, paths ...string) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	replayer := worker.NewWorkflowReplayer()
	RegisterAllWorkflows(replayer, wf)
	for _, p := range paths {
		if err := replayer.ReplayWorkflowHistoryFromJSONFile(temporal.NewZapAdapter(logger), p); err != nil {
			return fmt.Errorf("replay %s: %w", p, err)
		}
		logger.Info("Replay succeeded", zap.String("history", p))
	}
	return nil
}
