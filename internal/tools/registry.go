package tools

import (
	"fmt"
	"sync"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/chatflow/orchestrator/internal/constants"
)

// CallContext carries caller state alongside a tool call.
type CallContext struct {
	WorkflowID  string `json:"workflowId,omitempty"`
	UserID      string `json:"userId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	CurrentTask string `json:"currentTask,omitempty"`
	TokenCount  int    `json:"tokenCount,omitempty"`
}

// Call is the payload of the tool executor activity.
type Call struct {
	Name       string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Context    *CallContext           `json:"context,omitempty"`
}

// Result is the tool executor's return value.
type Result = map[string]interface{}

// Registry is the tool catalog. It is populated at construction and then only read,
// so one instance can be shared by every workflow on a worker.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]ToolDefinition
}

// NewRegistry builds a registry from definitions, in order.
func NewRegistry(defs ...ToolDefinition) *Registry {
	r := &Registry{defs: make(map[string]ToolDefinition, len(defs))}
	for _, d := range defs {
		r.Register(d)
	}
	return r
}

// NewDefaultRegistry returns a registry holding the built-in catalog.
func NewDefaultRegistry() *Registry {
	return NewRegistry(DefaultDefinitions()...)
}

// Register inserts or overwrites a definition. Overwriting keeps the original position.
func (r *Registry) Register(def ToolDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.defs[def.Name] = def.withDefaults()
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// RequiresApproval reports whether name is gated behind an approval. Unknown tools are not.
func (r *Registry) RequiresApproval(name string) bool {
	d, ok := r.Get(name)
	return ok && d.RequiresApproval
}

// ByCategory returns definitions in category, in insertion order.
func (r *Registry) ByCategory(category Category) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ToolDefinition
	for _, name := range r.order {
		if d := r.defs[name]; d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// All returns every definition in insertion order.
func (r *Registry) All() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// ActivityOptions maps a definition's execution policy onto activity options.
func (d ToolDefinition) ActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: d.Timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        d.RetryPolicy.InitialInterval,
			BackoffCoefficient:     2.0,
			MaximumInterval:        d.RetryPolicy.MaximumInterval,
			MaximumAttempts:        d.RetryPolicy.MaximumAttempts,
			NonRetryableErrorTypes: NonRetryableErrorTypes,
		},
	}
}

// Execute validates params for name and runs the tool executor activity under the tool's
// policy. The returned error is the activity's final failure once retries are exhausted.
func (r *Registry) Execute(ctx workflow.Context, name string, params map[string]interface{}, callCtx *CallContext) (Result, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("Unknown tool: %s", name), ErrTypeUnknownTool, ErrUnknownTool)
	}
	if _, err := Decode(name, params); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidParameters, err)
	}

	actx := workflow.WithActivityOptions(ctx, def.ActivityOptions())
	var result Result
	err := workflow.ExecuteActivity(actx, constants.ExecuteToolActivity, Call{
		Name:       name,
		Parameters: params,
		Context:    callCtx,
	}).Get(ctx, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}
