package activities

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/afero"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/constants"
	"github.com/chatflow/orchestrator/internal/db"
	"github.com/chatflow/orchestrator/internal/interceptors"
	"github.com/chatflow/orchestrator/internal/policy"
	"github.com/chatflow/orchestrator/internal/streaming"
	"github.com/chatflow/orchestrator/internal/tools"
)

// Notifier publishes workflow events.
type Notifier interface {
	Publish(ctx context.Context, evt streaming.Event) (string, error)
}

// Store persists conversations and handoffs.
type Store interface {
	SaveConversation(ctx context.Context, c db.Conversation) error
	SaveHandoff(ctx context.Context, h db.Handoff) error
}

// Config controls how tools touch the outside world.
type Config struct {
	WorkspaceRoot     string
	SimulateProviders bool
	BashTimeout       time.Duration
	Shell             string
	TokenLimit        int
}

// Deps are the collaborators activities call into. Any of them may be nil.
type Deps struct {
	Logger     *zap.Logger
	Fs         afero.Fs
	Notifier   Notifier
	Store      Store
	Policy     policy.Engine
	Registry   *tools.Registry
	HTTPClient *http.Client
}

// Activities struct holds dependencies for activities
type Activities struct {
	cfg      Config
	logger   *zap.Logger
	fs       afero.Fs
	notifier Notifier
	store    Store
	policy   policy.Engine
	registry *tools.Registry
	commands *CommandTracker
	http     *http.Client
}

// New creates an activities instance. A nil Fs is rooted at cfg.WorkspaceRoot.
func New(cfg Config, deps Deps) *Activities {
	if cfg.BashTimeout <= 0 {
		cfg.BashTimeout = 5 * time.Minute
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Fs == nil {
		root := cfg.WorkspaceRoot
		if root == "" {
			root = "."
		}
		deps.Fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}
	if deps.Registry == nil {
		deps.Registry = tools.NewDefaultRegistry()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{
			Timeout:   60 * time.Second,
			Transport: interceptors.NewWorkflowHTTPRoundTripper(nil),
		}
	}
	return &Activities{
		cfg:      cfg,
		logger:   deps.Logger,
		fs:       deps.Fs,
		notifier: deps.Notifier,
		store:    deps.Store,
		policy:   deps.Policy,
		registry: deps.Registry,
		commands: NewCommandTracker(),
		http:     deps.HTTPClient,
	}
}

// ByName maps registered activity names to their implementations.
func (a *Activities) ByName() map[string]interface{} {
	return map[string]interface{}{
		constants.GenerateChatResponseActivity: a.GenerateChatResponse,
		constants.InvokeToolActivity:           a.InvokeTool,
		constants.SaveToDatabaseActivity:       a.SaveToDatabase,
		constants.ExecuteToolActivity:          a.ExecuteTool,
		constants.ExecuteWebSearchActivity:     a.ExecuteWebSearch,
		constants.GenerateImageActivity:        a.GenerateImage,
		constants.AnalyzeDocumentActivity:      a.AnalyzeDocument,
		constants.ExecuteCodeActivity:          a.ExecuteCode,
	}
}

// Commands exposes the bash command tracker.
func (a *Activities) Commands() *CommandTracker { return a.commands }

// executionIDs returns the owning workflow id and a key stable across retries of this activity.
func executionIDs(ctx context.Context) (workflowID, attemptKey string) {
	if !activity.IsActivity(ctx) {
		return "", ""
	}
	info := activity.GetInfo(ctx)
	return info.WorkflowExecution.ID, info.WorkflowExecution.RunID + "-" + info.ActivityID
}

func nonRetryable(errType, format string, args ...interface{}) error {
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf(format, args...), errType, nil)
}

func retryable(errType string, cause error, format string, args ...interface{}) error {
	return temporal.NewApplicationErrorWithCause(fmt.Sprintf(format, args...), errType, cause)
}
