package workflows

import (
	"time"

	"github.com/chatflow/orchestrator/internal/models"
)

// ChatInput starts a chat workflow.
type ChatInput struct {
	Messages        []models.Message        `json:"initialMessages"`
	Model           models.ModelConfig      `json:"modelConfig"`
	ToolInvocations []models.ToolInvocation `json:"toolInvocations,omitempty"`
}

// ApprovalInput starts (or continues) an approval workflow.
type ApprovalInput struct {
	Rules []models.AutoApprovalRule `json:"rules,omitempty"`
	// PollInterval bounds how long the loop sleeps between timeout sweeps. Default 30s.
	PollInterval time.Duration `json:"pollInterval,omitempty"`
	// MaxHistory trims the oldest records when continuing as new. Zero keeps everything.
	MaxHistory int `json:"maxHistory,omitempty"`
	// EventsPerRun is how many wakes one run handles before continuing as new.
	EventsPerRun int `json:"eventsPerRun,omitempty"`

	Pending []models.ApprovalRequest `json:"pending,omitempty"`
	History []models.ApprovalRecord  `json:"history,omitempty"`
}

// ChainEntry is one tool call in a tool chain. Seq is assigned by the workflow.
type ChainEntry struct {
	Seq    int                    `json:"seq,omitempty"`
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ToolApproval resolves a tool-chain approval gate.
type ToolApproval struct {
	ToolID   string `json:"toolId"`
	Approved bool   `json:"approved"`
}

// ToolChainInitialContext seeds a tool chain.
type ToolChainInitialContext struct {
	Task    string      `json:"task,omitempty"`
	Session interface{} `json:"session,omitempty"`
	UserID  string      `json:"userId,omitempty"`
}

type ToolChainInput struct {
	InitialContext ToolChainInitialContext `json:"initialContext"`
	Chain          []ChainEntry            `json:"toolChain"`
	MaxTokens      int                     `json:"maxTokens,omitempty"`
}

// ToolChainContext is the mutable state of a tool chain.
type ToolChainContext struct {
	TokenCount        int                    `json:"tokenCount"`
	CurrentTask       string                 `json:"currentTask"`
	UserSession       interface{}            `json:"userSession,omitempty"`
	FileModifications []string               `json:"fileModifications"`
	ToolResults       map[string]interface{} `json:"toolResults"`
	ApprovalQueue     []string               `json:"approvalQueue"`
}

// ContextPatch is shallow-merged into a ToolChainContext. Nil fields are left alone
// and TokenCount never moves backwards.
type ContextPatch struct {
	TokenCount        *int                   `json:"tokenCount,omitempty"`
	CurrentTask       *string                `json:"currentTask,omitempty"`
	UserSession       interface{}            `json:"userSession,omitempty"`
	FileModifications []string               `json:"fileModifications,omitempty"`
	ToolResults       map[string]interface{} `json:"toolResults,omitempty"`
}

// ToolResult is one executed chain entry: either Result or Error is set.
type ToolResult struct {
	Tool   string      `json:"tool"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type ToolChainResult struct {
	Results          []ToolResult     `json:"results,omitempty"`
	Context          ToolChainContext `json:"context"`
	CompletedTools   int              `json:"completedTools"`
	FinalTokenCount  int              `json:"finalTokenCount"`
	HandoffTriggered bool             `json:"handoffTriggered"`
	RemainingTools   []ChainEntry     `json:"remainingTools,omitempty"`
	HandoffError     string           `json:"handoffError,omitempty"`
}

// Context entry kinds accepted by recordContextEntry.
const (
	EntryDecision = "decision"
	EntryFile     = "file"
	EntryError    = "error"
	EntryPhase    = "phase"
)

type ContextEntry struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
	Fix  string `json:"fix,omitempty"`
}

type ContextError struct {
	Error     string    `json:"error"`
	Fix       string    `json:"fix"`
	Timestamp time.Time `json:"timestamp"`
}

type ManagedContext struct {
	PrimaryRequest    string         `json:"primaryRequest,omitempty"`
	Phase             string         `json:"phase,omitempty"`
	KeyDecisions      []string       `json:"keyDecisions,omitempty"`
	FileModifications []string       `json:"fileModifications,omitempty"`
	Errors            []ContextError `json:"errors,omitempty"`
}

type ContextManagementInput struct {
	InitialContext   ManagedContext `json:"initialContext"`
	WarningThreshold int            `json:"warningThreshold,omitempty"`
	ForcedThreshold  int            `json:"forcedThreshold,omitempty"`
}

// Context status levels.
const (
	ContextNormal   = "normal"
	ContextWarning  = "warning"
	ContextCritical = "critical"
)

type ContextStatus struct {
	TokenCount       int    `json:"tokenCount"`
	WarningThreshold int    `json:"warningThreshold"`
	ForcedThreshold  int    `json:"forcedThreshold"`
	Status           string `json:"status"`
}

type PreservedState struct {
	FileModifications []string       `json:"fileModifications"`
	KeyDecisions      []string       `json:"keyDecisions"`
	Errors            []ContextError `json:"errors"`
}

type ContextManagementResult struct {
	HandoffExecuted bool           `json:"handoffExecuted"`
	FinalTokenCount int            `json:"finalTokenCount"`
	HandoffReason   string         `json:"handoffReason"`
	PreservedState  PreservedState `json:"preservedState"`
}

// SubTaskSpec describes one sub-agent task.
type SubTaskSpec struct {
	Task        string `json:"task"`
	Description string `json:"description"`
}

type SubAgentInput struct {
	PrimaryTask         string        `json:"primaryTask"`
	SubTasks            []SubTaskSpec `json:"subTasks,omitempty"`
	MaxConcurrentAgents int           `json:"maxConcurrentAgents,omitempty"`
}

type SubAgentResult struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result"`
}

type SubAgentOrchestrationResult struct {
	PrimaryTask        string           `json:"primaryTask"`
	SubAgentResults    []SubAgentResult `json:"subAgentResults"`
	ConsolidatedReport string           `json:"consolidatedReport"`
	TotalAgents        int              `json:"totalAgents"`
	SuccessfulAgents   int              `json:"successfulAgents"`
	FailedAgents       int              `json:"failedAgents"`
}

type ReadAgentInput struct {
	Task        string `json:"task"`
	Description string `json:"description"`
}

type ToolInvocationInput struct {
	ToolName   string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

type DeepResearchInput struct {
	Query        string `json:"query"`
	MaxDepth     int    `json:"maxDepth,omitempty"`
	CurrentDepth int    `json:"currentDepth,omitempty"`
	MaxFollowUps int    `json:"maxFollowUps,omitempty"`
}

type DeepResearchResult struct {
	Query   string        `json:"query"`
	Depth   int           `json:"depth"`
	Results []interface{} `json:"results"`
}
