package models

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Task statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Message is one entry of a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelConfig identifies the model answering a conversation. Replaced wholesale, never merged.
type ModelConfig struct {
	Model        string   `json:"model"`
	Provider     string   `json:"provider"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ToolInvocation is a tool call requested by the model during a chat turn.
type ToolInvocation struct {
	ID         string                 `json:"id,omitempty"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ApprovalRequest is a risky tool call awaiting a human decision.
type ApprovalRequest struct {
	ID         string                 `json:"id"`
	ToolName   string                 `json:"toolName"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Reasoning  string                 `json:"reasoning"`
	RiskLevel  string                 `json:"riskLevel"`
	Timestamp  time.Time              `json:"timestamp"`
	// Timeout in seconds; zero waits indefinitely.
	Timeout int `json:"timeout,omitempty"`
}

// ApprovalDecision resolves a pending ApprovalRequest.
type ApprovalDecision struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
	Feedback  string `json:"feedback,omitempty"`
}

// ApprovalRecord is an immutable history entry.
type ApprovalRecord struct {
	Request      ApprovalRequest `json:"request"`
	Approved     bool            `json:"approved"`
	UserFeedback string          `json:"userFeedback,omitempty"`
	ApprovedAt   time.Time       `json:"approvedAt"`
	AutoApproved bool            `json:"autoApproved"`
}

// SubAgentTask is one unit of work handed to a sub-agent.
type SubAgentTask struct {
	ID          string `json:"id"`
	Task        string `json:"task"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Result      string `json:"result,omitempty"`
}

// IsTerminal reports whether the task can no longer change status.
func (t SubAgentTask) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
