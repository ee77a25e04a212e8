package constants

// Signal names. Stable contract with external callers.
const (
	SignalUpdateModel        = "updateModel"
	SignalAddMessage         = "addMessage"
	SignalRequestApproval    = "requestApproval"
	SignalApproveAction      = "approveAction"
	SignalAddToolToChain     = "addToolToChain"
	SignalApproveTool        = "approveTool"
	SignalUpdateContext      = "updateContext"
	SignalContextWarning     = "contextWarning"
	SignalForceHandoff       = "forceHandoff"
	SignalRecordContextEntry = "recordContextEntry"
	SignalDeploySubAgent     = "deploySubAgent"
)

// Query names.
const (
	QueryConversation     = "getConversation"
	QueryCurrentModel     = "getCurrentModel"
	QueryPendingApprovals = "getPendingApprovals"
	QueryApprovalHistory  = "getApprovalHistory"
	QueryToolChain        = "getToolChain"
	QueryCurrentContext   = "getCurrentContext"
	QueryContextStatus    = "getContextStatus"
	QuerySubAgentTasks    = "getSubAgentTasks"
)

// Task queues (logical routing keys).
const (
	ChatQueue       = "chat-processing"
	ToolQueue       = "tool-invocation"
	ResearchQueue   = "research"
	BackgroundQueue = "background-tasks"
)

// TaskQueues lists every queue a worker process may poll.
var TaskQueues = []string{ChatQueue, ToolQueue, ResearchQueue, BackgroundQueue}
