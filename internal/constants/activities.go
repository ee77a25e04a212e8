package constants

// Activity names used for workflow registration and execution.
// These are wire names shared with existing workers; do not rename.
const (
	// Chat Activities
	GenerateChatResponseActivity = "generateChatResponse"
	InvokeToolActivity           = "invokeTool"
	SaveToDatabaseActivity       = "saveToDatabase"

	// Tool Executor
	ExecuteToolActivity = "executeCapyTool"

	// Research Activities
	ExecuteWebSearchActivity = "executeWebSearch"
	GenerateImageActivity    = "generateImage"
	AnalyzeDocumentActivity  = "analyzeDocument"
	ExecuteCodeActivity      = "executeCode"
)

// Workflow type names.
const (
	ChatWorkflow                  = "chatWorkflow"
	ApprovalWorkflow              = "approvalWorkflow"
	ToolChainWorkflow             = "toolChainWorkflow"
	ContextManagementWorkflow     = "contextManagementWorkflow"
	SubAgentOrchestrationWorkflow = "subAgentOrchestrationWorkflow"
	ReadAgentWorkflow             = "readAgentWorkflow"
	DeepResearchWorkflow          = "deepResearchWorkflow"
	ToolInvocationWorkflow        = "toolInvocationWorkflow"
)
