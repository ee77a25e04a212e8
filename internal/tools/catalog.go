package tools

import "time"

// Tool names referenced directly by workflows.
const (
	ToolLs               = "ls"
	ToolRead             = "read"
	ToolEdit             = "edit"
	ToolMultiEdit        = "multi_edit"
	ToolGlob             = "glob"
	ToolGrep             = "grep"
	ToolWrite            = "write"
	ToolImageGenerate    = "image_generate"
	ToolImageEdit        = "image_edit"
	ToolImageSearch      = "image_search"
	ToolWebSearch        = "web_search"
	ToolBrowserNavigate  = "browser_navigate"
	ToolWebDownload      = "web_download"
	ToolBashRun          = "bash_run"
	ToolBashCommandCheck = "bash_command_check"
	ToolCodeTemplate     = "code_template"
	ToolLSP              = "lsp"
	ToolSocialsSearch    = "socials_search"
	ToolComputer         = "computer"
	ToolMessageUpdate    = "message_update"
	ToolFollowUps        = "follow_ups"
	ToolTodo             = "todo"
	ToolReadAgent        = "read_agent"
	ToolHandoff          = "handoff"
)

// DefaultDefinitions returns the built-in tool catalog in registration order.
func DefaultDefinitions() []ToolDefinition {
	path := []Constraint{ConstraintPathValidation}
	tokens := []Constraint{ConstraintTokenLimits}

	return []ToolDefinition{
		// File operations
		{Name: ToolLs, Category: CategoryFile, Timeout: 30 * time.Second, Constraints: path},
		{Name: ToolRead, Category: CategoryFile, Timeout: time.Minute, Constraints: path},
		{Name: ToolEdit, Category: CategoryFile, Timeout: 2 * time.Minute, Constraints: path},
		{Name: ToolMultiEdit, Category: CategoryFile, Timeout: 5 * time.Minute, Constraints: path},
		{Name: ToolGlob, Category: CategoryFile, Timeout: 30 * time.Second},
		{Name: ToolGrep, Category: CategoryFile, Timeout: time.Minute},
		{Name: ToolWrite, Category: CategoryFile, Timeout: time.Minute},

		// Image
		{Name: ToolImageGenerate, Category: CategoryImage, Timeout: 10 * time.Minute, RequiresApproval: true, Constraints: path},
		{Name: ToolImageEdit, Category: CategoryImage, Timeout: 8 * time.Minute, RequiresApproval: true},
		{Name: ToolImageSearch, Category: CategoryImage, Timeout: time.Minute},

		// Web
		{Name: ToolWebSearch, Category: CategoryWeb, Timeout: 2 * time.Minute},
		{Name: ToolBrowserNavigate, Category: CategoryWeb, Timeout: 30 * time.Second},
		{Name: ToolWebDownload, Category: CategoryWeb, Timeout: 2 * time.Minute},

		// Dev
		{Name: ToolBashRun, Category: CategoryDev, Timeout: 10 * time.Minute, RequiresApproval: true, Constraints: []Constraint{ConstraintUserAuth}},
		{Name: ToolBashCommandCheck, Category: CategoryDev, Timeout: 30 * time.Second},
		{Name: ToolCodeTemplate, Category: CategoryDev, Timeout: 30 * time.Second},

		{Name: ToolLSP, Category: CategoryLSP, Timeout: time.Minute},
		{Name: ToolSocialsSearch, Category: CategorySocial, Timeout: time.Minute},
		{Name: ToolComputer, Category: CategoryUI, Timeout: 30 * time.Second},

		// Communication
		{Name: ToolMessageUpdate, Category: CategoryCommunication, Timeout: 10 * time.Second},
		{Name: ToolFollowUps, Category: CategoryCommunication, Timeout: time.Second},
		{Name: ToolTodo, Category: CategoryCommunication, Timeout: 30 * time.Second},

		// Advanced
		{Name: ToolReadAgent, Category: CategoryAdvanced, Timeout: 5 * time.Minute, Constraints: tokens},
		{Name: ToolHandoff, Category: CategoryAdvanced, Timeout: time.Second, Constraints: tokens},
	}
}
