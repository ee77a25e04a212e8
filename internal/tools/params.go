package tools

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params is the validated parameter shape of one tool.
type Params interface {
	Validate() error
}

// EditOp is one replacement inside an edit or multi_edit call.
type EditOp struct {
	OldString  string `json:"old_string" mapstructure:"old_string"`
	NewString  string `json:"new_string" mapstructure:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty" mapstructure:"replace_all"`
}

type LsParams struct {
	Path string `json:"path" mapstructure:"path"`
}

func (p *LsParams) Validate() error { return nil }

type ReadParams struct {
	FilePath string `json:"file_path" mapstructure:"file_path"`
	Offset   int    `json:"offset,omitempty" mapstructure:"offset"`
	Limit    int    `json:"limit,omitempty" mapstructure:"limit"`
}

func (p *ReadParams) Validate() error {
	if p.FilePath == "" {
		return missing("file_path")
	}
	if p.Offset < 0 || p.Limit < 0 {
		return invalid("offset and limit must be non-negative")
	}
	return nil
}

// EditParams covers both edit and multi_edit. A single edit may use the inline fields.
type EditParams struct {
	FilePath   string   `json:"file_path" mapstructure:"file_path"`
	Path       string   `json:"path,omitempty" mapstructure:"path"`
	OldString  string   `json:"old_string,omitempty" mapstructure:"old_string"`
	NewString  string   `json:"new_string,omitempty" mapstructure:"new_string"`
	ReplaceAll bool     `json:"replace_all,omitempty" mapstructure:"replace_all"`
	Edits      []EditOp `json:"edits,omitempty" mapstructure:"edits"`
	multi      bool
}

func (p *EditParams) Validate() error {
	if p.Target() == "" {
		return missing("file_path")
	}
	if p.multi && len(p.Edits) == 0 {
		return missing("edits")
	}
	if len(p.Edits) == 0 && p.OldString == "" && p.NewString == "" {
		return invalid("edit requires old_string/new_string or edits")
	}
	return nil
}

// Target returns the file the edit applies to.
func (p *EditParams) Target() string {
	if p.FilePath != "" {
		return p.FilePath
	}
	return p.Path
}

// Ops returns every replacement, inline fields first.
func (p *EditParams) Ops() []EditOp {
	var ops []EditOp
	if p.OldString != "" || p.NewString != "" {
		ops = append(ops, EditOp{OldString: p.OldString, NewString: p.NewString, ReplaceAll: p.ReplaceAll})
	}
	return append(ops, p.Edits...)
}

type WriteParams struct {
	FilePath string `json:"file_path" mapstructure:"file_path"`
	Path     string `json:"path,omitempty" mapstructure:"path"`
	Content  string `json:"content" mapstructure:"content"`
}

func (p *WriteParams) Validate() error {
	if p.Target() == "" {
		return missing("file_path")
	}
	return nil
}

func (p *WriteParams) Target() string {
	if p.FilePath != "" {
		return p.FilePath
	}
	return p.Path
}

// SearchParams covers glob and grep.
type SearchParams struct {
	Pattern string `json:"pattern" mapstructure:"pattern"`
	Path    string `json:"path,omitempty" mapstructure:"path"`
	Include string `json:"include,omitempty" mapstructure:"include"`
}

func (p *SearchParams) Validate() error {
	if p.Pattern == "" {
		return missing("pattern")
	}
	return nil
}

type BashRunParams struct {
	Command   string `json:"command" mapstructure:"command"`
	CommandID string `json:"command_id,omitempty" mapstructure:"command_id"`
	// TimeoutSeconds caps the command below the activity timeout when set.
	TimeoutSeconds  int  `json:"timeout,omitempty" mapstructure:"timeout"`
	SimulateTimeout bool `json:"simulateTimeout,omitempty" mapstructure:"simulateTimeout"`
}

func (p *BashRunParams) Validate() error {
	if strings.TrimSpace(p.Command) == "" {
		return missing("command")
	}
	if p.TimeoutSeconds < 0 {
		return invalid("timeout must be non-negative")
	}
	return nil
}

type BashCommandCheckParams struct {
	CommandID string `json:"command_id" mapstructure:"command_id"`
}

func (p *BashCommandCheckParams) Validate() error {
	if p.CommandID == "" {
		return missing("command_id")
	}
	return nil
}

type WebSearchParams struct {
	Query      string `json:"query,omitempty" mapstructure:"query"`
	Q          string `json:"q,omitempty" mapstructure:"q"`
	MaxResults int    `json:"maxResults,omitempty" mapstructure:"maxResults"`
}

func (p *WebSearchParams) Validate() error {
	if p.Text() == "" {
		return missing("query")
	}
	return nil
}

// Text returns the search text, preferring query over q.
func (p *WebSearchParams) Text() string {
	if p.Query != "" {
		return p.Query
	}
	return p.Q
}

// URLParams covers browser_navigate and web_download.
type URLParams struct {
	URL  string `json:"url" mapstructure:"url"`
	Path string `json:"path,omitempty" mapstructure:"path"`
}

func (p *URLParams) Validate() error {
	if p.URL == "" {
		return missing("url")
	}
	if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
		return invalid("url must be http or https")
	}
	return nil
}

type ImageGenerateParams struct {
	Prompt string `json:"prompt" mapstructure:"prompt"`
	Path   string `json:"path,omitempty" mapstructure:"path"`
}

func (p *ImageGenerateParams) Validate() error {
	if p.Prompt == "" {
		return missing("prompt")
	}
	return nil
}

type CodeTemplateParams struct {
	Name string `json:"name" mapstructure:"name"`
	Type string `json:"type,omitempty" mapstructure:"type"`
}

func (p *CodeTemplateParams) Validate() error {
	if p.Name == "" {
		return missing("name")
	}
	return nil
}

type MessageUpdateParams struct {
	Message     string `json:"message" mapstructure:"message"`
	Status      string `json:"status,omitempty" mapstructure:"status"`
	StatusEmoji string `json:"status_emoji,omitempty" mapstructure:"status_emoji"`
}

func (p *MessageUpdateParams) Validate() error {
	if p.Message == "" {
		return missing("message")
	}
	return nil
}

type TodoItem struct {
	Content string `json:"content" mapstructure:"content"`
	Status  string `json:"status,omitempty" mapstructure:"status"`
}

type TodoParams struct {
	Todos []TodoItem `json:"todos" mapstructure:"todos"`
}

func (p *TodoParams) Validate() error {
	for i, t := range p.Todos {
		if t.Content == "" {
			return invalid(fmt.Sprintf("todos[%d].content is required", i))
		}
	}
	return nil
}

type FollowUpsParams struct {
	FollowUps []string `json:"follow_ups" mapstructure:"follow_ups"`
}

func (p *FollowUpsParams) Validate() error { return nil }

type ReadAgentParams struct {
	Task        string `json:"task" mapstructure:"task"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

func (p *ReadAgentParams) Validate() error {
	if p.Task == "" {
		return missing("task")
	}
	return nil
}

// HandoffParams is the structured summary handed to a fresh execution.
type HandoffParams struct {
	PrimaryRequest    string `json:"primary_request" mapstructure:"primary_request"`
	Reason            string `json:"reason" mapstructure:"reason"`
	KeyTopics         string `json:"key_topics" mapstructure:"key_topics"`
	FilesAndResources string `json:"files_and_resources" mapstructure:"files_and_resources"`
	ProblemSolving    string `json:"problem_solving" mapstructure:"problem_solving"`
	CurrentTask       string `json:"current_task" mapstructure:"current_task"`
	NextStep          string `json:"next_step" mapstructure:"next_step"`
	ErrorsAndFixes    string `json:"errors_and_fixes,omitempty" mapstructure:"errors_and_fixes"`
}

func (p *HandoffParams) Validate() error {
	if p.Reason == "" {
		return missing("reason")
	}
	return nil
}

// Map renders the handoff as executor parameters.
func (p HandoffParams) Map() map[string]interface{} {
	m := map[string]interface{}{
		"primary_request":     p.PrimaryRequest,
		"reason":              p.Reason,
		"key_topics":          p.KeyTopics,
		"files_and_resources": p.FilesAndResources,
		"problem_solving":     p.ProblemSolving,
		"current_task":        p.CurrentTask,
		"next_step":           p.NextStep,
	}
	if p.ErrorsAndFixes != "" {
		m["errors_and_fixes"] = p.ErrorsAndFixes
	}
	return m
}

// GenericParams is used by provider-backed tools whose arguments are passed through as-is.
type GenericParams map[string]interface{}

func (p GenericParams) Validate() error { return nil }

// Decode converts raw parameters into the variant registered for name and validates it.
func Decode(name string, raw map[string]interface{}) (Params, error) {
	var p Params
	switch name {
	case ToolLs:
		p = &LsParams{}
	case ToolRead:
		p = &ReadParams{}
	case ToolEdit:
		p = &EditParams{}
	case ToolMultiEdit:
		p = &EditParams{multi: true}
	case ToolWrite:
		p = &WriteParams{}
	case ToolGlob, ToolGrep:
		p = &SearchParams{}
	case ToolBashRun:
		p = &BashRunParams{}
	case ToolBashCommandCheck:
		p = &BashCommandCheckParams{}
	case ToolWebSearch:
		p = &WebSearchParams{}
	case ToolBrowserNavigate, ToolWebDownload:
		p = &URLParams{}
	case ToolImageGenerate:
		p = &ImageGenerateParams{}
	case ToolCodeTemplate:
		p = &CodeTemplateParams{}
	case ToolMessageUpdate:
		p = &MessageUpdateParams{}
	case ToolTodo:
		p = &TodoParams{}
	case ToolFollowUps:
		p = &FollowUpsParams{}
	case ToolReadAgent:
		p = &ReadAgentParams{}
	case ToolHandoff:
		p = &HandoffParams{}
	default:
		g := GenericParams{}
		for k, v := range raw {
			g[k] = v
		}
		return g, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameters, name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidParameters, field)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameters, msg)
}
