package tools

import "time"

// Category groups tools by the surface they act on.
type Category string

const (
	CategoryFile          Category = "file"
	CategoryImage         Category = "image"
	CategoryWeb           Category = "web"
	CategoryDev           Category = "dev"
	CategoryProject       Category = "project"
	CategoryLSP           Category = "lsp"
	CategorySocial        Category = "social"
	CategoryUI            Category = "ui"
	CategoryCommunication Category = "communication"
	CategoryAdvanced      Category = "advanced"
)

// Constraint is a policy flag evaluated before a tool runs.
type Constraint string

const (
	ConstraintPathValidation Constraint = "pathValidation"
	ConstraintTokenLimits    Constraint = "tokenLimits"
	ConstraintUserAuth       Constraint = "userAuth"
)

// Execution policy defaults for definitions that leave a field unset.
const (
	DefaultTimeout         = 5 * time.Minute
	DefaultInitialInterval = time.Second
	DefaultMaximumInterval = 30 * time.Second
	DefaultMaximumAttempts = 3
)

// RetryPolicy bounds how often an activity is retried.
type RetryPolicy struct {
	InitialInterval time.Duration `json:"initialInterval"`
	MaximumInterval time.Duration `json:"maximumInterval"`
	MaximumAttempts int32         `json:"maximumAttempts"`
}

// ToolDefinition describes one catalog entry. Definitions are immutable once registered.
type ToolDefinition struct {
	Name             string        `json:"name"`
	Category         Category      `json:"category"`
	RequiresApproval bool          `json:"requiresApproval"`
	Timeout          time.Duration `json:"timeout"`
	RetryPolicy      RetryPolicy   `json:"retryPolicy"`
	Constraints      []Constraint  `json:"constraints,omitempty"`
}

// HasConstraint reports whether c is set on the definition.
func (d ToolDefinition) HasConstraint(c Constraint) bool {
	for _, x := range d.Constraints {
		if x == c {
			return true
		}
	}
	return false
}

// withDefaults fills zero fields from the package defaults.
func (d ToolDefinition) withDefaults() ToolDefinition {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.RetryPolicy.InitialInterval <= 0 {
		d.RetryPolicy.InitialInterval = DefaultInitialInterval
	}
	if d.RetryPolicy.MaximumInterval <= 0 {
		d.RetryPolicy.MaximumInterval = DefaultMaximumInterval
	}
	if d.RetryPolicy.MaximumAttempts <= 0 {
		d.RetryPolicy.MaximumAttempts = DefaultMaximumAttempts
	}
	if len(d.Constraints) > 0 {
		d.Constraints = append([]Constraint(nil), d.Constraints...)
	}
	return d
}
