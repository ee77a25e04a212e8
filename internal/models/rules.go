package models

import (
	"fmt"
	"strings"
)

// Condition operators for auto-approval rules.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpPrefix      = "prefix"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpExists      = "exists"
)

// RuleCondition tests one parameter of a tool call.
type RuleCondition struct {
	Param string `json:"param" yaml:"param"`
	Op    string `json:"op" yaml:"op"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// AutoApprovalRule approves a request when the tool matches and every condition holds.
// Rules are plain data so they survive workflow history and continue-as-new.
type AutoApprovalRule struct {
	ToolName   string          `json:"toolName" yaml:"tool"`
	Conditions []RuleCondition `json:"conditions,omitempty" yaml:"when,omitempty"`
}

// Validate checks operators and required fields.
func (r AutoApprovalRule) Validate() error {
	if r.ToolName == "" {
		return fmt.Errorf("rule: tool is required")
	}
	for i, c := range r.Conditions {
		if c.Param == "" {
			return fmt.Errorf("rule %s: condition %d: param is required", r.ToolName, i)
		}
		switch c.Op {
		case OpEquals, OpNotEquals, OpPrefix, OpContains, OpNotContains, OpExists:
		default:
			return fmt.Errorf("rule %s: condition %d: unknown op %q", r.ToolName, i, c.Op)
		}
	}
	return nil
}

// Matches reports whether the rule applies to a call of toolName with params.
func (r AutoApprovalRule) Matches(toolName string, params map[string]interface{}) bool {
	if r.ToolName != toolName {
		return false
	}
	for _, c := range r.Conditions {
		if !c.holds(params) {
			return false
		}
	}
	return true
}

func (c RuleCondition) holds(params map[string]interface{}) bool {
	raw, ok := params[c.Param]
	if c.Op == OpExists {
		return ok
	}
	var s string
	if ok && raw != nil {
		s = fmt.Sprint(raw)
	}
	switch c.Op {
	case OpEquals:
		return ok && s == c.Value
	case OpNotEquals:
		return !ok || s != c.Value
	case OpPrefix:
		return ok && strings.HasPrefix(s, c.Value)
	case OpContains:
		return ok && strings.Contains(s, c.Value)
	case OpNotContains:
		return !strings.Contains(s, c.Value)
	}
	return false
}

// FirstMatch returns the first rule matching the call.
func FirstMatch(rules []AutoApprovalRule, toolName string, params map[string]interface{}) (AutoApprovalRule, bool) {
	for _, r := range rules {
		if r.Matches(toolName, params) {
			return r, true
		}
	}
	return AutoApprovalRule{}, false
}
