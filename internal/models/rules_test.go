package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoApprovalRuleMatches(t *testing.T) {
	rules := []AutoApprovalRule{
		{ToolName: "read"},
		{ToolName: "bash_run", Conditions: []RuleCondition{
			{Param: "command", Op: OpPrefix, Value: "ls"},
			{Param: "command", Op: OpNotContains, Value: "rm "},
		}},
	}

	_, ok := FirstMatch(rules, "read", nil)
	assert.True(t, ok)

	_, ok = FirstMatch(rules, "bash_run", map[string]interface{}{"command": "ls -la"})
	assert.True(t, ok)

	_, ok = FirstMatch(rules, "bash_run", map[string]interface{}{"command": "ls; rm -rf x"})
	assert.False(t, ok)

	_, ok = FirstMatch(rules, "bash_run", nil)
	assert.False(t, ok)

	_, ok = FirstMatch(rules, "write", map[string]interface{}{"command": "ls"})
	assert.False(t, ok)
}

func TestRuleConditionOps(t *testing.T) {
	params := map[string]interface{}{"n": 3, "s": "abc"}
	cases := []struct {
		c    RuleCondition
		want bool
	}{
		{RuleCondition{Param: "n", Op: OpEquals, Value: "3"}, true},
		{RuleCondition{Param: "n", Op: OpNotEquals, Value: "3"}, false},
		{RuleCondition{Param: "missing", Op: OpNotEquals, Value: "3"}, true},
		{RuleCondition{Param: "s", Op: OpContains, Value: "b"}, true},
		{RuleCondition{Param: "missing", Op: OpContains, Value: ""}, false},
		{RuleCondition{Param: "s", Op: OpExists}, true},
		{RuleCondition{Param: "missing", Op: OpExists}, false},
		{RuleCondition{Param: "s", Op: "regex", Value: "."}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.c.holds(params), "%+v", tc.c)
	}
}

func TestAutoApprovalRuleValidate(t *testing.T) {
	require.NoError(t, AutoApprovalRule{ToolName: "read"}.Validate())
	require.Error(t, AutoApprovalRule{}.Validate())
	require.Error(t, AutoApprovalRule{ToolName: "x", Conditions: []RuleCondition{{Param: "p", Op: "nope"}}}.Validate())
	require.Error(t, AutoApprovalRule{ToolName: "x", Conditions: []RuleCondition{{Op: OpExists}}}.Validate())
}
