package tools

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/chatflow/orchestrator/internal/models"
)

func TestAssessRiskLevel(t *testing.T) {
	assert.Equal(t, models.RiskHigh, AssessRiskLevel(ToolBashRun, map[string]interface{}{"command": "rm -rf /tmp/x"}))
	assert.Equal(t, models.RiskMedium, AssessRiskLevel(ToolBashRun, map[string]interface{}{"command": "ls"}))
	assert.Equal(t, models.RiskMedium, AssessRiskLevel(ToolBashRun, nil))
	assert.Equal(t, models.RiskMedium, AssessRiskLevel(ToolWrite, nil))
	assert.Equal(t, models.RiskMedium, AssessRiskLevel(ToolWebDownload, nil))
	assert.Equal(t, models.RiskLow, AssessRiskLevel(ToolRead, map[string]interface{}{"command": "rm x"}))
}

func TestAssessRiskLevelProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("only bash_run with rm is high", prop.ForAll(
		func(name, cmd string) bool {
			level := AssessRiskLevel(name, map[string]interface{}{"command": cmd})
			if level == models.RiskHigh {
				return name == ToolBashRun && strings.Contains(cmd, "rm ")
			}
			return true
		},
		gen.OneConstOf(ToolBashRun, ToolEdit, ToolRead, ToolComputer, "custom"),
		gen.AnyString(),
	))

	properties.Property("unlisted tools are low", prop.ForAll(
		func(name string) bool {
			if _, listed := map[string]bool{
				ToolBashRun: true, ToolEdit: true, ToolMultiEdit: true, ToolWrite: true,
				ToolImageGenerate: true, ToolWebDownload: true, ToolComputer: true,
			}[name]; listed {
				return true
			}
			return AssessRiskLevel(name, nil) == models.RiskLow
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestEstimateTokenUsageOrdering(t *testing.T) {
	small := EstimateTokenUsage(ToolRead, nil, map[string]interface{}{"content": "x"})
	large := EstimateTokenUsage(ToolRead, nil, map[string]interface{}{"content": strings.Repeat("x", 4000)})
	assert.Greater(t, large, small)
	assert.Greater(t, EstimateTokenUsage(ToolImageGenerate, nil, nil), EstimateTokenUsage(ToolEdit, nil, nil))
	assert.Equal(t, EstimateTokenUsage("unknown", nil, nil), EstimateTokenUsage(ToolLSP, nil, nil))

	// Unserializable results fall back to a flat size.
	assert.Equal(t, 200, EstimateTokenUsage(ToolRead, nil, math.Inf(1)))
}

func TestEstimateTokenUsageMonotonic(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	properties.Property("longer content never costs less", prop.ForAll(
		func(a, b string) bool {
			if len(a) > len(b) {
				a, b = b, a
			}
			return EstimateTokenUsage(ToolRead, nil, a) <= EstimateTokenUsage(ToolRead, nil, b)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))
	properties.TestingRun(t)
}
