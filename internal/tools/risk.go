package tools

import (
	"strings"

	"github.com/chatflow/orchestrator/internal/models"
)

// AssessRiskLevel classifies a tool call for approval routing.
func AssessRiskLevel(name string, params map[string]interface{}) string {
	switch name {
	case ToolBashRun:
		if cmd, _ := params["command"].(string); strings.Contains(cmd, "rm ") {
			return models.RiskHigh
		}
		return models.RiskMedium
	case ToolEdit, ToolMultiEdit, ToolWrite:
		return models.RiskMedium
	case ToolImageGenerate, ToolWebDownload, ToolComputer:
		return models.RiskMedium
	}
	return models.RiskLow
}
