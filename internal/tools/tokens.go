package tools

import "encoding/json"

const defaultBaseTokens = 100

var baseTokens = map[string]int{
	ToolRead:          100,
	ToolEdit:          50,
	ToolWebSearch:     200,
	ToolImageGenerate: 300,
	ToolBashRun:       150,
	ToolLSP:           100,
}

// EstimateTokenUsage approximates the context cost of a tool result: a per-tool base plus
// a quarter of the serialized result length. Only the relative size matters.
func EstimateTokenUsage(name string, params map[string]interface{}, result interface{}) int {
	base, ok := baseTokens[name]
	if !ok {
		base = defaultBaseTokens
	}
	b, err := json.Marshal(result)
	if err != nil {
		return base + 100
	}
	return base + len(b)/4
}
