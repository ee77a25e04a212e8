package activities

import (
	"context"
	"strings"

	"go.temporal.io/sdk/activity"
)

// SearchQuery is one query of a multi-query search.
type SearchQuery struct {
	Query      string `json:"query"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type WebSearchRequest struct {
	Q             string        `json:"q,omitempty"`
	Query         string        `json:"query,omitempty"`
	SearchQueries []SearchQuery `json:"search_queries,omitempty"`
	MaxResults    int           `json:"maxResults,omitempty"`
}

type ImageRequest struct {
	Prompt string `json:"prompt"`
}

type DocumentRequest struct {
	URL string `json:"url,omitempty"`
	ID  string `json:"id,omitempty"`
}

type CodeRequest struct {
	Code  string `json:"code"`
	Title string `json:"title,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

const maxDocumentChars = 20000

// ExecuteWebSearch runs every query of the request.
func (a *Activities) ExecuteWebSearch(ctx context.Context, req WebSearchRequest) (map[string]interface{}, error) {
	text := req.Q
	if text == "" {
		text = req.Query
	}
	queries := req.SearchQueries
	if len(queries) == 0 {
		queries = []SearchQuery{{Query: text, MaxResults: req.MaxResults}}
	}
	for i := range queries {
		if queries[i].MaxResults <= 0 {
			queries[i].MaxResults = 5
		}
	}
	activity.GetLogger(ctx).Info("Executing web search", "queries", len(queries))

	if !a.cfg.SimulateProviders {
		return map[string]interface{}{
			"searches": []interface{}{},
			"error":    "search provider not configured",
			"query":    text,
		}, nil
	}
	searches := make([]interface{}, 0, len(queries))
	for _, q := range queries {
		searches = append(searches, map[string]interface{}{
			"query":   q.Query,
			"results": []interface{}{map[string]interface{}{"title": "Result", "url": "https://example.com"}},
		})
	}
	return map[string]interface{}{"searches": searches, "query": text}, nil
}

func (a *Activities) GenerateImage(ctx context.Context, req ImageRequest) (map[string]interface{}, error) {
	if !a.cfg.SimulateProviders {
		return map[string]interface{}{"error": "image provider not configured", "prompt": req.Prompt}, nil
	}
	return map[string]interface{}{"imageUrl": "https://example.com/image.png", "prompt": req.Prompt}, nil
}

// AnalyzeDocument retrieves a document by url. Lookups by id need session context
// this service does not have.
func (a *Activities) AnalyzeDocument(ctx context.Context, req DocumentRequest) (map[string]interface{}, error) {
	if req.URL == "" {
		return map[string]interface{}{
			"error":  "Unsupported parameters: provide url",
			"params": map[string]interface{}{"id": req.ID},
		}, nil
	}
	resp, body, err := a.fetch(ctx, req.URL, maxReadBytes)
	if err != nil {
		return nil, err
	}
	content := string(body)
	title := ""
	if m := titlePattern.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
	}
	truncated := false
	if len(content) > maxDocumentChars {
		content = content[:maxDocumentChars]
		truncated = true
	}
	return map[string]interface{}{
		"url":          req.URL,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"title":        title,
		"content":      content,
		"truncated":    truncated,
	}, nil
}

func (a *Activities) ExecuteCode(ctx context.Context, req CodeRequest) (map[string]interface{}, error) {
	activity.GetLogger(ctx).Info("Code execution requested", "title", req.Title, "bytes", len(req.Code))
	return map[string]interface{}{"message": "Code sandbox not configured", "chart": ""}, nil
}
