package activities

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	maxDownloadBytes = 20 << 20
	maxAgentFiles    = 200
	maxAgentRelevant = 20
	minKeywordLength = 4
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func (a *Activities) fetch(ctx context.Context, rawURL string, limit int64) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, nonRetryable(tools.ErrTypeInvalidParameters, "bad url %q: %v", rawURL, err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, nil, retryable(tools.ErrTypeProviderUnavailable, err, "fetch %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, nil, retryable(tools.ErrTypeProviderUnavailable, nil, "fetch %s: %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, retryable(tools.ErrTypeProviderUnavailable, err, "read %s: %v", rawURL, err)
	}
	return resp, body, nil
}

func (a *Activities) browserNavigate(ctx context.Context, p *tools.URLParams) (tools.Result, error) {
	resp, body, err := a.fetch(ctx, p.URL, maxReadBytes)
	if err != nil {
		return nil, err
	}
	status := "ok"
	if resp.StatusCode >= 400 {
		status = "error"
	}
	title := ""
	if m := titlePattern.FindSubmatch(body); m != nil {
		title = strings.TrimSpace(string(m[1]))
	}
	return tools.Result{"url": p.URL, "status": status, "status_code": resp.StatusCode, "title": title}, nil
}

// webDownload stores the body in the workspace. Rewriting the same file on retry is harmless.
func (a *Activities) webDownload(ctx context.Context, p *tools.URLParams) (tools.Result, error) {
	resp, body, err := a.fetch(ctx, p.URL, maxDownloadBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, nonRetryable(tools.ErrTypeInvalidParameters, "download %s: %s", p.URL, resp.Status)
	}
	dest := p.Path
	if dest == "" {
		dest = path.Base(resp.Request.URL.Path)
		if dest == "/" || dest == "." || dest == "" {
			dest = "download"
		}
	}
	target := workspacePath(dest)
	if err := a.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return nil, fsError("web_download", dest, err)
	}
	if err := afero.WriteFile(a.fs, target, body, 0o644); err != nil {
		return nil, fsError("web_download", dest, err)
	}
	return tools.Result{"url": p.URL, "path": dest, "bytes": len(body), "ok": true}, nil
}

// readAgent scans the workspace for files mentioning the task's keywords.
func (a *Activities) readAgent(ctx context.Context, p *tools.ReadAgentParams) (tools.Result, error) {
	keywords := taskKeywords(p.Task + " " + p.Description)
	examined := []string{}
	relevant := map[string]int{}

	err := afero.Walk(a.fs, "/", func(name string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && name != "/" {
				return filepath.SkipDir
			}
			return nil
		}
		if len(examined) >= maxAgentFiles || info.Size() > maxReadBytes {
			return nil
		}
		rel := strings.TrimPrefix(name, "/")
		examined = append(examined, rel)
		data, err := afero.ReadFile(a.fs, name)
		if err != nil {
			return nil
		}
		text := strings.ToLower(rel + "\n" + string(data))
		for _, k := range keywords {
			if strings.Contains(text, k) {
				relevant[rel]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, retryable(tools.ErrTypeProviderUnavailable, err, "read_agent: %v", err)
	}

	files := make([]string, 0, len(relevant))
	for f := range relevant {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if relevant[files[i]] != relevant[files[j]] {
			return relevant[files[i]] > relevant[files[j]]
		}
		return files[i] < files[j]
	})
	if len(files) > maxAgentRelevant {
		files = files[:maxAgentRelevant]
	}

	report := fmt.Sprintf("Summary for %q: examined %d files, %d relevant", p.Task, len(examined), len(files))
	if len(files) > 0 {
		report += ": " + strings.Join(files, ", ")
	}
	return tools.Result{
		"report":         report,
		"files_examined": examined,
		"relevant_files": files,
	}, nil
}

func taskKeywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if len(w) >= minKeywordLength && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

var codeTemplates = map[string]string{
	"go":         "package main\n\nfunc main() {\n}\n",
	"python":     "def main():\n    pass\n\n\nif __name__ == \"__main__\":\n    main()\n",
	"typescript": "export function main(): void {\n}\n",
}

func codeTemplate(p *tools.CodeTemplateParams) tools.Result {
	content, ok := codeTemplates[strings.ToLower(p.Type)]
	if !ok {
		content = "// template"
	}
	return tools.Result{"name": p.Name, "type": p.Type, "content": content}
}

// providerTool covers tools backed by external providers. With simulation on it
// returns canned payloads; otherwise the provider is reported unavailable.
func (a *Activities) providerTool(name string, params map[string]interface{}) (tools.Result, error) {
	if !a.cfg.SimulateProviders {
		return nil, retryable(tools.ErrTypeProviderUnavailable, nil, "no provider configured for %s", name)
	}
	switch name {
	case tools.ToolImageGenerate:
		return tools.Result{"imageUrl": "https://example.com/image.png", "prompt": params["prompt"]}, nil
	case tools.ToolImageEdit, tools.ToolComputer:
		return tools.Result{"ok": true}, nil
	case tools.ToolImageSearch, tools.ToolSocialsSearch:
		return tools.Result{"results": []interface{}{}}, nil
	case tools.ToolWebSearch:
		q := params["query"]
		if q == nil {
			q = params["q"]
		}
		return tools.Result{
			"results": []interface{}{map[string]interface{}{"title": "Result", "url": "https://example.com"}},
			"query":   q,
		}, nil
	case tools.ToolLSP:
		return tools.Result{"success": true}, nil
	}
	return nil, nonRetryable(tools.ErrTypeUnsupported, "Unsupported tool: %s", name)
}
