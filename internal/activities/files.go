package activities

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/chatflow/orchestrator/internal/tools"
)

const (
	maxSearchMatches = 200
	maxReadBytes     = 1 << 20
)

// workspacePath maps a caller path onto the workspace filesystem. Cleaning against "/"
// keeps ".." from climbing above the root.
func workspacePath(p string) string {
	if p == "" || p == "." {
		return "/"
	}
	return path.Clean("/" + p)
}

func (a *Activities) ls(p *tools.LsParams) (tools.Result, error) {
	display := p.Path
	if display == "" {
		display = "."
	}
	infos, err := afero.ReadDir(a.fs, workspacePath(p.Path))
	if err != nil {
		return nil, fsError("ls", display, err)
	}
	entries := make([]string, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() {
			name += "/"
		}
		entries = append(entries, name)
	}
	return tools.Result{"path": display, "entries": entries}, nil
}

func (a *Activities) read(p *tools.ReadParams) (tools.Result, error) {
	data, err := afero.ReadFile(a.fs, workspacePath(p.FilePath))
	if err != nil {
		return nil, fsError("read", p.FilePath, err)
	}
	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}
	content := string(data)
	if p.Offset > 0 || p.Limit > 0 {
		lines := strings.Split(content, "\n")
		from := p.Offset
		if from > len(lines) {
			from = len(lines)
		}
		to := len(lines)
		if p.Limit > 0 && from+p.Limit < to {
			to = from + p.Limit
		}
		content = strings.Join(lines[from:to], "\n")
	}
	return tools.Result{"file_path": p.FilePath, "content": content, "truncated": truncated}, nil
}

func (a *Activities) write(p *tools.WriteParams) (tools.Result, error) {
	target := workspacePath(p.Target())
	if err := a.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return nil, fsError("write", p.Target(), err)
	}
	if err := afero.WriteFile(a.fs, target, []byte(p.Content), 0o644); err != nil {
		return nil, fsError("write", p.Target(), err)
	}
	return tools.Result{"file_path": p.Target(), "bytes": len(p.Content)}, nil
}

// edit applies replacements in order. An op whose old text is gone but whose new text
// is present counts as already applied, so a retried edit converges.
func (a *Activities) edit(p *tools.EditParams) (tools.Result, error) {
	target := workspacePath(p.Target())
	data, err := afero.ReadFile(a.fs, target)
	if err != nil && !os.IsNotExist(err) {
		return nil, fsError("edit", p.Target(), err)
	}
	content := string(data)
	ops := p.Ops()
	applied := 0
	for i, op := range ops {
		switch {
		case op.OldString == "" && content == "":
			content = op.NewString
			applied++
		case strings.Contains(content, op.OldString) && op.OldString != "":
			n := 1
			if op.ReplaceAll {
				n = -1
			}
			content = strings.Replace(content, op.OldString, op.NewString, n)
			applied++
		case op.NewString != "" && strings.Contains(content, op.NewString):
			// already applied
		default:
			return nil, nonRetryable(tools.ErrTypeInvalidParameters,
				"edit %d: old_string not found in %s", i, p.Target())
		}
	}
	if err := a.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return nil, fsError("edit", p.Target(), err)
	}
	if err := afero.WriteFile(a.fs, target, []byte(content), 0o644); err != nil {
		return nil, fsError("edit", p.Target(), err)
	}
	return tools.Result{"file_path": p.Target(), "edits": len(ops), "applied": applied, "ok": true}, nil
}

func (a *Activities) glob(p *tools.SearchParams) (tools.Result, error) {
	if _, err := path.Match(p.Pattern, ""); err != nil {
		return nil, nonRetryable(tools.ErrTypeInvalidParameters, "glob: bad pattern %q", p.Pattern)
	}
	root := workspacePath(p.Path)
	var matches []string
	err := afero.Walk(a.fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(name, root), "/")
		if ok, _ := path.Match(p.Pattern, rel); ok {
			matches = append(matches, rel)
		} else if ok, _ := path.Match(p.Pattern, info.Name()); ok {
			matches = append(matches, rel)
		}
		if len(matches) >= maxSearchMatches {
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, fsError("glob", p.Path, err)
	}
	sort.Strings(matches)
	return tools.Result{"pattern": p.Pattern, "matches": nonNil(matches)}, nil
}

func (a *Activities) grep(p *tools.SearchParams) (tools.Result, error) {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return nil, nonRetryable(tools.ErrTypeInvalidParameters, "grep: bad pattern %q: %v", p.Pattern, err)
	}
	root := workspacePath(p.Path)
	var matches []string
	err = afero.Walk(a.fs, root, func(name string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Size() > maxReadBytes {
			return nil
		}
		if p.Include != "" {
			if ok, _ := path.Match(p.Include, info.Name()); !ok {
				return nil
			}
		}
		data, err := afero.ReadFile(a.fs, name)
		if err != nil {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(name, root), "/")
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					return errStopWalk
				}
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return nil, fsError("grep", p.Path, err)
	}
	return tools.Result{"pattern": p.Pattern, "matches": nonNil(matches)}, nil
}

var errStopWalk = errors.New("stop walk")

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// fsError classifies filesystem failures: missing files are the caller's mistake.
func fsError(op, p string, err error) error {
	if os.IsNotExist(err) {
		return nonRetryable(tools.ErrTypeInvalidParameters, "%s: %s does not exist", op, p)
	}
	return retryable(tools.ErrTypeProviderUnavailable, err, "%s %s: %v", op, p, err)
}
