package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/chatflow/orchestrator/internal/models"
)

type rulesFile struct {
	Rules []models.AutoApprovalRule `yaml:"rules"`
}

// ParseRules decodes and validates an approval rules document.
func ParseRules(data []byte) ([]models.AutoApprovalRule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse approval rules: %w", err)
	}
	for _, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Rules, nil
}

// LoadRules reads an approval rules file. A missing file yields no rules.
func LoadRules(path string) ([]models.AutoApprovalRule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read approval rules: %w", err)
	}
	return ParseRules(data)
}

// Watcher hot-reloads the approval rules file and signals policy reloads when .rego files
// in the policy directory change. An invalid edit keeps the last good rules.
type Watcher struct {
	rulesPath string
	policyDir string
	logger    *zap.Logger

	rules    atomic.Pointer[[]models.AutoApprovalRule]
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	handlers []func() error
	started  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher. Either path may be empty.
func NewWatcher(rulesPath, policyDir string, logger *zap.Logger) *Watcher {
	w := &Watcher{
		rulesPath: rulesPath,
		policyDir: policyDir,
		logger:    logger,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.rules.Store(&[]models.AutoApprovalRule{})
	return w
}

// Rules returns a copy of the current rules.
func (w *Watcher) Rules() []models.AutoApprovalRule {
	cur := *w.rules.Load()
	return append([]models.AutoApprovalRule(nil), cur...)
}

// RegisterPolicyHandler adds a callback run after a policy file changes.
func (w *Watcher) RegisterPolicyHandler(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Start loads the rules and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if w.rulesPath != "" {
		if err := w.reloadRules(); err != nil {
			return err
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fw

	for _, dir := range w.dirs() {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("Cannot watch config directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	go w.loop(ctx)

	w.logger.Info("Configuration watcher started",
		zap.String("rules_file", w.rulesPath),
		zap.String("policy_dir", w.policyDir),
		zap.Int("rules", len(w.Rules())),
	)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) dirs() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range []string{dirOf(w.rulesPath), w.policyDir} {
		if d == "" || seen[d] {
			continue
		}
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

func dirOf(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}

	switch {
	case w.rulesPath != "" && filepath.Clean(ev.Name) == filepath.Clean(w.rulesPath):
		if err := w.reloadRules(); err != nil {
			w.logger.Error("Approval rules reload failed, keeping previous rules", zap.Error(err))
		}
	case strings.HasSuffix(ev.Name, ".rego"):
		w.mu.Lock()
		handlers := append([]func() error(nil), w.handlers...)
		w.mu.Unlock()
		for _, h := range handlers {
			if err := h(); err != nil {
				w.logger.Error("Policy reload failed", zap.String("file", ev.Name), zap.Error(err))
			}
		}
	}
}

func (w *Watcher) reloadRules() error {
	data, err := os.ReadFile(w.rulesPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read approval rules: %w", err)
	}
	// Writers truncate before writing; a zero-length file is an edit in progress.
	if len(data) == 0 && err == nil && w.watcher != nil {
		return nil
	}
	rules, err := ParseRules(data)
	if err != nil {
		return err
	}
	if rules == nil {
		rules = []models.AutoApprovalRule{}
	}
	w.rules.Store(&rules)
	w.logger.Info("Approval rules loaded", zap.String("file", w.rulesPath), zap.Int("rules", len(rules)))
	return nil
}
