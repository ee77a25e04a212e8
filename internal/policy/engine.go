package policy

import (
	"container/list"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/metrics"
)

//go:embed default.rego
var defaultPolicy string

const decisionQuery = "data.chatflow.tools.decision"

// Engine defines the policy evaluation interface
type Engine interface {
	Evaluate(ctx context.Context, input *ToolInput) (*Decision, error)
	IsEnabled() bool
	Mode() Mode
}

// ToolInput is the document a tool call is evaluated against.
type ToolInput struct {
	Tool        string                 `json:"tool"`
	Constraints []string               `json:"constraints"`
	Paths       []string               `json:"paths"`
	UserID      string                 `json:"user_id,omitempty"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	TokenCount  int                    `json:"token_count"`
	TokenLimit  int                    `json:"token_limit"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Environment string                 `json:"environment"`
}

// Decision represents the policy evaluation result
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
	// DryRunDenied is set when dry-run mode let a denied call through.
	DryRunDenied bool `json:"dry_run_denied,omitempty"`
}

// OPAEngine implements Engine using OPA rego
type OPAEngine struct {
	config   *Config
	logger   *zap.Logger
	compiled atomic.Pointer[rego.PreparedEvalQuery]
	enabled  bool
	cache    *decisionCache
}

// NewOPAEngine creates a new OPA-based policy engine
func NewOPAEngine(config *Config, logger *zap.Logger) (*OPAEngine, error) {
	e := &OPAEngine{
		config:  config,
		logger:  logger,
		enabled: config.Enabled && config.Mode != ModeOff,
		cache:   newDecisionCache(1000, 5*time.Minute),
	}
	if !e.enabled {
		return e, nil
	}
	if err := e.LoadPolicies(); err != nil {
		if config.FailClosed {
			return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
		}
		logger.Warn("Failed to load policies, running in fail-open mode", zap.Error(err))
		e.enabled = false
	}
	return e, nil
}

// LoadPolicies compiles the .rego files under the configured path, or the
// built-in tool policy when none exist. A failed reload keeps the previous set.
func (e *OPAEngine) LoadPolicies() error {
	modules, err := e.readModules()
	if err != nil {
		return err
	}
	opts := []func(*rego.Rego){rego.Query(decisionQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.compiled.Store(&prepared)
	e.cache.Clear()

	e.logger.Info("Policies loaded and compiled successfully",
		zap.Int("policy_count", len(modules)),
		zap.String("decision_query", decisionQuery),
	)
	return nil
}

func (e *OPAEngine) readModules() (map[string]string, error) {
	modules := make(map[string]string)
	if e.config.Path != "" {
		err := filepath.Walk(e.config.Path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read policy file %s: %w", path, err)
			}
			rel, _ := filepath.Rel(e.config.Path, path)
			modules[strings.TrimSuffix(rel, ".rego")] = string(content)
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to walk policy directory: %w", err)
		}
	}
	if len(modules) == 0 {
		e.logger.Debug("No policy files found, using built-in tool policy", zap.String("path", e.config.Path))
		modules["builtin/tools"] = defaultPolicy
	}
	return modules, nil
}

// Evaluate evaluates the tool call. Dry-run mode always allows but records
// what would have been denied.
func (e *OPAEngine) Evaluate(ctx context.Context, input *ToolInput) (*Decision, error) {
	compiled := e.compiled.Load()
	if !e.enabled || compiled == nil {
		return &Decision{Allow: true, Reason: "policy engine disabled"}, nil
	}
	if input.Environment == "" {
		input.Environment = e.config.Environment
	}

	key, inputMap, err := toInput(input)
	if err != nil {
		e.logger.Error("Failed to convert input to map", zap.Error(err))
		if e.config.FailClosed {
			return &Decision{Allow: false, Reason: "input conversion failed"}, err
		}
		return &Decision{Allow: true, Reason: "input conversion failed"}, nil
	}

	decision, ok := e.cache.Get(key)
	if !ok {
		results, err := compiled.Eval(ctx, rego.EvalInput(inputMap))
		if err != nil {
			e.logger.Error("Policy evaluation failed", zap.Error(err))
			if e.config.FailClosed {
				return &Decision{Allow: false, Reason: "policy evaluation error"}, err
			}
			return &Decision{Allow: true, Reason: "policy evaluation error"}, nil
		}
		decision = parseResults(results)
		e.cache.Set(key, decision)
	}

	out := *decision
	if !out.Allow {
		metrics.PolicyDenials.WithLabelValues(input.Tool, string(e.config.Mode)).Inc()
		if e.config.Mode == ModeDryRun {
			e.logger.Info("Policy would deny tool call (dry-run)",
				zap.String("tool", input.Tool),
				zap.String("reason", out.Reason),
			)
			out.Allow = true
			out.DryRunDenied = true
		}
	}
	return &out, nil
}

// IsEnabled returns whether the policy engine is enabled and ready
func (e *OPAEngine) IsEnabled() bool {
	return e.enabled && e.compiled.Load() != nil
}

// Mode returns the configured enforcement mode
func (e *OPAEngine) Mode() Mode { return e.config.Mode }

func toInput(input *ToolInput) (string, map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%x", h.Sum64()), m, nil
}

func parseResults(results rego.ResultSet) *Decision {
	d := &Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return d
	}
	switch v := results[0].Expressions[0].Value.(type) {
	case map[string]interface{}:
		if allow, ok := v["allow"].(bool); ok {
			d.Allow = allow
		}
		if reason, ok := v["reason"].(string); ok {
			d.Reason = reason
		}
	case bool:
		d.Allow = v
		d.Reason = "denied by policy"
		if v {
			d.Reason = "allowed by policy"
		}
	}
	return d
}

// decisionCache is a small LRU with TTL keyed by a hash of the input document.
type decisionCache struct {
	cap  int
	ttl  time.Duration
	mu   sync.Mutex
	list *list.List
	m    map[string]*list.Element
}

type cacheEntry struct {
	key       string
	expiresAt time.Time
	decision  *Decision
}

func newDecisionCache(cap int, ttl time.Duration) *decisionCache {
	return &decisionCache{cap: cap, ttl: ttl, list: list.New(), m: make(map[string]*list.Element)}
}

func (c *decisionCache) Get(key string) (*Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.m[key]
	if !ok {
		return nil, false
	}
	ce := el.Value.(cacheEntry)
	if time.Now().After(ce.expiresAt) {
		c.list.Remove(el)
		delete(c.m, key)
		return nil, false
	}
	c.list.MoveToFront(el)
	return ce.decision, true
}

func (c *decisionCache) Set(key string, d *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ce := cacheEntry{key: key, expiresAt: time.Now().Add(c.ttl), decision: d}
	if el, ok := c.m[key]; ok {
		el.Value = ce
		c.list.MoveToFront(el)
		return
	}
	c.m[key] = c.list.PushFront(ce)
	for c.list.Len() > c.cap {
		last := c.list.Back()
		c.list.Remove(last)
		delete(c.m, last.Value.(cacheEntry).key)
	}
}

func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list.Init()
	c.m = make(map[string]*list.Element)
}
