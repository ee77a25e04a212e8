package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// RegisterChecker adds a checker. Names must be unique.
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[checker.Name()]; exists {
		return fmt.Errorf("health checker %q already registered", checker.Name())
	}
	m.checkers[checker.Name()] = checker
	m.logger.Info("Health checker registered",
		zap.String("name", checker.Name()), zap.Bool("critical", checker.IsCritical()))
	return nil
}

// Names returns the registered checker names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Check runs every checker concurrently, each under its own timeout. The service
// is unhealthy when any critical check fails and degraded when only optional ones do.
func (m *Manager) Check(ctx context.Context) OverallHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	overall := OverallHealth{
		Status:     StatusHealthy,
		Ready:      true,
		Timestamp:  time.Now(),
		Components: make(map[string]CheckResult, len(results)),
	}
	for _, r := range results {
		overall.Components[r.Component] = r
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical {
			overall.Status = StatusUnhealthy
			overall.Ready = false
		} else if overall.Status == StatusHealthy {
			overall.Status = StatusDegraded
		}
	}
	return overall
}

func (m *Manager) run(ctx context.Context, c Checker) CheckResult {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r := c.Check(cctx)
	if r.Component == "" {
		r.Component = c.Name()
	}
	r.Critical = c.IsCritical()
	if r.Status != StatusHealthy {
		m.logger.Warn("Health check failed",
			zap.String("component", r.Component), zap.String("status", r.Status.String()), zap.String("error", r.Error))
	}
	return r
}
