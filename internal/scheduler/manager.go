package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/haasonsaas/agentcore/internal/observability"
)

// Manager owns the set of AgentWorkers, one per agent id that has
// registered at least one background task.
type Manager struct {
	mu      sync.RWMutex
	workers map[string]*AgentWorker

	queueSize      int
	shutdownGraceS int
	emitter        EventEmitter
	metrics        *observability.Metrics
	logger         *observability.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithQueueSize overrides the default per-worker queue capacity.
func WithQueueSize(n int) Option {
	return func(m *Manager) { m.queueSize = n }
}

// WithShutdownGrace overrides the default shutdown grace period, in seconds.
func WithShutdownGrace(seconds int) Option {
	return func(m *Manager) { m.shutdownGraceS = seconds }
}

// New constructs a Manager. emitter, metrics, and logger may be nil.
func New(emitter EventEmitter, metrics *observability.Metrics, logger *observability.Logger, opts ...Option) *Manager {
	m := &Manager{
		workers:        make(map[string]*AgentWorker),
		queueSize:      DefaultQueueSize,
		shutdownGraceS: DefaultShutdownGraceS,
		emitter:        emitter,
		metrics:        metrics,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateAgent registers a new worker for agentID in the created state. It
// is idempotent: calling it again for an existing agent returns the
// existing worker.
func (m *Manager) CreateAgent(agentID string) *AgentWorker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workers[agentID]; ok {
		return w
	}
	w := newAgentWorker(agentID, m.queueSize, m.emitter, m.metrics, m.logger)
	w.shutdownGraceS = m.shutdownGraceS
	m.workers[agentID] = w
	return w
}

// Get returns the worker for agentID, if one has been created.
func (m *Manager) Get(agentID string) (*AgentWorker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[agentID]
	return w, ok
}

// StartAgent starts an existing agent's worker, creating it first if
// necessary, and returns it.
func (m *Manager) StartAgent(ctx context.Context, agentID string) (*AgentWorker, error) {
	w := m.CreateAgent(agentID)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteAgent stops and removes an agent's worker.
func (m *Manager) DeleteAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	w, ok := m.workers[agentID]
	if ok {
		delete(m.workers, agentID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown agent %s", agentID)
	}
	return w.Delete(ctx)
}

// Shutdown stops every worker concurrently, honoring each worker's
// shutdown grace period, and returns the first error encountered (if any).
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	workers := make([]*AgentWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(workers))
	for _, w := range workers {
		wg.Add(1)
		go func(w *AgentWorker) {
			defer wg.Done()
			if err := w.Stop(ctx); err != nil {
				errCh <- err
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}
