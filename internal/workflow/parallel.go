package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Parallel launches every child concurrently against the same input and
// joins on completion, reporting every child's Result — including
// errors — rather than failing the whole run on one child's error.
// Grounded on internal/agent/executor.go's ExecuteAll: a WaitGroup-gated
// fan-out/fan-in with each goroutine writing into a shared, mutex-
// guarded result map instead of ExecuteAll's pre-sized slice, since
// children here are keyed by name rather than call index.
type Parallel struct {
	Children []Member
}

// NewParallel builds a Parallel workflow over children, all run against
// the same input.
func NewParallel(children ...Member) *Parallel {
	return &Parallel{Children: children}
}

// Run launches every child concurrently and returns a name→Result
// mapping once all have completed.
func (p *Parallel) Run(ctx context.Context, query, sessionID string) (map[string]Result, error) {
	if len(p.Children) == 0 {
		return nil, fmt.Errorf("workflow: parallel has no children")
	}

	results := make(map[string]Result, len(p.Children))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, child := range p.Children {
		wg.Add(1)
		go func(m Member) {
			defer wg.Done()
			run, err := m.Agent.Run(ctx, query, childSessionID(sessionID, m.Name))
			mu.Lock()
			results[m.Name] = Result{Name: m.Name, Run: run, Err: err}
			mu.Unlock()
		}(child)
	}

	wg.Wait()
	return results, nil
}
