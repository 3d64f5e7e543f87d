// Package scheduler is the Parallel Scheduler (C5): it runs a set of
// (file, tool) work items respecting the tool dependency DAG, bounding
// concurrency with a worker pool, and streaming progress. Per-tool
// timeouts are left to the invoke callback (the registry applies them).
// It is mode-agnostic: callers supply the invoke callback that decides
// check vs. fix.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/registry"
)

var schedulerLog = logger.New("scheduler")

// DefaultConcurrency is the default worker pool size (§4.5, §5).
const DefaultConcurrency = 8

// WorkItem is one (file, tool) pair to execute.
type WorkItem struct {
	File       string
	Descriptor registry.Descriptor
}

// Counts summarizes tool-level progress across all work items for that tool.
type Counts struct {
	FilesProcessed int
	Errors         int
	Warnings       int
}

// ProgressFunc is invoked from worker goroutines and must be safe under
// concurrent calls (§4.5, §4.6).
type ProgressFunc func(tool string, state model.ToolState, counts Counts)

// InvokeFunc runs one descriptor against one file and returns its result;
// the caller (a mode adapter via the dispatcher) decides whether this
// means Check or Fix.
type InvokeFunc func(ctx context.Context, d registry.Descriptor, file string) model.ValidationResult

// Options configures a single Run.
type Options struct {
	Concurrency int  // 0 means DefaultConcurrency
	Sequential  bool // parallel_execution=false: one work item at a time
	FailFast    bool // cancel outstanding work on first error
	Progress    ProgressFunc
}

// Scheduler executes WorkItems level-by-level according to the tool
// dependency DAG.
type Scheduler struct {
	opts Options
}

// New constructs a Scheduler with the given options.
func New(opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Progress == nil {
		opts.Progress = func(string, model.ToolState, Counts) {}
	}
	return &Scheduler{opts: opts}
}

// Run executes every work item, returning results ordered deterministically
// by (file, tool) regardless of execution order (§4.5).
func (s *Scheduler) Run(ctx context.Context, items []WorkItem, invoke InvokeFunc) ([]model.ValidationResult, error) {
	levels, err := levelize(items)
	if err != nil {
		return nil, err
	}

	var (
		resultsMu sync.Mutex
		results   []model.ValidationResult
		toolCount = make(map[string]*int32)
	)
	for _, lvl := range levels {
		for _, wi := range lvl {
			if _, ok := toolCount[wi.Descriptor.Name]; !ok {
				var z int32
				toolCount[wi.Descriptor.Name] = &z
			}
		}
	}
	for name := range toolCount {
		s.opts.Progress(name, model.ToolPending, Counts{})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var failed atomic.Bool

	for _, level := range levels {
		if failed.Load() && s.opts.FailFast {
			for _, wi := range level {
				s.opts.Progress(wi.Descriptor.Name, model.ToolSkipped, Counts{})
			}
			continue
		}

		concurrency := s.opts.Concurrency
		if s.opts.Sequential {
			concurrency = 1
		}
		p := pool.New().WithMaxGoroutines(concurrency)

		for _, wi := range level {
			wi := wi
			p.Go(func() {
				if s.opts.FailFast && failed.Load() {
					s.opts.Progress(wi.Descriptor.Name, model.ToolSkipped, Counts{})
					return
				}
				s.opts.Progress(wi.Descriptor.Name, model.ToolRunning, Counts{})
				result := invoke(runCtx, wi.Descriptor, wi.File)

				counts := Counts{FilesProcessed: 1, Errors: len(result.Errors), Warnings: len(result.Warnings)}
				state := model.ToolSucceeded
				if !result.Success {
					state = model.ToolFailed
					if s.opts.FailFast {
						failed.Store(true)
					}
				}
				s.opts.Progress(wi.Descriptor.Name, state, counts)

				resultsMu.Lock()
				results = append(results, result)
				resultsMu.Unlock()
			})
		}
		p.Wait()
	}

	model.SortResults(results)
	return results, nil
}

// levelize groups work items into dependency levels: level 0 has no
// unresolved dependencies among the tools present in items; level k+1's
// tools depend only on tools in levels ≤ k. Cycles are rejected (the
// Validator Registry already validates this at startup, but the scheduler
// re-checks the subset of tools actually scheduled for this run).
func levelize(items []WorkItem) ([][]WorkItem, error) {
	toolOf := make(map[string]registry.Descriptor)
	itemsByTool := make(map[string][]WorkItem)
	for _, wi := range items {
		toolOf[wi.Descriptor.Name] = wi.Descriptor
		itemsByTool[wi.Descriptor.Name] = append(itemsByTool[wi.Descriptor.Name], wi)
	}

	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for name, d := range toolOf {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range d.DependsOn {
			if _, ok := toolOf[dep]; !ok {
				continue // dependency on a tool not scheduled this run: nothing to wait for
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var levels [][]WorkItem
	remaining := len(indegree)
	for remaining > 0 {
		var levelTools []string
		for name, deg := range indegree {
			if deg == 0 {
				levelTools = append(levelTools, name)
			}
		}
		if len(levelTools) == 0 {
			return nil, fmt.Errorf("configuration error: dependency cycle detected among scheduled tools")
		}

		var levelItems []WorkItem
		for _, name := range levelTools {
			levelItems = append(levelItems, itemsByTool[name]...)
			delete(indegree, name)
			remaining--
		}
		for _, name := range levelTools {
			for _, dependent := range dependents[name] {
				if _, ok := indegree[dependent]; ok {
					indegree[dependent]--
				}
			}
		}
		levels = append(levels, levelItems)
	}

	return levels, nil
}
