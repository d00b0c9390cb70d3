// Package maint implements a multi-table maintenance runner that compacts a
// set of registered tables, skipping any currently busy with another
// operation rather than blocking for it. Grounded on the teacher's GC
// orchestrator: phased, TryLock-gated, tolerant of individual failures.
package maint

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/jsonlt/jsonlt/table"
)

// Target is one table registered with a Runner for periodic compaction.
type Target struct {
	Name  string
	Table *table.Table
}

// Result reports what happened to one Target during a Run.
type Result struct {
	Name      string
	Compacted bool
	Err       error
}

// Runner compacts a fixed set of tables concurrently on demand, the way the
// teacher's gc.Orchestrator sweeps storage modules: each target is visited
// independently, a busy target is skipped rather than waited on, and one
// target's failure never prevents the others from running.
type Runner struct {
	// Concurrency bounds how many tables are compacted at once. Zero means
	// unbounded (one goroutine per target).
	Concurrency int

	mu      sync.Mutex
	targets []Target
}

// New creates an empty Runner.
func New() *Runner { return &Runner{} }

// Register adds a table to the runner's compaction sweep.
func (r *Runner) Register(name string, t *table.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, Target{Name: name, Table: t})
}

// Run attempts to compact every registered table once. A table whose
// exclusive lock is currently held elsewhere is skipped, not waited for, and
// reported with Compacted=false, Err=nil. Errors from individual tables are
// collected and returned together; they do not stop other tables' attempts.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	runID := uuid.NewString()
	logger := log.WithFunc("maint.Run")

	r.mu.Lock()
	targets := append([]Target(nil), r.targets...)
	r.mu.Unlock()

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}

	for i, tg := range targets {
		i, tg := i, tg
		g.Go(func() error {
			ok, err := tg.Table.TryCompact(gctx)
			if err != nil {
				logger.Warnf(gctx, "[%s] compact %s: %v", runID, tg.Name, err)
			} else if !ok {
				logger.Infof(gctx, "[%s] skip %s: busy", runID, tg.Name)
			}
			results[i] = Result{Name: tg.Name, Compacted: ok, Err: err}
			return nil
		})
	}
	_ = g.Wait() // per-target errors are carried in results, not propagated

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	var failed []string
	compacted := 0
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", res.Name, res.Err))
		}
		if res.Compacted {
			compacted++
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("maint[%s]: %d of %d tables failed to compact: %s", runID, len(failed), len(targets), strings.Join(failed, "; "))
	}
	logger.Infof(ctx, "[%s] compacted %d of %d tables", runID, compacted, len(targets))
	return results, nil
}
