package framework

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Branch is one concurrent arm of a fan-out. Run receives its own snapshot
// and returns exactly one patch. Recover converts a panic that escaped Run
// into a patch so the barrier still closes; when nil the zero patch is used.
type Branch[S, P any] struct {
	Name    string
	Run     func(ctx context.Context, snap S) P
	Recover func(fault error) P
}

// FanOut is a single fan-out/join barrier over a fixed set of branches.
type FanOut[S, P any] struct {
	Name     string
	RunID    string
	Branches []Branch[S, P]
	Observer Observer
	Limit    int // max concurrently running branches (0 = all at once)
}

// JoinStats summarizes a closed barrier.
type JoinStats struct {
	Branches int
	Applied  int
	Faults   int
	Elapsed  time.Duration
}

type branchResult[P any] struct {
	branch  string
	patch   P
	fault   error
	elapsed time.Duration
}

// Join runs every branch concurrently and hands each returned patch to
// apply, one at a time, in arrival order. apply is only ever called from
// the goroutine that called Join, so it may mutate caller-owned state
// without locking. snapshot is called once per branch before any branch
// starts. Join returns after every branch has reported exactly once.
func (f *FanOut[S, P]) Join(ctx context.Context, snapshot func() S, apply func(branch string, patch P)) (JoinStats, error) {
	if len(f.Branches) == 0 {
		return JoinStats{}, fmt.Errorf("%w: %s", ErrNoBranches, f.Name)
	}
	start := time.Now()
	Emit(f.Observer, Event{
		Type:     EventFanOut,
		RunID:    f.RunID,
		Stage:    f.Name,
		Metadata: map[string]any{"branches": len(f.Branches)},
	})

	snaps := make([]S, len(f.Branches))
	for i := range f.Branches {
		snaps[i] = snapshot()
	}

	results := make(chan branchResult[P], len(f.Branches))
	g, gCtx := errgroup.WithContext(ctx)
	if f.Limit > 0 {
		g.SetLimit(f.Limit)
	}
	go func() {
		for i, b := range f.Branches {
			snap := snaps[i]
			g.Go(func() error {
				results <- f.runBranch(gCtx, b, snap)
				return nil
			})
		}
		_ = g.Wait() // faults are carried in branchResult
		close(results)
	}()

	stats := JoinStats{Branches: len(f.Branches)}
	for r := range results {
		if r.fault != nil {
			stats.Faults++
			Emit(f.Observer, Event{
				Type:    EventBranchFault,
				RunID:   f.RunID,
				Stage:   f.Name,
				Branch:  r.branch,
				Elapsed: r.elapsed,
				Error:   r.fault,
			})
		}
		apply(r.branch, r.patch)
		stats.Applied++
		Emit(f.Observer, Event{
			Type:    EventBranchDone,
			RunID:   f.RunID,
			Stage:   f.Name,
			Branch:  r.branch,
			Elapsed: r.elapsed,
		})
	}
	stats.Elapsed = time.Since(start)

	Emit(f.Observer, Event{
		Type:    EventBarrierClosed,
		RunID:   f.RunID,
		Stage:   f.Name,
		Elapsed: stats.Elapsed,
		Metadata: map[string]any{
			"applied": stats.Applied,
			"faults":  stats.Faults,
		},
	})
	return stats, nil
}

func (f *FanOut[S, P]) runBranch(ctx context.Context, b Branch[S, P], snap S) (res branchResult[P]) {
	start := time.Now()
	res.branch = b.Name
	Emit(f.Observer, Event{Type: EventBranchStart, RunID: f.RunID, Stage: f.Name, Branch: b.Name})

	defer func() {
		res.elapsed = time.Since(start)
		if r := recover(); r != nil {
			res.fault = fmt.Errorf("%w: %s: %v", ErrBranchPanic, b.Name, r)
			var zero P
			res.patch = zero
			if b.Recover != nil {
				res.patch = b.Recover(res.fault)
			}
		}
	}()

	res.patch = b.Run(ctx, snap)
	return res
}
