package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/sandboxd/internal/apperror"
	"github.com/sakif/sandboxd/internal/executor"
)

// Pool runs a fixed set of independent Supervisors, one worker each. A
// single Supervisor serializes callers end to end; the pool is the sanctioned
// way to get parallel snippet execution, with each member keeping its own
// lock, restart schedule, and stats.
type Pool struct {
	ready  chan *Supervisor
	all    []*Supervisor
	logger *slog.Logger
}

// PoolStats aggregates member telemetry.
type PoolStats struct {
	Size           int     `json:"size"`
	AliveWorkers   int     `json:"aliveWorkers"`
	ExecutionCount int     `json:"executionCount"` // sum across members, each since its worker last (re)started
	RestartCount   int     `json:"restartCount"`
	Workers        []Stats `json:"workers"`
}

// NewPool builds size Supervisors sharing one launcher and config. Workers
// are still started lazily, so an idle pool costs nothing beyond the structs.
func NewPool(size int, launcher Launcher, cfg Config, logger *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, apperror.InvalidConfiguration(
			fmt.Sprintf("pool size must be >= 1, got %d", size))
	}

	p := &Pool{
		ready:  make(chan *Supervisor, size),
		logger: logger,
	}

	for i := 0; i < size; i++ {
		sup, err := New(launcher, cfg, logger.With(slog.Int("supervisor", i)))
		if err != nil {
			p.Shutdown()
			return nil, err
		}
		p.all = append(p.all, sup)
		p.ready <- sup
	}

	logger.Info("supervisor pool ready", slog.Int("size", size))
	return p, nil
}

// Execute borrows an idle supervisor, runs the request on it, and returns it
// to the pool. Blocks until a member is free or the context is done.
func (p *Pool) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	select {
	case sup := <-p.ready:
		defer func() { p.ready <- sup }()
		return sup.Execute(ctx, req)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats aggregates telemetry across all members.
func (p *Pool) Stats() PoolStats {
	stats := PoolStats{Size: len(p.all)}
	for _, sup := range p.all {
		s := sup.Stats()
		stats.Workers = append(stats.Workers, s)
		stats.ExecutionCount += s.ExecutionCount
		stats.RestartCount += s.RestartCount
		if s.ProcessAlive {
			stats.AliveWorkers++
		}
	}
	return stats
}

// Shutdown terminates every member. Idempotent; in-flight executions finish
// first because Shutdown takes each member's lock.
func (p *Pool) Shutdown() {
	p.logger.Info("shutting down supervisor pool")
	for _, sup := range p.all {
		sup.Shutdown()
	}
}
