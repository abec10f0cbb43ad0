package supervisor

import (
	"fmt"

	"github.com/sakif/sandboxd/internal/apperror"
)

// IsolationConfig decides how aggressively worker state is reset between
// calls. It is immutable once the supervisor is constructed. The three
// preset tiers below are just configurations — the supervisor accepts any
// valid combination.
type IsolationConfig struct {
	// MaxExecutions restarts the worker process after this many calls,
	// discarding all accumulated state. 0 disables periodic restarts.
	MaxExecutions int
	// ResetSearchPath restores the worker's module search path after every
	// call, undoing entries the snippet appended.
	ResetSearchPath bool
	// ResetImportedModules unloads modules newly imported by each call
	// (best-effort). Slower; off by default.
	ResetImportedModules bool
	// ForceGCEvery triggers a garbage collection in the supervisor process
	// every N calls. 0 disables.
	ForceGCEvery int
}

// Ephemeral gives maximum isolation: a fresh worker process for every call.
// Throughput is dominated by process-spawn cost.
func Ephemeral() IsolationConfig {
	return IsolationConfig{
		MaxExecutions:        1,
		ResetSearchPath:      true,
		ResetImportedModules: true,
	}
}

// PersistentUnsafe never restarts and never resets ancillary state. Highest
// throughput; acceptable only for fully trusted snippets.
func PersistentUnsafe() IsolationConfig {
	return IsolationConfig{}
}

// PersistentIsolated is the recommended default: near-Ephemeral isolation
// for mutable-global state at near-PersistentUnsafe throughput.
func PersistentIsolated() IsolationConfig {
	return IsolationConfig{
		MaxExecutions:   1000,
		ResetSearchPath: true,
		ForceGCEvery:    100,
	}
}

// Validate rejects configurations the decision functions cannot interpret.
func (c IsolationConfig) Validate() error {
	if c.MaxExecutions < 0 {
		return apperror.InvalidConfiguration(
			fmt.Sprintf("MaxExecutions must be >= 0, got %d", c.MaxExecutions))
	}
	if c.ForceGCEvery < 0 {
		return apperror.InvalidConfiguration(
			fmt.Sprintf("ForceGCEvery must be >= 0, got %d", c.ForceGCEvery))
	}
	return nil
}

// ShouldRestart reports whether the worker is due for a periodic restart,
// given how many calls it has completed since it last started.
func (c IsolationConfig) ShouldRestart(executionCount int) bool {
	return c.MaxExecutions > 0 && executionCount > 0 && executionCount%c.MaxExecutions == 0
}

// ShouldForceGC reports whether a forced garbage collection is due on the
// call numbered executionCount.
func (c IsolationConfig) ShouldForceGC(executionCount int) bool {
	return c.ForceGCEvery > 0 && executionCount%c.ForceGCEvery == 0
}
