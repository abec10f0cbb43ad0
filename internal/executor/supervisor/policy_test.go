package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/sandboxd/internal/apperror"
)

func TestIsolationConfig_Validate(t *testing.T) {
	assert.NoError(t, IsolationConfig{}.Validate())
	assert.NoError(t, PersistentIsolated().Validate())
	assert.NoError(t, Ephemeral().Validate())

	err := IsolationConfig{MaxExecutions: -1}.Validate()
	assert.ErrorIs(t, err, apperror.ErrConfiguration)

	err = IsolationConfig{ForceGCEvery: -5}.Validate()
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestIsolationConfig_ShouldRestart(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := IsolationConfig{MaxExecutions: 0}
		for _, n := range []int{0, 1, 100, 100000} {
			assert.False(t, cfg.ShouldRestart(n), "count %d", n)
		}
	})

	t.Run("every call", func(t *testing.T) {
		cfg := Ephemeral()
		assert.False(t, cfg.ShouldRestart(0), "a worker that has done nothing is not due")
		assert.True(t, cfg.ShouldRestart(1))
	})

	t.Run("every N calls", func(t *testing.T) {
		cfg := IsolationConfig{MaxExecutions: 3}
		due := map[int]bool{0: false, 1: false, 2: false, 3: true, 4: false, 6: true}
		for n, want := range due {
			assert.Equal(t, want, cfg.ShouldRestart(n), "count %d", n)
		}
	})
}

func TestIsolationConfig_ShouldForceGC(t *testing.T) {
	cfg := IsolationConfig{ForceGCEvery: 10}
	assert.False(t, cfg.ShouldForceGC(9))
	assert.True(t, cfg.ShouldForceGC(10))
	assert.False(t, cfg.ShouldForceGC(11))
	assert.True(t, cfg.ShouldForceGC(20))

	off := IsolationConfig{}
	assert.False(t, off.ShouldForceGC(10))
}

func TestPresetTiers(t *testing.T) {
	t.Run("ephemeral restarts after every call", func(t *testing.T) {
		cfg := Ephemeral()
		assert.Equal(t, 1, cfg.MaxExecutions)
		assert.True(t, cfg.ResetSearchPath)
		assert.True(t, cfg.ResetImportedModules)
	})

	t.Run("persistent unsafe never resets anything", func(t *testing.T) {
		cfg := PersistentUnsafe()
		assert.Zero(t, cfg.MaxExecutions)
		assert.False(t, cfg.ResetSearchPath)
		assert.False(t, cfg.ResetImportedModules)
		assert.Zero(t, cfg.ForceGCEvery)
	})

	t.Run("persistent isolated bounds worker lifetime", func(t *testing.T) {
		cfg := PersistentIsolated()
		assert.Greater(t, cfg.MaxExecutions, 0)
		assert.True(t, cfg.ResetSearchPath)
	})
}
