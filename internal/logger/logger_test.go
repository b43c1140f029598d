package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("DevDefaults", func(t *testing.T) {
		t.Parallel()
		l, err := New("dev", "")
		require.NoError(t, err)
		assert.NotNil(t, l.SugaredLogger)
	})

	t.Run("ProdDebug", func(t *testing.T) {
		t.Parallel()
		l, err := New("prod", "debug")
		require.NoError(t, err)
		assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(-1))
	})

	t.Run("BadLevel", func(t *testing.T) {
		t.Parallel()
		_, err := New("dev", "loud")
		assert.Error(t, err)
	})
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	l := OrNop(nil)
	require.NotNil(t, l)
	// Must not panic.
	l.With("k", "v").Info("hello", "n", 1)

	own := Nop()
	assert.Same(t, own, OrNop(own))
}
