package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("MissingFile", func(t *testing.T) {
		t.Parallel()
		m, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, m)
		assert.False(t, m.Match("anything.pdf", false))
	})

	t.Run("Patterns", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		content := "# drafts\n*.tmp\n\nprivate/\n"
		require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

		m, err := Load(root)
		require.NoError(t, err)
		require.NotNil(t, m)

		assert.True(t, m.Match("notes.tmp", false))
		assert.True(t, m.Match(filepath.Join(root, "notes.tmp"), false))
		assert.True(t, m.Match("private", true))
		assert.False(t, m.Match("lecture.pdf", false))
		assert.False(t, m.Match(filepath.Join(filepath.Dir(root), "other.tmp"), false))
	})
}
