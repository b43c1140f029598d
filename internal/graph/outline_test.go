package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Benny93/mindgraph/internal/chunk"
)

func TestOutline(t *testing.T) {
	t.Parallel()

	t.Run("Hierarchy", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{
			"Science",
			"  Physics",
			"    Optics",
			"      Lenses",
			"      Mirrors",
			"  Biology",
			"    Cells",
			"      Mitochondria",
		}, Outline(BuildGraph(sampleChunks())))
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, Outline(New()))
	})

	t.Run("CollidingIDsListedOnce", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph([]chunk.LabeledChunk{{Subject: "Optics", Topic: "Optics", Subtopic: "Lenses", Title: "Convex"}})
		assert.Equal(t, []string{"Optics", "  Lenses", "    Convex"}, Outline(g))
	})
}
