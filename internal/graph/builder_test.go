package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/mindgraph/internal/chunk"
)

func sampleChunks() []chunk.LabeledChunk {
	return []chunk.LabeledChunk{
		{Subject: "Science", Topic: "Physics", Subtopic: "Optics", Title: "Lenses", Summary: "Lenses bend light.", Text: "t1"},
		{Subject: "Science", Topic: "Physics", Subtopic: "Optics", Title: "Mirrors", Summary: "Mirrors reflect.", Text: "t2"},
		{Subject: "Science", Topic: "Biology", Subtopic: "Cells", Title: "Mitochondria", Summary: "Power.", Text: "t3"},
	}
}

func TestBuildGraph(t *testing.T) {
	t.Parallel()

	t.Run("Hierarchy", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph(sampleChunks())

		// Science, Physics, Optics, Lenses, Mirrors, Biology, Cells, Mitochondria
		assert.Equal(t, 8, g.NodeCount())
		// Science→Physics, Physics→Optics, Optics→Lenses, Optics→Mirrors,
		// Science→Biology, Biology→Cells, Cells→Mitochondria
		assert.Equal(t, 7, g.EdgeCount())

		n, ok := g.Node("Lenses")
		require.True(t, ok)
		assert.Equal(t, KindChunk, n.Kind)
		assert.Equal(t, "Optics", n.ParentID)
		assert.Equal(t, "Lenses bend light.", n.Summary)
		assert.Equal(t, "t1", n.Text)

		s, _ := g.Node("Science")
		assert.Equal(t, KindSubject, s.Kind)
		assert.Empty(t, s.ParentID)
	})

	t.Run("EveryNonSubjectHasOneParentEdge", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph(append(sampleChunks(), sampleChunks()...))

		for _, n := range g.Nodes() {
			if n.Kind == KindSubject {
				assert.Empty(t, g.Parents(n.ID), n.ID)
				continue
			}
			assert.Equal(t, []string{n.ParentID}, g.Parents(n.ID), n.ID)
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph([]chunk.LabeledChunk{{Summary: "orphan"}})

		for _, id := range []string{"General", "Miscellaneous", "N/A", "Untitled"} {
			_, ok := g.Node(id)
			assert.True(t, ok, id)
		}
		assert.True(t, g.HasEdge("General", "Miscellaneous"))
		assert.True(t, g.HasEdge("Miscellaneous", "N/A"))
		assert.True(t, g.HasEdge("N/A", "Untitled"))
	})

	t.Run("ChunkCarriesItsOwnRecord", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph([]chunk.LabeledChunk{
			{Subject: "S", Topic: "T", Subtopic: "U", Title: "Same", Summary: "first", Text: "one"},
			{Subject: "S2", Topic: "T2", Subtopic: "U2", Title: "Same", Summary: "second", Text: "two"},
		})

		n, _ := g.Node("Same")
		assert.Equal(t, "second", n.Summary)
		assert.Equal(t, "two", n.Text)
		assert.Equal(t, "U", n.ParentID, "parent stays with the first writer")
		assert.True(t, g.HasEdge("U2", "Same"))
	})

	t.Run("CrossKindCollisionCollapses", func(t *testing.T) {
		t.Parallel()
		g := BuildGraph([]chunk.LabeledChunk{
			{Subject: "Physics", Topic: "Physics", Subtopic: "Optics", Title: "Lenses"},
		})

		n, _ := g.Node("Physics")
		assert.Equal(t, KindSubject, n.Kind)
		assert.Equal(t, 3, g.NodeCount())
		assert.True(t, g.HasEdge("Physics", "Physics"))
	})

	t.Run("SubjectAttributesNotOverwritten", func(t *testing.T) {
		t.Parallel()
		// "Optics" first appears as a subtopic, later as a subject.
		g := BuildGraph([]chunk.LabeledChunk{
			{Subject: "Physics", Topic: "Light", Subtopic: "Optics", Title: "A"},
			{Subject: "Optics", Topic: "Lenses", Subtopic: "Convex", Title: "B"},
		})

		n, _ := g.Node("Optics")
		assert.Equal(t, KindSubtopic, n.Kind)
		assert.Equal(t, "Light", n.ParentID)
	})
}

func TestBuildGraph_DedupInvariant(t *testing.T) {
	t.Parallel()

	inputs := [][]chunk.LabeledChunk{
		nil,
		sampleChunks(),
		append(sampleChunks(), sampleChunks()...),
		{{}, {}, {Title: "General"}},
	}

	for i, in := range inputs {
		t.Run(fmt.Sprintf("Input%d", i), func(t *testing.T) {
			t.Parallel()
			a := BuildGraph(in)
			b := BuildGraph(in)

			seen := make(map[string]bool)
			for _, n := range a.Nodes() {
				assert.False(t, seen[n.ID], "duplicate node %q", n.ID)
				seen[n.ID] = true
			}

			edgeSeen := make(map[Edge]bool)
			for _, e := range a.Edges() {
				assert.False(t, edgeSeen[e], "duplicate edge %v", e)
				edgeSeen[e] = true
			}

			assert.Equal(t, a.Nodes(), b.Nodes())
			assert.Equal(t, a.Edges(), b.Edges())
		})
	}
}

func TestBuildGraphFromFile(t *testing.T) {
	t.Parallel()

	t.Run("SkipsMalformedLines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "batch.jsonl")
		content := strings.Join([]string{
			`{"subject":"S","topic":"T","subtopic":"U","title":"A","summary":"a"}`,
			`{not json`,
			`{"subject":"S","topic":"T","subtopic":"U","title":"B","summary":"b"}`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		g, report, err := BuildGraphFromFile(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 5, g.NodeCount())
	})

	t.Run("SkipsOverlongLine", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "batch.jsonl")
		content := strings.Join([]string{
			`{"subject":"S","topic":"T","subtopic":"U","title":"A"}`,
			`{"title":"Huge","text":"` + strings.Repeat("x", 5<<20) + `"}`,
			`{"subject":"S","topic":"T","subtopic":"U","title":"B"}`,
		}, "\n")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		g, report, err := BuildGraphFromFile(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, 2, report.Valid)
		_, ok := g.Node("B")
		assert.True(t, ok)
	})

	t.Run("MissingFileIsEmptyGraph", func(t *testing.T) {
		t.Parallel()
		g, _, err := BuildGraphFromFile(filepath.Join(t.TempDir(), "none.jsonl"), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, g.NodeCount())
	})

	t.Run("EmptyFileIsEmptyGraph", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "empty.jsonl")
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		g, _, err := BuildGraphFromFile(path, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, g.NodeCount())
	})
}

func TestExportAndLoadGraph(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed", "batch_mindmap.json")
	g := BuildGraph(sampleChunks())
	require.NoError(t, ExportGraph(g, path))

	loaded, err := LoadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), loaded.Nodes())
	assert.Equal(t, g.Edges(), loaded.Edges())

	_, err = LoadGraph(filepath.Join(t.TempDir(), "missing.json"))
	var ioErr *IOError
	assert.ErrorAs(t, err, &ioErr)
}
