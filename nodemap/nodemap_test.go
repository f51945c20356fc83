package nodemap

import (
	"errors"
	"sync"
	"testing"

	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedNodeMap_RegisterAndPartition(t *testing.T) {
	s := testutils.NewShapes()
	m := New()
	root := s.NewGeometry("root")
	leaf := s.NewLeaf("n1", "one")
	note := s.NewNote("note", "hi")
	require.NoError(t, root.InsertChild(s.Parts, 0, leaf))
	require.NoError(t, leaf.InsertAnnotation(0, note))

	require.NoError(t, m.RegisterSubtree(root))
	assert.Equal(t, 3, m.Len())
	require.NoError(t, m.Register(leaf))

	got, ok := m.TryGet("note")
	assert.True(t, ok)
	assert.Equal(t, note, got)

	p, ok := m.TryGetPartition("note")
	assert.True(t, ok)
	assert.Equal(t, root, p)

	_, ok = m.TryGet("nope")
	assert.False(t, ok)
	_, ok = m.TryGetPartition("nope")
	assert.False(t, ok)

	m.RemoveSubtree(leaf)
	_, ok = m.TryGetPartition("root")
	assert.True(t, ok)
	_, ok = m.TryGet("note")
	assert.False(t, ok)
}

func TestSharedNodeMap_Duplicate(t *testing.T) {
	s := testutils.NewShapes()
	m := New()
	root := s.NewGeometry("root")
	require.NoError(t, m.Register(root))

	other := s.NewGeometry("other")
	twin := s.NewLeaf("root", "impostor")
	require.NoError(t, other.InsertChild(s.Parts, 0, s.NewLeaf("fresh", "f")))
	require.NoError(t, other.InsertChild(s.Parts, 1, twin))

	err := m.RegisterSubtree(other)
	assert.True(t, errors.Is(err, ErrDuplicateNode))
	_, ok := m.TryGet("fresh")
	assert.False(t, ok, "failed registration must not leave partial entries")
	_, ok = m.TryGet("other")
	assert.False(t, ok)

	m.Remove(twin)
	got, ok := m.TryGet("root")
	assert.True(t, ok)
	assert.Equal(t, root, got)
}

func TestSharedNodeMap_ConcurrentReads(t *testing.T) {
	s := testutils.NewShapes()
	m := New()
	root := s.NewGeometry("root")
	require.NoError(t, m.Register(root))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				n, ok := m.TryGet("root")
				assert.True(t, ok)
				assert.Equal(t, model.NodeId("root"), n.Id())
			}
		}()
	}
	wg.Wait()
}
