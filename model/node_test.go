package model_test

import (
	"errors"
	"testing"

	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attached(t *testing.T, s *testutils.Shapes) (*model.Node, *testutils.Recorder) {
	root := s.NewGeometry("root")
	rec := &testutils.Recorder{}
	require.NoError(t, root.AttachNotifications(rec))
	return root, rec
}

func TestNode_Properties(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	leaf := s.NewLeaf("n1", "one")
	require.NoError(t, root.InsertChild(s.Parts, 0, leaf))

	assert.NoError(t, leaf.SetProperty(s.Size, 3))
	added, ok := rec.Last().(*model.PropertyAdded)
	require.True(t, ok)
	assert.Equal(t, int64(3), added.NewValue)

	assert.NoError(t, leaf.SetProperty(s.Size, int64(4)))
	changed, ok := rec.Last().(*model.PropertyChanged)
	require.True(t, ok)
	assert.Equal(t, int64(3), changed.OldValue)
	assert.Equal(t, int64(4), changed.NewValue)

	assert.NoError(t, leaf.SetProperty(s.Size, nil))
	deleted, ok := rec.Last().(*model.PropertyDeleted)
	require.True(t, ok)
	assert.Equal(t, int64(4), deleted.OldValue)

	_, err := leaf.Get(s.Size)
	assert.True(t, errors.Is(err, model.ErrUnsetFeature))
	assert.True(t, errors.Is(leaf.SetProperty(s.Size, nil), model.ErrUnsetFeature))
	assert.True(t, errors.Is(leaf.SetProperty(s.Size, "big"), model.ErrInvalidValue))
	assert.True(t, errors.Is(leaf.SetProperty(s.GeometryName, "x"), model.ErrUnknownFeature))
}

func TestNode_ChildMoves(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	a, b, c := s.NewLeaf("a", "a"), s.NewLeaf("b", "b"), s.NewLeaf("c", "c")
	require.NoError(t, root.InsertChild(s.Parts, 0, a))
	require.NoError(t, root.InsertChild(s.Parts, 1, b))
	require.NoError(t, root.InsertChild(s.Parts, 2, c))
	assert.Len(t, rec.Got, 3)

	require.NoError(t, root.InsertChild(s.Parts, 0, c))
	inSame, ok := rec.Last().(*model.ChildMovedInSameContainment)
	require.True(t, ok)
	assert.Equal(t, 2, inSame.OldIndex)
	assert.Equal(t, 0, inSame.NewIndex)
	assert.Equal(t, []*model.Node{c, a, b}, root.Children(s.Parts))

	require.NoError(t, root.InsertChild(s.Extra, 0, a))
	sameParent, ok := rec.Last().(*model.ChildMovedFromOtherContainmentInSameParent)
	require.True(t, ok)
	assert.Equal(t, s.Parts, sameParent.OldContainment)
	assert.Equal(t, 1, sameParent.OldIndex)

	require.NoError(t, b.InsertChild(s.Kids, 0, a))
	other, ok := rec.Last().(*model.ChildMovedFromOtherContainment)
	require.True(t, ok)
	assert.Equal(t, root, other.OldParent)
	assert.Equal(t, s.Extra, other.OldContainment)
	assert.Equal(t, b, other.NewParent)

	assert.True(t, errors.Is(a.InsertChild(s.Kids, 0, b), model.ErrCycle))
	assert.True(t, errors.Is(root.InsertChild(s.Parts, 7, s.NewLeaf("x", "x")), model.ErrInvalidIndex))
}

func TestNode_ReplaceAndRemove(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	a, b := s.NewLeaf("a", "a"), s.NewLeaf("b", "b")
	require.NoError(t, root.InsertChild(s.Main, 0, a))
	assert.True(t, errors.Is(root.InsertChild(s.Main, 0, b), model.ErrInvalidValue))

	require.NoError(t, root.ReplaceChild(s.Main, 0, b))
	replaced, ok := rec.Last().(*model.ChildReplaced)
	require.True(t, ok)
	assert.Equal(t, a, replaced.ReplacedChild)
	assert.Nil(t, a.Parent())

	require.NoError(t, root.InsertChild(s.Parts, 0, a))
	c := s.NewLeaf("c", "c")
	require.NoError(t, root.InsertChild(s.Parts, 1, c))
	require.NoError(t, root.ReplaceChild(s.Main, 0, c))
	moved, ok := rec.Last().(*model.ChildMovedAndReplacedFromOtherContainment)
	require.True(t, ok)
	assert.Equal(t, b, moved.ReplacedChild)
	assert.Equal(t, 1, moved.OldIndex)

	require.NoError(t, root.RemoveChild(a))
	del, ok := rec.Last().(*model.ChildDeleted)
	require.True(t, ok)
	assert.Equal(t, 0, del.Index)
	assert.True(t, errors.Is(root.RemoveChild(a), model.ErrNotContained))
}

func TestNode_Annotations(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	a, b := s.NewLeaf("a", "a"), s.NewLeaf("b", "b")
	require.NoError(t, root.InsertChild(s.Parts, 0, a))
	require.NoError(t, root.InsertChild(s.Parts, 1, b))
	n1, n2 := s.NewNote("n1", "x"), s.NewNote("n2", "y")

	require.NoError(t, a.InsertAnnotation(0, n1))
	require.NoError(t, a.InsertAnnotation(1, n2))
	_, ok := rec.Last().(*model.AnnotationAdded)
	assert.True(t, ok)

	require.NoError(t, a.InsertAnnotation(0, n2))
	same, ok := rec.Last().(*model.AnnotationMovedInSameParent)
	require.True(t, ok)
	assert.Equal(t, 1, same.OldIndex)

	require.NoError(t, b.InsertAnnotation(0, n1))
	other, ok := rec.Last().(*model.AnnotationMovedFromOtherParent)
	require.True(t, ok)
	assert.Equal(t, a, other.OldParent)

	assert.True(t, errors.Is(b.InsertAnnotation(0, s.NewLeaf("z", "z")), model.ErrInvalidValue))
	require.NoError(t, b.RemoveAnnotation(n1))
	_, ok = rec.Last().(*model.AnnotationDeleted)
	assert.True(t, ok)
}

func TestNode_References(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	a, b := s.NewLeaf("a", "a"), s.NewLeaf("b", "b")
	require.NoError(t, root.InsertChild(s.Parts, 0, a))
	require.NoError(t, root.InsertChild(s.Parts, 1, b))

	require.NoError(t, a.InsertReference(s.Peer, 0, model.ReferenceTarget{TargetId: "b", Target: b}))
	require.NoError(t, a.SetReference(s.Peer, 0, model.ReferenceTarget{TargetId: "ext", ResolveInfo: "far away"}))
	changed, ok := rec.Last().(*model.ReferenceChanged)
	require.True(t, ok)
	assert.Equal(t, model.NodeId("b"), changed.OldTarget.TargetId)
	require.NoError(t, a.RemoveReference(s.Peer, 0))
	_, ok = rec.Last().(*model.ReferenceDeleted)
	assert.True(t, ok)

	require.NoError(t, a.InsertReference(s.Best, 0, model.ReferenceTarget{TargetId: "b"}))
	assert.True(t, errors.Is(a.InsertReference(s.Best, 0, model.ReferenceTarget{TargetId: "a"}), model.ErrInvalidValue))
}

func TestNode_PinnedNotificationId(t *testing.T) {
	s := testutils.NewShapes()
	root, rec := attached(t, s)
	pinned := model.Base{Id: "pinned", Origin: []model.CommandSource{{ParticipationId: "p", CommandId: "c"}}}
	err := root.WithNotificationId(pinned, func() error {
		return root.InsertChild(s.Parts, 0, s.NewLeaf("a", "a"))
	})
	require.NoError(t, err)
	assert.Equal(t, model.NotificationId("pinned"), rec.Last().NotificationId())
	assert.Equal(t, pinned.Origin, rec.Last().Origins())

	require.NoError(t, root.InsertChild(s.Parts, 0, s.NewLeaf("b", "b")))
	assert.NotEqual(t, model.NotificationId("pinned"), rec.Last().NotificationId())
}

func TestForest_Lifecycle(t *testing.T) {
	s := testutils.NewShapes()
	forest := model.NewForest()
	rec := &testutils.Recorder{}
	unsubscribe := forest.Subscribe(rec)

	p := s.NewGeometry("p")
	require.NoError(t, forest.AddPartition(p))
	assert.True(t, errors.Is(forest.AddPartition(p), model.ErrPartitionExists))
	assert.True(t, errors.Is(forest.AddPartition(s.NewLeaf("x", "x")), model.ErrNotPartition))
	_, ok := rec.Last().(*model.PartitionAdded)
	assert.True(t, ok)
	assert.Equal(t, []*model.Node{p}, forest.Partitions())

	require.NoError(t, forest.DeletePartition(p))
	_, ok = rec.Last().(*model.PartitionDeleted)
	assert.True(t, ok)
	assert.Len(t, rec.Got, 2)

	unsubscribe()
	require.NoError(t, forest.AddPartition(p))
	assert.Len(t, rec.Got, 2)
}

func TestSharedKeyedMap(t *testing.T) {
	s := testutils.NewShapes()
	km := s.KeyedMap()
	f, err := km.Containment(s.Parts.Meta)
	require.NoError(t, err)
	assert.Equal(t, s.Parts, f)

	_, err = km.Property(s.Parts.Meta)
	assert.True(t, errors.Is(err, model.ErrUnknownFeature))
	_, err = km.Reference(model.MetaPointer{Language: "shapes", Version: "2", Key: "Leaf-peer"})
	assert.True(t, errors.Is(err, model.ErrUnknownFeature))

	_, err = model.NewSharedKeyedMap(s.Language, s.Language)
	assert.True(t, errors.Is(err, model.ErrDuplicateMetaPointer))
}

func TestBuiltinConverter(t *testing.T) {
	s := testutils.NewShapes()
	conv := model.BuiltinConverter{}
	raw := "42"
	v, err := conv.FromWire(s.Size, &raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	bad := "forty-two"
	_, err = conv.FromWire(s.Size, &bad)
	assert.True(t, errors.Is(err, model.ErrInvalidValue))

	w, err := conv.ToWire(s.Visible, true)
	require.NoError(t, err)
	assert.Equal(t, "true", *w)
	w, err = conv.ToWire(s.Visible, nil)
	assert.NoError(t, err)
	assert.Nil(t, w)
}
