package mapper

import (
	"errors"
	"testing"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/drpcorg/lwdelta/testutils"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	s      *testutils.Shapes
	m      *Mapper
	forest *model.Forest
	nodes  *nodemap.SharedNodeMap
	root   *model.Node
}

// newFixture builds partition g with leaves a, b in parts and c in extra.
func newFixture(t *testing.T, participation string) *fixture {
	s := testutils.NewShapes()
	f := &fixture{s: s, forest: model.NewForest(), nodes: nodemap.New()}
	f.m = New(f.forest, f.nodes, s.KeyedMap(), nil, participation)
	f.root = s.NewGeometry("g")
	require.NoError(t, f.root.InsertChild(s.Parts, 0, s.NewLeaf("a", "a")))
	require.NoError(t, f.root.InsertChild(s.Parts, 1, s.NewLeaf("b", "b")))
	require.NoError(t, f.root.InsertChild(s.Extra, 0, s.NewLeaf("c", "c")))
	require.NoError(t, f.nodes.RegisterSubtree(f.root))
	require.NoError(t, f.forest.AddPartition(f.root))
	return f
}

func (f *fixture) node(t *testing.T, id model.NodeId) *model.Node {
	n, ok := f.nodes.TryGet(id)
	require.True(t, ok, id)
	return n
}

func str(s string) *string { return &s }

func cmdBase(id string) delta.CommandBase {
	return delta.CommandBase{CommandId: id, ParticipationId: "p1"}
}

func TestCommand_Property(t *testing.T) {
	f := newFixture(t, "repo")
	n, err := f.m.CommandToNotification(&delta.AddProperty{CommandBase: cmdBase("c1"), Node: "a",
		Property: f.s.Size.Meta, NewValue: str("5")})
	require.NoError(t, err)
	added, ok := n.(*model.PropertyAdded)
	require.True(t, ok)
	assert.Equal(t, int64(5), added.NewValue)
	assert.Equal(t, f.node(t, "a"), added.Node)
	assert.Equal(t, []model.CommandSource{{ParticipationId: "p1", CommandId: "c1"}}, added.Origins())
	assert.NotEmpty(t, added.NotificationId())

	_, err = f.m.CommandToNotification(&delta.ChangeProperty{CommandBase: cmdBase("c2"), Node: "a",
		Property: f.s.Size.Meta, NewValue: str("6")})
	assert.True(t, errors.Is(err, model.ErrUnsetFeature))

	_, err = f.m.CommandToNotification(&delta.AddProperty{CommandBase: cmdBase("c3"), Node: "a",
		Property: f.s.LeafName.Meta, NewValue: str("again")})
	assert.True(t, errors.Is(err, model.ErrInvalidValue))

	_, err = f.m.CommandToNotification(&delta.AddProperty{CommandBase: cmdBase("c4"), Node: "a",
		Property: f.s.Size.Meta, NewValue: str("five")})
	assert.True(t, errors.Is(err, model.ErrInvalidValue))

	_, err = f.m.CommandToNotification(&delta.DeleteProperty{CommandBase: cmdBase("c5"), Node: "zzz",
		Property: f.s.Size.Meta})
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.Equal(t, delta.ResolutionError, Classify(err))

	_, err = f.m.CommandToNotification(&delta.AddProperty{CommandBase: cmdBase("c6"), Node: "a",
		Property: f.s.GeometryName.Meta, NewValue: str("x")})
	assert.True(t, errors.Is(err, model.ErrUnknownFeature))
}

func TestCommand_AddChildAndDiscard(t *testing.T) {
	f := newFixture(t, "repo")
	chunk, err := serialization.Serialize(f.s.NewLeaf("d", "d"), model.BuiltinConverter{})
	require.NoError(t, err)

	n, err := f.m.CommandToNotification(&delta.AddChild{CommandBase: cmdBase("c1"), Parent: "g",
		NewChild: chunk, Containment: f.s.Parts.Meta, Index: 2})
	require.NoError(t, err)
	added := n.(*model.ChildAdded)
	assert.Equal(t, model.NodeId("d"), added.NewChild.Id())
	assert.Equal(t, f.s.Parts, added.Containment)
	_, ok := f.nodes.TryGet("d")
	assert.True(t, ok)

	f.m.Discard(n)
	_, ok = f.nodes.TryGet("d")
	assert.False(t, ok)

	_, err = f.m.CommandToNotification(&delta.AddChild{CommandBase: cmdBase("c2"), Parent: "g",
		NewChild: chunk, Containment: f.s.Parts.Meta, Index: 9})
	assert.True(t, errors.Is(err, model.ErrInvalidIndex))
	_, ok = f.nodes.TryGet("d")
	assert.False(t, ok)

	dup, err := serialization.Serialize(f.s.NewLeaf("a", "other a"), model.BuiltinConverter{})
	require.NoError(t, err)
	_, err = f.m.CommandToNotification(&delta.AddChild{CommandBase: cmdBase("c3"), Parent: "g",
		NewChild: dup, Containment: f.s.Parts.Meta, Index: 0})
	assert.True(t, errors.Is(err, nodemap.ErrDuplicateNode))
	assert.Equal(t, delta.ValueError, Classify(err))
}

func TestCommand_Moves(t *testing.T) {
	f := newFixture(t, "repo")
	n, err := f.m.CommandToNotification(&delta.MoveChildInSameContainment{CommandBase: cmdBase("c1"),
		NewIndex: 0, MovedChild: "b"})
	require.NoError(t, err)
	same := n.(*model.ChildMovedInSameContainment)
	assert.Equal(t, 1, same.OldIndex)
	assert.Equal(t, f.root, same.Parent)

	n, err = f.m.CommandToNotification(&delta.MoveChildFromOtherContainmentInSameParent{CommandBase: cmdBase("c2"),
		NewContainment: f.s.Extra.Meta, NewIndex: 1, MovedChild: "a", Parent: "g"})
	require.NoError(t, err)
	other := n.(*model.ChildMovedFromOtherContainmentInSameParent)
	assert.Equal(t, f.s.Parts, other.OldContainment)
	assert.Equal(t, 0, other.OldIndex)

	n, err = f.m.CommandToNotification(&delta.MoveChildFromOtherContainment{CommandBase: cmdBase("c3"),
		NewParent: "a", NewContainment: f.s.Kids.Meta, NewIndex: 0, MovedChild: "c"})
	require.NoError(t, err)
	cross := n.(*model.ChildMovedFromOtherContainment)
	assert.Equal(t, f.root, cross.OldParent)
	assert.Equal(t, f.s.Extra, cross.OldContainment)

	_, err = f.m.CommandToNotification(&delta.MoveChildFromOtherContainment{CommandBase: cmdBase("c4"),
		NewParent: "a", NewContainment: f.s.Kids.Meta, NewIndex: 0, MovedChild: "a"})
	assert.True(t, errors.Is(err, model.ErrCycle))

	_, err = f.m.CommandToNotification(&delta.MoveAndReplaceChildFromOtherContainment{CommandBase: cmdBase("c5"),
		NewParent: "g", NewContainment: f.s.Parts.Meta, NewIndex: 0, ReplacedChild: "b", MovedChild: "c"})
	assert.True(t, errors.Is(err, model.ErrInvalidValue))

	n, err = f.m.CommandToNotification(&delta.MoveAndReplaceChildFromOtherContainment{CommandBase: cmdBase("c6"),
		NewParent: "g", NewContainment: f.s.Parts.Meta, NewIndex: 0, ReplacedChild: "a", MovedChild: "c"})
	require.NoError(t, err)
	assert.Equal(t, f.node(t, "a"), n.(*model.ChildMovedAndReplacedFromOtherContainment).ReplacedChild)
}

func TestCommand_ForestScope(t *testing.T) {
	f := newFixture(t, "repo")
	_, err := f.m.CommandToNotification(&delta.DeletePartition{CommandBase: cmdBase("c1"), DeletedPartition: "g"})
	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
	assert.Equal(t, delta.ProtocolError, Classify(err))

	n, err := f.m.ForestCommandToNotification(&delta.DeletePartition{CommandBase: cmdBase("c2"), DeletedPartition: "g"})
	require.NoError(t, err)
	assert.Equal(t, f.root, n.(*model.PartitionDeleted).DeletedPartition)

	_, err = f.m.ForestCommandToNotification(&delta.DeletePartition{CommandBase: cmdBase("c3"), DeletedPartition: "x"})
	assert.True(t, errors.Is(err, ErrUnknownPartition))

	leafChunk, err := serialization.Serialize(f.s.NewLeaf("x", "x"), model.BuiltinConverter{})
	require.NoError(t, err)
	_, err = f.m.ForestCommandToNotification(&delta.AddPartition{CommandBase: cmdBase("c4"), NewPartition: leafChunk})
	assert.True(t, errors.Is(err, model.ErrNotPartition))
	_, ok := f.nodes.TryGet("x")
	assert.False(t, ok)
}

func TestNotificationToEvent(t *testing.T) {
	f := newFixture(t, "repo")
	a := f.node(t, "a")
	local := &model.ChildDeleted{Base: model.Base{Id: "n1"}, DeletedChild: a, Parent: f.root,
		Containment: f.s.Parts, Index: 0}
	e, err := f.m.NotificationToEvent(local)
	require.NoError(t, err)
	assert.Equal(t, []delta.CommandSource{{ParticipationId: "repo", CommandId: "n1"}}, e.Origins())
	assert.Empty(t, e.(*delta.ChildDeleted).DeletedDescendants)

	src := []model.CommandSource{{ParticipationId: "p1", CommandId: "c9"}}
	remote := &model.PropertyAdded{Base: model.Base{Id: "n2", Origin: src}, Node: a, Property: f.s.Visible, NewValue: true}
	e, err = f.m.NotificationToEvent(remote)
	require.NoError(t, err)
	assert.Equal(t, src, e.Origins())
	assert.Equal(t, "true", *e.(*delta.PropertyAdded).NewValue)
}

// Edits on one replica travel as events and are reproduced on another.
func TestEventRoundTrip(t *testing.T) {
	server := newFixture(t, "repo")
	replica := newFixture(t, "p1")

	var changes []model.Notification
	require.NoError(t, server.root.AttachNotifications(model.HandlerFunc(func(n model.Notification) { changes = append(changes, n) })))
	a := server.node(t, "a")
	kid := server.s.NewLeaf("k", "kid")
	require.NoError(t, kid.InsertAnnotation(0, server.s.NewNote("note", "hi")))
	require.NoError(t, a.InsertChild(server.s.Kids, 0, kid))
	require.NoError(t, server.nodes.RegisterSubtree(kid))
	require.NoError(t, a.SetProperty(server.s.Size, 2))
	require.NoError(t, a.InsertReference(server.s.Peer, 0, model.ReferenceTarget{TargetId: "b"}))
	require.NoError(t, server.root.InsertChild(server.s.Parts, 0, server.node(t, "b")))
	require.NoError(t, server.root.InsertChild(server.s.Main, 0, server.node(t, "c")))
	require.Len(t, changes, 5)

	for _, n := range changes {
		e, err := server.m.NotificationToEvent(n)
		require.NoError(t, err)
		back, err := replica.m.EventToNotification(e)
		require.NoError(t, err, e.Kind())
		assert.IsType(t, n, back)
		assert.Equal(t, e.Origins(), back.Origins())
		require.NoError(t, applyForTest(back))
	}

	ra := replica.node(t, "a")
	assert.Equal(t, int64(2), mustGet(t, ra, replica.s.Size))
	k, ok := replica.nodes.TryGet("k")
	require.True(t, ok)
	assert.Equal(t, ra, k.Parent())
	assert.Len(t, k.Annotations(), 1)
	assert.Equal(t, replica.node(t, "b"), ra.References(replica.s.Peer)[0].Target)
	assert.Equal(t, []*model.Node{replica.node(t, "b"), ra}, replica.root.Children(replica.s.Parts))
	assert.Equal(t, []*model.Node{replica.node(t, "c")}, replica.root.Children(replica.s.Main))
}

func mustGet(t *testing.T, n *model.Node, f *model.Feature) any {
	v, err := n.Get(f)
	require.NoError(t, err)
	return v
}

// applyForTest replays the few notification kinds the round trip uses.
func applyForTest(n model.Notification) error {
	switch n := n.(type) {
	case *model.ChildAdded:
		return n.Parent.InsertChild(n.Containment, n.Index, n.NewChild)
	case *model.PropertyAdded:
		return n.Node.SetProperty(n.Property, n.NewValue)
	case *model.ReferenceAdded:
		return n.Parent.InsertReference(n.Reference, n.Index, n.NewTarget)
	case *model.ChildMovedInSameContainment:
		return n.Parent.InsertChild(n.Containment, n.NewIndex, n.MovedChild)
	case *model.ChildMovedFromOtherContainmentInSameParent:
		return n.Parent.InsertChild(n.NewContainment, n.NewIndex, n.MovedChild)
	}
	return ErrUnsupportedOperation
}

func TestNotificationToCommand(t *testing.T) {
	client := newFixture(t, "p1")
	server := newFixture(t, "repo")

	var local []model.Notification
	require.NoError(t, client.root.AttachNotifications(model.HandlerFunc(func(n model.Notification) { local = append(local, n) })))
	require.NoError(t, client.root.InsertChild(client.s.Extra, 1, client.node(t, "a")))
	require.NoError(t, client.node(t, "b").SetProperty(client.s.Visible, false))
	require.NoError(t, client.node(t, "c").InsertAnnotation(0, client.s.NewNote("n", "x")))
	require.Len(t, local, 3)

	for i, n := range local {
		cmd, err := client.m.NotificationToCommand(n, "cmd"+string(rune('0'+i)))
		require.NoError(t, err)
		assert.Equal(t, "p1", cmd.Source().ParticipationId)
		mapped, err := server.m.CommandToNotification(cmd)
		require.NoError(t, err, cmd.Kind())
		assert.IsType(t, n, mapped)
		assert.Equal(t, []model.CommandSource{cmd.Source()}, mapped.Origins())
	}

	first, err := client.m.NotificationToCommand(local[0], "x")
	require.NoError(t, err)
	move := first.(*delta.MoveChildFromOtherContainmentInSameParent)
	assert.Equal(t, model.NodeId("g"), move.Parent)
	assert.Equal(t, 1, move.NewIndex)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, delta.ProtocolError, Classify(ErrNotSignedOn))
	assert.Equal(t, delta.ProtocolError, Classify(delta.ErrMalformedMessage))
	assert.Equal(t, delta.ResolutionError, Classify(serialization.ErrUnresolvableNode))
	assert.Equal(t, delta.ValueError, Classify(model.ErrInvalidIndex))
	assert.Equal(t, delta.ValueError, Classify(model.ErrCycle))
	assert.Equal(t, delta.TransportError, Classify(utils.ErrOverflow))
	assert.Equal(t, delta.ReplicationError, Classify(errors.New("disk on fire")))
}

func TestEventToNotification_NotAChange(t *testing.T) {
	f := newFixture(t, "p1")
	_, err := f.m.EventToNotification(&delta.ErrorEvent{ErrorCode: delta.ValueError, Message: "bad"})
	assert.True(t, errors.Is(err, ErrUnsupportedOperation))
	assert.True(t, errors.Is(err, delta.ErrUnsupportedOperation))
	assert.Equal(t, delta.ProtocolError, Classify(err))
}

// enrich gives a a kid k, notes n1 and n2, a size of 2 and a peer b.
func (f *fixture) enrich(t *testing.T) {
	a := f.node(t, "a")
	k := f.s.NewLeaf("k", "k")
	n1, n2 := f.s.NewNote("n1", "one"), f.s.NewNote("n2", "two")
	require.NoError(t, a.InsertChild(f.s.Kids, 0, k))
	require.NoError(t, a.InsertAnnotation(0, n1))
	require.NoError(t, a.InsertAnnotation(1, n2))
	for _, n := range []*model.Node{k, n1, n2} {
		require.NoError(t, f.nodes.RegisterSubtree(n))
	}
	require.NoError(t, a.SetProperty(f.s.Size, 2))
	require.NoError(t, a.InsertReference(f.s.Peer, 0, model.ReferenceTarget{TargetId: "b", Target: f.node(t, "b")}))
}

// Every command kind resolves against the repository tree, comes out as
// the matching event and resolves again on a replica holding the same tree.
func TestCommandToEvent_EveryKind(t *testing.T) {
	s := testutils.NewShapes()
	chunk := func(n *model.Node) serialization.Chunk {
		c, err := serialization.Serialize(n, model.BuiltinConverter{})
		require.NoError(t, err)
		return c
	}
	toC := serialization.TargetToWire(model.ReferenceTarget{TargetId: "c"})
	toB := serialization.TargetToWire(model.ReferenceTarget{TargetId: "b"})
	base := cmdBase("cmd")

	for _, tt := range []struct {
		cmd   delta.Command
		event delta.Kind
		check func(t *testing.T, e delta.Event)
	}{
		{&delta.AddPartition{CommandBase: base, NewPartition: chunk(s.NewGeometry("p"))}, "PartitionAdded",
			func(t *testing.T, e delta.Event) {
				assert.Equal(t, []model.NodeId{"p"}, e.(*delta.PartitionAdded).NewPartition.Ids())
			}},
		{&delta.DeletePartition{CommandBase: base, DeletedPartition: "g"}, "PartitionDeleted",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.PartitionDeleted)
				assert.Equal(t, model.NodeId("g"), ev.DeletedPartition)
				assert.Contains(t, ev.DeletedDescendants, model.NodeId("k"))
			}},
		{&delta.AddProperty{CommandBase: base, Node: "a", Property: s.Visible.Meta, NewValue: str("true")}, "PropertyAdded",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.PropertyAdded)
				assert.Equal(t, model.NodeId("a"), ev.Node)
				assert.Equal(t, s.Visible.Meta, ev.Property)
				assert.Equal(t, "true", *ev.NewValue)
			}},
		{&delta.DeleteProperty{CommandBase: base, Node: "a", Property: s.Size.Meta}, "PropertyDeleted",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.PropertyDeleted)
				assert.Equal(t, model.NodeId("a"), ev.Node)
				assert.Equal(t, s.Size.Meta, ev.Property)
				assert.Equal(t, "2", *ev.OldValue)
			}},
		{&delta.ChangeProperty{CommandBase: base, Node: "a", Property: s.Size.Meta, NewValue: str("3")}, "PropertyChanged",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.PropertyChanged)
				assert.Equal(t, model.NodeId("a"), ev.Node)
				assert.Equal(t, s.Size.Meta, ev.Property)
				assert.Equal(t, "3", *ev.NewValue)
				assert.Equal(t, "2", *ev.OldValue)
			}},
		{&delta.AddChild{CommandBase: base, Parent: "g", NewChild: chunk(s.NewLeaf("d", "d")), Containment: s.Parts.Meta, Index: 2}, "ChildAdded",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildAdded)
				assert.Equal(t, model.NodeId("g"), ev.Parent)
				assert.Equal(t, s.Parts.Meta, ev.Containment)
				assert.Equal(t, 2, ev.Index)
				assert.Equal(t, []model.NodeId{"d"}, ev.NewChild.Ids())
			}},
		{&delta.DeleteChild{CommandBase: base, Parent: "g", Containment: s.Parts.Meta, Index: 0, DeletedChild: "a"}, "ChildDeleted",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildDeleted)
				assert.Equal(t, model.NodeId("g"), ev.Parent)
				assert.Equal(t, s.Parts.Meta, ev.Containment)
				assert.Equal(t, 0, ev.Index)
				assert.Equal(t, model.NodeId("a"), ev.DeletedChild)
				assert.ElementsMatch(t, []model.NodeId{"k", "n1", "n2"}, ev.DeletedDescendants)
			}},
		{&delta.ReplaceChild{CommandBase: base, NewChild: chunk(s.NewLeaf("d", "d")), Parent: "g", Containment: s.Parts.Meta, Index: 1, ReplacedChild: "b"}, "ChildReplaced",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildReplaced)
				assert.Equal(t, model.NodeId("g"), ev.Parent)
				assert.Equal(t, s.Parts.Meta, ev.Containment)
				assert.Equal(t, 1, ev.Index)
				assert.Equal(t, model.NodeId("b"), ev.ReplacedChild)
				assert.Equal(t, []model.NodeId{"d"}, ev.NewChild.Ids())
			}},
		{&delta.MoveChildFromOtherContainment{CommandBase: base, NewParent: "b", NewContainment: s.Kids.Meta, NewIndex: 0, MovedChild: "c"}, "ChildMovedFromOtherContainment",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildMovedFromOtherContainment)
				assert.Equal(t, model.NodeId("b"), ev.NewParent)
				assert.Equal(t, s.Kids.Meta, ev.NewContainment)
				assert.Equal(t, 0, ev.NewIndex)
				assert.Equal(t, model.NodeId("c"), ev.MovedChild)
				assert.Equal(t, model.NodeId("g"), ev.OldParent)
				assert.Equal(t, s.Extra.Meta, ev.OldContainment)
				assert.Equal(t, 0, ev.OldIndex)
			}},
		{&delta.MoveChildFromOtherContainmentInSameParent{CommandBase: base, NewContainment: s.Extra.Meta, NewIndex: 1, MovedChild: "b", Parent: "g"}, "ChildMovedFromOtherContainmentInSameParent",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildMovedFromOtherContainmentInSameParent)
				assert.Equal(t, model.NodeId("g"), ev.Parent)
				assert.Equal(t, s.Extra.Meta, ev.NewContainment)
				assert.Equal(t, 1, ev.NewIndex)
				assert.Equal(t, model.NodeId("b"), ev.MovedChild)
				assert.Equal(t, s.Parts.Meta, ev.OldContainment)
				assert.Equal(t, 1, ev.OldIndex)
			}},
		{&delta.MoveChildInSameContainment{CommandBase: base, NewIndex: 0, MovedChild: "b"}, "ChildMovedInSameContainment",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildMovedInSameContainment)
				assert.Equal(t, model.NodeId("g"), ev.Parent)
				assert.Equal(t, s.Parts.Meta, ev.Containment)
				assert.Equal(t, 0, ev.NewIndex)
				assert.Equal(t, 1, ev.OldIndex)
			}},
		{&delta.MoveAndReplaceChildFromOtherContainment{CommandBase: base, NewParent: "g", NewContainment: s.Parts.Meta, NewIndex: 1, ReplacedChild: "b", MovedChild: "c"}, "ChildMovedAndReplacedFromOtherContainment",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ChildMovedAndReplacedFromOtherContainment)
				assert.Equal(t, model.NodeId("g"), ev.NewParent)
				assert.Equal(t, s.Parts.Meta, ev.NewContainment)
				assert.Equal(t, 1, ev.NewIndex)
				assert.Equal(t, model.NodeId("b"), ev.ReplacedChild)
				assert.Equal(t, model.NodeId("c"), ev.MovedChild)
				assert.Equal(t, model.NodeId("g"), ev.OldParent)
				assert.Equal(t, s.Extra.Meta, ev.OldContainment)
				assert.Equal(t, 0, ev.OldIndex)
			}},
		{&delta.AddAnnotation{CommandBase: base, Parent: "b", NewAnnotation: chunk(s.NewNote("n3", "three")), Index: 0}, "AnnotationAdded",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.AnnotationAdded)
				assert.Equal(t, model.NodeId("b"), ev.Parent)
				assert.Equal(t, 0, ev.Index)
				assert.Equal(t, []model.NodeId{"n3"}, ev.NewAnnotation.Ids())
			}},
		{&delta.DeleteAnnotation{CommandBase: base, Parent: "a", Index: 0, DeletedAnnotation: "n1"}, "AnnotationDeleted",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.AnnotationDeleted)
				assert.Equal(t, model.NodeId("a"), ev.Parent)
				assert.Equal(t, 0, ev.Index)
				assert.Equal(t, model.NodeId("n1"), ev.DeletedAnnotation)
			}},
		{&delta.MoveAnnotationFromOtherParent{CommandBase: base, NewParent: "b", NewIndex: 0, MovedAnnotation: "n2"}, "AnnotationMovedFromOtherParent",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.AnnotationMovedFromOtherParent)
				assert.Equal(t, model.NodeId("b"), ev.NewParent)
				assert.Equal(t, 0, ev.NewIndex)
				assert.Equal(t, model.NodeId("n2"), ev.MovedAnnotation)
				assert.Equal(t, model.NodeId("a"), ev.OldParent)
				assert.Equal(t, 1, ev.OldIndex)
			}},
		{&delta.MoveAnnotationInSameParent{CommandBase: base, NewIndex: 0, MovedAnnotation: "n2"}, "AnnotationMovedInSameParent",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.AnnotationMovedInSameParent)
				assert.Equal(t, model.NodeId("a"), ev.Parent)
				assert.Equal(t, 0, ev.NewIndex)
				assert.Equal(t, 1, ev.OldIndex)
			}},
		{&delta.AddReference{CommandBase: base, Parent: "a", Reference: s.Peer.Meta, Index: 1, NewTarget: toC}, "ReferenceAdded",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ReferenceAdded)
				assert.Equal(t, model.NodeId("a"), ev.Parent)
				assert.Equal(t, s.Peer.Meta, ev.Reference)
				assert.Equal(t, 1, ev.Index)
				assert.Equal(t, toC, ev.NewTarget)
			}},
		{&delta.DeleteReference{CommandBase: base, Parent: "a", Reference: s.Peer.Meta, Index: 0}, "ReferenceDeleted",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ReferenceDeleted)
				assert.Equal(t, model.NodeId("a"), ev.Parent)
				assert.Equal(t, s.Peer.Meta, ev.Reference)
				assert.Equal(t, 0, ev.Index)
				assert.Equal(t, toB, ev.DeletedTarget)
			}},
		{&delta.ChangeReference{CommandBase: base, Parent: "a", Reference: s.Peer.Meta, Index: 0, NewTarget: toC}, "ReferenceChanged",
			func(t *testing.T, e delta.Event) {
				ev := e.(*delta.ReferenceChanged)
				assert.Equal(t, model.NodeId("a"), ev.Parent)
				assert.Equal(t, s.Peer.Meta, ev.Reference)
				assert.Equal(t, 0, ev.Index)
				assert.Equal(t, toC, ev.NewTarget)
				assert.Equal(t, toB, ev.OldTarget)
			}},
	} {
		t.Run(string(tt.cmd.Kind()), func(t *testing.T) {
			server, replica := newFixture(t, "repo"), newFixture(t, "p1")
			server.enrich(t)
			replica.enrich(t)

			var n model.Notification
			var err error
			if delta.IsForestCommand(tt.cmd) {
				n, err = server.m.ForestCommandToNotification(tt.cmd)
			} else {
				n, err = server.m.CommandToNotification(tt.cmd)
			}
			require.NoError(t, err)
			e, err := server.m.NotificationToEvent(n)
			require.NoError(t, err)
			assert.Equal(t, tt.event, e.Kind())
			assert.Equal(t, []delta.CommandSource{tt.cmd.Source()}, e.Origins())
			tt.check(t, e)

			back, err := replica.m.EventToNotification(e)
			require.NoError(t, err)
			assert.IsType(t, n, back)
		})
	}
}
