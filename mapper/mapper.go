// Package mapper translates between client commands, internal
// notifications and client events.
package mapper

import (
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/pkg/errors"
)

// Mapper holds what translation needs to resolve wire references. Command
// and event mapping must run under the lock of the partition they touch:
// old positions and values are read from the live tree.
type Mapper struct {
	Forest    *model.Forest
	Nodes     *nodemap.SharedNodeMap
	Keyed     *model.SharedKeyedMap
	Converter model.ValueConverter
	// Participation is credited with notifications raised by local edits.
	Participation string

	deser *serialization.Deserializer
}

func New(forest *model.Forest, nodes *nodemap.SharedNodeMap, keyed *model.SharedKeyedMap,
	conv model.ValueConverter, participation string) *Mapper {
	if conv == nil {
		conv = model.BuiltinConverter{}
	}
	return &Mapper{
		Forest:        forest,
		Nodes:         nodes,
		Keyed:         keyed,
		Converter:     conv,
		Participation: participation,
		deser:         &serialization.Deserializer{Keyed: keyed, Nodes: nodes, Converter: conv},
	}
}

// Discard unregisters nodes a mapped notification brought in, for when
// that notification never got applied.
func (m *Mapper) Discard(n model.Notification) {
	var fresh *model.Node
	switch t := n.(type) {
	case *model.PartitionAdded:
		fresh = t.NewPartition
	case *model.ChildAdded:
		fresh = t.NewChild
	case *model.ChildReplaced:
		fresh = t.NewChild
	case *model.AnnotationAdded:
		fresh = t.NewAnnotation
	}
	if fresh != nil && fresh.Parent() == nil {
		m.deser.Forget(fresh)
	}
}

func (m *Mapper) node(id model.NodeId) (*model.Node, error) {
	n, ok := m.Nodes.TryGet(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownNode, "%q", id)
	}
	return n, nil
}

func (m *Mapper) feature(n *model.Node, mp model.MetaPointer, kind model.FeatureKind) (*model.Feature, error) {
	var f *model.Feature
	var err error
	switch kind {
	case model.PropertyKind:
		f, err = m.Keyed.Property(mp)
	case model.ContainmentKind:
		f, err = m.Keyed.Containment(mp)
	default:
		f, err = m.Keyed.Reference(mp)
	}
	if err != nil {
		return nil, err
	}
	if !n.Classifier().HasFeature(f) {
		return nil, errors.Wrapf(model.ErrUnknownFeature, "%s has no %s", n.Classifier().Name, f.Name)
	}
	return f, nil
}

func (m *Mapper) target(w serialization.SerializedReferenceTarget) model.ReferenceTarget {
	t := serialization.TargetFromWire(w)
	if t.TargetId != "" {
		t.Target, _ = m.Nodes.TryGet(t.TargetId)
	}
	return t
}

func (m *Mapper) value(f *model.Feature, raw *string) (any, error) {
	v, err := m.Converter.FromWire(f, raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.Wrapf(model.ErrInvalidValue, "no value for %s", f.Name)
	}
	return v, nil
}

func (m *Mapper) single(chunk *serialization.Chunk) (*model.Node, error) {
	return m.deser.DeserializeSingle(chunk)
}

func (m *Mapper) ids(nodes []*model.Node) []model.NodeId {
	out := make([]model.NodeId, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Id())
	}
	return out
}

func checkIndex(index, limit int, where string) error {
	if index < 0 || index > limit {
		return errors.Wrapf(model.ErrInvalidIndex, "%d not in [0,%d] of %s", index, limit, where)
	}
	return nil
}

// occupant checks that list[index] exists and, when expected is given,
// that it is that node.
func occupant(list []*model.Node, index int, expected model.NodeId, where string) (*model.Node, error) {
	if index < 0 || index >= len(list) {
		return nil, errors.Wrapf(model.ErrInvalidIndex, "%d of %s", index, where)
	}
	n := list[index]
	if expected != "" && n.Id() != expected {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s holds %s at %d, not %s", where, n.Id(), index, expected)
	}
	return n, nil
}

// ancestorOrSelf tells whether a is n or one of its ancestors.
func ancestorOrSelf(a, n *model.Node) bool {
	for x := n; x != nil; x = x.Parent() {
		if x == a {
			return true
		}
	}
	return false
}

// ContextNodeId names the node whose partition a command acts in.
func ContextNodeId(c delta.Command) model.NodeId {
	switch c := c.(type) {
	case *delta.AddPartition:
		if len(c.NewPartition.Nodes) > 0 {
			return model.NodeId(c.NewPartition.Nodes[0].Id)
		}
	case *delta.DeletePartition:
		return c.DeletedPartition
	case *delta.AddProperty:
		return c.Node
	case *delta.DeleteProperty:
		return c.Node
	case *delta.ChangeProperty:
		return c.Node
	case *delta.AddChild:
		return c.Parent
	case *delta.DeleteChild:
		return c.Parent
	case *delta.ReplaceChild:
		return c.Parent
	case *delta.MoveChildFromOtherContainment:
		return c.NewParent
	case *delta.MoveChildFromOtherContainmentInSameParent:
		return c.Parent
	case *delta.MoveChildInSameContainment:
		return c.MovedChild
	case *delta.MoveAndReplaceChildFromOtherContainment:
		return c.NewParent
	case *delta.AddAnnotation:
		return c.Parent
	case *delta.DeleteAnnotation:
		return c.Parent
	case *delta.MoveAnnotationFromOtherParent:
		return c.NewParent
	case *delta.MoveAnnotationInSameParent:
		return c.MovedAnnotation
	case *delta.AddReference:
		return c.Parent
	case *delta.DeleteReference:
		return c.Parent
	case *delta.ChangeReference:
		return c.Parent
	}
	return ""
}

// SourceNodeId names the node a move takes from elsewhere, which may sit
// in another partition than the context node. Empty for other commands.
func SourceNodeId(c delta.Command) model.NodeId {
	switch c := c.(type) {
	case *delta.MoveChildFromOtherContainment:
		return c.MovedChild
	case *delta.MoveAndReplaceChildFromOtherContainment:
		return c.MovedChild
	case *delta.MoveAnnotationFromOtherParent:
		return c.MovedAnnotation
	}
	return ""
}
