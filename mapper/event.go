package mapper

import (
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/serialization"
)

// NotificationToEvent renders an applied change for clients. Added
// subtrees travel whole; deletions list every removed descendant.
func (m *Mapper) NotificationToEvent(n model.Notification) (delta.Event, error) {
	return model.VisitNotification[delta.Event](n, &eventMapper{m: m, base: m.eventBase(n)})
}

func (m *Mapper) eventBase(n model.Notification) delta.EventBase {
	origin := n.Origins()
	if len(origin) == 0 {
		origin = []model.CommandSource{{ParticipationId: m.Participation, CommandId: string(n.NotificationId())}}
	}
	return delta.EventBase{OriginCommands: origin}
}

type eventMapper struct {
	m    *Mapper
	base delta.EventBase
}

func (v *eventMapper) chunk(root *model.Node) (serialization.Chunk, error) {
	return serialization.Serialize(root, v.m.Converter)
}

func (v *eventMapper) wire(f *model.Feature, val any) (*string, error) {
	return v.m.Converter.ToWire(f, val)
}

func (v *eventMapper) descendants(n *model.Node) []model.NodeId {
	return v.m.ids(n.Descendants(false, true))
}

func (v *eventMapper) PartitionAdded(n *model.PartitionAdded) (delta.Event, error) {
	c, err := v.chunk(n.NewPartition)
	if err != nil {
		return nil, err
	}
	return &delta.PartitionAdded{EventBase: v.base, NewPartition: c}, nil
}

func (v *eventMapper) PartitionDeleted(n *model.PartitionDeleted) (delta.Event, error) {
	return &delta.PartitionDeleted{EventBase: v.base, DeletedPartition: n.DeletedPartition.Id(),
		DeletedDescendants: v.descendants(n.DeletedPartition)}, nil
}

func (v *eventMapper) PropertyAdded(n *model.PropertyAdded) (delta.Event, error) {
	val, err := v.wire(n.Property, n.NewValue)
	if err != nil {
		return nil, err
	}
	return &delta.PropertyAdded{EventBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta, NewValue: val}, nil
}

func (v *eventMapper) PropertyDeleted(n *model.PropertyDeleted) (delta.Event, error) {
	old, err := v.wire(n.Property, n.OldValue)
	if err != nil {
		return nil, err
	}
	return &delta.PropertyDeleted{EventBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta, OldValue: old}, nil
}

func (v *eventMapper) PropertyChanged(n *model.PropertyChanged) (delta.Event, error) {
	val, err := v.wire(n.Property, n.NewValue)
	if err != nil {
		return nil, err
	}
	old, err := v.wire(n.Property, n.OldValue)
	if err != nil {
		return nil, err
	}
	return &delta.PropertyChanged{EventBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta,
		NewValue: val, OldValue: old}, nil
}

func (v *eventMapper) ChildAdded(n *model.ChildAdded) (delta.Event, error) {
	c, err := v.chunk(n.NewChild)
	if err != nil {
		return nil, err
	}
	return &delta.ChildAdded{EventBase: v.base, Parent: n.Parent.Id(), NewChild: c,
		Containment: n.Containment.Meta, Index: n.Index}, nil
}

func (v *eventMapper) ChildDeleted(n *model.ChildDeleted) (delta.Event, error) {
	return &delta.ChildDeleted{EventBase: v.base, Parent: n.Parent.Id(), Containment: n.Containment.Meta,
		Index: n.Index, DeletedChild: n.DeletedChild.Id(), DeletedDescendants: v.descendants(n.DeletedChild)}, nil
}

func (v *eventMapper) ChildReplaced(n *model.ChildReplaced) (delta.Event, error) {
	c, err := v.chunk(n.NewChild)
	if err != nil {
		return nil, err
	}
	return &delta.ChildReplaced{EventBase: v.base, NewChild: c, Parent: n.Parent.Id(),
		Containment: n.Containment.Meta, Index: n.Index, ReplacedChild: n.ReplacedChild.Id(),
		ReplacedDescendants: v.descendants(n.ReplacedChild)}, nil
}

func (v *eventMapper) ChildMovedFromOtherContainment(n *model.ChildMovedFromOtherContainment) (delta.Event, error) {
	return &delta.ChildMovedFromOtherContainment{EventBase: v.base, NewParent: n.NewParent.Id(),
		NewContainment: n.NewContainment.Meta, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id(),
		OldParent: n.OldParent.Id(), OldContainment: n.OldContainment.Meta, OldIndex: n.OldIndex}, nil
}

func (v *eventMapper) ChildMovedFromOtherContainmentInSameParent(n *model.ChildMovedFromOtherContainmentInSameParent) (delta.Event, error) {
	return &delta.ChildMovedFromOtherContainmentInSameParent{EventBase: v.base, Parent: n.Parent.Id(),
		NewContainment: n.NewContainment.Meta, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id(),
		OldContainment: n.OldContainment.Meta, OldIndex: n.OldIndex}, nil
}

func (v *eventMapper) ChildMovedInSameContainment(n *model.ChildMovedInSameContainment) (delta.Event, error) {
	return &delta.ChildMovedInSameContainment{EventBase: v.base, Parent: n.Parent.Id(),
		Containment: n.Containment.Meta, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id(), OldIndex: n.OldIndex}, nil
}

func (v *eventMapper) ChildMovedAndReplacedFromOtherContainment(n *model.ChildMovedAndReplacedFromOtherContainment) (delta.Event, error) {
	return &delta.ChildMovedAndReplacedFromOtherContainment{EventBase: v.base, NewParent: n.NewParent.Id(),
		NewContainment: n.NewContainment.Meta, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id(),
		OldParent: n.OldParent.Id(), OldContainment: n.OldContainment.Meta, OldIndex: n.OldIndex,
		ReplacedChild: n.ReplacedChild.Id(), ReplacedDescendants: v.descendants(n.ReplacedChild)}, nil
}

func (v *eventMapper) AnnotationAdded(n *model.AnnotationAdded) (delta.Event, error) {
	c, err := v.chunk(n.NewAnnotation)
	if err != nil {
		return nil, err
	}
	return &delta.AnnotationAdded{EventBase: v.base, Parent: n.Parent.Id(), NewAnnotation: c, Index: n.Index}, nil
}

func (v *eventMapper) AnnotationDeleted(n *model.AnnotationDeleted) (delta.Event, error) {
	return &delta.AnnotationDeleted{EventBase: v.base, Parent: n.Parent.Id(), Index: n.Index,
		DeletedAnnotation: n.DeletedAnnotation.Id(), DeletedDescendants: v.descendants(n.DeletedAnnotation)}, nil
}

func (v *eventMapper) AnnotationMovedFromOtherParent(n *model.AnnotationMovedFromOtherParent) (delta.Event, error) {
	return &delta.AnnotationMovedFromOtherParent{EventBase: v.base, NewParent: n.NewParent.Id(),
		NewIndex: n.NewIndex, MovedAnnotation: n.MovedAnnotation.Id(), OldParent: n.OldParent.Id(),
		OldIndex: n.OldIndex}, nil
}

func (v *eventMapper) AnnotationMovedInSameParent(n *model.AnnotationMovedInSameParent) (delta.Event, error) {
	return &delta.AnnotationMovedInSameParent{EventBase: v.base, Parent: n.Parent.Id(), NewIndex: n.NewIndex,
		MovedAnnotation: n.MovedAnnotation.Id(), OldIndex: n.OldIndex}, nil
}

func (v *eventMapper) ReferenceAdded(n *model.ReferenceAdded) (delta.Event, error) {
	return &delta.ReferenceAdded{EventBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index, NewTarget: serialization.TargetToWire(n.NewTarget)}, nil
}

func (v *eventMapper) ReferenceDeleted(n *model.ReferenceDeleted) (delta.Event, error) {
	return &delta.ReferenceDeleted{EventBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index, DeletedTarget: serialization.TargetToWire(n.DeletedTarget)}, nil
}

func (v *eventMapper) ReferenceChanged(n *model.ReferenceChanged) (delta.Event, error) {
	return &delta.ReferenceChanged{EventBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index, NewTarget: serialization.TargetToWire(n.NewTarget),
		OldTarget: serialization.TargetToWire(n.OldTarget)}, nil
}
