package mapper

import (
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/pkg/errors"
)

// EventToNotification maps an event received by a client replica into the
// notification applying it locally raises. Positions are taken from the
// event and checked against the local tree, so a replica that diverged
// fails here instead of applying garbage.
func (m *Mapper) EventToNotification(e delta.Event) (model.Notification, error) {
	base := model.Base{Id: model.NewNotificationId(), Origin: e.Origins()}
	return delta.VisitEvent[model.Notification](e, &inboundMapper{m: m, base: base})
}

type inboundMapper struct {
	m    *Mapper
	base model.Base
}

func (v *inboundMapper) containment(id model.NodeId, mp model.MetaPointer) (*model.Node, *model.Feature, error) {
	n, err := v.m.node(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := v.m.feature(n, mp, model.ContainmentKind)
	return n, f, err
}

func (v *inboundMapper) property(id model.NodeId, mp model.MetaPointer) (*model.Node, *model.Feature, error) {
	n, err := v.m.node(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := v.m.feature(n, mp, model.PropertyKind)
	return n, f, err
}

func (v *inboundMapper) reference(id model.NodeId, mp model.MetaPointer) (*model.Node, *model.Feature, error) {
	n, err := v.m.node(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := v.m.feature(n, mp, model.ReferenceKind)
	return n, f, err
}

// child resolves a node expected to sit at (parent, f, index).
func (v *inboundMapper) child(parent *model.Node, f *model.Feature, index int, id model.NodeId) (*model.Node, error) {
	return occupant(parent.Children(f), index, id, string(parent.Id())+"."+f.Name)
}

func (v *inboundMapper) PartitionAdded(e *delta.PartitionAdded) (model.Notification, error) {
	p, err := v.m.single(&e.NewPartition)
	if err != nil {
		return nil, err
	}
	return &model.PartitionAdded{Base: v.base, NewPartition: p}, nil
}

func (v *inboundMapper) PartitionDeleted(e *delta.PartitionDeleted) (model.Notification, error) {
	p, ok := v.m.Forest.Partition(e.DeletedPartition)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPartition, "%q", e.DeletedPartition)
	}
	return &model.PartitionDeleted{Base: v.base, DeletedPartition: p}, nil
}

func (v *inboundMapper) PropertyAdded(e *delta.PropertyAdded) (model.Notification, error) {
	n, f, err := v.property(e.Node, e.Property)
	if err != nil {
		return nil, err
	}
	val, err := v.m.value(f, e.NewValue)
	if err != nil {
		return nil, err
	}
	return &model.PropertyAdded{Base: v.base, Node: n, Property: f, NewValue: val}, nil
}

func (v *inboundMapper) PropertyDeleted(e *delta.PropertyDeleted) (model.Notification, error) {
	n, f, err := v.property(e.Node, e.Property)
	if err != nil {
		return nil, err
	}
	old, err := n.Get(f)
	if err != nil {
		return nil, err
	}
	return &model.PropertyDeleted{Base: v.base, Node: n, Property: f, OldValue: old}, nil
}

func (v *inboundMapper) PropertyChanged(e *delta.PropertyChanged) (model.Notification, error) {
	n, f, err := v.property(e.Node, e.Property)
	if err != nil {
		return nil, err
	}
	old, err := n.Get(f)
	if err != nil {
		return nil, err
	}
	val, err := v.m.value(f, e.NewValue)
	if err != nil {
		return nil, err
	}
	return &model.PropertyChanged{Base: v.base, Node: n, Property: f, NewValue: val, OldValue: old}, nil
}

func (v *inboundMapper) ChildAdded(e *delta.ChildAdded) (model.Notification, error) {
	parent, f, err := v.containment(e.Parent, e.Containment)
	if err != nil {
		return nil, err
	}
	if err := insertable(parent, f, e.Index); err != nil {
		return nil, err
	}
	child, err := v.m.single(&e.NewChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildAdded{Base: v.base, Parent: parent, NewChild: child, Containment: f, Index: e.Index}, nil
}

func (v *inboundMapper) ChildDeleted(e *delta.ChildDeleted) (model.Notification, error) {
	parent, f, err := v.containment(e.Parent, e.Containment)
	if err != nil {
		return nil, err
	}
	child, err := v.child(parent, f, e.Index, e.DeletedChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildDeleted{Base: v.base, DeletedChild: child, Parent: parent, Containment: f, Index: e.Index}, nil
}

func (v *inboundMapper) ChildReplaced(e *delta.ChildReplaced) (model.Notification, error) {
	parent, f, err := v.containment(e.Parent, e.Containment)
	if err != nil {
		return nil, err
	}
	replaced, err := v.child(parent, f, e.Index, e.ReplacedChild)
	if err != nil {
		return nil, err
	}
	child, err := v.m.single(&e.NewChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildReplaced{Base: v.base, NewChild: child, ReplacedChild: replaced,
		Parent: parent, Containment: f, Index: e.Index}, nil
}

// ChildMovedFromOtherContainment becomes a deletion on a replica that does
// not hold the new parent: the child left for a partition it does not see.
func (v *inboundMapper) ChildMovedFromOtherContainment(e *delta.ChildMovedFromOtherContainment) (model.Notification, error) {
	oldParent, oldF, err := v.containment(e.OldParent, e.OldContainment)
	if err != nil {
		return nil, err
	}
	moved, err := v.child(oldParent, oldF, e.OldIndex, e.MovedChild)
	if err != nil {
		return nil, err
	}
	newParent, f, err := v.containment(e.NewParent, e.NewContainment)
	if errors.Is(err, ErrUnknownNode) {
		return &model.ChildDeleted{Base: v.base, DeletedChild: moved, Parent: oldParent,
			Containment: oldF, Index: e.OldIndex}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.ChildMovedFromOtherContainment{Base: v.base, NewParent: newParent, NewContainment: f,
		NewIndex: e.NewIndex, MovedChild: moved, OldParent: oldParent, OldContainment: oldF, OldIndex: e.OldIndex}, nil
}

func (v *inboundMapper) ChildMovedFromOtherContainmentInSameParent(e *delta.ChildMovedFromOtherContainmentInSameParent) (model.Notification, error) {
	parent, f, err := v.containment(e.Parent, e.NewContainment)
	if err != nil {
		return nil, err
	}
	oldF, err := v.m.feature(parent, e.OldContainment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	moved, err := v.child(parent, oldF, e.OldIndex, e.MovedChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildMovedFromOtherContainmentInSameParent{Base: v.base, Parent: parent, NewContainment: f,
		NewIndex: e.NewIndex, MovedChild: moved, OldContainment: oldF, OldIndex: e.OldIndex}, nil
}

func (v *inboundMapper) ChildMovedInSameContainment(e *delta.ChildMovedInSameContainment) (model.Notification, error) {
	parent, f, err := v.containment(e.Parent, e.Containment)
	if err != nil {
		return nil, err
	}
	moved, err := v.child(parent, f, e.OldIndex, e.MovedChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildMovedInSameContainment{Base: v.base, Parent: parent, Containment: f,
		NewIndex: e.NewIndex, MovedChild: moved, OldIndex: e.OldIndex}, nil
}

func (v *inboundMapper) ChildMovedAndReplacedFromOtherContainment(e *delta.ChildMovedAndReplacedFromOtherContainment) (model.Notification, error) {
	oldParent, oldF, err := v.containment(e.OldParent, e.OldContainment)
	if err != nil {
		return nil, err
	}
	moved, err := v.child(oldParent, oldF, e.OldIndex, e.MovedChild)
	if err != nil {
		return nil, err
	}
	newParent, f, err := v.containment(e.NewParent, e.NewContainment)
	if errors.Is(err, ErrUnknownNode) {
		return &model.ChildDeleted{Base: v.base, DeletedChild: moved, Parent: oldParent,
			Containment: oldF, Index: e.OldIndex}, nil
	}
	if err != nil {
		return nil, err
	}
	replaced, err := v.child(newParent, f, e.NewIndex, e.ReplacedChild)
	if err != nil {
		return nil, err
	}
	return &model.ChildMovedAndReplacedFromOtherContainment{Base: v.base, NewParent: newParent,
		NewContainment: f, NewIndex: e.NewIndex, MovedChild: moved, OldParent: oldParent,
		OldContainment: oldF, OldIndex: e.OldIndex, ReplacedChild: replaced}, nil
}

func (v *inboundMapper) AnnotationAdded(e *delta.AnnotationAdded) (model.Notification, error) {
	parent, err := v.m.node(e.Parent)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(e.Index, len(parent.Annotations()), "annotations of "+string(parent.Id())); err != nil {
		return nil, err
	}
	ann, err := v.m.single(&e.NewAnnotation)
	if err != nil {
		return nil, err
	}
	return &model.AnnotationAdded{Base: v.base, Parent: parent, NewAnnotation: ann, Index: e.Index}, nil
}

func (v *inboundMapper) annotation(parentId model.NodeId, index int, id model.NodeId) (*model.Node, *model.Node, error) {
	parent, err := v.m.node(parentId)
	if err != nil {
		return nil, nil, err
	}
	ann, err := occupant(parent.Annotations(), index, id, "annotations of "+string(parentId))
	if err != nil {
		return nil, nil, err
	}
	return parent, ann, nil
}

func (v *inboundMapper) AnnotationDeleted(e *delta.AnnotationDeleted) (model.Notification, error) {
	parent, ann, err := v.annotation(e.Parent, e.Index, e.DeletedAnnotation)
	if err != nil {
		return nil, err
	}
	return &model.AnnotationDeleted{Base: v.base, DeletedAnnotation: ann, Parent: parent, Index: e.Index}, nil
}

func (v *inboundMapper) AnnotationMovedFromOtherParent(e *delta.AnnotationMovedFromOtherParent) (model.Notification, error) {
	oldParent, ann, err := v.annotation(e.OldParent, e.OldIndex, e.MovedAnnotation)
	if err != nil {
		return nil, err
	}
	newParent, err := v.m.node(e.NewParent)
	if errors.Is(err, ErrUnknownNode) {
		return &model.AnnotationDeleted{Base: v.base, DeletedAnnotation: ann, Parent: oldParent, Index: e.OldIndex}, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.AnnotationMovedFromOtherParent{Base: v.base, NewParent: newParent, NewIndex: e.NewIndex,
		MovedAnnotation: ann, OldParent: oldParent, OldIndex: e.OldIndex}, nil
}

func (v *inboundMapper) AnnotationMovedInSameParent(e *delta.AnnotationMovedInSameParent) (model.Notification, error) {
	parent, ann, err := v.annotation(e.Parent, e.OldIndex, e.MovedAnnotation)
	if err != nil {
		return nil, err
	}
	return &model.AnnotationMovedInSameParent{Base: v.base, Parent: parent, NewIndex: e.NewIndex,
		MovedAnnotation: ann, OldIndex: e.OldIndex}, nil
}

func (v *inboundMapper) ReferenceAdded(e *delta.ReferenceAdded) (model.Notification, error) {
	parent, f, err := v.reference(e.Parent, e.Reference)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(e.Index, len(parent.References(f)), string(parent.Id())+"."+f.Name); err != nil {
		return nil, err
	}
	return &model.ReferenceAdded{Base: v.base, Parent: parent, Reference: f, Index: e.Index,
		NewTarget: v.m.target(e.NewTarget)}, nil
}

func (v *inboundMapper) existing(id model.NodeId, mp model.MetaPointer, index int) (*model.Node, *model.Feature, model.ReferenceTarget, error) {
	parent, f, err := v.reference(id, mp)
	if err != nil {
		return nil, nil, model.ReferenceTarget{}, err
	}
	list := parent.References(f)
	if index < 0 || index >= len(list) {
		return nil, nil, model.ReferenceTarget{}, errors.Wrapf(model.ErrInvalidIndex, "%d of %s.%s", index, id, f.Name)
	}
	return parent, f, list[index], nil
}

func (v *inboundMapper) ReferenceDeleted(e *delta.ReferenceDeleted) (model.Notification, error) {
	parent, f, old, err := v.existing(e.Parent, e.Reference, e.Index)
	if err != nil {
		return nil, err
	}
	return &model.ReferenceDeleted{Base: v.base, Parent: parent, Reference: f, Index: e.Index, DeletedTarget: old}, nil
}

func (v *inboundMapper) ReferenceChanged(e *delta.ReferenceChanged) (model.Notification, error) {
	parent, f, old, err := v.existing(e.Parent, e.Reference, e.Index)
	if err != nil {
		return nil, err
	}
	return &model.ReferenceChanged{Base: v.base, Parent: parent, Reference: f, Index: e.Index,
		NewTarget: v.m.target(e.NewTarget), OldTarget: old}, nil
}
