package mapper

import (
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/pkg/errors"
)

// CommandToNotification maps a partition-scope command into the
// notification that applying it will raise. Nothing is mutated except that
// payload subtrees get registered; Discard undoes that.
func (m *Mapper) CommandToNotification(c delta.Command) (model.Notification, error) {
	if delta.IsForestCommand(c) {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s is not partition scoped", c.Kind())
	}
	return delta.VisitCommand[model.Notification](c, &commandMapper{m: m, base: baseOf(c)})
}

// ForestCommandToNotification maps AddPartition and DeletePartition.
func (m *Mapper) ForestCommandToNotification(c delta.Command) (model.Notification, error) {
	if !delta.IsForestCommand(c) {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s is not forest scoped", c.Kind())
	}
	return delta.VisitCommand[model.Notification](c, &commandMapper{m: m, base: baseOf(c)})
}

func baseOf(c delta.Command) model.Base {
	return model.Base{Id: model.NewNotificationId(), Origin: []model.CommandSource{c.Source()}}
}

type commandMapper struct {
	m    *Mapper
	base model.Base
}

func (v *commandMapper) AddPartition(c *delta.AddPartition) (model.Notification, error) {
	p, err := v.m.single(&c.NewPartition)
	if err != nil {
		return nil, err
	}
	if !p.Classifier().Partition {
		v.m.deser.Forget(p)
		return nil, errors.Wrapf(model.ErrNotPartition, "%s", p.Id())
	}
	return &model.PartitionAdded{Base: v.base, NewPartition: p}, nil
}

func (v *commandMapper) DeletePartition(c *delta.DeletePartition) (model.Notification, error) {
	p, ok := v.m.Forest.Partition(c.DeletedPartition)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownPartition, "%q", c.DeletedPartition)
	}
	return &model.PartitionDeleted{Base: v.base, DeletedPartition: p}, nil
}

func (v *commandMapper) AddProperty(c *delta.AddProperty) (model.Notification, error) {
	n, err := v.m.node(c.Node)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(n, c.Property, model.PropertyKind)
	if err != nil {
		return nil, err
	}
	if _, set := n.Property(f); set {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s.%s is already set", n.Id(), f.Name)
	}
	val, err := v.m.value(f, c.NewValue)
	if err != nil {
		return nil, err
	}
	return &model.PropertyAdded{Base: v.base, Node: n, Property: f, NewValue: val}, nil
}

func (v *commandMapper) DeleteProperty(c *delta.DeleteProperty) (model.Notification, error) {
	n, err := v.m.node(c.Node)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(n, c.Property, model.PropertyKind)
	if err != nil {
		return nil, err
	}
	old, err := n.Get(f)
	if err != nil {
		return nil, err
	}
	return &model.PropertyDeleted{Base: v.base, Node: n, Property: f, OldValue: old}, nil
}

func (v *commandMapper) ChangeProperty(c *delta.ChangeProperty) (model.Notification, error) {
	n, err := v.m.node(c.Node)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(n, c.Property, model.PropertyKind)
	if err != nil {
		return nil, err
	}
	old, err := n.Get(f)
	if err != nil {
		return nil, err
	}
	val, err := v.m.value(f, c.NewValue)
	if err != nil {
		return nil, err
	}
	return &model.PropertyChanged{Base: v.base, Node: n, Property: f, NewValue: val, OldValue: old}, nil
}

// insertable validates a fresh child position in a containment.
func insertable(parent *model.Node, f *model.Feature, index int) error {
	list := parent.Children(f)
	if err := checkIndex(index, len(list), string(parent.Id())+"."+f.Name); err != nil {
		return err
	}
	if !f.Multiple && len(list) > 0 {
		return errors.Wrapf(model.ErrInvalidValue, "%s.%s is already set", parent.Id(), f.Name)
	}
	return nil
}

func plainChild(n *model.Node) error {
	if n.Classifier().Partition || n.Classifier().Annotation {
		return errors.Wrapf(model.ErrInvalidValue, "%s can not be a child", n.Id())
	}
	return nil
}

func (v *commandMapper) AddChild(c *delta.AddChild) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(parent, c.Containment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	if err := insertable(parent, f, c.Index); err != nil {
		return nil, err
	}
	child, err := v.m.single(&c.NewChild)
	if err != nil {
		return nil, err
	}
	if err := plainChild(child); err != nil {
		v.m.deser.Forget(child)
		return nil, err
	}
	return &model.ChildAdded{Base: v.base, Parent: parent, NewChild: child, Containment: f, Index: c.Index}, nil
}

func (v *commandMapper) DeleteChild(c *delta.DeleteChild) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(parent, c.Containment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	child, err := occupant(parent.Children(f), c.Index, c.DeletedChild, string(parent.Id())+"."+f.Name)
	if err != nil {
		return nil, err
	}
	return &model.ChildDeleted{Base: v.base, DeletedChild: child, Parent: parent, Containment: f, Index: c.Index}, nil
}

func (v *commandMapper) ReplaceChild(c *delta.ReplaceChild) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(parent, c.Containment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	replaced, err := occupant(parent.Children(f), c.Index, c.ReplacedChild, string(parent.Id())+"."+f.Name)
	if err != nil {
		return nil, err
	}
	child, err := v.m.single(&c.NewChild)
	if err != nil {
		return nil, err
	}
	if err := plainChild(child); err != nil {
		v.m.deser.Forget(child)
		return nil, err
	}
	return &model.ChildReplaced{Base: v.base, NewChild: child, ReplacedChild: replaced,
		Parent: parent, Containment: f, Index: c.Index}, nil
}

// movable resolves a child that is to leave its current containment for
// (newParent, f) and reports where it sits now.
func (v *commandMapper) movable(id model.NodeId, newParent *model.Node) (*model.Node, *model.Node, *model.Feature, int, error) {
	moved, err := v.m.node(id)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	oldParent := moved.Parent()
	if oldParent == nil || moved.IsAnnotation() {
		return nil, nil, nil, 0, errors.Wrapf(model.ErrNotContained, "%s is not a child", id)
	}
	if ancestorOrSelf(moved, newParent) {
		return nil, nil, nil, 0, errors.Wrapf(model.ErrCycle, "%s into %s", id, newParent.Id())
	}
	oldContainment := oldParent.ContainmentOf(moved)
	oldIndex := model.IndexOf(oldParent.Children(oldContainment), moved)
	return moved, oldParent, oldContainment, oldIndex, nil
}

func (v *commandMapper) MoveChildFromOtherContainment(c *delta.MoveChildFromOtherContainment) (model.Notification, error) {
	newParent, err := v.m.node(c.NewParent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(newParent, c.NewContainment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	moved, oldParent, oldF, oldIndex, err := v.movable(c.MovedChild, newParent)
	if err != nil {
		return nil, err
	}
	if oldParent == newParent {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s already is a child of %s", moved.Id(), newParent.Id())
	}
	if err := insertable(newParent, f, c.NewIndex); err != nil {
		return nil, err
	}
	return &model.ChildMovedFromOtherContainment{Base: v.base, NewParent: newParent, NewContainment: f,
		NewIndex: c.NewIndex, MovedChild: moved, OldParent: oldParent, OldContainment: oldF, OldIndex: oldIndex}, nil
}

func (v *commandMapper) MoveChildFromOtherContainmentInSameParent(c *delta.MoveChildFromOtherContainmentInSameParent) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(parent, c.NewContainment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	moved, oldParent, oldF, oldIndex, err := v.movable(c.MovedChild, parent)
	if err != nil {
		return nil, err
	}
	if oldParent != parent || oldF == f {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s is not in another containment of %s", moved.Id(), parent.Id())
	}
	if err := insertable(parent, f, c.NewIndex); err != nil {
		return nil, err
	}
	return &model.ChildMovedFromOtherContainmentInSameParent{Base: v.base, Parent: parent, NewContainment: f,
		NewIndex: c.NewIndex, MovedChild: moved, OldContainment: oldF, OldIndex: oldIndex}, nil
}

func (v *commandMapper) MoveChildInSameContainment(c *delta.MoveChildInSameContainment) (model.Notification, error) {
	moved, err := v.m.node(c.MovedChild)
	if err != nil {
		return nil, err
	}
	parent := moved.Parent()
	if parent == nil || moved.IsAnnotation() {
		return nil, errors.Wrapf(model.ErrNotContained, "%s is not a child", moved.Id())
	}
	f := parent.ContainmentOf(moved)
	list := parent.Children(f)
	if err := checkIndex(c.NewIndex, len(list)-1, string(parent.Id())+"."+f.Name); err != nil {
		return nil, err
	}
	return &model.ChildMovedInSameContainment{Base: v.base, Parent: parent, Containment: f,
		NewIndex: c.NewIndex, MovedChild: moved, OldIndex: model.IndexOf(list, moved)}, nil
}

func (v *commandMapper) MoveAndReplaceChildFromOtherContainment(c *delta.MoveAndReplaceChildFromOtherContainment) (model.Notification, error) {
	newParent, err := v.m.node(c.NewParent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(newParent, c.NewContainment, model.ContainmentKind)
	if err != nil {
		return nil, err
	}
	replaced, err := occupant(newParent.Children(f), c.NewIndex, c.ReplacedChild, string(newParent.Id())+"."+f.Name)
	if err != nil {
		return nil, err
	}
	moved, oldParent, oldF, oldIndex, err := v.movable(c.MovedChild, newParent)
	if err != nil {
		return nil, err
	}
	if oldParent == newParent && oldF == f {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s already in %s.%s", moved.Id(), newParent.Id(), f.Name)
	}
	return &model.ChildMovedAndReplacedFromOtherContainment{Base: v.base, NewParent: newParent,
		NewContainment: f, NewIndex: c.NewIndex, MovedChild: moved, OldParent: oldParent,
		OldContainment: oldF, OldIndex: oldIndex, ReplacedChild: replaced}, nil
}

func (v *commandMapper) AddAnnotation(c *delta.AddAnnotation) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	if err := checkIndex(c.Index, len(parent.Annotations()), "annotations of "+string(parent.Id())); err != nil {
		return nil, err
	}
	ann, err := v.m.single(&c.NewAnnotation)
	if err != nil {
		return nil, err
	}
	if !ann.Classifier().Annotation {
		v.m.deser.Forget(ann)
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s is not an annotation", ann.Id())
	}
	return &model.AnnotationAdded{Base: v.base, Parent: parent, NewAnnotation: ann, Index: c.Index}, nil
}

func (v *commandMapper) DeleteAnnotation(c *delta.DeleteAnnotation) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	ann, err := occupant(parent.Annotations(), c.Index, c.DeletedAnnotation, "annotations of "+string(parent.Id()))
	if err != nil {
		return nil, err
	}
	return &model.AnnotationDeleted{Base: v.base, DeletedAnnotation: ann, Parent: parent, Index: c.Index}, nil
}

func (v *commandMapper) annotation(id model.NodeId) (*model.Node, error) {
	ann, err := v.m.node(id)
	if err != nil {
		return nil, err
	}
	if !ann.IsAnnotation() {
		return nil, errors.Wrapf(model.ErrNotContained, "%s is not an attached annotation", id)
	}
	return ann, nil
}

func (v *commandMapper) MoveAnnotationFromOtherParent(c *delta.MoveAnnotationFromOtherParent) (model.Notification, error) {
	newParent, err := v.m.node(c.NewParent)
	if err != nil {
		return nil, err
	}
	ann, err := v.annotation(c.MovedAnnotation)
	if err != nil {
		return nil, err
	}
	oldParent := ann.Parent()
	if oldParent == newParent {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s already annotates %s", ann.Id(), newParent.Id())
	}
	if ancestorOrSelf(ann, newParent) {
		return nil, errors.Wrapf(model.ErrCycle, "%s onto %s", ann.Id(), newParent.Id())
	}
	if err := checkIndex(c.NewIndex, len(newParent.Annotations()), "annotations of "+string(newParent.Id())); err != nil {
		return nil, err
	}
	return &model.AnnotationMovedFromOtherParent{Base: v.base, NewParent: newParent, NewIndex: c.NewIndex,
		MovedAnnotation: ann, OldParent: oldParent, OldIndex: model.IndexOf(oldParent.Annotations(), ann)}, nil
}

func (v *commandMapper) MoveAnnotationInSameParent(c *delta.MoveAnnotationInSameParent) (model.Notification, error) {
	ann, err := v.annotation(c.MovedAnnotation)
	if err != nil {
		return nil, err
	}
	parent := ann.Parent()
	list := parent.Annotations()
	if err := checkIndex(c.NewIndex, len(list)-1, "annotations of "+string(parent.Id())); err != nil {
		return nil, err
	}
	return &model.AnnotationMovedInSameParent{Base: v.base, Parent: parent, NewIndex: c.NewIndex,
		MovedAnnotation: ann, OldIndex: model.IndexOf(list, ann)}, nil
}

func (v *commandMapper) AddReference(c *delta.AddReference) (model.Notification, error) {
	parent, err := v.m.node(c.Parent)
	if err != nil {
		return nil, err
	}
	f, err := v.m.feature(parent, c.Reference, model.ReferenceKind)
	if err != nil {
		return nil, err
	}
	list := parent.References(f)
	if err := checkIndex(c.Index, len(list), string(parent.Id())+"."+f.Name); err != nil {
		return nil, err
	}
	if !f.Multiple && len(list) > 0 {
		return nil, errors.Wrapf(model.ErrInvalidValue, "%s.%s is already set", parent.Id(), f.Name)
	}
	return &model.ReferenceAdded{Base: v.base, Parent: parent, Reference: f, Index: c.Index,
		NewTarget: v.m.target(c.NewTarget)}, nil
}

func (v *commandMapper) existingReference(id model.NodeId, mp model.MetaPointer, index int) (*model.Node, *model.Feature, model.ReferenceTarget, error) {
	parent, err := v.m.node(id)
	if err != nil {
		return nil, nil, model.ReferenceTarget{}, err
	}
	f, err := v.m.feature(parent, mp, model.ReferenceKind)
	if err != nil {
		return nil, nil, model.ReferenceTarget{}, err
	}
	list := parent.References(f)
	if index < 0 || index >= len(list) {
		return nil, nil, model.ReferenceTarget{}, errors.Wrapf(model.ErrInvalidIndex, "%d of %s.%s", index, id, f.Name)
	}
	return parent, f, list[index], nil
}

func (v *commandMapper) DeleteReference(c *delta.DeleteReference) (model.Notification, error) {
	parent, f, old, err := v.existingReference(c.Parent, c.Reference, c.Index)
	if err != nil {
		return nil, err
	}
	return &model.ReferenceDeleted{Base: v.base, Parent: parent, Reference: f, Index: c.Index, DeletedTarget: old}, nil
}

func (v *commandMapper) ChangeReference(c *delta.ChangeReference) (model.Notification, error) {
	parent, f, old, err := v.existingReference(c.Parent, c.Reference, c.Index)
	if err != nil {
		return nil, err
	}
	return &model.ReferenceChanged{Base: v.base, Parent: parent, Reference: f, Index: c.Index,
		NewTarget: v.m.target(c.NewTarget), OldTarget: old}, nil
}
