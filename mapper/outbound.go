package mapper

import (
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/serialization"
)

// NotificationToCommand turns a local edit of a client replica into the
// command that asks the repository to make the same edit.
func (m *Mapper) NotificationToCommand(n model.Notification, commandId string) (delta.Command, error) {
	return model.VisitNotification[delta.Command](n, &outboundMapper{m: m,
		base: delta.CommandBase{CommandId: commandId, ParticipationId: m.Participation}})
}

type outboundMapper struct {
	m    *Mapper
	base delta.CommandBase
}

func (v *outboundMapper) chunk(root *model.Node) (serialization.Chunk, error) {
	return serialization.Serialize(root, v.m.Converter)
}

func (v *outboundMapper) PartitionAdded(n *model.PartitionAdded) (delta.Command, error) {
	c, err := v.chunk(n.NewPartition)
	if err != nil {
		return nil, err
	}
	return &delta.AddPartition{CommandBase: v.base, NewPartition: c}, nil
}

func (v *outboundMapper) PartitionDeleted(n *model.PartitionDeleted) (delta.Command, error) {
	return &delta.DeletePartition{CommandBase: v.base, DeletedPartition: n.DeletedPartition.Id()}, nil
}

func (v *outboundMapper) PropertyAdded(n *model.PropertyAdded) (delta.Command, error) {
	val, err := v.m.Converter.ToWire(n.Property, n.NewValue)
	if err != nil {
		return nil, err
	}
	return &delta.AddProperty{CommandBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta, NewValue: val}, nil
}

func (v *outboundMapper) PropertyDeleted(n *model.PropertyDeleted) (delta.Command, error) {
	return &delta.DeleteProperty{CommandBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta}, nil
}

func (v *outboundMapper) PropertyChanged(n *model.PropertyChanged) (delta.Command, error) {
	val, err := v.m.Converter.ToWire(n.Property, n.NewValue)
	if err != nil {
		return nil, err
	}
	return &delta.ChangeProperty{CommandBase: v.base, Node: n.Node.Id(), Property: n.Property.Meta, NewValue: val}, nil
}

func (v *outboundMapper) ChildAdded(n *model.ChildAdded) (delta.Command, error) {
	c, err := v.chunk(n.NewChild)
	if err != nil {
		return nil, err
	}
	return &delta.AddChild{CommandBase: v.base, Parent: n.Parent.Id(), NewChild: c,
		Containment: n.Containment.Meta, Index: n.Index}, nil
}

func (v *outboundMapper) ChildDeleted(n *model.ChildDeleted) (delta.Command, error) {
	return &delta.DeleteChild{CommandBase: v.base, Parent: n.Parent.Id(), Containment: n.Containment.Meta,
		Index: n.Index, DeletedChild: n.DeletedChild.Id()}, nil
}

func (v *outboundMapper) ChildReplaced(n *model.ChildReplaced) (delta.Command, error) {
	c, err := v.chunk(n.NewChild)
	if err != nil {
		return nil, err
	}
	return &delta.ReplaceChild{CommandBase: v.base, NewChild: c, Parent: n.Parent.Id(),
		Containment: n.Containment.Meta, Index: n.Index, ReplacedChild: n.ReplacedChild.Id()}, nil
}

func (v *outboundMapper) ChildMovedFromOtherContainment(n *model.ChildMovedFromOtherContainment) (delta.Command, error) {
	return &delta.MoveChildFromOtherContainment{CommandBase: v.base, NewParent: n.NewParent.Id(),
		NewContainment: n.NewContainment.Meta, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id()}, nil
}

func (v *outboundMapper) ChildMovedFromOtherContainmentInSameParent(n *model.ChildMovedFromOtherContainmentInSameParent) (delta.Command, error) {
	return &delta.MoveChildFromOtherContainmentInSameParent{CommandBase: v.base, NewContainment: n.NewContainment.Meta,
		NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id(), Parent: n.Parent.Id()}, nil
}

func (v *outboundMapper) ChildMovedInSameContainment(n *model.ChildMovedInSameContainment) (delta.Command, error) {
	return &delta.MoveChildInSameContainment{CommandBase: v.base, NewIndex: n.NewIndex, MovedChild: n.MovedChild.Id()}, nil
}

func (v *outboundMapper) ChildMovedAndReplacedFromOtherContainment(n *model.ChildMovedAndReplacedFromOtherContainment) (delta.Command, error) {
	return &delta.MoveAndReplaceChildFromOtherContainment{CommandBase: v.base, NewParent: n.NewParent.Id(),
		NewContainment: n.NewContainment.Meta, NewIndex: n.NewIndex, ReplacedChild: n.ReplacedChild.Id(),
		MovedChild: n.MovedChild.Id()}, nil
}

func (v *outboundMapper) AnnotationAdded(n *model.AnnotationAdded) (delta.Command, error) {
	c, err := v.chunk(n.NewAnnotation)
	if err != nil {
		return nil, err
	}
	return &delta.AddAnnotation{CommandBase: v.base, Parent: n.Parent.Id(), NewAnnotation: c, Index: n.Index}, nil
}

func (v *outboundMapper) AnnotationDeleted(n *model.AnnotationDeleted) (delta.Command, error) {
	return &delta.DeleteAnnotation{CommandBase: v.base, Parent: n.Parent.Id(), Index: n.Index,
		DeletedAnnotation: n.DeletedAnnotation.Id()}, nil
}

func (v *outboundMapper) AnnotationMovedFromOtherParent(n *model.AnnotationMovedFromOtherParent) (delta.Command, error) {
	return &delta.MoveAnnotationFromOtherParent{CommandBase: v.base, NewParent: n.NewParent.Id(),
		NewIndex: n.NewIndex, MovedAnnotation: n.MovedAnnotation.Id()}, nil
}

func (v *outboundMapper) AnnotationMovedInSameParent(n *model.AnnotationMovedInSameParent) (delta.Command, error) {
	return &delta.MoveAnnotationInSameParent{CommandBase: v.base, NewIndex: n.NewIndex,
		MovedAnnotation: n.MovedAnnotation.Id()}, nil
}

func (v *outboundMapper) ReferenceAdded(n *model.ReferenceAdded) (delta.Command, error) {
	return &delta.AddReference{CommandBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index, NewTarget: serialization.TargetToWire(n.NewTarget)}, nil
}

func (v *outboundMapper) ReferenceDeleted(n *model.ReferenceDeleted) (delta.Command, error) {
	return &delta.DeleteReference{CommandBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index}, nil
}

func (v *outboundMapper) ReferenceChanged(n *model.ReferenceChanged) (delta.Command, error) {
	return &delta.ChangeReference{CommandBase: v.base, Parent: n.Parent.Id(), Reference: n.Reference.Meta,
		Index: n.Index, NewTarget: serialization.TargetToWire(n.NewTarget)}, nil
}
