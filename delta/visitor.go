package delta

import (
	"github.com/pkg/errors"
)

// CommandVisitor has one method per command kind; a new kind does not
// compile until every visitor handles it.
type CommandVisitor[R any] interface {
	AddPartition(c *AddPartition) (R, error)
	DeletePartition(c *DeletePartition) (R, error)
	AddProperty(c *AddProperty) (R, error)
	DeleteProperty(c *DeleteProperty) (R, error)
	ChangeProperty(c *ChangeProperty) (R, error)
	AddChild(c *AddChild) (R, error)
	DeleteChild(c *DeleteChild) (R, error)
	ReplaceChild(c *ReplaceChild) (R, error)
	MoveChildFromOtherContainment(c *MoveChildFromOtherContainment) (R, error)
	MoveChildFromOtherContainmentInSameParent(c *MoveChildFromOtherContainmentInSameParent) (R, error)
	MoveChildInSameContainment(c *MoveChildInSameContainment) (R, error)
	MoveAndReplaceChildFromOtherContainment(c *MoveAndReplaceChildFromOtherContainment) (R, error)
	AddAnnotation(c *AddAnnotation) (R, error)
	DeleteAnnotation(c *DeleteAnnotation) (R, error)
	MoveAnnotationFromOtherParent(c *MoveAnnotationFromOtherParent) (R, error)
	MoveAnnotationInSameParent(c *MoveAnnotationInSameParent) (R, error)
	AddReference(c *AddReference) (R, error)
	DeleteReference(c *DeleteReference) (R, error)
	ChangeReference(c *ChangeReference) (R, error)
}

func VisitCommand[R any](c Command, v CommandVisitor[R]) (R, error) {
	switch c := c.(type) {
	case *AddPartition:
		return v.AddPartition(c)
	case *DeletePartition:
		return v.DeletePartition(c)
	case *AddProperty:
		return v.AddProperty(c)
	case *DeleteProperty:
		return v.DeleteProperty(c)
	case *ChangeProperty:
		return v.ChangeProperty(c)
	case *AddChild:
		return v.AddChild(c)
	case *DeleteChild:
		return v.DeleteChild(c)
	case *ReplaceChild:
		return v.ReplaceChild(c)
	case *MoveChildFromOtherContainment:
		return v.MoveChildFromOtherContainment(c)
	case *MoveChildFromOtherContainmentInSameParent:
		return v.MoveChildFromOtherContainmentInSameParent(c)
	case *MoveChildInSameContainment:
		return v.MoveChildInSameContainment(c)
	case *MoveAndReplaceChildFromOtherContainment:
		return v.MoveAndReplaceChildFromOtherContainment(c)
	case *AddAnnotation:
		return v.AddAnnotation(c)
	case *DeleteAnnotation:
		return v.DeleteAnnotation(c)
	case *MoveAnnotationFromOtherParent:
		return v.MoveAnnotationFromOtherParent(c)
	case *MoveAnnotationInSameParent:
		return v.MoveAnnotationInSameParent(c)
	case *AddReference:
		return v.AddReference(c)
	case *DeleteReference:
		return v.DeleteReference(c)
	case *ChangeReference:
		return v.ChangeReference(c)
	}
	var zero R
	return zero, errors.Wrapf(ErrUnsupportedOperation, "command %T", c)
}

type EventVisitor[R any] interface {
	PartitionAdded(e *PartitionAdded) (R, error)
	PartitionDeleted(e *PartitionDeleted) (R, error)
	PropertyAdded(e *PropertyAdded) (R, error)
	PropertyDeleted(e *PropertyDeleted) (R, error)
	PropertyChanged(e *PropertyChanged) (R, error)
	ChildAdded(e *ChildAdded) (R, error)
	ChildDeleted(e *ChildDeleted) (R, error)
	ChildReplaced(e *ChildReplaced) (R, error)
	ChildMovedFromOtherContainment(e *ChildMovedFromOtherContainment) (R, error)
	ChildMovedFromOtherContainmentInSameParent(e *ChildMovedFromOtherContainmentInSameParent) (R, error)
	ChildMovedInSameContainment(e *ChildMovedInSameContainment) (R, error)
	ChildMovedAndReplacedFromOtherContainment(e *ChildMovedAndReplacedFromOtherContainment) (R, error)
	AnnotationAdded(e *AnnotationAdded) (R, error)
	AnnotationDeleted(e *AnnotationDeleted) (R, error)
	AnnotationMovedFromOtherParent(e *AnnotationMovedFromOtherParent) (R, error)
	AnnotationMovedInSameParent(e *AnnotationMovedInSameParent) (R, error)
	ReferenceAdded(e *ReferenceAdded) (R, error)
	ReferenceDeleted(e *ReferenceDeleted) (R, error)
	ReferenceChanged(e *ReferenceChanged) (R, error)
}

// VisitEvent dispatches change events; ErrorEvent is not a change and is
// rejected like an unknown kind.
func VisitEvent[R any](e Event, v EventVisitor[R]) (R, error) {
	switch e := e.(type) {
	case *PartitionAdded:
		return v.PartitionAdded(e)
	case *PartitionDeleted:
		return v.PartitionDeleted(e)
	case *PropertyAdded:
		return v.PropertyAdded(e)
	case *PropertyDeleted:
		return v.PropertyDeleted(e)
	case *PropertyChanged:
		return v.PropertyChanged(e)
	case *ChildAdded:
		return v.ChildAdded(e)
	case *ChildDeleted:
		return v.ChildDeleted(e)
	case *ChildReplaced:
		return v.ChildReplaced(e)
	case *ChildMovedFromOtherContainment:
		return v.ChildMovedFromOtherContainment(e)
	case *ChildMovedFromOtherContainmentInSameParent:
		return v.ChildMovedFromOtherContainmentInSameParent(e)
	case *ChildMovedInSameContainment:
		return v.ChildMovedInSameContainment(e)
	case *ChildMovedAndReplacedFromOtherContainment:
		return v.ChildMovedAndReplacedFromOtherContainment(e)
	case *AnnotationAdded:
		return v.AnnotationAdded(e)
	case *AnnotationDeleted:
		return v.AnnotationDeleted(e)
	case *AnnotationMovedFromOtherParent:
		return v.AnnotationMovedFromOtherParent(e)
	case *AnnotationMovedInSameParent:
		return v.AnnotationMovedInSameParent(e)
	case *ReferenceAdded:
		return v.ReferenceAdded(e)
	case *ReferenceDeleted:
		return v.ReferenceDeleted(e)
	case *ReferenceChanged:
		return v.ReferenceChanged(e)
	}
	var zero R
	return zero, errors.Wrapf(ErrUnsupportedOperation, "event %T", e)
}
