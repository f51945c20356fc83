package replicator

import (
	"fmt"
	"strings"

	"github.com/drpcorg/lwdelta/model"
)

// applier performs the mutation a notification describes. Doing so makes
// the tree raise an equivalent notification of its own.
type applier struct {
	forest *model.Forest
}

// Apply runs the mutation described by n against forest.
func Apply(forest *model.Forest, n model.Notification) error {
	_, err := model.VisitNotification[struct{}](n, applier{forest: forest})
	return err
}

type none = struct{}

func (a applier) PartitionAdded(n *model.PartitionAdded) (none, error) {
	return none{}, a.forest.AddPartition(n.NewPartition)
}

func (a applier) PartitionDeleted(n *model.PartitionDeleted) (none, error) {
	return none{}, a.forest.DeletePartition(n.DeletedPartition)
}

func (applier) PropertyAdded(n *model.PropertyAdded) (none, error) {
	return none{}, n.Node.SetProperty(n.Property, n.NewValue)
}

func (applier) PropertyDeleted(n *model.PropertyDeleted) (none, error) {
	return none{}, n.Node.SetProperty(n.Property, nil)
}

func (applier) PropertyChanged(n *model.PropertyChanged) (none, error) {
	return none{}, n.Node.SetProperty(n.Property, n.NewValue)
}

func (applier) ChildAdded(n *model.ChildAdded) (none, error) {
	return none{}, n.Parent.InsertChild(n.Containment, n.Index, n.NewChild)
}

func (applier) ChildDeleted(n *model.ChildDeleted) (none, error) {
	return none{}, n.Parent.RemoveChild(n.DeletedChild)
}

func (applier) ChildReplaced(n *model.ChildReplaced) (none, error) {
	return none{}, n.Parent.ReplaceChild(n.Containment, n.Index, n.NewChild)
}

func (applier) ChildMovedFromOtherContainment(n *model.ChildMovedFromOtherContainment) (none, error) {
	return none{}, n.NewParent.InsertChild(n.NewContainment, n.NewIndex, n.MovedChild)
}

func (applier) ChildMovedFromOtherContainmentInSameParent(n *model.ChildMovedFromOtherContainmentInSameParent) (none, error) {
	return none{}, n.Parent.InsertChild(n.NewContainment, n.NewIndex, n.MovedChild)
}

func (applier) ChildMovedInSameContainment(n *model.ChildMovedInSameContainment) (none, error) {
	return none{}, n.Parent.InsertChild(n.Containment, n.NewIndex, n.MovedChild)
}

func (applier) ChildMovedAndReplacedFromOtherContainment(n *model.ChildMovedAndReplacedFromOtherContainment) (none, error) {
	return none{}, n.NewParent.ReplaceChild(n.NewContainment, n.NewIndex, n.MovedChild)
}

func (applier) AnnotationAdded(n *model.AnnotationAdded) (none, error) {
	return none{}, n.Parent.InsertAnnotation(n.Index, n.NewAnnotation)
}

func (applier) AnnotationDeleted(n *model.AnnotationDeleted) (none, error) {
	return none{}, n.Parent.RemoveAnnotation(n.DeletedAnnotation)
}

func (applier) AnnotationMovedFromOtherParent(n *model.AnnotationMovedFromOtherParent) (none, error) {
	return none{}, n.NewParent.InsertAnnotation(n.NewIndex, n.MovedAnnotation)
}

func (applier) AnnotationMovedInSameParent(n *model.AnnotationMovedInSameParent) (none, error) {
	return none{}, n.Parent.InsertAnnotation(n.NewIndex, n.MovedAnnotation)
}

func (applier) ReferenceAdded(n *model.ReferenceAdded) (none, error) {
	return none{}, n.Parent.InsertReference(n.Reference, n.Index, n.NewTarget)
}

func (applier) ReferenceDeleted(n *model.ReferenceDeleted) (none, error) {
	return none{}, n.Parent.RemoveReference(n.Reference, n.Index)
}

func (applier) ReferenceChanged(n *model.ReferenceChanged) (none, error) {
	return none{}, n.Parent.SetReference(n.Reference, n.Index, n.NewTarget)
}

func kindOf(n model.Notification) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", n), "*model.")
}

// added lists the subtrees a notification brings into its partition,
// removed the ones it takes out.
func added(n model.Notification) []*model.Node {
	switch n := n.(type) {
	case *model.PartitionAdded:
		return []*model.Node{n.NewPartition}
	case *model.ChildAdded:
		return []*model.Node{n.NewChild}
	case *model.ChildReplaced:
		return []*model.Node{n.NewChild}
	case *model.AnnotationAdded:
		return []*model.Node{n.NewAnnotation}
	case *model.ChildMovedFromOtherContainment:
		return []*model.Node{n.MovedChild}
	case *model.ChildMovedAndReplacedFromOtherContainment:
		return []*model.Node{n.MovedChild}
	case *model.AnnotationMovedFromOtherParent:
		return []*model.Node{n.MovedAnnotation}
	}
	return nil
}

func removed(n model.Notification) []*model.Node {
	switch n := n.(type) {
	case *model.PartitionDeleted:
		return []*model.Node{n.DeletedPartition}
	case *model.ChildDeleted:
		return []*model.Node{n.DeletedChild}
	case *model.ChildReplaced:
		return []*model.Node{n.ReplacedChild}
	case *model.ChildMovedAndReplacedFromOtherContainment:
		return []*model.Node{n.ReplacedChild}
	case *model.AnnotationDeleted:
		return []*model.Node{n.DeletedAnnotation}
	}
	return nil
}
