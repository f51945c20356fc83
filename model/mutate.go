package model

import (
	"github.com/pkg/errors"
)

func normalizeValue(f *Feature, v any) (any, error) {
	switch f.DataType {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Integer:
		switch i := v.(type) {
		case int64:
			return i, nil
		case int:
			return int64(i), nil
		case int32:
			return int64(i), nil
		}
	case Boolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidValue, "%T for %s", v, f.Name)
}

// SetProperty sets, changes or (with nil) deletes a property value.
func (n *Node) SetProperty(f *Feature, v any) error {
	if err := n.checkFeature(f, PropertyKind); err != nil {
		return err
	}
	old, had := n.properties[f]
	if v == nil {
		if !had {
			return errors.Wrapf(ErrUnsetFeature, "%s.%s", n.id, f.Name)
		}
		delete(n.properties, f)
		n.emit(func(b Base) Notification {
			return &PropertyDeleted{Base: b, Node: n, Property: f, OldValue: old}
		})
		return nil
	}
	nv, err := normalizeValue(f, v)
	if err != nil {
		return err
	}
	n.properties[f] = nv
	if !had {
		n.emit(func(b Base) Notification {
			return &PropertyAdded{Base: b, Node: n, Property: f, NewValue: nv}
		})
	} else {
		n.emit(func(b Base) Notification {
			return &PropertyChanged{Base: b, Node: n, Property: f, NewValue: nv, OldValue: old}
		})
	}
	return nil
}

func (n *Node) checkAttachable(child *Node) error {
	if child == nil {
		return errors.Wrap(ErrInvalidValue, "nil node")
	}
	if child.classifier.Partition {
		return errors.Wrapf(ErrInvalidValue, "partition %s can not be contained", child.id)
	}
	if child.isAncestorOrSelf(n) {
		return errors.Wrapf(ErrCycle, "%s into %s", child.id, n.id)
	}
	return nil
}

// detach unlinks a node from wherever it is contained and reports where
// that was.
func (n *Node) detach() (parent *Node, containment *Feature, index int) {
	parent, containment = n.parent, n.containment
	if parent == nil {
		return nil, nil, -1
	}
	if containment != nil {
		index = IndexOf(parent.children[containment], n)
		parent.children[containment] = removeAt(parent.children[containment], index)
	} else {
		index = IndexOf(parent.annotations, n)
		parent.annotations = removeAt(parent.annotations, index)
	}
	n.parent, n.containment = nil, nil
	return
}

// InsertChild puts child into containment f at index. A child that already
// sits somewhere is moved; the notification raised tells which move it was.
func (n *Node) InsertChild(f *Feature, index int, child *Node) error {
	if err := n.checkFeature(f, ContainmentKind); err != nil {
		return err
	}
	if err := n.checkAttachable(child); err != nil {
		return err
	}
	if child.IsAnnotation() {
		return errors.Wrapf(ErrInvalidValue, "%s is an annotation", child.id)
	}
	list := n.children[f]
	sameList := child.parent == n && child.containment == f
	limit := len(list)
	if sameList {
		limit--
	}
	if index < 0 || index > limit {
		return errors.Wrapf(ErrInvalidIndex, "%d in %s.%s", index, n.id, f.Name)
	}
	if !f.Multiple && !sameList && len(list) > 0 {
		return errors.Wrapf(ErrInvalidValue, "%s.%s is already set", n.id, f.Name)
	}

	oldParent, oldContainment, oldIndex := child.detach()
	n.children[f] = insertAt(n.children[f], index, child)
	child.parent, child.containment = n, f

	switch {
	case oldParent == nil:
		n.emit(func(b Base) Notification {
			return &ChildAdded{Base: b, Parent: n, NewChild: child, Containment: f, Index: index}
		})
	case oldParent == n && oldContainment == f:
		n.emit(func(b Base) Notification {
			return &ChildMovedInSameContainment{Base: b, Parent: n, Containment: f,
				NewIndex: index, MovedChild: child, OldIndex: oldIndex}
		})
	case oldParent == n:
		n.emit(func(b Base) Notification {
			return &ChildMovedFromOtherContainmentInSameParent{Base: b, Parent: n,
				NewContainment: f, NewIndex: index, MovedChild: child,
				OldContainment: oldContainment, OldIndex: oldIndex}
		})
	default:
		n.emit(func(b Base) Notification {
			return &ChildMovedFromOtherContainment{Base: b, NewParent: n, NewContainment: f,
				NewIndex: index, MovedChild: child, OldParent: oldParent,
				OldContainment: oldContainment, OldIndex: oldIndex}
		})
	}
	return nil
}

// ReplaceChild puts child at index of f in place of the current occupant.
// A child that already sits elsewhere is moved.
func (n *Node) ReplaceChild(f *Feature, index int, child *Node) error {
	if err := n.checkFeature(f, ContainmentKind); err != nil {
		return err
	}
	if err := n.checkAttachable(child); err != nil {
		return err
	}
	list := n.children[f]
	if index < 0 || index >= len(list) {
		return errors.Wrapf(ErrInvalidIndex, "%d in %s.%s", index, n.id, f.Name)
	}
	replaced := list[index]
	if child == replaced || (child.parent == n && child.containment == f) {
		return errors.Wrapf(ErrInvalidValue, "%s already in %s.%s", child.id, n.id, f.Name)
	}
	if child.IsAnnotation() {
		return errors.Wrapf(ErrInvalidValue, "%s is an annotation", child.id)
	}

	oldParent, oldContainment, oldIndex := child.detach()
	n.children[f][index] = child
	child.parent, child.containment = n, f
	replaced.parent, replaced.containment = nil, nil

	if oldParent == nil {
		n.emit(func(b Base) Notification {
			return &ChildReplaced{Base: b, NewChild: child, ReplacedChild: replaced,
				Parent: n, Containment: f, Index: index}
		})
		return nil
	}
	n.emit(func(b Base) Notification {
		return &ChildMovedAndReplacedFromOtherContainment{Base: b, NewParent: n,
			NewContainment: f, NewIndex: index, MovedChild: child, OldParent: oldParent,
			OldContainment: oldContainment, OldIndex: oldIndex, ReplacedChild: replaced}
	})
	return nil
}

func (n *Node) RemoveChild(child *Node) error {
	if child == nil || child.parent != n || child.containment == nil {
		return errors.Wrapf(ErrNotContained, "child of %s", n.id)
	}
	_, f, index := child.detach()
	n.emit(func(b Base) Notification {
		return &ChildDeleted{Base: b, DeletedChild: child, Parent: n, Containment: f, Index: index}
	})
	return nil
}

// InsertAnnotation attaches ann at index, moving it if it is annotating
// another node already.
func (n *Node) InsertAnnotation(index int, ann *Node) error {
	if ann == nil || !ann.classifier.Annotation {
		return errors.Wrapf(ErrInvalidValue, "not an annotation")
	}
	if err := n.checkAttachable(ann); err != nil {
		return err
	}
	if ann.parent != nil && !ann.IsAnnotation() {
		return errors.Wrapf(ErrInvalidValue, "%s is a child, not an annotation", ann.id)
	}
	limit := len(n.annotations)
	if ann.parent == n {
		limit--
	}
	if index < 0 || index > limit {
		return errors.Wrapf(ErrInvalidIndex, "%d in annotations of %s", index, n.id)
	}

	oldParent, _, oldIndex := ann.detach()
	n.annotations = insertAt(n.annotations, index, ann)
	ann.parent = n

	switch oldParent {
	case nil:
		n.emit(func(b Base) Notification {
			return &AnnotationAdded{Base: b, Parent: n, NewAnnotation: ann, Index: index}
		})
	case n:
		n.emit(func(b Base) Notification {
			return &AnnotationMovedInSameParent{Base: b, Parent: n, NewIndex: index,
				MovedAnnotation: ann, OldIndex: oldIndex}
		})
	default:
		n.emit(func(b Base) Notification {
			return &AnnotationMovedFromOtherParent{Base: b, NewParent: n, NewIndex: index,
				MovedAnnotation: ann, OldParent: oldParent, OldIndex: oldIndex}
		})
	}
	return nil
}

func (n *Node) RemoveAnnotation(ann *Node) error {
	if ann == nil || ann.parent != n || !ann.IsAnnotation() {
		return errors.Wrapf(ErrNotContained, "annotation of %s", n.id)
	}
	_, _, index := ann.detach()
	n.emit(func(b Base) Notification {
		return &AnnotationDeleted{Base: b, DeletedAnnotation: ann, Parent: n, Index: index}
	})
	return nil
}

func (n *Node) InsertReference(f *Feature, index int, target ReferenceTarget) error {
	if err := n.checkFeature(f, ReferenceKind); err != nil {
		return err
	}
	list := n.references[f]
	if index < 0 || index > len(list) {
		return errors.Wrapf(ErrInvalidIndex, "%d in %s.%s", index, n.id, f.Name)
	}
	if !f.Multiple && len(list) > 0 {
		return errors.Wrapf(ErrInvalidValue, "%s.%s is already set", n.id, f.Name)
	}
	n.references[f] = insertAt(list, index, target)
	n.emit(func(b Base) Notification {
		return &ReferenceAdded{Base: b, Parent: n, Reference: f, Index: index, NewTarget: target}
	})
	return nil
}

func (n *Node) SetReference(f *Feature, index int, target ReferenceTarget) error {
	if err := n.checkFeature(f, ReferenceKind); err != nil {
		return err
	}
	list := n.references[f]
	if index < 0 || index >= len(list) {
		return errors.Wrapf(ErrInvalidIndex, "%d in %s.%s", index, n.id, f.Name)
	}
	old := list[index]
	list[index] = target
	n.emit(func(b Base) Notification {
		return &ReferenceChanged{Base: b, Parent: n, Reference: f, Index: index,
			NewTarget: target, OldTarget: old}
	})
	return nil
}

func (n *Node) RemoveReference(f *Feature, index int) error {
	if err := n.checkFeature(f, ReferenceKind); err != nil {
		return err
	}
	list := n.references[f]
	if index < 0 || index >= len(list) {
		return errors.Wrapf(ErrInvalidIndex, "%d in %s.%s", index, n.id, f.Name)
	}
	old := list[index]
	n.references[f] = removeAt(list, index)
	n.emit(func(b Base) Notification {
		return &ReferenceDeleted{Base: b, Parent: n, Reference: f, Index: index, DeletedTarget: old}
	})
	return nil
}
