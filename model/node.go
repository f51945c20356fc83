package model

import (
	"github.com/pkg/errors"
)

type NodeId string

// Node is a tree node. It is not safe for concurrent use: every mutation of
// a partition is serialized by the partition's owner.
type Node struct {
	id          NodeId
	classifier  *Classifier
	parent      *Node
	containment *Feature // nil for roots and annotations

	properties  map[*Feature]any
	children    map[*Feature][]*Node
	references  map[*Feature][]ReferenceTarget
	annotations []*Node

	// set on partition roots only
	sender NotificationHandler
	pinned *Base
}

func NewNode(id NodeId, classifier *Classifier) *Node {
	return &Node{
		id:         id,
		classifier: classifier,
		properties: make(map[*Feature]any),
		children:   make(map[*Feature][]*Node),
		references: make(map[*Feature][]ReferenceTarget),
	}
}

func (n *Node) Id() NodeId              { return n.id }
func (n *Node) Classifier() *Classifier { return n.classifier }
func (n *Node) Parent() *Node           { return n.parent }
func (n *Node) Annotations() []*Node    { return n.annotations }

func (n *Node) IsAnnotation() bool {
	return n.parent != nil && n.containment == nil
}

// Root walks up to the topmost ancestor.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Partition returns the partition root the node belongs to, or nil.
func (n *Node) Partition() *Node {
	r := n.Root()
	if r.classifier == nil || !r.classifier.Partition {
		return nil
	}
	return r
}

// ContainmentOf tells in which containment child sits; nil when child is an
// annotation of n or not a child of n at all.
func (n *Node) ContainmentOf(child *Node) *Feature {
	if child.parent != n {
		return nil
	}
	return child.containment
}

func (n *Node) Children(f *Feature) []*Node {
	return n.children[f]
}

func (n *Node) References(f *Feature) []ReferenceTarget {
	return n.references[f]
}

func (n *Node) Property(f *Feature) (any, bool) {
	v, ok := n.properties[f]
	return v, ok
}

// Get returns a feature value: the property value, the child (list) or the
// reference target (list). Unset features yield ErrUnsetFeature.
func (n *Node) Get(f *Feature) (any, error) {
	v, ok := n.TryGet(f)
	if !ok {
		return nil, errors.Wrapf(ErrUnsetFeature, "%s.%s", n.id, f.Name)
	}
	return v, nil
}

func (n *Node) TryGet(f *Feature) (any, bool) {
	switch f.Kind {
	case PropertyKind:
		return n.Property(f)
	case ContainmentKind:
		list := n.children[f]
		if len(list) == 0 {
			return nil, false
		}
		if !f.Multiple {
			return list[0], true
		}
		return list, true
	case ReferenceKind:
		list := n.references[f]
		if len(list) == 0 {
			return nil, false
		}
		if !f.Multiple {
			return list[0], true
		}
		return list, true
	}
	return nil, false
}

// Descendants lists the subtree in pre-order.
func (n *Node) Descendants(includeSelf, includeAnnotations bool) []*Node {
	var out []*Node
	var walk func(x *Node)
	walk = func(x *Node) {
		out = append(out, x)
		for _, f := range x.classifier.Features {
			if f.Kind != ContainmentKind {
				continue
			}
			for _, c := range x.children[f] {
				walk(c)
			}
		}
		if includeAnnotations {
			for _, a := range x.annotations {
				walk(a)
			}
		}
	}
	walk(n)
	if !includeSelf {
		out = out[1:]
	}
	return out
}

// IndexOf finds a child within a containment or -1.
func IndexOf(list []*Node, node *Node) int {
	for i, c := range list {
		if c == node {
			return i
		}
	}
	return -1
}

func (n *Node) isAncestorOrSelf(of *Node) bool {
	for x := of; x != nil; x = x.parent {
		if x == n {
			return true
		}
	}
	return false
}

func (n *Node) checkFeature(f *Feature, kind FeatureKind) error {
	if f == nil || f.Kind != kind || !n.classifier.HasFeature(f) {
		return errors.Wrapf(ErrUnknownFeature, "%s has no %s %v", n.classifier.Name, kind, f)
	}
	return nil
}

func insertAt[T any](list []T, index int, v T) []T {
	list = append(list, v)
	copy(list[index+1:], list[index:])
	list[index] = v
	return list
}

func removeAt[T any](list []T, index int) []T {
	return append(list[:index:index], list[index+1:]...)
}

// AttachNotifications makes the root report its mutations to h.
func (n *Node) AttachNotifications(h NotificationHandler) error {
	if n.parent != nil {
		return errors.Wrapf(ErrNotPartition, "%s", n.id)
	}
	n.sender = h
	return nil
}

func (n *Node) DetachNotifications() {
	n.sender = nil
	n.pinned = nil
}

// WithNotificationId runs fn with every notification the tree raises
// carrying the given identity instead of a fresh one.
func (n *Node) WithNotificationId(b Base, fn func() error) error {
	root := n.Root()
	prev := root.pinned
	root.pinned = &b
	defer func() { root.pinned = prev }()
	return fn()
}

func (n *Node) emit(build func(b Base) Notification) {
	root := n.Root()
	if root.sender == nil {
		return
	}
	b := Base{Id: NewNotificationId()}
	if root.pinned != nil {
		b = *root.pinned
	}
	root.sender.Receive(build(b))
}
