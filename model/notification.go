package model

import (
	"errors"

	"github.com/oklog/ulid/v2"
)

type NotificationId string

// NewNotificationId returns a fresh, monotonically sortable id.
func NewNotificationId() NotificationId {
	return NotificationId(ulid.Make().String())
}

// CommandSource names the client command an effect was caused by.
type CommandSource struct {
	ParticipationId string `json:"participationId"`
	CommandId       string `json:"commandId"`
}

// Base is the identity every notification carries.
type Base struct {
	Id NotificationId
	// Origin lists the commands this notification is the effect of;
	// empty for edits made locally.
	Origin []CommandSource
}

func (b Base) NotificationId() NotificationId { return b.Id }
func (b Base) Origins() []CommandSource       { return b.Origin }
func (Base) notification()                    {}

// Notification describes a mutation that has been applied to a tree.
// The set of implementations is closed.
type Notification interface {
	NotificationId() NotificationId
	Origins() []CommandSource
	// ContextNode is the node the mutation happened at: the partition for
	// forest-level changes, the parent or owner node otherwise.
	ContextNode() *Node
	// Rebased returns a copy carrying another identity.
	Rebased(b Base) Notification
	notification()
}

var ErrUnsupportedNotification = errors.New("lwdelta: unsupported notification")

type ReferenceTarget struct {
	ResolveInfo string
	TargetId    NodeId
	// Target is nil when the target is not known locally.
	Target *Node
}

type PartitionAdded struct {
	Base
	NewPartition *Node
}

type PartitionDeleted struct {
	Base
	DeletedPartition *Node
}

type PropertyAdded struct {
	Base
	Node     *Node
	Property *Feature
	NewValue any
}

type PropertyDeleted struct {
	Base
	Node     *Node
	Property *Feature
	OldValue any
}

type PropertyChanged struct {
	Base
	Node     *Node
	Property *Feature
	NewValue any
	OldValue any
}

type ChildAdded struct {
	Base
	Parent      *Node
	NewChild    *Node
	Containment *Feature
	Index       int
}

type ChildDeleted struct {
	Base
	DeletedChild *Node
	Parent       *Node
	Containment  *Feature
	Index        int
}

type ChildReplaced struct {
	Base
	NewChild      *Node
	ReplacedChild *Node
	Parent        *Node
	Containment   *Feature
	Index         int
}

type ChildMovedFromOtherContainment struct {
	Base
	NewParent      *Node
	NewContainment *Feature
	NewIndex       int
	MovedChild     *Node
	OldParent      *Node
	OldContainment *Feature
	OldIndex       int
}

type ChildMovedFromOtherContainmentInSameParent struct {
	Base
	Parent         *Node
	NewContainment *Feature
	NewIndex       int
	MovedChild     *Node
	OldContainment *Feature
	OldIndex       int
}

type ChildMovedInSameContainment struct {
	Base
	Parent      *Node
	Containment *Feature
	NewIndex    int
	MovedChild  *Node
	OldIndex    int
}

type ChildMovedAndReplacedFromOtherContainment struct {
	Base
	NewParent      *Node
	NewContainment *Feature
	NewIndex       int
	MovedChild     *Node
	OldParent      *Node
	OldContainment *Feature
	OldIndex       int
	ReplacedChild  *Node
}

type AnnotationAdded struct {
	Base
	Parent        *Node
	NewAnnotation *Node
	Index         int
}

type AnnotationDeleted struct {
	Base
	DeletedAnnotation *Node
	Parent            *Node
	Index             int
}

type AnnotationMovedFromOtherParent struct {
	Base
	NewParent       *Node
	NewIndex        int
	MovedAnnotation *Node
	OldParent       *Node
	OldIndex        int
}

type AnnotationMovedInSameParent struct {
	Base
	Parent          *Node
	NewIndex        int
	MovedAnnotation *Node
	OldIndex        int
}

type ReferenceAdded struct {
	Base
	Parent    *Node
	Reference *Feature
	Index     int
	NewTarget ReferenceTarget
}

type ReferenceDeleted struct {
	Base
	Parent        *Node
	Reference     *Feature
	Index         int
	DeletedTarget ReferenceTarget
}

type ReferenceChanged struct {
	Base
	Parent    *Node
	Reference *Feature
	Index     int
	NewTarget ReferenceTarget
	OldTarget ReferenceTarget
}

func (n *PartitionAdded) ContextNode() *Node                            { return n.NewPartition }
func (n *PartitionDeleted) ContextNode() *Node                          { return n.DeletedPartition }
func (n *PropertyAdded) ContextNode() *Node                             { return n.Node }
func (n *PropertyDeleted) ContextNode() *Node                           { return n.Node }
func (n *PropertyChanged) ContextNode() *Node                           { return n.Node }
func (n *ChildAdded) ContextNode() *Node                                { return n.Parent }
func (n *ChildDeleted) ContextNode() *Node                              { return n.Parent }
func (n *ChildReplaced) ContextNode() *Node                             { return n.Parent }
func (n *ChildMovedFromOtherContainment) ContextNode() *Node            { return n.NewParent }
func (n *ChildMovedFromOtherContainmentInSameParent) ContextNode() *Node { return n.Parent }
func (n *ChildMovedInSameContainment) ContextNode() *Node               { return n.Parent }
func (n *ChildMovedAndReplacedFromOtherContainment) ContextNode() *Node { return n.NewParent }
func (n *AnnotationAdded) ContextNode() *Node                           { return n.Parent }
func (n *AnnotationDeleted) ContextNode() *Node                         { return n.Parent }
func (n *AnnotationMovedFromOtherParent) ContextNode() *Node            { return n.NewParent }
func (n *AnnotationMovedInSameParent) ContextNode() *Node               { return n.Parent }
func (n *ReferenceAdded) ContextNode() *Node                            { return n.Parent }
func (n *ReferenceDeleted) ContextNode() *Node                          { return n.Parent }
func (n *ReferenceChanged) ContextNode() *Node                          { return n.Parent }

func (n *PartitionAdded) Rebased(b Base) Notification                             { return rebase(n, b) }
func (n *PartitionDeleted) Rebased(b Base) Notification                           { return rebase(n, b) }
func (n *PropertyAdded) Rebased(b Base) Notification                              { return rebase(n, b) }
func (n *PropertyDeleted) Rebased(b Base) Notification                            { return rebase(n, b) }
func (n *PropertyChanged) Rebased(b Base) Notification                            { return rebase(n, b) }
func (n *ChildAdded) Rebased(b Base) Notification                                 { return rebase(n, b) }
func (n *ChildDeleted) Rebased(b Base) Notification                               { return rebase(n, b) }
func (n *ChildReplaced) Rebased(b Base) Notification                              { return rebase(n, b) }
func (n *ChildMovedFromOtherContainment) Rebased(b Base) Notification             { return rebase(n, b) }
func (n *ChildMovedFromOtherContainmentInSameParent) Rebased(b Base) Notification { return rebase(n, b) }
func (n *ChildMovedInSameContainment) Rebased(b Base) Notification                { return rebase(n, b) }
func (n *ChildMovedAndReplacedFromOtherContainment) Rebased(b Base) Notification  { return rebase(n, b) }
func (n *AnnotationAdded) Rebased(b Base) Notification                            { return rebase(n, b) }
func (n *AnnotationDeleted) Rebased(b Base) Notification                          { return rebase(n, b) }
func (n *AnnotationMovedFromOtherParent) Rebased(b Base) Notification             { return rebase(n, b) }
func (n *AnnotationMovedInSameParent) Rebased(b Base) Notification                { return rebase(n, b) }
func (n *ReferenceAdded) Rebased(b Base) Notification                             { return rebase(n, b) }
func (n *ReferenceDeleted) Rebased(b Base) Notification                           { return rebase(n, b) }
func (n *ReferenceChanged) Rebased(b Base) Notification                           { return rebase(n, b) }

func (b *Base) setBase(nb Base) { *b = nb }

func rebase[T any, P interface {
	*T
	Notification
	setBase(Base)
}](n P, b Base) Notification {
	c := *n
	P(&c).setBase(b)
	return P(&c)
}

// NotificationVisitor has one method per notification kind. Every mapper
// implements it, so a new kind does not compile until all of them handle it.
type NotificationVisitor[R any] interface {
	PartitionAdded(n *PartitionAdded) (R, error)
	PartitionDeleted(n *PartitionDeleted) (R, error)
	PropertyAdded(n *PropertyAdded) (R, error)
	PropertyDeleted(n *PropertyDeleted) (R, error)
	PropertyChanged(n *PropertyChanged) (R, error)
	ChildAdded(n *ChildAdded) (R, error)
	ChildDeleted(n *ChildDeleted) (R, error)
	ChildReplaced(n *ChildReplaced) (R, error)
	ChildMovedFromOtherContainment(n *ChildMovedFromOtherContainment) (R, error)
	ChildMovedFromOtherContainmentInSameParent(n *ChildMovedFromOtherContainmentInSameParent) (R, error)
	ChildMovedInSameContainment(n *ChildMovedInSameContainment) (R, error)
	ChildMovedAndReplacedFromOtherContainment(n *ChildMovedAndReplacedFromOtherContainment) (R, error)
	AnnotationAdded(n *AnnotationAdded) (R, error)
	AnnotationDeleted(n *AnnotationDeleted) (R, error)
	AnnotationMovedFromOtherParent(n *AnnotationMovedFromOtherParent) (R, error)
	AnnotationMovedInSameParent(n *AnnotationMovedInSameParent) (R, error)
	ReferenceAdded(n *ReferenceAdded) (R, error)
	ReferenceDeleted(n *ReferenceDeleted) (R, error)
	ReferenceChanged(n *ReferenceChanged) (R, error)
}

func VisitNotification[R any](n Notification, v NotificationVisitor[R]) (R, error) {
	switch t := n.(type) {
	case *PartitionAdded:
		return v.PartitionAdded(t)
	case *PartitionDeleted:
		return v.PartitionDeleted(t)
	case *PropertyAdded:
		return v.PropertyAdded(t)
	case *PropertyDeleted:
		return v.PropertyDeleted(t)
	case *PropertyChanged:
		return v.PropertyChanged(t)
	case *ChildAdded:
		return v.ChildAdded(t)
	case *ChildDeleted:
		return v.ChildDeleted(t)
	case *ChildReplaced:
		return v.ChildReplaced(t)
	case *ChildMovedFromOtherContainment:
		return v.ChildMovedFromOtherContainment(t)
	case *ChildMovedFromOtherContainmentInSameParent:
		return v.ChildMovedFromOtherContainmentInSameParent(t)
	case *ChildMovedInSameContainment:
		return v.ChildMovedInSameContainment(t)
	case *ChildMovedAndReplacedFromOtherContainment:
		return v.ChildMovedAndReplacedFromOtherContainment(t)
	case *AnnotationAdded:
		return v.AnnotationAdded(t)
	case *AnnotationDeleted:
		return v.AnnotationDeleted(t)
	case *AnnotationMovedFromOtherParent:
		return v.AnnotationMovedFromOtherParent(t)
	case *AnnotationMovedInSameParent:
		return v.AnnotationMovedInSameParent(t)
	case *ReferenceAdded:
		return v.ReferenceAdded(t)
	case *ReferenceDeleted:
		return v.ReferenceDeleted(t)
	case *ReferenceChanged:
		return v.ReferenceChanged(t)
	}
	var zero R
	return zero, ErrUnsupportedNotification
}

// NotificationHandler receives notifications raised by a tree or forest.
type NotificationHandler interface {
	Receive(n Notification)
}

type HandlerFunc func(n Notification)

func (f HandlerFunc) Receive(n Notification) { f(n) }
