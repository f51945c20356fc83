package model

import (
	"sync"

	"github.com/pkg/errors"
)

// Forest holds the partitions of one repository or client replica.
// Partition membership is guarded by its own lock; partition contents are
// not.
type Forest struct {
	lock       sync.RWMutex
	partitions map[NodeId]*Node
	order      []NodeId

	hlock    sync.Mutex
	handlers map[int]NotificationHandler
	nextH    int
	pinned   *Base
}

func NewForest() *Forest {
	return &Forest{
		partitions: make(map[NodeId]*Node),
		handlers:   make(map[int]NotificationHandler),
	}
}

// Subscribe registers an observer of forest-level notifications. The
// returned func unsubscribes it.
func (f *Forest) Subscribe(h NotificationHandler) (unsubscribe func()) {
	f.hlock.Lock()
	key := f.nextH
	f.nextH++
	f.handlers[key] = h
	f.hlock.Unlock()
	return func() {
		f.hlock.Lock()
		delete(f.handlers, key)
		f.hlock.Unlock()
	}
}

// WithNotificationId runs fn with forest notifications carrying b.
// Callers serialize forest-level changes.
func (f *Forest) WithNotificationId(b Base, fn func() error) error {
	prev := f.pinned
	f.pinned = &b
	defer func() { f.pinned = prev }()
	return fn()
}

func (f *Forest) emit(build func(b Base) Notification) {
	b := Base{Id: NewNotificationId()}
	if f.pinned != nil {
		b = *f.pinned
	}
	n := build(b)
	f.hlock.Lock()
	handlers := make([]NotificationHandler, 0, len(f.handlers))
	for i := 0; i < f.nextH; i++ {
		if h, ok := f.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	f.hlock.Unlock()
	for _, h := range handlers {
		h.Receive(n)
	}
}

func (f *Forest) AddPartition(p *Node) error {
	if p == nil || p.parent != nil || !p.classifier.Partition {
		return errors.Wrap(ErrNotPartition, "add partition")
	}
	f.lock.Lock()
	if _, ok := f.partitions[p.id]; ok {
		f.lock.Unlock()
		return errors.Wrapf(ErrPartitionExists, "%s", p.id)
	}
	f.partitions[p.id] = p
	f.order = append(f.order, p.id)
	f.lock.Unlock()

	f.emit(func(b Base) Notification {
		return &PartitionAdded{Base: b, NewPartition: p}
	})
	return nil
}

func (f *Forest) DeletePartition(p *Node) error {
	if p == nil {
		return errors.Wrap(ErrPartitionUnknown, "delete partition")
	}
	f.lock.Lock()
	if f.partitions[p.id] != p {
		f.lock.Unlock()
		return errors.Wrapf(ErrPartitionUnknown, "%s", p.id)
	}
	delete(f.partitions, p.id)
	for i, id := range f.order {
		if id == p.id {
			f.order = removeAt(f.order, i)
			break
		}
	}
	f.lock.Unlock()

	f.emit(func(b Base) Notification {
		return &PartitionDeleted{Base: b, DeletedPartition: p}
	})
	return nil
}

func (f *Forest) Partition(id NodeId) (*Node, bool) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	p, ok := f.partitions[id]
	return p, ok
}

// Partitions lists the partitions in insertion order.
func (f *Forest) Partitions() []*Node {
	f.lock.RLock()
	defer f.lock.RUnlock()
	out := make([]*Node, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.partitions[id])
	}
	return out
}
