package replicator

import (
	"context"
	"sync"
	"time"

	"github.com/drpcorg/lwdelta/mapper"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Options wires a ForestReplicator to its consumers. Local receives
// notifications of edits made directly on the forest; Replicated receives
// those caused by Replicate, carrying the identity of the applied change.
type Options struct {
	Local      model.NotificationHandler
	Replicated model.NotificationHandler
	Logger     utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Local == nil {
		o.Local = model.HandlerFunc(func(model.Notification) {})
	}
	if o.Replicated == nil {
		o.Replicated = model.HandlerFunc(func(model.Notification) {})
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
}

// PartitionReplicator is the pipeline of one partition. Everything that
// reads or mutates the partition does so holding its lock.
type PartitionReplicator struct {
	root   *model.Node
	filter *IdFilter
	route  *router
	lock   sync.Mutex
	owner  *ForestReplicator
}

func (p *PartitionReplicator) Root() *model.Node {
	return p.root
}

func (p *PartitionReplicator) Filter() *IdFilter {
	return p.filter
}

// Receive is attached to the partition root and sees every notification
// the partition raises.
func (p *PartitionReplicator) Receive(n model.Notification) {
	p.owner.maintain(n, p)
	p.route.Receive(n)
}

// apply runs n against the partition with its notifications filtered.
// The caller holds the partition lock or the forest write lock.
func (p *PartitionReplicator) apply(n model.Notification) error {
	synthetic := model.Base{Id: model.NewNotificationId()}
	return p.filter.Suppress(synthetic.Id, identity(n), func() error {
		return p.root.WithNotificationId(synthetic, func() error {
			return Apply(p.owner.forest, n)
		})
	})
}

func identity(n model.Notification) model.Base {
	return model.Base{Id: n.NotificationId(), Origin: n.Origins()}
}

// ForestReplicator keeps a PartitionReplicator for every partition of the
// forest and serializes work on them: partition work holds the read lock
// plus the partition lock, forest work holds the write lock.
type ForestReplicator struct {
	forest *model.Forest
	nodes  *nodemap.SharedNodeMap
	opts   Options

	lock       sync.RWMutex
	filter     *IdFilter
	route      *router
	partitions *xsync.MapOf[model.NodeId, *PartitionReplicator]
	// owners maps every node of every partition to its pipeline; it only
	// changes under the lock of the partition involved
	owners *xsync.MapOf[model.NodeId, *PartitionReplicator]

	unsubscribe func()
}

// New installs pipelines for the partitions the forest already holds and
// follows the forest for partitions added or deleted later.
func New(forest *model.Forest, nodes *nodemap.SharedNodeMap, opts Options) (*ForestReplicator, error) {
	opts.SetDefaults()
	f := &ForestReplicator{
		forest:     forest,
		nodes:      nodes,
		opts:       opts,
		filter:     NewIdFilter(),
		partitions: xsync.NewMapOf[model.NodeId, *PartitionReplicator](),
		owners:     xsync.NewMapOf[model.NodeId, *PartitionReplicator](),
	}
	f.route = newRouter(f.filter, opts.Local, opts.Replicated)
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, root := range forest.Partitions() {
		if err := nodes.RegisterSubtree(root); err != nil {
			f.closeLocked()
			return nil, err
		}
		if err := f.install(root); err != nil {
			f.closeLocked()
			return nil, err
		}
	}
	f.unsubscribe = forest.Subscribe(model.HandlerFunc(f.receiveForest))
	return f, nil
}

// Close detaches from the forest and from every partition.
func (f *ForestReplicator) Close() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closeLocked()
}

func (f *ForestReplicator) closeLocked() {
	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
	f.partitions.Range(func(_ model.NodeId, p *PartitionReplicator) bool {
		f.uninstall(p.root, false)
		return true
	})
}

func (f *ForestReplicator) Forest() *model.Forest {
	return f.forest
}

func (f *ForestReplicator) Nodes() *nodemap.SharedNodeMap {
	return f.nodes
}

func (f *ForestReplicator) Filter() *IdFilter {
	return f.filter
}

func (f *ForestReplicator) Partition(id model.NodeId) (*PartitionReplicator, bool) {
	return f.partitions.Load(id)
}

// PartitionOf names the pipeline a node currently belongs to.
func (f *ForestReplicator) PartitionOf(id model.NodeId) (*PartitionReplicator, bool) {
	return f.owners.Load(id)
}

func (f *ForestReplicator) install(root *model.Node) error {
	p := &PartitionReplicator{root: root, filter: NewIdFilter(), owner: f}
	p.route = newRouter(p.filter, f.opts.Local, f.opts.Replicated)
	if err := root.AttachNotifications(p); err != nil {
		return err
	}
	f.partitions.Store(root.Id(), p)
	for _, n := range root.Descendants(true, true) {
		f.owners.Store(n.Id(), p)
	}
	PartitionCount.Inc()
	f.opts.Logger.Debug("replicator: partition installed", "partition", root.Id())
	return nil
}

func (f *ForestReplicator) uninstall(root *model.Node, forget bool) {
	p, ok := f.partitions.LoadAndDelete(root.Id())
	if !ok || p.root != root {
		return
	}
	root.DetachNotifications()
	for _, n := range root.Descendants(true, true) {
		f.owners.Compute(n.Id(), func(old *PartitionReplicator, loaded bool) (*PartitionReplicator, bool) {
			return old, !loaded || old == p
		})
	}
	if forget {
		f.nodes.RemoveSubtree(root)
	}
	PartitionCount.Dec()
	f.opts.Logger.Debug("replicator: partition removed", "partition", root.Id())
}

// receiveForest sees forest-level notifications. A new partition gets its
// pipeline before anyone hears of it; a deleted one loses it afterwards.
func (f *ForestReplicator) receiveForest(n model.Notification) {
	switch n := n.(type) {
	case *model.PartitionAdded:
		if err := f.nodes.RegisterSubtree(n.NewPartition); err != nil {
			f.opts.Logger.Error("replicator: can not register partition nodes", "partition", n.NewPartition.Id(), "err", err)
		}
		if err := f.install(n.NewPartition); err != nil {
			f.opts.Logger.Error("replicator: can not install partition", "partition", n.NewPartition.Id(), "err", err)
		}
		f.route.Receive(n)
	case *model.PartitionDeleted:
		f.route.Receive(n)
		f.uninstall(n.DeletedPartition, true)
	default:
		f.route.Receive(n)
	}
}

// maintain keeps the node map and the ownership index in step with what
// a partition notification brought in or took out.
func (f *ForestReplicator) maintain(n model.Notification, p *PartitionReplicator) {
	for _, gone := range removed(n) {
		for _, d := range gone.Descendants(true, true) {
			f.owners.Compute(d.Id(), func(old *PartitionReplicator, loaded bool) (*PartitionReplicator, bool) {
				return old, !loaded || old == p
			})
		}
		f.nodes.RemoveSubtree(gone)
	}
	for _, in := range added(n) {
		if err := f.nodes.RegisterSubtree(in); err != nil {
			f.opts.Logger.Warn("replicator: node id clash", "partition", p.root.Id(), "err", err)
		}
		for _, d := range in.Descendants(true, true) {
			f.owners.Store(d.Id(), p)
		}
	}
}

// Change describes one remote change to replicate. Resolve runs under the
// lock the change needs and produces the notification to apply; Discard,
// if set, undoes what Resolve registered when applying fails.
type Change struct {
	// Exclusive changes run under the forest write lock. Partition add and
	// delete must be exclusive.
	Exclusive bool
	// Context is the node the change acts at and Source a node it takes
	// from elsewhere; both pick the partition lock for non-exclusive
	// changes.
	Context model.NodeId
	Source  model.NodeId
	Resolve func() (model.Notification, error)
	Discard func(model.Notification)
}

// Replicate resolves and applies one remote change. The notifications the
// change raises reach Replicated only.
func (f *ForestReplicator) Replicate(ctx context.Context, c Change) (model.Notification, error) {
	if !c.Exclusive {
		n, crossing, err := f.replicateShared(c)
		if !crossing {
			return n, err
		}
		f.opts.Logger.DebugCtx(ctx, "replicator: change spans partitions", "context", c.Context, "source", c.Source)
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	n, err := c.Resolve()
	if err != nil {
		return nil, err
	}
	return n, f.applyExclusive(c, n)
}

func (f *ForestReplicator) replicateShared(c Change) (model.Notification, bool, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	p, ok := f.owners.Load(c.Context)
	if !ok {
		return nil, false, errors.Wrapf(mapper.ErrUnknownPartition, "no partition holds %q", c.Context)
	}
	if c.Source != "" {
		if sp, ok := f.owners.Load(c.Source); ok && sp != p {
			return nil, true, nil
		}
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, ok := f.nodes.TryGetPartition(c.Context); !ok {
		return nil, false, errors.Wrapf(mapper.ErrUnknownPartition, "no partition holds %q", c.Context)
	}
	n, err := c.Resolve()
	if err != nil {
		return nil, false, err
	}
	if isForestLevel(n) || f.pipelineOf(n) != p {
		discard(c, n)
		return nil, false, errors.Wrapf(mapper.ErrUnsupportedOperation, "%s outside partition %s", kindOf(n), p.root.Id())
	}
	started := time.Now()
	err = p.apply(n)
	ApplyDuration.WithLabelValues("partition").Observe(float64(time.Since(started).Microseconds()) / 1000)
	if err != nil {
		return nil, false, f.failed(c, n, err)
	}
	return n, false, nil
}

func (f *ForestReplicator) applyExclusive(c Change, n model.Notification) error {
	started := time.Now()
	var err error
	if isForestLevel(n) {
		synthetic := model.Base{Id: model.NewNotificationId()}
		err = f.filter.Suppress(synthetic.Id, identity(n), func() error {
			return f.forest.WithNotificationId(synthetic, func() error {
				return Apply(f.forest, n)
			})
		})
		ApplyDuration.WithLabelValues("forest").Observe(float64(time.Since(started).Microseconds()) / 1000)
	} else {
		p := f.pipelineOf(n)
		if p == nil {
			discard(c, n)
			return errors.Wrapf(mapper.ErrUnknownPartition, "%s outside any partition", kindOf(n))
		}
		err = p.apply(n)
		ApplyDuration.WithLabelValues("exclusive").Observe(float64(time.Since(started).Microseconds()) / 1000)
	}
	if err != nil {
		return f.failed(c, n, err)
	}
	return nil
}

func (f *ForestReplicator) failed(c Change, n model.Notification, err error) error {
	discard(c, n)
	ApplyFailures.WithLabelValues(kindOf(n)).Inc()
	return errors.Wrapf(mapper.ErrReplication, "%s: %v", kindOf(n), err)
}

func discard(c Change, n model.Notification) {
	if c.Discard != nil {
		c.Discard(n)
	}
}

func (f *ForestReplicator) pipelineOf(n model.Notification) *PartitionReplicator {
	p, _ := f.owners.Load(n.ContextNode().Id())
	return p
}

func isForestLevel(n model.Notification) bool {
	switch n.(type) {
	case *model.PartitionAdded, *model.PartitionDeleted:
		return true
	}
	return false
}

// Do runs fn on the partition holding node id, under that partition's
// lock. Edits fn makes reach Local. fn must not move nodes between
// partitions; Exclusive is for that.
func (f *ForestReplicator) Do(id model.NodeId, fn func(p *PartitionReplicator) error) error {
	f.lock.RLock()
	defer f.lock.RUnlock()
	p, ok := f.owners.Load(id)
	if !ok {
		return errors.Wrapf(mapper.ErrUnknownPartition, "no partition holds %q", id)
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	return fn(p)
}

// Exclusive runs fn with every partition held still.
func (f *ForestReplicator) Exclusive(fn func() error) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	return fn()
}

// Shared runs fn while no forest-level change can happen. Partitions may
// still change; use Do to read one.
func (f *ForestReplicator) Shared(fn func() error) error {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return fn()
}
