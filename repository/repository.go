// Package repository is the server side of the delta protocol. It owns
// the authoritative forest, applies the commands clients send and fans
// the resulting events out to the clients that listen to them.
package repository

import (
	"context"
	"time"

	"github.com/drpcorg/lwdelta/connector"
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/journal"
	"github.com/drpcorg/lwdelta/mapper"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/replicator"
	"github.com/drpcorg/lwdelta/serialization"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	// Participation is credited with edits made through Edit.
	Participation string
	Logger        utils.Logger
	// Journal, if set, keeps sent events so that clients can reconnect.
	Journal   *journal.Journal
	Converter model.ValueConverter
	// OnCommunicationError hears of events the transport did not take.
	OnCommunicationError func(clientId string, err error)
	// ReconnectWindow is how long a dropped client may come back.
	ReconnectWindow time.Duration
}

func (o *Options) SetDefaults() {
	if o.Participation == "" {
		o.Participation = uuid.Must(uuid.NewV7()).String()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
	if o.Converter == nil {
		o.Converter = model.BuiltinConverter{}
	}
	if o.ReconnectWindow <= 0 {
		o.ReconnectWindow = 5 * time.Minute
	}
}

type Repository struct {
	opts   Options
	log    utils.Logger
	forest *model.Forest
	nodes  *nodemap.SharedNodeMap
	mapper *mapper.Mapper
	rep    *replicator.ForestReplicator
	conn   connector.Connector

	// clients by connector id
	clients *xsync.MapOf[string, *ClientInfo]
	// signed-on clients by participation, parked ones included
	participations *xsync.MapOf[string, *ClientInfo]

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a repository over forest. Partitions already in the forest
// are served right away; conn gets its callbacks set.
func New(forest *model.Forest, keyed *model.SharedKeyedMap, conn connector.Connector, opts Options) (*Repository, error) {
	opts.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Repository{
		opts:           opts,
		log:            opts.Logger,
		forest:         forest,
		nodes:          nodemap.New(),
		conn:           conn,
		clients:        xsync.NewMapOf[string, *ClientInfo](),
		participations: xsync.NewMapOf[string, *ClientInfo](),
		ctx:            utils.WithDefaultArgs(ctx, "participation", opts.Participation),
		cancel:         cancel,
	}
	r.mapper = mapper.New(forest, r.nodes, keyed, opts.Converter, opts.Participation)
	sink := model.HandlerFunc(r.broadcast)
	rep, err := replicator.New(forest, r.nodes, replicator.Options{
		Local:      sink,
		Replicated: sink,
		Logger:     opts.Logger,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "repository")
	}
	r.rep = rep
	conn.OnReceive(r.Receive)
	conn.OnDisconnect(r.Disconnect)
	r.log.Info("repository: started", "participation", opts.Participation, "partitions", len(forest.Partitions()))
	return r, nil
}

// Close stops serving. The connector and the journal stay open.
func (r *Repository) Close() error {
	r.cancel()
	r.rep.Close()
	r.participations.Range(func(_ string, ci *ClientInfo) bool {
		ci.stopExpiry()
		return true
	})
	return nil
}

func (r *Repository) Forest() *model.Forest {
	return r.forest
}

func (r *Repository) Nodes() *nodemap.SharedNodeMap {
	return r.nodes
}

func (r *Repository) Participation() string {
	return r.opts.Participation
}

func (r *Repository) client(clientId string) *ClientInfo {
	ci, loaded := r.clients.LoadOrCompute(clientId, func() *ClientInfo {
		return newClient(clientId)
	})
	if !loaded {
		ClientCount.Inc()
	}
	return ci
}

// Receive dispatches one message of a client.
func (r *Repository) Receive(ctx context.Context, clientId string, c delta.Content) {
	if ctx.Err() != nil || r.ctx.Err() != nil {
		return
	}
	ctx = utils.WithDefaultArgs(ctx, "client", clientId)
	if u, ok := c.(*delta.UnknownMessage); ok {
		r.log.WarnCtx(ctx, "repository: unknown message dropped", "kind", u.MessageKind)
		return
	}
	ci := r.client(clientId)
	if delta.RequiresParticipationId(c) && !ci.SignedOn() {
		r.fail(ctx, ci, c, errors.Wrapf(mapper.ErrNotSignedOn, "%s", c.Kind()))
		return
	}
	switch c := c.(type) {
	case delta.Command:
		c.Stamp(ci.Participation())
		r.execute(ctx, ci, c)
	case delta.Query:
		QueryCount.WithLabelValues(string(c.Kind())).Inc()
		if err := r.answer(ctx, ci, c); err != nil {
			r.fail(ctx, ci, c, err)
		}
	default:
		r.log.InfoCtx(ctx, "repository: message not meant for a repository", "kind", c.Kind())
	}
}

func (r *Repository) execute(ctx context.Context, ci *ClientInfo, c delta.Command) {
	started := time.Now()
	change := replicator.Change{Discard: r.mapper.Discard}
	if delta.IsForestCommand(c) {
		change.Exclusive = true
		change.Resolve = func() (model.Notification, error) {
			return r.mapper.ForestCommandToNotification(c)
		}
	} else {
		change.Context = mapper.ContextNodeId(c)
		change.Source = mapper.SourceNodeId(c)
		change.Resolve = func() (model.Notification, error) {
			return r.mapper.CommandToNotification(c)
		}
	}
	_, err := r.rep.Replicate(ctx, change)
	CommandDuration.Observe(float64(time.Since(started).Microseconds()) / 1000)
	if err != nil {
		CommandCount.WithLabelValues(string(c.Kind()), string(mapper.Classify(err))).Inc()
		r.fail(ctx, ci, c, err)
		return
	}
	CommandCount.WithLabelValues(string(c.Kind()), "ok").Inc()
	r.log.DebugCtx(ctx, "repository: command applied", "kind", c.Kind(), "command", c.Source().CommandId)
}

// fail reports err to the client that sent c, and to no one else.
func (r *Repository) fail(ctx context.Context, ci *ClientInfo, c delta.Content, err error) {
	e := &delta.ErrorEvent{ErrorCode: mapper.Classify(err), Message: err.Error()}
	switch c := c.(type) {
	case delta.Command:
		e.OriginCommands = []delta.CommandSource{c.Source()}
	case delta.Query:
		e.QueryId = c.Id()
	}
	r.log.InfoCtx(ctx, "repository: rejected", "kind", c.Kind(), "code", e.ErrorCode, "err", err)
	r.SendToClient(ctx, ci, e)
}

// broadcast turns a notification of the forest into an event for every
// client that listens to the partitions it touched.
func (r *Repository) broadcast(n model.Notification) {
	e, err := r.mapper.NotificationToEvent(n)
	if err != nil {
		r.log.ErrorCtx(r.ctx, "repository: can not map notification", "id", n.NotificationId(), "err", err)
		return
	}
	affected := affectedPartitions(n)
	var arriving delta.Event
	if len(affected) > 1 {
		if arriving, err = r.mapper.NotificationToEvent(arrival(n)); err != nil {
			r.log.ErrorCtx(r.ctx, "repository: can not map arrival", "id", n.NotificationId(), "err", err)
			return
		}
	}
	r.fanOut(r.ctx, e, affected, arriving)
}

// affectedPartitions lists the partition n happened in and, for moves
// between partitions, the one the node left.
func affectedPartitions(n model.Notification) []model.NodeId {
	ids := []model.NodeId{n.ContextNode().Root().Id()}
	var from *model.Node
	switch n := n.(type) {
	case *model.ChildMovedFromOtherContainment:
		from = n.OldParent
	case *model.ChildMovedAndReplacedFromOtherContainment:
		from = n.OldParent
	case *model.AnnotationMovedFromOtherParent:
		from = n.OldParent
	}
	if from != nil {
		if id := from.Root().Id(); id != ids[0] {
			ids = append(ids, id)
		}
	}
	return ids
}

// arrival restates a move between partitions as the addition it is to a
// client that never saw the node before.
func arrival(n model.Notification) model.Notification {
	switch n := n.(type) {
	case *model.ChildMovedFromOtherContainment:
		return &model.ChildAdded{Base: n.Base, Parent: n.NewParent, NewChild: n.MovedChild,
			Containment: n.NewContainment, Index: n.NewIndex}
	case *model.ChildMovedAndReplacedFromOtherContainment:
		return &model.ChildReplaced{Base: n.Base, Parent: n.NewParent, NewChild: n.MovedChild,
			ReplacedChild: n.ReplacedChild, Containment: n.NewContainment, Index: n.NewIndex}
	case *model.AnnotationMovedFromOtherParent:
		return &model.AnnotationAdded{Base: n.Base, Parent: n.NewParent, NewAnnotation: n.MovedAnnotation,
			Index: n.NewIndex}
	}
	return n
}

// SendToClient delivers c to one client: always for errors and handshake
// messages, otherwise only once the client signed on.
func (r *Repository) SendToClient(ctx context.Context, ci *ClientInfo, c delta.Content) {
	if _, isError := c.(*delta.ErrorEvent); !isError && delta.RequiresParticipationId(c) && !ci.SignedOn() {
		r.log.DebugCtx(ctx, "repository: not signed on, dropped", "kind", c.Kind())
		return
	}
	ci.sendLock.Lock()
	defer ci.sendLock.Unlock()
	r.deliverLocked(ctx, ci, c)
}

// SendToAllClients delivers c to every signed-on client it concerns.
func (r *Repository) SendToAllClients(ctx context.Context, c delta.Content, affected []model.NodeId) {
	r.fanOut(ctx, c, affected, nil)
}

// fanOut is SendToAllClients for a change spanning affected[0], where it
// landed, and affected[1], where it came from. Clients that only see the
// landing partition get arriving instead of c.
func (r *Repository) fanOut(ctx context.Context, c delta.Content, affected []model.NodeId, arriving delta.Content) {
	creation, deletion := delta.IsPartitionCreation(c), delta.IsPartitionDeletion(c)
	var origins []delta.CommandSource
	if e, ok := c.(delta.Event); ok {
		origins = e.Origins()
	}
	r.participations.Range(func(_ string, ci *ClientInfo) bool {
		if !ci.SignedOn() {
			return true
		}
		out := c
		if arriving != nil && ci.arrivesOnly(affected[0], affected[1]) {
			out = arriving
		} else if !ci.admit(affected, origins, creation, deletion) {
			return true
		}
		ci.sendLock.Lock()
		r.deliverLocked(ctx, ci, out)
		ci.sendLock.Unlock()
		return true
	})
}

// deliverLocked numbers events, journals them and hands them over. A
// parked client only gets them journaled. The caller holds ci.sendLock.
func (r *Repository) deliverLocked(ctx context.Context, ci *ClientInfo, c delta.Content) {
	if e, ok := c.(delta.Event); ok {
		e = e.WithSequence(ci.IncrementAndGetSequenceNumber())
		c = e
		EventsSent.Inc()
		if r.opts.Journal != nil && ci.SignedOn() {
			if err := r.opts.Journal.Append(ci.Participation(), e); err != nil {
				r.log.ErrorCtx(ctx, "repository: journal append failed", "participation", ci.Participation(), "err", err)
			}
		}
	}
	clientId := ci.ClientId()
	if clientId == "" {
		return
	}
	if err := r.conn.SendToClient(ctx, clientId, c); err != nil {
		r.communicationError(ctx, clientId, err)
	}
}

func (r *Repository) communicationError(ctx context.Context, clientId string, err error) {
	SendFailures.Inc()
	r.log.WarnCtx(ctx, "repository: send failed", "to", clientId, "err", err)
	if r.opts.OnCommunicationError != nil {
		r.opts.OnCommunicationError(clientId, err)
	}
}

// Disconnect forgets the transport of a client. With a journal, a signed-on
// client is parked for the reconnect window instead of being dropped.
func (r *Repository) Disconnect(clientId string) {
	ci, ok := r.clients.LoadAndDelete(clientId)
	if !ok {
		return
	}
	ClientCount.Dec()
	if ci.ClientId() != clientId {
		return
	}
	ci.attached.Store(false)
	if !ci.SignedOn() {
		ci.route.Store(nil)
		return
	}
	participation := ci.Participation()
	if r.opts.Journal == nil {
		ci.route.Store(nil)
		r.participations.Compute(participation, func(old *ClientInfo, loaded bool) (*ClientInfo, bool) {
			return old, !loaded || old == ci
		})
		r.log.Info("repository: client gone", "client", clientId, "participation", participation)
		return
	}
	ci.sendLock.Lock()
	ci.park(r.opts.ReconnectWindow, func() { r.expire(ci, participation) })
	ci.sendLock.Unlock()
	r.persist(ci)
	r.log.Info("repository: client parked", "client", clientId, "participation", participation,
		"window", r.opts.ReconnectWindow)
}

// expire drops a parked client that did not come back in time.
func (r *Repository) expire(ci *ClientInfo, participation string) {
	dropped := false
	r.participations.Compute(participation, func(old *ClientInfo, loaded bool) (*ClientInfo, bool) {
		if !loaded || old != ci || ci.attached.Load() {
			return old, !loaded
		}
		dropped = true
		return nil, true
	})
	if !dropped {
		return
	}
	ci.signedOn.Store(false)
	if err := r.opts.Journal.Forget(participation); err != nil && !errors.Is(err, journal.ErrClosed) {
		r.log.Warn("repository: can not forget participation", "participation", participation, "err", err)
	}
	r.log.Info("repository: participation expired", "participation", participation)
}

func (r *Repository) persist(ci *ClientInfo) {
	if r.opts.Journal == nil || !ci.SignedOn() {
		return
	}
	if err := r.opts.Journal.SaveParticipation(ci.state()); err != nil {
		r.log.Warn("repository: can not save participation", "participation", ci.Participation(), "err", err)
	}
}

// Edit runs fn on a partition root under the partition's lock. The edits
// go out to clients as changes made by the repository itself.
func (r *Repository) Edit(partition model.NodeId, fn func(root *model.Node) error) error {
	return r.rep.Do(partition, func(p *replicator.PartitionReplicator) error {
		if p.Root().Id() != partition {
			return errors.Wrapf(mapper.ErrUnknownPartition, "%s is not a partition", partition)
		}
		return fn(p.Root())
	})
}

// EditForest runs fn with every partition held still, for adding or
// deleting partitions and moving nodes between them.
func (r *Repository) EditForest(fn func(f *model.Forest) error) error {
	return r.rep.Exclusive(func() error {
		return fn(r.forest)
	})
}

// Snapshot serializes a partition as it is now.
func (r *Repository) Snapshot(partition model.NodeId) (serialization.Chunk, error) {
	var chunk serialization.Chunk
	err := r.Edit(partition, func(root *model.Node) error {
		var err error
		chunk, err = serialization.Serialize(root, r.opts.Converter)
		return err
	})
	return chunk, err
}

// Clients lists the known clients, parked ones included.
func (r *Repository) Clients() []ClientSummary {
	seen := make(map[*ClientInfo]bool)
	var out []ClientSummary
	visit := func(_ string, ci *ClientInfo) bool {
		if !seen[ci] {
			seen[ci] = true
			out = append(out, ci.summary())
		}
		return true
	}
	r.clients.Range(visit)
	r.participations.Range(visit)
	return out
}

func (r *Repository) Partitions() []delta.PartitionSummary {
	var out []delta.PartitionSummary
	_ = r.rep.Shared(func() error {
		out = summarize(r.forest.Partitions())
		return nil
	})
	return out
}

func summarize(roots []*model.Node) []delta.PartitionSummary {
	out := make([]delta.PartitionSummary, 0, len(roots))
	for _, root := range roots {
		out = append(out, delta.PartitionSummary{Id: root.Id(), Classifier: root.Classifier().Meta})
	}
	return out
}
