// Package client is a replica of a repository's partitions. Edits made on
// it are sent to the repository as commands; events from the repository
// are applied to it without being sent back.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/mapper"
	"github.com/drpcorg/lwdelta/model"
	"github.com/drpcorg/lwdelta/nodemap"
	"github.com/drpcorg/lwdelta/replicator"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrSequenceGap = errors.New("lwdelta: events were lost")
	ErrUnexpected  = errors.New("lwdelta: unexpected response")
)

// Transport is the client end of a connector.
type Transport interface {
	Send(ctx context.Context, c delta.Content) error
	OnReceive(fn func(ctx context.Context, c delta.Content))
	Close() error
}

// RemoteError is an error the repository reported.
type RemoteError struct {
	*delta.ErrorEvent
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
}

type Options struct {
	// Name is announced at sign-on.
	Name      string
	Logger    utils.Logger
	Converter model.ValueConverter
	// Timeout bounds every query round trip without a deadline of its own.
	Timeout time.Duration
	// OnError hears of rejected commands, lost events and events that do
	// not fit the replica.
	OnError func(err error)
	// OnEvent sees every event after it was handled.
	OnEvent func(e delta.Event)
}

func (o *Options) SetDefaults() {
	if o.Name == "" {
		o.Name = ulid.Make().String()
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
	if o.Converter == nil {
		o.Converter = model.BuiltinConverter{}
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.OnError == nil {
		o.OnError = func(error) {}
	}
}

type Client struct {
	opts      Options
	log       utils.Logger
	forest    *model.Forest
	nodes     *nodemap.SharedNodeMap
	mapper    *mapper.Mapper
	rep       *replicator.ForestReplicator
	transport Transport

	participation atomic.Pointer[string]
	// queries waiting for their answer, by query id
	pending *xsync.MapOf[string, chan delta.Content]
	// own commands not yet acknowledged, by command id
	inflight *xsync.MapOf[string, struct{}]
	// partitions being unsubscribed, by query id
	unsubscribing *xsync.MapOf[string, model.NodeId]

	seqLock sync.Mutex
	nextSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func New(keyed *model.SharedKeyedMap, transport Transport, opts Options) (*Client, error) {
	opts.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:          opts,
		log:           opts.Logger,
		forest:        model.NewForest(),
		nodes:         nodemap.New(),
		transport:     transport,
		pending:       xsync.NewMapOf[string, chan delta.Content](),
		inflight:      xsync.NewMapOf[string, struct{}](),
		unsubscribing: xsync.NewMapOf[string, model.NodeId](),
		ctx:           utils.WithDefaultArgs(ctx, "name", opts.Name),
		cancel:        cancel,
	}
	c.mapper = mapper.New(c.forest, c.nodes, keyed, opts.Converter, "")
	rep, err := replicator.New(c.forest, c.nodes, replicator.Options{
		Local:  model.HandlerFunc(c.forward),
		Logger: opts.Logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.rep = rep
	transport.OnReceive(c.receive)
	return c, nil
}

func (c *Client) Close() error {
	c.cancel()
	c.rep.Close()
	return c.transport.Close()
}

func (c *Client) Forest() *model.Forest {
	return c.forest
}

func (c *Client) Nodes() *nodemap.SharedNodeMap {
	return c.nodes
}

func (c *Client) Participation() string {
	if p := c.participation.Load(); p != nil {
		return *p
	}
	return ""
}

// Unacknowledged counts own commands the repository has not confirmed.
func (c *Client) Unacknowledged() int {
	return c.inflight.Size()
}

// Edit changes a replicated partition; every change goes to the
// repository as a command.
func (c *Client) Edit(partition model.NodeId, fn func(root *model.Node) error) error {
	if c.Participation() == "" {
		return mapper.ErrNotSignedOn
	}
	return c.rep.Do(partition, func(p *replicator.PartitionReplicator) error {
		if p.Root().Id() != partition {
			return errors.Wrapf(mapper.ErrUnknownPartition, "%s is not a partition", partition)
		}
		return fn(p.Root())
	})
}

// EditForest is Edit for adding and deleting partitions.
func (c *Client) EditForest(fn func(f *model.Forest) error) error {
	if c.Participation() == "" {
		return mapper.ErrNotSignedOn
	}
	return c.rep.Exclusive(func() error {
		return fn(c.forest)
	})
}

// forward sends a local edit to the repository.
func (c *Client) forward(n model.Notification) {
	id := ulid.Make().String()
	cmd, err := c.mapper.NotificationToCommand(n, id)
	if err != nil {
		c.report(errors.Wrapf(err, "can not send %T", n))
		return
	}
	c.inflight.Store(id, struct{}{})
	if err := c.transport.Send(c.ctx, cmd); err != nil {
		c.inflight.Delete(id)
		c.report(errors.Wrapf(err, "send %s", cmd.Kind()))
	}
}

func (c *Client) report(err error) {
	c.log.WarnCtx(c.ctx, "client: "+err.Error())
	c.opts.OnError(err)
}

func (c *Client) receive(ctx context.Context, m delta.Content) {
	switch m := m.(type) {
	case delta.Event:
		c.event(ctx, m)
	case delta.Query:
		c.answered(m)
	default:
		c.log.InfoCtx(ctx, "client: message dropped", "kind", m.Kind())
	}
}

// sequenced checks that events come numbered without gaps.
func (c *Client) sequenced(e delta.Event) {
	c.seqLock.Lock()
	defer c.seqLock.Unlock()
	if seq := e.Sequence(); seq != c.nextSeq {
		c.report(errors.Wrapf(ErrSequenceGap, "expected #%d, got #%d", c.nextSeq, seq))
	}
	c.nextSeq = e.Sequence() + 1
}

func (c *Client) event(ctx context.Context, e delta.Event) {
	c.sequenced(e)
	defer func() {
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(e)
		}
	}()
	if fail, ok := e.(*delta.ErrorEvent); ok {
		for _, o := range fail.Origins() {
			c.inflight.Delete(o.CommandId)
		}
		if ch, ok := c.pending.LoadAndDelete(fail.QueryId); fail.QueryId != "" && ok {
			ch <- fail
			return
		}
		c.report(&RemoteError{fail})
		return
	}
	if c.acknowledges(e) {
		return
	}
	if err := c.replicate(ctx, e); err != nil {
		c.report(errors.Wrapf(err, "can not apply %s #%d", e.Kind(), e.Sequence()))
	}
}

// acknowledges tells whether e confirms commands of this client, which
// were applied here already.
func (c *Client) acknowledges(e delta.Event) bool {
	me := c.Participation()
	if me == "" {
		return false
	}
	own := false
	for _, o := range e.Origins() {
		if o.ParticipationId == me {
			c.inflight.Delete(o.CommandId)
			own = true
		}
	}
	return own
}

// answered completes a query. Subscription changes are applied here, on
// the receiving side, so events that follow the answer find the
// partition in place.
func (c *Client) answered(q delta.Query) {
	switch q := q.(type) {
	case *delta.SignOnResponse:
		c.participate(q.ParticipationId)
	case *delta.SignOffResponse:
		c.participate("")
	case *delta.SubscribeToPartitionContentsResponse:
		if len(q.Contents.Nodes) == 0 {
			break
		}
		if _, known := c.forest.Partition(model.NodeId(q.Contents.Nodes[0].Id)); known {
			break
		}
		if err := c.replicate(c.ctx, &delta.PartitionAdded{NewPartition: q.Contents}); err != nil {
			c.report(errors.Wrap(err, "can not take partition"))
		}
	case *delta.UnsubscribeFromPartitionContentsResponse:
		if id, ok := c.unsubscribing.LoadAndDelete(q.QueryId); ok {
			if _, known := c.forest.Partition(id); known {
				if err := c.replicate(c.ctx, &delta.PartitionDeleted{DeletedPartition: id}); err != nil {
					c.report(errors.Wrap(err, "can not drop partition"))
				}
			}
		}
	}
	if ch, ok := c.pending.LoadAndDelete(q.Id()); ok {
		ch <- q
	}
}

// participate credits later local edits to participation.
func (c *Client) participate(participation string) {
	_ = c.rep.Exclusive(func() error {
		c.mapper.Participation = participation
		if participation == "" {
			c.participation.Store(nil)
		} else {
			c.participation.Store(&participation)
		}
		return nil
	})
}

// replicate applies e without sending it back.
func (c *Client) replicate(ctx context.Context, e delta.Event) error {
	_, err := c.rep.Replicate(ctx, replicator.Change{
		Exclusive: true,
		Resolve: func() (model.Notification, error) {
			return c.mapper.EventToNotification(e)
		},
		Discard: c.mapper.Discard,
	})
	return err
}
