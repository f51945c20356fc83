package connector

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/utils"
	perrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type frames [][]byte

type MemoryOptions struct {
	// QueueLimit caps the bytes waiting in each direction of a client.
	QueueLimit int
	// SendTimeout is how long a sender waits for room before the client
	// is considered stuck.
	SendTimeout time.Duration
	Logger      utils.Logger
}

func (o *MemoryOptions) SetDefaults() {
	if o.QueueLimit <= 0 {
		o.QueueLimit = 16 << 20
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = time.Second
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
}

// Memory connects clients living in the same process. Messages still go
// through the wire codec, in both directions.
type Memory struct {
	Handlers
	opts    MemoryOptions
	clients *xsync.MapOf[string, *MemoryClient]
	closed  atomic.Bool
}

func NewMemory(opts MemoryOptions) *Memory {
	opts.SetDefaults()
	return &Memory{opts: opts, clients: xsync.NewMapOf[string, *MemoryClient]()}
}

// Dial connects a new client end named clientId.
func (m *Memory) Dial(clientId string) (*MemoryClient, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &MemoryClient{
		id:       clientId,
		hub:      m,
		ctx:      ctx,
		cancel:   cancel,
		toServer: utils.NewFDQueue[frames](m.opts.QueueLimit, m.opts.SendTimeout, 1),
		toClient: utils.NewFDQueue[frames](m.opts.QueueLimit, m.opts.SendTimeout, 1),
	}
	if _, loaded := m.clients.LoadOrStore(clientId, c); loaded {
		cancel()
		return nil, perrors.Wrapf(ErrDuplicateClient, "%s", clientId)
	}
	Connected.WithLabelValues("memory").Inc()
	go c.pump(c.toServer, func(ctx context.Context, content delta.Content) {
		MessagesIn.WithLabelValues("memory").Inc()
		m.Received(ctx, clientId, content)
	})
	go c.pump(c.toClient, func(ctx context.Context, content delta.Content) {
		if fn := c.receive.Load(); fn != nil {
			(*fn)(ctx, content)
		}
	})
	return c, nil
}

func (m *Memory) SendToClient(ctx context.Context, clientId string, content delta.Content) error {
	c, ok := m.clients.Load(clientId)
	if !ok {
		return perrors.Wrapf(ErrUnknownClient, "%s", clientId)
	}
	if err := c.push(ctx, c.toClient, content); err != nil {
		return err
	}
	MessagesOut.WithLabelValues("memory").Inc()
	return nil
}

func (m *Memory) SendToAllClients(ctx context.Context, content delta.Content) error {
	var errs []error
	m.clients.Range(func(id string, _ *MemoryClient) bool {
		if err := m.SendToClient(ctx, id, content); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

// Clients lists the ids of connected clients.
func (m *Memory) Clients() []string {
	var ids []string
	m.clients.Range(func(id string, _ *MemoryClient) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.clients.Range(func(_ string, c *MemoryClient) bool {
		_ = c.Close()
		return true
	})
	return nil
}

// MemoryClient is the client end of a Memory connection.
type MemoryClient struct {
	id       string
	hub      *Memory
	ctx      context.Context
	cancel   context.CancelFunc
	toServer *utils.FDQueue[frames]
	toClient *utils.FDQueue[frames]
	receive  atomic.Pointer[func(ctx context.Context, c delta.Content)]
	closed   atomic.Bool
}

func (c *MemoryClient) Id() string {
	return c.id
}

func (c *MemoryClient) Send(ctx context.Context, content delta.Content) error {
	return c.push(ctx, c.toServer, content)
}

func (c *MemoryClient) OnReceive(fn func(ctx context.Context, c delta.Content)) {
	c.receive.Store(&fn)
}

// Close disconnects the client. The repository hears of it through
// OnDisconnect.
func (c *MemoryClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()
	_ = c.toServer.Close()
	_ = c.toClient.Close()
	c.hub.clients.Compute(c.id, func(old *MemoryClient, loaded bool) (*MemoryClient, bool) {
		return old, !loaded || old == c
	})
	Connected.WithLabelValues("memory").Dec()
	c.hub.Disconnected(c.id)
	return nil
}

func (c *MemoryClient) push(ctx context.Context, q *utils.FDQueue[frames], content delta.Content) error {
	if c.closed.Load() {
		return ErrClosed
	}
	data, err := delta.Encode(content)
	if err != nil {
		return err
	}
	if err := q.Drain(ctx, frames{data}); err != nil {
		if errors.Is(err, utils.ErrOverflow) {
			c.hub.opts.Logger.Warn("connector: memory client stopped reading", "client", c.id)
			go c.Close()
		}
		return perrors.Wrapf(err, "send %s to %s", content.Kind(), c.id)
	}
	return nil
}

func (c *MemoryClient) pump(q *utils.FDQueue[frames], deliver func(ctx context.Context, content delta.Content)) {
	for c.ctx.Err() == nil {
		recs, err := q.Feed(c.ctx)
		if err != nil {
			return
		}
		for _, rec := range recs {
			content, err := delta.Decode(rec)
			if err != nil {
				DecodeFailures.WithLabelValues("memory").Inc()
				c.hub.opts.Logger.Warn("connector: undecodable message", "client", c.id, "err", err)
				continue
			}
			deliver(c.ctx, content)
		}
	}
}
