// Package tcpconn carries delta messages over TCP or TLS links, one 'M'
// TLV record of JSON per message.
package tcpconn

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/connector"
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/network"
	"github.com/drpcorg/lwdelta/protocol"
	"github.com/drpcorg/lwdelta/utils"
	perrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	transport = "tcp"
	message   = 'M'
)

type Options struct {
	QueueLimit int
	// SendTimeout is how long a sender waits for room in a link's queue
	// before the link is considered stuck.
	SendTimeout time.Duration
	Logger      utils.Logger
	Net         []network.NetOpt
}

func (o *Options) SetDefaults() {
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

// session is the protocol handler of one link.
type session struct {
	name    string
	out     *utils.FDQueue[protocol.Records]
	deliver func(ctx context.Context, c delta.Content)
	log     utils.Logger
}

func newSession(name string, opts *Options, deliver func(ctx context.Context, c delta.Content)) *session {
	return &session{
		name:    name,
		out:     utils.NewFDQueue[protocol.Records](opts.QueueLimit, opts.SendTimeout, 1),
		deliver: deliver,
		log:     opts.Logger,
	}
}

func (s *session) GetTraceId() string {
	return s.name
}

func (s *session) Feed(ctx context.Context) (protocol.Records, error) {
	return s.out.Feed(ctx)
}

func (s *session) Drain(ctx context.Context, recs protocol.Records) error {
	for _, rec := range recs {
		body, _, err := protocol.TakeWary(message, rec)
		if err != nil {
			decodeFailure(s.log, s.name, err)
			continue
		}
		c, err := delta.Decode(body)
		if err != nil {
			decodeFailure(s.log, s.name, err)
			continue
		}
		connector.MessagesIn.WithLabelValues(transport).Inc()
		s.deliver(ctx, c)
	}
	return nil
}

func (s *session) Close() error {
	return s.out.Close()
}

func (s *session) send(ctx context.Context, c delta.Content) error {
	data, err := delta.Encode(c)
	if err != nil {
		return err
	}
	if err := s.out.Drain(ctx, protocol.Records{protocol.Record(message, data)}); err != nil {
		return perrors.Wrapf(err, "send %s to %s", c.Kind(), s.name)
	}
	connector.MessagesOut.WithLabelValues(transport).Inc()
	return nil
}

func decodeFailure(log utils.Logger, name string, err error) {
	connector.DecodeFailures.WithLabelValues(transport).Inc()
	log.Warn("tcpconn: undecodable record", "link", name, "err", err)
}

// Server accepts clients; each link is a client named after it.
type Server struct {
	connector.Handlers
	opts     Options
	net      *network.Net
	sessions *xsync.MapOf[string, *session]
}

func NewServer(opts Options) *Server {
	opts.SetDefaults()
	s := &Server{opts: opts, sessions: xsync.NewMapOf[string, *session]()}
	s.net = network.NewNet(opts.Logger, s.install, s.destroy, opts.Net...)
	return s
}

func (s *Server) install(name string) protocol.FeedDrainCloserTraced {
	sess := newSession(name, &s.opts, func(ctx context.Context, c delta.Content) {
		s.Received(ctx, name, c)
	})
	s.sessions.Store(name, sess)
	connector.Connected.WithLabelValues(transport).Inc()
	return sess
}

func (s *Server) destroy(name string, _ protocol.Traced) {
	if _, ok := s.sessions.LoadAndDelete(name); ok {
		connector.Connected.WithLabelValues(transport).Dec()
		s.Disconnected(name)
	}
}

// Listen accepts links on addr ("tcp://host:port" or "tls://host:port").
func (s *Server) Listen(addr string) error {
	return s.net.Listen(addr)
}

// Addr is the address a Listen call bound.
func (s *Server) Addr(addr string) (net.Addr, bool) {
	return s.net.Addr(addr)
}

func (s *Server) SendToClient(ctx context.Context, clientId string, c delta.Content) error {
	sess, ok := s.sessions.Load(clientId)
	if !ok {
		return perrors.Wrapf(connector.ErrUnknownClient, "%s", clientId)
	}
	return sess.send(ctx, c)
}

func (s *Server) SendToAllClients(ctx context.Context, c delta.Content) error {
	var errs []error
	s.sessions.Range(func(_ string, sess *session) bool {
		if err := sess.send(ctx, c); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

func (s *Server) Close() error {
	return s.net.Close()
}

// Client is the client end of a link. It redials a dropped link; messages
// queued on the dropped link are lost.
type Client struct {
	opts    Options
	net     *network.Net
	pending atomic.Pointer[session]
	current atomic.Pointer[session]
	receive atomic.Pointer[func(ctx context.Context, c delta.Content)]
}

func Dial(addr string, opts Options) (*Client, error) {
	opts.SetDefaults()
	c := &Client{opts: opts}
	first := c.newSession(addr)
	c.pending.Store(first)
	c.current.Store(first)
	c.net = network.NewNet(opts.Logger, c.install, func(string, protocol.Traced) {}, opts.Net...)
	if err := c.net.Connect(addr); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) newSession(name string) *session {
	return newSession(name, &c.opts, func(ctx context.Context, content delta.Content) {
		if fn := c.receive.Load(); fn != nil {
			(*fn)(ctx, content)
		}
	})
}

func (c *Client) install(name string) protocol.FeedDrainCloserTraced {
	sess := c.pending.Swap(nil)
	if sess == nil {
		sess = c.newSession(name)
		c.current.Store(sess)
	}
	return sess
}

func (c *Client) Send(ctx context.Context, content delta.Content) error {
	return c.current.Load().send(ctx, content)
}

func (c *Client) OnReceive(fn func(ctx context.Context, c delta.Content)) {
	c.receive.Store(&fn)
}

func (c *Client) Close() error {
	err := c.net.Close()
	_ = c.current.Load().Close()
	return err
}
