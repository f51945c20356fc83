// Package wsconn carries delta messages over websockets, one JSON message
// per text frame.
package wsconn

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/connector"
	"github.com/drpcorg/lwdelta/delta"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	perrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

const transport = "websocket"

type frames [][]byte

type Options struct {
	QueueLimit   int
	SendTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       utils.Logger
	CheckOrigin  func(r *http.Request) bool
}

func (o *Options) SetDefaults() {
	if o.QueueLimit <= 0 {
		o.QueueLimit = 16 << 20
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
}

type conn struct {
	id     string
	ws     *websocket.Conn
	out    *utils.FDQueue[frames]
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Server is a Connector whose clients come in through an HTTP endpoint.
// A client names itself with the clientId query parameter or gets a
// random id.
type Server struct {
	connector.Handlers
	opts     Options
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[string, *conn]
	closed   atomic.Bool
	wg       sync.WaitGroup
}

func NewServer(opts Options) *Server {
	opts.SetDefaults()
	return &Server{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		clients:  xsync.NewMapOf[string, *conn](),
	}
}

func (s *Server) Register(r gin.IRoutes, path string) {
	r.GET(path, s.Handler())
}

func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.closed.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		id := c.Query("clientId")
		if id == "" {
			id = uuid.NewString()
		}
		if _, ok := s.clients.Load(id); ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": connector.ErrDuplicateClient.Error()})
			return
		}
		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.opts.Logger.Warn("wsconn: upgrade failed", "client", id, "err", err)
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		cn := &conn{
			id:     id,
			ws:     ws,
			out:    utils.NewFDQueue[frames](s.opts.QueueLimit, s.opts.SendTimeout, 1),
			ctx:    ctx,
			cancel: cancel,
		}
		if _, loaded := s.clients.LoadOrStore(id, cn); loaded {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client id already connected"),
				time.Now().Add(time.Second))
			_ = ws.Close()
			cancel()
			return
		}
		connector.Connected.WithLabelValues(transport).Inc()
		s.opts.Logger.Info("wsconn: client connected", "client", id, "remote", c.Request.RemoteAddr)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.keepWrite(cn)
		}()
		s.keepRead(cn)
		s.drop(cn)
	}
}

func (s *Server) keepRead(cn *conn) {
	for cn.ctx.Err() == nil {
		kind, data, err := cn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				cn.ctx.Err() == nil {
				s.opts.Logger.Info("wsconn: client read failed", "client", cn.id, "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		content, err := delta.Decode(data)
		if err != nil {
			connector.DecodeFailures.WithLabelValues(transport).Inc()
			s.opts.Logger.Warn("wsconn: undecodable message", "client", cn.id, "err", err)
			continue
		}
		connector.MessagesIn.WithLabelValues(transport).Inc()
		s.Received(cn.ctx, cn.id, content)
	}
}

func (s *Server) keepWrite(cn *conn) {
	for cn.ctx.Err() == nil {
		recs, err := cn.out.Feed(cn.ctx)
		if err != nil {
			break
		}
		for _, rec := range recs {
			_ = cn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := cn.ws.WriteMessage(websocket.TextMessage, rec); err != nil {
				s.opts.Logger.Info("wsconn: client write failed", "client", cn.id, "err", err)
				cn.cancel()
				_ = cn.ws.Close()
				return
			}
		}
	}
}

func (s *Server) drop(cn *conn) {
	cn.once.Do(func() {
		cn.cancel()
		_ = cn.out.Close()
		_ = cn.ws.Close()
		s.clients.Compute(cn.id, func(old *conn, loaded bool) (*conn, bool) {
			return old, !loaded || old == cn
		})
		connector.Connected.WithLabelValues(transport).Dec()
		s.Disconnected(cn.id)
	})
}

func (s *Server) SendToClient(ctx context.Context, clientId string, c delta.Content) error {
	cn, ok := s.clients.Load(clientId)
	if !ok {
		return perrors.Wrapf(connector.ErrUnknownClient, "%s", clientId)
	}
	data, err := delta.Encode(c)
	if err != nil {
		return err
	}
	if err := cn.out.Drain(ctx, frames{data}); err != nil {
		if errors.Is(err, utils.ErrOverflow) {
			s.opts.Logger.Warn("wsconn: client stopped reading", "client", clientId)
			_ = cn.ws.Close()
		}
		return perrors.Wrapf(err, "send %s to %s", c.Kind(), clientId)
	}
	connector.MessagesOut.WithLabelValues(transport).Inc()
	return nil
}

func (s *Server) SendToAllClients(ctx context.Context, c delta.Content) error {
	var errs []error
	s.clients.Range(func(id string, _ *conn) bool {
		if err := s.SendToClient(ctx, id, c); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.clients.Range(func(_ string, cn *conn) bool {
		_ = cn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "repository shutting down"),
			time.Now().Add(time.Second))
		cn.cancel()
		_ = cn.out.Close()
		_ = cn.ws.Close()
		return true
	})
	s.wg.Wait()
	return nil
}

// Client is the client end of a websocket.
type Client struct {
	ws        *websocket.Conn
	writeLock sync.Mutex
	receive   atomic.Pointer[func(ctx context.Context, c delta.Content)]
	ctx       context.Context
	cancel    context.CancelFunc
	log       utils.Logger
}

// Dial opens a websocket to endpoint (ws:// or wss://) as clientId.
func Dial(ctx context.Context, endpoint, clientId string, log utils.Logger) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if clientId != "" {
		q := u.Query()
		q.Set("clientId", clientId)
		u.RawQuery = q.Encode()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, perrors.Wrapf(err, "dial %s", endpoint)
	}
	if log == nil {
		log = utils.NewDefaultLogger(utils.ParseLevel("warn"))
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{ws: ws, ctx: cctx, cancel: cancel, log: log}
	go c.keepRead()
	return c, nil
}

func (c *Client) keepRead() {
	defer c.cancel()
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		content, err := delta.Decode(data)
		if err != nil {
			c.log.Warn("wsconn: undecodable message", "err", err)
			continue
		}
		if fn := c.receive.Load(); fn != nil {
			(*fn)(c.ctx, content)
		}
	}
}

func (c *Client) Send(ctx context.Context, content delta.Content) error {
	data, err := delta.Encode(content)
	if err != nil {
		return err
	}
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.ws.SetWriteDeadline(deadline)
	} else {
		_ = c.ws.SetWriteDeadline(time.Time{})
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) OnReceive(fn func(ctx context.Context, c delta.Content)) {
	c.receive.Store(&fn)
}

// Done is closed once the server side is gone.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Client) Close() error {
	c.writeLock.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeLock.Unlock()
	c.cancel()
	return c.ws.Close()
}
