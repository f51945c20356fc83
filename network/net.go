// Package network streams TLV records over TCP or TLS links.
//
// A Net listens and dials; every link it establishes becomes a Peer that
// pumps records between the socket and a protocol handler obtained from
// the install callback. Reading and writing run in separate goroutines so
// a slow reader never holds up writes to it, and the other way round.
// Outbound links are redialed with exponential backoff until the Net is
// closed or the link is disconnected by name.
package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/drpcorg/lwdelta/protocol"
	"github.com/drpcorg/lwdelta/utils"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type ConnType = uint

var (
	ErrAddressInvalid    = errors.New("lwdelta: the address is invalid")
	ErrAddressDuplicated = errors.New("lwdelta: the address is already used")
	ErrAddressUnknown    = errors.New("lwdelta: address unknown")
)

const (
	TCP ConnType = iota + 1
	TLS
)

const (
	TYPICAL_MTU      = 1500
	MAX_RETRY_PERIOD = time.Minute
	MIN_RETRY_PERIOD = time.Second / 2
)

type InstallCallback func(name string) protocol.FeedDrainCloserTraced
type DestroyCallback func(name string, p protocol.Traced)

type Net struct {
	wg        sync.WaitGroup
	log       utils.Logger
	onInstall InstallCallback
	onDestroy DestroyCallback

	// a nil peer marks a name that is still dialing
	conns   *xsync.MapOf[string, *Peer]
	listens *xsync.MapOf[string, net.Listener]
	dialing *xsync.MapOf[string, context.CancelFunc]
	ctx     context.Context
	cancel  context.CancelFunc

	tlsConfig     *tls.Config
	writeTimeout  time.Duration
	bufferMaxSize int
}

type NetOpt interface {
	Apply(*Net)
}

type NetWriteTimeoutOpt struct {
	Timeout time.Duration
}

func (opt *NetWriteTimeoutOpt) Apply(n *Net) {
	n.writeTimeout = opt.Timeout
}

type NetTlsConfigOpt struct {
	Config *tls.Config
}

func (opt *NetTlsConfigOpt) Apply(n *Net) {
	n.tlsConfig = opt.Config
}

// NetReadBufferOpt bounds the bytes a peer buffers while waiting for the
// rest of a record.
type NetReadBufferOpt struct {
	MaxSize int
}

func (opt *NetReadBufferOpt) Apply(n *Net) {
	n.bufferMaxSize = opt.MaxSize
}

func NewNet(log utils.Logger, install InstallCallback, destroy DestroyCallback, opts ...NetOpt) *Net {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Net{
		log:           log,
		onInstall:     install,
		onDestroy:     destroy,
		conns:         xsync.NewMapOf[string, *Peer](),
		listens:       xsync.NewMapOf[string, net.Listener](),
		dialing:       xsync.NewMapOf[string, context.CancelFunc](),
		ctx:           ctx,
		cancel:        cancel,
		bufferMaxSize: 16 << 20,
	}
	for _, o := range opts {
		o.Apply(n)
	}
	return n
}

// WriteBatches reports the average write batch of every live peer.
func (n *Net) WriteBatches() map[string]float64 {
	stats := make(map[string]float64)
	n.conns.Range(func(name string, peer *Peer) bool {
		if peer != nil {
			stats[name] = peer.writeBatchSize.Val()
		}
		return true
	})
	return stats
}

func (n *Net) Close() error {
	n.cancel()
	n.listens.Range(func(_ string, l net.Listener) bool {
		if l != nil {
			_ = l.Close()
		}
		return true
	})
	n.conns.Range(func(_ string, p *Peer) bool {
		if p != nil {
			p.Close()
		}
		return true
	})
	n.wg.Wait()
	return nil
}

// Connect keeps a link to addr, named addr, until Disconnect or Close.
func (n *Net) Connect(addr string) error {
	if _, _, err := parseAddr(addr); err != nil {
		return err
	}
	if _, loaded := n.conns.LoadOrStore(addr, nil); loaded {
		return ErrAddressDuplicated
	}
	ctx, cancel := context.WithCancel(n.ctx)
	n.dialing.Store(addr, cancel)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.keepConnecting(ctx, addr)
	}()
	return nil
}

func (n *Net) Disconnect(name string) error {
	p, ok := n.conns.LoadAndDelete(name)
	if !ok {
		return ErrAddressUnknown
	}
	if cancel, ok := n.dialing.LoadAndDelete(name); ok {
		cancel()
	}
	if p != nil {
		p.Close()
	}
	return nil
}

// Listen accepts links on addr, given as "tcp://host:port" or
// "tls://host:port". Addr returns the bound address.
func (n *Net) Listen(addr string) error {
	if _, loaded := n.listens.LoadOrStore(addr, nil); loaded {
		return ErrAddressDuplicated
	}
	listener, err := n.createListener(addr)
	if err != nil {
		n.listens.Delete(addr)
		return err
	}
	n.listens.Store(addr, listener)
	n.log.Info("net: listening", "addr", addr, "bound", listener.Addr().String())
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.keepListening(addr, listener)
	}()
	return nil
}

func (n *Net) Addr(addr string) (net.Addr, bool) {
	l, ok := n.listens.Load(addr)
	if !ok || l == nil {
		return nil, false
	}
	return l.Addr(), true
}

func (n *Net) Unlisten(addr string) error {
	l, ok := n.listens.LoadAndDelete(addr)
	if !ok || l == nil {
		return ErrAddressUnknown
	}
	return l.Close()
}

func (n *Net) keepConnecting(ctx context.Context, addr string) {
	backoff := MIN_RETRY_PERIOD
	for ctx.Err() == nil {
		conn, err := n.createConn(ctx, addr)
		if err != nil {
			n.log.Warn("net: couldn't connect", "addr", addr, "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(MAX_RETRY_PERIOD, backoff*2)
			continue
		}
		n.log.Info("net: connected", "addr", addr)
		backoff = MIN_RETRY_PERIOD
		if !n.keepPeer(ctx, addr, conn) {
			return
		}
	}
}

func (n *Net) keepListening(addr string, listener net.Listener) {
	for n.ctx.Err() == nil {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			n.log.Warn("net: couldn't accept", "addr", addr, "err", err)
			continue
		}
		remote := conn.RemoteAddr().String()
		n.log.Info("net: accepted", "addr", addr, "remote", remote)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.keepPeer(n.ctx, fmt.Sprintf("%s@%s", uuid.Must(uuid.NewV7()).String(), remote), conn)
		}()
	}
	n.listens.Compute(addr, func(old net.Listener, loaded bool) (net.Listener, bool) {
		return old, !loaded || old == listener
	})
	n.log.Info("net: listener closed", "addr", addr)
}

// keepPeer serves one link until it breaks. It reports whether the name
// is still wanted, that is whether a dialer should try again.
func (n *Net) keepPeer(ctx context.Context, name string, conn net.Conn) bool {
	peer := &Peer{
		inout:          n.onInstall(name),
		conn:           conn,
		writeTimeout:   n.writeTimeout,
		bufferMaxSize:  n.bufferMaxSize,
		writeBatchSize: utils.NewAvgVal(utils.DefaultAvgWeight),
	}
	wanted := true
	if _, loaded := n.conns.LoadOrStore(name, peer); loaded {
		// a dialer placeholder; swap it for the live peer unless it is gone
		n.conns.Compute(name, func(old *Peer, loaded bool) (*Peer, bool) {
			if !loaded {
				wanted = false
				return nil, true
			}
			return peer, false
		})
	}
	if !wanted {
		peer.Close()
		n.onDestroy(name, peer)
		return false
	}

	readErr, writeErr, closeErr := peer.Keep(ctx)
	if readErr != nil {
		n.log.Warn("net: couldn't read from peer", "name", name, "err", readErr, "trace_id", peer.GetTraceId())
	}
	if writeErr != nil {
		n.log.Warn("net: couldn't write to peer", "name", name, "err", writeErr, "trace_id", peer.GetTraceId())
	}
	if closeErr != nil {
		n.log.Warn("net: couldn't close peer", "name", name, "err", closeErr, "trace_id", peer.GetTraceId())
	}
	peer.Close()
	n.conns.Compute(name, func(old *Peer, loaded bool) (*Peer, bool) {
		if !loaded {
			wanted = false
			return nil, true
		}
		if old != peer {
			return old, false
		}
		if _, dialed := n.dialing.Load(name); dialed {
			return nil, false
		}
		return nil, true
	})
	n.onDestroy(name, peer)
	return wanted && ctx.Err() == nil
}

func (n *Net) createListener(addr string) (net.Listener, error) {
	connType, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	config := net.ListenConfig{}
	listener, err := config.Listen(n.ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if connType == TLS {
		listener = tls.NewListener(listener, n.tlsConfig)
	}
	return listener, nil
}

func (n *Net) createConn(ctx context.Context, addr string) (net.Conn, error) {
	connType, address, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if connType == TLS {
		d := tls.Dialer{Config: n.tlsConfig}
		return d.DialContext(ctx, "tcp", address)
	}
	d := net.Dialer{Timeout: time.Minute}
	return d.DialContext(ctx, "tcp", address)
}

// parseAddr splits "tcp://host:port" into its scheme and address. A bare
// "host:port" is TCP.
func parseAddr(addr string) (ConnType, string, error) {
	if !strings.Contains(addr, "://") {
		return TCP, addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return TCP, "", err
	}
	var conn ConnType
	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		conn = TCP
	case "tls":
		conn = TLS
	default:
		return conn, addr, ErrAddressInvalid
	}
	return conn, u.Host, nil
}
