// Package connector carries delta messages between a repository and its
// clients. A Connector only moves messages: sequencing, subscriptions and
// fan-out policy belong to the repository.
package connector

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/drpcorg/lwdelta/delta"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrUnknownClient   = errors.New("lwdelta: no such client")
	ErrDuplicateClient = errors.New("lwdelta: client id already connected")
	ErrClosed          = errors.New("lwdelta: connector is closed")
)

type ReceiveFunc func(ctx context.Context, clientId string, c delta.Content)

type DisconnectFunc func(clientId string)

// Connector is the repository side of a transport.
type Connector interface {
	// SendToClient hands c to the transport of one client. It does not
	// wait for the client to read it.
	SendToClient(ctx context.Context, clientId string, c delta.Content) error
	// SendToAllClients hands the same c to every connected client.
	SendToAllClients(ctx context.Context, c delta.Content) error
	OnReceive(fn ReceiveFunc)
	OnDisconnect(fn DisconnectFunc)
	Close() error
}

// Handlers holds the callbacks of a Connector. Messages of one client are
// reported in the order the client sent them.
type Handlers struct {
	receive    atomic.Pointer[ReceiveFunc]
	disconnect atomic.Pointer[DisconnectFunc]
}

func (h *Handlers) OnReceive(fn ReceiveFunc) {
	h.receive.Store(&fn)
}

func (h *Handlers) OnDisconnect(fn DisconnectFunc) {
	h.disconnect.Store(&fn)
}

func (h *Handlers) Received(ctx context.Context, clientId string, c delta.Content) {
	if fn := h.receive.Load(); fn != nil {
		(*fn)(ctx, clientId, c)
	}
}

func (h *Handlers) Disconnected(clientId string) {
	if fn := h.disconnect.Load(); fn != nil {
		(*fn)(clientId)
	}
}

var MessagesIn = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "connector",
	Name:      "messages_in",
}, []string{"transport"})

var MessagesOut = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "connector",
	Name:      "messages_out",
}, []string{"transport"})

var DecodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lwdelta",
	Subsystem: "connector",
	Name:      "decode_failures",
}, []string{"transport"})

var Connected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "lwdelta",
	Subsystem: "connector",
	Name:      "connected_clients",
}, []string{"transport"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{MessagesIn, MessagesOut, DecodeFailures, Connected}
}
