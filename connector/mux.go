package connector

import (
	"context"
	"errors"

	"github.com/drpcorg/lwdelta/delta"
	perrors "github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// Mux serves one repository over several transports. A client is
// answered on the transport it last spoke on.
type Mux struct {
	Handlers
	conns []Connector
	route *xsync.MapOf[string, Connector]
}

func NewMux(conns ...Connector) *Mux {
	m := &Mux{conns: conns, route: xsync.NewMapOf[string, Connector]()}
	for _, conn := range conns {
		conn := conn
		conn.OnReceive(func(ctx context.Context, clientId string, c delta.Content) {
			m.route.Store(clientId, conn)
			m.Received(ctx, clientId, c)
		})
		conn.OnDisconnect(func(clientId string) {
			m.route.Compute(clientId, func(old Connector, loaded bool) (Connector, bool) {
				return old, !loaded || old == conn
			})
			m.Disconnected(clientId)
		})
	}
	return m
}

func (m *Mux) SendToClient(ctx context.Context, clientId string, c delta.Content) error {
	conn, ok := m.route.Load(clientId)
	if !ok {
		return perrors.Wrapf(ErrUnknownClient, "%s", clientId)
	}
	return conn.SendToClient(ctx, clientId, c)
}

func (m *Mux) SendToAllClients(ctx context.Context, c delta.Content) error {
	var errs []error
	for _, conn := range m.conns {
		if err := conn.SendToAllClients(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mux) Close() error {
	var errs []error
	for _, conn := range m.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
