package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drpcorg/lwdelta/protocol"
	"github.com/drpcorg/lwdelta/utils"
)

var ErrRecordTooLarge = errors.New("lwdelta: record does not fit the read buffer")

// Peer pumps records between one link and its protocol handler: inbound
// bytes are cut into whole TLV records and drained into the handler,
// outbound records are fed from it and written with vectored I/O.
type Peer struct {
	closed         atomic.Bool
	closeOnce      sync.Once
	done           sync.WaitGroup
	writeBatchSize *utils.AvgVal
	incoming       atomic.Int32

	conn          net.Conn
	inout         protocol.FeedDrainCloserTraced
	bufferMaxSize int
	writeTimeout  time.Duration
}

func (p *Peer) GetTraceId() string {
	return p.inout.GetTraceId()
}

// IncomingBuffered is the size of a record still being received.
func (p *Peer) IncomingBuffered() int32 {
	return p.incoming.Load()
}

func (p *Peer) keepRead(ctx context.Context) error {
	var buf bytes.Buffer
	for !p.closed.Load() && ctx.Err() == nil {
		if buf.Available() < TYPICAL_MTU {
			buf.Grow(TYPICAL_MTU)
		}
		idle := buf.AvailableBuffer()[:buf.Available()]
		n, err := p.conn.Read(idle)
		if n > 0 {
			buf.Write(idle[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		recs, err := protocol.Split(&buf)
		if err != nil && !errors.Is(err, protocol.ErrIncomplete) {
			return err
		}
		if buf.Len() > p.bufferMaxSize {
			return ErrRecordTooLarge
		}
		p.incoming.Store(int32(buf.Len()))
		if len(recs) > 0 {
			if err := p.inout.Drain(ctx, recs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Peer) keepWrite(ctx context.Context) error {
	for !p.closed.Load() && ctx.Err() == nil {
		recs, err := p.inout.Feed(ctx)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			continue
		}
		p.writeBatchSize.Add(float64(recs.TotalLen()))
		if p.writeTimeout != 0 {
			_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		}
		b := net.Buffers(recs)
		for len(b) > 0 {
			if _, err := b.WriteTo(p.conn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keep runs both directions until either of them stops. The link is
// closed once the writer is done, which also ends the reader.
func (p *Peer) Keep(ctx context.Context) (rerr, werr, cerr error) {
	if p.closed.Load() {
		return nil, nil, nil
	}
	p.done.Add(1)
	defer p.done.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrCh, writeErrCh := make(chan error, 1), make(chan error, 1)
	go func() { readErrCh <- p.keepRead(ctx) }()
	go func() { writeErrCh <- p.keepWrite(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case rerr = <-readErrCh:
			if errors.Is(rerr, net.ErrClosed) {
				rerr = nil
			}
			cancel()
			// the writer may sit in Feed; closing the handler wakes it
			_ = p.inout.Close()
		case werr = <-writeErrCh:
			if errors.Is(werr, net.ErrClosed) {
				werr = nil
			}
			cerr = p.conn.Close()
			if errors.Is(cerr, net.ErrClosed) {
				cerr = nil
			}
		}
		p.closed.Store(true)
	}
	return
}

// Close ends the link and releases the handler. It waits for Keep.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		_ = p.conn.Close()
		_ = p.inout.Close()
	})
	p.done.Wait()
}
