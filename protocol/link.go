package protocol

import (
	"context"
	"io"
)

// Feeder hands out the next batch of records. An empty batch with a nil
// error means nothing was ready in time.
type Feeder interface {
	Feed(ctx context.Context) (recs Records, err error)
}

// Drainer takes a batch of records.
type Drainer interface {
	Drain(ctx context.Context, recs Records) error
}

type FeedDrainCloser interface {
	Feeder
	Drainer
	io.Closer
}

// Traced names a record stream in logs.
type Traced interface {
	GetTraceId() string
}

// FeedDrainCloserTraced is what a network link expects of its handler.
type FeedDrainCloserTraced interface {
	FeedDrainCloser
	Traced
}

// Records is a batch of whole TLV records; it converts to net.Buffers for
// vectored writes.
type Records [][]byte

func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
