package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrClosed   = errors.New("lwdelta: outbound queue is closed")
	ErrOverflow = errors.New("lwdelta: outbound queue is overflowed")
)

type accumulator[T ~[][]byte] struct {
	data T
	size int
}

// FDQueue is a bounded byte-record queue between any number of writers
// (Drain) and one reader loop (Feed). A writer that can not place its
// records within the time limit marks the queue overflowed for good: a
// client that stopped reading is cut off instead of stalling the others.
type FDQueue[T ~[][]byte] struct {
	ctx        context.Context
	close      context.CancelFunc
	timelimit  time.Duration
	batchSize  int
	maxSize    int
	accum      atomic.Pointer[accumulator[T]]
	overflowed atomic.Bool

	readLock  chan struct{}
	writeLock chan struct{}
	syncLock  chan struct{}

	writeSignal atomic.Pointer[chan struct{}]
	readSignal  atomic.Pointer[chan struct{}]
}

// NewFDQueue makes a queue holding up to limit bytes. Feed returns as soon
// as batchSize bytes are gathered or timelimit passes.
func NewFDQueue[T ~[][]byte](limit int, timelimit time.Duration, batchSize int) *FDQueue[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &FDQueue[T]{
		ctx:       ctx,
		close:     cancel,
		timelimit: timelimit,
		maxSize:   limit,
		batchSize: batchSize,
		readLock:  make(chan struct{}, 1),
		writeLock: make(chan struct{}, 1),
		syncLock:  make(chan struct{}, 1),
	}
}

func (q *FDQueue[T]) Close() error {
	q.close()
	q.accum.Store(nil)
	return nil
}

func (q *FDQueue[T]) Size() int {
	if q.ctx.Err() != nil {
		return 0
	}
	if a := q.accum.Load(); a != nil {
		return a.size
	}
	return 0
}

func (q *FDQueue[T]) Overflowed() bool {
	return q.overflowed.Load()
}

type wait int

const (
	waitTimeout wait = iota
	waitOK
	waitCanceled
)

func (q *FDQueue[T]) await(ctx context.Context, timer *time.Timer, lock, signal chan struct{}) wait {
	select {
	case lock <- struct{}{}:
		return waitOK
	case <-signal:
		return waitOK
	case <-q.ctx.Done():
		return waitCanceled
	case <-ctx.Done():
		return waitCanceled
	case <-timer.C:
		return waitTimeout
	}
}

func (q *FDQueue[T]) lock(ctx context.Context, timer *time.Timer, lock chan struct{}) wait {
	return q.await(ctx, timer, lock, nil)
}

// writerFailed converts a failed wait of a writer into its result.
func (q *FDQueue[T]) writerFailed(w wait) error {
	if w == waitTimeout {
		q.overflowed.Store(true)
		return ErrOverflow
	}
	return nil
}

// Drain enqueues recs in order; records of concurrent writers never
// interleave within one call.
func (q *FDQueue[T]) Drain(ctx context.Context, recs T) error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	if q.overflowed.Load() {
		return ErrOverflow
	}
	timer := time.NewTimer(q.timelimit)
	defer timer.Stop()

	if w := q.lock(ctx, timer, q.writeLock); w != waitOK {
		return q.writerFailed(w)
	}
	defer func() { <-q.writeLock }()
	if w := q.lock(ctx, timer, q.syncLock); w != waitOK {
		return q.writerFailed(w)
	}

	for len(recs) > 0 {
		prev := q.accum.Load()
		cur := prev
		if cur == nil {
			cur = &accumulator[T]{}
		}
		free := q.maxSize - cur.size
		fits, bytes := 0, 0
		for _, rec := range recs {
			if len(rec) > free {
				break
			}
			fits++
			free -= len(rec)
			bytes += len(rec)
		}
		if fits > 0 {
			next := &accumulator[T]{
				data: append(cur.data, recs[:fits]...),
				size: cur.size + bytes,
			}
			if q.accum.CompareAndSwap(prev, next) {
				recs = recs[fits:]
				if s := q.readSignal.Swap(nil); s != nil {
					*s <- struct{}{}
				}
				if len(recs) == 0 {
					break
				}
			}
		}
		// full: let the reader in and wait until it takes something
		signal := make(chan struct{}, 1)
		q.writeSignal.Store(&signal)
		<-q.syncLock
		if w := q.await(ctx, timer, nil, signal); w != waitOK {
			return q.writerFailed(w)
		}
		if w := q.lock(ctx, timer, q.syncLock); w != waitOK {
			return q.writerFailed(w)
		}
	}
	<-q.syncLock
	return nil
}

// Feed returns the next batch. On timeout it returns whatever it gathered,
// possibly nothing, with a nil error.
func (q *FDQueue[T]) Feed(ctx context.Context) (recs T, err error) {
	if q.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if q.overflowed.Load() {
		return nil, ErrOverflow
	}
	timer := time.NewTimer(q.timelimit)
	defer timer.Stop()

	if q.lock(ctx, timer, q.readLock) != waitOK {
		return
	}
	defer func() { <-q.readLock }()
	if q.lock(ctx, timer, q.syncLock) != waitOK {
		return
	}

	payload := 0
	for {
		if data := q.accum.Load(); data != nil {
			read, taken := 0, 0
			for _, rec := range data.data {
				recs = append(recs, rec)
				payload += len(rec)
				taken += len(rec)
				read++
				if payload >= q.batchSize {
					break
				}
			}
			data.data = data.data[read:]
			data.size -= taken
			if s := q.writeSignal.Swap(nil); s != nil {
				*s <- struct{}{}
			}
			if payload >= q.batchSize {
				<-q.syncLock
				return recs, nil
			}
		}
		signal := make(chan struct{}, 1)
		q.readSignal.Store(&signal)
		<-q.syncLock
		if q.await(ctx, timer, nil, signal) != waitOK {
			return
		}
		if q.lock(ctx, timer, q.syncLock) != waitOK {
			return
		}
	}
}
