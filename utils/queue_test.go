package utils

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type records [][]byte

func TestFDQueue_OrderPerWriter(t *testing.T) {
	const N = 1 << 10
	const K = 1 << 3

	queue := NewFDQueue[records](1024, time.Second, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for k := 0; k < K; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			i := uint64(k) << 32
			for n := uint64(0); n < N; n++ {
				var b [8]byte
				binary.LittleEndian.PutUint64(b[:], i|n)
				assert.NoError(t, queue.Drain(ctx, records{b[:]}))
			}
		}(k)
	}

	check := [K]int{}
	for i := 0; i < N*K; {
		recs, err := queue.Feed(ctx)
		assert.NoError(t, err)
		for _, rec := range recs {
			assert.Equal(t, 8, len(rec))
			j := binary.LittleEndian.Uint64(rec)
			k := int(j >> 32)
			n := int(j & 0xffffffff)
			assert.Equal(t, check[k], n)
			check[k] = n + 1
			i++
		}
	}
	wg.Wait()

	assert.NoError(t, queue.Close())
	assert.Equal(t, ErrClosed, queue.Drain(ctx, records{{'a'}}))
	_, err := queue.Feed(ctx)
	assert.Equal(t, ErrClosed, err)
}

func TestFDQueue_Overflow(t *testing.T) {
	queue := NewFDQueue[records](4, 20*time.Millisecond, 1)
	ctx := context.Background()

	assert.NoError(t, queue.Drain(ctx, records{[]byte("abcd")}))
	assert.Equal(t, 4, queue.Size())
	assert.Equal(t, ErrOverflow, queue.Drain(ctx, records{[]byte("e")}))
	assert.True(t, queue.Overflowed())
	_, err := queue.Feed(ctx)
	assert.Equal(t, ErrOverflow, err)
}

func TestFDQueue_FeedTimesOut(t *testing.T) {
	queue := NewFDQueue[records](1024, 10*time.Millisecond, 1)
	recs, err := queue.Feed(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, recs)
}
