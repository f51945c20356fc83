package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Headers(t *testing.T) {
	assert.Equal(t, "212", string(Record('m', []byte("12"))))
	assert.Equal(t, []byte{'m', 2, '1', '2'}, Record('M', []byte("12")))

	long := Record('M', []byte(strings.Repeat("x", 300)))
	assert.Equal(t, byte('M'), long[0])
	assert.Equal(t, []byte{44, 1, 0, 0}, long[1:5])
	assert.Len(t, long, 305)

	assert.Panics(t, func() { Record('1', nil) })
}

func TestTakeWary(t *testing.T) {
	data := append(Record('M', []byte("hello")), Record('M', []byte("world"))...)
	body, rest, err := TakeWary('M', data)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	body, rest, err = TakeWary('M', rest)
	require.NoError(t, err)
	assert.Equal(t, "world", string(body))
	assert.Empty(t, rest)

	_, _, err = TakeWary('M', Record('H', []byte("hello")))
	assert.Equal(t, ErrBadRecord, err)
	_, _, err = TakeWary('M', data[:3])
	assert.Equal(t, ErrIncomplete, err)
}

func TestSplit_Partial(t *testing.T) {
	first := Record('M', []byte("first"))
	second := Record('M', []byte(strings.Repeat("y", 400)))
	var buf bytes.Buffer
	buf.Write(first)
	buf.Write(second[:100])

	recs, err := Split(&buf)
	assert.True(t, errors.Is(err, ErrIncomplete))
	require.Len(t, recs, 1)
	assert.Equal(t, first, recs[0])
	assert.Equal(t, 100, buf.Len())

	buf.Write(second[100:])
	recs, err = Split(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, second, recs[0])
	assert.Equal(t, int64(len(second)), recs.TotalLen())

	buf.Reset()
	buf.WriteString("!garbage")
	_, err = Split(&buf)
	assert.Equal(t, ErrBadRecord, err)
}
