// The record format follows ToyTLV (MIT licence) by Victor Grishchenko,
// https://github.com/learn-decentralized-systems/toytlv

// Package protocol frames byte records as TLV: a one letter type, a
// length and a body.
//
// Bodies under 10 bytes of a lowercase type take a single header byte
// ('0'+length, the type is lost). Bodies up to 255 bytes take two: the
// lowercase type and the length. Longer bodies take five: the uppercase
// type and a little-endian uint32 length.
//
// A link carries a stream of such records; Split cuts whole records off
// the head of a receive buffer and leaves a partial one in place.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const CaseBit uint8 = 'a' - 'A'

const maxBody = 0x7fffffff

var (
	ErrIncomplete = errors.New("lwdelta: incomplete record")
	ErrBadRecord  = errors.New("lwdelta: bad TLV record format")
)

// ProbeHeader reads the header at the start of data. lit is the record
// type, '0' for a tiny record, '-' for garbage and 0 when the header
// itself is not complete yet.
func ProbeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	switch first := data[0]; {
	case first >= '0' && first <= '9':
		return '0', 1, int(first - '0')
	case first >= 'a' && first <= 'z':
		if len(data) < 2 {
			return 0, 0, 0
		}
		return first - CaseBit, 2, int(data[1])
	case first >= 'A' && first <= 'Z':
		if len(data) < 5 {
			return 0, 0, 0
		}
		n := binary.LittleEndian.Uint32(data[1:5])
		if n > maxBody {
			return '-', 0, 0
		}
		return first, 5, int(n)
	}
	return '-', 0, 0
}

// Split takes every complete record off the head of data. A trailing
// partial record stays in data and is reported as ErrIncomplete along
// with the records before it.
func Split(data *bytes.Buffer) (recs Records, err error) {
	for data.Len() > 0 {
		lit, hdrlen, bodylen := ProbeHeader(data.Bytes())
		switch {
		case lit == '-':
			if len(recs) == 0 {
				err = ErrBadRecord
			}
			return recs, err
		case lit == 0:
			return recs, nil
		case hdrlen+bodylen > data.Len():
			return recs, fmt.Errorf("%w: %d of %d bytes", ErrIncomplete, data.Len(), hdrlen+bodylen)
		}
		rec := make([]byte, hdrlen+bodylen)
		_, _ = data.Read(rec)
		recs = append(recs, rec)
	}
	return recs, nil
}

// AppendHeader appends the shortest header lit allows for bodylen bytes.
// Only a lowercase lit may use the tiny form.
func AppendHeader(into []byte, lit byte, bodylen int) []byte {
	upper := lit &^ CaseBit
	if upper < 'A' || upper > 'Z' {
		panic("TLV record type is A..Z")
	}
	switch {
	case bodylen < 10 && lit&CaseBit != 0:
		return append(into, byte('0'+bodylen))
	case bodylen <= 0xff:
		return append(into, upper|CaseBit, byte(bodylen))
	case bodylen > maxBody:
		panic("oversized TLV record")
	}
	return binary.LittleEndian.AppendUint32(append(into, upper), uint32(bodylen))
}

// Record frames the concatenation of body as one record.
func Record(lit byte, body ...[]byte) []byte {
	total := 0
	for _, b := range body {
		total += len(b)
	}
	rec := AppendHeader(make([]byte, 0, total+5), lit, total)
	for _, b := range body {
		rec = append(rec, b...)
	}
	return rec
}

// TakeWary cuts the record of type lit off the head of data.
func TakeWary(lit byte, data []byte) (body, rest []byte, err error) {
	found, hdrlen, bodylen := ProbeHeader(data)
	if found == 0 || hdrlen+bodylen > len(data) {
		return nil, data, ErrIncomplete
	}
	if found != lit && found != '0' {
		return nil, nil, ErrBadRecord
	}
	return data[hdrlen : hdrlen+bodylen], data[hdrlen+bodylen:], nil
}
