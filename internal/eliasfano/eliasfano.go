// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package eliasfano implements the Elias-Fano encoding of monotone
// non-decreasing sequences of natural numbers: the low ⌊log₂(u/n)⌋ bits of
// each value are stored in a packed array, the high bits as unary gaps in a
// bit vector. A sampled select-one index gives constant-time access, at a
// total cost of about 2 + ⌈log₂(u/n)⌉ bits per element.
package eliasfano

import (
	"encoding/binary"
	"io"
	"math/bits"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/webgraph/webgraph/internal/base"
)

// jumpShift spaces the select samples: one sampled bit position for every
// 2^jumpShift ones in the upper-bits vector.
const jumpShift = 8

const jumpQuantum = 1 << jumpShift

// List is an immutable Elias-Fano-encoded monotone sequence.
type List struct {
	n    int64  // number of values
	u    uint64 // strict upper bound on values
	l    uint   // low bits per value
	low  []uint64
	high []uint64
	jump []int64 // bit position in high of every jumpQuantum-th one
}

// Builder accumulates a monotone sequence and freezes it into a List.
type Builder struct {
	n    int64
	u    uint64
	l    uint
	low  []uint64
	high []uint64
	i    int64
	last uint64
	err  error
}

// NewBuilder returns a Builder for n values, all strictly below upperBound.
// upperBound must be at least 1 and at least the largest value pushed.
func NewBuilder(n int64, upperBound uint64) *Builder {
	if upperBound == 0 {
		upperBound = 1
	}
	var l uint
	if n > 0 && upperBound/uint64(n) != 0 {
		l = uint(63 - bits.LeadingZeros64(upperBound/uint64(n)))
	}
	lowWords := (uint64(n)*uint64(l)+63)/64 + 1
	highWords := (uint64(n)+(upperBound>>l)+63)/64 + 1
	return &Builder{
		n:    n,
		u:    upperBound,
		l:    l,
		low:  make([]uint64, lowWords),
		high: make([]uint64, highWords),
	}
}

// Push appends the next value. Values must be non-decreasing and below the
// builder's upper bound.
func (b *Builder) Push(v uint64) {
	if b.err != nil {
		return
	}
	if b.i >= b.n {
		b.err = errors.AssertionFailedf("eliasfano: %d values pushed into a list of %d", b.i+1, b.n)
		return
	}
	if v < b.last || v >= b.u {
		b.err = errors.AssertionFailedf("eliasfano: value %d out of order or above bound %d", v, b.u)
		return
	}
	if b.l != 0 {
		setBits(b.low, b.i*int64(b.l), b.l, v&(1<<b.l-1))
	}
	setBit(b.high, int64(v>>b.l)+b.i)
	b.last = v
	b.i++
}

// Finish freezes the builder into a List.
func (b *Builder) Finish() (*List, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.i != b.n {
		return nil, errors.AssertionFailedf("eliasfano: %d values pushed into a list of %d", b.i, b.n)
	}
	l := &List{n: b.n, u: b.u, l: b.l, low: b.low, high: b.high}
	l.buildJump()
	return l, nil
}

func (l *List) buildJump() {
	l.jump = make([]int64, 0, (l.n+jumpQuantum-1)/jumpQuantum)
	var seen int64
	for w, word := range l.high {
		for word != 0 {
			if seen&(jumpQuantum-1) == 0 {
				l.jump = append(l.jump, int64(w)*64+int64(bits.TrailingZeros64(word)))
			}
			word &= word - 1
			seen++
			if seen == l.n {
				return
			}
		}
	}
}

// Len returns the number of values in the list.
func (l *List) Len() int64 { return l.n }

// Get returns the i-th value in constant time.
func (l *List) Get(i int64) uint64 {
	pos := l.selectOne(i)
	high := uint64(pos - i)
	if l.l == 0 {
		return high
	}
	return high<<l.l | getBits(l.low, i*int64(l.l), l.l)
}

// selectOne returns the bit position of the i-th set bit in the upper-bits
// vector.
func (l *List) selectOne(i int64) int64 {
	pos := l.jump[i>>jumpShift]
	k := int(i & (jumpQuantum - 1))
	w := pos >> 6
	cur := l.high[w] &^ (1<<uint(pos&63) - 1)
	for {
		c := bits.OnesCount64(cur)
		if k < c {
			for ; k > 0; k-- {
				cur &= cur - 1
			}
			return w*64 + int64(bits.TrailingZeros64(cur))
		}
		k -= c
		w++
		cur = l.high[w]
	}
}

// Iterator returns a sequential iterator over the list.
func (l *List) Iterator() *Iterator {
	it := &Iterator{list: l}
	if len(l.high) > 0 {
		it.cur = l.high[0]
	}
	return it
}

// Iterator walks a List in sequence, amortizing the select work.
type Iterator struct {
	list *List
	i    int64
	word int64
	cur  uint64
}

// Next returns the next value, or false when the list is exhausted.
func (it *Iterator) Next() (uint64, bool) {
	l := it.list
	if it.i >= l.n {
		return 0, false
	}
	for it.cur == 0 {
		it.word++
		it.cur = l.high[it.word]
	}
	pos := it.word*64 + int64(bits.TrailingZeros64(it.cur))
	it.cur &= it.cur - 1
	high := uint64(pos - it.i)
	v := high << l.l
	if l.l != 0 {
		v |= getBits(l.low, it.i*int64(l.l), l.l)
	}
	it.i++
	return v, true
}

func setBit(a []uint64, i int64) {
	a[i>>6] |= 1 << uint(i&63)
}

func setBits(a []uint64, start int64, width uint, v uint64) {
	w, b := start>>6, uint(start&63)
	a[w] |= v << b
	if b+width > 64 {
		a[w+1] |= v >> (64 - b)
	}
}

func getBits(a []uint64, start int64, width uint) uint64 {
	w, b := start>>6, uint(start&63)
	v := a[w] >> b
	if b+width > 64 {
		v |= a[w+1] << (64 - b)
	}
	return v & (1<<width - 1)
}

const serialMagic = 0x45464c31 // "EFL1"

// WriteTo serializes the list, appending an xxhash64 checksum. The format is
// the on-disk layout of the .obl and .labelobl offset caches.
func (l *List) WriteTo(w io.Writer) (int64, error) {
	h := xxhash.New()
	mw := io.MultiWriter(w, h)
	cw := &countWriter{w: mw}
	for _, v := range []uint64{serialMagic, uint64(l.n), l.u, uint64(l.l),
		uint64(len(l.low)), uint64(len(l.high)), uint64(len(l.jump))} {
		if err := writeUint64(cw, v); err != nil {
			return cw.n, err
		}
	}
	for _, a := range [][]uint64{l.low, l.high} {
		for _, v := range a {
			if err := writeUint64(cw, v); err != nil {
				return cw.n, err
			}
		}
	}
	for _, v := range l.jump {
		if err := writeUint64(cw, uint64(v)); err != nil {
			return cw.n, err
		}
	}
	if err := writeUint64(w, h.Sum64()); err != nil {
		return cw.n, err
	}
	return cw.n + 8, nil
}

// ReadFrom deserializes a list written by WriteTo, verifying the checksum.
// Corruption (bad magic, bad checksum, absurd sizes) is reported as a
// corruption error so callers can fall back to rebuilding from the γ-coded
// offsets stream.
func ReadFrom(r io.Reader) (*List, error) {
	h := xxhash.New()
	tr := io.TeeReader(r, h)
	hdr := make([]uint64, 7)
	for i := range hdr {
		v, err := readUint64(tr)
		if err != nil {
			return nil, err
		}
		hdr[i] = v
	}
	if hdr[0] != serialMagic {
		return nil, base.CorruptionErrorf("eliasfano: bad magic %#x", hdr[0])
	}
	l := &List{n: int64(hdr[1]), u: hdr[2], l: uint(hdr[3])}
	nLow, nHigh, nJump := hdr[4], hdr[5], hdr[6]
	if l.n < 0 || l.l > 63 || nLow > 1<<56 || nHigh > 1<<56 || nJump > 1<<56 {
		return nil, base.CorruptionErrorf("eliasfano: implausible header")
	}
	l.low = make([]uint64, nLow)
	l.high = make([]uint64, nHigh)
	l.jump = make([]int64, nJump)
	for i := range l.low {
		v, err := readUint64(tr)
		if err != nil {
			return nil, err
		}
		l.low[i] = v
	}
	for i := range l.high {
		v, err := readUint64(tr)
		if err != nil {
			return nil, err
		}
		l.high[i] = v
	}
	for i := range l.jump {
		v, err := readUint64(tr)
		if err != nil {
			return nil, err
		}
		l.jump[i] = int64(v)
	}
	want := h.Sum64()
	got, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, base.CorruptionErrorf("eliasfano: checksum mismatch %#x != %#x", got, want)
	}
	return l, nil
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, base.CorruptionErrorf("eliasfano: truncated serialized list")
		}
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
