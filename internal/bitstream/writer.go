// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bitstream

import (
	"io"
	"math/bits"

	"github.com/cockroachdb/errors"
)

const writerBufferSize = 16 << 10

// Writer encodes instantaneous codes onto a big-endian bit stream. Every
// write method has a Reader counterpart that consumes exactly the bit count
// the writer produced; WrittenBits exposes the running total, which callers
// use to derive offsets.
//
// Errors are sticky, mirroring Reader: check Err (or the error from Flush)
// after a batch of writes.
type Writer struct {
	w   io.Writer // nil for a bit-counting writer
	buf []byte

	current byte // partial byte being assembled
	free    uint // free low bits in current, 8 when empty

	written int64 // bits written, including those in current
	err     error
}

// NewWriter returns a Writer flushing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, writerBufferSize), free: 8}
}

// NewBitCounter returns a Writer that discards its output. It is used to
// price alternative encodings: WrittenBits reports the exact cost of the
// writes performed so far.
func NewBitCounter() *Writer {
	return &Writer{buf: make([]byte, 0, 64), free: 8}
}

// Err returns the first error encountered by the Writer, if any.
func (w *Writer) Err() error { return w.err }

// WrittenBits returns the number of bits written so far.
func (w *Writer) WrittenBits() int64 { return w.written }

func (w *Writer) setErr(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) flushBuf() {
	if w.w == nil || len(w.buf) == 0 {
		w.buf = w.buf[:0]
		return
	}
	if w.err == nil {
		if _, err := w.w.Write(w.buf); err != nil {
			w.setErr(err)
		}
	}
	w.buf = w.buf[:0]
}

func (w *Writer) pushByte() {
	if len(w.buf) == cap(w.buf) {
		w.flushBuf()
	}
	w.buf = append(w.buf, w.current)
	w.current = 0
	w.free = 8
}

// Flush pads the stream with zeroes up to a byte boundary and flushes all
// buffered bytes to the underlying writer. The padding bits are not counted
// by WrittenBits.
func (w *Writer) Flush() error {
	if w.free != 8 {
		w.pushByte()
	}
	w.flushBuf()
	return w.err
}

// WriteBit writes a single bit.
func (w *Writer) WriteBit(b uint64) {
	w.WriteInt(b&1, 1)
}

// WriteInt writes the width low bits of v, most significant bit first.
func (w *Writer) WriteInt(v uint64, width int) {
	if width < 0 || width > 64 {
		w.setErr(errors.AssertionFailedf("webgraph: invalid bit width %d", width))
		return
	}
	if width < 64 && v>>uint(width) != 0 {
		w.setErr(errors.AssertionFailedf("webgraph: value %d does not fit in %d bits", v, width))
		return
	}
	w.written += int64(width)
	for width > 0 {
		if w.free == 0 {
			w.pushByte()
		}
		take := w.free
		if take > uint(width) {
			take = uint(width)
		}
		w.free -= take
		w.current |= byte(v>>(uint(width)-take)&(1<<take-1)) << w.free
		width -= int(take)
	}
}

// WriteUnary writes n as n zeroes followed by a one.
func (w *Writer) WriteUnary(n int64) {
	if n < 0 {
		w.setErr(errors.AssertionFailedf("webgraph: negative unary value %d", n))
		return
	}
	for n >= 64 {
		w.WriteInt(0, 63)
		n -= 63
	}
	w.WriteInt(1, int(n)+1)
}

// WriteGamma writes v in γ coding.
func (w *Writer) WriteGamma(v int64) {
	if v < 0 {
		w.setErr(errors.AssertionFailedf("webgraph: negative γ value %d", v))
		return
	}
	x := uint64(v) + 1
	b := 63 - bits.LeadingZeros64(x)
	w.WriteUnary(int64(b))
	w.WriteInt(x&(1<<uint(b)-1), b)
}

// WriteDelta writes v in δ coding.
func (w *Writer) WriteDelta(v int64) {
	if v < 0 {
		w.setErr(errors.AssertionFailedf("webgraph: negative δ value %d", v))
		return
	}
	x := uint64(v) + 1
	b := 63 - bits.LeadingZeros64(x)
	w.WriteGamma(int64(b))
	w.WriteInt(x&(1<<uint(b)-1), b)
}

// WriteZeta writes v in ζ_k coding. k must be positive.
func (w *Writer) WriteZeta(v int64, k int) {
	if v < 0 || k < 1 {
		w.setErr(errors.AssertionFailedf("webgraph: invalid ζ arguments v=%d k=%d", v, k))
		return
	}
	x := uint64(v) + 1
	msb := 63 - bits.LeadingZeros64(x)
	h := msb / k
	w.WriteUnary(int64(h))
	left := uint64(1) << uint(h*k)
	if x-left < left {
		w.WriteInt(x-left, h*k+k-1)
	} else {
		w.WriteInt(x, h*k+k)
	}
}

// WriteGolomb writes v in Golomb coding with modulus b. A zero modulus
// admits only the value zero, coded in zero bits.
func (w *Writer) WriteGolomb(v, b int64) {
	if v < 0 || b < 0 {
		w.setErr(errors.AssertionFailedf("webgraph: invalid Golomb arguments v=%d b=%d", v, b))
		return
	}
	if b == 0 {
		if v != 0 {
			w.setErr(errors.AssertionFailedf("webgraph: cannot Golomb-code %d with zero modulus", v))
		}
		return
	}
	w.WriteUnary(v / b)
	w.WriteMinimalBinary(v%b, b)
}

// WriteSkewedGolomb writes v in skewed Golomb coding with modulus b.
func (w *Writer) WriteSkewedGolomb(v, b int64) {
	if v < 0 || b <= 0 {
		w.setErr(errors.AssertionFailedf("webgraph: invalid skewed Golomb arguments v=%d b=%d", v, b))
		return
	}
	i := int64(63 - bits.LeadingZeros64(uint64(v/b+1)))
	w.WriteUnary(i)
	M := (int64(1)<<uint(i+1) - 1) * b
	m := M / (2 * b) * b
	w.WriteMinimalBinary(v-m, M-m)
}

// WriteNibble writes v in variable-length nibble coding.
func (w *Writer) WriteNibble(v int64) {
	if v < 0 {
		w.setErr(errors.AssertionFailedf("webgraph: negative nibble value %d", v))
		return
	}
	if v == 0 {
		w.WriteInt(8, 4)
		return
	}
	msb := 63 - bits.LeadingZeros64(uint64(v))
	h := msb / 3
	for j := h; ; j-- {
		var stop uint64
		if j == 0 {
			stop = 1
		}
		w.WriteBit(stop)
		w.WriteInt(uint64(v)>>uint(3*j)&7, 3)
		if j == 0 {
			break
		}
	}
}

// WriteMinimalBinary writes v ∈ [0, b) in minimal binary coding. b must be
// positive.
func (w *Writer) WriteMinimalBinary(v, b int64) {
	if b < 1 || v < 0 || v >= b {
		w.setErr(errors.AssertionFailedf("webgraph: minimal binary value %d out of [0, %d)", v, b))
		return
	}
	log2b := 63 - bits.LeadingZeros64(uint64(b))
	m := int64(1)<<uint(log2b+1) - b
	if v < m {
		w.WriteInt(uint64(v), log2b)
	} else {
		w.WriteInt(uint64(v+m), log2b+1)
	}
}
