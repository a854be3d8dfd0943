// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bitstream

import (
	"io"
)

// ByteSlice adapts an in-memory byte slice, including a shared read-only
// mapped region, to io.ReaderAt.
type ByteSlice []byte

// ReadAt implements io.ReaderAt.
func (b ByteSlice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// segmentShift sizes SegmentedBytes chunks at 256 MiB: large enough that the
// per-chunk overhead is noise, small enough that allocation never needs a
// single contiguous multi-gigabyte region.
const segmentShift = 28

const segmentSize = 1 << segmentShift

// SegmentedBytes is an in-memory byte source split into fixed-size chunks,
// for streams whose length exceeds what a single allocation should hold.
// It implements io.ReaderAt over the logical concatenation of its chunks.
type SegmentedBytes struct {
	chunks [][]byte
	size   int64
}

// ReadAllSegmented reads r to exhaustion into a SegmentedBytes.
func ReadAllSegmented(r io.Reader) (*SegmentedBytes, error) {
	s := &SegmentedBytes{}
	for {
		chunk := make([]byte, segmentSize)
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			s.chunks = append(s.chunks, chunk[:n])
			s.size += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Size returns the total number of bytes.
func (s *SegmentedBytes) Size() int64 { return s.size }

// ReadAt implements io.ReaderAt.
func (s *SegmentedBytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= s.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && off < s.size {
		chunk := s.chunks[off>>segmentShift]
		i := int(off & (segmentSize - 1))
		c := copy(p[n:], chunk[i:])
		n += c
		off += int64(c)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
