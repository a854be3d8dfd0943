// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bitstream

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
	"github.com/webgraph/webgraph/internal/base"
	"golang.org/x/exp/rand"
)

// encodeOne encodes a single value with the named code and returns the
// produced bits as a 0/1 string.
func encodeOne(t *testing.T, code string, v int64) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	writeValue(w, code, v)
	bits := w.WrittenBits()
	require.NoError(t, w.Flush())
	var sb strings.Builder
	for i := int64(0); i < bits; i++ {
		b := buf.Bytes()[i/8] >> (7 - i%8) & 1
		sb.WriteByte('0' + b)
	}
	return sb.String()
}

func writeValue(w *Writer, code string, v int64) {
	switch {
	case code == "unary":
		w.WriteUnary(v)
	case code == "gamma":
		w.WriteGamma(v)
	case code == "delta":
		w.WriteDelta(v)
	case code == "nibble":
		w.WriteNibble(v)
	case strings.HasPrefix(code, "zeta"):
		k, _ := strconv.Atoi(code[4:])
		w.WriteZeta(v, k)
	case strings.HasPrefix(code, "golomb"):
		b, _ := strconv.Atoi(code[6:])
		w.WriteGolomb(v, int64(b))
	case strings.HasPrefix(code, "skewed"):
		b, _ := strconv.Atoi(code[6:])
		w.WriteSkewedGolomb(v, int64(b))
	case strings.HasPrefix(code, "minimal"):
		b, _ := strconv.Atoi(code[7:])
		w.WriteMinimalBinary(v, int64(b))
	default:
		panic("unknown code " + code)
	}
}

func readValue(r *Reader, code string) int64 {
	switch {
	case code == "unary":
		return r.ReadUnary()
	case code == "gamma":
		return r.ReadGamma()
	case code == "delta":
		return r.ReadDelta()
	case code == "nibble":
		return r.ReadNibble()
	case strings.HasPrefix(code, "zeta"):
		k, _ := strconv.Atoi(code[4:])
		return r.ReadZeta(k)
	case strings.HasPrefix(code, "golomb"):
		b, _ := strconv.Atoi(code[6:])
		return r.ReadGolomb(int64(b))
	case strings.HasPrefix(code, "skewed"):
		b, _ := strconv.Atoi(code[6:])
		return r.ReadSkewedGolomb(int64(b))
	case strings.HasPrefix(code, "minimal"):
		b, _ := strconv.Atoi(code[7:])
		return r.ReadMinimalBinary(int64(b))
	default:
		panic("unknown code " + code)
	}
}

func TestCodesDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/codes", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "encode":
			var out strings.Builder
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				fields := strings.Fields(line)
				code := fields[0]
				var bits []string
				for _, f := range fields[1:] {
					v, err := strconv.ParseInt(f, 10, 64)
					require.NoError(t, err)
					s := encodeOne(t, code, v)
					// The encoding must read back to the same value,
					// consuming exactly the written bits.
					var buf bytes.Buffer
					w := NewWriter(&buf)
					writeValue(w, code, v)
					require.NoError(t, w.Flush())
					r := NewReader(bytes.NewReader(buf.Bytes()))
					require.Equal(t, v, readValue(r, code))
					require.NoError(t, r.Err())
					require.Equal(t, int64(len(s)), r.BitPosition())
					bits = append(bits, s)
				}
				fmt.Fprintf(&out, "%s: %s\n", code, strings.Join(bits, " "))
			}
			return out.String()
		default:
			t.Fatalf("unknown command %q", d.Cmd)
			return ""
		}
	})
}

// TestCodesRandomRoundTrip writes a long mixed-code stream and reads it
// back, asserting that reader and writer agree on every intermediate bit
// position.
func TestCodesRandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	type op struct {
		code string
		v    int64
		pos  int64 // bit position after the write
	}
	codes := []string{"unary", "gamma", "delta", "zeta2", "zeta3", "nibble", "golomb7", "skewed3", "minimal37"}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var ops []op
	for i := 0; i < 10000; i++ {
		code := codes[rng.Intn(len(codes))]
		var v int64
		switch {
		case code == "unary":
			v = int64(rng.Intn(200))
		case strings.HasPrefix(code, "minimal"):
			v = int64(rng.Intn(37))
		case strings.HasPrefix(code, "golomb"), strings.HasPrefix(code, "skewed"):
			// Golomb quotients are unary-coded; keep them short.
			v = int64(rng.Intn(10000))
		default:
			// Mix small values with large ones to cross group boundaries.
			if rng.Intn(2) == 0 {
				v = int64(rng.Intn(64))
			} else {
				v = int64(rng.Uint64() >> (9 + rng.Intn(40)))
			}
		}
		writeValue(w, code, v)
		require.NoError(t, w.Err(), "code %s value %d", code, v)
		ops = append(ops, op{code: code, v: v, pos: w.WrittenBits()})
	}
	require.NoError(t, w.Flush())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	for i, o := range ops {
		got := readValue(r, o.code)
		require.NoError(t, r.Err(), "op %d", i)
		require.Equal(t, o.v, got, "op %d (%s)", i, o.code)
		require.Equal(t, o.pos, r.BitPosition(), "op %d (%s)", i, o.code)
	}
}

func TestReaderPositionAndSkip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var positions []int64
	for v := int64(0); v < 500; v++ {
		positions = append(positions, w.WrittenBits())
		w.WriteGamma(v)
	}
	require.NoError(t, w.Flush())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	// Random-order absolute positioning.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		v := int64(rng.Intn(500))
		r.Position(positions[v])
		require.Equal(t, v, r.ReadGamma())
	}
	require.NoError(t, r.Err())

	// Skip from the start to each value in turn.
	r.Position(0)
	r.Skip(positions[100])
	require.Equal(t, int64(100), r.ReadGamma())
	require.NoError(t, r.Err())

	// Stream-mode skip.
	sr := NewStreamReader(bytes.NewReader(buf.Bytes()))
	sr.Skip(positions[42])
	require.Equal(t, int64(42), sr.ReadGamma())
	require.NoError(t, sr.Err())
}

func TestReaderTruncation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteGamma(1 << 40)
	require.NoError(t, w.Flush())
	data := buf.Bytes()[:2] // cut the stream mid-codeword

	r := NewReader(bytes.NewReader(data))
	r.ReadGamma()
	require.Error(t, r.Err())
	require.True(t, base.IsCorruptionError(r.Err()))
	// The error is sticky.
	r.ReadGamma()
	require.True(t, base.IsCorruptionError(r.Err()))
}

func TestStreamReaderCannotSeek(t *testing.T) {
	sr := NewStreamReader(bytes.NewReader([]byte{0xff}))
	sr.Position(0)
	require.Error(t, sr.Err())
}

func TestSegmentedBytes(t *testing.T) {
	data := make([]byte, 1<<16)
	rng := rand.New(rand.NewSource(3))
	for i := range data {
		data[i] = byte(rng.Intn(256))
	}
	s, err := ReadAllSegmented(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), s.Size())
	p := make([]byte, 1000)
	for _, off := range []int64{0, 1, 4095, 60000} {
		n, err := s.ReadAt(p, off)
		if off+1000 <= int64(len(data)) {
			require.NoError(t, err)
			require.Equal(t, 1000, n)
		}
		require.Equal(t, data[off:off+int64(n)], p[:n])
	}
}

func TestWriterValueChecks(t *testing.T) {
	w := NewBitCounter()
	w.WriteInt(4, 2) // does not fit
	require.Error(t, w.Err())

	w = NewBitCounter()
	w.WriteGamma(-1)
	require.Error(t, w.Err())

	w = NewBitCounter()
	w.WriteMinimalBinary(5, 5)
	require.Error(t, w.Err())

	w = NewBitCounter()
	w.WriteGolomb(1, 0)
	require.Error(t, w.Err())
}
