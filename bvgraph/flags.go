// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"strings"

	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// Code identifies one of the universal integer codes used by the on-disk
// format. The integer tags are stable and part of the format.
type Code int

const (
	// CodeDefault selects the default code for the stream position: γ
	// everywhere, except ζ_k for residuals.
	CodeDefault      Code = 0
	CodeDelta        Code = 1
	CodeGamma        Code = 2
	CodeGolomb       Code = 3
	CodeSkewedGolomb Code = 4
	CodeUnary        Code = 5
	CodeZeta         Code = 6
	CodeNibble       Code = 7
)

var codeNames = [...]string{"DEFAULT", "DELTA", "GAMMA", "GOLOMB", "SKEWED_GOLOMB", "UNARY", "ZETA", "NIBBLE"}

// String implements fmt.Stringer.
func (c Code) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "INVALID"
	}
	return codeNames[c]
}

// Flags selects the code used for each position of the graph bit stream.
type Flags struct {
	Outdegrees Code
	References Code
	Blocks     Code
	Intervals  Code
	Residuals  Code
}

// withDefaults returns f with CodeDefault entries resolved.
func (f Flags) withDefaults() Flags {
	if f.Outdegrees == CodeDefault {
		f.Outdegrees = CodeGamma
	}
	if f.References == CodeDefault {
		f.References = CodeGamma
	}
	if f.Blocks == CodeDefault {
		f.Blocks = CodeGamma
	}
	if f.Intervals == CodeDefault {
		f.Intervals = CodeGamma
	}
	if f.Residuals == CodeDefault {
		f.Residuals = CodeZeta
	}
	return f
}

// validate rejects codes that cannot serve as stream codes: Golomb variants
// need a modulus the format has no place for.
func (f Flags) validate() error {
	f = f.withDefaults()
	for _, pos := range []struct {
		name string
		code Code
	}{
		{"OUTDEGREES", f.Outdegrees},
		{"REFERENCES", f.References},
		{"BLOCKS", f.Blocks},
		{"INTERVALS", f.Intervals},
		{"RESIDUALS", f.Residuals},
	} {
		switch pos.code {
		case CodeGamma, CodeDelta, CodeUnary, CodeZeta, CodeNibble:
		default:
			return base.CorruptionErrorf("bvgraph: code %s cannot be used for %s", pos.code, pos.name)
		}
	}
	return nil
}

// String renders the flags in the compressionflags property format: a
// comma-separated list of POSITION_CODE entries for the positions that
// deviate from the defaults. All-default flags render as the empty string.
func (f Flags) String() string {
	var parts []string
	if f.Outdegrees != CodeDefault && f.Outdegrees != CodeGamma {
		parts = append(parts, "OUTDEGREES_"+f.Outdegrees.String())
	}
	if f.References != CodeDefault && f.References != CodeGamma {
		parts = append(parts, "REFERENCES_"+f.References.String())
	}
	if f.Blocks != CodeDefault && f.Blocks != CodeGamma {
		parts = append(parts, "BLOCKS_"+f.Blocks.String())
	}
	if f.Intervals != CodeDefault && f.Intervals != CodeGamma {
		parts = append(parts, "INTERVALS_"+f.Intervals.String())
	}
	if f.Residuals != CodeDefault && f.Residuals != CodeZeta {
		parts = append(parts, "RESIDUALS_"+f.Residuals.String())
	}
	return strings.Join(parts, ",")
}

// ParseFlags parses a compressionflags property value.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		us := strings.LastIndexByte(part, '_')
		if us < 0 {
			return Flags{}, base.CorruptionErrorf("bvgraph: malformed compression flag %q", part)
		}
		pos, name := part[:us], part[us+1:]
		// SKEWED_GOLOMB contains an underscore of its own.
		if strings.HasSuffix(pos, "_SKEWED") {
			pos, name = strings.TrimSuffix(pos, "_SKEWED"), "SKEWED_"+name
		}
		var code Code = -1
		for i, n := range codeNames {
			if n == name {
				code = Code(i)
			}
		}
		if code <= CodeDefault {
			return Flags{}, base.CorruptionErrorf("bvgraph: unknown code %q in compression flag %q", name, part)
		}
		switch pos {
		case "OUTDEGREES":
			f.Outdegrees = code
		case "REFERENCES":
			f.References = code
		case "BLOCKS":
			f.Blocks = code
		case "INTERVALS":
			f.Intervals = code
		case "RESIDUALS":
			f.Residuals = code
		case "OFFSETS":
			// Offsets are always γ; the entry is accepted for compatibility.
			if code != CodeGamma {
				return Flags{}, base.CorruptionErrorf("bvgraph: offsets must be γ-coded, got %s", name)
			}
		default:
			return Flags{}, base.CorruptionErrorf("bvgraph: unknown stream position %q in compression flag %q", pos, part)
		}
	}
	return f, f.validate()
}

// readCoded reads one value with the given code; writeCoded is its exact
// inverse.
func readCoded(r *bitstream.Reader, c Code, zetaK int) int64 {
	switch c {
	case CodeGamma:
		return r.ReadGamma()
	case CodeDelta:
		return r.ReadDelta()
	case CodeUnary:
		return r.ReadUnary()
	case CodeZeta:
		return r.ReadZeta(zetaK)
	case CodeNibble:
		return r.ReadNibble()
	}
	panic("bvgraph: unreachable stream code " + c.String())
}

func writeCoded(w *bitstream.Writer, c Code, zetaK int, v int64) {
	switch c {
	case CodeGamma:
		w.WriteGamma(v)
	case CodeDelta:
		w.WriteDelta(v)
	case CodeUnary:
		w.WriteUnary(v)
	case CodeZeta:
		w.WriteZeta(v, zetaK)
	case CodeNibble:
		w.WriteNibble(v)
	default:
		panic("bvgraph: unreachable stream code " + c.String())
	}
}

// int2nat folds a signed gap onto the naturals: 2n for n ≥ 0, 2|n|-1 for
// n < 0. nat2int is its inverse.
func int2nat(x int64) int64 {
	return x<<1 ^ x>>63
}

func nat2int(x int64) int64 {
	return int64(uint64(x)>>1) ^ -(x & 1)
}
