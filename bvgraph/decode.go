// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"math"

	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// blockFrame is the parsed form of one node's block: everything except the
// content of the referenced list, which is supplied at expansion time. The
// random-access path parses a whole reference chain into frames before
// expanding bottom-up; the sequential path expands each frame immediately
// against its window.
type blockFrame struct {
	node      int64
	d         int64
	ref       int64
	blocks    []int64    // explicit copy-list run lengths; first run is copied
	intervals [][2]int64 // left endpoint, length
	residuals []int64
}

// readBlock parses the block of node x from r, which must be positioned at
// the block start. refOutdegree supplies the outdegree of the referenced
// node without disturbing r's position; it is consulted only when the block
// carries a non-zero reference.
func (g *BVGraph) readBlock(r *bitstream.Reader, x int64, refOutdegree func(y int64) (int64, error)) (*blockFrame, error) {
	f := &blockFrame{node: x}
	f.d = readCoded(r, g.flags.Outdegrees, g.zetaK)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if f.d < 0 || f.d > math.MaxInt32 {
		return nil, base.CorruptionErrorf("bvgraph: outdegree %d of node %d out of range", f.d, x)
	}
	if f.d == 0 {
		return f, nil
	}

	var copied int64
	if g.windowSize > 0 {
		f.ref = readCoded(r, g.flags.References, g.zetaK)
		if f.ref < 0 || f.ref > int64(g.windowSize) || f.ref > x {
			return nil, base.CorruptionErrorf("bvgraph: node %d references %d, beyond the window", x, f.ref)
		}
	}
	if f.ref > 0 {
		blockCount := readCoded(r, g.flags.Blocks, g.zetaK)
		if blockCount < 0 || blockCount > math.MaxInt32 {
			return nil, base.CorruptionErrorf("bvgraph: node %d has copy-block count %d", x, blockCount)
		}
		f.blocks = make([]int64, blockCount)
		var total int64
		for i := range f.blocks {
			b := readCoded(r, g.flags.Blocks, g.zetaK)
			if i > 0 {
				b++
			}
			f.blocks[i] = b
			total += b
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		refD, err := refOutdegree(x - f.ref)
		if err != nil {
			return nil, err
		}
		if total > refD {
			return nil, base.CorruptionErrorf("bvgraph: copy blocks of node %d cover %d targets, referenced list has %d", x, total, refD)
		}
		for i, b := range f.blocks {
			if i%2 == 0 {
				copied += b
			}
		}
		if len(f.blocks)%2 == 0 {
			// The implicit final run is a copied one.
			copied += refD - total
		}
	}

	var intervalized int64
	if g.minIntervalLength != NoIntervals {
		cnt := readCoded(r, g.flags.Intervals, g.zetaK)
		if cnt < 0 || cnt > f.d {
			return nil, base.CorruptionErrorf("bvgraph: node %d has interval count %d", x, cnt)
		}
		f.intervals = make([][2]int64, cnt)
		var prev int64
		for i := range f.intervals {
			var left int64
			if i == 0 {
				left = x + nat2int(readCoded(r, g.flags.Intervals, g.zetaK))
			} else {
				left = prev + readCoded(r, g.flags.Intervals, g.zetaK) + 1
			}
			length := readCoded(r, g.flags.Intervals, g.zetaK) + int64(g.minIntervalLength)
			if left < 0 || length > f.d {
				return nil, base.CorruptionErrorf("bvgraph: node %d has interval (%d, %d)", x, left, length)
			}
			f.intervals[i] = [2]int64{left, length}
			prev = left + length
			intervalized += length
		}
	}

	residCount := f.d - copied - intervalized
	if residCount < 0 {
		return nil, base.CorruptionErrorf("bvgraph: node %d has %d copied and %d interval targets but outdegree %d",
			x, copied, intervalized, f.d)
	}
	f.residuals = make([]int64, residCount)
	var prev int64
	for i := range f.residuals {
		if i == 0 {
			prev = x + nat2int(readCoded(r, g.flags.Residuals, g.zetaK))
		} else {
			prev = prev + readCoded(r, g.flags.Residuals, g.zetaK) + 1
		}
		if prev < 0 {
			return nil, base.CorruptionErrorf("bvgraph: node %d has negative residual %d", x, prev)
		}
		f.residuals[i] = prev
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// expand merges the three sorted sources of the frame, the subset of the
// referenced list selected by the copy blocks, the expanded intervals and
// the residuals, into one strictly ascending list appended to out[:0].
func (f *blockFrame) expand(refList, out []int64) ([]int64, error) {
	out = out[:0]
	if cap(out) < int(f.d) {
		out = make([]int64, 0, f.d)
	}
	var copied []int64
	if f.ref > 0 {
		copied = selectCopied(refList, f.blocks)
	}
	ci, ri := 0, 0
	ii, io := 0, int64(0)
	last := int64(-1)
	for int64(len(out)) < f.d {
		best, src := int64(math.MaxInt64), -1
		if ci < len(copied) {
			best, src = copied[ci], 0
		}
		if ii < len(f.intervals) {
			if v := f.intervals[ii][0] + io; v < best {
				best, src = v, 1
			}
		}
		if ri < len(f.residuals) && f.residuals[ri] < best {
			best, src = f.residuals[ri], 2
		}
		if src == -1 || best <= last {
			return nil, base.CorruptionErrorf("bvgraph: successors of node %d are not strictly ascending", f.node)
		}
		out = append(out, best)
		last = best
		switch src {
		case 0:
			ci++
		case 1:
			if io++; io == f.intervals[ii][1] {
				ii++
				io = 0
			}
		case 2:
			ri++
		}
	}
	return out, nil
}

// selectCopied returns the elements of refList selected by the alternating
// copy-block runs. An empty block list selects the whole referenced list.
func selectCopied(refList, blocks []int64) []int64 {
	if len(blocks) == 0 {
		return refList
	}
	out := make([]int64, 0, len(refList))
	i := 0
	copying := true
	for _, b := range blocks {
		if copying {
			out = append(out, refList[i:i+int(b)]...)
		}
		i += int(b)
		copying = !copying
	}
	if copying {
		out = append(out, refList[i:]...)
	}
	return out
}
