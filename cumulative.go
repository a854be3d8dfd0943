// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package webgraph

import (
	"github.com/cockroachdb/errors"
	"github.com/webgraph/webgraph/internal/eliasfano"
)

// EliasFanoCumulativeOutdegreeList stores the prefix sums of the outdegrees
// of a graph in succinct form, supporting the "which node contains arc a"
// query used to cut a graph into chunks of roughly equal arc count.
//
// The list holds C[0..n] with C[i] = Σ_{j<i} outdegree(j), so C[n] is the
// total arc count. A power-of-two-minus-one mask restricts answers to
// "boundary" node indices i with i & mask == 0, which lets callers force
// chunk boundaries onto multiples of 2, 4, … for alignment.
type EliasFanoCumulativeOutdegreeList struct {
	list *eliasfano.List
	n    int64
	mask int64

	currentIndex int64
	currentValue int64
}

// NewEliasFanoCumulativeOutdegreeList builds the cumulative outdegree list
// of g by a sequential traversal. numArcs must be the number of arcs of g;
// mask must be a power of two minus one.
func NewEliasFanoCumulativeOutdegreeList(g ImmutableGraph, numArcs, mask int64) (*EliasFanoCumulativeOutdegreeList, error) {
	if mask < 0 || mask&(mask+1) != 0 {
		return nil, errors.Newf("webgraph: mask %d is not a power of two minus one", mask)
	}
	n := g.NumNodes()
	b := eliasfano.NewBuilder(n+1, uint64(numArcs)+1)
	it, err := g.NodeIterator(0)
	if err != nil {
		return nil, err
	}
	var c int64
	b.Push(0)
	for it.HasNext() {
		if _, err := it.NextLong(); err != nil {
			return nil, err
		}
		d, err := it.Outdegree()
		if err != nil {
			return nil, err
		}
		c += d
		b.Push(uint64(c))
	}
	if c != numArcs {
		return nil, errors.Newf("webgraph: graph has %d arcs, not %d", c, numArcs)
	}
	list, err := b.Finish()
	if err != nil {
		return nil, err
	}
	return &EliasFanoCumulativeOutdegreeList{
		list:         list,
		n:            n,
		mask:         mask,
		currentIndex: -1,
	}, nil
}

// CurrentIndex returns the index set by the last successful SkipTo, or -1 if
// SkipTo has never succeeded.
func (c *EliasFanoCumulativeOutdegreeList) CurrentIndex() int64 { return c.currentIndex }

// SkipTo returns the smallest cumulative value C[i] with C[i] ≥ lowerBound
// and i & mask == 0, setting CurrentIndex to i. It returns -1 when no such
// index exists (the aligned search ran past the sentinel).
func (c *EliasFanoCumulativeOutdegreeList) SkipTo(lowerBound int64) int64 {
	// Smallest i with C[i] ≥ lowerBound, by binary search on the succinct
	// list.
	lo, hi := int64(0), c.n
	for lo < hi {
		mid := (lo + hi) / 2
		if int64(c.list.Get(mid)) < lowerBound {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if int64(c.list.Get(lo)) < lowerBound {
		return -1
	}
	// Round up to the next boundary index.
	if lo&c.mask != 0 {
		lo = (lo | c.mask) + 1
	}
	if lo > c.n {
		return -1
	}
	c.currentIndex = lo
	c.currentValue = int64(c.list.Get(lo))
	return c.currentValue
}
