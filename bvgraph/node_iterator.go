// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"github.com/cockroachdb/errors"
	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// nodeIterator is the sequential decoder. It keeps the last windowSize
// decoded successor lists in a ring of windowSize+1 slots indexed by node id
// modulo the ring size, so that the list of x is stored without evicting any
// of x-1 … x-windowSize. Slots exclusively own their arrays; decoding node x
// overwrites the slot previously holding x-windowSize-1.
type nodeIterator struct {
	g *BVGraph
	r *bitstream.Reader

	next  int64 // next node to return
	limit int64

	cyclic  int64
	window  [][]int64
	winNode []int64 // node id held by each slot, -1 when empty

	cur     int64
	curSucc []int64
	valid   bool
	err     error
}

var _ webgraph.NodeIterator = (*nodeIterator)(nil)

func (g *BVGraph) newNodeIterator(from int64) (*nodeIterator, error) {
	if from < 0 || from > g.n {
		return nil, errors.Newf("bvgraph: node %d out of range [0, %d]", from, g.n)
	}
	cyclic := int64(g.windowSize) + 1
	it := &nodeIterator{
		g:       g,
		limit:   g.n,
		cyclic:  cyclic,
		window:  make([][]int64, cyclic),
		winNode: make([]int64, cyclic),
	}
	for i := range it.winNode {
		it.winNode[i] = -1
	}

	if g.method == webgraph.LoadOnce {
		if g.spent {
			return nil, base.UnsupportedErrorf("bvgraph: a stream-once graph can be traversed only once")
		}
		g.spent = true
		it.r = bitstream.NewStreamReader(g.stream)
		if err := it.skipDecode(from); err != nil {
			return nil, err
		}
		return it, nil
	}

	it.r = bitstream.NewReader(g.data)
	if from == 0 {
		it.next = 0
		return it, nil
	}
	if g.offsets == nil {
		// Offline: the only way to reach from is to decode everything before
		// it, preserving the window along the way.
		if err := it.skipDecode(from); err != nil {
			return nil, err
		}
		return it, nil
	}
	// Prime the window with the lists the first decoded nodes may reference,
	// through a private reader so the iterator stays independent of the
	// graph's cached decode state.
	it.r.Position(g.offsets.get(from))
	it.next = from
	pr := bitstream.NewReader(g.data)
	lo := from - int64(g.windowSize)
	if lo < 0 {
		lo = 0
	}
	for y := lo; y < from; y++ {
		succ, err := g.successorArrayWith(pr, y)
		if err != nil {
			return nil, err
		}
		slot := y % cyclic
		it.window[slot] = succ
		it.winNode[slot] = y
	}
	return it, nil
}

// skipDecode decodes and discards nodes [0, from), leaving the window
// primed. This is the documented O(n) cost of starting mid-stream without
// offsets.
func (it *nodeIterator) skipDecode(from int64) error {
	for it.next < from {
		if err := it.advance(); err != nil {
			return err
		}
	}
	it.valid = false
	return nil
}

// advance decodes the block of node it.next into its window slot.
func (it *nodeIterator) advance() error {
	x := it.next
	f, err := it.g.readBlock(it.r, x, func(y int64) (int64, error) {
		slot := y % it.cyclic
		if it.winNode[slot] != y {
			return 0, base.CorruptionErrorf("bvgraph: node %d references %d, not in the decode window", x, y)
		}
		return int64(len(it.window[slot])), nil
	})
	if err != nil {
		return err
	}
	var refList []int64
	if f.ref > 0 {
		refList = it.window[(x-f.ref)%it.cyclic]
	}
	slot := x % it.cyclic
	succ, err := f.expand(refList, it.window[slot])
	if err != nil {
		return err
	}
	it.window[slot] = succ
	it.winNode[slot] = x
	it.cur = x
	it.curSucc = succ
	it.valid = true
	it.next++
	return nil
}

// HasNext reports whether there is a next node.
func (it *nodeIterator) HasNext() bool { return it.err == nil && it.next < it.limit }

// NextLong advances to the next node and returns its id.
func (it *nodeIterator) NextLong() (int64, error) {
	if it.err != nil {
		return 0, it.err
	}
	if it.next >= it.limit {
		return 0, errors.AssertionFailedf("bvgraph: NextLong past the end of an iterator")
	}
	if err := it.advance(); err != nil {
		it.err = err
		return 0, err
	}
	return it.cur, nil
}

func (it *nodeIterator) current() error {
	if it.err != nil {
		return it.err
	}
	if !it.valid {
		return errors.AssertionFailedf("bvgraph: access before NextLong")
	}
	return nil
}

// Outdegree returns the outdegree of the current node.
func (it *nodeIterator) Outdegree() (int64, error) {
	if err := it.current(); err != nil {
		return 0, err
	}
	return int64(len(it.curSucc)), nil
}

// Successors returns a lazy iterator over the successors of the current
// node.
func (it *nodeIterator) Successors() (webgraph.LazyLongIterator, error) {
	if err := it.current(); err != nil {
		return nil, err
	}
	return webgraph.ArrayLazyIterator(it.curSucc), nil
}

// SuccessorArray returns the successors of the current node. The slice is
// owned by the iterator's window and is overwritten once the iteration
// moves windowSize+1 nodes past the current one.
func (it *nodeIterator) SuccessorArray() ([]int64, error) {
	if err := it.current(); err != nil {
		return nil, err
	}
	return it.curSucc, nil
}

// Copy returns an independent iterator positioned like this one and
// restricted to nodes below upperBound. The bit stream position and window
// are cloned; the backing storage is shared.
func (it *nodeIterator) Copy(upperBound int64) (webgraph.NodeIterator, error) {
	if !it.g.HasCopiableIterators() {
		return nil, base.UnsupportedErrorf("bvgraph: iterators over a stream-once graph are not copiable")
	}
	if it.err != nil {
		return nil, it.err
	}
	c := &nodeIterator{
		g:       it.g,
		next:    it.next,
		limit:   it.limit,
		cyclic:  it.cyclic,
		window:  make([][]int64, it.cyclic),
		winNode: append([]int64(nil), it.winNode...),
		cur:     it.cur,
		valid:   it.valid,
	}
	if upperBound < c.limit {
		c.limit = upperBound
	}
	for i, w := range it.window {
		c.window[i] = append([]int64(nil), w...)
	}
	if it.valid {
		c.curSucc = c.window[it.cur%it.cyclic]
	}
	c.r = bitstream.NewReader(it.g.data)
	c.r.Position(it.r.BitPosition())
	return c, nil
}
