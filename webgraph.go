// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package webgraph provides compressed, immutable representations of very
// large directed graphs: billions of nodes, tens to hundreds of billions of
// arcs, stored in a bit-packed on-disk form designed for both random access
// and sequential scanning.
//
// The package defines the polymorphic ImmutableGraph contract over all graph
// sources. The compressed Boldi-Vigna codec lives in the bvgraph subpackage;
// arc-labelled overlays live in the label subpackage. Graphs are loaded by
// basename through a registry keyed on the graphclass property, so loading a
// compressed graph requires a blank import of the implementing package:
//
//	import _ "github.com/webgraph/webgraph/bvgraph"
//
//	g, err := webgraph.Load("enwiki-2023")
//
// A single graph instance is not safe for concurrent use. Safe concurrent
// access is obtained through Copy, which returns a flyweight sharing all
// immutable backing storage while owning private decode state.
package webgraph

import (
	"github.com/cockroachdb/errors"
	"github.com/webgraph/webgraph/internal/base"
)

// ArcCountUnknown is returned by NumArcs when the number of arcs is not
// known. The graphs of this module, stream-once BVGraphs included, always
// report their arc count.
const ArcCountUnknown = -1

// LazyLongIterator enumerates a monotone sequence of node ids. There is no
// hasNext: NextLong returns -1 when the sequence is exhausted. A decode
// failure invalidates the iterator; every subsequent call returns the same
// error.
type LazyLongIterator interface {
	NextLong() (int64, error)
}

// NodeIterator scans the nodes of a graph in strictly ascending id order,
// exposing the outdegree and successors of the current node. Outdegree,
// Successors and SuccessorArray refer to the node returned by the last call
// to NextLong.
type NodeIterator interface {
	// HasNext reports whether there is a next node.
	HasNext() bool
	// NextLong advances to the next node and returns its id.
	NextLong() (int64, error)
	// Outdegree returns the outdegree of the current node.
	Outdegree() (int64, error)
	// Successors returns a lazy iterator over the successors of the current
	// node, in strictly ascending order.
	Successors() (LazyLongIterator, error)
	// SuccessorArray returns the successors of the current node as a slice.
	// The slice is owned by the iterator and is overwritten by the next call
	// to NextLong.
	SuccessorArray() ([]int64, error)
	// Copy returns an independent iterator positioned like this one and
	// restricted to ids smaller than upperBound. It fails with a capability
	// error unless the graph HasCopiableIterators.
	Copy(upperBound int64) (NodeIterator, error)
}

// ImmutableGraph is the contract over all graph sources: compressed graphs,
// in-memory test graphs, arc-labelled overlays, wrapper adapters.
//
// Implementations need not be thread-safe: concurrent access goes through
// Copy, which is itself thread-safe and shares all immutable backing data.
// By contract Copy is guaranteed to work only when RandomAccess is true.
type ImmutableGraph interface {
	// Basename returns the basename of the graph on disk, if any.
	Basename() string
	// NumNodes returns the number of nodes.
	NumNodes() int64
	// NumArcs returns the number of arcs, or ArcCountUnknown.
	NumArcs() int64
	// RandomAccess reports whether Outdegree, Successors and Copy are
	// supported.
	RandomAccess() bool
	// HasCopiableIterators reports whether node iterators support Copy.
	HasCopiableIterators() bool
	// Outdegree returns the outdegree of node x.
	Outdegree(x int64) (int64, error)
	// Successors returns a lazy iterator over the successors of x.
	Successors(x int64) (LazyLongIterator, error)
	// SuccessorArray returns the successors of x as a freshly decoded slice.
	SuccessorArray(x int64) ([]int64, error)
	// NodeIterator returns an iterator over nodes with id ≥ from.
	NodeIterator(from int64) (NodeIterator, error)
	// SplitNodeIterators returns howMany iterators covering a disjoint
	// partition of the node id space, in order. Trailing iterators may be
	// empty.
	SplitNodeIterators(howMany int) ([]NodeIterator, error)
	// Copy returns a flyweight copy sharing all immutable backing storage.
	Copy() (ImmutableGraph, error)
}

// ArrayLazyIterator returns a LazyLongIterator over a slice.
func ArrayLazyIterator(a []int64) LazyLongIterator {
	return &arrayLazyIterator{a: a}
}

// EmptyLazyIterator returns an exhausted LazyLongIterator.
func EmptyLazyIterator() LazyLongIterator {
	return &arrayLazyIterator{}
}

type arrayLazyIterator struct {
	a []int64
	i int
}

func (it *arrayLazyIterator) NextLong() (int64, error) {
	if it.i >= len(it.a) {
		return -1, nil
	}
	v := it.a[it.i]
	it.i++
	return v, nil
}

// SkipLazy advances it by up to n elements, returning the number actually
// skipped.
func SkipLazy(it LazyLongIterator, n int64) (int64, error) {
	var skipped int64
	for skipped < n {
		v, err := it.NextLong()
		if err != nil {
			return skipped, err
		}
		if v == -1 {
			break
		}
		skipped++
	}
	return skipped, nil
}

// Equal reports whether two graphs have the same number of nodes and equal
// successor lists for every node. It traverses both graphs sequentially.
func Equal(g, h ImmutableGraph) (bool, error) {
	if g.NumNodes() != h.NumNodes() {
		return false, nil
	}
	gi, err := g.NodeIterator(0)
	if err != nil {
		return false, err
	}
	hi, err := h.NodeIterator(0)
	if err != nil {
		return false, err
	}
	for gi.HasNext() {
		if _, err := gi.NextLong(); err != nil {
			return false, err
		}
		if _, err := hi.NextLong(); err != nil {
			return false, err
		}
		gs, err := gi.SuccessorArray()
		if err != nil {
			return false, err
		}
		hs, err := hi.SuccessorArray()
		if err != nil {
			return false, err
		}
		if len(gs) != len(hs) {
			return false, nil
		}
		for i := range gs {
			if gs[i] != hs[i] {
				return false, nil
			}
		}
	}
	return true, nil
}

// SplitNodeIteratorsByRanges is the default SplitNodeIterators
// implementation for graphs with copiable iterators: howMany contiguous
// node ranges of almost equal size.
func SplitNodeIteratorsByRanges(g ImmutableGraph, howMany int) ([]NodeIterator, error) {
	if howMany < 1 {
		return nil, errors.Newf("webgraph: split count %d < 1", howMany)
	}
	if !g.HasCopiableIterators() {
		return nil, base.UnsupportedErrorf("webgraph: graph does not have copiable iterators")
	}
	n := g.NumNodes()
	per := (n + int64(howMany) - 1) / int64(howMany)
	its := make([]NodeIterator, howMany)
	for i := range its {
		start := int64(i) * per
		if n == 0 || start >= n {
			its[i] = EmptyNodeIterator()
			continue
		}
		end := start + per
		if end > n {
			end = n
		}
		it, err := g.NodeIterator(start)
		if err != nil {
			return nil, err
		}
		its[i], err = it.Copy(end)
		if err != nil {
			return nil, err
		}
	}
	return its, nil
}

// EmptyNodeIterator returns an exhausted NodeIterator.
func EmptyNodeIterator() NodeIterator { return emptyNodeIterator{} }

type emptyNodeIterator struct{}

func (emptyNodeIterator) HasNext() bool { return false }

func (emptyNodeIterator) NextLong() (int64, error) {
	return 0, errors.AssertionFailedf("webgraph: NextLong past the end of an iterator")
}

func (emptyNodeIterator) Outdegree() (int64, error) {
	return 0, errors.AssertionFailedf("webgraph: Outdegree before NextLong")
}

func (emptyNodeIterator) Successors() (LazyLongIterator, error) {
	return nil, errors.AssertionFailedf("webgraph: Successors before NextLong")
}

func (emptyNodeIterator) SuccessorArray() ([]int64, error) {
	return nil, errors.AssertionFailedf("webgraph: SuccessorArray before NextLong")
}

func (emptyNodeIterator) Copy(upperBound int64) (NodeIterator, error) {
	return emptyNodeIterator{}, nil
}
