// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package webgraph

import (
	"github.com/cockroachdb/errors"
)

// Wrap exposes an in-memory adjacency representation through the
// ImmutableGraph contract. Each successor list must be strictly ascending
// with targets in [0, len(successors)). The slices are shared, not copied;
// the caller must not mutate them afterwards.
//
// Wrapped graphs support random access, copiable iterators and flyweight
// copies, which makes them the reference implementation the compressed
// variants are tested against.
func Wrap(successors [][]int64) (ImmutableGraph, error) {
	n := int64(len(successors))
	var m int64
	for x, succ := range successors {
		for i, t := range succ {
			if t < 0 || t >= n {
				return nil, errors.Newf("webgraph: successor %d of node %d out of range [0, %d)", t, x, n)
			}
			if i > 0 && t <= succ[i-1] {
				return nil, errors.Newf("webgraph: successors of node %d are not strictly ascending", x)
			}
		}
		m += int64(len(succ))
	}
	return &arrayGraph{successors: successors, numArcs: m}, nil
}

type arrayGraph struct {
	successors [][]int64
	numArcs    int64
}

func (g *arrayGraph) Basename() string           { return "" }
func (g *arrayGraph) NumNodes() int64            { return int64(len(g.successors)) }
func (g *arrayGraph) NumArcs() int64             { return g.numArcs }
func (g *arrayGraph) RandomAccess() bool         { return true }
func (g *arrayGraph) HasCopiableIterators() bool { return true }

func (g *arrayGraph) checkNode(x int64) error {
	if x < 0 || x >= g.NumNodes() {
		return errors.Newf("webgraph: node %d out of range [0, %d)", x, g.NumNodes())
	}
	return nil
}

func (g *arrayGraph) Outdegree(x int64) (int64, error) {
	if err := g.checkNode(x); err != nil {
		return 0, err
	}
	return int64(len(g.successors[x])), nil
}

func (g *arrayGraph) Successors(x int64) (LazyLongIterator, error) {
	if err := g.checkNode(x); err != nil {
		return nil, err
	}
	return ArrayLazyIterator(g.successors[x]), nil
}

func (g *arrayGraph) SuccessorArray(x int64) ([]int64, error) {
	if err := g.checkNode(x); err != nil {
		return nil, err
	}
	return g.successors[x], nil
}

func (g *arrayGraph) NodeIterator(from int64) (NodeIterator, error) {
	if from < 0 || from > g.NumNodes() {
		return nil, errors.Newf("webgraph: node %d out of range [0, %d]", from, g.NumNodes())
	}
	return &arrayNodeIterator{g: g, next: from, limit: g.NumNodes()}, nil
}

func (g *arrayGraph) SplitNodeIterators(howMany int) ([]NodeIterator, error) {
	return SplitNodeIteratorsByRanges(g, howMany)
}

func (g *arrayGraph) Copy() (ImmutableGraph, error) {
	// The backing slices are immutable by contract and there is no per-graph
	// mutable state to clone.
	return g, nil
}

type arrayNodeIterator struct {
	g     *arrayGraph
	next  int64
	limit int64
	cur   int64
	valid bool
}

func (it *arrayNodeIterator) HasNext() bool { return it.next < it.limit }

func (it *arrayNodeIterator) NextLong() (int64, error) {
	if !it.HasNext() {
		return 0, errors.AssertionFailedf("webgraph: NextLong past the end of an iterator")
	}
	it.cur = it.next
	it.next++
	it.valid = true
	return it.cur, nil
}

func (it *arrayNodeIterator) current() (int64, error) {
	if !it.valid {
		return 0, errors.AssertionFailedf("webgraph: access before NextLong")
	}
	return it.cur, nil
}

func (it *arrayNodeIterator) Outdegree() (int64, error) {
	x, err := it.current()
	if err != nil {
		return 0, err
	}
	return int64(len(it.g.successors[x])), nil
}

func (it *arrayNodeIterator) Successors() (LazyLongIterator, error) {
	x, err := it.current()
	if err != nil {
		return nil, err
	}
	return ArrayLazyIterator(it.g.successors[x]), nil
}

func (it *arrayNodeIterator) SuccessorArray() ([]int64, error) {
	x, err := it.current()
	if err != nil {
		return nil, err
	}
	return it.g.successors[x], nil
}

func (it *arrayNodeIterator) Copy(upperBound int64) (NodeIterator, error) {
	limit := it.limit
	if upperBound < limit {
		limit = upperBound
	}
	return &arrayNodeIterator{g: it.g, next: it.next, limit: limit, cur: it.cur, valid: it.valid}, nil
}
