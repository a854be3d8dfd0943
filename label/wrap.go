// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package label

import (
	"github.com/webgraph/webgraph"
)

// LabelFunc computes the label of the arc (source, target) into l, which is
// a reused copy of the graph's prototype.
type LabelFunc func(source, target int64, l Label) error

// Wrap decorates an immutable graph with labels computed on the fly. It is
// the bridge that feeds Store: wrap a graph, then store the wrapped view to
// obtain the bit-stream labelled form.
func Wrap(g webgraph.ImmutableGraph, prototype Label, fn LabelFunc) ArcLabelledGraph {
	return &wrappedGraph{ImmutableGraph: g, prototype: prototype, fn: fn}
}

type wrappedGraph struct {
	webgraph.ImmutableGraph
	prototype Label
	fn        LabelFunc
}

func (g *wrappedGraph) Prototype() Label { return g.prototype }

func (g *wrappedGraph) LabelledSuccessors(x int64) (ArcIterator, error) {
	under, err := g.ImmutableGraph.Successors(x)
	if err != nil {
		return nil, err
	}
	return &wrappedArcIterator{under: under, source: x, label: g.prototype.Copy(), fn: g.fn}, nil
}

func (g *wrappedGraph) LabelledNodeIterator(from int64) (NodeIterator, error) {
	under, err := g.ImmutableGraph.NodeIterator(from)
	if err != nil {
		return nil, err
	}
	return &wrappedNodeIterator{NodeIterator: under, g: g}, nil
}

func (g *wrappedGraph) Copy() (webgraph.ImmutableGraph, error) {
	under, err := g.ImmutableGraph.Copy()
	if err != nil {
		return nil, err
	}
	return &wrappedGraph{ImmutableGraph: under, prototype: g.prototype, fn: g.fn}, nil
}

type wrappedArcIterator struct {
	under  webgraph.LazyLongIterator
	source int64
	label  Label
	fn     LabelFunc
	err    error
}

func (it *wrappedArcIterator) NextLong() (int64, error) {
	if it.err != nil {
		return 0, it.err
	}
	t, err := it.under.NextLong()
	if err != nil || t == -1 {
		it.err = err
		return t, err
	}
	if err := it.fn(it.source, t, it.label); err != nil {
		it.err = err
		return 0, err
	}
	return t, nil
}

func (it *wrappedArcIterator) Label() Label { return it.label }

type wrappedNodeIterator struct {
	webgraph.NodeIterator
	g   *wrappedGraph
	cur int64
}

func (it *wrappedNodeIterator) NextLong() (int64, error) {
	x, err := it.NodeIterator.NextLong()
	if err == nil {
		it.cur = x
	}
	return x, err
}

func (it *wrappedNodeIterator) LabelledSuccessors() (ArcIterator, error) {
	under, err := it.NodeIterator.Successors()
	if err != nil {
		return nil, err
	}
	return &wrappedArcIterator{under: under, source: it.cur, label: it.g.prototype.Copy(), fn: it.g.fn}, nil
}

func (it *wrappedNodeIterator) Copy(upperBound int64) (webgraph.NodeIterator, error) {
	under, err := it.NodeIterator.Copy(upperBound)
	if err != nil {
		return nil, err
	}
	return &wrappedNodeIterator{NodeIterator: under, g: it.g, cur: it.cur}, nil
}
