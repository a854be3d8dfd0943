// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package label implements arc-labelled graphs: an overlay composing any
// underlying immutable graph with a parallel bit stream carrying one label
// per arc, aligned with the traversal order of the underlying graph.
//
// A label is a small capability: it serializes itself to and from a bit
// stream, given the source node of the arc it decorates. Labelled iterators
// follow a zero-allocation protocol: the label object handed back by an
// iterator is reused across calls, so callers wishing to retain one must
// Copy it.
//
// Loading a labelled graph resolves its underlying graph through the
// graphclass registry, so the package implementing the underlying format
// must be linked in (typically via a blank import of webgraph/bvgraph).
package label

import (
	"strings"
	"sync"

	"github.com/cockroachdb/swiss"
	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// Label is the capability required of a per-arc payload.
type Label interface {
	// Spec returns the descriptor stored in the labelspec property, in the
	// form Name(arg,…).
	Spec() string
	// Copy returns an independent copy of the label.
	Copy() Label
	// FromBitStream replaces the label's value with the one serialized at
	// the reader's position, for an arc leaving source.
	FromBitStream(r *bitstream.Reader, source int64) error
	// ToBitStream appends the label's bit serialization to w, for an arc
	// leaving source.
	ToBitStream(w *bitstream.Writer, source int64) error
}

// ConstructorFunc builds a label prototype from the arguments of a
// labelspec descriptor.
type ConstructorFunc func(args []string) (Label, error)

var labelClasses struct {
	sync.Mutex
	init bool
	m    swiss.Map[string, ConstructorFunc]
}

// Register associates a labelspec name with a constructor. Registering a
// name twice panics.
func Register(name string, ctor ConstructorFunc) {
	labelClasses.Lock()
	defer labelClasses.Unlock()
	if !labelClasses.init {
		labelClasses.m.Init(8)
		labelClasses.init = true
	}
	if _, ok := labelClasses.m.Get(name); ok {
		panic("label: label class registered twice: " + name)
	}
	labelClasses.m.Put(name, ctor)
}

// FromSpec parses a labelspec descriptor, Name(arg,…), and constructs the
// corresponding label prototype. Unknown names are a format error.
func FromSpec(spec string) (Label, error) {
	name, args := spec, ""
	if open := strings.IndexByte(spec, '('); open >= 0 {
		if !strings.HasSuffix(spec, ")") {
			return nil, base.CorruptionErrorf("label: malformed labelspec %q", spec)
		}
		name, args = spec[:open], spec[open+1:len(spec)-1]
	}
	name = strings.TrimPrefix(name, "class ")
	labelClasses.Lock()
	var ctor ConstructorFunc
	var ok bool
	if labelClasses.init {
		ctor, ok = labelClasses.m.Get(name)
	}
	labelClasses.Unlock()
	if !ok {
		return nil, base.CorruptionErrorf("label: unknown label class %q", name)
	}
	var argList []string
	if args != "" {
		argList = strings.Split(args, ",")
		for i := range argList {
			argList[i] = strings.TrimSpace(argList[i])
		}
	}
	return ctor(argList)
}

// ArcIterator enumerates the successors of one node together with the label
// of each traversed arc. Label returns the label of the arc most recently
// returned by NextLong; the returned object is reused by the next advance.
type ArcIterator interface {
	webgraph.LazyLongIterator
	Label() Label
}

// NodeIterator extends the plain node iterator with labelled successor
// enumeration.
type NodeIterator interface {
	webgraph.NodeIterator
	// LabelledSuccessors returns the successors of the current node paired
	// with their arc labels.
	LabelledSuccessors() (ArcIterator, error)
}

// ArcLabelledGraph is an immutable graph whose arcs carry labels.
type ArcLabelledGraph interface {
	webgraph.ImmutableGraph
	// Prototype returns a prototype of the graph's label type.
	Prototype() Label
	// LabelledSuccessors returns the successors of x paired with their arc
	// labels.
	LabelledSuccessors(x int64) (ArcIterator, error)
	// LabelledNodeIterator returns a node iterator with labelled successor
	// enumeration.
	LabelledNodeIterator(from int64) (NodeIterator, error)
}

// arrayArcIterator pairs a successor slice with pre-decoded labels.
type arrayArcIterator struct {
	succ   []int64
	labels []Label
	i      int
}

func (it *arrayArcIterator) NextLong() (int64, error) {
	if it.i >= len(it.succ) {
		return -1, nil
	}
	v := it.succ[it.i]
	it.i++
	return v, nil
}

func (it *arrayArcIterator) Label() Label {
	return it.labels[it.i-1]
}
