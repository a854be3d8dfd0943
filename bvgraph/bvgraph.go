// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package bvgraph implements the Boldi-Vigna compressed graph format: a
// bit-packed adjacency encoding with referential compression against a
// sliding window of previously encoded lists, interval extraction of
// consecutive-target runs, and gap-coded residuals.
//
// A graph with basename name is stored in three files: name.graph (the
// adjacency bit stream), name.offsets (γ-coded bit-position deltas, one per
// node plus a sentinel) and name.properties (the parameters required to
// parse the bit stream). An optional name.obl file caches the offsets in
// their final succinct form.
package bvgraph

import (
	"io"
	"math"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// GraphClassName is the value of the graphclass property identifying this
// format. The Java class name is kept for on-disk compatibility.
const GraphClassName = "it.unimi.dsi.big.webgraph.BVGraph"

// Default compression parameters.
const (
	DefaultWindowSize        = 7
	DefaultMaxRefCount       = 3
	DefaultMinIntervalLength = 4
	DefaultZetaK             = 3
)

// NoIntervals disables interval extraction when used as the minimum
// interval length.
const NoIntervals = 0

func init() {
	webgraph.RegisterGraphClass(GraphClassName,
		func(basename string, method webgraph.LoadMethod, logger base.Logger) (webgraph.ImmutableGraph, error) {
			return load(basename, method, logger)
		})
}

// BVGraph is an immutable compressed graph. A single instance is not safe
// for concurrent use; call Copy once per goroutine. Copies share the backing
// bit stream, the offsets table and the mapping, and own only their decode
// state.
type BVGraph struct {
	basename string
	method   webgraph.LoadMethod
	logger   base.Logger

	n int64
	m int64

	windowSize        int
	maxRefCount       int
	minIntervalLength int
	zetaK             int
	flags             Flags

	res     *resources
	data    io.ReaderAt  // graph bit stream; nil in ONCE mode
	bits    int64        // length of the bit stream in bits (byte-padded bound)
	offsets offsetsTable // nil in OFFLINE and ONCE modes
	stream  io.Reader    // ONCE mode source, consumed by the single iterator
	spent   bool         // ONCE iterator already produced

	// Cached readers for random access; lazily created, never shared across
	// copies.
	outdegreeReader *bitstream.Reader
	blockReader     *bitstream.Reader
}

var _ webgraph.ImmutableGraph = (*BVGraph)(nil)

// resources is the reference-counted immutable backing storage shared by
// flyweight copies.
type resources struct {
	refs   atomic.Int32
	mapped mmap.MMap
	file   *os.File
}

func (r *resources) acquire() {
	if r != nil {
		r.refs.Add(1)
	}
}

func (r *resources) release() error {
	if r == nil || r.refs.Add(-1) != 0 {
		return nil
	}
	var err error
	if r.mapped != nil {
		err = r.mapped.Unmap()
		r.mapped = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
		r.file = nil
	}
	return err
}

// Load loads a graph with bit stream and offsets in memory.
func Load(basename string) (*BVGraph, error) {
	return load(basename, webgraph.LoadStandard, nil)
}

// LoadMapped loads a graph accessing the bit stream through a read-only
// memory mapping, with offsets in memory.
func LoadMapped(basename string) (*BVGraph, error) {
	return load(basename, webgraph.LoadMapped, nil)
}

// LoadOffline sets up a graph for sequential-only access; nothing is loaded
// in memory and random access is unsupported.
func LoadOffline(basename string) (*BVGraph, error) {
	return load(basename, webgraph.LoadOffline, nil)
}

// LoadOnce returns a graph that can be traversed exactly once by reading
// the given open .graph stream. props must carry the compression parameters
// of the stream.
func LoadOnce(props *webgraph.Properties, r io.Reader) (*BVGraph, error) {
	g := &BVGraph{method: webgraph.LoadOnce, logger: base.DefaultLogger{}, stream: r}
	if err := g.configure(props); err != nil {
		return nil, err
	}
	return g, nil
}

func load(basename string, method webgraph.LoadMethod, logger base.Logger) (*BVGraph, error) {
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	switch method {
	case webgraph.LoadStandard, webgraph.LoadMapped, webgraph.LoadOffline:
	default:
		return nil, base.UnsupportedErrorf("bvgraph: load method %s requires an open stream", method)
	}
	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	if err != nil {
		return nil, err
	}
	g := &BVGraph{basename: basename, method: method, logger: logger}
	if err := g.configure(props); err != nil {
		return nil, err
	}
	if err := g.openData(); err != nil {
		g.res.release()
		return nil, err
	}
	if method != webgraph.LoadOffline {
		g.offsets, err = loadOffsets(basename, g.n, g.bits, logger)
		if err != nil {
			g.res.release()
			return nil, err
		}
	}
	return g, nil
}

func (g *BVGraph) configure(props *webgraph.Properties) error {
	if cls, ok := props.Get(webgraph.GraphClassProperty); ok {
		if resolved := resolveClassQuirks(cls); resolved != GraphClassName {
			return base.CorruptionErrorf("bvgraph: properties name graph class %q", cls)
		}
	}
	var err error
	if g.n, err = props.RequireInt64(webgraph.NodesProperty); err != nil {
		return err
	}
	if g.m, err = props.RequireInt64(webgraph.ArcsProperty); err != nil {
		return err
	}
	if g.n < 0 || g.m < 0 {
		return base.CorruptionErrorf("bvgraph: negative sizes (nodes=%d, arcs=%d)", g.n, g.m)
	}
	ints := []struct {
		key string
		dst *int
		min int
	}{
		{webgraph.WindowSizeProperty, &g.windowSize, 0},
		{webgraph.MaxRefCountProperty, &g.maxRefCount, 0},
		{webgraph.MinIntervalLengthProperty, &g.minIntervalLength, 0},
		{webgraph.ZetaKProperty, &g.zetaK, 1},
	}
	for _, f := range ints {
		v, err := props.RequireInt64(f.key)
		if err != nil {
			return err
		}
		if v < int64(f.min) || v > math.MaxInt32 {
			return base.CorruptionErrorf("bvgraph: property %s=%d out of range", f.key, v)
		}
		*f.dst = int(v)
	}
	if g.minIntervalLength == 1 {
		return base.CorruptionErrorf("bvgraph: minimum interval length must be 0 or at least 2")
	}
	flagsValue, _ := props.Get(webgraph.CompressionFlagsProperty)
	if g.flags, err = ParseFlags(flagsValue); err != nil {
		return err
	}
	g.flags = g.flags.withDefaults()
	return nil
}

// resolveClassQuirks strips the historical "class " prefix and remaps the
// 32-bit package name onto the big variant.
func resolveClassQuirks(name string) string {
	if len(name) > 6 && name[:6] == "class " {
		name = name[6:]
	}
	const small, big = "it.unimi.dsi.webgraph.", "it.unimi.dsi.big.webgraph."
	if len(name) > len(small) && name[:len(small)] == small {
		name = big + name[len(small):]
	}
	return name
}

func (g *BVGraph) openData() error {
	f, err := os.Open(g.basename + webgraph.GraphExtension)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	g.bits = info.Size() * 8
	switch g.method {
	case webgraph.LoadStandard:
		defer f.Close()
		g.res = &resources{}
		g.res.acquire()
		data, err := bitstream.ReadAllSegmented(f)
		if err != nil {
			return err
		}
		g.data = data
	case webgraph.LoadMapped:
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil && info.Size() > 0 {
			f.Close()
			return err
		}
		g.res = &resources{mapped: m, file: f}
		g.res.acquire()
		g.data = bitstream.ByteSlice(m)
	case webgraph.LoadOffline:
		g.res = &resources{file: f}
		g.res.acquire()
		g.data = f
	}
	return nil
}

// Close releases the resources owned by this graph or copy. Backing storage
// shared with other copies is released when the last copy is closed.
func (g *BVGraph) Close() error {
	res := g.res
	g.res = nil
	return res.release()
}

// Basename returns the on-disk basename of the graph.
func (g *BVGraph) Basename() string { return g.basename }

// NumNodes returns the number of nodes.
func (g *BVGraph) NumNodes() int64 { return g.n }

// NumArcs returns the number of arcs.
func (g *BVGraph) NumArcs() int64 { return g.m }

// RandomAccess reports whether offsets were loaded.
func (g *BVGraph) RandomAccess() bool { return g.offsets != nil }

// HasCopiableIterators reports whether node iterators support Copy; only
// stream-once graphs do not.
func (g *BVGraph) HasCopiableIterators() bool { return g.method != webgraph.LoadOnce }

// Copy returns a flyweight copy for use by another goroutine. All backing
// storage is shared; the copy owns only its decode state.
func (g *BVGraph) Copy() (webgraph.ImmutableGraph, error) {
	if !g.RandomAccess() {
		return nil, base.UnsupportedErrorf("bvgraph: cannot copy a sequential-only graph")
	}
	c := *g
	c.outdegreeReader = nil
	c.blockReader = nil
	c.res.acquire()
	return &c, nil
}

func (g *BVGraph) checkNode(x int64) error {
	if x < 0 || x >= g.n {
		return errors.Newf("bvgraph: node %d out of range [0, %d)", x, g.n)
	}
	return nil
}

func (g *BVGraph) requireRandomAccess() error {
	if !g.RandomAccess() {
		return base.UnsupportedErrorf("bvgraph: random access requires offsets (graph loaded %s)", g.method)
	}
	return nil
}

// Outdegree returns the outdegree of x in constant time.
func (g *BVGraph) Outdegree(x int64) (int64, error) {
	if err := g.requireRandomAccess(); err != nil {
		return 0, err
	}
	if err := g.checkNode(x); err != nil {
		return 0, err
	}
	if g.outdegreeReader == nil {
		g.outdegreeReader = bitstream.NewReader(g.data)
	}
	return g.readOutdegree(g.outdegreeReader, x)
}

func (g *BVGraph) readOutdegree(r *bitstream.Reader, x int64) (int64, error) {
	r.Position(g.offsets.get(x))
	d := readCoded(r, g.flags.Outdegrees, g.zetaK)
	if err := r.Err(); err != nil {
		return 0, err
	}
	if d < 0 || d > math.MaxInt32 {
		return 0, base.CorruptionErrorf("bvgraph: outdegree %d of node %d out of range", d, x)
	}
	return d, nil
}

// Successors returns a lazy iterator over the successors of x.
func (g *BVGraph) Successors(x int64) (webgraph.LazyLongIterator, error) {
	succ, err := g.SuccessorArray(x)
	if err != nil {
		return nil, err
	}
	return webgraph.ArrayLazyIterator(succ), nil
}

// SuccessorArray returns the successors of x as a freshly decoded slice,
// expanding the reference chain iteratively.
func (g *BVGraph) SuccessorArray(x int64) ([]int64, error) {
	if err := g.requireRandomAccess(); err != nil {
		return nil, err
	}
	if err := g.checkNode(x); err != nil {
		return nil, err
	}
	if g.blockReader == nil {
		g.blockReader = bitstream.NewReader(g.data)
	}
	return g.successorArrayWith(g.blockReader, x)
}

// successorArrayWith decodes the successors of x through the given reader,
// so that node iterators can prime their windows without touching the
// graph's cached readers.
func (g *BVGraph) successorArrayWith(r *bitstream.Reader, x int64) ([]int64, error) {
	// Phase one: walk the reference chain, parsing each block. The chain
	// length is bounded by the max reference count recorded at compression
	// time; anything longer is corrupt.
	frames := make([]*blockFrame, 0, g.maxRefCount+1)
	y := x
	for {
		r.Position(g.offsets.get(y))
		f, err := g.readBlock(r, y, func(ref int64) (int64, error) {
			pos := r.BitPosition()
			d, err := g.readOutdegree(r, ref)
			r.Position(pos)
			return d, err
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		if f.ref <= 0 {
			break
		}
		if len(frames) > g.maxRefCount {
			return nil, base.CorruptionErrorf("bvgraph: reference chain at node %d exceeds %d", x, g.maxRefCount)
		}
		y -= f.ref
	}

	// Phase two: expand bottom-up.
	var succ []int64
	for i := len(frames) - 1; i >= 0; i-- {
		var err error
		succ, err = frames[i].expand(succ, nil)
		if err != nil {
			return nil, err
		}
	}
	return succ, nil
}

// NodeIterator returns a sequential iterator over nodes ≥ from; see
// node_iterator.go for the window machinery.
func (g *BVGraph) NodeIterator(from int64) (webgraph.NodeIterator, error) {
	return g.newNodeIterator(from)
}

// SplitNodeIterators returns howMany iterators over a disjoint partition of
// the node id space.
func (g *BVGraph) SplitNodeIterators(howMany int) ([]webgraph.NodeIterator, error) {
	return webgraph.SplitNodeIteratorsByRanges(g, howMany)
}
