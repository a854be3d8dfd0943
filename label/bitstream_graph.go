// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package label

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
	"github.com/webgraph/webgraph/internal/eliasfano"
)

// GraphClassName is the graphclass property value identifying the
// bit-stream labelled format. The Java class name is kept for on-disk
// compatibility.
const GraphClassName = "it.unimi.dsi.big.webgraph.labelling.BitStreamArcLabelledImmutableGraph"

func init() {
	webgraph.RegisterGraphClass(GraphClassName,
		func(basename string, method webgraph.LoadMethod, logger base.Logger) (webgraph.ImmutableGraph, error) {
			return load(basename, method, logger)
		})
}

// BitStreamArcLabelledGraph composes an underlying immutable graph with a
// parallel bit stream of per-arc labels. The label of the j-th arc of node
// x is the j-th label serialized after bit position labeloffsets[x].
type BitStreamArcLabelledGraph struct {
	basename   string
	method     webgraph.LoadMethod
	logger     base.Logger
	underlying webgraph.ImmutableGraph
	prototype  Label

	labels    io.ReaderAt
	labelBits int64
	offsets   *eliasfano.List // nil without random access
	res       *resources
}

var _ ArcLabelledGraph = (*BitStreamArcLabelledGraph)(nil)

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

// Load loads a labelled graph with labels and label offsets in memory.
func Load(basename string) (*BitStreamArcLabelledGraph, error) {
	return load(basename, webgraph.LoadStandard, nil)
}

// LoadMapped loads a labelled graph accessing the label stream through a
// read-only memory mapping.
func LoadMapped(basename string) (*BitStreamArcLabelledGraph, error) {
	return load(basename, webgraph.LoadMapped, nil)
}

// LoadSequential sets up a labelled graph for sequential-only access.
func LoadSequential(basename string) (*BitStreamArcLabelledGraph, error) {
	return load(basename, webgraph.LoadSequential, nil)
}

func load(basename string, method webgraph.LoadMethod, logger base.Logger) (*BitStreamArcLabelledGraph, error) {
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	switch method {
	case webgraph.LoadStandard, webgraph.LoadMapped, webgraph.LoadOffline, webgraph.LoadSequential:
	default:
		return nil, base.UnsupportedErrorf("label: load method %s is not supported by the labelled format", method)
	}
	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	if err != nil {
		return nil, err
	}
	underlyingName, err := props.Require(webgraph.UnderlyingGraphProperty)
	if err != nil {
		return nil, err
	}
	// A relative underlying basename is resolved against the directory of
	// the label properties file.
	if !filepath.IsAbs(underlyingName) {
		underlyingName = filepath.Join(filepath.Dir(basename), underlyingName)
	}
	spec, err := props.Require(webgraph.LabelSpecProperty)
	if err != nil {
		return nil, err
	}
	prototype, err := FromSpec(spec)
	if err != nil {
		return nil, err
	}
	underlyingMethod := method
	if underlyingMethod == webgraph.LoadSequential {
		underlyingMethod = webgraph.LoadOffline
	}
	underlying, err := webgraph.LoadGraph(underlyingName, underlyingMethod, logger)
	if err != nil {
		return nil, err
	}

	g := &BitStreamArcLabelledGraph{
		basename:   basename,
		method:     method,
		logger:     logger,
		underlying: underlying,
		prototype:  prototype,
	}
	if err := g.openLabels(); err != nil {
		g.res.release()
		return nil, err
	}
	if method == webgraph.LoadStandard || method == webgraph.LoadMapped {
		g.offsets, err = loadLabelOffsets(basename, underlying.NumNodes(), g.labelBits, logger)
		if err != nil {
			g.res.release()
			return nil, err
		}
	}
	return g, nil
}

func (g *BitStreamArcLabelledGraph) openLabels() error {
	f, err := os.Open(g.basename + webgraph.LabelsExtension)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	g.labelBits = info.Size() * 8
	switch g.method {
	case webgraph.LoadStandard:
		defer f.Close()
		g.res = &resources{}
		g.res.acquire()
		data, err := bitstream.ReadAllSegmented(f)
		if err != nil {
			return err
		}
		g.labels = data
	case webgraph.LoadMapped:
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil && info.Size() > 0 {
			f.Close()
			return err
		}
		g.res = &resources{mapped: m, file: f}
		g.res.acquire()
		g.labels = bitstream.ByteSlice(m)
	default:
		g.res = &resources{file: f}
		g.res.acquire()
		g.labels = f
	}
	return nil
}

// loadLabelOffsets loads the label offsets in Elias-Fano form, preferring
// the .labelobl cache when present and intact.
func loadLabelOffsets(basename string, n, labelBits int64, logger base.Logger) (*eliasfano.List, error) {
	if f, err := os.Open(basename + webgraph.LabelOffsetsBigListExtension); err == nil {
		list, err := eliasfano.ReadFrom(f)
		f.Close()
		if err == nil && list.Len() == n+1 {
			return list, nil
		}
		logger.Infof("label: ignoring label offsets big list for %s: %v", basename, err)
	}
	f, err := os.Open(basename + webgraph.LabelOffsetsExtension)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bitstream.NewStreamReader(f)
	b := eliasfano.NewBuilder(n+1, uint64(labelBits)+1)
	var c int64
	for i := int64(0); i <= n; i++ {
		c += r.ReadGamma()
		b.Push(uint64(c))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if c > labelBits {
		return nil, base.CorruptionErrorf("label: offsets sentinel %d beyond label bit length %d", c, labelBits)
	}
	return b.Finish()
}

// Close releases the label resources and closes the underlying graph if it
// holds resources of its own.
func (g *BitStreamArcLabelledGraph) Close() error {
	res := g.res
	g.res = nil
	err := res.release()
	if c, ok := g.underlying.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Basename returns the labelled graph's basename.
func (g *BitStreamArcLabelledGraph) Basename() string { return g.basename }

// NumNodes returns the number of nodes of the underlying graph.
func (g *BitStreamArcLabelledGraph) NumNodes() int64 { return g.underlying.NumNodes() }

// NumArcs returns the number of arcs of the underlying graph.
func (g *BitStreamArcLabelledGraph) NumArcs() int64 { return g.underlying.NumArcs() }

// RandomAccess reports whether both the underlying graph and the label
// offsets support random access.
func (g *BitStreamArcLabelledGraph) RandomAccess() bool {
	return g.offsets != nil && g.underlying.RandomAccess()
}

// HasCopiableIterators reports whether node iterators support Copy.
func (g *BitStreamArcLabelledGraph) HasCopiableIterators() bool {
	return g.underlying.HasCopiableIterators()
}

// Prototype returns a prototype of the graph's label type.
func (g *BitStreamArcLabelledGraph) Prototype() Label { return g.prototype }

// Underlying returns the graph this overlay decorates.
func (g *BitStreamArcLabelledGraph) Underlying() webgraph.ImmutableGraph { return g.underlying }

// Outdegree returns the outdegree of x.
func (g *BitStreamArcLabelledGraph) Outdegree(x int64) (int64, error) {
	return g.underlying.Outdegree(x)
}

// Successors returns the successors of x, without labels.
func (g *BitStreamArcLabelledGraph) Successors(x int64) (webgraph.LazyLongIterator, error) {
	return g.underlying.Successors(x)
}

// SuccessorArray returns the successors of x, without labels.
func (g *BitStreamArcLabelledGraph) SuccessorArray(x int64) ([]int64, error) {
	return g.underlying.SuccessorArray(x)
}

func (g *BitStreamArcLabelledGraph) requireRandomAccess() error {
	if !g.RandomAccess() {
		return base.UnsupportedErrorf("label: random access requires label offsets (graph loaded %s)", g.method)
	}
	return nil
}

// LabelledSuccessors returns the successors of x paired with their arc
// labels. The Label object returned by the iterator is reused across
// advances.
func (g *BitStreamArcLabelledGraph) LabelledSuccessors(x int64) (ArcIterator, error) {
	if err := g.requireRandomAccess(); err != nil {
		return nil, err
	}
	under, err := g.underlying.Successors(x)
	if err != nil {
		return nil, err
	}
	r := bitstream.NewReader(g.labels)
	r.Position(int64(g.offsets.Get(x)))
	return &labelledArcIterator{
		under:  under,
		r:      r,
		label:  g.prototype.Copy(),
		source: x,
	}, nil
}

type labelledArcIterator struct {
	under  webgraph.LazyLongIterator
	r      *bitstream.Reader
	label  Label
	source int64
	err    error
}

func (it *labelledArcIterator) NextLong() (int64, error) {
	if it.err != nil {
		return 0, it.err
	}
	t, err := it.under.NextLong()
	if err != nil || t == -1 {
		it.err = err
		return t, err
	}
	if err := it.label.FromBitStream(it.r, it.source); err != nil {
		it.err = err
		return 0, err
	}
	return t, nil
}

func (it *labelledArcIterator) Label() Label { return it.label }

// NodeIterator returns the iterator of LabelledNodeIterator, which also
// decodes the labels of each node as it advances.
func (g *BitStreamArcLabelledGraph) NodeIterator(from int64) (webgraph.NodeIterator, error) {
	return g.LabelledNodeIterator(from)
}

// LabelledNodeIterator returns a node iterator with labelled successor
// enumeration. Without label offsets the iteration must start by decoding
// the labels of every node before from.
func (g *BitStreamArcLabelledGraph) LabelledNodeIterator(from int64) (NodeIterator, error) {
	r := bitstream.NewReader(g.labels)
	start := from
	if g.offsets != nil {
		r.Position(int64(g.offsets.Get(from)))
	} else if from > 0 {
		start = 0
	}
	under, err := g.underlying.NodeIterator(start)
	if err != nil {
		return nil, err
	}
	it := &labelledNodeIterator{g: g, under: under, r: r, limit: g.NumNodes()}
	for ; start < from; start++ {
		if _, err := it.NextLong(); err != nil {
			return nil, err
		}
	}
	it.valid = false
	return it, nil
}

// SplitNodeIterators returns howMany iterators over a disjoint partition of
// the node id space.
func (g *BitStreamArcLabelledGraph) SplitNodeIterators(howMany int) ([]webgraph.NodeIterator, error) {
	return webgraph.SplitNodeIteratorsByRanges(g, howMany)
}

// Copy returns a flyweight copy: the underlying graph is copied, the label
// stream and offsets are shared.
func (g *BitStreamArcLabelledGraph) Copy() (webgraph.ImmutableGraph, error) {
	if !g.RandomAccess() {
		return nil, base.UnsupportedErrorf("label: cannot copy a sequential-only graph")
	}
	under, err := g.underlying.Copy()
	if err != nil {
		return nil, err
	}
	c := *g
	c.underlying = under
	c.res.acquire()
	return &c, nil
}

// labelledNodeIterator decodes, for each node, the labels of all its arcs
// into a reused slice of reused label objects.
type labelledNodeIterator struct {
	g     *BitStreamArcLabelledGraph
	under webgraph.NodeIterator
	r     *bitstream.Reader
	limit int64

	labels []Label
	cur    int64
	curN   int
	valid  bool
	err    error
}

var _ NodeIterator = (*labelledNodeIterator)(nil)

func (it *labelledNodeIterator) HasNext() bool {
	return it.err == nil && it.under.HasNext()
}

func (it *labelledNodeIterator) NextLong() (int64, error) {
	if it.err != nil {
		return 0, it.err
	}
	x, err := it.under.NextLong()
	if err != nil {
		it.err = err
		return 0, err
	}
	succ, err := it.under.SuccessorArray()
	if err != nil {
		it.err = err
		return 0, err
	}
	for len(it.labels) < len(succ) {
		it.labels = append(it.labels, it.g.prototype.Copy())
	}
	for i := range succ {
		if err := it.labels[i].FromBitStream(it.r, x); err != nil {
			it.err = err
			return 0, err
		}
	}
	it.cur = x
	it.curN = len(succ)
	it.valid = true
	return x, nil
}

func (it *labelledNodeIterator) current() error {
	if it.err != nil {
		return it.err
	}
	if !it.valid {
		return base.UnsupportedErrorf("label: access before NextLong")
	}
	return nil
}

func (it *labelledNodeIterator) Outdegree() (int64, error) {
	if err := it.current(); err != nil {
		return 0, err
	}
	return int64(it.curN), nil
}

func (it *labelledNodeIterator) Successors() (webgraph.LazyLongIterator, error) {
	if err := it.current(); err != nil {
		return nil, err
	}
	return it.under.Successors()
}

func (it *labelledNodeIterator) SuccessorArray() ([]int64, error) {
	if err := it.current(); err != nil {
		return nil, err
	}
	return it.under.SuccessorArray()
}

func (it *labelledNodeIterator) LabelledSuccessors() (ArcIterator, error) {
	if err := it.current(); err != nil {
		return nil, err
	}
	succ, err := it.under.SuccessorArray()
	if err != nil {
		return nil, err
	}
	return &arrayArcIterator{succ: succ, labels: it.labels[:it.curN]}, nil
}

func (it *labelledNodeIterator) Copy(upperBound int64) (webgraph.NodeIterator, error) {
	if it.err != nil {
		return nil, it.err
	}
	under, err := it.under.Copy(upperBound)
	if err != nil {
		return nil, err
	}
	c := &labelledNodeIterator{
		g:     it.g,
		under: under,
		limit: it.limit,
		cur:   it.cur,
		curN:  it.curN,
		valid: it.valid,
	}
	if upperBound < c.limit {
		c.limit = upperBound
	}
	c.r = bitstream.NewReader(it.g.labels)
	c.r.Position(it.r.BitPosition())
	for i := 0; i < it.curN; i++ {
		c.labels = append(c.labels, it.labels[i].Copy())
	}
	return c, nil
}
