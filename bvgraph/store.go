// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"fmt"
	"os"
	"time"

	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

const tempSuffix = ".tmp"

// Config holds compression parameters for Store. The zero value selects the
// defaults; to disable a windowed feature outright, set the field to
// Disabled.
type Config struct {
	// WindowSize is the maximum reference distance. Disabled turns
	// referential compression off.
	WindowSize int
	// MaxRefCount bounds the length of reference chains: at most
	// MaxRefCount consecutive nodes may each use a non-zero reference
	// before one must be encoded without one. Disabled forbids references.
	MaxRefCount int
	// MinIntervalLength is the minimum run of consecutive targets encoded
	// as an interval. Disabled turns interval extraction off.
	MinIntervalLength int
	// ZetaK is the shrinking factor of the ζ code used for residuals.
	ZetaK int
	// Flags selects the code for each stream position.
	Flags Flags

	Logger  base.Logger
	Metrics *Metrics
}

// Disabled turns off the corresponding Config feature.
const Disabled = -1

func (c *Config) ensureDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	out := *c
	switch {
	case out.WindowSize == 0:
		out.WindowSize = DefaultWindowSize
	case out.WindowSize == Disabled:
		out.WindowSize = 0
	}
	switch {
	case out.MaxRefCount == 0:
		out.MaxRefCount = DefaultMaxRefCount
	case out.MaxRefCount == Disabled:
		out.MaxRefCount = 0
	}
	switch {
	case out.MinIntervalLength == 0:
		out.MinIntervalLength = DefaultMinIntervalLength
	case out.MinIntervalLength == Disabled:
		out.MinIntervalLength = NoIntervals
	}
	if out.ZetaK == 0 {
		out.ZetaK = DefaultZetaK
	}
	out.Flags = out.Flags.withDefaults()
	if out.Logger == nil {
		out.Logger = base.DefaultLogger{}
	}
	return &out
}

// Store compresses source and writes the .graph, .offsets and .properties
// files for the given basename. The files are written under temporary names
// and renamed into place only after everything has been flushed and synced;
// a failure leaves no partial artifacts behind.
func Store(source webgraph.ImmutableGraph, basename string, cfg *Config) (*Stats, error) {
	cfg = cfg.ensureDefaults()
	if err := cfg.Flags.validate(); err != nil {
		return nil, err
	}
	if cfg.MinIntervalLength == 1 {
		return nil, base.CorruptionErrorf("bvgraph: minimum interval length must be Disabled or at least 2")
	}

	paths := [3]string{
		basename + webgraph.GraphExtension,
		basename + webgraph.OffsetsExtension,
		basename + webgraph.PropertiesExtension,
	}
	var files [3]*os.File
	cleanup := func() {
		for i, f := range files {
			if f != nil {
				f.Close()
			}
			os.Remove(paths[i] + tempSuffix)
		}
	}
	for i, p := range paths {
		f, err := os.Create(p + tempSuffix)
		if err != nil {
			cleanup()
			return nil, err
		}
		files[i] = f
	}

	e := &encoder{
		cfg:    cfg,
		obs:    bitstream.NewWriter(files[0]),
		oobs:   bitstream.NewWriter(files[1]),
		stats:  newStats(),
		cyclic: int64(cfg.WindowSize) + 1,
	}
	e.window = make([][]int64, e.cyclic)
	e.refCount = make([]int, e.cyclic)

	if err := e.run(source); err != nil {
		cleanup()
		return nil, err
	}

	props := e.properties()
	if err := props.Write(files[2],
		webgraph.GraphClassProperty, "version",
		webgraph.NodesProperty, webgraph.ArcsProperty,
		webgraph.WindowSizeProperty, webgraph.MaxRefCountProperty,
		webgraph.MinIntervalLengthProperty, webgraph.ZetaKProperty,
		webgraph.CompressionFlagsProperty); err != nil {
		cleanup()
		return nil, err
	}

	for i, f := range files {
		if err := f.Sync(); err != nil {
			cleanup()
			return nil, err
		}
		if err := f.Close(); err != nil {
			files[i] = nil
			cleanup()
			return nil, err
		}
		files[i] = nil
	}
	for i := range paths {
		if err := os.Rename(paths[i]+tempSuffix, paths[i]); err != nil {
			for _, done := range paths[:i] {
				os.Remove(done)
			}
			cleanup()
			return nil, err
		}
	}
	return e.stats, nil
}

type encoder struct {
	cfg  *Config
	obs  *bitstream.Writer // graph bit stream
	oobs *bitstream.Writer // offsets bit stream

	cyclic   int64
	window   [][]int64
	refCount []int

	stats *Stats
}

func (e *encoder) run(source webgraph.ImmutableGraph) error {
	it, err := source.NodeIterator(0)
	if err != nil {
		return err
	}
	// The offsets stream is seeded with the absolute offset of node 0.
	e.oobs.WriteGamma(0)
	var lastBits int64
	var x int64
	for it.HasNext() {
		if _, err := it.NextLong(); err != nil {
			return err
		}
		succ, err := it.SuccessorArray()
		if err != nil {
			return err
		}
		start := time.Time{}
		if m := e.cfg.Metrics; m != nil && m.EncodeLatency != nil {
			start = time.Now()
		}
		if err := e.encodeNode(x, succ); err != nil {
			return err
		}
		if m := e.cfg.Metrics; m != nil && m.EncodeLatency != nil {
			m.EncodeLatency.Observe(time.Since(start).Seconds())
		}
		e.oobs.WriteGamma(e.obs.WrittenBits() - lastBits)
		lastBits = e.obs.WrittenBits()
		e.stats.Nodes++
		e.stats.Arcs += int64(len(succ))
		e.stats.recordGaps(succ)
		x++
	}
	e.stats.TotalBits = e.obs.WrittenBits()
	if err := e.obs.Flush(); err != nil {
		return err
	}
	if err := e.oobs.Flush(); err != nil {
		return err
	}
	return nil
}

// encodeNode writes the block of node x, choosing the reference that
// minimizes the exact bit cost among the candidates still within the
// reference-chain budget.
func (e *encoder) encodeNode(x int64, succ []int64) error {
	before := e.obs.WrittenBits()
	writeCoded(e.obs, e.cfg.Flags.Outdegrees, e.cfg.ZetaK, int64(len(succ)))
	e.stats.BitsForOutdegrees += e.obs.WrittenBits() - before

	ref := 0
	if len(succ) > 0 {
		ref = e.chooseReference(x, succ)
		if err := e.diffComp(e.obs, x, int64(ref), e.refList(x, ref), succ, e.stats); err != nil {
			return err
		}
	}

	// Slide the window.
	slot := x % e.cyclic
	e.window[slot] = append(e.window[slot][:0], succ...)
	if ref == 0 {
		e.refCount[slot] = 0
	} else {
		e.refCount[slot] = e.refCount[(x-int64(ref))%e.cyclic] + 1
	}
	return e.obs.Err()
}

func (e *encoder) refList(x int64, ref int) []int64 {
	if ref == 0 {
		return nil
	}
	return e.window[(x-int64(ref))%e.cyclic]
}

func (e *encoder) chooseReference(x int64, succ []int64) int {
	if e.cfg.WindowSize == 0 {
		return 0
	}
	best := 0
	bestCost := e.cost(x, 0, nil, succ)
	maxR := int64(e.cfg.WindowSize)
	if x < maxR {
		maxR = x
	}
	for r := int64(1); r <= maxR; r++ {
		slot := (x - r) % e.cyclic
		if e.refCount[slot] >= e.cfg.MaxRefCount {
			continue
		}
		if c := e.cost(x, r, e.window[slot], succ); c < bestCost {
			bestCost = c
			best = int(r)
		}
	}
	return best
}

func (e *encoder) cost(x, ref int64, refList, succ []int64) int64 {
	w := bitstream.NewBitCounter()
	if err := e.diffComp(w, x, ref, refList, succ, nil); err != nil {
		// An encoding that cannot be produced must never win.
		return int64(^uint64(0) >> 1)
	}
	return w.WrittenBits()
}

// diffComp writes the body of a block (everything after the outdegree):
// reference, copy blocks, intervals and residuals. With a nil stats it is
// used as a pure cost probe against a bit counter.
func (e *encoder) diffComp(w *bitstream.Writer, x, ref int64, refList, succ []int64, stats *Stats) error {
	f := e.cfg.Flags
	k := e.cfg.ZetaK
	mark := w.WrittenBits()

	if e.cfg.WindowSize > 0 {
		writeCoded(w, f.References, k, ref)
		if stats != nil {
			stats.BitsForReferences += w.WrittenBits() - mark
		}
	}

	extras := succ
	if ref > 0 {
		var blocks []int64
		blocks, extras = computeBlocks(refList, succ)
		mark = w.WrittenBits()
		writeCoded(w, f.Blocks, k, int64(len(blocks)))
		for i, b := range blocks {
			if i > 0 {
				b--
			}
			writeCoded(w, f.Blocks, k, b)
		}
		if stats != nil {
			stats.BitsForBlocks += w.WrittenBits() - mark
		}
	}

	if e.cfg.MinIntervalLength != NoIntervals {
		var intervals [][2]int64
		intervals, extras = intervalize(extras, e.cfg.MinIntervalLength)
		mark = w.WrittenBits()
		writeCoded(w, f.Intervals, k, int64(len(intervals)))
		var prev int64
		for i, iv := range intervals {
			if i == 0 {
				writeCoded(w, f.Intervals, k, int2nat(iv[0]-x))
			} else {
				writeCoded(w, f.Intervals, k, iv[0]-prev-1)
			}
			writeCoded(w, f.Intervals, k, iv[1]-int64(e.cfg.MinIntervalLength))
			prev = iv[0] + iv[1]
		}
		if stats != nil {
			stats.BitsForIntervals += w.WrittenBits() - mark
		}
	}

	mark = w.WrittenBits()
	prev := int64(-1)
	for i, t := range extras {
		if i == 0 {
			writeCoded(w, f.Residuals, k, int2nat(t-x))
		} else {
			writeCoded(w, f.Residuals, k, t-prev-1)
		}
		prev = t
	}
	if stats != nil {
		stats.BitsForResiduals += w.WrittenBits() - mark
	}
	return w.Err()
}

// computeBlocks derives the copy-list run lengths over refList with respect
// to succ, and the extra targets of succ not supplied by the copy. The
// final run is left implicit: its parity is recovered from the run count.
func computeBlocks(refList, succ []int64) (blocks, extras []int64) {
	var runs []int64
	copying := true
	var runLen int64
	j := 0
	for _, t := range refList {
		for j < len(succ) && succ[j] < t {
			extras = append(extras, succ[j])
			j++
		}
		match := j < len(succ) && succ[j] == t
		if match == copying {
			runLen++
		} else {
			runs = append(runs, runLen)
			runLen = 1
			copying = !copying
		}
		if match {
			j++
		}
	}
	extras = append(extras, succ[j:]...)
	runs = append(runs, runLen)
	return runs[:len(runs)-1], extras
}

// intervalize extracts maximal runs of consecutive targets of length at
// least minLen, returning the intervals and the residual targets.
func intervalize(extras []int64, minLen int) (intervals [][2]int64, residuals []int64) {
	i := 0
	for i < len(extras) {
		j := i + 1
		for j < len(extras) && extras[j] == extras[j-1]+1 {
			j++
		}
		if j-i >= minLen {
			intervals = append(intervals, [2]int64{extras[i], int64(j - i)})
		} else {
			residuals = append(residuals, extras[i:j]...)
		}
		i = j
	}
	return intervals, residuals
}

func (e *encoder) properties() *webgraph.Properties {
	props := webgraph.NewProperties()
	props.Set(webgraph.GraphClassProperty, GraphClassName)
	props.Set("version", "0")
	props.SetInt64(webgraph.NodesProperty, e.stats.Nodes)
	props.SetInt64(webgraph.ArcsProperty, e.stats.Arcs)
	props.SetInt64(webgraph.WindowSizeProperty, int64(e.cfg.WindowSize))
	props.SetInt64(webgraph.MaxRefCountProperty, int64(e.cfg.MaxRefCount))
	props.SetInt64(webgraph.MinIntervalLengthProperty, int64(e.cfg.MinIntervalLength))
	props.SetInt64(webgraph.ZetaKProperty, int64(e.cfg.ZetaK))
	props.Set(webgraph.CompressionFlagsProperty, e.cfg.Flags.String())
	props.Set("avggap", fmt.Sprintf("%.3f", e.stats.AvgGap()))
	props.Set("bitsperlink", fmt.Sprintf("%.3f", e.stats.BitsPerLink()))
	props.SetInt64("bitsforoutdegrees", e.stats.BitsForOutdegrees)
	props.SetInt64("bitsforreferences", e.stats.BitsForReferences)
	props.SetInt64("bitsforblocks", e.stats.BitsForBlocks)
	props.SetInt64("bitsforintervals", e.stats.BitsForIntervals)
	props.SetInt64("bitsforresiduals", e.stats.BitsForResiduals)
	props.SetInt64("totalbits", e.stats.TotalBits)
	return props
}
