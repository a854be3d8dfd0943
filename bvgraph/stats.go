// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

// maxRecordedGap bounds the successor-gap histogram; larger gaps are
// clamped. 2^40 covers any plausible web-scale node id distance.
const maxRecordedGap = 1 << 40

// Stats accumulates compression statistics during Store. The per-component
// bit counters and the average gap are also written to the .properties file
// as diagnostics; the rest of the gap distribution is not.
type Stats struct {
	Nodes int64
	Arcs  int64

	BitsForOutdegrees int64
	BitsForReferences int64
	BitsForBlocks     int64
	BitsForIntervals  int64
	BitsForResiduals  int64
	TotalBits         int64

	gaps *hdrhistogram.Histogram
}

func newStats() *Stats {
	return &Stats{gaps: hdrhistogram.New(1, maxRecordedGap, 3)}
}

func (s *Stats) recordGaps(succ []int64) {
	for i := 1; i < len(succ); i++ {
		gap := succ[i] - succ[i-1]
		if gap > maxRecordedGap {
			gap = maxRecordedGap
		}
		_ = s.gaps.RecordValue(gap)
	}
}

// AvgGap returns the mean gap between consecutive successors.
func (s *Stats) AvgGap() float64 {
	return s.gaps.Mean()
}

// GapPercentile returns the p-th percentile of the successor-gap
// distribution.
func (s *Stats) GapPercentile(p float64) int64 {
	return s.gaps.ValueAtQuantile(p)
}

// BitsPerLink returns the overall cost of the graph stream per arc.
func (s *Stats) BitsPerLink() float64 {
	if s.Arcs == 0 {
		return 0
	}
	return float64(s.TotalBits) / float64(s.Arcs)
}

// String implements fmt.Stringer.
func (s *Stats) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements redact.SafeFormatter.
func (s *Stats) SafeFormat(p redact.SafePrinter, _ rune) {
	p.Printf("nodes: %d  arcs: %d  bits/link: %.3f  avg gap: %.3f\n",
		s.Nodes, s.Arcs, s.BitsPerLink(), s.AvgGap())
	p.Printf("bits: outdegrees %d, references %d, blocks %d, intervals %d, residuals %d, total %d",
		s.BitsForOutdegrees, s.BitsForReferences, s.BitsForBlocks,
		s.BitsForIntervals, s.BitsForResiduals, s.TotalBits)
}

// Metrics holds optional external instrumentation for Store, following the
// convention that the caller constructs and registers the collectors.
type Metrics struct {
	// EncodeLatency, if set, observes the wall time spent encoding each
	// node, in seconds.
	EncodeLatency prometheus.Histogram
}
