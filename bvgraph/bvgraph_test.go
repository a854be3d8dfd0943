// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/bvgraph"
	"github.com/webgraph/webgraph/internal/base"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// erdosRenyi generates a G(n, p) adjacency structure with geometric skips.
func erdosRenyi(n int64, p float64, seed uint64) [][]int64 {
	rng := rand.New(rand.NewSource(seed))
	logQ := math.Log1p(-p)
	succ := make([][]int64, n)
	for x := int64(0); x < n; x++ {
		t := int64(-1)
		for {
			skip := int64(math.Floor(math.Log(1-rng.Float64()) / logQ))
			t += 1 + skip
			if t >= n {
				break
			}
			succ[x] = append(succ[x], t)
		}
	}
	return succ
}

// cycle returns the bidirectional cycle on n nodes.
func cycle(n int64) [][]int64 {
	succ := make([][]int64, n)
	for i := int64(0); i < n; i++ {
		a, b := (i+n-1)%n, (i+1)%n
		if a > b {
			a, b = b, a
		}
		if a == b {
			succ[i] = []int64{a}
		} else {
			succ[i] = []int64{a, b}
		}
	}
	return succ
}

// symmetrizedInTree returns the complete binary in-tree of the given depth
// (arcs child → parent), symmetrized.
func symmetrizedInTree(depth int) [][]int64 {
	n := int64(1)<<(depth+1) - 1
	adj := make(map[int64]map[int64]bool)
	add := func(a, b int64) {
		if adj[a] == nil {
			adj[a] = make(map[int64]bool)
		}
		adj[a][b] = true
	}
	for i := int64(2); i <= n; i++ {
		child, parent := i-1, i/2-1
		add(child, parent)
		add(parent, child)
	}
	succ := make([][]int64, n)
	for x := int64(0); x < n; x++ {
		for t := int64(0); t < n; t++ {
			if adj[x][t] {
				succ[x] = append(succ[x], t)
			}
		}
	}
	return succ
}

// storeGraph compresses succ into dir and returns the basename.
func storeGraph(t *testing.T, succ [][]int64, cfg *bvgraph.Config) string {
	t.Helper()
	src, err := webgraph.Wrap(succ)
	require.NoError(t, err)
	basename := filepath.Join(t.TempDir(), "graph")
	stats, err := bvgraph.Store(src, basename, cfg)
	require.NoError(t, err)
	require.Equal(t, src.NumNodes(), stats.Nodes)
	require.Equal(t, src.NumArcs(), stats.Arcs)
	return basename
}

// checkGraph verifies g against the reference adjacency through both access
// paths.
func checkGraph(t *testing.T, g webgraph.ImmutableGraph, succ [][]int64) {
	t.Helper()
	require.Equal(t, int64(len(succ)), g.NumNodes())
	var m int64
	for _, s := range succ {
		m += int64(len(s))
	}
	require.Equal(t, m, g.NumArcs())

	it, err := g.NodeIterator(0)
	require.NoError(t, err)
	for x := int64(0); x < g.NumNodes(); x++ {
		require.True(t, it.HasNext())
		got, err := it.NextLong()
		require.NoError(t, err)
		require.Equal(t, x, got)
		d, err := it.Outdegree()
		require.NoError(t, err)
		require.Equal(t, int64(len(succ[x])), d)
		have, err := it.SuccessorArray()
		require.NoError(t, err)
		require.Equal(t, append([]int64(nil), succ[x]...), append([]int64(nil), have...))
	}
	require.False(t, it.HasNext())

	if !g.RandomAccess() {
		return
	}
	for x := int64(0); x < g.NumNodes(); x++ {
		d, err := g.Outdegree(x)
		require.NoError(t, err)
		require.Equal(t, int64(len(succ[x])), d)
		have, err := g.SuccessorArray(x)
		require.NoError(t, err)
		require.Equal(t, append([]int64(nil), succ[x]...), append([]int64(nil), have...))
		// The lazy iterator agrees and terminates with -1.
		li, err := g.Successors(x)
		require.NoError(t, err)
		for _, want := range succ[x] {
			v, err := li.NextLong()
			require.NoError(t, err)
			require.Equal(t, want, v)
		}
		v, err := li.NextLong()
		require.NoError(t, err)
		require.Equal(t, int64(-1), v)
	}
}

func TestSymmetrizedTreeArcCount(t *testing.T) {
	succ := symmetrizedInTree(10)
	var m int
	for _, s := range succ {
		m += len(s)
	}
	// Twice the number of tree edges.
	require.Equal(t, 2*((1<<11)-2), m)
}

func TestRoundTripScenarios(t *testing.T) {
	scenarios := map[string][][]int64{
		"empty":       nil,
		"singleton":   {nil},
		"cycle40":     cycle(40),
		"tree10":      symmetrizedInTree(10),
		"erdosrenyi":  erdosRenyi(1000, .001, 1),
		"denserandom": erdosRenyi(300, .05, 2),
	}
	for name, succ := range scenarios {
		t.Run(name, func(t *testing.T) {
			basename := storeGraph(t, succ, nil)
			g, err := bvgraph.Load(basename)
			require.NoError(t, err)
			defer g.Close()
			checkGraph(t, g, succ)
		})
	}
}

func TestRoundTripCompressionSettings(t *testing.T) {
	succ := erdosRenyi(500, .01, 3)
	configs := map[string]*bvgraph.Config{
		"defaults":      nil,
		"spec":          {WindowSize: 7, MaxRefCount: 3, MinIntervalLength: 4, ZetaK: 3},
		"nowindow":      {WindowSize: bvgraph.Disabled},
		"norefs":        {MaxRefCount: bvgraph.Disabled},
		"nointervals":   {MinIntervalLength: bvgraph.Disabled},
		"bigwindow":     {WindowSize: 16, MaxRefCount: 8, MinIntervalLength: 2},
		"deltaresidual": {Flags: bvgraph.Flags{Residuals: bvgraph.CodeDelta, Outdegrees: bvgraph.CodeDelta}},
		"nibbleunary":   {Flags: bvgraph.Flags{Residuals: bvgraph.CodeNibble, References: bvgraph.CodeUnary, Blocks: bvgraph.CodeGamma}},
		"zeta1":         {ZetaK: 1},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			basename := storeGraph(t, succ, cfg)
			g, err := bvgraph.Load(basename)
			require.NoError(t, err)
			defer g.Close()
			checkGraph(t, g, succ)
		})
	}
}

func TestLoadMapped(t *testing.T) {
	succ := erdosRenyi(400, .01, 4)
	basename := storeGraph(t, succ, nil)
	g, err := bvgraph.LoadMapped(basename)
	require.NoError(t, err)
	defer g.Close()
	require.True(t, g.RandomAccess())
	checkGraph(t, g, succ)
}

func TestLoadOffline(t *testing.T) {
	succ := erdosRenyi(400, .01, 5)
	basename := storeGraph(t, succ, nil)
	g, err := bvgraph.LoadOffline(basename)
	require.NoError(t, err)
	defer g.Close()

	require.False(t, g.RandomAccess())
	_, err = g.Outdegree(0)
	require.True(t, errors.Is(err, base.ErrUnsupported))
	_, err = g.SuccessorArray(0)
	require.True(t, errors.Is(err, base.ErrUnsupported))
	_, err = g.Copy()
	require.True(t, errors.Is(err, base.ErrUnsupported))

	checkGraph(t, g, succ)

	// Starting mid-stream decodes its way there.
	it, err := g.NodeIterator(100)
	require.NoError(t, err)
	got, err := it.NextLong()
	require.NoError(t, err)
	require.Equal(t, int64(100), got)
	have, err := it.SuccessorArray()
	require.NoError(t, err)
	require.Equal(t, append([]int64(nil), succ[100]...), append([]int64(nil), have...))
}

func TestLoadOnce(t *testing.T) {
	succ := erdosRenyi(200, .02, 6)
	basename := storeGraph(t, succ, nil)

	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	require.NoError(t, err)
	f, err := os.Open(basename + webgraph.GraphExtension)
	require.NoError(t, err)
	defer f.Close()

	g, err := bvgraph.LoadOnce(props, f)
	require.NoError(t, err)
	require.False(t, g.RandomAccess())
	require.False(t, g.HasCopiableIterators())
	checkGraph(t, g, succ)

	// The stream cannot be traversed a second time.
	_, err = g.NodeIterator(0)
	require.True(t, errors.Is(err, base.ErrUnsupported))
}

func TestNodeIteratorFrom(t *testing.T) {
	succ := erdosRenyi(600, .01, 7)
	basename := storeGraph(t, succ, nil)
	g, err := bvgraph.Load(basename)
	require.NoError(t, err)
	defer g.Close()

	for _, from := range []int64{0, 1, 5, 123, 599, 600} {
		it, err := g.NodeIterator(from)
		require.NoError(t, err)
		for x := from; x < g.NumNodes(); x++ {
			require.True(t, it.HasNext())
			got, err := it.NextLong()
			require.NoError(t, err)
			require.Equal(t, x, got)
			have, err := it.SuccessorArray()
			require.NoError(t, err)
			require.Equal(t, append([]int64(nil), succ[x]...), append([]int64(nil), have...))
		}
		require.False(t, it.HasNext())
	}

	_, err = g.NodeIterator(601)
	require.Error(t, err)
}

func TestSplitNodeIterators(t *testing.T) {
	succ := erdosRenyi(500, .01, 8)
	basename := storeGraph(t, succ, nil)
	g, err := bvgraph.Load(basename)
	require.NoError(t, err)
	defer g.Close()
	require.True(t, g.HasCopiableIterators())

	for _, k := range []int{1, 2, 5, 64} {
		its, err := g.SplitNodeIterators(k)
		require.NoError(t, err)
		require.Len(t, its, k)
		var x int64
		for _, it := range its {
			for it.HasNext() {
				got, err := it.NextLong()
				require.NoError(t, err)
				require.Equal(t, x, got)
				have, err := it.SuccessorArray()
				require.NoError(t, err)
				require.Equal(t, append([]int64(nil), succ[x]...), append([]int64(nil), have...))
				x++
			}
		}
		require.Equal(t, g.NumNodes(), x)
	}
}

func TestFlyweightConcurrency(t *testing.T) {
	succ := erdosRenyi(1000, .005, 9)
	basename := storeGraph(t, succ, nil)
	g, err := bvgraph.Load(basename)
	require.NoError(t, err)
	defer g.Close()

	var eg errgroup.Group
	for i := 0; i < 8; i++ {
		c, err := g.Copy()
		require.NoError(t, err)
		eg.Go(func() error {
			it, err := c.NodeIterator(0)
			if err != nil {
				return err
			}
			for x := int64(0); x < c.NumNodes(); x++ {
				if _, err := it.NextLong(); err != nil {
					return err
				}
				have, err := it.SuccessorArray()
				if err != nil {
					return err
				}
				if len(have) != len(succ[x]) {
					return errors.Newf("node %d: got %d successors, want %d", x, len(have), len(succ[x]))
				}
				for j := range have {
					if have[j] != succ[x][j] {
						return errors.Newf("node %d: successor %d mismatch", x, j)
					}
				}
				// Interleave random access on the same copy.
				if x%97 == 0 {
					if _, err := c.SuccessorArray(x); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}

func TestOffsetsBigListCache(t *testing.T) {
	succ := erdosRenyi(300, .02, 10)
	basename := storeGraph(t, succ, nil)
	require.NoError(t, bvgraph.SaveOffsetsBigList(basename))
	_, err := os.Stat(basename + webgraph.OffsetsBigListExtension)
	require.NoError(t, err)

	g, err := bvgraph.Load(basename)
	require.NoError(t, err)
	checkGraph(t, g, succ)
	require.NoError(t, g.Close())

	// A damaged cache is ignored and the offsets rebuilt from the γ stream.
	require.NoError(t, os.WriteFile(basename+webgraph.OffsetsBigListExtension, []byte("junk"), 0644))
	g, err = bvgraph.Load(basename)
	require.NoError(t, err)
	checkGraph(t, g, succ)
	require.NoError(t, g.Close())
}

func TestRegistryLoad(t *testing.T) {
	succ := cycle(16)
	basename := storeGraph(t, succ, nil)
	g, err := webgraph.Load(basename)
	require.NoError(t, err)
	checkGraph(t, g, succ)

	g2, err := webgraph.LoadMappedGraph(basename)
	require.NoError(t, err)
	checkGraph(t, g2, succ)

	g3, err := webgraph.LoadOfflineGraph(basename)
	require.NoError(t, err)
	require.False(t, g3.RandomAccess())
	checkGraph(t, g3, succ)
}

func TestPropertiesContent(t *testing.T) {
	succ := cycle(8)
	basename := storeGraph(t, succ, &bvgraph.Config{WindowSize: 5, Flags: bvgraph.Flags{Residuals: bvgraph.CodeGamma}})
	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	require.NoError(t, err)

	for key, want := range map[string]int64{
		webgraph.NodesProperty:             8,
		webgraph.ArcsProperty:              16,
		webgraph.WindowSizeProperty:        5,
		webgraph.MaxRefCountProperty:       3,
		webgraph.MinIntervalLengthProperty: 4,
		webgraph.ZetaKProperty:             3,
	} {
		v, err := props.RequireInt64(key)
		require.NoError(t, err)
		require.Equal(t, want, v, key)
	}
	cls, _ := props.Get(webgraph.GraphClassProperty)
	require.Equal(t, bvgraph.GraphClassName, cls)
	flags, _ := props.Get(webgraph.CompressionFlagsProperty)
	require.Equal(t, "RESIDUALS_GAMMA", flags)
}

func TestStoreLeavesNoPartialFiles(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "sub", "graph")
	src, err := webgraph.Wrap(cycle(4))
	require.NoError(t, err)
	// The parent directory does not exist: Store must fail cleanly.
	_, err = bvgraph.Store(src, basename, nil)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParseFlagsRoundTrip(t *testing.T) {
	for _, f := range []bvgraph.Flags{
		{},
		{Residuals: bvgraph.CodeGamma},
		{Outdegrees: bvgraph.CodeDelta, References: bvgraph.CodeUnary, Residuals: bvgraph.CodeZeta},
		{Blocks: bvgraph.CodeDelta, Intervals: bvgraph.CodeDelta, Residuals: bvgraph.CodeNibble},
	} {
		parsed, err := bvgraph.ParseFlags(f.String())
		require.NoError(t, err)
		require.Equal(t, f.String(), parsed.String())
	}
	_, err := bvgraph.ParseFlags("RESIDUALS_GOLOMB")
	require.Error(t, err)
	_, err = bvgraph.ParseFlags("garbage")
	require.Error(t, err)
}
