// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package webgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapValidation(t *testing.T) {
	_, err := Wrap([][]int64{{1, 1}})
	require.Error(t, err, "duplicate successor")
	_, err = Wrap([][]int64{{2, 1}, nil, nil})
	require.Error(t, err, "descending successors")
	_, err = Wrap([][]int64{{3}})
	require.Error(t, err, "target out of range")
	g, err := Wrap([][]int64{{0, 1}, nil})
	require.NoError(t, err, "self-loops are allowed")
	require.Equal(t, int64(2), g.NumNodes())
	require.Equal(t, int64(2), g.NumArcs())
}

func TestWrapAccess(t *testing.T) {
	g, err := Wrap([][]int64{{1, 2}, {2}, nil})
	require.NoError(t, err)
	require.True(t, g.RandomAccess())

	d, err := g.Outdegree(0)
	require.NoError(t, err)
	require.Equal(t, int64(2), d)
	_, err = g.Outdegree(3)
	require.Error(t, err)

	succ, err := g.SuccessorArray(0)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, succ)

	it, err := g.Successors(2)
	require.NoError(t, err)
	v, err := it.NextLong()
	require.NoError(t, err)
	require.Equal(t, int64(-1), v)

	// Node iterator equivalence with random access.
	ni, err := g.NodeIterator(0)
	require.NoError(t, err)
	for x := int64(0); x < g.NumNodes(); x++ {
		require.True(t, ni.HasNext())
		got, err := ni.NextLong()
		require.NoError(t, err)
		require.Equal(t, x, got)
		want, err := g.SuccessorArray(x)
		require.NoError(t, err)
		have, err := ni.SuccessorArray()
		require.NoError(t, err)
		require.Equal(t, want, have)
	}
	require.False(t, ni.HasNext())
}

func TestSplitNodeIterators(t *testing.T) {
	succ := erdosRenyi(200, .02, 5)
	g, err := Wrap(succ)
	require.NoError(t, err)

	for _, k := range []int{1, 3, 7, 250} {
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
				require.Equal(t, succ[x], append([]int64(nil), have...))
				x++
			}
		}
		require.Equal(t, g.NumNodes(), x)
	}

	_, err = g.SplitNodeIterators(0)
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	a, err := Wrap([][]int64{{1}, {0, 1}})
	require.NoError(t, err)
	b, err := Wrap([][]int64{{1}, {0, 1}})
	require.NoError(t, err)
	c, err := Wrap([][]int64{{1}, {0}})
	require.NoError(t, err)

	eq, err := Equal(a, b)
	require.NoError(t, err)
	require.True(t, eq)
	eq, err = Equal(a, c)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestPropertiesRoundTrip(t *testing.T) {
	p := NewProperties()
	p.Set(GraphClassProperty, "some.Class")
	p.SetInt64(NodesProperty, 42)
	p.Set("avggap", "3.140")

	var sb strings.Builder
	require.NoError(t, p.Write(&sb, GraphClassProperty, NodesProperty))
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Equal(t, "graphclass=some.Class", lines[0])
	require.Equal(t, "nodes=42", lines[1])

	q, err := ReadProperties(strings.NewReader(sb.String()))
	require.NoError(t, err)
	n, err := q.RequireInt64(NodesProperty)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	_, err = q.Require(ArcsProperty)
	require.Error(t, err)
}

func TestPropertiesMalformed(t *testing.T) {
	_, err := ReadProperties(strings.NewReader("novalue\n"))
	require.Error(t, err)
	p, err := ReadProperties(strings.NewReader("# comment\n\nkey = value \n"))
	require.NoError(t, err)
	v, ok := p.Get("key")
	require.True(t, ok)
	require.Equal(t, "value", v)
}

func TestResolveGraphClass(t *testing.T) {
	require.Equal(t, "it.unimi.dsi.big.webgraph.BVGraph",
		resolveGraphClass("class it.unimi.dsi.big.webgraph.BVGraph"))
	require.Equal(t, "it.unimi.dsi.big.webgraph.BVGraph",
		resolveGraphClass("it.unimi.dsi.webgraph.BVGraph"))
}

func TestSkipLazy(t *testing.T) {
	it := ArrayLazyIterator([]int64{3, 5, 9})
	skipped, err := SkipLazy(it, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), skipped)
	v, err := it.NextLong()
	require.NoError(t, err)
	require.Equal(t, int64(9), v)
	skipped, err = SkipLazy(it, 10)
	require.NoError(t, err)
	require.Equal(t, int64(0), skipped)
}
