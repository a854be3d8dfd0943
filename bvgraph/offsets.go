// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package bvgraph

import (
	"os"

	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
	"github.com/webgraph/webgraph/internal/eliasfano"
)

// offsetsTable maps a node id to the starting bit of its block in the graph
// stream; index n holds the sentinel equal to the total bit length.
type offsetsTable interface {
	get(i int64) int64
}

// plainOffsets is the direct representation, used while the table is small
// enough that succinctness buys nothing.
type plainOffsets []int64

func (o plainOffsets) get(i int64) int64 { return o[i] }

// efOffsets is the Elias-Fano representation used for large graphs.
type efOffsets struct {
	list *eliasfano.List
}

func (o efOffsets) get(i int64) int64 { return int64(o.list.Get(i)) }

// plainOffsetsLimit is the largest node count for which offsets are kept as
// a plain slice rather than in Elias-Fano form.
const plainOffsetsLimit = 1 << 20

// loadOffsets loads the offsets table for a graph with n nodes whose bit
// stream is graphBits long. A serialized big list (.obl) is preferred when
// present and intact; otherwise the γ-coded .offsets stream is decoded. A
// damaged .obl is reported through the logger and silently rebuilt.
func loadOffsets(basename string, n, graphBits int64, logger base.Logger) (offsetsTable, error) {
	if list, err := readOffsetsBigList(basename+webgraph.OffsetsBigListExtension, n); err == nil {
		return efOffsets{list: list}, nil
	} else if !os.IsNotExist(err) {
		logger.Infof("webgraph: ignoring offsets big list for %s: %v", basename, err)
	}

	f, err := os.Open(basename + webgraph.OffsetsExtension)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bitstream.NewStreamReader(f)

	if n+1 <= plainOffsetsLimit {
		o := make(plainOffsets, n+1)
		var c int64
		for i := int64(0); i <= n; i++ {
			c += r.ReadGamma()
			o[i] = c
		}
		if err := r.Err(); err != nil {
			return nil, err
		}
		if err := checkSentinel(o[n], graphBits); err != nil {
			return nil, err
		}
		return o, nil
	}

	b := eliasfano.NewBuilder(n+1, uint64(graphBits)+1)
	var c int64
	for i := int64(0); i <= n; i++ {
		c += r.ReadGamma()
		b.Push(uint64(c))
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if err := checkSentinel(c, graphBits); err != nil {
		return nil, err
	}
	list, err := b.Finish()
	if err != nil {
		return nil, err
	}
	return efOffsets{list: list}, nil
}

// checkSentinel verifies the final offset against the byte-padded length of
// the .graph file: the sentinel equals the exact bit length, so it may fall
// short of the file size by up to seven padding bits.
func checkSentinel(sentinel, graphBits int64) error {
	if sentinel > graphBits || graphBits-sentinel >= 8 {
		return base.CorruptionErrorf("bvgraph: offsets sentinel %d inconsistent with graph bit length %d", sentinel, graphBits)
	}
	return nil
}

func readOffsetsBigList(path string, n int64) (*eliasfano.List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	list, err := eliasfano.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	if list.Len() != n+1 {
		return nil, base.CorruptionErrorf("bvgraph: offsets big list has %d entries, want %d", list.Len(), n+1)
	}
	return list, nil
}

// SaveOffsetsBigList builds the Elias-Fano form of the offsets of the graph
// with the given basename and stores it as a .obl file, so that subsequent
// loads skip γ-decoding the offsets stream.
func SaveOffsetsBigList(basename string) error {
	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	if err != nil {
		return err
	}
	n, err := props.RequireInt64(webgraph.NodesProperty)
	if err != nil {
		return err
	}
	graphBits, err := fileBits(basename + webgraph.GraphExtension)
	if err != nil {
		return err
	}

	f, err := os.Open(basename + webgraph.OffsetsExtension)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bitstream.NewStreamReader(f)
	b := eliasfano.NewBuilder(n+1, uint64(graphBits)+1)
	var c int64
	for i := int64(0); i <= n; i++ {
		c += r.ReadGamma()
		b.Push(uint64(c))
	}
	if err := r.Err(); err != nil {
		return err
	}
	list, err := b.Finish()
	if err != nil {
		return err
	}
	return writeOffsetsBigList(basename+webgraph.OffsetsBigListExtension, list)
}

// writeOffsetsBigList writes a serialized Elias-Fano list atomically.
func writeOffsetsBigList(path string, list *eliasfano.List) error {
	tmp := path + tempSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := list.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// fileBits returns the size of a file in bits.
func fileBits(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size() * 8, nil
}
