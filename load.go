// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package webgraph

import (
	"strings"
	"sync"

	"github.com/cockroachdb/swiss"
	"github.com/webgraph/webgraph/internal/base"
)

// LoadMethod selects how much of a graph is brought into memory at load
// time, and through which access path the rest is reached.
type LoadMethod int

const (
	// LoadStandard loads both the graph bit stream and the offsets into
	// memory. Random and sequential access are both supported.
	LoadStandard LoadMethod = iota
	// LoadMapped memory-maps the graph bit stream and loads the offsets
	// into memory. Random and sequential access are both supported.
	LoadMapped
	// LoadOffline loads nothing: nodes can only be enumerated sequentially,
	// reading the bit stream from disk as the iteration proceeds.
	LoadOffline
	// LoadSequential is the labelled-overlay name for offline loading of
	// label streams.
	LoadSequential
	// LoadOnce streams the graph from an already-open reader; the resulting
	// graph supports a single, non-restartable sequential traversal.
	LoadOnce
)

// String implements fmt.Stringer.
func (m LoadMethod) String() string {
	switch m {
	case LoadStandard:
		return "standard"
	case LoadMapped:
		return "mapped"
	case LoadOffline:
		return "offline"
	case LoadSequential:
		return "sequential"
	case LoadOnce:
		return "once"
	}
	return "unknown"
}

// LoaderFunc loads a graph stored with the given basename.
type LoaderFunc func(basename string, method LoadMethod, logger base.Logger) (ImmutableGraph, error)

var graphClasses struct {
	sync.Mutex
	init bool
	m    swiss.Map[string, LoaderFunc]
}

// RegisterGraphClass associates a graphclass property value with a loader.
// Implementing packages call this from init; Load dispatches through the
// registry. Registering a name twice panics.
func RegisterGraphClass(name string, loader LoaderFunc) {
	graphClasses.Lock()
	defer graphClasses.Unlock()
	if !graphClasses.init {
		graphClasses.m.Init(8)
		graphClasses.init = true
	}
	if _, ok := graphClasses.m.Get(name); ok {
		panic("webgraph: graph class registered twice: " + name)
	}
	graphClasses.m.Put(name, loader)
}

// resolveGraphClass normalizes a graphclass property value. Historical
// property files may carry a leading "class " prefix and may name the 32-bit
// package instead of the big variant; both quirks are accepted.
func resolveGraphClass(name string) string {
	name = strings.TrimPrefix(name, "class ")
	if strings.HasPrefix(name, "it.unimi.dsi.webgraph.") {
		name = "it.unimi.dsi.big.webgraph." + strings.TrimPrefix(name, "it.unimi.dsi.webgraph.")
	}
	return name
}

func lookupGraphClass(name string) (LoaderFunc, bool) {
	graphClasses.Lock()
	defer graphClasses.Unlock()
	if !graphClasses.init {
		return nil, false
	}
	loader, ok := graphClasses.m.Get(resolveGraphClass(name))
	return loader, ok
}

// LoadGraph loads the graph with the given basename using the given method,
// dispatching on the graphclass property. logger may be nil.
func LoadGraph(basename string, method LoadMethod, logger base.Logger) (ImmutableGraph, error) {
	if logger == nil {
		logger = base.DefaultLogger{}
	}
	props, err := LoadProperties(basename + PropertiesExtension)
	if err != nil {
		return nil, err
	}
	cls, err := props.Require(GraphClassProperty)
	if err != nil {
		return nil, err
	}
	loader, ok := lookupGraphClass(cls)
	if !ok {
		return nil, base.CorruptionErrorf("webgraph: unknown graph class %q", cls)
	}
	return loader(basename, method, logger)
}

// Load loads a graph with offsets and bit stream in memory.
func Load(basename string) (ImmutableGraph, error) {
	return LoadGraph(basename, LoadStandard, nil)
}

// LoadMappedGraph loads a graph accessing the bit stream through a memory
// mapping.
func LoadMappedGraph(basename string) (ImmutableGraph, error) {
	return LoadGraph(basename, LoadMapped, nil)
}

// LoadOfflineGraph sets up a graph for sequential-only access, loading
// nothing into memory.
func LoadOfflineGraph(basename string) (ImmutableGraph, error) {
	return LoadGraph(basename, LoadOffline, nil)
}
