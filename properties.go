// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package webgraph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/webgraph/webgraph/internal/base"
)

// File name extensions shared by the on-disk formats.
const (
	PropertiesExtension          = ".properties"
	GraphExtension               = ".graph"
	OffsetsExtension             = ".offsets"
	OffsetsBigListExtension      = ".obl"
	LabelsExtension              = ".labels"
	LabelOffsetsExtension        = ".labeloffsets"
	LabelOffsetsBigListExtension = ".labelobl"
)

// Keys of the .properties file.
const (
	GraphClassProperty        = "graphclass"
	NodesProperty             = "nodes"
	ArcsProperty              = "arcs"
	WindowSizeProperty        = "windowsize"
	MaxRefCountProperty       = "maxrefcount"
	MinIntervalLengthProperty = "minintervallength"
	ZetaKProperty             = "zetak"
	CompressionFlagsProperty  = "compressionflags"
	UnderlyingGraphProperty   = "underlyinggraph"
	LabelSpecProperty         = "labelspec"
)

// Properties is the key/value metadata stored next to a graph, one
// key=value pair per line.
type Properties struct {
	m map[string]string
}

// NewProperties returns an empty Properties.
func NewProperties() *Properties {
	return &Properties{m: make(map[string]string)}
}

// LoadProperties reads a .properties file.
func LoadProperties(path string) (*Properties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := ReadProperties(f)
	if err != nil {
		return nil, base.MarkCorruptionError(
			fmt.Errorf("webgraph: reading %s: %w", path, err))
	}
	return p, nil
}

// ReadProperties parses key=value lines from r. Blank lines and lines
// starting with # are ignored; whitespace around keys and values is trimmed.
func ReadProperties(r io.Reader) (*Properties, error) {
	p := NewProperties()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, base.CorruptionErrorf("webgraph: malformed property line %q", line)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, base.CorruptionErrorf("webgraph: empty property key in line %q", line)
		}
		p.m[key] = value
	}
	return p, scanner.Err()
}

// Get returns the value for key, if present.
func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.m[key]
	return v, ok
}

// Set stores a value for key.
func (p *Properties) Set(key, value string) {
	p.m[key] = value
}

// SetInt64 stores an integer value for key.
func (p *Properties) SetInt64(key string, value int64) {
	p.m[key] = strconv.FormatInt(value, 10)
}

// Require returns the value for a required key, failing with a format error
// when the key is absent.
func (p *Properties) Require(key string) (string, error) {
	v, ok := p.m[key]
	if !ok {
		return "", base.CorruptionErrorf("webgraph: property file is missing required key %q", key)
	}
	return v, nil
}

// RequireInt64 returns the integer value for a required key.
func (p *Properties) RequireInt64(key string) (int64, error) {
	s, err := p.Require(key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, base.CorruptionErrorf("webgraph: property %q has non-integer value %q", key, s)
	}
	return v, nil
}

// Write emits the properties to w. The keys listed in first are written
// first, in the given order; any remaining keys follow sorted.
func (p *Properties) Write(w io.Writer, first ...string) error {
	seen := make(map[string]bool, len(first))
	var keys []string
	for _, k := range first {
		if _, ok := p.m[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range p.m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)
	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", k, p.m[k]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
