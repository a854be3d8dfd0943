// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package label

import (
	"os"
	"path/filepath"

	"github.com/webgraph/webgraph"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
	"github.com/webgraph/webgraph/internal/eliasfano"
)

const tempSuffix = ".tmp"

// Store writes the .labels, .labeloffsets and .properties files for the
// given basename by a full sequential traversal of source. The underlying
// graph itself is not stored: underlyingBasename is recorded in the
// properties file and must name an already-stored graph (relative names are
// resolved against the directory of the label files at load time). Files
// are written under temporary names and renamed into place on success.
func Store(source ArcLabelledGraph, basename, underlyingBasename string) error {
	paths := [3]string{
		basename + webgraph.LabelsExtension,
		basename + webgraph.LabelOffsetsExtension,
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
			return err
		}
		files[i] = f
	}

	labels := bitstream.NewWriter(files[0])
	offsets := bitstream.NewWriter(files[1])
	offsets.WriteGamma(0)

	it, err := source.LabelledNodeIterator(0)
	if err != nil {
		cleanup()
		return err
	}
	var lastBits int64
	for it.HasNext() {
		x, err := it.NextLong()
		if err != nil {
			cleanup()
			return err
		}
		arcs, err := it.LabelledSuccessors()
		if err != nil {
			cleanup()
			return err
		}
		for {
			t, err := arcs.NextLong()
			if err != nil {
				cleanup()
				return err
			}
			if t == -1 {
				break
			}
			if err := arcs.Label().ToBitStream(labels, x); err != nil {
				cleanup()
				return err
			}
		}
		offsets.WriteGamma(labels.WrittenBits() - lastBits)
		lastBits = labels.WrittenBits()
	}
	if err := labels.Flush(); err != nil {
		cleanup()
		return err
	}
	if err := offsets.Flush(); err != nil {
		cleanup()
		return err
	}

	props := webgraph.NewProperties()
	props.Set(webgraph.GraphClassProperty, GraphClassName)
	props.Set(webgraph.UnderlyingGraphProperty, underlyingBasename)
	props.Set(webgraph.LabelSpecProperty, source.Prototype().Spec())
	if err := props.Write(files[2],
		webgraph.GraphClassProperty, webgraph.UnderlyingGraphProperty, webgraph.LabelSpecProperty); err != nil {
		cleanup()
		return err
	}

	for i, f := range files {
		if err := f.Sync(); err != nil {
			cleanup()
			return err
		}
		if err := f.Close(); err != nil {
			files[i] = nil
			cleanup()
			return err
		}
		files[i] = nil
	}
	for i := range paths {
		if err := os.Rename(paths[i]+tempSuffix, paths[i]); err != nil {
			cleanup()
			return err
		}
	}
	return nil
}

// SaveOffsetsBigList builds the Elias-Fano form of the label offsets of the
// labelled graph with the given basename and stores it as a .labelobl file.
func SaveOffsetsBigList(basename string) error {
	props, err := webgraph.LoadProperties(basename + webgraph.PropertiesExtension)
	if err != nil {
		return err
	}
	underlyingName, err := props.Require(webgraph.UnderlyingGraphProperty)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(underlyingName) {
		underlyingName = filepath.Join(filepath.Dir(basename), underlyingName)
	}
	uprops, err := webgraph.LoadProperties(underlyingName + webgraph.PropertiesExtension)
	if err != nil {
		return err
	}
	n, err := uprops.RequireInt64(webgraph.NodesProperty)
	if err != nil {
		return err
	}
	info, err := os.Stat(basename + webgraph.LabelsExtension)
	if err != nil {
		return err
	}
	list, err := loadLabelOffsets(basename, n, info.Size()*8, base.DefaultLogger{})
	if err != nil {
		return err
	}
	return writeBigList(basename+webgraph.LabelOffsetsBigListExtension, list)
}

func writeBigList(path string, list *eliasfano.List) error {
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
