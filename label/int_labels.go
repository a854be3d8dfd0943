// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package label

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/webgraph/webgraph/internal/base"
	"github.com/webgraph/webgraph/internal/bitstream"
)

// Class names kept Java-compatible for on-disk labelspec values.
const (
	FixedWidthIntLabelClassName = "it.unimi.dsi.big.webgraph.labelling.FixedWidthIntLabel"
	GammaCodedIntLabelClassName = "it.unimi.dsi.big.webgraph.labelling.GammaCodedIntLabel"
)

func init() {
	Register(FixedWidthIntLabelClassName, func(args []string) (Label, error) {
		if len(args) != 2 {
			return nil, base.CorruptionErrorf("label: FixedWidthIntLabel wants (key,width), got %d arguments", len(args))
		}
		width, err := strconv.Atoi(args[1])
		if err != nil || width < 1 || width > 63 {
			return nil, base.CorruptionErrorf("label: invalid FixedWidthIntLabel width %q", args[1])
		}
		return &FixedWidthIntLabel{Key: args[0], Width: width}, nil
	})
	Register(GammaCodedIntLabelClassName, func(args []string) (Label, error) {
		if len(args) != 1 {
			return nil, base.CorruptionErrorf("label: GammaCodedIntLabel wants (key), got %d arguments", len(args))
		}
		return &GammaCodedIntLabel{Key: args[0]}, nil
	})
}

// FixedWidthIntLabel is a non-negative integer label stored in a fixed
// number of bits.
type FixedWidthIntLabel struct {
	Key   string
	Width int
	Value int64
}

var _ Label = (*FixedWidthIntLabel)(nil)

// Spec implements Label.
func (l *FixedWidthIntLabel) Spec() string {
	return fmt.Sprintf("%s(%s,%d)", FixedWidthIntLabelClassName, l.Key, l.Width)
}

// Copy implements Label.
func (l *FixedWidthIntLabel) Copy() Label {
	c := *l
	return &c
}

// FromBitStream implements Label.
func (l *FixedWidthIntLabel) FromBitStream(r *bitstream.Reader, _ int64) error {
	l.Value = int64(r.ReadInt(l.Width))
	return r.Err()
}

// ToBitStream implements Label.
func (l *FixedWidthIntLabel) ToBitStream(w *bitstream.Writer, _ int64) error {
	if l.Value < 0 || l.Value >= 1<<uint(l.Width) {
		return errors.Newf("label: value %d does not fit in %d bits", l.Value, l.Width)
	}
	w.WriteInt(uint64(l.Value), l.Width)
	return w.Err()
}

// GammaCodedIntLabel is a non-negative integer label stored in γ coding.
type GammaCodedIntLabel struct {
	Key   string
	Value int64
}

var _ Label = (*GammaCodedIntLabel)(nil)

// Spec implements Label.
func (l *GammaCodedIntLabel) Spec() string {
	return fmt.Sprintf("%s(%s)", GammaCodedIntLabelClassName, l.Key)
}

// Copy implements Label.
func (l *GammaCodedIntLabel) Copy() Label {
	c := *l
	return &c
}

// FromBitStream implements Label.
func (l *GammaCodedIntLabel) FromBitStream(r *bitstream.Reader, _ int64) error {
	l.Value = r.ReadGamma()
	return r.Err()
}

// ToBitStream implements Label.
func (l *GammaCodedIntLabel) ToBitStream(w *bitstream.Writer, _ int64) error {
	if l.Value < 0 {
		return errors.Newf("label: negative γ-coded label value %d", l.Value)
	}
	w.WriteGamma(l.Value)
	return w.Err()
}
