// Copyright 2023 The WebGraph-Go Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker error for on-disk format corruption: truncated
// bit streams, invalid code words, counts that do not add up, or property
// files missing required keys. Errors produced by CorruptionErrorf can be
// detected with IsCorruptionError.
var ErrCorruption = errors.New("webgraph: corruption")

// CorruptionErrorf formats according to a format specifier and returns the
// string as an error marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks the given error as a corruption error.
func MarkCorruptionError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError reports whether the error indicates format corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// ErrUnsupported is a marker error for capability violations: invoking a
// random-access method on a sequential-only graph, copying a non-copiable
// iterator, and the like. These signal programming contract violations, not
// data problems; callers are expected to gate on the capability queries
// (RandomAccess, HasCopiableIterators) before dispatch.
var ErrUnsupported = errors.New("webgraph: unsupported operation")

// UnsupportedErrorf formats according to a format specifier and returns the
// string as an error marked as a capability error.
func UnsupportedErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnsupported)
}
