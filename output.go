// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

// outputKind enumerates the tagged variants of a Process's stdout (or
// stderr) target.
type outputKind int

const (
	outputCapture outputKind = iota // internal buffer
	outputInherit                   // inherit caller's stdout/stderr
	outputFile
	outputDownstream  // stdout only
	outputIteratorSink // stdout only
)

// outputTarget is one stream's (stdout's or stderr's) destination adapter.
type outputTarget struct {
	kind outputKind

	path   string // outputFile
	append bool   // outputFile

	downstream *Process // outputDownstream

	iter *OutputIterator // outputIteratorSink
}

func (t outputTarget) String() string {
	switch t.kind {
	case outputCapture:
		return "Capture"
	case outputInherit:
		return "Inherit"
	case outputFile:
		return "File(" + t.path + ")"
	case outputDownstream:
		return "Downstream"
	case outputIteratorSink:
		return "IteratorSink"
	default:
		return "Unknown"
	}
}
