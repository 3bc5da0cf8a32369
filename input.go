// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"fmt"
	"io"
)

// inputKind enumerates the tagged variants of a Process's stdin source.
type inputKind int

const (
	inputNone inputKind = iota // inherit /dev/null
	inputInherit
	inputFile
	inputBytes
	inputProducer
	inputUpstream
)

// Producer yields successive chunks of stdin data. It returns io.EOF (via a
// nil chunk and io.EOF error) when exhausted; any other error closes the
// child's stdin and is stored as the Process's communication error, which
// Wait returns when checking status. The child itself is not signalled.
type Producer func() ([]byte, error)

// inputSource is the Process's stdin adapter: exactly one of the tagged
// variants below is populated, selected by kind.
type inputSource struct {
	kind inputKind

	path   string // inputFile
	append bool   // inputFile

	bytes []byte // inputBytes

	producer Producer // inputProducer

	upstream *Process // inputUpstream
}

func (s inputSource) String() string {
	switch s.kind {
	case inputNone:
		return "None"
	case inputInherit:
		return "Inherit"
	case inputFile:
		return fmt.Sprintf("File(%q)", s.path)
	case inputBytes:
		return fmt.Sprintf("Bytes(%d bytes)", len(s.bytes))
	case inputProducer:
		return "Producer"
	case inputUpstream:
		return "Upstream"
	default:
		return "Unknown"
	}
}

// producerOf wraps a BytesLiteral source as a one-shot Producer, or returns
// the Process's own Producer unmodified. It is only ever called for kinds
// that reify to a byte-chunk stream (inputBytes, inputProducer).
func (s inputSource) producerOf() Producer {
	if s.kind == inputBytes {
		done := false
		return func() ([]byte, error) {
			if done {
				return nil, io.EOF
			}
			done = true
			return s.bytes, nil
		}
	}
	return s.producer
}
