// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"testing"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func TestPipeChildAndParentFDByDirection(t *testing.T) {
	readsP, err := newPipe(zap.NewNop(), 0, childReads)
	if err != nil {
		t.Fatal(err)
	}
	defer readsP.close()
	if readsP.childFD() != readsP.read {
		t.Fatalf("childReads pipe should hand the read end to the child")
	}
	if readsP.parentFD() != readsP.write {
		t.Fatalf("childReads pipe should keep the write end for the parent")
	}

	writesP, err := newPipe(zap.NewNop(), 1, childWrites)
	if err != nil {
		t.Fatal(err)
	}
	defer writesP.close()
	if writesP.childFD() != writesP.write {
		t.Fatalf("childWrites pipe should hand the write end to the child")
	}
	if writesP.parentFD() != writesP.read {
		t.Fatalf("childWrites pipe should keep the read end for the parent")
	}
}

func TestAdoptPipeTransfersExactlyOneEnd(t *testing.T) {
	src, err := newPipe(zap.NewNop(), 1, childWrites)
	if err != nil {
		t.Fatal(err)
	}
	origRead := src.read
	adopted := adoptPipe(src, 0, childReads)
	defer adopted.close()
	defer src.close()

	if adopted.read != origRead {
		t.Fatalf("adopted pipe's read end should be src's former read end")
	}
	if src.read != -1 {
		t.Fatalf("src's read end should be marked transferred (-1), got %d", src.read)
	}
	// src.close() must be a no-op for the transferred end: closing it a
	// second time (via adopted.close()) must not double-close the same fd.
}

func TestPipeCloseIsIdempotent(t *testing.T) {
	p, err := newPipe(zap.NewNop(), 0, childReads)
	if err != nil {
		t.Fatal(err)
	}
	p.close()
	p.close() // must not panic or double-close
	if p.read != -1 || p.write != -1 {
		t.Fatalf("expected both ends to read -1 after close, got (%d, %d)", p.read, p.write)
	}
}

func TestPipeSetNonblocking(t *testing.T) {
	p, err := newPipe(zap.NewNop(), 1, childWrites)
	if err != nil {
		t.Fatal(err)
	}
	defer p.close()
	if err := p.setNonblocking(); err != nil {
		t.Fatal(err)
	}
	fl, err := unix.FcntlInt(uintptr(p.parentFD()), unix.F_GETFL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if fl&unix.O_NONBLOCK == 0 {
		t.Fatalf("expected parent end to be non-blocking")
	}
}
