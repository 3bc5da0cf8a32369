// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh_test

import (
	"testing"

	"github.com/go-psh/psh"
)

func TestStdinWriterStreamsIncrementally(t *testing.T) {
	needBinary(t, "cat")

	opt, w := psh.StdinWriter()
	p, err := psh.New(nil, "cat", nil, opt)
	ok(t, err)
	ok(t, p.Execute(false, false))

	if _, err := w.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok(t, w.Close())

	ok(t, p.Wait(true, 0))
	stdout, err := p.Stdout()
	ok(t, err)
	eq(t, stdout, "hello world")
}

func TestStdinWriterRejectsWriteAfterClose(t *testing.T) {
	_, w := psh.StdinWriter()
	ok(t, w.Close())
	if _, err := w.Write([]byte("x")); err == nil {
		t.Fatalf("expected an error writing to a closed stdin writer")
	}
}
