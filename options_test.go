// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh_test

import (
	"testing"

	"github.com/go-psh/psh"
)

func TestNewRendersArgsOfEachSupportedType(t *testing.T) {
	p, err := psh.New(nil, "echo", []interface{}{
		"text", []byte("bytes"), 42, int64(43), float32(1.5), 2.25,
	})
	ok(t, err)
	eq(t, p.String(), "echo text bytes 42 43 1.5 2.25")
}

func TestNewRejectsUnsupportedArgType(t *testing.T) {
	_, err := psh.New(nil, "echo", []interface{}{struct{}{}})
	if !psh.IsKind(err, psh.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestWithOKStatusesRejectsEmpty(t *testing.T) {
	_, err := psh.New(nil, "true", nil, psh.WithOKStatuses())
	if !psh.IsKind(err, psh.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for an empty ok_statuses set, got %v", err)
	}
}

func TestWithStdinProducerRejectsNil(t *testing.T) {
	_, err := psh.New(nil, "cat", nil, psh.WithStdinProducer(nil))
	if !psh.IsKind(err, psh.InvalidArgument) {
		t.Fatalf("expected InvalidArgument for a nil producer, got %v", err)
	}
}

func TestWithDeferFalseExecutesOnConstruction(t *testing.T) {
	needBinary(t, "true")
	p, err := psh.New(nil, "true", nil, psh.WithDefer(false))
	ok(t, err)
	status, err := p.Status()
	ok(t, err)
	eq(t, status, 0)
}

func TestProcessArgRequiresWithShell(t *testing.T) {
	needBinary(t, "echo")
	inner, err := psh.New(nil, "echo", []interface{}{"hi"})
	ok(t, err)
	_, err = psh.New(nil, "sh", []interface{}{"-c", inner})
	if !psh.IsKind(err, psh.InvalidArgument) {
		t.Fatalf("expected InvalidArgument embedding a *Process without WithShell, got %v", err)
	}
}

func TestProcessArgWithShellEmbedsAsOneToken(t *testing.T) {
	needBinary(t, "sh")
	needBinary(t, "echo")
	inner, err := psh.New(nil, "echo", []interface{}{"a b"})
	ok(t, err)

	rendered, err := psh.New(nil, "sh", []interface{}{"-c", inner}, psh.WithShell(true))
	ok(t, err)
	ok(t, rendered.Execute(true, true))
	stdout, err := rendered.Stdout()
	ok(t, err)
	eq(t, stdout, "a b\n")
}
