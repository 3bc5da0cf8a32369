// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh_test

import (
	"strings"
	"syscall"
	"testing"

	"github.com/go-psh/psh"
)

func TestPipelineCatGrepWc(t *testing.T) {
	needBinary(t, "cat")
	needBinary(t, "grep")
	needBinary(t, "wc")

	var sb strings.Builder
	for i := 0; i < 102400; i++ {
		sb.WriteString("aaaa\nbbbb\n")
	}

	cat, err := psh.New(nil, "cat", nil, psh.WithStdinText(sb.String()))
	ok(t, err)
	grep, err := psh.New(nil, "grep", []interface{}{"aaaa"})
	ok(t, err)
	wc, err := psh.New(nil, "wc", []interface{}{"-l"})
	ok(t, err)

	pl, err := psh.NewPipeline(cat, grep, wc)
	ok(t, err)
	defer pl.Close()

	ok(t, pl.Execute(true, true))
	status, err := pl.Status()
	ok(t, err)
	eq(t, status, 0)

	stdout, err := pl.Stdout()
	ok(t, err)
	eq(t, strings.TrimSpace(stdout), "102400")
}

func TestPipelineGrepNoMatchRaisesExecutionError(t *testing.T) {
	needBinary(t, "echo")
	needBinary(t, "grep")
	needBinary(t, "wc")

	echo, err := psh.New(nil, "echo", []interface{}{"aaa"})
	ok(t, err)
	grep, err := psh.New(nil, "grep", []interface{}{"bbb"})
	ok(t, err)
	wc, err := psh.New(nil, "wc", []interface{}{"-l"})
	ok(t, err)

	pl, err := psh.NewPipeline(echo, grep, wc)
	ok(t, err)
	defer pl.Close()

	err = pl.Execute(true, true)
	nok(t, err)
	if !psh.IsKind(err, psh.ExecutionError) {
		t.Fatalf("expected ExecutionError, got %v", err)
	}
	var pe *psh.Error
	if !asError(err, &pe) {
		t.Fatalf("expected *psh.Error, got %T", err)
	}
	eq(t, pe.Status, 1)
}

func TestPipePreconditions(t *testing.T) {
	needBinary(t, "cat")

	a, err := psh.New(nil, "cat", nil)
	ok(t, err)
	b, err := psh.New(nil, "cat", nil)
	ok(t, err)
	c, err := psh.New(nil, "cat", nil)
	ok(t, err)

	ok(t, a.Pipe(b))

	// a already has a downstream.
	if err := a.Pipe(c); !psh.IsKind(err, psh.InvalidOperation) {
		t.Fatalf("expected InvalidOperation re-piping a's stdout, got %v", err)
	}
	// b already has an upstream.
	if err := c.Pipe(b); !psh.IsKind(err, psh.InvalidOperation) {
		t.Fatalf("expected InvalidOperation re-piping b's stdin, got %v", err)
	}
	if err := a.Pipe(a); !psh.IsKind(err, psh.InvalidOperation) {
		t.Fatalf("expected InvalidOperation piping a process into itself, got %v", err)
	}
}

func TestPipelineFailureDuringStartKillsStartedPredecessors(t *testing.T) {
	needBinary(t, "sleep")

	sleeper, err := psh.New(nil, "sleep", []interface{}{"5"})
	ok(t, err)
	bogus, err := psh.New(nil, "psh-definitely-not-a-real-binary", nil)
	ok(t, err)

	pl, err := psh.NewPipeline(sleeper, bogus)
	ok(t, err)
	defer pl.Close()

	err = pl.Execute(true, true)
	nok(t, err)

	status, serr := sleeper.Status()
	ok(t, serr)
	eq(t, status, 128+int(syscall.SIGTERM))
}

func TestPipelineStagesAreOrdered(t *testing.T) {
	needBinary(t, "true")
	a, err := psh.New(nil, "true", nil)
	ok(t, err)
	b, err := psh.New(nil, "true", nil)
	ok(t, err)

	pl, err := psh.NewPipeline(a, b)
	ok(t, err)
	defer pl.Close()

	stages := pl.Stages()
	eq(t, len(stages), 2)
	if stages[0] != a || stages[1] != b {
		t.Fatalf("stages out of order")
	}
}
