// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestPollerReportsWriteThenReadReadiness(t *testing.T) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	defer unix.Close(w)
	if err := unix.SetNonblock(r, true); err != nil {
		t.Fatal(err)
	}
	if err := unix.SetNonblock(w, true); err != nil {
		t.Fatal(err)
	}

	pl, err := newPoller()
	if err != nil {
		t.Fatal(err)
	}
	defer pl.close()

	if err := pl.register(w, readyWrite); err != nil {
		t.Fatal(err)
	}
	events, err := pl.wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if !hasReady(events, w, readyWrite) {
		t.Fatalf("expected write end to be write-ready immediately, got %+v", events)
	}
	pl.unregister(w)

	if err := pl.register(r, readyRead); err != nil {
		t.Fatal(err)
	}
	// Nothing written yet: a short poll should time out with no events.
	events, err = pl.wait(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events before any write, got %+v", events)
	}

	if _, err := unix.Write(w, []byte("x")); err != nil {
		t.Fatal(err)
	}
	events, err = pl.wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if !hasReady(events, r, readyRead) {
		t.Fatalf("expected read end to become read-ready after a write, got %+v", events)
	}
}

func TestRetryEINTRRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := retryEINTR(func() error {
		calls++
		if calls < 3 {
			return unix.EINTR
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestAfterMillis(t *testing.T) {
	start := time.Now()
	<-afterMillis(10)
	if time.Since(start) < 5*time.Millisecond {
		t.Fatalf("afterMillis fired too early")
	}
}

func hasReady(events []event, fd int, flag readyFlags) bool {
	for _, ev := range events {
		if ev.fd == fd && ev.flags&flag != 0 {
			return true
		}
	}
	return false
}
