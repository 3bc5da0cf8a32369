// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"golang.org/x/sys/unix"
)

// readyFlags describes the readiness events a registered fd is interested
// in, or that fired for it.
type readyFlags int

const (
	readyRead readyFlags = 1 << iota
	readyWrite
	readyHangup // peer closed; delivered regardless of the registered mask
)

// event is one fd's readiness result from a poll call.
type event struct {
	fd    int
	flags readyFlags
}

// poller multiplexes readiness across a set of non-blocking descriptors. It
// has two implementations: an epoll-backed one (Linux, preferred) and a
// select-backed one (any other POSIX target, fallback) — interchangeable,
// matching psys.poll's dual Poll class.
type poller interface {
	// register starts watching fd for the given interest set.
	register(fd int, interest readyFlags) error
	// modify changes the interest set for an already-registered fd.
	modify(fd int, interest readyFlags) error
	// unregister stops watching fd. Safe to call more than once.
	unregister(fd int)
	// wait blocks until at least one registered fd is ready, or timeoutMillis
	// elapses (-1 means block indefinitely), and appends ready events.
	wait(timeoutMillis int) ([]event, error)
	// close releases the poller's own OS resources. It does not close any of
	// the fds that were registered with it.
	close() error
}

// retryEINTR runs fn, retrying as long as it fails with EINTR. This
// centralizes the retry-on-signal-interruption handling the original
// applies uniformly to read/write/close/dup2/waitpid/fcntl/open/poll.
func retryEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}

// retryEINTRInt is retryEINTR's variant for syscalls that also return an
// int result (e.g. read/write byte counts).
func retryEINTRInt(fn func() (int, error)) (int, error) {
	for {
		n, err := fn()
		if err != unix.EINTR {
			return n, err
		}
	}
}
