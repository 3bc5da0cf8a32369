// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// direction describes which side of a pipe the child process will use.
type direction int

const (
	// childReads means the child's target fd is dup2'd from the read end;
	// the parent owns (and writes to) the write end.
	childReads direction = iota
	// childWrites means the child's target fd is dup2'd from the write end;
	// the parent owns (and reads from) the read end.
	childWrites
)

// pipe is a one-directional OS pipe pair with independently closable ends.
// It may be constructed fresh, via newPipe, or built by adopting one end from
// another pipe, via adoptPipe — used when an inter-stage pipeline pipe's
// write end must live on the upstream Process's pipe slot while its read end
// lives on the downstream Process's. Each descriptor is closed exactly once;
// adopting an end marks the source pipe's copy as transferred so its own
// Close becomes a no-op for that end.
type pipe struct {
	mu sync.Mutex

	read, write int // -1 once closed or transferred away
	// target is which of {0, 1, 2} this pipe replaces in the child.
	target int
	dir    direction

	log *zap.Logger
}

func newPipe(log *zap.Logger, target int, dir direction) (*pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, errIO(err, "unable to create a pipe")
	}
	return &pipe{read: fds[0], write: fds[1], target: target, dir: dir, log: log}, nil
}

// adoptPipe builds a new pipe on (target, dir) by transferring one end out of
// src. If dir is childWrites, the new pipe's write end is taken from src's
// write end (src becomes read-only going forward); if dir is childReads, the
// new pipe's read end is taken from src's read end.
func adoptPipe(src *pipe, target int, dir direction) *pipe {
	src.mu.Lock()
	defer src.mu.Unlock()
	p := &pipe{read: -1, write: -1, target: target, dir: dir, log: src.log}
	switch dir {
	case childWrites:
		p.write = src.write
		src.write = -1
	case childReads:
		p.read = src.read
		src.read = -1
	}
	return p
}

// childFD returns the descriptor that should be dup2'd onto p.target in the
// child.
func (p *pipe) childFD() int {
	if p.dir == childReads {
		return p.read
	}
	return p.write
}

// parentFD returns the descriptor the parent keeps open after start: the
// opposite end from childFD.
func (p *pipe) parentFD() int {
	if p.dir == childReads {
		return p.write
	}
	return p.read
}

// setNonblocking marks the parent-side end non-blocking, as required before
// registering it with a poller. Must be called from the parent only, after
// the child-side end has been handed off (or is about to be).
func (p *pipe) setNonblocking() error {
	fd := p.parentFD()
	if fd < 0 {
		return nil
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return errIO(err, "unable to set fd %d non-blocking", fd)
	}
	return nil
}

// closeChildEnd closes the end the parent handed to the child, once the
// child side is no longer needed in this process (after fork, or on a
// start failure before fork).
func (p *pipe) closeChildEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dir == childReads {
		p.closeFD(&p.read)
	} else {
		p.closeFD(&p.write)
	}
}

// closeParentEnd closes the end the parent retained for itself.
func (p *pipe) closeParentEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dir == childReads {
		p.closeFD(&p.write)
	} else {
		p.closeFD(&p.read)
	}
}

// close releases both ends, idempotently.
func (p *pipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeFD(&p.read)
	p.closeFD(&p.write)
}

func (p *pipe) closeFD(fd *int) {
	if *fd < 0 {
		return
	}
	if err := retryEINTR(func() error { return unix.Close(*fd) }); err != nil {
		if p.log != nil {
			p.log.Warn("close failed", zap.Int("fd", *fd), zap.Error(err))
		}
	}
	*fd = -1
}
