// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package psh

import (
	"sync"

	"golang.org/x/sys/unix"
)

// selectPoller is the fallback poller backend for POSIX targets without
// epoll, mirroring psys/poll.py's select.select-backed Poll.
type selectPoller struct {
	mu        sync.Mutex
	interests map[int]readyFlags
}

func newPoller() (poller, error) {
	return &selectPoller{interests: make(map[int]readyFlags)}, nil
}

func (p *selectPoller) register(fd int, interest readyFlags) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interests[fd] = interest
	return nil
}

func (p *selectPoller) modify(fd int, interest readyFlags) error {
	return p.register(fd, interest)
}

func (p *selectPoller) unregister(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.interests, fd)
}

func setFd(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func isFdSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

func (p *selectPoller) wait(timeoutMillis int) ([]event, error) {
	p.mu.Lock()
	fds := make([]int, 0, len(p.interests))
	var rset, wset unix.FdSet
	maxFD := 0
	for fd, interest := range p.interests {
		fds = append(fds, fd)
		if interest&readyRead != 0 {
			setFd(&rset, fd)
		}
		if interest&readyWrite != 0 {
			setFd(&wset, fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}
	p.mu.Unlock()

	var timeout *unix.Timeval
	if timeoutMillis >= 0 {
		tv := unix.NsecToTimeval(int64(timeoutMillis) * int64(1e6))
		timeout = &tv
	}

	n, err := retryEINTRInt(func() (int, error) {
		return unix.Select(maxFD+1, &rset, &wset, nil, timeout)
	})
	if err != nil {
		return nil, errIO(err, "select failed")
	}
	if n == 0 {
		return nil, nil
	}

	events := make([]event, 0, n)
	for _, fd := range fds {
		var flags readyFlags
		if isFdSet(&rset, fd) {
			flags |= readyRead
		}
		if isFdSet(&wset, fd) {
			flags |= readyWrite
		}
		if flags != 0 {
			events = append(events, event{fd: fd, flags: flags})
		}
	}
	return events, nil
}

func (p *selectPoller) close() error {
	return nil
}
