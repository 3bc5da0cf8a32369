// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package psh

import (
	"golang.org/x/sys/unix"
)

// epollPoller is the preferred poller backend on Linux, mirroring
// psys/poll.py's select.epoll-backed Poll.
type epollPoller struct {
	epfd int
}

func newPoller() (poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errIO(err, "unable to create epoll instance")
	}
	return &epollPoller{epfd: fd}, nil
}

func toEpollEvents(interest readyFlags) uint32 {
	var events uint32
	if interest&readyRead != 0 {
		events |= unix.EPOLLIN
	}
	if interest&readyWrite != 0 {
		events |= unix.EPOLLOUT
	}
	// EPOLLHUP/EPOLLERR are always reported by the kernel regardless of the
	// requested event mask; no explicit bit is needed for readyHangup.
	return events
}

func fromEpollEvents(events uint32) readyFlags {
	var flags readyFlags
	if events&unix.EPOLLIN != 0 {
		flags |= readyRead
	}
	if events&unix.EPOLLOUT != 0 {
		flags |= readyWrite
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
		flags |= readyHangup
	}
	return flags
}

func (p *epollPoller) register(fd int, interest readyFlags) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return retryEINTR(func() error { return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev) })
}

func (p *epollPoller) modify(fd int, interest readyFlags) error {
	ev := unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	return retryEINTR(func() error { return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev) })
}

func (p *epollPoller) unregister(fd int) {
	// EpollCtl with a nil event is only safe on kernels >= 2.6.9; pass an
	// empty event struct for portability across the whole supported range.
	var ev unix.EpollEvent
	_ = retryEINTR(func() error { return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &ev) })
}

func (p *epollPoller) wait(timeoutMillis int) ([]event, error) {
	var raw [32]unix.EpollEvent
	n, err := retryEINTRInt(func() (int, error) { return unix.EpollWait(p.epfd, raw[:], timeoutMillis) })
	if err != nil {
		return nil, errIO(err, "epoll_wait failed")
	}
	events := make([]event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, event{fd: int(raw[i].Fd), flags: fromEpollEvents(raw[i].Events)})
	}
	return events, nil
}

func (p *epollPoller) close() error {
	return retryEINTR(func() error { return unix.Close(p.epfd) })
}
