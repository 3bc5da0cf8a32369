// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"bytes"
	"io"
	"sync"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

// OutputIterator is a lazy block/line iterator over a running Process's
// stdout. It owns its own Pipe (given to the child as its stdout target
// directly, bypassing the Communication Loop's stdout handling) and its own
// Poller. One iterator is used by one goroutine only; sharing one across
// goroutines is undefined behavior, matching the single-threaded-iteration
// contract this package inherits from its source.
type OutputIterator struct {
	mu sync.Mutex

	process *Process
	pipe    *pipe
	poll    poller

	delim []byte
	raw   bool

	buf    []byte
	eof    bool
	closed bool
}

// Iterator asks a Pending Process for an Output Iterator over its stdout.
// The Process must not already have a stdout target configured beyond the
// default Capture. An empty WithIterDelimiter combined with decoded (non-
// raw) iteration is rejected: a codepoint may straddle a read boundary and
// splitting-less text has no correct framing.
func (p *Process) Iterator() (*OutputIterator, error) {
	if p.lockedState() != Pending {
		return nil, errInvalidProcessState("process is not Pending")
	}
	if len(p.cfg.iterDelimiter) == 0 && !p.cfg.iterRaw {
		return nil, errInvalidOperation("empty iterator delimiter requires raw iteration")
	}
	if p.stdout.kind != outputCapture {
		return nil, errInvalidOperation("process stdout is already redirected")
	}
	if !p.cfg.waitForOutput {
		return nil, errInvalidOperation("an Output Iterator requires _wait_for_output (the default); it is not supported with WithWaitForOutput(false)")
	}

	pp, err := newPipe(p.log, 1, childWrites)
	if err != nil {
		return nil, err
	}

	it := &OutputIterator{
		process: p,
		pipe:    pp,
		delim:   append([]byte(nil), p.cfg.iterDelimiter...),
		raw:     p.cfg.iterRaw,
	}
	p.stdoutPipe = pp
	p.stdout = outputTarget{kind: outputIteratorSink, iter: it}
	p.registerIterator(it)
	return it, nil
}

func (it *OutputIterator) ensureStartedLocked() error {
	if it.closed || it.poll != nil {
		return nil
	}
	if it.process.lockedState() != Running {
		return errInvalidProcessState("process is not Running")
	}
	if err := it.pipe.setNonblocking(); err != nil {
		return err
	}
	pl, err := newPoller()
	if err != nil {
		return err
	}
	if err := pl.register(it.pipe.parentFD(), readyRead); err != nil {
		pl.close()
		return err
	}
	it.poll = pl
	return nil
}

// Next returns the iterator's next block. It returns io.EOF once the
// underlying stream is exhausted; any other error also finalizes the
// iterator (closing its pipe and poller, and waiting on the process without
// checking status) before being returned.
func (it *OutputIterator) Next() ([]byte, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, io.EOF
	}
	if err := it.ensureStartedLocked(); err != nil {
		it.finalizeLocked(false)
		return nil, err
	}

	if len(it.delim) == 0 {
		for {
			if len(it.buf) > 0 {
				block := it.buf
				it.buf = nil
				return block, nil
			}
			if it.eof {
				it.finalizeLocked(true)
				return nil, io.EOF
			}
			if err := it.fill(); err != nil {
				it.finalizeLocked(false)
				return nil, err
			}
		}
	}

	for {
		if idx := bytes.Index(it.buf, it.delim); idx >= 0 {
			block := it.buf[:idx+len(it.delim)]
			it.buf = it.buf[idx+len(it.delim):]
			return it.finish(block)
		}
		if it.eof {
			if len(it.buf) > 0 {
				block := it.buf
				it.buf = nil
				return it.finish(block)
			}
			it.finalizeLocked(true)
			return nil, io.EOF
		}
		if err := it.fill(); err != nil {
			it.finalizeLocked(false)
			return nil, err
		}
	}
}

func (it *OutputIterator) finish(block []byte) ([]byte, error) {
	if it.raw {
		return block, nil
	}
	if !utf8.Valid(block) {
		it.finalizeLocked(false)
		return nil, errInvalidArgument("output block is not valid UTF-8")
	}
	return block, nil
}

func (it *OutputIterator) fill() error {
	fd := it.pipe.parentFD()
	var chunk [32 * 1024]byte
	for {
		n, err := retryEINTRInt(func() (int, error) { return unix.Read(fd, chunk[:]) })
		if n > 0 {
			it.buf = append(it.buf, chunk[:n]...)
			return nil
		}
		if err == nil {
			it.eof = true
			return nil
		}
		if err == unix.EAGAIN {
			if _, perr := it.poll.wait(-1); perr != nil {
				return perr
			}
			continue
		}
		return errIO(err, "iterator read failed")
	}
}

// finalizeLocked releases the iterator's pipe and poller exactly once and
// waits on the process (see §4.8: check_status=false on iteration error,
// check_status=true on clean exhaustion). it.mu is already held. The Wait
// result is discarded: Next reports io.EOF on clean exhaustion even when the
// exit status is outside ok_statuses; the status is read back through
// Process.Status.
func (it *OutputIterator) finalizeLocked(checkStatus bool) {
	if it.closed {
		return
	}
	it.closed = true
	if it.poll != nil {
		it.poll.close()
	}
	if it.process.lockedState() == Pending {
		// The child was never forked, so the child-side end of the pipe was
		// never handed off; release both ends or it leaks for the process's
		// lifetime.
		it.pipe.close()
	} else {
		it.pipe.closeParentEnd()
	}
	_ = it.process.Wait(checkStatus, 0)
}

// Close finalizes the iterator without checking the process's exit status,
// matching scope-exit semantics. Safe to call more than once, and safe to
// call even if iteration never started.
func (it *OutputIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.finalizeLocked(false)
	return nil
}
