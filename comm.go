// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"bytes"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// drainCap bounds the post-termination drain phase: larger than any
// realistic pipe capacity, so a descendant that inherited the fd cannot
// force the drain to run forever.
const drainCap = 1 << 20 // 1 MiB

func afterMillis(ms int) <-chan time.Time {
	return time.After(time.Duration(ms) * time.Millisecond)
}

// commWorker is the Communication Loop: the non-blocking multiplex of this
// Process's stdin writes, stdout/stderr reads, and the termination signal.
// It is the sole writer of stdoutBuf and stderrBuf once started, and stores
// any communication error in procErr; status is written by process.go's
// waitWorker, before the termination signal fires.
func (p *Process) commWorker() {
	defer close(p.commDone)

	pl, err := newPoller()
	if err != nil {
		p.log.Error("unable to create poller", zap.String("command", p.String()), zap.Error(err))
		p.storeErr(err)
		p.blockForTermination()
		return
	}
	defer pl.close()

	registered := make(map[int]string, 4)

	var stdinPending []byte
	var producer Producer
	if p.stdinPipe != nil && (p.stdin.kind == inputBytes || p.stdin.kind == inputProducer) {
		producer = p.stdin.producerOf()
		if fd := p.stdinPipe.parentFD(); fd >= 0 {
			if err := pl.register(fd, readyWrite); err == nil {
				registered[fd] = "stdin"
			}
		}
	}
	if p.stdoutPipe != nil && p.stdout.kind == outputCapture {
		if fd := p.stdoutPipe.parentFD(); fd >= 0 {
			if err := pl.register(fd, readyRead); err == nil {
				registered[fd] = "stdout"
			}
		}
	}
	if p.stderrPipe != nil && p.stderr.kind == outputCapture {
		if fd := p.stderrPipe.parentFD(); fd >= 0 {
			if err := pl.register(fd, readyRead); err == nil {
				registered[fd] = "stderr"
			}
		}
	}
	if err := pl.register(p.termRead, readyRead); err != nil {
		p.storeErr(err)
	}
	registered[p.termRead] = "term"

	earlyTerminate := false
loop:
	for len(registered) > 0 {
		events, err := pl.wait(-1)
		if err != nil {
			p.storeErr(err)
			break
		}
		for _, ev := range events {
			role, ok := registered[ev.fd]
			if !ok {
				continue
			}
			switch role {
			case "term":
				delete(registered, ev.fd)
				pl.unregister(ev.fd)
				_ = retryEINTR(func() error { return unix.Close(p.termRead) })
				if !p.cfg.waitForOutput {
					earlyTerminate = true
					break loop
				}
			case "stdin":
				if p.serviceStdin(p.stdinPipe.parentFD(), &stdinPending, producer) {
					delete(registered, ev.fd)
					pl.unregister(ev.fd)
				}
			case "stdout":
				if p.serviceOutput(p.stdoutPipe.parentFD(), &p.stdoutBuf) {
					delete(registered, ev.fd)
					pl.unregister(ev.fd)
					p.stdoutPipe.closeParentEnd()
				}
			case "stderr":
				if p.serviceOutput(p.stderrPipe.parentFD(), &p.stderrBuf) {
					delete(registered, ev.fd)
					pl.unregister(ev.fd)
					p.stderrPipe.closeParentEnd()
				}
			}
		}
	}

	if earlyTerminate {
		p.drainRemaining(registered)
	}
}

// blockForTermination is the fallback path when the poller itself could not
// be created: there is nothing left to multiplex, but the termination pipe
// must still be drained so the wait worker's close is observed and no fd is
// leaked.
func (p *Process) blockForTermination() {
	var buf [1]byte
	for {
		n, err := retryEINTRInt(func() (int, error) { return unix.Read(p.termRead, buf[:]) })
		if n == 0 && err == nil {
			break
		}
		if err != nil {
			break
		}
	}
	_ = retryEINTR(func() error { return unix.Close(p.termRead) })
}

// serviceStdin handles one writable-readiness event for stdin. It returns
// true if the caller should unregister and stop (producer exhausted,
// producer error, or the child closed its stdin).
func (p *Process) serviceStdin(fd int, pending *[]byte, producer Producer) bool {
	for {
		if len(*pending) == 0 {
			chunk, err := producer()
			if err == io.EOF {
				p.stdinPipe.closeParentEnd()
				return true
			}
			if err != nil {
				p.storeErr(err)
				p.stdinPipe.closeParentEnd()
				return true
			}
			*pending = chunk
			if len(*pending) == 0 {
				return false
			}
		}

		n, err := retryEINTRInt(func() (int, error) { return unix.Write(fd, *pending) })
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return false
			case unix.EPIPE:
				p.stdinPipe.closeParentEnd()
				return true
			default:
				p.storeErr(errIO(err, "stdin write failed"))
				p.stdinPipe.closeParentEnd()
				return true
			}
		}
		*pending = (*pending)[n:]
		if len(*pending) > 0 {
			return false
		}
	}
}

// serviceOutput handles one readable-readiness event for stdout/stderr. It
// returns true on EOF.
func (p *Process) serviceOutput(fd int, buf *bytes.Buffer) bool {
	var chunk [32 * 1024]byte
	for {
		n, err := retryEINTRInt(func() (int, error) { return unix.Read(fd, chunk[:]) })
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if err == unix.EAGAIN {
				return false
			}
			p.storeErr(errIO(err, "read failed"))
			return true
		}
		if n == 0 {
			return true
		}
	}
}

// drainRemaining runs the bounded post-termination drain phase for whatever
// descriptors were still registered when wait_for_output=false saw the
// termination signal.
func (p *Process) drainRemaining(registered map[int]string) {
	truncated := false
	for _, role := range registered {
		switch role {
		case "stdin":
			if p.stdinPipe != nil {
				p.stdinPipe.closeParentEnd()
			}
		case "stdout":
			if p.drainPipe(p.stdoutPipe, &p.stdoutBuf) {
				truncated = true
			}
			p.stdoutPipe.closeParentEnd()
		case "stderr":
			if p.drainPipe(p.stderrPipe, &p.stderrBuf) {
				truncated = true
			}
			p.stderrPipe.closeParentEnd()
		}
	}
	if truncated {
		p.log.Warn("output drain stopped before EOF",
			zap.String("command", p.String()), zap.Int("cap", drainCap), zap.Bool("truncate_output", p.cfg.truncateOutput))
		if !p.cfg.truncateOutput {
			p.mu.Lock()
			if p.procErr == nil {
				p.procErr = newTruncatedError(p.String(), p.status, p.stdoutBuf.Bytes(), p.stderrBuf.Bytes())
			}
			p.mu.Unlock()
		}
	}
}

// drainPipe reads from pp until EOF, EAGAIN, or drainCap, returning whether
// the output may have been cut short (truncation): the descriptor was still
// held open by someone else (EAGAIN instead of EOF), or the cap was hit with
// the descriptor still open.
func (p *Process) drainPipe(pp *pipe, buf *bytes.Buffer) bool {
	if pp == nil {
		return false
	}
	fd := pp.parentFD()
	if fd < 0 {
		return false
	}
	var chunk [32 * 1024]byte
	for buf.Len() < drainCap {
		n, err := retryEINTRInt(func() (int, error) { return unix.Read(fd, chunk[:]) })
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == unix.EAGAIN {
			return true
		}
		if n == 0 || err != nil {
			return false
		}
	}
	n, err := retryEINTRInt(func() (int, error) { return unix.Read(fd, chunk[:1]) })
	return n > 0 || err == unix.EAGAIN
}

func (p *Process) storeErr(err error) {
	p.mu.Lock()
	if p.procErr == nil {
		p.procErr = err
	}
	p.mu.Unlock()
}
