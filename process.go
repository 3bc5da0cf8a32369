// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"bytes"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// State is a Process's position in its Pending -> Spawning -> Running ->
// Terminated lifecycle. Transitions only ever move forward.
type State int32

const (
	Pending State = iota
	Spawning
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Spawning:
		return "Spawning"
	case Running:
		return "Running"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Process is a handle to a single external command: its configuration
// before start, and its runtime state once started. The zero value is not
// usable; construct with New.
type Process struct {
	log *zap.Logger

	program string
	args    [][]byte
	cfg     *config

	stdin  inputSource
	stdout outputTarget
	stderr outputTarget

	upstream   *Process
	downstream *Process

	mu    sync.Mutex
	state State

	pid int

	stdinPipe  *pipe
	stdoutPipe *pipe
	stderrPipe *pipe

	termRead, termWrite int

	waitDone chan struct{}
	commDone chan struct{}

	stdoutBuf bytes.Buffer
	stderrBuf bytes.Buffer
	status    int
	procErr   error // error stored by the communication worker or start()

	cleanupMu sync.Mutex
	iterators []*OutputIterator
}

// New constructs a Process for program with the given positional arguments.
// Arguments are rendered the same way regardless of type: strings and text
// are UTF-8 bytes, []byte passes through, ints/floats are decimal-formatted.
// If WithDefer(false) is among opts, New also calls Execute(true, true)
// before returning.
func New(log *zap.Logger, program string, args []interface{}, opts ...Option) (*Process, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	argv, err := renderArgs(args, cfg.shell)
	if err != nil {
		return nil, err
	}

	// Zero-value inputSource/outputTarget already mean None and Capture
	// respectively (both are kind 0), so no explicit defaulting is needed
	// beyond what defaultConfig leaves unset.
	p := &Process{
		log:      log,
		program:  program,
		args:     argv,
		cfg:      cfg,
		stdin:    cfg.stdin,
		stdout:   cfg.stdout,
		stderr:   cfg.stderr,
		termRead: -1, termWrite: -1,
	}

	if !cfg.deferStart {
		if err := p.Execute(true, true); err != nil {
			return p, err
		}
	}
	return p, nil
}

// String renders the command line for diagnostics and for the shell-script
// serializer.
func (p *Process) String() string {
	parts := make([]string, 0, len(p.args)+1)
	parts = append(parts, p.program)
	for _, a := range p.args {
		parts = append(parts, string(a))
	}
	return strings.Join(parts, " ")
}

func (p *Process) lockedState() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pipe implements the `A.Pipe(B)` composition operator: wires a's stdout to
// b's stdin through a freshly constructed inter-stage pipe. Both must be
// Pending; a must have no other downstream; b must have no other upstream.
func (a *Process) Pipe(b *Process) error {
	if a == b {
		return errInvalidOperation("cannot pipe a process into itself")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()

	if a.state != Pending {
		return errInvalidProcessState("upstream process is not Pending")
	}
	if b.state != Pending {
		return errInvalidProcessState("downstream process is not Pending")
	}
	if a.downstream != nil {
		return errInvalidOperation("upstream process already has a downstream")
	}
	if b.upstream != nil {
		return errInvalidOperation("downstream process already has an upstream")
	}

	downPipe, err := newPipe(a.log, 0, childReads)
	if err != nil {
		return err
	}
	upPipe := adoptPipe(downPipe, 1, childWrites)

	b.stdinPipe = downPipe
	a.stdoutPipe = upPipe
	a.downstream = b
	a.stdout = outputTarget{kind: outputDownstream, downstream: b}
	b.upstream = a
	b.stdin = inputSource{kind: inputUpstream, upstream: a}
	return nil
}

// start transitions Pending -> Spawning and performs the Child Spawner
// protocol. On any failure it transitions directly to Terminated with the
// failure recorded, since no further lifecycle progress is possible.
func (p *Process) start() error {
	p.mu.Lock()
	if p.state != Pending {
		p.mu.Unlock()
		return errInvalidOperation("process already started")
	}
	p.state = Spawning
	p.mu.Unlock()

	if err := p.doStart(); err != nil {
		p.mu.Lock()
		p.procErr = err
		p.state = Terminated
		p.mu.Unlock()
		// The failure was local to this stage, not its upstream (an
		// upstream.start() failure would already have left p.upstream
		// Terminated). Kill and wait the already-started predecessor chain
		// so a mid-pipeline failure never leaves an earlier stage running
		// unsupervised; Wait propagates the same kill further upstream.
		if p.upstream != nil && p.upstream.lockedState() == Running {
			_, _ = p.upstream.Kill(syscall.SIGTERM)
			_ = p.upstream.Wait(false, syscall.SIGTERM)
		}
		return err
	}
	return nil
}

func (p *Process) doStart() error {
	if p.cfg.onExecute != nil {
		p.cfg.onExecute(p)
	}

	if p.upstream != nil {
		if err := p.upstream.start(); err != nil {
			return err
		}
	}

	if p.stdinPipe == nil && (p.stdin.kind == inputBytes || p.stdin.kind == inputProducer) {
		pp, err := newPipe(p.log, 0, childReads)
		if err != nil {
			return err
		}
		p.stdinPipe = pp
	}
	if p.stdoutPipe == nil && p.stdout.kind == outputCapture {
		pp, err := newPipe(p.log, 1, childWrites)
		if err != nil {
			p.closeOwnedPipes()
			return err
		}
		p.stdoutPipe = pp
	}
	if p.stderrPipe == nil && p.stderr.kind == outputCapture {
		pp, err := newPipe(p.log, 2, childWrites)
		if err != nil {
			p.closeOwnedPipes()
			return err
		}
		p.stderrPipe = pp
	}

	var termFDs [2]int
	if err := unix.Pipe2(termFDs[:], unix.O_CLOEXEC); err != nil {
		p.closeOwnedPipes()
		return errIO(err, "unable to create termination pipe")
	}
	p.termRead, p.termWrite = termFDs[0], termFDs[1]

	for _, pp := range []*pipe{p.stdinPipe, p.stdoutPipe, p.stderrPipe} {
		if pp != nil {
			if err := pp.setNonblocking(); err != nil {
				p.closeOwnedPipes()
				return err
			}
		}
	}

	res, err := p.spawn()
	if err != nil {
		p.closeOwnedPipes()
		return err
	}
	if res.execFailed {
		p.closeOwnedPipes()
		return newExecutionError(p.String(), res.status, nil, nil)
	}
	p.pid = res.pid

	if p.stdinPipe != nil {
		p.stdinPipe.closeChildEnd()
	}
	if p.stdoutPipe != nil {
		p.stdoutPipe.closeChildEnd()
	}
	if p.stderrPipe != nil {
		p.stderrPipe.closeChildEnd()
	}

	p.waitDone = make(chan struct{})
	p.commDone = make(chan struct{})
	go p.waitWorker()
	go p.commWorker()

	p.mu.Lock()
	p.state = Running
	p.mu.Unlock()
	return nil
}

func (p *Process) closeOwnedPipes() {
	for _, pp := range []*pipe{p.stdinPipe, p.stdoutPipe, p.stderrPipe} {
		if pp != nil {
			pp.close()
		}
	}
	if p.termRead >= 0 {
		unix.Close(p.termRead)
		p.termRead = -1
	}
	if p.termWrite >= 0 {
		unix.Close(p.termWrite)
		p.termWrite = -1
	}
}

func (p *Process) waitWorker() {
	var ws unix.WaitStatus
	_, err := retryEINTRInt(func() (int, error) { return unix.Wait4(p.pid, &ws, 0, nil) })

	p.mu.Lock()
	switch {
	case err != nil:
		p.status = 127
	case ws.Exited():
		p.status = ws.ExitStatus()
	case ws.Signaled():
		p.status = 128 + int(ws.Signal())
	}
	p.mu.Unlock()

	_ = retryEINTR(func() error { return unix.Close(p.termWrite) })
	close(p.waitDone)
}

// Execute is the public one-shot entry point: start, then optionally wait.
func (p *Process) Execute(wait, checkStatus bool) error {
	if err := p.start(); err != nil {
		return err
	}
	if wait {
		return p.Wait(checkStatus, 0)
	}
	return nil
}

// Wait blocks until the process (and, recursively, its upstream if any)
// terminates. If kill is nonzero, it is sent repeatedly (polling every
// 100ms) until either the process is gone or the workers finish. If
// checkStatus, a stored communication error or an out-of-ok_statuses exit
// raises after the wait completes.
func (p *Process) Wait(checkStatus bool, kill syscall.Signal) error {
	if p.lockedState() == Pending {
		return errInvalidProcessState("process was never started")
	}
	if p.lockedState() == Spawning {
		return errInvalidProcessState("process is still starting")
	}

	if p.waitDone != nil {
		if kill != 0 {
			p.pollKill(kill)
		}
		<-p.waitDone
		<-p.commDone
	}

	p.mu.Lock()
	p.state = Terminated
	status := p.status
	procErr := p.procErr
	p.mu.Unlock()

	if p.upstream != nil {
		// Best-effort: the upstream's own error/status is surfaced through
		// its own Wait call by whoever holds its handle (e.g. Pipeline).
		_ = p.upstream.Wait(false, kill)
	}

	if !checkStatus {
		return nil
	}
	if procErr != nil {
		return procErr
	}
	if !containsInt(p.cfg.okStatuses, status) {
		return newExecutionError(p.String(), status, p.stdoutBuf.Bytes(), p.stderrBuf.Bytes())
	}
	return nil
}

func (p *Process) pollKill(sig syscall.Signal) {
	for {
		select {
		case <-p.waitDone:
			return
		default:
		}
		alive, err := killChild(p.pid, sig)
		if err == nil && !alive {
			return
		}
		select {
		case <-p.waitDone:
			return
		case <-afterMillis(100):
		}
	}
}

// Kill sends sig (SIGTERM if sig is 0) to the process. It reports whether
// the signal was actually delivered.
func (p *Process) Kill(sig syscall.Signal) (bool, error) {
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	if p.lockedState() != Running {
		return false, errInvalidProcessState("process is not Running")
	}
	return killChild(p.pid, sig)
}

// Pid returns the child's process ID. Valid once Running.
func (p *Process) Pid() (int, error) {
	st := p.lockedState()
	if st != Running && st != Terminated {
		return 0, errInvalidProcessState("process is not Running")
	}
	return p.pid, nil
}

// Status returns the child's exit status. Valid only once Terminated.
func (p *Process) Status() (int, error) {
	if p.lockedState() != Terminated {
		return 0, errInvalidProcessState("process has not terminated")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, nil
}

// RawStdout returns the captured stdout bytes. Valid only once Terminated.
func (p *Process) RawStdout() ([]byte, error) {
	if p.lockedState() != Terminated {
		return nil, errInvalidProcessState("process has not terminated")
	}
	return p.stdoutBuf.Bytes(), nil
}

// RawStderr returns the captured stderr bytes. Valid only once Terminated.
func (p *Process) RawStderr() ([]byte, error) {
	if p.lockedState() != Terminated {
		return nil, errInvalidProcessState("process has not terminated")
	}
	return p.stderrBuf.Bytes(), nil
}

// Stdout returns the captured stdout, UTF-8 decoded.
func (p *Process) Stdout() (string, error) {
	b, err := p.RawStdout()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Stderr returns the captured stderr, UTF-8 decoded.
func (p *Process) Stderr() (string, error) {
	b, err := p.RawStderr()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Close is the scope-exit operation: it waits (without raising) if the
// process is still running, then closes every still-live Output Iterator
// registered against it. Safe to call more than once.
func (p *Process) Close() error {
	if p.lockedState() == Running {
		_ = p.Wait(false, 0)
	}
	p.cleanupMu.Lock()
	iters := p.iterators
	p.iterators = nil
	p.cleanupMu.Unlock()
	for _, it := range iters {
		it.Close()
	}
	return nil
}

func (p *Process) registerIterator(it *OutputIterator) {
	p.cleanupMu.Lock()
	p.iterators = append(p.iterators, it)
	p.cleanupMu.Unlock()
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
