// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"syscall"

	"go.uber.org/multierr"
)

// Pipeline is a linear chain of Processes connected stdout-to-stdin, formed
// by the pipe operator. Only the tail may be started by the caller;
// starting it cascades upstream through Process.start's own upstream
// handling. Waiting and killing likewise propagate to every stage.
type Pipeline struct {
	stages []*Process
}

// NewPipeline links stages in order (stages[0] | stages[1] | ...) and
// returns the resulting Pipeline. Every stage must be Pending and otherwise
// unpiped.
func NewPipeline(stages ...*Process) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, errInvalidArgument("pipeline must have at least one stage")
	}
	for i := 0; i < len(stages)-1; i++ {
		if err := stages[i].Pipe(stages[i+1]); err != nil {
			return nil, err
		}
	}
	return &Pipeline{stages: stages}, nil
}

func (pl *Pipeline) tail() *Process { return pl.stages[len(pl.stages)-1] }

// Stages returns the pipeline's stages in head-to-tail order.
func (pl *Pipeline) Stages() []*Process {
	return append([]*Process(nil), pl.stages...)
}

// Execute starts the pipeline and, if wait, waits for it.
func (pl *Pipeline) Execute(wait, checkStatus bool) error {
	if err := pl.Start(); err != nil {
		return err
	}
	if wait {
		return pl.Wait(checkStatus, 0)
	}
	return nil
}

// Start starts the tail, which cascades upstream through every predecessor.
func (pl *Pipeline) Start() error {
	return pl.tail().start()
}

// Wait joins every stage (the tail's Wait already recurses through each
// stage's Upstream link, delivering kill to each in turn if given). If
// checkStatus, every stage is checked against its own OK-status set, not
// just the tail: the pipeline's apparent exit status is the tail's, but an
// intermediate stage outside its own ok_statuses still raises.
func (pl *Pipeline) Wait(checkStatus bool, kill syscall.Signal) error {
	_ = pl.tail().Wait(false, kill)

	if !checkStatus {
		return nil
	}
	for _, s := range pl.stages {
		status, err := s.Status()
		if err != nil {
			continue
		}
		if !containsInt(s.cfg.okStatuses, status) {
			stdout, _ := s.RawStdout()
			stderr, _ := s.RawStderr()
			return newExecutionError(s.String(), status, stdout, stderr)
		}
	}
	return nil
}

// Kill sends sig (SIGTERM if 0) to every still-running stage. It reports
// whether the signal was delivered to at least one stage.
func (pl *Pipeline) Kill(sig syscall.Signal) (bool, error) {
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	var delivered bool
	for _, s := range pl.stages {
		if s.lockedState() != Running {
			continue
		}
		ok, err := s.Kill(sig)
		if err != nil {
			return delivered, err
		}
		delivered = delivered || ok
	}
	return delivered, nil
}

// Status, RawStdout, RawStderr, Stdout and Stderr report the tail's: the
// pipeline's apparent result is the last stage's.
func (pl *Pipeline) Status() (int, error)       { return pl.tail().Status() }
func (pl *Pipeline) RawStdout() ([]byte, error) { return pl.tail().RawStdout() }
func (pl *Pipeline) RawStderr() ([]byte, error) { return pl.tail().RawStderr() }
func (pl *Pipeline) Stdout() (string, error)    { return pl.tail().Stdout() }
func (pl *Pipeline) Stderr() (string, error)    { return pl.tail().Stderr() }

// Close is the pipeline's scope-exit: it closes every stage (waiting if
// still running, then releasing scoped Output Iterators), combining any
// errors.
func (pl *Pipeline) Close() error {
	var err error
	for _, s := range pl.stages {
		err = multierr.Append(err, s.Close())
	}
	return err
}
