// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/go-psh/psh/lookpath"
)

const devNull = "/dev/null"

// spawnResult carries what the Child Spawner produced: either a live pid, or
// a synthetic exec-failure status translated into the 126/127 contract
// because no child process ever came into being to report it itself.
type spawnResult struct {
	pid        int
	execFailed bool
	status     int   // valid when execFailed
	cause      error // valid when execFailed
}

// openRedirect opens a file-based Input/Output Target for one standard
// descriptor, honoring append semantics for outputs.
func openRedirect(path string, forWrite, append bool) (*os.File, error) {
	if !forWrite {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return nil, errIO(err, "unable to open %q for reading", path)
		}
		return f, nil
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0666)
	if err != nil {
		return nil, errIO(err, "unable to open %q for writing", path)
	}
	return f, nil
}

// stdFile is the descriptor that should occupy slot (0, 1, or 2) in
// the child for one of this Process's three standard streams, given its
// already-reified source/target (a *pipe created earlier in start(), an
// opened redirection file, or nil meaning "inherit").
type stdFile struct {
	fd       int
	toClose  []*os.File // opened here; closed by the parent after ForkExec
	dupOther bool       // resolves to the other standard stream's fd, post-hoc
}

func (p *Process) resolveStdin() (stdFile, error) {
	switch p.stdin.kind {
	case inputInherit:
		return stdFile{fd: int(os.Stdin.Fd())}, nil
	case inputNone:
		f, err := openRedirect(devNull, false, false)
		if err != nil {
			return stdFile{}, err
		}
		return stdFile{fd: int(f.Fd()), toClose: []*os.File{f}}, nil
	case inputFile:
		f, err := openRedirect(p.stdin.path, false, false)
		if err != nil {
			return stdFile{}, err
		}
		return stdFile{fd: int(f.Fd()), toClose: []*os.File{f}}, nil
	case inputBytes, inputProducer:
		return stdFile{fd: p.stdinPipe.childFD()}, nil
	case inputUpstream:
		return stdFile{fd: p.stdinPipe.childFD()}, nil
	default:
		return stdFile{}, errInvalidArgument("unrecognized stdin source")
	}
}

// resolveOutput resolves one stream's (stdout's or stderr's) target fd.
// ownFD is the descriptor this stream inherits by default; dupMarker names
// the other standard stream ("&1" for stdout, "&2" for stderr) this target
// may instead ask to be dup'd onto (stderr-to-stdout or stdout-to-stderr).
func (p *Process) resolveOutput(target outputTarget, pipe *pipe, ownFD uintptr, dupMarker string) (stdFile, error) {
	switch target.kind {
	case outputInherit:
		if target.path == dupMarker {
			return stdFile{dupOther: true}, nil
		}
		return stdFile{fd: int(ownFD)}, nil
	case outputFile:
		f, err := openRedirect(target.path, true, target.append)
		if err != nil {
			return stdFile{}, err
		}
		return stdFile{fd: int(f.Fd()), toClose: []*os.File{f}}, nil
	case outputCapture, outputDownstream, outputIteratorSink:
		return stdFile{fd: pipe.childFD()}, nil
	default:
		return stdFile{}, errInvalidArgument("unrecognized output target")
	}
}

// spawn runs the Child Spawner: it assembles the three standard descriptors
// and execs the program via syscall.ForkExec. Go's fork/exec trampoline
// performs the dup2-onto-0/1/2, close-everything-else, and exec steps of the
// spec's Child Spawner contract; this function is responsible for building
// the Files slice, resolving environment and path, and translating an
// exec-time failure into the 126/127 status contract (see DESIGN.md for why
// the mechanism differs from a hand-rolled post-fork child).
func (p *Process) spawn() (spawnResult, error) {
	resolvedPath, err := lookpath.Look(envMapOf(), p.program)
	if err != nil {
		resolvedPath = p.program // let exec itself report ENOENT
	}

	stdinF, err := p.resolveStdin()
	if err != nil {
		return spawnResult{}, err
	}
	var opened []*os.File
	opened = append(opened, stdinF.toClose...)
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	stdoutF, err := p.resolveOutput(p.stdout, p.stdoutPipe, os.Stdout.Fd(), "&2")
	if err != nil {
		return spawnResult{}, err
	}
	opened = append(opened, stdoutF.toClose...)

	stderrF, err := p.resolveOutput(p.stderr, p.stderrPipe, os.Stderr.Fd(), "&1")
	if err != nil {
		return spawnResult{}, err
	}
	opened = append(opened, stderrF.toClose...)

	if stdoutF.dupOther {
		stdoutF.fd = stderrF.fd
	}
	if stderrF.dupOther {
		stderrF.fd = stdoutF.fd
	}

	env := p.cfg.env
	var envSlice []string
	if env == nil {
		envSlice = os.Environ()
	} else {
		envSlice = mapToSlice(env)
	}

	argv := append([]string{p.program}, byteSlicesToStrings(p.args)...)

	attr := &syscall.ProcAttr{
		Env:   envSlice,
		Files: []uintptr{uintptr(stdinF.fd), uintptr(stdoutF.fd), uintptr(stderrF.fd)},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	}

	pid, err := syscall.ForkExec(resolvedPath, argv, attr)
	if err != nil {
		status := 127
		if err == syscall.EACCES {
			status = 126
		}
		return spawnResult{execFailed: true, status: status, cause: err}, nil
	}
	return spawnResult{pid: pid}, nil
}

func byteSlicesToStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func envMapOf() map[string]string {
	return sliceToMap(os.Environ())
}

// killChild sends sig to pid, reporting whether the process still existed.
func killChild(pid int, sig syscall.Signal) (bool, error) {
	if err := unix.Kill(pid, sig); err != nil {
		if err == unix.ESRCH {
			return false, nil
		}
		return false, errIO(err, "unable to signal pid %d", pid)
	}
	return true, nil
}
