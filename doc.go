// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package psh spawns, pipes, and communicates with external processes
// without a shell: commands compose with Pipe/Pipeline instead of a pipe
// operator, redirection is declarative through Options, and the package
// handles the file-descriptor and goroutine bookkeeping needed to avoid
// deadlocks and leaks.
//
// A Process is built with New, optionally piped into others with Pipe or
// NewPipeline, then started with Execute (or, for a Pipeline, Execute or
// Start). Captured output is read back with Stdout/Stderr once the
// process has terminated; a running process's stdout can instead be read
// lazily with Iterator.
//
// For usage examples, see the package's _test.go files and
// internal/psh_example/main.go.
package psh
