// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import "fmt"

// config accumulates a Process's construction-time options. It is built up
// by Option values passed to New and then frozen into a Process.
type config struct {
	env map[string]string // nil means inherit the caller's environment

	stdin  inputSource
	stdout outputTarget
	stderr outputTarget

	okStatuses []int

	iterDelimiter []byte
	iterRaw       bool

	deferStart bool
	onExecute  func(*Process)
	shell      bool

	waitForOutput  bool
	truncateOutput bool
}

func defaultConfig() *config {
	return &config{
		okStatuses:    []int{0},
		iterDelimiter: []byte("\n"),
		deferStart:    true,
		waitForOutput: true,
	}
}

// Option configures a Process at construction time, mirroring the reserved,
// underscore-prefixed keyword options of the external factory this package
// is built to serve (_env, _ok_statuses, _iter_delimiter, ...). The dynamic
// `sh.name(args...)` factory itself, and its plain-keyword-to-flag
// translation, are out of scope here — New takes an explicit Option list
// instead.
type Option func(*config) error

// WithEnv replaces the child's environment with env instead of inheriting
// the caller's.
func WithEnv(env map[string]string) Option {
	return func(c *config) error {
		c.env = copyMap(env)
		return nil
	}
}

// WithOKStatuses sets the set of exit statuses treated as success. The
// default is {0}.
func WithOKStatuses(statuses ...int) Option {
	return func(c *config) error {
		if len(statuses) == 0 {
			return errInvalidArgument("_ok_statuses must not be empty")
		}
		c.okStatuses = append([]int(nil), statuses...)
		return nil
	}
}

// WithIterDelimiter sets the delimiter the Output Iterator splits on. The
// default is "\n". An empty delimiter is only valid together with
// WithIterRaw(true); see OutputIterator's constructor.
func WithIterDelimiter(delim []byte) Option {
	return func(c *config) error {
		c.iterDelimiter = append([]byte(nil), delim...)
		return nil
	}
}

// WithIterRaw selects raw-byte iteration (true) instead of UTF-8 decoded
// text iteration (false, the default).
func WithIterRaw(raw bool) Option {
	return func(c *config) error {
		c.iterRaw = raw
		return nil
	}
}

// WithDefer controls whether New merely constructs the Process (true, the
// default) or also calls Execute on it before returning (false).
func WithDefer(defer_ bool) Option {
	return func(c *config) error {
		c.deferStart = defer_
		return nil
	}
}

// WithOnExecute registers a hook invoked with the Process immediately before
// it starts.
func WithOnExecute(fn func(*Process)) Option {
	return func(c *config) error {
		c.onExecute = fn
		return nil
	}
}

// WithShell enables this Process to be used as an argument to another
// Process by serializing it to a shell script (see shellscript.go).
func WithShell(enabled bool) Option {
	return func(c *config) error {
		c.shell = enabled
		return nil
	}
}

// WithWaitForOutput controls whether wait() blocks until all output pipes
// hit EOF (true, the default) or switches to the bounded-drain phase as soon
// as the termination signal fires (false).
func WithWaitForOutput(wait bool) Option {
	return func(c *config) error {
		c.waitForOutput = wait
		return nil
	}
}

// WithTruncateOutput controls whether the bounded post-termination drain
// silently truncates (true) or surfaces ProcessOutputWasTruncated (false,
// the default) when it stops with an output descriptor still held open by
// a descendant, or hits its byte cap.
func WithTruncateOutput(truncate bool) Option {
	return func(c *config) error {
		c.truncateOutput = truncate
		return nil
	}
}

// WithStdinInherit makes the child inherit the caller's stdin directly (no
// pipe is created for it).
func WithStdinInherit() Option {
	return func(c *config) error {
		c.stdin = inputSource{kind: inputInherit}
		return nil
	}
}

// WithStdinFile redirects the child's stdin from path, opened read-only.
func WithStdinFile(path string) Option {
	return func(c *config) error {
		c.stdin = inputSource{kind: inputFile, path: path}
		return nil
	}
}

// WithStdinBytes feeds data to the child's stdin as a single one-shot chunk.
func WithStdinBytes(data []byte) Option {
	return func(c *config) error {
		c.stdin = inputSource{kind: inputBytes, bytes: append([]byte(nil), data...)}
		return nil
	}
}

// WithStdinText is WithStdinBytes for a string, UTF-8 encoding it.
func WithStdinText(text string) Option {
	return WithStdinBytes([]byte(text))
}

// WithStdinProducer feeds the child's stdin from a lazy byte-chunk producer.
func WithStdinProducer(p Producer) Option {
	return func(c *config) error {
		if p == nil {
			return errInvalidArgument("_stdin producer must not be nil")
		}
		c.stdin = inputSource{kind: inputProducer, producer: p}
		return nil
	}
}

// WithStdoutCapture captures stdout into an internal buffer, retrievable
// from Process.Stdout/RawStdout after termination. This is the default.
func WithStdoutCapture() Option {
	return func(c *config) error {
		c.stdout = outputTarget{kind: outputCapture}
		return nil
	}
}

// WithStdoutInherit makes the child's stdout the caller's stdout directly.
func WithStdoutInherit() Option {
	return func(c *config) error {
		c.stdout = outputTarget{kind: outputInherit}
		return nil
	}
}

// WithStdoutFile redirects the child's stdout to path, truncating unless
// append is set.
func WithStdoutFile(path string, append bool) Option {
	return func(c *config) error {
		c.stdout = outputTarget{kind: outputFile, path: path, append: append}
		return nil
	}
}

// WithStdoutToStderr dups the child's stdout onto its stderr descriptor
// (1>&2).
func WithStdoutToStderr() Option {
	return func(c *config) error {
		c.stdout = outputTarget{kind: outputInherit, path: "&2"}
		return nil
	}
}

// WithStderrCapture captures stderr into an internal buffer. This is the
// default.
func WithStderrCapture() Option {
	return func(c *config) error {
		c.stderr = outputTarget{kind: outputCapture}
		return nil
	}
}

// WithStderrInherit makes the child's stderr the caller's stderr directly.
func WithStderrInherit() Option {
	return func(c *config) error {
		c.stderr = outputTarget{kind: outputInherit}
		return nil
	}
}

// WithStderrToStdout dups the child's stderr onto its stdout descriptor
// (2>&1).
func WithStderrToStdout() Option {
	return func(c *config) error {
		c.stderr = outputTarget{kind: outputInherit, path: "&1"}
		return nil
	}
}

// WithStderrFile redirects the child's stderr to path, truncating unless
// append is set.
func WithStderrFile(path string, append bool) Option {
	return func(c *config) error {
		c.stderr = outputTarget{kind: outputFile, path: path, append: append}
		return nil
	}
}

// renderArg renders a positional argument to its argv representation: text
// is UTF-8-encoded, integers and floats are decimal-formatted, []byte passes
// through unmodified. A *Process is only accepted when shell is true (the
// _shell reserved option): it is rendered via ShellScript into a single
// shell-escaped argv token, the way the external factory embeds one command
// as another's argument (e.g. `ssh host <embedded command>`). Anything else
// is InvalidArgument.
func renderArg(v interface{}, shell bool) ([]byte, error) {
	switch x := v.(type) {
	case string:
		return []byte(x), nil
	case []byte:
		return x, nil
	case int:
		return []byte(fmt.Sprintf("%d", x)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", x)), nil
	case float32:
		return []byte(fmt.Sprintf("%g", x)), nil
	case float64:
		return []byte(fmt.Sprintf("%g", x)), nil
	case *Process:
		if !shell {
			return nil, errInvalidArgument("passing a *Process as an argument requires WithShell(true)")
		}
		script, err := ShellScript(x)
		if err != nil {
			return nil, err
		}
		return []byte(script), nil
	default:
		return nil, errInvalidArgument("unsupported argument type %T", v)
	}
}

// renderArgs renders a full positional-argument list.
func renderArgs(args []interface{}, shell bool) ([][]byte, error) {
	out := make([][]byte, 0, len(args))
	for _, a := range args {
		b, err := renderArg(a, shell)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
