// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psh

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var simpleArgRe = regexp.MustCompile(`^[-A-Za-z0-9/_.:=+]+$`)

// quoteArg renders arg the way a shell would need it quoted: unquoted if it
// matches simpleArgRe, otherwise single-quoted with embedded quotes escaped
// via the standard '"'"' trick.
func quoteArg(arg []byte) []byte {
	if simpleArgRe.Match(arg) {
		return arg
	}
	var buf bytes.Buffer
	buf.WriteByte('\'')
	buf.Write(bytes.ReplaceAll(arg, []byte("'"), []byte(`'"'"'`)))
	buf.WriteByte('\'')
	return buf.Bytes()
}

// ShellScript renders stages, in pipe order, as a command line equivalent to
// executing them directly: a plain pipeline for a single stage, or a
// `bash -c '...'` script with a PIPESTATUS inspection appended for a
// multi-stage pipeline, so a non-tail failure still propagates as a nonzero
// exit. Every stage must still be Pending. A stage whose stdin is a byte
// literal or a producer cannot be serialized.
func ShellScript(stages ...*Process) (string, error) {
	if len(stages) == 0 {
		return "", errInvalidArgument("need at least one stage to serialize")
	}

	var buf bytes.Buffer
	okStatusesPerStage := make([][]int, 0, len(stages))
	for i, s := range stages {
		if s.lockedState() != Pending {
			return "", errInvalidProcessState("process has already executed; cannot serialize to a shell script")
		}
		if i > 0 {
			buf.WriteString(" | ")
		}
		if err := writeStageCommand(&buf, s, i, len(stages)); err != nil {
			return "", err
		}
		okStatusesPerStage = append(okStatusesPerStage, s.cfg.okStatuses)
	}

	if len(okStatusesPerStage) == 1 {
		return buf.String(), nil
	}

	buf.WriteString("; statuses=(${PIPESTATUS[@]});")
	for i, oks := range okStatusesPerStage {
		if i == len(okStatusesPerStage)-1 {
			fmt.Fprintf(&buf, " exit ${statuses[%d]};", i)
			continue
		}
		fmt.Fprintf(&buf, " case ${statuses[%d]} in", i)
		if len(oks) > 0 {
			strs := make([]string, len(oks))
			for j, st := range oks {
				strs[j] = fmt.Sprintf("%d", st)
			}
			fmt.Fprintf(&buf, " %s);;", strings.Join(strs, "|"))
		}
		buf.WriteString(" *) exit 128;; esac;")
	}

	return "bash -c '" + strings.ReplaceAll(buf.String(), "'", `'"'"'`) + "'", nil
}

func writeStageCommand(buf *bytes.Buffer, s *Process, idx, numStages int) error {
	buf.Write(quoteArg([]byte(s.program)))
	for _, a := range s.args {
		buf.WriteByte(' ')
		buf.Write(quoteArg(a))
	}

	switch s.stdin.kind {
	case inputFile:
		buf.WriteString(" < ")
		buf.Write(quoteArg([]byte(s.stdin.path)))
	case inputNone, inputInherit, inputUpstream:
		// Upstream is already expressed by the " | " joining stages; None
		// and Inherit need no explicit redirection in a shell script.
	case inputBytes, inputProducer:
		return errInvalidOperation("string and producer stdin is not supported for shell-script serialization")
	}

	switch {
	case idx < numStages-1:
		// piped into the next stage
	case s.stdout.kind == outputCapture || s.stdout.kind == outputIteratorSink ||
		(s.stdout.kind == outputInherit && s.stdout.path == ""):
		// captured/inherited the same way the caller would capture the
		// script's own stdout
	case s.stdout.kind == outputInherit && s.stdout.path == "&2":
		buf.WriteString(" >&2")
	case s.stdout.kind == outputFile:
		if s.stdout.append {
			buf.WriteString(" >> ")
		} else {
			buf.WriteString(" > ")
		}
		buf.Write(quoteArg([]byte(s.stdout.path)))
	default:
		return errInvalidOperation("unsupported stdout target for shell-script serialization")
	}

	switch {
	case s.stderr.kind == outputCapture || (s.stderr.kind == outputInherit && s.stderr.path == ""):
		// captured/inherited as above
	case s.stderr.kind == outputInherit && s.stderr.path == "&1":
		buf.WriteString(" 2>&1")
	case s.stderr.kind == outputFile:
		if s.stderr.append {
			buf.WriteString(" 2>> ")
		} else {
			buf.WriteString(" 2> ")
		}
		buf.Write(quoteArg([]byte(s.stderr.path)))
	default:
		return errInvalidOperation("unsupported stderr target for shell-script serialization")
	}

	return nil
}
