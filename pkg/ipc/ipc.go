// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package ipc runs inputs against a target and classifies the outcome.
package ipc

import (
	"fmt"
	"strings"
	"time"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/observer"
)

// ExitClass is the outcome of a single run. Timeouts and crashes are results, not errors.
type ExitClass int

const (
	Normal ExitClass = iota
	Timeout
	Crash
)

func (c ExitClass) String() string {
	switch c {
	case Normal:
		return "normal"
	case Timeout:
		return "timeout"
	case Crash:
		return "crash"
	default:
		return fmt.Sprintf("ExitClass(%d)", int(c))
	}
}

// Executor runs one input at a time. Run resets all observers exactly once
// before the input is executed, callers must not reset them again.
type Executor interface {
	Run(in *input.Raw) (ExitClass, error)
	AddObserver(ch observer.Channel)
	Observers() []observer.Channel
	// CurrentInput is the input of the last (or ongoing) run.
	CurrentInput() *input.Raw
	Execs() uint64
	Close() error
}

// TimeoutSetter is implemented by executors whose per-run timeout can be
// changed between runs.
type TimeoutSetter interface {
	Timeout() time.Duration
	SetTimeout(timeout time.Duration)
}

// FatalError means the executor lost its protocol state and can't be used anymore.
// The owning worker is expected to abort.
type FatalError struct {
	Op  string
	Err error
	// Loc is the file:line that raised the error.
	Loc string
}

// NewFatalError wraps err and records the location of the caller.
func NewFatalError(op string, err error) *FatalError {
	return &FatalError{Op: op, Err: err, Loc: log.CallerLoc(1)}
}

func (err *FatalError) Error() string {
	return fmt.Sprintf("%v: %v", err.Op, err.Err)
}

func (err *FatalError) Unwrap() error {
	return err.Err
}

func fatalf(op, msg string, args ...any) error {
	return &FatalError{Op: op, Err: fmt.Errorf(msg, args...), Loc: log.CallerLoc(1)}
}

const (
	// ForkWaitMult scales the exec timeout for the forkserver handshake.
	ForkWaitMult = 10
	// File descriptors the instrumentation runtime expects the control and status pipes on.
	forkSrvFD = 198
	// InputPlaceholder in target args is replaced with the staging input file path.
	InputPlaceholder = "@@"
)

// Config is the configuration for Forkserver.
type Config struct {
	// Path to the instrumented target binary.
	Target string
	Args   []string
	// Additional environment entries for the target.
	Env []string

	// Timeout is the execution timeout for a single input.
	Timeout time.Duration

	// OutFile is the staging file the input is written to.
	// The target receives it either as the @@ argument or on stdin.
	OutFile  string
	UseStdin bool
}

func (cfg *Config) timeoutMs() uint32 {
	ms := cfg.Timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return uint32(ms)
}

// targetArgs substitutes the input placeholder. Without a placeholder the
// input is delivered on stdin.
func (cfg *Config) targetArgs() (args []string, useStdin bool) {
	useStdin = true
	for _, arg := range cfg.Args {
		if strings.Contains(arg, InputPlaceholder) {
			arg = strings.ReplaceAll(arg, InputPlaceholder, cfg.OutFile)
			useStdin = false
		}
		args = append(args, arg)
	}
	return args, useStdin || cfg.UseStdin
}

// classify maps a raw wait status to an exit class. A SIGKILL is a timeout
// only if we killed the worker ourselves.
func classify(status uint32, timedOut bool) ExitClass {
	ws := waitStatus(status)
	if !ws.Signaled() {
		return Normal
	}
	if timedOut && ws.Signal() == sigKill {
		return Timeout
	}
	return Crash
}

// clampExecMs converts wall time to the reported exec time: at least 1ms
// and no more than the timeout.
func clampExecMs(elapsed time.Duration, timeoutMs uint32) uint32 {
	ms := uint64(elapsed.Milliseconds())
	if ms > uint64(timeoutMs) {
		ms = uint64(timeoutMs)
	}
	if ms == 0 {
		ms = 1
	}
	return uint32(ms)
}

func setTimeout(observers []observer.Channel, ms uint32) {
	for _, obs := range observers {
		if ch, ok := obs.(*observer.TimeoutChannel); ok {
			ch.SetTimeout(ms)
		}
	}
}

func setRunTime(observers []observer.Channel, ms uint32) {
	for _, obs := range observers {
		if ch, ok := obs.(*observer.TimeoutChannel); ok {
			ch.SetLastRunTime(ms)
		}
	}
}
