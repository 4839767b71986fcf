// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/shmem"
)

// Harness executes one input in-process. It records coverage into whatever
// map channel it was built around and reports how the run ended.
type Harness func(data []byte) ExitClass

// InMemory runs a Go harness in the calling goroutine. A panicking harness is
// a crash. Runs can't be preempted, a run longer than the timeout is
// classified as Timeout after it returns.
type InMemory struct {
	harness   Harness
	timeoutMs uint32
	observers []observer.Channel
	current   *input.Raw
	lastPanic any
	execs     atomic.Uint64
}

func NewInMemory(harness Harness, timeout time.Duration) *InMemory {
	return &InMemory{
		harness:   harness,
		timeoutMs: (&Config{Timeout: timeout}).timeoutMs(),
	}
}

func (ex *InMemory) AddObserver(ch observer.Channel) { ex.observers = append(ex.observers, ch) }
func (ex *InMemory) Observers() []observer.Channel   { return ex.observers }
func (ex *InMemory) CurrentInput() *input.Raw        { return ex.current }
func (ex *InMemory) Execs() uint64                   { return ex.execs.Load() }

func (ex *InMemory) Timeout() time.Duration {
	return time.Duration(ex.timeoutMs) * time.Millisecond
}

// SetTimeout changes the run timeout and the timeout of attached timeout channels.
func (ex *InMemory) SetTimeout(timeout time.Duration) {
	ex.timeoutMs = (&Config{Timeout: timeout}).timeoutMs()
	setTimeout(ex.observers, ex.timeoutMs)
}

// LastPanic is the value recovered from the last crashing run, if any.
func (ex *InMemory) LastPanic() any { return ex.lastPanic }

func (ex *InMemory) Run(in *input.Raw) (ExitClass, error) {
	ex.current = in
	for _, obs := range ex.observers {
		obs.Reset()
	}
	shmem.Barrier()
	start := time.Now()
	class := ex.runHarness(in.Bytes())
	elapsed := time.Since(start)
	shmem.Barrier()
	execMs := clampExecMs(elapsed, ex.timeoutMs)
	if elapsed > time.Duration(ex.timeoutMs)*time.Millisecond {
		execMs = ex.timeoutMs + 1
		if class == Normal {
			class = Timeout
		}
	}
	setRunTime(ex.observers, execMs)
	ex.execs.Add(1)
	return class, nil
}

func (ex *InMemory) runHarness(data []byte) (class ExitClass) {
	ex.lastPanic = nil
	defer func() {
		if r := recover(); r != nil {
			ex.lastPanic = r
			log.Logf(2, "harness panicked: %v", r)
			class = Crash
		}
	}()
	return ex.harness(data)
}

func (ex *InMemory) Close() error {
	var err error
	for _, obs := range ex.observers {
		if c, ok := obs.(interface{ Close() error }); ok {
			if err1 := c.Close(); err1 != nil && err == nil {
				err = fmt.Errorf("failed to close observer: %w", err1)
			}
		}
	}
	ex.observers = nil
	return err
}
