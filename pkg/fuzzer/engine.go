// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer drives mutation rounds: it schedules queue entries, runs
// mutated inputs through an executor and routes the results to feedbacks.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rish9101/LibAFL/pkg/broker"
	"github.com/rish9101/LibAFL/pkg/feedback"
	"github.com/rish9101/LibAFL/pkg/hash"
	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/ipc"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/queue"
)

const publishPeriod = time.Second

// Engine owns one executor and the queues fed by its runs.
// It is not safe for concurrent use, parallelism comes from running several engines.
type Engine struct {
	ID uuid.UUID

	executor  ipc.Executor
	timing    *observer.TimeoutChannel
	global    *queue.GlobalQueue
	feedbacks []feedback.Feedback
	fuzzOne   *FuzzOne
	rnd       *rand.Rand

	pub         broker.Publisher
	stats       *Stats
	crashDir    string
	seedTimeout time.Duration

	execs       atomic.Uint64
	crashes     atomic.Uint64
	lastCrash   *input.Raw
	lastPublish time.Time
	current     *queue.Entry
	closed      bool
}

func NewEngine(executor ipc.Executor, global *queue.GlobalQueue, rnd *rand.Rand) *Engine {
	e := &Engine{
		ID:       uuid.New(),
		executor: executor,
		global:   global,
		rnd:      rnd,
	}
	for _, obs := range executor.Observers() {
		if ch, ok := obs.(*observer.TimeoutChannel); ok {
			e.timing = ch
		}
	}
	global.SetInsertHook(e.onNewEntry)
	return e
}

// AddFeedback registers fb and its private queue with the global queue.
func (e *Engine) AddFeedback(fb feedback.Feedback) {
	fq := fb.Queue()
	fq.SetInsertHook(e.onNewEntry)
	e.global.AddFeedbackQueue(fq)
	e.feedbacks = append(e.feedbacks, fb)
}

func (e *Engine) SetFuzzOne(fo *FuzzOne)            { e.fuzzOne = fo }
func (e *Engine) SetPublisher(pub broker.Publisher) { e.pub = pub }
func (e *Engine) SetStats(stats *Stats)             { e.stats = stats }

// SetCrashDir makes the engine save crashing inputs to dir.
func (e *Engine) SetCrashDir(dir string) { e.crashDir = dir }

// SetSeedTimeout sets the run timeout used by LoadDir, if the executor
// supports changing it. Zero keeps the executor timeout.
func (e *Engine) SetSeedTimeout(timeout time.Duration) { e.seedTimeout = timeout }

func (e *Engine) Executor() ipc.Executor         { return e.executor }
func (e *Engine) Global() *queue.GlobalQueue     { return e.global }
func (e *Engine) Feedbacks() []feedback.Feedback { return e.feedbacks }
func (e *Engine) Rand() *rand.Rand               { return e.rnd }
func (e *Engine) Execs() uint64                  { return e.execs.Load() }
func (e *Engine) Crashes() uint64                { return e.crashes.Load() }

// LastCrash is a copy of the last input that crashed the target.
func (e *Engine) LastCrash() *input.Raw { return e.lastCrash }

// Execute runs in and updates the observers. Timeouts and crashes are
// returned as the exit class, an error means the executor is unusable.
func (e *Engine) Execute(in *input.Raw) (ipc.ExitClass, error) {
	class, err := e.executor.Run(in)
	if err != nil {
		return class, err
	}
	execs := e.execs.Add(1)
	for _, obs := range e.executor.Observers() {
		obs.PostExec(execs)
	}
	if e.stats != nil {
		e.stats.ExecTotal.Add(1)
		if e.timing != nil {
			e.stats.ExecTime.Add(int(e.timing.LastRunTime()))
		}
	}
	switch class {
	case ipc.Crash:
		e.handleCrash(in)
	case ipc.Timeout:
		if e.stats != nil {
			e.stats.Timeouts.Add(1)
		}
	}
	e.publishStats(false)
	return class, nil
}

// Evaluate asks every feedback about the last execution and returns the
// summed score. Feedbacks that store the input in their own queue report 0.
func (e *Engine) Evaluate(in *input.Raw) (float64, error) {
	total := 0.0
	for _, fb := range e.feedbacks {
		score, err := fb.IsInteresting(in)
		if err != nil {
			return 0, err
		}
		total += score
	}
	return total, nil
}

func (e *Engine) handleCrash(in *input.Raw) {
	e.crashes.Add(1)
	e.lastCrash = in.Clone()
	if e.stats != nil {
		e.stats.Crashes.Add(1)
	}
	if e.crashDir == "" {
		return
	}
	file := filepath.Join(e.crashDir, "crash-"+hash.String(in.Bytes()))
	if err := osutil.WriteFileAtomic(file, in.Bytes()); err != nil {
		log.Logf(0, "failed to save crash: %v", err)
		return
	}
	log.Logf(1, "engine %v: saved crash to %v", e.ID, file)
}

func (e *Engine) onNewEntry(entry *queue.Entry) {
	if entry.Parent() == nil && e.current != nil && e.current != entry {
		entry.SetParent(e.current)
	}
	if e.stats != nil && entry.Queue() != e.global.Queue {
		e.stats.NewInputs.Add(1)
	}
	log.Logf(1, "engine %v: new entry %016x (%v bytes, depth %v)",
		e.ID, entry.Info.Hash, entry.Input().Len(), entry.Depth())
	if e.pub == nil {
		return
	}
	msg := &broker.Message{
		Tag:   broker.TagNewQueueEntry,
		Hash:  entry.Info.Hash,
		Size:  entry.Input().Len(),
		Queue: e.queueName(entry.Queue()),
	}
	if err := e.pub.Publish(msg); err != nil {
		log.Logf(0, "engine %v: failed to publish new entry: %v", e.ID, err)
	}
}

func (e *Engine) queueName(q *queue.Queue) string {
	for _, fq := range e.global.FeedbackQueues() {
		if fq.Queue == q {
			return fq.Name
		}
	}
	return "global"
}

func (e *Engine) publishStats(force bool) {
	if e.pub == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(e.lastPublish) < publishPeriod {
		return
	}
	e.lastPublish = now
	msg := &broker.Message{
		Tag:     broker.TagExecStats,
		Execs:   e.execs.Load(),
		Crashes: e.crashes.Load(),
	}
	if err := e.pub.Publish(msg); err != nil {
		log.Logf(0, "engine %v: failed to publish stats: %v", e.ID, err)
	}
}

var ErrEmptyQueue = errors.New("nothing to fuzz: the queue is empty")

// Loop performs rounds fuzzing rounds, or runs until ctx is cancelled if rounds is 0.
// It returns only executor failures, cancellation is not an error.
func (e *Engine) Loop(ctx context.Context, rounds int) error {
	if e.fuzzOne == nil {
		return fmt.Errorf("engine %v has no fuzz_one", e.ID)
	}
	defer e.publishStats(true)
	for i := 0; rounds == 0 || i < rounds; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := e.fuzzOne.Perform(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases everything in the reverse order of construction, the executor goes last.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.fuzzOne != nil {
		e.fuzzOne.close()
		e.fuzzOne = nil
	}
	e.feedbacks = nil
	for _, fq := range e.global.FeedbackQueues() {
		fq.SetInsertHook(nil)
	}
	e.global.SetInsertHook(nil)
	e.current = nil
	return e.executor.Close()
}
