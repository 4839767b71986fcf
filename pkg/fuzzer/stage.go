// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"github.com/rish9101/LibAFL/pkg/mutator"
	"github.com/rish9101/LibAFL/pkg/queue"
)

// Stage does some work on a scheduled queue entry.
type Stage interface {
	Perform(entry *queue.Entry) error
}

// FuzzingStage runs a fixed number of mutated copies of the entry.
type FuzzingStage struct {
	engine     *Engine
	mutator    mutator.Mutator
	iterations int
}

func NewFuzzingStage(engine *Engine, mut mutator.Mutator, iterations int) *FuzzingStage {
	return &FuzzingStage{
		engine:     engine,
		mutator:    mut,
		iterations: iterations,
	}
}

func (st *FuzzingStage) Iterations() int { return st.iterations }

func (st *FuzzingStage) Perform(entry *queue.Entry) error {
	for i := 0; i < st.iterations; i++ {
		in := entry.Input().Clone()
		st.mutator.Mutate(in)
		if _, err := st.engine.Execute(in); err != nil {
			return err
		}
		score, err := st.engine.Evaluate(in)
		if err != nil {
			return err
		}
		// The shipped feedbacks keep what they like in their own queues and
		// report 0, so nothing reaches the global queue this way.
		if score > 0 {
			if err := st.engine.global.Insert(queue.NewEntry(in, entry)); err != nil {
				return err
			}
		}
	}
	return nil
}

// FuzzOne picks the next entry from the global queue and runs all stages on it.
type FuzzOne struct {
	engine *Engine
	stages []Stage
}

func NewFuzzOne(engine *Engine) *FuzzOne {
	return &FuzzOne{engine: engine}
}

func (fo *FuzzOne) AddStage(st Stage) {
	fo.stages = append(fo.stages, st)
}

func (fo *FuzzOne) Perform() error {
	e := fo.engine
	entry := e.global.Next(e.rnd)
	if entry == nil {
		return ErrEmptyQueue
	}
	e.current = entry
	defer func() { e.current = nil }()
	for _, st := range fo.stages {
		if err := st.Perform(entry); err != nil {
			return err
		}
	}
	return nil
}

func (fo *FuzzOne) close() {
	fo.stages = nil
	fo.engine = nil
}
