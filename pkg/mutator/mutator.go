// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutator implements havoc-style stacked byte mutations.
package mutator

import (
	"math/rand"

	"github.com/rish9101/LibAFL/pkg/input"
)

type Mutator interface {
	Mutate(in *input.Raw)
}

// Func mutates in place. It returns false if it could not be applied to the input.
type Func func(r *rand.Rand, in *input.Raw) bool

// Source provides other corpus inputs for splicing.
type Source interface {
	Random(r *rand.Rand) *input.Raw
}

const (
	DefaultMaxStack = 8
	// MaxInputSize bounds inputs grown by mutations.
	MaxInputSize = 1 << 20
)

// Scheduled applies a random number of randomly chosen primitives per round.
type Scheduled struct {
	r        *rand.Rand
	maxStack int
	funcs    []Func
	names    []string
	// Applied counts successful applications per registered primitive.
	Applied []uint64
}

func NewScheduled(r *rand.Rand, maxStack int) *Scheduled {
	if maxStack <= 0 {
		maxStack = DefaultMaxStack
	}
	return &Scheduled{
		r:        r,
		maxStack: maxStack,
	}
}

// NewHavoc returns a scheduled mutator with all byte-level primitives registered.
// Splicing is only registered if src is not nil.
func NewHavoc(r *rand.Rand, maxStack int, src Source) *Scheduled {
	m := NewScheduled(r, maxStack)
	m.Add("flip-bit", FlipBit)
	m.Add("flip-2-bits", Flip2Bits)
	m.Add("flip-4-bits", Flip4Bits)
	m.Add("flip-byte", FlipByte)
	m.Add("flip-2-bytes", Flip2Bytes)
	m.Add("flip-4-bytes", Flip4Bytes)
	m.Add("delete-bytes", DeleteBytes)
	m.Add("clone-bytes", CloneBytes)
	m.Add("random-byte-add-sub", RandomByteAddSub)
	m.Add("random-byte", RandomByte)
	if src != nil {
		m.Add("splice", Splice(src))
	}
	return m
}

func (m *Scheduled) Add(name string, fn Func) {
	m.funcs = append(m.funcs, fn)
	m.names = append(m.names, name)
	m.Applied = append(m.Applied, 0)
}

func (m *Scheduled) Names() []string { return m.names }

// Iterations returns the number of stacked mutations for the next round, in [1, maxStack].
func (m *Scheduled) Iterations() int {
	return 1 + m.r.Intn(m.maxStack)
}

// Schedule returns the index of the next primitive, uniformly with replacement.
func (m *Scheduled) Schedule() int {
	return m.r.Intn(len(m.funcs))
}

func (m *Scheduled) Mutate(in *input.Raw) {
	if len(m.funcs) == 0 {
		return
	}
	for n := m.Iterations(); n > 0; n-- {
		idx := m.Schedule()
		if m.funcs[idx](m.r, in) {
			m.Applied[idx]++
		}
	}
}
