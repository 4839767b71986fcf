// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package queue

import (
	"github.com/rish9101/LibAFL/pkg/input"
)

// Info is the per-entry metadata collected when the entry was discovered.
type Info struct {
	Hash           uint64
	ExecUs         uint64
	BytesSet       uint32
	BitsSet        uint32
	Trimmed        bool
	HasNewCoverage bool
	Variable       bool
	SkipEntry      bool
}

// Entry owns one input. It belongs to at most one queue at a time.
type Entry struct {
	Info     Info
	OnDisk   bool
	Filename string
	// Fuzzed counts how many times the entry was scheduled.
	Fuzzed int

	input  *input.Raw
	queue  *Queue
	next   *Entry
	prev   *Entry
	parent *Entry
}

// NewEntry takes ownership of in. Callers that keep mutating the input must pass a clone.
func NewEntry(in *input.Raw, parent *Entry) *Entry {
	return &Entry{
		Info:   Info{Hash: in.Hash()},
		input:  in,
		parent: parent,
	}
}

func (e *Entry) Input() *input.Raw { return e.input }
func (e *Entry) Queue() *Queue     { return e.queue }
func (e *Entry) Next() *Entry      { return e.next }
func (e *Entry) Prev() *Entry      { return e.prev }
func (e *Entry) Parent() *Entry    { return e.parent }

// SetParent records the entry e was derived from.
func (e *Entry) SetParent(parent *Entry) {
	e.parent = parent
}

// Depth is the number of ancestors of the entry.
func (e *Entry) Depth() int {
	depth := 0
	for p := e.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}
