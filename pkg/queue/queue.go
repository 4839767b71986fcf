// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package queue holds the corpus: plain queues of entries, per-feedback
// queues and the global queue that schedules between them.
package queue

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/osutil"
)

// Queue is an ordered list of entries with a ring cursor for scheduling.
// It is safe to read lengths from other goroutines while a worker mutates it.
type Queue struct {
	Dir         string
	SaveToFiles bool
	EngineID    int

	mu       sync.RWMutex
	entries  []*Entry
	current  int // ring cursor used by Next
	pending  int // first entry never returned by NextPending
	namesID  int
	onInsert func(*Entry)
}

// New creates a queue. Entries are persisted into dir if it is not empty.
func New(dir string) *Queue {
	return &Queue{
		Dir:         dir,
		SaveToFiles: dir != "",
	}
}

// SetInsertHook registers fn to be called after every successful insertion.
func (q *Queue) SetInsertHook(fn func(*Entry)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onInsert = fn
}

// Insert appends e to the queue.
func (q *Queue) Insert(e *Entry) error {
	if e.queue != nil {
		return fmt.Errorf("entry %016x is already in a queue", e.Info.Hash)
	}
	q.mu.Lock()
	if q.SaveToFiles && q.Dir != "" && !e.OnDisk {
		name := filepath.Join(q.Dir, fmt.Sprintf("id:%06d,hash:%016x", q.namesID, e.Info.Hash))
		if err := e.input.Save(name); err != nil {
			q.mu.Unlock()
			return fmt.Errorf("failed to save queue entry: %w", err)
		}
		e.OnDisk, e.Filename = true, name
	}
	q.namesID++
	if n := len(q.entries); n != 0 {
		last := q.entries[n-1]
		last.next, e.prev = e, last
	}
	e.queue = q
	q.entries = append(q.entries, e)
	hook := q.onInsert
	q.mu.Unlock()
	if hook != nil {
		hook(e)
	}
	return nil
}

// Remove unlinks e from the queue. The on-disk copy is kept.
func (q *Queue) Remove(e *Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e.queue != q {
		return false
	}
	idx := -1
	for i, e1 := range q.entries {
		if e1 == e {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	e.prev, e.next, e.queue = nil, nil, nil
	copy(q.entries[idx:], q.entries[idx+1:])
	q.entries[len(q.entries)-1] = nil
	q.entries = q.entries[:len(q.entries)-1]
	if q.current > idx {
		q.current--
	}
	if q.current >= len(q.entries) {
		q.current = 0
	}
	if q.pending > idx {
		q.pending--
	}
	return true
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

func (q *Queue) Get(i int) *Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i < 0 || i >= len(q.entries) {
		return nil
	}
	return q.entries[i]
}

// Entries returns a snapshot of the queue contents.
func (q *Queue) Entries() []*Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*Entry(nil), q.entries...)
}

// Next returns entries in insertion order, wrapping around at the end.
func (q *Queue) Next() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	if q.current >= len(q.entries) {
		q.current = 0
	}
	e := q.entries[q.current]
	q.current++
	e.Fuzzed++
	return e
}

// NextPending returns each entry once, in insertion order.
func (q *Queue) NextPending() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending >= len(q.entries) {
		return nil
	}
	e := q.entries[q.pending]
	q.pending++
	e.Fuzzed++
	return e
}

// Pending is the number of entries NextPending hasn't returned yet.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries) - q.pending
}

// Random returns the input of a uniformly chosen entry, or nil if the queue is empty.
func (q *Queue) Random(r *rand.Rand) *input.Raw {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.entries) == 0 {
		return nil
	}
	return q.entries[r.Intn(len(q.entries))].input
}

// Prepare creates Dir if the queue persists entries.
func (q *Queue) Prepare() error {
	if !q.SaveToFiles || q.Dir == "" {
		return nil
	}
	if err := osutil.MkdirAll(q.Dir); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create queue dir: %w", err)
	}
	return nil
}
