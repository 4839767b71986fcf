// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package feedback decides which executions are worth keeping.
//
// Every feedback owns a private queue. Inputs a feedback finds interesting go
// into that queue and the feedback then reports 0 to the caller, so the same
// input is never added to the global queue as well.
package feedback

import (
	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/queue"
)

// Score tiers. Only 1.0 and SuperInteresting are produced at the moment.
const (
	NewEdge          = 1.0
	SuperInteresting = 0.5
	VeryInteresting  = 0.4
	Interesting      = 0.3
)

type Feedback interface {
	// IsInteresting must be called after the run finished and all observers were updated.
	IsInteresting(in *input.Raw) (float64, error)
	Queue() *queue.FeedbackQueue
}

// enqueue stores a clone of in, the caller keeps reusing its buffer.
func enqueue(q *queue.FeedbackQueue, in *input.Raw, info queue.Info) (*queue.Entry, error) {
	e := queue.NewEntry(in.Clone(), nil)
	hash := e.Info.Hash
	e.Info = info
	e.Info.Hash = hash
	if err := q.Insert(e); err != nil {
		return nil, err
	}
	return e, nil
}
