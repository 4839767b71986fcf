// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package queue

import (
	"math/rand"

	"github.com/rish9101/LibAFL/pkg/input"
)

// GlobalQueue owns the feedback queues and picks what to fuzz next.
// Its own entries (the base queue) are the seeds and globally promoted inputs.
type GlobalQueue struct {
	*Queue
	feedbackQueues []*FeedbackQueue
}

func NewGlobal(dir string) *GlobalQueue {
	return &GlobalQueue{Queue: New(dir)}
}

func (gq *GlobalQueue) AddFeedbackQueue(fq *FeedbackQueue) {
	gq.feedbackQueues = append(gq.feedbackQueues, fq)
}

func (gq *GlobalQueue) FeedbackQueues() []*FeedbackQueue {
	return gq.feedbackQueues
}

// Schedule picks a random starting feedback queue and walks the queues
// round-robin from it. It returns the index of the first queue that has
// entries never scheduled before, or -1 if all of them are drained.
func (gq *GlobalQueue) Schedule(r *rand.Rand) int {
	n := len(gq.feedbackQueues)
	if n == 0 {
		return -1
	}
	start := r.Intn(n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if gq.feedbackQueues[idx].Pending() != 0 {
			return idx
		}
	}
	return -1
}

// Next returns the next entry to fuzz: fresh feedback queue entries first,
// then the base queue in a ring.
func (gq *GlobalQueue) Next(r *rand.Rand) *Entry {
	if idx := gq.Schedule(r); idx != -1 {
		if e := gq.feedbackQueues[idx].NextPending(); e != nil {
			return e
		}
	}
	return gq.Queue.Next()
}

// TotalLen is the number of entries in the base queue and all feedback queues.
func (gq *GlobalQueue) TotalLen() int {
	total := gq.Len()
	for _, fq := range gq.feedbackQueues {
		total += fq.Len()
	}
	return total
}

// Random returns a random input from any of the queues, used for splicing.
func (gq *GlobalQueue) Random(r *rand.Rand) *input.Raw {
	total := gq.TotalLen()
	if total == 0 {
		return nil
	}
	idx := r.Intn(total)
	queues := []*Queue{gq.Queue}
	for _, fq := range gq.feedbackQueues {
		queues = append(queues, fq.Queue)
	}
	for _, q := range queues {
		if e := q.Get(idx); e != nil {
			return e.Input()
		}
		idx -= q.Len()
	}
	return nil
}
