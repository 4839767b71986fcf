// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/queue"
)

// Timeout keeps inputs whose run time hit the timeout ceiling exactly.
// Runs that were killed report timeout+1 and are not kept.
type Timeout struct {
	queue  *queue.FeedbackQueue
	timing *observer.TimeoutChannel
}

func NewTimeout(q *queue.FeedbackQueue, timing *observer.TimeoutChannel) *Timeout {
	fb := &Timeout{
		queue:  q,
		timing: timing,
	}
	q.Feedback = fb
	return fb
}

func (fb *Timeout) Queue() *queue.FeedbackQueue { return fb.queue }

func (fb *Timeout) IsInteresting(in *input.Raw) (float64, error) {
	last := fb.timing.LastRunTime()
	if last != fb.timing.Timeout() {
		return 0, nil
	}
	_, err := enqueue(fb.queue, in, queue.Info{ExecUs: uint64(last) * 1000})
	return 0, err
}
