// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package queue

import (
	"github.com/rish9101/LibAFL/pkg/input"
)

// Feedback is the owner of a FeedbackQueue.
type Feedback interface {
	IsInteresting(in *input.Raw) (float64, error)
}

// FeedbackQueue is the private corpus of a single feedback.
type FeedbackQueue struct {
	*Queue
	Name     string
	Feedback Feedback
}

func NewFeedbackQueue(name, dir string) *FeedbackQueue {
	return &FeedbackQueue{
		Queue: New(dir),
		Name:  name,
	}
}
