// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package observer contains the side channels collected from a single execution.
package observer

import (
	"github.com/rish9101/LibAFL/pkg/shmem"
)

// Channel is reset by the executor right before a run and updated right after it.
type Channel interface {
	Reset()
	PostExec(execs uint64)
}

// MapChannel exposes a shared region as a coverage bitmap.
type MapChannel struct {
	region *shmem.Region
}

func NewMapChannel(region *shmem.Region) *MapChannel {
	return &MapChannel{region: region}
}

func (ch *MapChannel) Map() []byte           { return ch.region.Bytes() }
func (ch *MapChannel) Size() int             { return ch.region.Size() }
func (ch *MapChannel) Region() *shmem.Region { return ch.region }
func (ch *MapChannel) PostExec(execs uint64) {}

// Reset zeroes the coverage map.
func (ch *MapChannel) Reset() {
	ch.region.Zero()
}

func (ch *MapChannel) Close() error {
	return ch.region.Close()
}

// TimeoutChannel tracks execution times in milliseconds.
type TimeoutChannel struct {
	timeout     uint32
	lastRunTime uint32
	avgExecTime uint32
}

func NewTimeoutChannel(timeoutMs uint32) *TimeoutChannel {
	return &TimeoutChannel{timeout: timeoutMs}
}

func (ch *TimeoutChannel) Reset() {
	ch.lastRunTime = 0
}

// PostExec folds the last run time into the average.
// The recurrence is avg = (avg + last) / execs, which is not a true mean;
// published stats depend on this exact form.
func (ch *TimeoutChannel) PostExec(execs uint64) {
	if execs == 0 {
		return
	}
	ch.avgExecTime = uint32((uint64(ch.avgExecTime) + uint64(ch.lastRunTime)) / execs)
}

func (ch *TimeoutChannel) SetLastRunTime(ms uint32) { ch.lastRunTime = ms }
func (ch *TimeoutChannel) LastRunTime() uint32      { return ch.lastRunTime }
func (ch *TimeoutChannel) AvgExecTime() uint32      { return ch.avgExecTime }
func (ch *TimeoutChannel) Timeout() uint32          { return ch.timeout }
func (ch *TimeoutChannel) SetTimeout(ms uint32)     { ch.timeout = ms }
