// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"github.com/rish9101/LibAFL/pkg/stat"
)

const (
	statExecTotal = "exec total"
	statExecTime  = "exec time"
	statCrashes   = "crashes"
	statTimeouts  = "timeouts"
	statNewInputs = "new inputs"
	statSeeds     = "seeds"
)

// Stats are shared by all engines of one process.
type Stats struct {
	ExecTotal *stat.Val
	ExecTime  *stat.Val
	Crashes   *stat.Val
	Timeouts  *stat.Val
	NewInputs *stat.Val
	Seeds     *stat.Val
}

func NewStats(set *stat.Set) *Stats {
	return &Stats{
		ExecTotal: set.New(statExecTotal, "Total test case executions",
			stat.Console, stat.Rate{}, stat.Prometheus("afl_exec_total")),
		ExecTime: set.New(statExecTime, "Test case execution time (ms)",
			stat.Distribution{}, stat.Prometheus("afl_exec_time_ms")),
		Crashes: set.New(statCrashes, "Executions that crashed the target",
			stat.Console, stat.Prometheus("afl_crashes")),
		Timeouts: set.New(statTimeouts, "Executions killed on timeout",
			stat.Simple, stat.Prometheus("afl_timeouts")),
		NewInputs: set.New(statNewInputs, "Inputs added to feedback queues",
			stat.Console, stat.Graph("corpus"), stat.Prometheus("afl_new_inputs")),
		Seeds: set.New(statSeeds, "Seed inputs loaded from the corpus directory",
			stat.Simple, stat.Graph("corpus")),
	}
}
