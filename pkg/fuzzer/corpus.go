// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/ipc"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/queue"
)

// LoadDir runs every regular file in dir once and appends it to the global queue.
// Dot files and subdirectories are ignored, empty or unreadable files are skipped.
// Seeds are evaluated by the feedbacks as well, so their coverage is not new later.
// Seeds run with the seed timeout, the executor timeout is restored afterwards.
func (e *Engine) LoadDir(dir string) (int, error) {
	files, err := osutil.ListRegularFiles(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read corpus dir: %w", err)
	}
	if ts, ok := e.executor.(ipc.TimeoutSetter); ok && e.seedTimeout > 0 {
		prev := ts.Timeout()
		ts.SetTimeout(e.seedTimeout)
		defer ts.SetTimeout(prev)
	}
	loaded := 0
	for _, file := range files {
		in, err := input.LoadFile(file)
		if err != nil {
			log.Logf(0, "warning: skipping %v: %v", file, err)
			continue
		}
		if in.Len() == 0 {
			log.Logf(0, "warning: skipping empty input %v", file)
			continue
		}
		if _, err := e.Execute(in); err != nil {
			return loaded, err
		}
		if _, err := e.Evaluate(in); err != nil {
			return loaded, err
		}
		if err := e.global.Insert(queue.NewEntry(in, nil)); err != nil {
			return loaded, err
		}
		loaded++
	}
	if e.stats != nil {
		e.stats.Seeds.Add(loaded)
	}
	log.Logf(0, "engine %v: loaded %v seeds from %v", e.ID, loaded, dir)
	return loaded, nil
}
