// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rish9101/LibAFL/pkg/feedback"
	"github.com/rish9101/LibAFL/pkg/ipc"
	"github.com/rish9101/LibAFL/pkg/mutator"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/queue"
	"github.com/rish9101/LibAFL/pkg/shmem"
)

// NewWorker builds an engine for worker id around a forkserver running
// cfg.Target. cfg must be validated.
func NewWorker(cfg *Config, id int, rnd *rand.Rand) (*Engine, error) {
	kind, err := shmem.ParseKind(cfg.Shm)
	if err != nil {
		return nil, err
	}
	workDir, stagingDir := "", os.TempDir()
	if cfg.OutDir != "" {
		workDir = filepath.Join(cfg.OutDir, fmt.Sprintf("worker-%v", id))
		if err := osutil.MkdirAll(workDir); err != nil {
			return nil, err
		}
		stagingDir = workDir
	}
	region, err := shmem.New(kind, cfg.MapSize)
	if err != nil {
		return nil, ipc.NewFatalError("shmem", err)
	}
	trace := observer.NewMapChannel(region)
	timing := observer.NewTimeoutChannel(uint32(cfg.TimeoutMs))
	session := uuid.New()
	outFile := filepath.Join(stagingDir, ".cur_input-"+session.String())
	fsrv := ipc.NewForkserver(cfg.executorConfig(outFile), trace)
	fsrv.AddObserver(timing)
	if err := fsrv.Start(); err != nil {
		fsrv.Close()
		return nil, err
	}
	engine := NewEngine(fsrv, newGlobalQueue(cfg, workDir, id), rnd)
	engine.ID = session
	if err := buildEngine(engine, cfg, workDir, id, trace, timing); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

// NewInMemoryWorker is NewWorker for a Go harness that writes coverage into
// the map it is given. The map lives in a memfd region of cfg.MapSize bytes.
func NewInMemoryWorker(cfg *Config, id int, rnd *rand.Rand,
	makeHarness func(cov []byte) ipc.Harness) (*Engine, error) {
	region, err := shmem.New(shmem.Memfd, cfg.MapSize)
	if err != nil {
		return nil, err
	}
	trace := observer.NewMapChannel(region)
	timing := observer.NewTimeoutChannel(uint32(cfg.TimeoutMs))
	ex := ipc.NewInMemory(makeHarness(trace.Map()), cfg.Timeout())
	ex.AddObserver(trace)
	ex.AddObserver(timing)
	workDir := ""
	if cfg.OutDir != "" {
		workDir = filepath.Join(cfg.OutDir, fmt.Sprintf("worker-%v", id))
	}
	engine := NewEngine(ex, newGlobalQueue(cfg, workDir, id), rnd)
	if err := buildEngine(engine, cfg, workDir, id, trace, timing); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

func newGlobalQueue(cfg *Config, workDir string, id int) *queue.GlobalQueue {
	global := queue.NewGlobal(queueDir(cfg, workDir, "queue"))
	global.EngineID = id
	return global
}

func buildEngine(engine *Engine, cfg *Config, workDir string, id int,
	trace *observer.MapChannel, timing *observer.TimeoutChannel) error {
	coverage := feedback.NewMaxMap(queue.NewFeedbackQueue("coverage", queueDir(cfg, workDir, "coverage")), trace)
	coverage.SetTiming(timing)
	timeouts := feedback.NewTimeout(queue.NewFeedbackQueue("timeouts", queueDir(cfg, workDir, "timeouts")), timing)
	for _, fb := range []feedback.Feedback{coverage, timeouts} {
		fb.Queue().EngineID = id
		engine.AddFeedback(fb)
	}
	queues := []*queue.Queue{engine.global.Queue}
	for _, fq := range engine.global.FeedbackQueues() {
		queues = append(queues, fq.Queue)
	}
	for _, q := range queues {
		if err := q.Prepare(); err != nil {
			return err
		}
	}
	if workDir != "" {
		crashDir := filepath.Join(workDir, "crashes")
		if err := osutil.MkdirAll(crashDir); err != nil {
			return err
		}
		engine.SetCrashDir(crashDir)
	}
	engine.SetSeedTimeout(cfg.SeedTimeout())
	havoc := mutator.NewHavoc(engine.rnd, cfg.MaxStack, engine.global)
	fuzzOne := NewFuzzOne(engine)
	fuzzOne.AddStage(NewFuzzingStage(engine, havoc, cfg.Iterations))
	engine.SetFuzzOne(fuzzOne)
	return nil
}

func queueDir(cfg *Config, workDir, name string) string {
	if !cfg.SaveQueue || workDir == "" {
		return ""
	}
	return filepath.Join(workDir, name)
}
