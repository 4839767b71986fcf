// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"time"

	"github.com/rish9101/LibAFL/pkg/ipc"
	"github.com/rish9101/LibAFL/pkg/mutator"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/shmem"
)

const (
	DefaultTimeoutMs     = 1000
	DefaultSeedTimeoutMs = 20
	DefaultIterations    = 16
)

// Config describes a fuzzing session.
type Config struct {
	// Instrumented target binary and its arguments, @@ is replaced with the input file.
	Target string   `json:"target" yaml:"target"`
	Args   []string `json:"args" yaml:"args"`
	// Directory with seed inputs.
	InDir string `json:"in_dir" yaml:"in_dir"`
	// Directory for worker queues and crashes, optional.
	OutDir  string `json:"out_dir" yaml:"out_dir"`
	Workers int    `json:"workers" yaml:"workers"`
	// Per-run timeout.
	TimeoutMs int `json:"timeout_ms" yaml:"timeout_ms"`
	// Per-run timeout while the seeds are loaded, at most TimeoutMs.
	SeedTimeoutMs int `json:"seed_timeout_ms" yaml:"seed_timeout_ms"`
	MapSize       int `json:"map_size" yaml:"map_size"`
	// Mutated executions per scheduled queue entry.
	Iterations int `json:"iterations" yaml:"iterations"`
	// Max number of stacked mutations in one execution.
	MaxStack int `json:"max_stack" yaml:"max_stack"`
	// Number of scheduled entries per worker, 0 means until interrupted.
	Rounds   int   `json:"rounds" yaml:"rounds"`
	Seed     int64 `json:"seed" yaml:"seed"`
	UseStdin bool  `json:"use_stdin" yaml:"use_stdin"`
	// Shared memory kind: sysv (default) or memfd.
	Shm string `json:"shm" yaml:"shm"`
	// Listen address of the broker hub.
	Broker string `json:"broker" yaml:"broker"`
	// Address to serve /metrics on, optional.
	HTTP string `json:"http" yaml:"http"`
	// Write queue entries to OutDir.
	SaveQueue bool `json:"save_queue" yaml:"save_queue"`
}

// Validate fills in defaults and checks the values.
func (cfg *Config) Validate() error {
	if cfg.Target == "" {
		return fmt.Errorf("config param target is empty")
	}
	if err := osutil.IsExecutable(cfg.Target); err != nil {
		return fmt.Errorf("bad config param target: %w", err)
	}
	if cfg.InDir == "" {
		return fmt.Errorf("config param in_dir is empty")
	}
	if cfg.SaveQueue && cfg.OutDir == "" {
		return fmt.Errorf("save_queue requires out_dir")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.TimeoutMs == 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.SeedTimeoutMs == 0 {
		cfg.SeedTimeoutMs = min(DefaultSeedTimeoutMs, cfg.TimeoutMs)
	}
	if cfg.MapSize == 0 {
		cfg.MapSize = shmem.DefaultMapSize
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.MaxStack == 0 {
		cfg.MaxStack = mutator.DefaultMaxStack
	}
	if cfg.Broker == "" {
		cfg.Broker = "127.0.0.1:0"
	}
	switch {
	case cfg.Workers < 0:
		return fmt.Errorf("bad number of workers %v", cfg.Workers)
	case cfg.TimeoutMs < 0:
		return fmt.Errorf("bad timeout_ms %v", cfg.TimeoutMs)
	case cfg.SeedTimeoutMs < 0 || cfg.SeedTimeoutMs > cfg.TimeoutMs:
		return fmt.Errorf("bad seed_timeout_ms %v", cfg.SeedTimeoutMs)
	case cfg.MapSize < shmem.MinMapSize:
		return fmt.Errorf("map_size %v is less than %v", cfg.MapSize, shmem.MinMapSize)
	case cfg.Iterations < 0:
		return fmt.Errorf("bad iterations %v", cfg.Iterations)
	case cfg.MaxStack < 0:
		return fmt.Errorf("bad max_stack %v", cfg.MaxStack)
	case cfg.Rounds < 0:
		return fmt.Errorf("bad rounds %v", cfg.Rounds)
	}
	if _, err := shmem.ParseKind(cfg.Shm); err != nil {
		return err
	}
	return nil
}

func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func (cfg *Config) SeedTimeout() time.Duration {
	return time.Duration(cfg.SeedTimeoutMs) * time.Millisecond
}

func (cfg *Config) executorConfig(outFile string) *ipc.Config {
	return &ipc.Config{
		Target:   cfg.Target,
		Args:     cfg.Args,
		Timeout:  cfg.Timeout(),
		OutFile:  outFile,
		UseStdin: cfg.UseStdin,
	}
}
