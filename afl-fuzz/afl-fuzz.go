// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// afl-fuzz runs coverage-guided fuzzing of an instrumented target with several workers.
//
//	afl-fuzz -config afl.yaml
//
// Each worker owns a forkserver and its own queues, workers report to an in-process broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rish9101/LibAFL/pkg/broker"
	"github.com/rish9101/LibAFL/pkg/config"
	"github.com/rish9101/LibAFL/pkg/fuzzer"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/stat"
	"github.com/rish9101/LibAFL/pkg/tool"
	"golang.org/x/sync/errgroup"
)

var (
	flagConfig  = flag.String("config", "", "config file (JSON, or YAML with .yaml/.yml extension)")
	flagWorkers = flag.Int("workers", 0, "number of workers (overrides config)")
	flagRounds  = flag.Int("rounds", -1, "rounds per worker, 0 means until interrupted (overrides config)")
)

func main() {
	flag.Parse()
	log.EnableLogCaching(1000, 1<<20)
	cfg := new(fuzzer.Config)
	if err := config.LoadFile(*flagConfig, cfg); err != nil {
		tool.Fail(err)
	}
	if *flagWorkers > 0 {
		cfg.Workers = *flagWorkers
	}
	if *flagRounds >= 0 {
		cfg.Rounds = *flagRounds
	}
	if err := cfg.Validate(); err != nil {
		tool.Failf("bad config: %v", err)
	}
	if err := run(cfg); err != nil {
		tool.Fail(err)
	}
}

func run(cfg *fuzzer.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()

	set := stat.NewSet(256)
	stats := fuzzer.NewStats(set)
	hub := broker.NewHub()
	hub.AddHook(func(msg *broker.Message) bool {
		if msg.Tag == broker.TagNewQueueEntry {
			log.Logf(1, "worker %v: new %v entry %016x (%v bytes)", msg.Client, msg.Queue, msg.Hash, msg.Size)
		}
		return true
	})
	set.New("workers", "Workers connected to the broker", stat.Console,
		func() int { return hub.Totals().Clients })
	set.New("queue", "Queue entries reported by the workers", stat.Console, stat.Prometheus("afl_queue_entries"),
		func() int { return hub.Totals().QueueEntries })

	serv, err := broker.NewServer(cfg.Broker, hub)
	if err != nil {
		return err
	}
	log.Logf(0, "serving broker on tcp://%v", serv.Addr())

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Logf(0, "starting %v workers, seed %v", cfg.Workers, seed)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(serv.Serve)
	eg.Go(func() error {
		<-ctx.Done()
		return serv.Close()
	})
	eg.Go(func() error {
		set.Run(ctx)
		return nil
	})
	eg.Go(func() error {
		printStats(ctx, set)
		return nil
	})
	if cfg.HTTP != "" {
		eg.Go(func() error {
			return serveHTTP(ctx, cfg.HTTP, set, hub)
		})
	}
	workers, workerCtx := errgroup.WithContext(ctx)
	for id := 0; id < cfg.Workers; id++ {
		id := id
		workers.Go(func() error {
			return runWorker(workerCtx, cfg, id, seed+int64(id), serv.Addr().String(), stats)
		})
	}
	eg.Go(func() error {
		err := workers.Wait()
		cancel()
		return err
	})
	err = eg.Wait()
	t := hub.Totals()
	log.Logf(0, "done: %v execs, %v crashes, %v queue entries", t.Execs, t.Crashes, t.QueueEntries)
	return err
}

func runWorker(ctx context.Context, cfg *fuzzer.Config, id int, seed int64, addr string, stats *fuzzer.Stats) error {
	client, err := broker.Dial(addr, fmt.Sprintf("worker-%v", id))
	if err != nil {
		return err
	}
	defer client.Close()
	engine, err := fuzzer.NewWorker(cfg, id, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	defer engine.Close()
	engine.SetPublisher(client)
	engine.SetStats(stats)
	loaded, err := engine.LoadDir(cfg.InDir)
	if err != nil {
		return err
	}
	if loaded == 0 {
		return fmt.Errorf("no usable inputs in %v", cfg.InDir)
	}
	log.Logf(0, "worker %v (%v): fuzzing", id, engine.ID)
	return engine.Loop(ctx, cfg.Rounds)
}

func printStats(ctx context.Context, set *stat.Set) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var parts []string
		for _, v := range set.Collect(stat.Console) {
			parts = append(parts, fmt.Sprintf("%v: %v", v.Name, v.Value))
		}
		log.Logf(0, "%v", strings.Join(parts, ", "))
	}
}
