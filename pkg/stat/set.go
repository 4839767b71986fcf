// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package stat keeps fuzzing counters. The driver owns a Set and hands the
// values it creates to the engines:
//
//	execs := set.New("exec total", "Total test case executions", stat.Rate{})
//	execs.Add(1)
//	set.New("workers", "Connected workers", func() int { return len(hub.Clients()) })
//
// The set renders the values for the console line (Collect), Prometheus
// (Registry) and the sampled history behind /graphs (Tick, RenderGraphs).
package stat

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	tickPeriod       = time.Second
	histogramBuckets = 255
)

// Level says where a value is shown: everywhere (Console), on the HTTP summary
// (Simple) or only in the full listing (All).
type Level int

const (
	All Level = iota
	Simple
	Console
)

// Prometheus exports the value as a gauge with the given name.
type Prometheus string

// Rate shows the value as a rate per unit of time next to the total.
type Rate struct{}

// Distribution records individual samples, the value is their mean.
type Distribution struct{}

// Graph puts the value on a shared graph. By default every value has its own.
type Graph string

type Set struct {
	mu     sync.Mutex
	vals   map[string]*Val
	charts map[string]*chart
	reg    *prometheus.Registry
	order  atomic.Uint64

	ticks int
	// The history has size points, each point covers scale ticks.
	// When it fills up adjacent points are merged and scale doubles.
	size      int
	pos       int
	scale     int
	partTicks int
}

type chart struct {
	level  Level
	series map[string]*series
}

type series struct {
	val    *Val
	points []float64
	hists  []*gohistogram.NumericHistogram
}

// NewSet creates a set that keeps histSize points of history for graphs.
func NewSet(histSize int) *Set {
	return &Set{
		vals:   make(map[string]*Val),
		charts: make(map[string]*chart),
		reg:    prometheus.NewRegistry(),
		size:   histSize,
		scale:  1,
	}
}

// Registry holds the values created with the Prometheus option.
func (s *Set) Registry() *prometheus.Registry {
	return s.reg
}

// New registers a value. Options are Level, Prometheus, Rate, Distribution,
// Graph and func() int, the latter makes the value computed on demand.
// Unknown options panic.
func (s *Set) New(name, desc string, opts ...any) *Val {
	v := &Val{
		name:  name,
		desc:  desc,
		graph: name,
		order: s.order.Add(1),
	}
	for _, o := range opts {
		switch opt := o.(type) {
		case Level:
			v.level = opt
		case Graph:
			v.graph = string(opt)
		case Rate:
			v.rate = true
		case Distribution:
			v.dist = true
		case func() int:
			v.ext = opt
		case Prometheus:
			s.reg.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Name: string(opt), Help: desc},
				func() float64 { return float64(v.Val()) },
			))
		default:
			panic(fmt.Sprintf("unknown stat option %#v", o))
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vals[name] = v
	c := s.charts[v.graph]
	if c == nil {
		c = &chart{series: make(map[string]*series)}
		s.charts[v.graph] = c
	}
	c.level = max(c.level, v.level)
	return v
}

// Run samples the values every second until ctx is done.
func (s *Set) Run(ctx context.Context) {
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Metric is a rendered value.
type Metric struct {
	Name  string
	Desc  string
	Level Level
	Value string
}

// Collect renders the values with at least the given level,
// most visible first, then by name.
func (s *Set) Collect(level Level) []Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := max(time.Duration(s.ticks)*tickPeriod, tickPeriod)
	var res []Metric
	for _, v := range s.vals {
		if v.level < level {
			continue
		}
		val := v.Val()
		text := strconv.Itoa(val)
		if v.rate {
			text = formatRate(val, period)
		}
		res = append(res, Metric{Name: v.name, Desc: v.desc, Level: v.level, Value: text})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		return res[i].Name < res[j].Name
	})
	return res
}

func formatRate(v int, period time.Duration) string {
	secs := int(period.Seconds())
	if x := v / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/sec)", v, x)
	}
	if x := v * 60 / secs; x >= 10 {
		return fmt.Sprintf("%v (%v/min)", v, x)
	}
	return fmt.Sprintf("%v (%v/hour)", v, v*60*60/secs)
}

type Val struct {
	name  string
	desc  string
	graph string
	level Level
	order uint64
	rate  bool
	dist  bool
	ext   func() int
	count atomic.Uint64
	prev  int // value at the previous tick, for rates

	histMu sync.Mutex
	hist   *gohistogram.NumericHistogram
}

func (v *Val) Add(val int) {
	if v.ext != nil {
		panic(fmt.Sprintf("stat %v is computed and can't be added to", v.name))
	}
	if !v.dist {
		v.count.Add(uint64(val))
		return
	}
	v.histMu.Lock()
	defer v.histMu.Unlock()
	if v.hist == nil {
		v.hist = gohistogram.NewHistogram(histogramBuckets)
	}
	v.hist.Add(float64(val))
}

func (v *Val) Val() int {
	switch {
	case v.ext != nil:
		return v.ext()
	case v.dist:
		v.histMu.Lock()
		defer v.histMu.Unlock()
		if v.hist == nil {
			return 0
		}
		return int(v.hist.Mean())
	default:
		return int(v.count.Load())
	}
}

// takeHist returns the samples since the last call.
func (v *Val) takeHist() *gohistogram.NumericHistogram {
	v.histMu.Lock()
	defer v.histMu.Unlock()
	h := v.hist
	v.hist = nil
	return h
}
