// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"fmt"
	"sort"

	"github.com/VividCortex/gohistogram"
)

// Tick samples every value into the current history point.
// Counters keep the max over the point, rates the average delta per tick.
func (s *Set) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == s.size {
		s.compress()
	}
	s.ticks++
	s.partTicks++
	closing := s.partTicks == s.scale
	for _, v := range s.vals {
		sr := s.seriesOf(v)
		switch {
		case v.dist:
			if closing {
				sr.hists[s.pos] = v.takeHist()
			}
		case v.rate:
			val := v.Val()
			sr.points[s.pos] += float64(val-v.prev) / float64(s.scale)
			v.prev = val
		default:
			sr.points[s.pos] = max(sr.points[s.pos], float64(v.Val()))
		}
	}
	if closing {
		s.partTicks = 0
		s.pos++
	}
}

func (s *Set) seriesOf(v *Val) *series {
	c := s.charts[v.graph]
	sr := c.series[v.name]
	if sr == nil {
		sr = &series{val: v}
		if v.dist {
			sr.hists = make([]*gohistogram.NumericHistogram, s.size)
		} else {
			sr.points = make([]float64, s.size)
		}
		c.series[v.name] = sr
	}
	return sr
}

// compress merges pairs of adjacent points, freeing the second half of the history.
func (s *Set) compress() {
	half := s.size / 2
	for _, c := range s.charts {
		for _, sr := range c.series {
			for i := 0; i < half; i++ {
				if sr.hists != nil {
					h := sr.hists[2*i]
					if h == nil {
						h = sr.hists[2*i+1]
					}
					sr.hists[2*i], sr.hists[2*i+1] = nil, nil
					sr.hists[i] = h
					continue
				}
				a, b := sr.points[2*i], sr.points[2*i+1]
				sr.points[2*i], sr.points[2*i+1] = 0, 0
				if sr.val.rate {
					sr.points[i] = (a + b) / 2
				} else {
					sr.points[i] = max(a, b)
				}
			}
		}
	}
	s.pos = half
	s.scale *= 2
}

// UIGraph is one graph of the /graphs page. Points[i].Y has one entry per line.
type UIGraph struct {
	Title  string
	Level  Level
	Lines  []string
	Points []UIPoint
}

type UIPoint struct {
	X int // seconds since start
	Y []float64
}

// RenderGraphs returns the sampled history, most visible graphs first.
// Distributions are drawn as their 10th, 50th and 90th percentiles.
func (s *Set) RenderGraphs() []UIGraph {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.scale * int(tickPeriod.Seconds())
	var graphs []UIGraph
	for title, c := range s.charts {
		if len(c.series) == 0 {
			continue
		}
		var all []*series
		for _, sr := range c.series {
			all = append(all, sr)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].val.order < all[j].val.order })
		g := UIGraph{Title: title, Level: c.level, Points: make([]UIPoint, s.pos)}
		for i := range g.Points {
			g.Points[i].X = i * step
		}
		for _, sr := range all {
			if sr.hists == nil {
				g.Lines = append(g.Lines, sr.val.name+": "+sr.val.desc)
				for i := range g.Points {
					g.Points[i].Y = append(g.Points[i].Y, sr.points[i])
				}
				continue
			}
			for _, q := range []int{10, 50, 90} {
				g.Lines = append(g.Lines, fmt.Sprintf("%v%%", q))
				for i := range g.Points {
					y := 0.0
					if h := sr.hists[i]; h != nil {
						y = h.Quantile(float64(q) / 100)
					}
					g.Points[i].Y = append(g.Points[i].Y, y)
				}
			}
		}
		graphs = append(graphs, g)
	}
	sort.Slice(graphs, func(i, j int) bool {
		if graphs[i].Level != graphs[j].Level {
			return graphs[i].Level > graphs[j].Level
		}
		return graphs[i].Title < graphs[j].Title
	})
	return graphs
}
