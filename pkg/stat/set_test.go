// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package stat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	set := NewSet(4)
	assert.Empty(t, set.Collect(All))
	assert.Empty(t, set.RenderGraphs())

	v0 := set.New("v0", "desc0")
	assert.Equal(t, 0, v0.Val())
	v0.Add(1)
	v0.Add(2)
	assert.Equal(t, 3, v0.Val())

	ext := 10
	set.New("v1", "desc1", Console, func() int { return ext })
	ui := set.Collect(All)
	require.Len(t, ui, 2)
	assert.Equal(t, Metric{Name: "v1", Desc: "desc1", Level: Console, Value: "10"}, ui[0])
	assert.Equal(t, Metric{Name: "v0", Desc: "desc0", Level: All, Value: "3"}, ui[1])
	assert.Len(t, set.Collect(Console), 1)

	assert.Panics(t, func() { set.New("bad", "bad", 42) })
}

func TestSetRateFormat(t *testing.T) {
	set := NewSet(4)
	v := set.New("rate", "rate", Rate{})
	v.Add(100)
	// No ticks yet, the period is one second.
	assert.Equal(t, "100 (100/sec)", set.Collect(All)[0].Value)
	set.Tick()
	set.Tick()
	assert.Equal(t, "100 (50/sec)", set.Collect(All)[0].Value)
}

func TestSetGraphs(t *testing.T) {
	set := NewSet(4)
	v0 := set.New("a", "a", Graph("queues"))
	v1 := set.New("b", "b", Graph("queues"), Simple)
	rate := set.New("r", "r", Rate{})
	for i := 0; i < 6; i++ {
		v0.Add(1)
		v1.Add(2)
		rate.Add(3)
		set.Tick()
	}
	graphs := set.RenderGraphs()
	require.Len(t, graphs, 2)
	g := graphs[0]
	assert.Equal(t, "queues", g.Title)
	assert.Equal(t, Simple, g.Level)
	assert.Equal(t, []string{"a: a", "b: b"}, g.Lines)
	for _, p := range graphs[1].Points {
		assert.Equal(t, []float64{3}, p.Y)
	}
	// History of 4 got compressed once: 2 points at scale 2, then one more.
	require.Len(t, g.Points, 3)
	assert.Equal(t, []float64{2, 4}, g.Points[0].Y)
	assert.Equal(t, 4, g.Points[2].X)
}

func TestSetDistribution(t *testing.T) {
	set := NewSet(4)
	v := set.New("exec time", "exec time", Distribution{})
	for i := 1; i <= 3; i++ {
		v.Add(i * 10)
	}
	assert.Equal(t, 20, v.Val())
	assert.Panics(t, func() { set.New("ext", "ext", func() int { return 0 }).Add(1) })
}

func TestSetPrometheus(t *testing.T) {
	set := NewSet(4)
	v := set.New("execs", "execs", Prometheus("afl_execs"))
	v.Add(7)
	mfs, err := set.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	assert.Equal(t, "afl_execs", mfs[0].GetName())
	assert.Equal(t, 7.0, mfs[0].GetMetric()[0].GetGauge().GetValue())
}
