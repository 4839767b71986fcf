// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package queue

import (
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rish9101/LibAFL/pkg/input"
)

func entry(data string) *Entry {
	return NewEntry(input.New([]byte(data)), nil)
}

func inputs(entries []*Entry) []string {
	var res []string
	for _, e := range entries {
		res = append(res, string(e.Input().Bytes()))
	}
	return res
}

func TestQueueLinks(t *testing.T) {
	q := New("")
	a, b, c := entry("a"), entry("b"), entry("c")
	for _, e := range []*Entry{a, b, c} {
		require.NoError(t, q.Insert(e))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, b, a.Next())
	assert.Equal(t, a, b.Prev())
	assert.Nil(t, c.Next())
	assert.Equal(t, q, b.Queue())

	assert.Error(t, New("").Insert(b), "entry can't be in two queues")

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b))
	assert.Equal(t, c, a.Next())
	assert.Equal(t, a, c.Prev())
	assert.Nil(t, b.Queue())
	assert.Equal(t, []string{"a", "c"}, inputs(q.Entries()))
}

func TestQueueRing(t *testing.T) {
	q := New("")
	assert.Nil(t, q.Next())
	for _, data := range []string{"a", "b", "c"} {
		require.NoError(t, q.Insert(entry(data)))
	}
	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, string(q.Next().Input().Bytes()))
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c", "a"}, got)
	assert.Equal(t, 3, q.Get(0).Fuzzed)
}

func TestQueuePending(t *testing.T) {
	q := New("")
	require.NoError(t, q.Insert(entry("a")))
	require.NoError(t, q.Insert(entry("b")))
	assert.Equal(t, 2, q.Pending())
	assert.Equal(t, "a", string(q.NextPending().Input().Bytes()))
	require.NoError(t, q.Insert(entry("c")))
	assert.Equal(t, "b", string(q.NextPending().Input().Bytes()))
	assert.Equal(t, "c", string(q.NextPending().Input().Bytes()))
	assert.Nil(t, q.NextPending())
	assert.Equal(t, 0, q.Pending())
}

func TestQueueSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "queue")
	q := New(dir)
	require.NoError(t, q.Prepare())
	var hooked []*Entry
	q.SetInsertHook(func(e *Entry) { hooked = append(hooked, e) })
	e := entry("data")
	require.NoError(t, q.Insert(e))
	assert.True(t, e.OnDisk)
	assert.Equal(t, []*Entry{e}, hooked)
	data, err := os.ReadFile(e.Filename)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	assert.Regexp(t, `id:000000,hash:[0-9a-f]{16}$`, e.Filename)
}

func TestGlobalSchedule(t *testing.T) {
	gq := NewGlobal("")
	cov := NewFeedbackQueue("coverage", "")
	hangs := NewFeedbackQueue("timeout", "")
	gq.AddFeedbackQueue(cov)
	gq.AddFeedbackQueue(hangs)
	r := rand.New(rand.NewSource(0))
	assert.Nil(t, gq.Next(r))
	assert.Equal(t, -1, gq.Schedule(r))

	require.NoError(t, gq.Insert(entry("seed")))
	require.NoError(t, cov.Insert(entry("cov1")))
	require.NoError(t, cov.Insert(entry("cov2")))
	require.NoError(t, hangs.Insert(entry("hang")))
	assert.Equal(t, 4, gq.TotalLen())

	// Fresh feedback entries are drained before the base queue is revisited.
	var got []string
	for i := 0; i < 5; i++ {
		got = append(got, string(gq.Next(r).Input().Bytes()))
	}
	assert.ElementsMatch(t, []string{"cov1", "cov2", "hang"}, got[:3])
	assert.Equal(t, []string{"seed", "seed"}, got[3:])
	assert.Less(t, slices.Index(got, "cov1"), slices.Index(got, "cov2"))
}

func TestGlobalDeterministic(t *testing.T) {
	run := func() []string {
		gq := NewGlobal("")
		var fqs []*FeedbackQueue
		for i := 0; i < 3; i++ {
			fq := NewFeedbackQueue("fq", "")
			gq.AddFeedbackQueue(fq)
			fqs = append(fqs, fq)
		}
		require.NoError(t, gq.Insert(entry("seed")))
		for i, fq := range fqs {
			for j := 0; j < 3; j++ {
				require.NoError(t, fq.Insert(entry(string(rune('a'+i))+string(rune('0'+j)))))
			}
		}
		r := rand.New(rand.NewSource(42))
		var got []string
		for i := 0; i < 12; i++ {
			got = append(got, string(gq.Next(r).Input().Bytes()))
		}
		return got
	}
	assert.Equal(t, run(), run())
}

func TestGlobalRandom(t *testing.T) {
	gq := NewGlobal("")
	fq := NewFeedbackQueue("coverage", "")
	gq.AddFeedbackQueue(fq)
	r := rand.New(rand.NewSource(1))
	assert.Nil(t, gq.Random(r))
	require.NoError(t, gq.Insert(entry("a")))
	require.NoError(t, fq.Insert(entry("b")))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[string(gq.Random(r).Bytes())] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}

func TestEntryDepth(t *testing.T) {
	root := entry("root")
	child := NewEntry(input.New([]byte("child")), root)
	grandchild := NewEntry(input.New([]byte("gc")), child)
	assert.Equal(t, 0, root.Depth())
	assert.Equal(t, 2, grandchild.Depth())
	assert.Equal(t, child, grandchild.Parent())
	assert.Equal(t, input.New([]byte("gc")).Hash(), grandchild.Info.Hash)
}
