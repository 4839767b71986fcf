// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/queue"
	"github.com/rish9101/LibAFL/pkg/shmem"
	"github.com/rish9101/LibAFL/pkg/testutil"
)

func newMaxMap(t *testing.T, size int) (*MaxMap, *observer.MapChannel) {
	region, err := shmem.New(shmem.Memfd, size)
	require.NoError(t, err)
	trace := observer.NewMapChannel(region)
	t.Cleanup(func() { trace.Close() })
	return NewMaxMap(queue.NewFeedbackQueue("coverage", ""), trace), trace
}

func TestScoreTiers(t *testing.T) {
	fb, trace := newMaxMap(t, 16)
	virgin := fb.Virgin()
	clear(virgin)
	virgin[3] = 0xff
	virgin[12] = 0x0f

	cur := trace.Map()
	cur[3] = 0xff
	assert.Equal(t, NewEdge, hasNewBits(cur, virgin))
	assert.Equal(t, byte(0), virgin[3])

	cur[12] = 0x01
	assert.Equal(t, SuperInteresting, hasNewBits(cur, virgin))
	assert.Equal(t, byte(0x0e), virgin[12])

	assert.Equal(t, 0.0, hasNewBits(cur, virgin))
}

func TestFirstWordDecidesTier(t *testing.T) {
	cur := make([]byte, 16)
	virgin := make([]byte, 16)
	virgin[1] = 0xf0 // seen bucket in the first word
	virgin[9] = 0xff // never hit byte in the second word
	cur[1] = 0x10
	cur[9] = 0x01
	assert.Equal(t, SuperInteresting, hasNewBits(cur, virgin))
	assert.Equal(t, byte(0xe0), virgin[1])
	assert.Equal(t, byte(0xfe), virgin[9], "later words are still cleared")
}

func TestFullyVirginWord(t *testing.T) {
	cur := make([]byte, 8)
	virgin := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	cur[7] = 0x80
	assert.Equal(t, NewEdge, hasNewBits(cur, virgin))
	assert.Equal(t, byte(0x7f), virgin[7])
}

func TestUnalignedTail(t *testing.T) {
	cur := make([]byte, 12)
	virgin := make([]byte, 12)
	virgin[10] = 0xff
	cur[10] = 2
	assert.Equal(t, NewEdge, hasNewBits(cur, virgin))
	assert.Equal(t, byte(0xfd), virgin[10])
	cur[10] = 1
	assert.Equal(t, SuperInteresting, hasNewBits(cur, virgin))
	assert.Equal(t, 0.0, hasNewBits(cur, virgin))
}

func TestVirginMonotonic(t *testing.T) {
	r := rand.New(testutil.RandSource(t))
	const size = 64
	cur := make([]byte, size)
	virgin := make([]byte, size)
	for i := range virgin {
		virgin[i] = 0xff
	}
	for i := 0; i < testutil.IterCount(); i++ {
		clear(cur)
		for n := r.Intn(4); n > 0; n-- {
			cur[r.Intn(size)] = 1 << r.Intn(8)
		}
		before := append([]byte(nil), virgin...)
		score := hasNewBits(cur, virgin)
		changed := false
		for j := range virgin {
			if virgin[j]&^before[j] != 0 {
				t.Fatalf("iter %v: virgin bit restored at byte %v: 0x%x -> 0x%x", i, j, before[j], virgin[j])
			}
			changed = changed || virgin[j] != before[j]
		}
		assert.Equal(t, changed, score != 0, "iter %v", i)
	}
}

func TestMaxMapQueuesPrivately(t *testing.T) {
	fb, trace := newMaxMap(t, 64)
	in := input.New([]byte("abc"))
	trace.Map()[5] = 3
	score, err := fb.IsInteresting(in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "interesting inputs are only queued privately")
	require.Equal(t, 1, fb.Queue().Len())
	e := fb.Queue().Get(0)
	if diff := cmp.Diff(queue.Info{
		Hash:           in.Hash(),
		BytesSet:       1,
		BitsSet:        2,
		HasNewCoverage: true,
	}, e.Info); diff != "" {
		t.Fatal(diff)
	}
	in.Bytes()[0] = 'x'
	assert.Equal(t, "abc", string(e.Input().Bytes()), "queued input must be a copy")

	score, err = fb.IsInteresting(in)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 1, fb.Queue().Len())

	trace.Map()[5] = 4
	_, err = fb.IsInteresting(in)
	require.NoError(t, err)
	assert.Equal(t, 2, fb.Queue().Len())
	assert.False(t, fb.Queue().Get(1).Info.HasNewCoverage)
	assert.Equal(t, fb, fb.Queue().Feedback)
}

func TestMaxMapExecTime(t *testing.T) {
	fb, trace := newMaxMap(t, 8)
	timing := observer.NewTimeoutChannel(100)
	fb.SetTiming(timing)
	timing.SetLastRunTime(7)
	trace.Map()[0] = 1
	_, err := fb.IsInteresting(input.New(nil))
	require.NoError(t, err)
	assert.Equal(t, uint64(7000), fb.Queue().Get(0).Info.ExecUs)
}

func TestTimeoutBoundary(t *testing.T) {
	timing := observer.NewTimeoutChannel(100)
	fb := NewTimeout(queue.NewFeedbackQueue("timeout", ""), timing)
	for _, test := range []struct {
		last   uint32
		queued bool
	}{
		{99, false},
		{100, true},
		{101, false},
		{1, false},
	} {
		before := fb.Queue().Len()
		timing.SetLastRunTime(test.last)
		score, err := fb.IsInteresting(input.New([]byte("slow")))
		require.NoError(t, err)
		assert.Equal(t, 0.0, score)
		assert.Equal(t, test.queued, fb.Queue().Len() == before+1, "last=%v", test.last)
	}
	assert.Equal(t, uint64(100000), fb.Queue().Get(0).Info.ExecUs)
}

func TestCounts(t *testing.T) {
	mem := []byte{0, 1, 3, 0, 0xff, 0, 0, 0, 0x80, 0x01}
	assert.Equal(t, uint32(5), countBytes(mem))
	assert.Equal(t, uint32(13), countBits(mem))
}
