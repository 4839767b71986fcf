// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package observer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rish9101/LibAFL/pkg/shmem"
	"github.com/rish9101/LibAFL/pkg/testutil"
)

func TestMapResetIdempotent(t *testing.T) {
	region, err := shmem.New(shmem.Memfd, 256)
	require.NoError(t, err)
	ch := NewMapChannel(region)
	defer ch.Close()
	r := rand.New(testutil.RandSource(t))
	for i := 0; i < testutil.IterCount(); i++ {
		r.Read(ch.Map())
		ch.Reset()
		ch.Reset()
		assert.Equal(t, make([]byte, 256), ch.Map())
	}
}

func TestTimeoutAverage(t *testing.T) {
	ch := NewTimeoutChannel(1000)
	runs := []struct {
		last uint32
		avg  uint32
	}{
		{10, 10}, // (0+10)/1
		{20, 15}, // (10+20)/2
		{30, 15}, // (15+30)/3
		{1, 4},   // (15+1)/4
	}
	for i, run := range runs {
		ch.Reset()
		assert.Equal(t, uint32(0), ch.LastRunTime())
		ch.SetLastRunTime(run.last)
		ch.PostExec(uint64(i + 1))
		assert.Equal(t, run.avg, ch.AvgExecTime(), "run %v", i)
	}
	ch.PostExec(0)
	assert.Equal(t, uint32(4), ch.AvgExecTime())
}
