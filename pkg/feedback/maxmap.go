// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"encoding/binary"
	"math/bits"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/queue"
)

// MaxMap keeps inputs that hit a new edge or a new hit count bucket.
type MaxMap struct {
	queue  *queue.FeedbackQueue
	trace  *observer.MapChannel
	timing *observer.TimeoutChannel
	// Set bits are hit count buckets never observed so far.
	virgin []byte
}

func NewMaxMap(q *queue.FeedbackQueue, trace *observer.MapChannel) *MaxMap {
	fb := &MaxMap{
		queue:  q,
		trace:  trace,
		virgin: make([]byte, trace.Size()),
	}
	for i := range fb.virgin {
		fb.virgin[i] = 0xff
	}
	q.Feedback = fb
	return fb
}

// SetTiming makes new entries record the execution time of the run that found them.
func (fb *MaxMap) SetTiming(timing *observer.TimeoutChannel) {
	fb.timing = timing
}

func (fb *MaxMap) Queue() *queue.FeedbackQueue { return fb.queue }
func (fb *MaxMap) Virgin() []byte              { return fb.virgin }

func (fb *MaxMap) IsInteresting(in *input.Raw) (float64, error) {
	cur := fb.trace.Map()
	score := hasNewBits(cur, fb.virgin)
	if score != NewEdge && score != SuperInteresting {
		return 0, nil
	}
	info := queue.Info{
		BytesSet:       countBytes(cur),
		BitsSet:        countBits(cur),
		HasNewCoverage: score == NewEdge,
	}
	if fb.timing != nil {
		info.ExecUs = uint64(fb.timing.LastRunTime()) * 1000
	}
	if _, err := enqueue(fb.queue, in, info); err != nil {
		return 0, err
	}
	return 0, nil
}

// hasNewBits clears every bit of virgin that is set in cur and reports
// NewEdge if the first word with new bits touched a never hit byte,
// SuperInteresting if it only had new hit counts and 0 if nothing was new.
// Later words don't change the score but are still cleared.
func hasNewBits(cur, virgin []byte) float64 {
	ret := 0.0
	i := 0
	for ; i+8 <= len(cur); i += 8 {
		c := binary.LittleEndian.Uint64(cur[i:])
		if c == 0 {
			continue
		}
		v := binary.LittleEndian.Uint64(virgin[i:])
		if c&v == 0 {
			continue
		}
		if ret == 0 {
			ret = wordTier(cur[i:i+8], virgin[i:i+8], v == ^uint64(0))
		}
		binary.LittleEndian.PutUint64(virgin[i:], v&^c)
	}
	// Maps are at least one word, but may be not a multiple of it.
	if i < len(cur) {
		tail, vtail := cur[i:], virgin[i:]
		allVirgin, overlap := true, false
		for j := range tail {
			allVirgin = allVirgin && vtail[j] == 0xff
			overlap = overlap || tail[j]&vtail[j] != 0
		}
		if overlap {
			if ret == 0 {
				ret = wordTier(tail, vtail, allVirgin)
			}
			for j := range tail {
				vtail[j] &^= tail[j]
			}
		}
	}
	return ret
}

func wordTier(cur, virgin []byte, allVirgin bool) float64 {
	if allVirgin {
		return NewEdge
	}
	for j := range cur {
		if cur[j] != 0 && virgin[j] == 0xff {
			return NewEdge
		}
	}
	return SuperInteresting
}

func countBytes(mem []byte) uint32 {
	n := uint32(0)
	for _, b := range mem {
		if b != 0 {
			n++
		}
	}
	return n
}

func countBits(mem []byte) uint32 {
	n := 0
	i := 0
	for ; i+8 <= len(mem); i += 8 {
		n += bits.OnesCount64(binary.LittleEndian.Uint64(mem[i:]))
	}
	for ; i < len(mem); i++ {
		n += bits.OnesCount8(mem[i])
	}
	return uint32(n)
}
