// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"math/rand"

	"github.com/rish9101/LibAFL/pkg/input"
)

const (
	maxInc = 35

	blockSmall  = 32
	blockMedium = 128
	blockLarge  = 1500
	blockXL     = 32768
)

func flipBits(r *rand.Rand, in *input.Raw, n int) bool {
	data := in.Bytes()
	if len(data)*8 < n {
		return false
	}
	bit := r.Intn(len(data)*8 - n + 1)
	for i := bit; i < bit+n; i++ {
		data[i/8] ^= 128 >> uint(i%8)
	}
	return true
}

func flipBytes(r *rand.Rand, in *input.Raw, n int) bool {
	data := in.Bytes()
	if len(data) < n {
		return false
	}
	pos := r.Intn(len(data) - n + 1)
	for i := pos; i < pos+n; i++ {
		data[i] ^= 0xff
	}
	return true
}

func FlipBit(r *rand.Rand, in *input.Raw) bool    { return flipBits(r, in, 1) }
func Flip2Bits(r *rand.Rand, in *input.Raw) bool  { return flipBits(r, in, 2) }
func Flip4Bits(r *rand.Rand, in *input.Raw) bool  { return flipBits(r, in, 4) }
func FlipByte(r *rand.Rand, in *input.Raw) bool   { return flipBytes(r, in, 1) }
func Flip2Bytes(r *rand.Rand, in *input.Raw) bool { return flipBytes(r, in, 2) }
func Flip4Bytes(r *rand.Rand, in *input.Raw) bool { return flipBytes(r, in, 4) }

// RandomByteAddSub adds or subtracts a small value to a random byte.
func RandomByteAddSub(r *rand.Rand, in *input.Raw) bool {
	data := in.Bytes()
	if len(data) == 0 {
		return false
	}
	pos := r.Intn(len(data))
	delta := byte(1 + r.Intn(maxInc))
	if r.Intn(2) == 0 {
		data[pos] += delta
	} else {
		data[pos] -= delta
	}
	return true
}

// RandomByte sets a random byte to a different random value.
func RandomByte(r *rand.Rand, in *input.Raw) bool {
	data := in.Bytes()
	if len(data) == 0 {
		return false
	}
	data[r.Intn(len(data))] ^= byte(1 + r.Intn(255))
	return true
}

// DeleteBytes removes a random block, at least one byte is kept.
func DeleteBytes(r *rand.Rand, in *input.Raw) bool {
	size := in.Len()
	if size < 2 {
		return false
	}
	n := chooseBlockLen(r, size-1)
	in.EraseBytes(r.Intn(size-n+1), n)
	return true
}

// CloneBytes duplicates a random block at a random position (3/4 of the time),
// or inserts a block of a constant byte.
func CloneBytes(r *rand.Rand, in *input.Raw) bool {
	size := in.Len()
	if size+blockXL > MaxInputSize {
		return false
	}
	to := r.Intn(size + 1)
	if size != 0 && r.Intn(4) != 0 {
		n := chooseBlockLen(r, size)
		from := r.Intn(size - n + 1)
		block := append([]byte(nil), in.Bytes()[from:from+n]...)
		in.Insert(to, block)
		return true
	}
	n := chooseBlockLen(r, blockXL)
	val := byte(r.Intn(256))
	if size != 0 && r.Intn(2) == 0 {
		val = in.Bytes()[r.Intn(size)]
	}
	in.InsertBytes(to, val, n)
	return true
}

// Splice replaces the tail of the input with the tail of another corpus input,
// splitting somewhere between the first and the last differing byte.
func Splice(src Source) Func {
	return func(r *rand.Rand, in *input.Raw) bool {
		other := src.Random(r)
		if other == nil || in.Len() < 2 || other.Len() < 2 {
			return false
		}
		first, last := locateDiffs(in.Bytes(), other.Bytes())
		if first < 0 || last < 2 || first == last {
			return false
		}
		split := first + r.Intn(last-first)
		data := append(in.Bytes()[:split:split], other.Bytes()[split:]...)
		if len(data) > MaxInputSize {
			return false
		}
		in.SetBytes(data)
		return true
	}
}

func locateDiffs(a, b []byte) (first, last int) {
	first, last = -1, -1
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	return
}

// chooseBlockLen picks a block length biased towards small blocks, capped by limit.
func chooseBlockLen(r *rand.Rand, limit int) int {
	var lo, hi int
	switch r.Intn(3) {
	case 0:
		lo, hi = 1, blockSmall
	case 1:
		lo, hi = blockSmall, blockMedium
	default:
		if r.Intn(10) != 0 {
			lo, hi = blockMedium, blockLarge
		} else {
			lo, hi = blockLarge, blockXL
		}
	}
	if lo >= limit {
		lo = 1
	}
	return lo + r.Intn(min(hi, limit)-lo+1)
}
