// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package input implements the raw byte input that is mutated and executed.
package input

import (
	"fmt"
	"os"

	"github.com/rish9101/LibAFL/pkg/hash"
	"github.com/rish9101/LibAFL/pkg/osutil"
)

// Raw is a mutable byte buffer. Mutators edit it in place, queues keep clones.
type Raw struct {
	data []byte
}

// New wraps data without copying it.
func New(data []byte) *Raw {
	return &Raw{data: data}
}

// LoadFile reads the whole file into a new input.
func LoadFile(path string) (*Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load input: %w", err)
	}
	return New(data), nil
}

func (in *Raw) Bytes() []byte { return in.data }
func (in *Raw) Len() int      { return len(in.data) }

// Clone returns a deep copy.
func (in *Raw) Clone() *Raw {
	return &Raw{data: append([]byte(nil), in.data...)}
}

func (in *Raw) SetBytes(data []byte) {
	in.data = append(in.data[:0], data...)
}

func (in *Raw) Clear() {
	in.data = in.data[:0]
}

// Hash returns the fast content hash of the input.
func (in *Raw) Hash() uint64 {
	return hash.Fast(in.data)
}

// InsertBytes inserts n copies of val before offset.
func (in *Raw) InsertBytes(offset int, val byte, n int) {
	in.checkOffset(offset, 0)
	in.grow(offset, n)
	for i := offset; i < offset+n; i++ {
		in.data[i] = val
	}
}

// Insert inserts a copy of block before offset.
func (in *Raw) Insert(offset int, block []byte) {
	in.checkOffset(offset, 0)
	n := len(block)
	in.grow(offset, n)
	copy(in.data[offset:offset+n], block)
}

func (in *Raw) grow(offset, n int) {
	oldLen := len(in.data)
	in.data = append(in.data, make([]byte, n)...)
	copy(in.data[offset+n:], in.data[offset:oldLen])
}

// EraseBytes removes n bytes starting at offset and shrinks the input.
func (in *Raw) EraseBytes(offset, n int) {
	in.checkOffset(offset, n)
	copy(in.data[offset:], in.data[offset+n:])
	in.data = in.data[:len(in.data)-n]
}

// Truncate shortens the input to size bytes if it is longer.
func (in *Raw) Truncate(size int) {
	if len(in.data) > size {
		in.data = in.data[:size]
	}
}

func (in *Raw) checkOffset(offset, n int) {
	if offset < 0 || n < 0 || offset+n > len(in.data) {
		panic(fmt.Sprintf("input: bad range [%v:%v] for length %v", offset, offset+n, len(in.data)))
	}
}

func (in *Raw) Save(path string) error {
	return osutil.WriteFileAtomic(path, in.data)
}
