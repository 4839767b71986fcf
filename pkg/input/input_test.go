// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package input

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone(t *testing.T) {
	in := New([]byte("hello"))
	cl := in.Clone()
	in.Bytes()[0] = 'j'
	assert.Equal(t, "hello", string(cl.Bytes()))
	assert.Equal(t, "jello", string(in.Bytes()))
	cl.SetBytes(in.Bytes())
	assert.Equal(t, "jello", string(cl.Bytes()))
	cl.Clear()
	assert.Zero(t, cl.Len())
	assert.Equal(t, "jello", string(in.Bytes()))
}

func TestInsertErase(t *testing.T) {
	tests := []struct {
		data   string
		insPos int
		insN   int
		want   string
	}{
		{"abcd", 0, 2, "xxabcd"},
		{"abcd", 2, 1, "abxcd"},
		{"abcd", 4, 3, "abcdxxx"},
		{"", 0, 1, "x"},
		{"abcd", 1, 0, "abcd"},
	}
	for _, test := range tests {
		in := New([]byte(test.data))
		in.InsertBytes(test.insPos, 'x', test.insN)
		assert.Equal(t, test.want, string(in.Bytes()))
		in.EraseBytes(test.insPos, test.insN)
		assert.Equal(t, test.data, string(in.Bytes()))
	}
	in := New([]byte("abcd"))
	in.Insert(2, []byte("XY"))
	assert.Equal(t, "abXYcd", string(in.Bytes()))
	assert.Panics(t, func() { in.EraseBytes(5, 2) })
	assert.Panics(t, func() { in.InsertBytes(7, 0, 1) })
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, New([]byte{0, 1, 2}).Save(path))
	in, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, in.Bytes())
	_, err = LoadFile(path + ".missing")
	assert.Error(t, err)
}
