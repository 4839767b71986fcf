// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSig(t *testing.T) {
	sig := Hash([]byte("foo"), []byte("bar"))
	assert.Equal(t, String([]byte("foobar")), sig.String())
	assert.Equal(t, "8843d7f92416211de9ebb963ff4ce28125932878", sig.String())
	assert.NotEqual(t, String([]byte("foo")), sig.String())
}

func TestFast(t *testing.T) {
	assert.Equal(t, Fast([]byte("input")), Fast([]byte("input")))
	assert.NotEqual(t, Fast([]byte("input")), Fast([]byte("input2")))
	assert.Equal(t, uint64(0xef46db3751d8e999), Fast(nil))
}
