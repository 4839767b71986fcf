// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestLongPipe(t *testing.T) {
	r, w, err := LongPipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	size, err := unix.FcntlInt(w.Fd(), unix.F_GETPIPE_SZ, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, size, 64<<10)
	_, err = w.Write([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	var word [4]byte
	_, err = io.ReadFull(r, word[:])
	require.NoError(t, err)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, word)
}
