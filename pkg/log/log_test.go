// Copyright 2016 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package log

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func init() {
	EnableLogCaching(4, 20)
}

func TestCaching(t *testing.T) {
	tests := []struct{ str, want string }{
		{"", ""},
		{"a", "a\n"},
		{"bb", "a\nbb\n"},
		{"ccc", "a\nbb\nccc\n"},
		{"dddd", "a\nbb\nccc\ndddd\n"},
		{"eeeee", "bb\nccc\ndddd\neeeee\n"},
		{"ffffff", "ccc\ndddd\neeeee\nffffff\n"},
		{"ggggggg", "eeeee\nffffff\nggggggg\n"},
		{"hhhhhhhh", "ggggggg\nhhhhhhhh\n"},
		{"jjjjjjjjjjjjjjjjjjjjjjjjj", "jjjjjjjjjjjjjjjjjjjjjjjjj\n"},
	}
	prependTime = false
	for _, test := range tests {
		Logf(1, test.str)
		out := CachedLogOutput()
		if out != test.want {
			t.Fatalf("wrote: %v\nwant: %v\ngot: %v", test.str, test.want, out)
		}
	}
}

func TestFormatReport(t *testing.T) {
	err := fmt.Errorf("write control pipe: %w", syscall.EPIPE)
	msg := formatReport("forkserver run", "forkserver.go:42", err)
	assert.Equal(t, "FATAL: forkserver run: write control pipe: broken pipe (at forkserver.go:42)"+
		" [OS: broken pipe, errno 32]", msg)

	msg = formatReport("load corpus", CallerLoc(0), errors.New("no seeds"))
	assert.Contains(t, msg, "(at log_test.go:")
	assert.NotContains(t, msg, "[OS:")
}

func TestCallerLoc(t *testing.T) {
	loc := func() string { return CallerLoc(1) }
	_, _, line, _ := runtime.Caller(0)
	assert.Equal(t, fmt.Sprintf("log_test.go:%v", line+1), loc())
}

func TestFatalReportExits(t *testing.T) {
	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()
	FatalReport("handshake", "", errors.New("timed out"))
	assert.Equal(t, 1, code)
}
