// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package ipc

import (
	"syscall"
)

type waitStatus = syscall.WaitStatus

const sigKill = syscall.SIGKILL
