// Copyright 2020 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tool contains various helper utilitites useful for implementation of command line tools.
package tool

import (
	"errors"
	"fmt"
	"os"

	"github.com/rish9101/LibAFL/pkg/ipc"
	"github.com/rish9101/LibAFL/pkg/log"
)

func Failf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

// Fail terminates the tool. Fatal executor errors get the full report with the failing
// operation and the OS error text.
func Fail(err error) {
	var fatal *ipc.FatalError
	if errors.As(err, &fatal) {
		log.FatalReport(fatal.Op, fatal.Loc, fatal.Err)
	}
	Failf("%v", err)
}
