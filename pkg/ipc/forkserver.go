// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rish9101/LibAFL/pkg/input"
	"github.com/rish9101/LibAFL/pkg/log"
	"github.com/rish9101/LibAFL/pkg/observer"
	"github.com/rish9101/LibAFL/pkg/osutil"
	"github.com/rish9101/LibAFL/pkg/shmem"
)

// Forkserver talks to the AFL forkserver shim compiled into the target.
// The shim is started once and forks a fresh worker for every Run.
type Forkserver struct {
	config    *Config
	timeoutMs uint32
	args      []string
	useStdin  bool

	trace     *observer.MapChannel
	observers []observer.Channel

	cmd     *exec.Cmd
	exited  chan struct{}
	ctlPipe *os.File // parent -> shim
	stPipe  *os.File // shim -> parent
	outFile *os.File // staging file in stdin mode

	current         *input.Raw
	childPid        int
	lastRunTimedOut bool
	// The status of a killed worker did not arrive in time and is still in the pipe.
	staleStatus bool
	lastClass       ExitClass
	execs           atomic.Uint64
}

// NewForkserver creates an executor that exposes trace to the target.
// Start must be called before Run.
func NewForkserver(cfg *Config, trace *observer.MapChannel) *Forkserver {
	args, useStdin := cfg.targetArgs()
	return &Forkserver{
		config:    cfg,
		timeoutMs: cfg.timeoutMs(),
		args:      args,
		useStdin:  useStdin,
		trace:     trace,
		observers: []observer.Channel{trace},
	}
}

func (fsrv *Forkserver) AddObserver(ch observer.Channel) { fsrv.observers = append(fsrv.observers, ch) }
func (fsrv *Forkserver) Observers() []observer.Channel   { return fsrv.observers }
func (fsrv *Forkserver) CurrentInput() *input.Raw        { return fsrv.current }
func (fsrv *Forkserver) Execs() uint64                   { return fsrv.execs.Load() }
func (fsrv *Forkserver) LastClass() ExitClass            { return fsrv.lastClass }

func (fsrv *Forkserver) Timeout() time.Duration {
	return time.Duration(fsrv.timeoutMs) * time.Millisecond
}

// SetTimeout changes the per-run timeout, e.g. a short one for seed calibration.
// Timeout channels among the observers follow the new value.
func (fsrv *Forkserver) SetTimeout(timeout time.Duration) {
	fsrv.timeoutMs = (&Config{Timeout: timeout}).timeoutMs()
	setTimeout(fsrv.observers, fsrv.timeoutMs)
}

// Start spawns the target and waits for the forkserver hello.
// Any failure here is fatal: the target can't be executed or lacks the shim.
func (fsrv *Forkserver) Start() error {
	if fsrv.cmd != nil {
		return fmt.Errorf("forkserver is already running")
	}
	ctlR, ctlW, err := osutil.LongPipe()
	if err != nil {
		return NewFatalError("create control pipe", err)
	}
	stR, stW, err := osutil.LongPipe()
	if err != nil {
		ctlR.Close()
		ctlW.Close()
		return NewFatalError("create status pipe", err)
	}
	// The child ends are only needed until the target is started.
	defer ctlR.Close()
	defer stW.Close()
	fsrv.ctlPipe, fsrv.stPipe = ctlW, stR

	region := fsrv.trace.Region()
	cmd := osutil.Command(fsrv.config.Target, fsrv.args...)
	cmd.Env = append(os.Environ(), region.Env()...)
	cmd.Env = append(cmd.Env, fsrv.config.Env...)
	// ExtraFiles[i] becomes fd 3+i in the child.
	extra := make([]*os.File, forkSrvFD+2-3)
	extra[forkSrvFD-3] = ctlR
	extra[forkSrvFD+1-3] = stW
	if f := region.File(); f != nil {
		extra = append(extra, make([]*os.File, shmem.ChildFD+1-3-len(extra))...)
		extra[shmem.ChildFD-3] = f
	}
	cmd.ExtraFiles = extra
	if fsrv.useStdin {
		f, err := os.OpenFile(fsrv.config.OutFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, osutil.DefaultFilePerm)
		if err != nil {
			fsrv.closePipes()
			return NewFatalError("create staging file", err)
		}
		fsrv.outFile = f
		cmd.Stdin = f
	}
	if log.V(2) {
		cmd.Stdout = log.VerboseWriter(2)
		cmd.Stderr = log.VerboseWriter(2)
	}
	if err := cmd.Start(); err != nil {
		fsrv.closePipes()
		return NewFatalError("fork", fmt.Errorf("failed to start %v: %w", fsrv.config.Target, err))
	}
	fsrv.cmd = cmd
	fsrv.exited = make(chan struct{})
	go func() {
		cmd.Wait()
		close(fsrv.exited)
	}()
	if err := fsrv.handshake(); err != nil {
		fsrv.Close()
		return err
	}
	log.Logf(0, "forkserver for %v is up (pid %v, timeout %vms)",
		fsrv.config.Target, cmd.Process.Pid, fsrv.timeoutMs)
	return nil
}

func (fsrv *Forkserver) handshake() error {
	wait := time.Duration(fsrv.timeoutMs) * ForkWaitMult * time.Millisecond
	if _, err := fsrv.readStatus(time.Now().Add(wait)); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = fmt.Errorf("no hello after %v, the target is not instrumented with the forkserver", wait)
		}
		select {
		case <-fsrv.exited:
			err = fmt.Errorf("target exited before the hello (%v): %w", fsrv.cmd.ProcessState, err)
		default:
		}
		return NewFatalError("forkserver handshake", err)
	}
	return nil
}

// Run executes one input in a fresh worker.
func (fsrv *Forkserver) Run(in *input.Raw) (ExitClass, error) {
	if fsrv.cmd == nil {
		return Normal, fmt.Errorf("forkserver is not started")
	}
	fsrv.current = in
	if err := fsrv.drainStaleStatus(); err != nil {
		return Normal, err
	}
	if err := fsrv.placeInput(in); err != nil {
		return Normal, NewFatalError("write input", err)
	}
	for _, obs := range fsrv.observers {
		obs.Reset()
	}
	// The map must be zero before the worker starts writing to it.
	shmem.Barrier()

	var word [4]byte
	if fsrv.lastRunTimedOut {
		binary.LittleEndian.PutUint32(word[:], 1)
	}
	if _, err := fsrv.ctlPipe.Write(word[:]); err != nil {
		return Normal, NewFatalError("write control pipe", err)
	}
	fsrv.lastRunTimedOut = false

	// The worker pid is expected promptly, the shim only has to fork.
	wait := time.Duration(fsrv.timeoutMs) * ForkWaitMult * time.Millisecond
	pid, err := fsrv.readStatus(time.Now().Add(wait))
	if err != nil {
		return Normal, NewFatalError("read worker pid", err)
	}
	if int32(pid) <= 0 {
		return Normal, fatalf("read worker pid", "forkserver is misbehaving: pid %v", int32(pid))
	}
	fsrv.childPid = int(int32(pid))

	start := time.Now()
	status, err := fsrv.readStatus(start.Add(time.Duration(fsrv.timeoutMs) * time.Millisecond))
	execMs := clampExecMs(time.Since(start), fsrv.timeoutMs)
	reaped := true
	switch {
	case err == nil:
	case errors.Is(err, os.ErrDeadlineExceeded):
		execMs = fsrv.timeoutMs + 1
		if err := osutil.KillPid(fsrv.childPid); err != nil {
			return Normal, NewFatalError("kill worker", err)
		}
		fsrv.childPid = -1
		fsrv.lastRunTimedOut = true
		// The shim reports the status of the killed worker, reap it.
		status, err = fsrv.readStatus(time.Now().Add(time.Duration(fsrv.timeoutMs) * time.Millisecond))
		if err != nil {
			log.Logf(1, "no status for the timed out worker yet: %v", err)
			reaped = false
			fsrv.staleStatus = true
		}
	default:
		return Normal, NewFatalError("read worker status", err)
	}
	// The worker is gone, the map is stable from here on.
	shmem.Barrier()

	setRunTime(fsrv.observers, execMs)
	fsrv.execs.Add(1)
	if !fsrv.useStdin {
		os.Remove(fsrv.config.OutFile)
	}
	fsrv.lastClass = Timeout
	if reaped {
		fsrv.lastClass = classify(status, fsrv.lastRunTimedOut)
	}
	log.Logf(3, "run %v: %v in %vms", fsrv.execs.Load(), fsrv.lastClass, execMs)
	return fsrv.lastClass, nil
}

// drainStaleStatus consumes the status of a worker killed by the previous Run.
// Otherwise it would be read as the pid of the next worker.
func (fsrv *Forkserver) drainStaleStatus() error {
	if !fsrv.staleStatus {
		return nil
	}
	wait := time.Duration(fsrv.timeoutMs) * ForkWaitMult * time.Millisecond
	status, err := fsrv.readStatus(time.Now().Add(wait))
	if err != nil {
		return NewFatalError("reap timed out worker", err)
	}
	fsrv.staleStatus = false
	log.Logf(2, "drained late status 0x%x of the timed out worker", status)
	return nil
}

func (fsrv *Forkserver) placeInput(in *input.Raw) error {
	if !fsrv.useStdin {
		return osutil.WriteFile(fsrv.config.OutFile, in.Bytes())
	}
	// The worker inherits the file offset, rewind after writing.
	f := fsrv.outFile
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(in.Bytes()); err != nil {
		return err
	}
	if err := f.Truncate(int64(in.Len())); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// readStatus reads one word from the status pipe. Deadline expiry is
// reported as os.ErrDeadlineExceeded, EOF or a partial word as a protocol error.
func (fsrv *Forkserver) readStatus(deadline time.Time) (uint32, error) {
	if err := fsrv.stPipe.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	var word [4]byte
	n, err := io.ReadFull(fsrv.stPipe, word[:])
	switch {
	case err == nil:
		return binary.LittleEndian.Uint32(word[:]), nil
	case n == 0 && errors.Is(err, os.ErrDeadlineExceeded):
		return 0, err
	case n == 0 && errors.Is(err, io.EOF):
		return 0, fmt.Errorf("status pipe closed by forkserver")
	default:
		return 0, fmt.Errorf("short read %v/4 from status pipe: %w", n, err)
	}
}

// Close kills the forkserver with its workers and releases the observers.
func (fsrv *Forkserver) Close() error {
	if fsrv.cmd != nil {
		osutil.KillGroup(fsrv.cmd)
		<-fsrv.exited
		fsrv.cmd = nil
	}
	fsrv.closePipes()
	if fsrv.outFile != nil {
		fsrv.outFile.Close()
		fsrv.outFile = nil
	}
	if err := os.Remove(fsrv.config.OutFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Logf(1, "failed to remove %v: %v", fsrv.config.OutFile, err)
	}
	var err error
	for _, obs := range fsrv.observers {
		if c, ok := obs.(io.Closer); ok {
			if err1 := c.Close(); err1 != nil && err == nil {
				err = err1
			}
		}
	}
	fsrv.observers = nil
	return err
}

func (fsrv *Forkserver) closePipes() {
	if fsrv.ctlPipe != nil {
		fsrv.ctlPipe.Close()
		fsrv.ctlPipe = nil
	}
	if fsrv.stPipe != nil {
		fsrv.stPipe.Close()
		fsrv.stPipe = nil
	}
}
