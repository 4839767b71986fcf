// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

// Package shmem provides byte regions shared between the fuzzer and the processes it runs.
//
// A region is identified by a short handle string. For SysV regions the handle is the
// shm id and is passed to instrumented targets in the __AFL_SHM_ID environment variable,
// the runtime of the target attaches to the same memory with shmat(2).
// A memfd region is inherited by the target as file descriptor ChildFD instead,
// its handle is that descriptor number and is passed in __AFL_SHM_FD.
package shmem

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/rish9101/LibAFL/pkg/osutil"
)

const (
	EnvShmID   = "__AFL_SHM_ID"
	EnvShmFD   = "__AFL_SHM_FD"
	EnvMapSize = "AFL_MAP_SIZE"

	// ChildFD is the descriptor a memfd region is mapped to in the target.
	// It follows the forkserver control and status pipes (198 and 199).
	ChildFD = 200

	DefaultMapSize = 1 << 16
	// MinMapSize is one machine word, coverage maps are scanned in 8-byte strides.
	MinMapSize   = 8
	MaxHandleLen = 20
)

type Kind int

const (
	SysV Kind = iota
	Memfd
)

func (k Kind) String() string {
	switch k {
	case SysV:
		return "sysv"
	case Memfd:
		return "memfd"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a config value to Kind, empty string means SysV.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "sysv":
		return SysV, nil
	case "memfd":
		return Memfd, nil
	}
	return 0, fmt.Errorf("unknown shared memory kind %q", s)
}

type Region struct {
	kind   Kind
	id     int
	file   *os.File
	mem    []byte
	handle string
}

// New allocates a zeroed region of size bytes.
func New(kind Kind, size int) (*Region, error) {
	if size < MinMapSize {
		return nil, fmt.Errorf("shared region size %v is less than %v bytes", size, MinMapSize)
	}
	r := &Region{kind: kind, id: -1}
	switch kind {
	case SysV:
		id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
		if err != nil {
			return nil, fmt.Errorf("shmget(%v): %w", size, err)
		}
		mem, err := unix.SysvShmAttach(id, 0, 0)
		if err != nil {
			unix.SysvShmCtl(id, unix.IPC_RMID, nil)
			return nil, fmt.Errorf("shmat(%v): %w", id, err)
		}
		r.id, r.mem, r.handle = id, mem, strconv.Itoa(id)
	case Memfd:
		f, mem, err := osutil.CreateMemMappedFile(size)
		if err != nil {
			return nil, err
		}
		r.file, r.mem, r.handle = f, mem, strconv.Itoa(ChildFD)
	default:
		return nil, fmt.Errorf("unknown shared memory kind %v", kind)
	}
	if len(r.handle) > MaxHandleLen {
		r.Close()
		return nil, fmt.Errorf("shared region handle %q is too long", r.handle)
	}
	return r, nil
}

func (r *Region) Kind() Kind     { return r.kind }
func (r *Region) Bytes() []byte  { return r.mem }
func (r *Region) Size() int      { return len(r.mem) }
func (r *Region) Handle() string { return r.handle }

// File is the memfd backing the region, nil for SysV regions.
// The child must inherit it as ChildFD for Env to be valid.
func (r *Region) File() *os.File { return r.file }

// Env returns the environment entries a child needs to attach to the region.
func (r *Region) Env() []string {
	env := EnvShmID
	if r.kind == Memfd {
		env = EnvShmFD
	}
	return []string{
		env + "=" + r.handle,
		EnvMapSize + "=" + strconv.Itoa(len(r.mem)),
	}
}

func (r *Region) Zero() {
	clear(r.mem)
}

// Close detaches and destroys the region. It is safe to call Close more than once.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	var err error
	switch r.kind {
	case SysV:
		if err1 := unix.SysvShmDetach(r.mem); err1 != nil {
			err = fmt.Errorf("shmdt: %w", err1)
		}
		if _, err1 := unix.SysvShmCtl(r.id, unix.IPC_RMID, nil); err1 != nil && err == nil {
			err = fmt.Errorf("shmctl(IPC_RMID): %w", err1)
		}
	case Memfd:
		err = osutil.CloseMemMappedFile(r.file, r.mem)
	}
	r.mem = nil
	return err
}

// Attach maps an existing SysV region by its handle. This is what the
// instrumentation runtime of a target does with the __AFL_SHM_ID value.
func Attach(handle string) ([]byte, error) {
	id, err := strconv.Atoi(handle)
	if err != nil {
		return nil, fmt.Errorf("bad shared region handle %q", handle)
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat(%v): %w", id, err)
	}
	return mem, nil
}

func Detach(mem []byte) error {
	return unix.SysvShmDetach(mem)
}

// AttachEnv maps the region described by env (see Region.Env) in the current
// process. It is the target side of both region kinds.
// Memory returned for a memfd region is released with unix.Munmap, not Detach.
func AttachEnv(getenv func(string) string) ([]byte, error) {
	fdStr := getenv(EnvShmFD)
	if fdStr == "" {
		return Attach(getenv(EnvShmID))
	}
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return nil, fmt.Errorf("bad %v %q", EnvShmFD, fdStr)
	}
	size, err := strconv.Atoi(getenv(EnvMapSize))
	if err != nil || size < MinMapSize {
		return nil, fmt.Errorf("bad %v %q", EnvMapSize, getenv(EnvMapSize))
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap(fd %v): %w", fd, err)
	}
	return mem, nil
}

var fence atomic.Uint64

// Barrier is a full memory fence. Writes made before it are visible to
// other agents before any access made after it.
func Barrier() {
	fence.Add(1)
}
