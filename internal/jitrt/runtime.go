// Copyright 2026 go-embedbag Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build amd64 && (linux || darwin)

// Package jitrt owns the executable memory that generated kernels live in.
//
// Code pages are mapped read-write, filled, then flipped to read-execute, so
// no page is ever writable and executable at the same time. Installed code is
// immutable and lives until process teardown; there is no uninstall.
package jitrt

import (
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Runtime allocates and installs executable code spans. The zero value is
// ready to use. Install is serialized by a mutex: the mapping bookkeeping is
// not reentrant, and emission is expected to happen outside the lock.
type Runtime struct {
	mu    sync.Mutex
	spans [][]byte
}

// Global is the process-wide runtime all kernel generators install into.
var Global Runtime

// Install copies code into a fresh executable mapping and returns its entry
// address. The mapping is never unmapped.
func (rt *Runtime) Install(code []byte) (uintptr, error) {
	if len(code) == 0 {
		return 0, errors.New("jitrt: empty code buffer")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	page := os.Getpagesize()
	size := (len(code) + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, errors.Wrap(err, "jitrt: mmap code span")
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return 0, errors.Wrap(err, "jitrt: mprotect rx")
	}
	rt.spans = append(rt.spans, mem)
	return uintptr(unsafe.Pointer(&mem[0])), nil
}

// CodeSize returns the total bytes of installed code, for diagnostics.
func (rt *Runtime) CodeSize() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	n := 0
	for _, s := range rt.spans {
		n += len(s)
	}
	return n
}
