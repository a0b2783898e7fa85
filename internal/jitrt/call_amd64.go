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

package jitrt

// Call invokes an installed kernel. Arguments follow the generated-code
// calling convention: a0..a5 in rdi, rsi, rdx, rcx, r8, r9 and a6..a8 in
// r10, r11, r12. Kernels that take fewer arguments ignore the rest. The
// kernel returns its status in al.
//
//go:noescape
func Call(fn, a0, a1, a2, a3, a4, a5, a6, a7, a8 uintptr) bool
