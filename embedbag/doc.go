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

// Package embedbag provides JIT-compiled sparse-length-sum lookup over 2-
// and 4-bit row-quantized embedding tables.
//
// A lookup consumes a flat index stream partitioned into segments by a
// lengths array and produces one dense float32 vector per segment: the
// optionally weighted, optionally length-normalized sum of the dequantized
// rows the segment's indices select. Rows store packed low-bit lanes
// followed by an fp16 scale and bias.
//
// Generate and GenerateRowWiseSparse return kernels specialized to the
// lookup parameters. On amd64 the kernel is machine code emitted at runtime
// for AVX-512 or AVX2 and cached per parameter signature; elsewhere, and on
// CPUs without usable SIMD, the scalar reference implementation is returned
// with identical semantics.
//
// Set EMBEDBAG_NO_SIMD=1 to force the scalar path and EMBEDBAG_LOG_CODE=1
// to write a disassembly listing of every kernel compiled.
package embedbag
