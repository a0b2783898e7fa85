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

package embedbag

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
	"k8s.io/klog/v2"

	"github.com/ajroetker/go-embedbag/internal/codecache"
	"github.com/ajroetker/go-embedbag/internal/dump"
	"github.com/ajroetker/go-embedbag/internal/gen"
	"github.com/ajroetker/go-embedbag/internal/isa"
	"github.com/ajroetker/go-embedbag/internal/jitrt"
)

// simdLevel picks the best instruction set the generated code can use.
// The AVX-512 schedule needs F (zmm, opmasks), BW (byte/word widenings) and
// VL (EVEX-encoded ymm/xmm forms); the AVX2 schedule needs FMA and F16C on
// top of AVX2.
func simdLevel() isa.Level {
	if NoSimdEnv() {
		return isa.Scalar
	}
	c := cpu.X86
	if c.HasAVX512F && c.HasAVX512BW && c.HasAVX512DQ && c.HasAVX512VL {
		return isa.AVX512
	}
	if c.HasAVX2 && c.HasFMA && c.HasF16C {
		return isa.AVX2
	}
	return isa.Scalar
}

// SimdLevelName reports the dispatch decision, for diagnostics.
func SimdLevelName() string { return simdLevel().String() }

// One cache per (index width, variant) pair; the signature tuple therefore
// does not need to carry either.
var (
	kernelCache32  codecache.Cache[signature, uintptr]
	kernelCache64  codecache.Cache[signature, uintptr]
	rowWiseCache32 codecache.Cache[signature, uintptr]
	rowWiseCache64 codecache.Cache[signature, uintptr]
)

func index64[I Index]() bool {
	var i I
	return unsafe.Sizeof(i) == 8
}

func compile(opts Options, idx64, rowwise bool, level isa.Level) (uintptr, error) {
	cfg := gen.Config{
		BitRate:            opts.BitRate,
		BlockSize:          opts.BlockSize,
		HasWeight:          opts.HasWeight,
		IsWeightPositional: opts.IsWeightPositional,
		NormalizeByLengths: opts.NormalizeByLengths,
		Prefetch:           opts.Prefetch,
		Index64:            idx64,
		RowWiseSparse:      rowwise,
		ISA:                level,
	}
	code, err := gen.Emit(cfg)
	if err != nil {
		return 0, err
	}
	if logCodeEnv() {
		if werr := dump.WriteFile(dump.Name(cfg), code); werr != nil {
			klog.Warningf("embedbag: cannot write code listing: %v", werr)
		}
	}
	addr, err := jitrt.Global.Install(code)
	if err != nil {
		return 0, errors.Wrapf(err, "embedbag: install %dbit kernel", opts.BitRate)
	}
	klog.V(2).Infof("embedbag: compiled %dbit block=%d %s kernel, %d bytes",
		opts.BitRate, opts.BlockSize, level, len(code))
	return addr, nil
}

func generateKernel[I Index](opts Options) (Kernel[I], error) {
	level := simdLevel()
	if level == isa.Scalar {
		klog.V(1).Info("embedbag: AVX2 or AVX-512 not found, taking the slow path")
		return refKernel[I](opts), nil
	}
	idx64 := index64[I]()
	cache := &kernelCache32
	if idx64 {
		cache = &kernelCache64
	}
	addr, err := cache.GetOrCreate(opts.signature(), func() (uintptr, error) {
		return compile(opts, idx64, false, level)
	})
	if err != nil {
		return nil, err
	}
	return wrapKernel[I](addr), nil
}

func generateRowWiseSparseKernel[I Index](opts Options) (RowWiseSparseKernel[I], error) {
	level := simdLevel()
	if level == isa.Scalar {
		klog.V(1).Info("embedbag: AVX2 or AVX-512 not found, taking the slow path")
		return refRowWiseSparseKernel[I](opts), nil
	}
	idx64 := index64[I]()
	cache := &rowWiseCache32
	if idx64 {
		cache = &rowWiseCache64
	}
	addr, err := cache.GetOrCreate(opts.signature(), func() (uintptr, error) {
		return compile(opts, idx64, true, level)
	})
	if err != nil {
		return nil, err
	}
	return wrapRowWiseSparseKernel[I](addr), nil
}

func slicePtr[T any](s []T) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(s)))
}

func wrapKernel[I Index](fn uintptr) Kernel[I] {
	return func(outputSize, indexSize, dataSize int64,
		input []byte, indices []I, lengths []int32,
		weights []float32, out []float32) bool {
		ok := jitrt.Call(fn,
			uintptr(outputSize), uintptr(indexSize), uintptr(dataSize),
			slicePtr(input), slicePtr(indices), slicePtr(lengths),
			slicePtr(weights), slicePtr(out), 0)
		runtime.KeepAlive(input)
		runtime.KeepAlive(indices)
		runtime.KeepAlive(lengths)
		runtime.KeepAlive(weights)
		runtime.KeepAlive(out)
		return ok
	}
}

func wrapRowWiseSparseKernel[I Index](fn uintptr) RowWiseSparseKernel[I] {
	return func(outputSize, indexSize, uncompressedDataSize int64,
		input []byte, indices []I, lengths []int32,
		weights []float32, out []float32,
		compressedIndicesTable []I) bool {
		ok := jitrt.Call(fn,
			uintptr(outputSize), uintptr(indexSize), uintptr(uncompressedDataSize),
			slicePtr(input), slicePtr(indices), slicePtr(lengths),
			slicePtr(weights), slicePtr(out), slicePtr(compressedIndicesTable))
		runtime.KeepAlive(input)
		runtime.KeepAlive(indices)
		runtime.KeepAlive(lengths)
		runtime.KeepAlive(weights)
		runtime.KeepAlive(out)
		runtime.KeepAlive(compressedIndicesTable)
		return ok
	}
}
