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

package embedbag

import "os"

// Index constrains the index element type of a kernel. The two widths get
// independent kernel caches.
type Index interface {
	~int32 | ~int64
}

// Kernel computes, for each of outputSize segments, the sum of the
// dequantized rows selected by that segment's slice of the index stream,
// writing blockSize float32s per segment into out.
//
// It returns true iff every index was inside [0, dataSize) and the segment
// lengths exactly covered indexSize entries. On false, out is garbage and
// must be discarded.
//
// The caller must size the buffers: input holds dataSize rows of
// Options.FusedBlockSize bytes, indices holds indexSize entries, lengths
// holds outputSize entries, weights holds indexSize entries when the kernel
// was built with HasWeight (nil otherwise), and out holds
// outputSize*blockSize float32s. All slices are borrowed only for the call.
type Kernel[I Index] func(outputSize, indexSize, dataSize int64,
	input []byte, indices []I, lengths []int32,
	weights []float32, out []float32) bool

// RowWiseSparseKernel is Kernel with an extra indirection: each index is
// first bounds-checked against uncompressedDataSize and then mapped through
// compressedIndicesTable (uncompressedDataSize entries); a table entry of -1
// marks the row absent and contributes nothing.
type RowWiseSparseKernel[I Index] func(outputSize, indexSize,
	uncompressedDataSize int64, input []byte, indices []I,
	lengths []int32, weights []float32, out []float32,
	compressedIndicesTable []I) bool

// Options selects one kernel specialization.
type Options struct {
	// BitRate is the quantized width of one lane, 2 or 4 bits. Any other
	// value panics.
	BitRate int
	// BlockSize is the embedding dimension. Must be positive.
	BlockSize int
	// HasWeight selects the weighted sum; the kernel then requires a
	// weights slice with one float32 per index.
	HasWeight bool
	// NormalizeByLengths divides each output row by its segment length.
	NormalizeByLengths bool
	// Prefetch is the prefetch distance in rows; 0 disables prefetching.
	Prefetch int
	// IsWeightPositional indexes weights by position within the segment
	// instead of by stream position.
	IsWeightPositional bool
}

func (o Options) validate() {
	if o.BitRate != 2 && o.BitRate != 4 {
		panic("embedbag: bit rate must be 2 or 4")
	}
	if o.BlockSize <= 0 {
		panic("embedbag: block size must be positive")
	}
}

// ElemsPerByte returns how many quantized lanes one byte holds.
func (o Options) ElemsPerByte() int { return 8 / o.BitRate }

// FusedBlockSize returns the byte length of one row: packed lanes followed
// by an fp16 scale and an fp16 bias.
func (o Options) FusedBlockSize() int {
	return (o.BlockSize+o.ElemsPerByte()-1)/o.ElemsPerByte() + 4
}

// signature is the code cache key. Index width and the rowwise-sparse
// variant are kept out of it because each (width, variant) pair has its own
// cache instance.
type signature struct {
	bitRate            int
	blockSize          int
	hasWeight          bool
	isWeightPositional bool
	normalizeByLengths bool
	prefetch           int
}

func (o Options) signature() signature {
	return signature{
		bitRate:            o.BitRate,
		blockSize:          o.BlockSize,
		hasWeight:          o.HasWeight,
		isWeightPositional: o.IsWeightPositional,
		normalizeByLengths: o.NormalizeByLengths,
		prefetch:           o.Prefetch,
	}
}

// NoSimdEnv reports whether EMBEDBAG_NO_SIMD is set, forcing the scalar
// reference path regardless of CPU capabilities.
func NoSimdEnv() bool {
	v := os.Getenv("EMBEDBAG_NO_SIMD")
	return v == "1" || v == "true"
}

// logCodeEnv reports whether generated kernels should be dumped as text.
func logCodeEnv() bool {
	v := os.Getenv("EMBEDBAG_LOG_CODE")
	return v == "1" || v == "true"
}
