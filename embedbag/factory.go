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

// Generate returns a kernel specialized to opts. On CPUs with AVX-512 or
// AVX2 the kernel is generated, installed in executable memory and cached by
// its parameter signature; repeated calls with equal opts return the same
// underlying code. Without usable SIMD the scalar reference is returned
// instead.
//
// Invalid BitRate or BlockSize panic. An error is only returned when code
// emission or installation fails.
func Generate[I Index](opts Options) (Kernel[I], error) {
	opts.validate()
	return generateKernel[I](opts)
}

// GenerateRowWiseSparse is Generate for the rowwise-sparse variant.
func GenerateRowWiseSparse[I Index](opts Options) (RowWiseSparseKernel[I], error) {
	opts.validate()
	return generateRowWiseSparseKernel[I](opts)
}

func refKernel[I Index](opts Options) Kernel[I] {
	return func(outputSize, indexSize, dataSize int64,
		input []byte, indices []I, lengths []int32,
		weights []float32, out []float32) bool {
		return Ref(opts, outputSize, indexSize, dataSize,
			input, indices, lengths, weights, out)
	}
}

func refRowWiseSparseKernel[I Index](opts Options) RowWiseSparseKernel[I] {
	return func(outputSize, indexSize, uncompressedDataSize int64,
		input []byte, indices []I, lengths []int32,
		weights []float32, out []float32,
		compressedIndicesTable []I) bool {
		return RefRowWiseSparse(opts, outputSize, indexSize,
			uncompressedDataSize, input, indices, lengths, weights,
			out, compressedIndicesTable)
	}
}
