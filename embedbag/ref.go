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

import (
	"encoding/binary"

	"github.com/x448/float16"
)

// Ref is the scalar reference kernel. It implements the exact semantics the
// generated kernels are tested against and serves as the fallback when no
// usable SIMD is present. The buffer-sizing contract matches Kernel.
func Ref[I Index](opts Options, outputSize, indexSize, dataSize int64,
	input []byte, indices []I, lengths []int32,
	weights []float32, out []float32) bool {
	opts.validate()
	fused := int64(opts.FusedBlockSize())
	packed := fused - 4
	block := int64(opts.BlockSize)
	perByte := opts.ElemsPerByte()
	mask := byte(1<<opts.BitRate - 1)

	cur := int64(0)
	for m := int64(0); m < outputSize; m++ {
		length := int64(lengths[m])
		if cur+length > indexSize {
			return false
		}
		outRow := out[m*block : (m+1)*block]
		clear(outRow)

		for i := int64(0); i < length; i++ {
			idx := int64(indices[cur])
			if idx < 0 || idx >= dataSize {
				return false
			}
			w := float32(1)
			if opts.HasWeight {
				if opts.IsWeightPositional {
					w = weights[i]
				} else {
					w = weights[cur]
				}
			}
			row := input[idx*fused : (idx+1)*fused]
			scale := w * float16.Frombits(binary.LittleEndian.Uint16(row[packed:])).Float32()
			bias := w * float16.Frombits(binary.LittleEndian.Uint16(row[packed+2:])).Float32()

			for j := int64(0); j < block; j++ {
				b := row[int(j)/perByte]
				q := b >> (uint(int(j)%perByte) * uint(opts.BitRate)) & mask
				outRow[j] += scale*float32(q) + bias
			}
			cur++
		}

		if opts.NormalizeByLengths && length > 0 {
			inv := 1 / float32(length)
			for j := range outRow {
				outRow[j] *= inv
			}
		}
	}
	return cur == indexSize
}

// RefRowWiseSparse is the scalar reference for the rowwise-sparse variant.
// Indices address the uncompressed namespace and are mapped through
// compressedIndicesTable; -1 entries are skipped, though their weight is
// still consumed from the stream.
func RefRowWiseSparse[I Index](opts Options, outputSize, indexSize,
	uncompressedDataSize int64, input []byte, indices []I,
	lengths []int32, weights []float32, out []float32,
	compressedIndicesTable []I) bool {
	opts.validate()
	fused := int64(opts.FusedBlockSize())
	packed := fused - 4
	block := int64(opts.BlockSize)
	perByte := opts.ElemsPerByte()
	mask := byte(1<<opts.BitRate - 1)

	cur := int64(0)
	for m := int64(0); m < outputSize; m++ {
		length := int64(lengths[m])
		if cur+length > indexSize {
			return false
		}
		outRow := out[m*block : (m+1)*block]
		clear(outRow)

		for i := int64(0); i < length; i++ {
			idx := int64(indices[cur])
			if idx < 0 || idx >= uncompressedDataSize {
				return false
			}
			w := float32(1)
			if opts.HasWeight {
				if opts.IsWeightPositional {
					w = weights[i]
				} else {
					w = weights[cur]
				}
			}
			cur++

			cidx := int64(compressedIndicesTable[idx])
			if cidx == -1 {
				continue
			}
			row := input[cidx*fused : (cidx+1)*fused]
			scale := w * float16.Frombits(binary.LittleEndian.Uint16(row[packed:])).Float32()
			bias := w * float16.Frombits(binary.LittleEndian.Uint16(row[packed+2:])).Float32()

			for j := int64(0); j < block; j++ {
				b := row[int(j)/perByte]
				q := b >> (uint(int(j)%perByte) * uint(opts.BitRate)) & mask
				outRow[j] += scale*float32(q) + bias
			}
		}

		if opts.NormalizeByLengths && length > 0 {
			inv := 1 / float32(length)
			for j := range outRow {
				outRow[j] *= inv
			}
		}
	}
	return cur == indexSize
}
