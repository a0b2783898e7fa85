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
	"math"

	"github.com/x448/float16"
)

// PackRow quantizes one embedding row into the fused byte layout: packed
// low-bit lanes (LSB-first within each byte), then the fp16 scale, then the
// fp16 bias. Quantization is row-wise min/max:
//
//	scale = (max - min) / (2^bitRate - 1)
//	q[i]  = round((v[i] - bias) / scale) clamped to [0, 2^bitRate - 1]
//
// where scale and bias are the fp16-rounded values actually stored, so that
// UnpackRow(PackRow(v)) reproduces the dequantized lanes exactly.
func PackRow(bitRate int, values []float32) []byte {
	if bitRate != 2 && bitRate != 4 {
		panic("embedbag: bit rate must be 2 or 4")
	}
	levels := 1<<bitRate - 1

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	scale := (maxV - minV) / float32(levels)
	if scale == 0 {
		scale = 1
	}
	scaleH := float16.Fromfloat32(scale)
	biasH := float16.Fromfloat32(minV)
	scaleF := scaleH.Float32()
	biasF := biasH.Float32()

	perByte := 8 / bitRate
	packedLen := (len(values) + perByte - 1) / perByte
	row := make([]byte, packedLen+4)
	for i, v := range values {
		q := int(math.Round(float64((v - biasF) / scaleF)))
		if q < 0 {
			q = 0
		}
		if q > levels {
			q = levels
		}
		row[i/perByte] |= byte(q) << (uint(i%perByte) * uint(bitRate))
	}
	binary.LittleEndian.PutUint16(row[packedLen:], scaleH.Bits())
	binary.LittleEndian.PutUint16(row[packedLen+2:], biasH.Bits())
	return row
}

// UnpackRow dequantizes one fused row back to blockSize float32 lanes.
func UnpackRow(bitRate int, row []byte, blockSize int) []float32 {
	if bitRate != 2 && bitRate != 4 {
		panic("embedbag: bit rate must be 2 or 4")
	}
	perByte := 8 / bitRate
	packedLen := (blockSize + perByte - 1) / perByte
	mask := byte(1<<bitRate - 1)
	scale := float16.Frombits(binary.LittleEndian.Uint16(row[packedLen:])).Float32()
	bias := float16.Frombits(binary.LittleEndian.Uint16(row[packedLen+2:])).Float32()

	out := make([]float32, blockSize)
	for i := range out {
		q := row[i/perByte] >> (uint(i%perByte) * uint(bitRate)) & mask
		out[i] = scale*float32(q) + bias
	}
	return out
}
