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

package gen

import "github.com/ajroetker/go-embedbag/internal/asm"

const cacheLineLen = 64

func (e *emitter) emitAll() {
	e.emitPrologue()
	e.emitBody()
	e.emitEpilogue()
}

func (e *emitter) calleeSaved() []asm.GP {
	if e.cfg.RowWiseSparse {
		return []asm.GP{asm.R12, asm.R13, asm.R14, asm.R15}
	}
	return []asm.GP{asm.R12, asm.R13, asm.R14}
}

// emitPrologue saves callee-saved scratch registers, materializes the
// lane-extraction constant and the two tail masks, and rewrites the
// index_size argument into the end-of-indices address.
func (e *emitter) emitPrologue() {
	a := e.a

	for _, r := range e.calleeSaved() {
		a.PushR(r)
	}

	// Constant that keeps the low bit_rate bits of each 8-bit block.
	a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, -4))
	if e.cfg.BitRate == 4 {
		a.MovMI16(asm.Ptr(asm.RSP, 0), 0x0f0f)
		a.Vpbroadcastw(e.vec(e.extractV), asm.Ptr(asm.RSP, 0))
	} else {
		a.MovMI32(asm.Ptr(asm.RSP, 0), 0x03030303)
		a.Vpbroadcastd(e.vec(e.extractV), asm.Ptr(asm.RSP, 0))
	}
	a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, 4))

	// Float-lane tail mask for the final output store.
	if e.remainder != 0 {
		if !e.avx512 {
			a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, int32(-e.vlen*4)))
			for i := 0; i < e.remainder; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), -1)
			}
			for i := e.remainder; i < e.vlen; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), 0)
			}
			a.Vmovups(asm.Ymm(e.maskV), asm.Ptr(asm.RSP, 0))
			a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, int32(e.vlen*4)))
		} else {
			a.MovRI(e.scratch1, int64(1<<e.remainder)-1)
			a.Kmovw(1, e.scratch1)
		}
	}

	// 32-bit-granularity tail mask for the packed-data load of the last
	// four-vector group.
	if e.remainder32 != 0 {
		if !e.avx512 {
			a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, int32(-(e.vlen/2)*4)))
			for i := 0; i < e.remainder32; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), -1)
			}
			for i := e.remainder32; i < e.vlen/2; i++ {
				a.MovMI32(asm.Ptr(asm.RSP, int32(i*4)), 0)
			}
			a.Vmovups(asm.Xmm(e.mask2V), asm.Ptr(asm.RSP, 0))
			a.LeaRM(asm.RSP, asm.Ptr(asm.RSP, int32((e.vlen/2)*4)))
		} else {
			a.MovRI(e.scratch1, int64(1<<e.remainder32)-1)
			a.Kmovw(2, e.scratch1)
		}
	}

	// index_size becomes the end address of the index stream; every
	// per-segment window is checked against it.
	a.ImulRRI(e.scratch1, regIndexSize, int32(e.cfg.indexSize()))
	a.AddRR(e.scratch1, regIndices)
	a.MovRR(regIndexSize, e.scratch1)
}

func (e *emitter) emitBody() {
	a := e.a
	c := e.cfg

	e.labError = a.NewLabel()
	e.labExit = a.NewLabel()
	loopRangeBegin := a.NewLabel()
	loopRangeEnd := a.NewLabel()

	// Outer loop: one iteration per output segment.
	a.Bind(loopRangeBegin)
	a.DecR(regOutputSize)
	a.Jcc(asm.CondL, loopRangeEnd)

	if c.NormalizeByLengths {
		e.emitLengthInverse()
	}

	for vecIdx := 0; vecIdx < e.numVecRegsPerBlk; vecIdx += e.unroll {
		cur := e.unroll
		if e.numVecRegsPerBlk-vecIdx < cur {
			cur = e.numVecRegsPerBlk - vecIdx
		}

		for v := 0; v < cur; v++ {
			out := e.vec(v)
			a.Vxorps(out, out, out)
		}

		a.MovRM32(e.lenR, asm.Ptr(regLengths, 0))

		// The segment window must fit inside the index stream.
		a.ImulRRI(e.scratch1, e.lenR, int32(c.indexSize()))
		a.AddRR(e.scratch1, regIndices)
		a.CmpRR(e.scratch1, regIndexSize)
		a.Jcc(asm.CondG, e.labError)

		dataBegin := a.NewLabel()
		dataEnd := a.NewLabel()

		// Inner loop: one iteration per index in the segment.
		a.Bind(dataBegin)
		a.DecR32(e.lenR)
		a.Jcc(asm.CondL, dataEnd)

		e.emitLoadIndex(dataBegin)
		e.emitDequantGroups(vecIdx, cur)

		a.Jmp(dataBegin)
		a.Bind(dataEnd)

		e.emitWriteback(vecIdx, cur)
		e.emitRewind(vecIdx)
	}

	a.AddRI(regLengths, 4)
	a.AddRI(regOut, int32(c.BlockSize*4))
	a.Jmp(loopRangeBegin)
	a.Bind(loopRangeEnd)

	// The cursor must have consumed exactly index_size entries.
	a.CmpRR(regIndices, regIndexSize)
	a.Jcc(asm.CondNE, e.labError)
	a.MovRI32(asm.RAX, 1)
	a.Jmp(e.labExit)
	a.Bind(e.labError)
	a.MovRI32(asm.RAX, 0)
	a.Bind(e.labExit)
}

// emitLengthInverse broadcasts 1/lengths[s], leaving zero for an empty
// segment. The AVX-512 path borrows accumulator 0 as a temporary; it is
// zeroed afterwards anyway.
func (e *emitter) emitLengthInverse() {
	a := e.a
	inv := e.vec(e.vlenInvV)

	ifEnd := a.NewLabel()
	a.CmpMI32(asm.Ptr(regLengths, 0), 1)
	a.Vxorps(inv, inv, inv)
	a.Jcc(asm.CondL, ifEnd)

	if !e.avx512 {
		xv := asm.Xmm(e.vlenInvV)
		a.MovRI32(e.lenR, 1)
		a.Vcvtsi2ss32(xv, xv, e.lenR)
		a.Vcvtsi2ss32M(asm.Xmm(0), asm.Xmm(0), asm.Ptr(regLengths, 0))
		a.Vdivss(xv, xv, asm.Xmm(0))
		a.VpbroadcastdR(asm.Ymm(e.vlenInvV), xv)
	} else {
		tmp := e.vec(0)
		a.MovRI32(e.lenR, 1)
		a.Vcvtsi2ss32(asm.Xmm(0), asm.Xmm(0), e.lenR)
		a.VpbroadcastdR(inv, asm.Xmm(0))
		a.Vpbroadcastd(tmp, asm.Ptr(regLengths, 0))
		a.Vcvtdq2ps(tmp, tmp)
		a.Vdivps(inv, inv, tmp)
	}
	a.Bind(ifEnd)
}

// emitLoadIndex loads and bounds-checks the current index, resolves the
// rowwise-sparse indirection, issues the guarded prefetch, advances the
// index and weight cursors, and leaves idx*fused_block_size in scratch1.
func (e *emitter) emitLoadIndex(dataBegin asm.Label) {
	a := e.a
	c := e.cfg
	idxSize := int32(c.indexSize())

	if c.Index64 {
		a.MovRM(e.scratch1, asm.Ptr(regIndices, 0))
	} else {
		a.MovRM32(e.scratch1, asm.Ptr(regIndices, 0))
	}
	a.CmpRI(e.scratch1, 0)
	a.Jcc(asm.CondL, e.labError)
	a.CmpRR(e.scratch1, regDataSize)
	a.Jcc(asm.CondGE, e.labError)

	if c.RowWiseSparse {
		if c.Index64 {
			a.MovRM(e.scratch1, asm.PtrIdx(e.regCompressed, e.scratch1, 3, 0))
		} else {
			a.MovRM32(e.scratch1, asm.PtrIdx(e.regCompressed, e.scratch1, 2, 0))
		}
	}

	if c.Prefetch != 0 {
		resetStart := a.NewLabel()
		resetEnd := a.NewLabel()

		// Peek the index prefetch-distance entries ahead; fall back to
		// the current row when the peek would leave the stream or the
		// table.
		a.MovRR(e.scratch2, regIndices)
		a.AddRI(e.scratch2, int32(c.Prefetch)*idxSize)
		a.CmpRR(e.scratch2, regIndexSize)
		a.Jcc(asm.CondGE, resetStart)

		if c.Index64 {
			a.MovRM(e.scratch2, asm.Ptr(regIndices, int32(c.Prefetch)*idxSize))
		} else {
			a.MovRM32(e.scratch2, asm.Ptr(regIndices, int32(c.Prefetch)*idxSize))
		}
		a.CmpRI(e.scratch2, 0)
		a.Jcc(asm.CondL, resetStart)
		a.CmpRR(e.scratch2, regDataSize)
		a.Jcc(asm.CondGE, resetStart)
		a.Jmp(resetEnd)

		a.Bind(resetStart)
		if c.Index64 {
			a.MovRM(e.scratch2, asm.Ptr(regIndices, 0))
		} else {
			a.MovRM32(e.scratch2, asm.Ptr(regIndices, 0))
		}
		a.Bind(resetEnd)

		if c.RowWiseSparse {
			if c.Index64 {
				a.MovRM(e.scratch2, asm.PtrIdx(e.regCompressed, e.scratch2, 3, 0))
			} else {
				a.MovRM32(e.scratch2, asm.PtrIdx(e.regCompressed, e.scratch2, 2, 0))
			}
		}
		a.ImulRI(e.scratch2, int32(e.fusedBlockSize))
	}

	a.AddRI(regIndices, idxSize)

	if c.HasWeight {
		a.Vbroadcastss(e.vec(e.weightV), asm.Ptr(regWeights, 0))
		a.AddRI(regWeights, 4)
	}

	// An absent row contributes nothing; its weight was still consumed.
	if c.RowWiseSparse {
		if c.Index64 {
			a.CmpRI(e.scratch1, -1)
		} else {
			a.CmpRI32(e.scratch1, -1)
		}
		a.Jcc(asm.CondE, dataBegin)
	}

	a.ImulRI(e.scratch1, int32(e.fusedBlockSize))
}

// emitDequantGroups broadcasts the row's fp16 scale and bias and runs the
// unpack/convert/accumulate schedule, four accumulators per packed load.
func (e *emitter) emitDequantGroups(vecIdx, cur int) {
	a := e.a
	c := e.cfg

	packedBytes := int32(ceilDiv(c.BlockSize, e.numElemPerByte))
	a.Vpbroadcastw(e.half(e.scaleV), asm.PtrIdx(regInput, e.scratch1, 0, packedBytes))
	a.Vpbroadcastw(e.half(e.biasV), asm.PtrIdx(regInput, e.scratch1, 0, packedBytes+2))
	a.Vcvtph2ps(e.vec(e.scaleV), e.half(e.scaleV))
	a.Vcvtph2ps(e.vec(e.biasV), e.half(e.biasV))

	if c.HasWeight {
		a.Vmulps(e.vec(e.scaleV), e.vec(e.scaleV), e.vec(e.weightV))
		a.Vmulps(e.vec(e.biasV), e.vec(e.biasV), e.vec(e.weightV))
	}

	// Four vector registers per iteration: the 4-bit path widens a half
	// load with vpmovzxbw and the 2-bit path a quarter load with
	// vpmovzxbd, and each 128-bit quarter of the result feeds one
	// accumulator through vpmovsxbd.
	bytesPerVload := e.vlen / e.numElemPerByte
	for v := 0; v < cur; v += 4 {
		srcAddr := asm.PtrIdx(regInput, e.scratch1, 0, int32((vecIdx+v)*bytesPerVload))
		masked := e.numVecRegsPerBlk-(vecIdx+v) < 4 && e.remainder32 != 0

		if c.BitRate == 4 {
			if masked {
				if e.avx512 {
					a.VmovupsLoadK(asm.Ymm(e.srcV), 2, srcAddr)
				} else {
					a.Vpmaskmovd(asm.Xmm(e.srcV), asm.Xmm(e.mask2V), srcAddr)
				}
				a.Vpmovzxbw(e.vec(e.srcV), e.half(e.srcV))
			} else {
				a.VpmovzxbwM(e.vec(e.srcV), srcAddr)
			}
			// Spread each byte's two nibbles across its two target
			// bytes: lane k of a 16-bit word is (word >> 4k) & 0xf.
			a.Vpslld(e.vec(e.tempV), e.vec(e.srcV), 4)
			a.Vpor(e.vec(e.srcV), e.vec(e.srcV), e.vec(e.tempV))
			a.Vpand(e.vec(e.srcV), e.vec(e.srcV), e.vec(e.extractV))
		} else {
			if masked {
				if e.avx512 {
					a.VmovupsLoadK(asm.Xmm(e.srcV), 2, srcAddr)
				} else {
					a.Vpmaskmovd(asm.Xmm(e.srcV), asm.Xmm(e.mask2V), srcAddr)
				}
				a.Vpmovzxbd(e.vec(e.srcV), asm.Xmm(e.srcV))
			} else {
				a.VpmovzxbdM(e.vec(e.srcV), srcAddr)
			}
			// Spread the four crumbs of the low byte across the four
			// bytes of each dword: byte j keeps bits [2j+1:2j].
			a.Vpslld(e.vec(e.tempV), e.vec(e.srcV), 2*8+2)
			a.Vpslld(e.vec(e.temp2V), e.vec(e.srcV), 8+4)
			a.Vpor(e.vec(e.tempV), e.vec(e.tempV), e.vec(e.temp2V))
			a.Vpslld(e.vec(e.temp2V), e.vec(e.srcV), 6)
			a.Vpor(e.vec(e.tempV), e.vec(e.tempV), e.vec(e.temp2V))
			a.Vpor(e.vec(e.srcV), e.vec(e.tempV), e.vec(e.srcV))
			a.Vpand(e.vec(e.srcV), e.vec(e.srcV), e.vec(e.extractV))
		}

		lim := e.numVecRegsPerBlk - (vecIdx + v)
		if lim > 4 {
			lim = 4
		}
		for i := 0; i < lim; i++ {
			out := e.vec(v + i)
			if i == 0 {
				a.Vpmovsxbd(e.vec(e.tempV), asm.Xmm(e.srcV))
			} else {
				if e.avx512 {
					a.Vextracti32x4(asm.Xmm(e.tempV), e.vec(e.srcV), uint8(i))
				} else {
					if i == 1 {
						a.Vpextrq(e.scratch3, asm.Xmm(e.srcV), 1)
						a.Vmovq(asm.Xmm(e.tempV), e.scratch3)
					} else {
						a.Vextractf128(asm.Xmm(e.tempV), asm.Ymm(e.srcV), uint8(i>>1))
						if i == 3 {
							a.Vpextrq(e.scratch3, asm.Xmm(e.tempV), 1)
							a.Vmovq(asm.Xmm(e.tempV), e.scratch3)
						}
					}
				}
				a.Vpmovsxbd(e.vec(e.tempV), asm.Xmm(e.tempV))
			}
			a.Vcvtdq2ps(e.vec(e.tempV), e.vec(e.tempV))
			a.Vaddps(out, out, e.vec(e.biasV))
			a.Vfmadd231ps(out, e.vec(e.tempV), e.vec(e.scaleV))
		}

		vloadPerCacheLine := cacheLineLen / bytesPerVload
		vAligned := ceilDiv(vecIdx+v, 4) * 4
		if c.Prefetch != 0 && vAligned*4%vloadPerCacheLine == 0 {
			a.Prefetcht0(asm.PtrIdx(regInput, e.scratch2, 0, int32(vAligned*bytesPerVload)))
		}
	}
}

// emitWriteback applies the optional length normalization and stores the
// accumulators, masking the final partial register.
func (e *emitter) emitWriteback(vecIdx, cur int) {
	a := e.a
	for v := 0; v < cur; v++ {
		dst := asm.Ptr(regOut, int32((vecIdx+v)*e.vlen*4))
		out := e.vec(v)

		if e.cfg.NormalizeByLengths {
			a.Vmulps(out, out, e.vec(e.vlenInvV))
		}

		if e.remainder != 0 && vecIdx+v == e.numVecRegsPerBlk-1 {
			if e.avx512 {
				a.VmovupsStoreK(dst, 1, out)
			} else {
				a.Vmaskmovps(dst, asm.Ymm(e.maskV), asm.Ymm(v))
			}
		} else {
			a.VmovupsStore(dst, out)
		}
	}
}

// emitRewind resets the index and weight cursors when the same segment must
// be replayed: either more accumulator blocks remain, or positional weights
// must be re-read from the segment start on every pass.
func (e *emitter) emitRewind(vecIdx int) {
	a := e.a
	c := e.cfg

	moreBlocks := vecIdx+e.unroll < e.numVecRegsPerBlk
	if !moreBlocks && !(c.HasWeight && c.IsWeightPositional) {
		return
	}

	a.MovRM32(e.lenR, asm.Ptr(regLengths, 0))
	if c.HasWeight {
		a.ImulRRI(e.scratch1, e.lenR, 4)
		a.SubRR(regWeights, e.scratch1)
		if moreBlocks {
			a.ImulRI(e.scratch1, int32(c.indexSize()/4))
			a.SubRR(regIndices, e.scratch1)
		}
	} else {
		a.ImulRRI(e.scratch1, e.lenR, int32(c.indexSize()))
		a.SubRR(regIndices, e.scratch1)
	}
}

func (e *emitter) emitEpilogue() {
	a := e.a
	saved := e.calleeSaved()
	for i := len(saved) - 1; i >= 0; i-- {
		a.PopR(saved[i])
	}
	a.Ret()
}
