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

// Package gen emits specialized sparse-length-sum lookup kernels for 2- and
// 4-bit row-quantized embedding tables.
//
// The generated function walks a flat index stream partitioned by per-output
// segment lengths, dequantizes each referenced row (packed low-bit lanes
// followed by an fp16 scale and bias) and accumulates it into one fp32 output
// vector per segment. All bounds violations make the kernel return false in
// al; on success it returns true.
package gen

import (
	"github.com/pkg/errors"

	"github.com/ajroetker/go-embedbag/internal/asm"
	"github.com/ajroetker/go-embedbag/internal/isa"
)

// Config selects one kernel specialization. It is also the cache signature,
// so it must stay a comparable value type.
type Config struct {
	BitRate            int // 2 or 4
	BlockSize          int // embedding dimension, > 0
	HasWeight          bool
	IsWeightPositional bool
	NormalizeByLengths bool
	Prefetch           int // prefetch distance in rows, 0 disables
	Index64            bool
	RowWiseSparse      bool
	ISA                isa.Level
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// ElemsPerByte returns how many quantized lanes one byte holds.
func (c Config) ElemsPerByte() int { return 8 / c.BitRate }

// FusedBlockSize returns the byte length of one row: the packed lanes plus
// the trailing fp16 scale and bias.
func (c Config) FusedBlockSize() int {
	return ceilDiv(c.BlockSize, c.ElemsPerByte()) + 2*2
}

func (c Config) indexSize() int {
	if c.Index64 {
		return 8
	}
	return 4
}

// Fixed argument register assignment. The first six follow SysV; the rest
// arrive in r10..r12 per the trampoline convention in internal/jitrt.
const (
	regOutputSize = asm.RDI
	regIndexSize  = asm.RSI // rewritten to the end-of-indices address
	regDataSize   = asm.RDX
	regInput      = asm.RCX
	regIndices    = asm.R8
	regLengths    = asm.R9
	regWeights    = asm.R10
	regOut        = asm.R11
)

// emitter carries the state of one kernel emission.
type emitter struct {
	a   *asm.Assembler
	cfg Config
	t   isa.Traits

	avx512 bool

	// Derived geometry.
	vlen              int
	numVecRegsPerBlk  int
	remainder         int // block_size % vlen, guards the final store
	remainder32       int // residual 32-bit words in the last 4-vector group
	numElemPerByte    int
	numElemPer32bit   int
	fusedBlockSize    int
	unroll            int

	// Scalar registers.
	regCompressed asm.GP // rowwise-sparse only
	lenR          asm.GP // 32-bit segment length counter
	scratch1      asm.GP
	scratch2      asm.GP
	scratch3      asm.GP // AVX2 only (rax)

	// Vector register ids; -1 when the role is not allocated.
	scaleV, biasV, srcV, tempV, temp2V int
	extractV, weightV                  int
	maskV, mask2V, vlenInvV            int

	labError asm.Label
	labExit  asm.Label
}

// vec returns vector register id at the full width of the target ISA.
func (e *emitter) vec(id int) asm.Vec {
	if e.t.FullBits == 512 {
		return asm.Zmm(id)
	}
	return asm.Ymm(id)
}

// half returns the register at the half width used by widening conversions.
func (e *emitter) half(id int) asm.Vec {
	if e.t.HalfBits == 256 {
		return asm.Ymm(id)
	}
	return asm.Xmm(id)
}

// plan performs the static register allocation: roles are reserved from the
// top of the register file in a fixed order and whatever remains becomes the
// accumulator pool, rounded down to a multiple of four because the dequant
// schedule retires four output registers per unpack.
func (e *emitter) plan() {
	c := e.cfg
	n := e.t.NumVecRegs

	n--
	e.scaleV = n
	n--
	e.biasV = n
	n--
	e.srcV = n
	n--
	e.tempV = n
	e.temp2V = -1
	if c.BitRate == 2 {
		n--
		e.temp2V = n
	}
	n--
	e.extractV = n
	e.weightV = -1
	if c.HasWeight {
		n--
		e.weightV = n
	}
	// Opmask ISAs keep both tail masks in k registers; register-mask ISAs
	// burn a vector register per mask.
	e.maskV, e.mask2V = -1, -1
	if e.remainder != 0 && e.t.Mask == isa.MaskVec {
		n--
		e.maskV = n
	}
	if e.remainder32 != 0 && e.t.Mask == isa.MaskVec {
		n--
		e.mask2V = n
	}
	e.vlenInvV = -1
	if c.NormalizeByLengths {
		n--
		e.vlenInvV = n
	}

	e.unroll = n / 4 * 4
}

// Emit generates the machine code for one kernel specialization.
func Emit(cfg Config) ([]byte, error) {
	if cfg.BitRate != 2 && cfg.BitRate != 4 {
		panic("gen: bit rate must be 2 or 4")
	}
	if cfg.BlockSize <= 0 {
		panic("gen: block size must be positive")
	}
	if cfg.ISA == isa.Scalar {
		return nil, errors.New("gen: no SIMD target available")
	}

	t := isa.For(cfg.ISA)
	e := &emitter{
		a:      asm.New(),
		cfg:    cfg,
		t:      t,
		avx512: cfg.ISA == isa.AVX512,
		vlen:   t.VLen,
	}

	e.numElemPerByte = cfg.ElemsPerByte()
	e.numElemPer32bit = 32 / cfg.BitRate
	e.fusedBlockSize = cfg.FusedBlockSize()
	e.numVecRegsPerBlk = ceilDiv(cfg.BlockSize, e.vlen)
	e.remainder = cfg.BlockSize % e.vlen
	// Packed data is loaded at 32-bit granularity, four full vectors per
	// load group.
	numOf32bitPerVload := e.vlen * 4 / e.numElemPer32bit
	e.remainder32 = ceilDiv(cfg.BlockSize, e.numElemPer32bit) % numOf32bitPerVload

	if cfg.RowWiseSparse {
		e.regCompressed = asm.R12
		e.lenR = asm.R13
		e.scratch1 = asm.R14
		e.scratch2 = asm.R15
	} else {
		e.lenR = asm.R12
		e.scratch1 = asm.R13
		e.scratch2 = asm.R14
	}
	e.scratch3 = asm.RAX

	e.plan()
	e.emitAll()

	return e.a.Finalize()
}
