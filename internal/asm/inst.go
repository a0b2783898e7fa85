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

package asm

// ---------------------------------------------------------------------------
// General purpose instructions
// ---------------------------------------------------------------------------

// MovRR emits mov dst, src (64-bit).
func (a *Assembler) MovRR(dst, src GP) {
	a.rexAlways(true, int(src), 0, int(dst))
	a.db(0x89)
	a.modrmReg(int(src), int(dst))
}

// MovRI emits mov dst, imm. Immediates outside int32 use the movabs form.
func (a *Assembler) MovRI(dst GP, imm int64) {
	if imm >= -1<<31 && imm < 1<<31 {
		a.rexAlways(true, 0, 0, int(dst))
		a.db(0xC7)
		a.modrmReg(0, int(dst))
		a.i32(int32(imm))
		return
	}
	a.rexAlways(true, 0, 0, int(dst))
	a.db(0xB8 + byte(dst&7))
	a.i32(int32(imm))
	a.i32(int32(imm >> 32))
}

// MovRI32 emits mov dst32, imm32, zero-extending into the full register.
func (a *Assembler) MovRI32(dst GP, imm int32) {
	a.rex(false, 0, 0, int(dst))
	a.db(0xB8 + byte(dst&7))
	a.i32(imm)
}

// MovRM emits a 64-bit load.
func (a *Assembler) MovRM(dst GP, m Mem) {
	a.rexAlways(true, int(dst), memIndexID(m), int(m.Base))
	a.db(0x8B)
	a.modrmMem(int(dst), m, true)
}

// MovRM32 emits a 32-bit load, zero-extending into the full register.
func (a *Assembler) MovRM32(dst GP, m Mem) {
	a.rex(false, int(dst), memIndexID(m), int(m.Base))
	a.db(0x8B)
	a.modrmMem(int(dst), m, true)
}

// MovMI32 emits mov dword ptr [m], imm32.
func (a *Assembler) MovMI32(m Mem, imm int32) {
	a.rex(false, 0, memIndexID(m), int(m.Base))
	a.db(0xC7)
	a.modrmMem(0, m, true)
	a.i32(imm)
}

// MovMI16 emits mov word ptr [m], imm16.
func (a *Assembler) MovMI16(m Mem, imm int16) {
	a.db(0x66)
	a.rex(false, 0, memIndexID(m), int(m.Base))
	a.db(0xC7)
	a.modrmMem(0, m, true)
	a.i16(imm)
}

func (a *Assembler) aluRR(op byte, dst, src GP) {
	a.rexAlways(true, int(src), 0, int(dst))
	a.db(op)
	a.modrmReg(int(src), int(dst))
}

func (a *Assembler) aluRI(digit byte, r GP, imm int32, w bool) {
	if w {
		a.rexAlways(true, 0, 0, int(r))
	} else {
		a.rex(false, 0, 0, int(r))
	}
	if imm >= -128 && imm <= 127 {
		a.db(0x83)
		a.modrmReg(int(digit), int(r))
		a.db(byte(imm))
	} else {
		a.db(0x81)
		a.modrmReg(int(digit), int(r))
		a.i32(imm)
	}
}

// AddRR emits add dst, src (64-bit).
func (a *Assembler) AddRR(dst, src GP) { a.aluRR(0x01, dst, src) }

// SubRR emits sub dst, src (64-bit).
func (a *Assembler) SubRR(dst, src GP) { a.aluRR(0x29, dst, src) }

// CmpRR emits cmp dst, src (64-bit).
func (a *Assembler) CmpRR(dst, src GP) { a.aluRR(0x39, dst, src) }

// AddRI emits add r, imm (64-bit).
func (a *Assembler) AddRI(r GP, imm int32) { a.aluRI(0, r, imm, true) }

// SubRI emits sub r, imm (64-bit).
func (a *Assembler) SubRI(r GP, imm int32) { a.aluRI(5, r, imm, true) }

// CmpRI emits cmp r, imm (64-bit).
func (a *Assembler) CmpRI(r GP, imm int32) { a.aluRI(7, r, imm, true) }

// CmpRI32 emits cmp r32, imm.
func (a *Assembler) CmpRI32(r GP, imm int32) { a.aluRI(7, r, imm, false) }

// CmpMI32 emits cmp dword ptr [m], imm.
func (a *Assembler) CmpMI32(m Mem, imm int32) {
	a.rex(false, 0, memIndexID(m), int(m.Base))
	if imm >= -128 && imm <= 127 {
		a.db(0x83)
		a.modrmMem(7, m, true)
		a.db(byte(imm))
	} else {
		a.db(0x81)
		a.modrmMem(7, m, true)
		a.i32(imm)
	}
}

// ImulRRI emits imul dst, src, imm (64-bit).
func (a *Assembler) ImulRRI(dst, src GP, imm int32) {
	a.rexAlways(true, int(dst), 0, int(src))
	if imm >= -128 && imm <= 127 {
		a.db(0x6B)
		a.modrmReg(int(dst), int(src))
		a.db(byte(imm))
	} else {
		a.db(0x69)
		a.modrmReg(int(dst), int(src))
		a.i32(imm)
	}
}

// ImulRI emits imul r, r, imm (64-bit).
func (a *Assembler) ImulRI(r GP, imm int32) { a.ImulRRI(r, r, imm) }

// LeaRM emits lea dst, [m].
func (a *Assembler) LeaRM(dst GP, m Mem) {
	a.rexAlways(true, int(dst), memIndexID(m), int(m.Base))
	a.db(0x8D)
	a.modrmMem(int(dst), m, true)
}

// DecR emits dec r (64-bit).
func (a *Assembler) DecR(r GP) {
	a.rexAlways(true, 0, 0, int(r))
	a.db(0xFF)
	a.modrmReg(1, int(r))
}

// DecR32 emits dec r32.
func (a *Assembler) DecR32(r GP) {
	a.rex(false, 0, 0, int(r))
	a.db(0xFF)
	a.modrmReg(1, int(r))
}

// PushR emits push r.
func (a *Assembler) PushR(r GP) {
	a.rex(false, 0, 0, int(r))
	a.db(0x50 + byte(r&7))
}

// PopR emits pop r.
func (a *Assembler) PopR(r GP) {
	a.rex(false, 0, 0, int(r))
	a.db(0x58 + byte(r&7))
}

// Ret emits ret.
func (a *Assembler) Ret() { a.db(0xC3) }

// Prefetcht0 emits prefetcht0 [m].
func (a *Assembler) Prefetcht0(m Mem) {
	a.rex(false, 0, memIndexID(m), int(m.Base))
	a.db(0x0F, 0x18)
	a.modrmMem(1, m, true)
}

// Jmp emits an unconditional rel32 jump to a label.
func (a *Assembler) Jmp(l Label) {
	a.db(0xE9)
	a.relocs = append(a.relocs, reloc{pos: len(a.buf), label: l})
	a.i32(0)
}

// Jcc emits a conditional rel32 jump to a label.
func (a *Assembler) Jcc(c Cond, l Label) {
	a.db(0x0F, 0x80|byte(c))
	a.relocs = append(a.relocs, reloc{pos: len(a.buf), label: l})
	a.i32(0)
}

// ---------------------------------------------------------------------------
// Vector instructions
// ---------------------------------------------------------------------------

// vop describes one VEX/EVEX-encodable opcode.
type vop struct {
	mm byte // opcode map: 1=0F, 2=0F38, 3=0F3A
	pp byte // 0=none, 1=66, 2=F3, 3=F2
	op byte
	w  bool
}

// needEVEX reports whether the operand combination forces EVEX encoding.
func needEVEX(l byte, ids []int, k K) bool {
	if l == 2 || k != 0 {
		return true
	}
	for _, id := range ids {
		if id > 15 {
			return true
		}
	}
	return false
}

func (a *Assembler) vexPrefix(rBit, xBit, bBit int, o vop, vvvv int, l byte) {
	w := byte(0)
	if o.w {
		w = 1
	}
	if o.mm == 1 && !o.w && xBit == 0 && bBit == 0 {
		a.db(0xC5, byte(1-rBit)<<7|byte(^vvvv&0xF)<<3|l<<2|o.pp)
		return
	}
	a.db(0xC4,
		byte(1-rBit)<<7|byte(1-xBit)<<6|byte(1-bBit)<<5|o.mm,
		w<<7|byte(^vvvv&0xF)<<3|l<<2|o.pp)
}

func (a *Assembler) evexPrefix(rBit, xBit, bBit, rp int, o vop, vvvv int, l byte, k K, z bool) {
	w := byte(0)
	if o.w {
		w = 1
	}
	zb := byte(0)
	if z {
		zb = 1
	}
	vp := vvvv >> 4 & 1
	a.db(0x62,
		byte(1-rBit)<<7|byte(1-xBit)<<6|byte(1-bBit)<<5|byte(1-rp)<<4|o.mm,
		w<<7|byte(^vvvv&0xF)<<3|1<<2|o.pp,
		zb<<7|l<<5|byte(1-vp)<<3|byte(k))
}

// vrr emits a register-register form: modrm.reg = reg, modrm.rm = rm.
// l is the vector length field; vvvv < 0 means "no extra operand".
func (a *Assembler) vrr(o vop, l byte, reg, rm, vvvv int, k K, z bool, imm ...byte) {
	if vvvv < 0 {
		vvvv = 0
	}
	if needEVEX(l, []int{reg, rm, vvvv}, k) {
		// For register rm operands, EVEX carries the rm high bit in X.
		a.evexPrefix(reg>>3&1, rm>>4&1, rm>>3&1, reg>>4&1, o, vvvv, l, k, z)
	} else {
		a.vexPrefix(reg>>3&1, 0, rm>>3&1, o, vvvv, l)
	}
	a.db(o.op)
	a.modrmReg(reg, rm)
	a.db(imm...)
}

// vrm emits a register-memory form: modrm.reg = reg, rm = m.
func (a *Assembler) vrm(o vop, l byte, reg int, m Mem, vvvv int, k K, z bool, imm ...byte) {
	if vvvv < 0 {
		vvvv = 0
	}
	evex := needEVEX(l, []int{reg, vvvv}, k)
	xBit := memIndexID(m) >> 3 & 1
	bBit := int(m.Base) >> 3 & 1
	if evex {
		a.evexPrefix(reg>>3&1, xBit, bBit, reg>>4&1, o, vvvv, l, k, z)
	} else {
		a.vexPrefix(reg>>3&1, xBit, bBit, o, vvvv, l)
	}
	a.db(o.op)
	a.modrmMem(reg, m, !evex)
	a.db(imm...)
}

var (
	opMovups    = vop{mm: 1, pp: 0, op: 0x10}
	opMovupsSt  = vop{mm: 1, pp: 0, op: 0x11}
	opXorps     = vop{mm: 1, pp: 0, op: 0x57}
	opAddps     = vop{mm: 1, pp: 0, op: 0x58}
	opMulps     = vop{mm: 1, pp: 0, op: 0x59}
	opDivps     = vop{mm: 1, pp: 0, op: 0x5E}
	opCvtdq2ps  = vop{mm: 1, pp: 0, op: 0x5B}
	opPor       = vop{mm: 1, pp: 1, op: 0xEB}
	opPand      = vop{mm: 1, pp: 1, op: 0xDB}
	opPslldI    = vop{mm: 1, pp: 1, op: 0x72}
	opMovqRX    = vop{mm: 1, pp: 1, op: 0x6E, w: true}
	opKmovw     = vop{mm: 1, pp: 0, op: 0x92}
	opCvtsi2ss  = vop{mm: 1, pp: 2, op: 0x2A}
	opDivss     = vop{mm: 1, pp: 2, op: 0x5E}
	opCvtph2ps  = vop{mm: 2, pp: 1, op: 0x13}
	opBcastss   = vop{mm: 2, pp: 1, op: 0x18}
	opPbcastd   = vop{mm: 2, pp: 1, op: 0x58}
	opPbcastw   = vop{mm: 2, pp: 1, op: 0x79}
	opPmovsxbd  = vop{mm: 2, pp: 1, op: 0x21}
	opPmovzxbw  = vop{mm: 2, pp: 1, op: 0x30}
	opPmovzxbd  = vop{mm: 2, pp: 1, op: 0x31}
	opMaskmovps = vop{mm: 2, pp: 1, op: 0x2E} // store form
	opPmaskmovd = vop{mm: 2, pp: 1, op: 0x8C} // load form
	opFmadd231  = vop{mm: 2, pp: 1, op: 0xB8}
	opExtrF128  = vop{mm: 3, pp: 1, op: 0x19}
	opExtrI32x4 = vop{mm: 3, pp: 1, op: 0x39}
	opPextrq    = vop{mm: 3, pp: 1, op: 0x16, w: true}
)

// Vmovups emits an unmasked vector load.
func (a *Assembler) Vmovups(dst Vec, m Mem) {
	a.vrm(opMovups, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// VmovupsStore emits an unmasked vector store.
func (a *Assembler) VmovupsStore(m Mem, src Vec) {
	a.vrm(opMovupsSt, byte(src.W), int(src.ID), m, -1, 0, false)
}

// VmovupsLoadK emits an EVEX zero-masked load: vmovups dst{k}{z}, [m].
func (a *Assembler) VmovupsLoadK(dst Vec, k K, m Mem) {
	a.vrm(opMovups, byte(dst.W), int(dst.ID), m, -1, k, true)
}

// VmovupsStoreK emits an EVEX merge-masked store: vmovups [m]{k}, src.
func (a *Assembler) VmovupsStoreK(m Mem, k K, src Vec) {
	a.vrm(opMovupsSt, byte(src.W), int(src.ID), m, -1, k, false)
}

// Vmaskmovps emits the AVX2 masked store vmaskmovps [m], mask, src.
func (a *Assembler) Vmaskmovps(m Mem, mask, src Vec) {
	a.vrm(opMaskmovps, byte(src.W), int(src.ID), m, int(mask.ID), 0, false)
}

// Vpmaskmovd emits the AVX2 masked load vpmaskmovd dst, mask, [m].
func (a *Assembler) Vpmaskmovd(dst, mask Vec, m Mem) {
	a.vrm(opPmaskmovd, byte(dst.W), int(dst.ID), m, int(mask.ID), 0, false)
}

// Vxorps emits vxorps dst, s1, s2.
func (a *Assembler) Vxorps(dst, s1, s2 Vec) {
	a.vrr(opXorps, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vaddps emits vaddps dst, s1, s2.
func (a *Assembler) Vaddps(dst, s1, s2 Vec) {
	a.vrr(opAddps, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vmulps emits vmulps dst, s1, s2.
func (a *Assembler) Vmulps(dst, s1, s2 Vec) {
	a.vrr(opMulps, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vdivps emits vdivps dst, s1, s2.
func (a *Assembler) Vdivps(dst, s1, s2 Vec) {
	a.vrr(opDivps, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vpor emits vpor (vpord under EVEX) dst, s1, s2.
func (a *Assembler) Vpor(dst, s1, s2 Vec) {
	a.vrr(opPor, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vpand emits vpand (vpandd under EVEX) dst, s1, s2.
func (a *Assembler) Vpand(dst, s1, s2 Vec) {
	a.vrr(opPand, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vpslld emits vpslld dst, src, imm. The destination is carried in vvvv and
// the ModRM reg field holds the /6 opcode extension.
func (a *Assembler) Vpslld(dst, src Vec, imm uint8) {
	a.vrr(opPslldI, byte(dst.W), 6, int(src.ID), int(dst.ID), 0, false, imm)
}

// Vcvtdq2ps emits vcvtdq2ps dst, src.
func (a *Assembler) Vcvtdq2ps(dst, src Vec) {
	a.vrr(opCvtdq2ps, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// Vcvtph2ps emits vcvtph2ps dst, src where src is the half-width register.
func (a *Assembler) Vcvtph2ps(dst, src Vec) {
	a.vrr(opCvtph2ps, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// Vpbroadcastw emits vpbroadcastw dst, word ptr [m].
func (a *Assembler) Vpbroadcastw(dst Vec, m Mem) {
	a.vrm(opPbcastw, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// Vpbroadcastd emits vpbroadcastd dst, dword ptr [m].
func (a *Assembler) Vpbroadcastd(dst Vec, m Mem) {
	a.vrm(opPbcastd, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// VpbroadcastdR emits vpbroadcastd dst, xmm.
func (a *Assembler) VpbroadcastdR(dst, src Vec) {
	a.vrr(opPbcastd, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// Vbroadcastss emits vbroadcastss dst, dword ptr [m].
func (a *Assembler) Vbroadcastss(dst Vec, m Mem) {
	a.vrm(opBcastss, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// Vpmovzxbw emits vpmovzxbw dst, src (u8 -> u16 widening).
func (a *Assembler) Vpmovzxbw(dst, src Vec) {
	a.vrr(opPmovzxbw, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// VpmovzxbwM emits vpmovzxbw dst, [m].
func (a *Assembler) VpmovzxbwM(dst Vec, m Mem) {
	a.vrm(opPmovzxbw, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// Vpmovzxbd emits vpmovzxbd dst, src (u8 -> u32 widening).
func (a *Assembler) Vpmovzxbd(dst, src Vec) {
	a.vrr(opPmovzxbd, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// VpmovzxbdM emits vpmovzxbd dst, [m].
func (a *Assembler) VpmovzxbdM(dst Vec, m Mem) {
	a.vrm(opPmovzxbd, byte(dst.W), int(dst.ID), m, -1, 0, false)
}

// Vpmovsxbd emits vpmovsxbd dst, src (i8 -> i32 widening).
func (a *Assembler) Vpmovsxbd(dst, src Vec) {
	a.vrr(opPmovsxbd, byte(dst.W), int(dst.ID), int(src.ID), -1, 0, false)
}

// Vfmadd231ps emits vfmadd231ps dst, s1, s2: dst += s1 * s2.
func (a *Assembler) Vfmadd231ps(dst, s1, s2 Vec) {
	a.vrr(opFmadd231, byte(dst.W), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Vextractf128 emits vextractf128 dst, src, imm (AVX2).
func (a *Assembler) Vextractf128(dst, src Vec, imm uint8) {
	a.vrr(opExtrF128, byte(Y), int(src.ID), int(dst.ID), -1, 0, false, imm)
}

// Vextracti32x4 emits vextracti32x4 dst, src, imm (AVX-512).
func (a *Assembler) Vextracti32x4(dst, src Vec, imm uint8) {
	a.vrr(opExtrI32x4, byte(src.W), int(src.ID), int(dst.ID), -1, 0, false, imm)
}

// Vpextrq emits vpextrq dst64, src, imm.
func (a *Assembler) Vpextrq(dst GP, src Vec, imm uint8) {
	a.vrr(opPextrq, byte(X), int(src.ID), int(dst), -1, 0, false, imm)
}

// Vmovq emits vmovq dst, src64.
func (a *Assembler) Vmovq(dst Vec, src GP) {
	a.vrr(opMovqRX, byte(X), int(dst.ID), int(src), -1, 0, false)
}

// Vcvtsi2ss32 emits vcvtsi2ss dst, s1, src32.
func (a *Assembler) Vcvtsi2ss32(dst, s1 Vec, src GP) {
	a.vrr(opCvtsi2ss, byte(X), int(dst.ID), int(src), int(s1.ID), 0, false)
}

// Vcvtsi2ss32M emits vcvtsi2ss dst, s1, dword ptr [m].
func (a *Assembler) Vcvtsi2ss32M(dst, s1 Vec, m Mem) {
	a.vrm(opCvtsi2ss, byte(X), int(dst.ID), m, int(s1.ID), 0, false)
}

// Vdivss emits vdivss dst, s1, s2.
func (a *Assembler) Vdivss(dst, s1, s2 Vec) {
	a.vrr(opDivss, byte(X), int(dst.ID), int(s2.ID), int(s1.ID), 0, false)
}

// Kmovw emits kmovw k, r32.
func (a *Assembler) Kmovw(dst K, src GP) {
	a.vrr(opKmovw, 0, int(dst), int(src), -1, 0, false)
}
