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

// Package dump renders generated kernels as annotated assembly listings.
package dump

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/ajroetker/go-embedbag/internal/gen"
)

// Name returns the listing file name for one kernel specialization:
// embeddinglookup_<bitrate>bit__emd_dim_<block>[_prefetch][_hasweight]
// [_normalize_by_lengths][_rowwise_sparse]_<32|64>bit_<avx2|avx512>.txt
func Name(cfg gen.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "embeddinglookup_%dbit_", cfg.BitRate)
	fmt.Fprintf(&b, "_emd_dim_%d", cfg.BlockSize)
	if cfg.Prefetch != 0 {
		b.WriteString("_prefetch")
	}
	if cfg.HasWeight {
		b.WriteString("_hasweight")
	}
	if cfg.NormalizeByLengths {
		b.WriteString("_normalize_by_lengths")
	}
	if cfg.RowWiseSparse {
		b.WriteString("_rowwise_sparse")
	}
	if cfg.Index64 {
		b.WriteString("_64bit")
	} else {
		b.WriteString("_32bit")
	}
	b.WriteString("_" + cfg.ISA.String() + ".txt")
	return b.String()
}

// Listing disassembles code into one line per instruction. Instructions the
// decoder does not know (notably some EVEX forms) are kept as hex bytes so
// the listing stays byte-accurate.
func Listing(code []byte) string {
	var b strings.Builder
	for pc := 0; pc < len(code); {
		inst, err := x86asm.Decode(code[pc:], 64)
		if err != nil || inst.Len == 0 {
			fmt.Fprintf(&b, "%6x:\t.byte %#02x\n", pc, code[pc])
			pc++
			continue
		}
		fmt.Fprintf(&b, "%6x:\t% x\t%s\n",
			pc, code[pc:pc+inst.Len], x86asm.IntelSyntax(inst, uint64(pc), nil))
		pc += inst.Len
	}
	return b.String()
}

// WriteFile writes the listing for code to path.
func WriteFile(path string, code []byte) error {
	return os.WriteFile(path, []byte(Listing(code)), 0o644)
}
