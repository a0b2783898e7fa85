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

import (
	"testing"

	"github.com/ajroetker/go-embedbag/internal/isa"
)

func TestFusedBlockSize(t *testing.T) {
	tests := []struct {
		bitRate, blockSize, want int
	}{
		{4, 1, 5},
		{4, 2, 5},
		{4, 4, 6},
		{4, 64, 36},
		{2, 8, 6},
		{2, 100, 29},
	}
	for _, tt := range tests {
		c := Config{BitRate: tt.bitRate, BlockSize: tt.blockSize}
		if got := c.FusedBlockSize(); got != tt.want {
			t.Errorf("FusedBlockSize(%d-bit, block %d) = %d, want %d",
				tt.bitRate, tt.blockSize, got, tt.want)
		}
	}
}

// Every specialization in the test grid must emit a finalized buffer that
// ends in ret.
func TestEmitGrid(t *testing.T) {
	for _, level := range []isa.Level{isa.AVX2, isa.AVX512} {
		for _, bitRate := range []int{2, 4} {
			for _, block := range []int{1, 7, 8, 9, 15, 16, 17, 63, 64, 65, 127, 128, 129, 257} {
				for _, weighted := range []bool{false, true} {
					cfg := Config{
						BitRate:            bitRate,
						BlockSize:          block,
						HasWeight:          weighted,
						IsWeightPositional: weighted,
						NormalizeByLengths: block%2 == 0,
						Prefetch:           16,
						Index64:            block%2 == 1,
						RowWiseSparse:      bitRate == 2,
						ISA:                level,
					}
					code, err := Emit(cfg)
					if err != nil {
						t.Fatalf("Emit(%+v): %v", cfg, err)
					}
					if len(code) == 0 {
						t.Fatalf("Emit(%+v): empty code", cfg)
					}
					if code[len(code)-1] != 0xC3 {
						t.Errorf("Emit(%+v): does not end in ret", cfg)
					}
				}
			}
		}
	}
}

func TestEmitDeterministic(t *testing.T) {
	cfg := Config{BitRate: 4, BlockSize: 100, Prefetch: 8, ISA: isa.AVX512}
	a, err := Emit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Emit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("two emissions differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("emissions differ at byte %d", i)
		}
	}
}

func TestEmitScalarRefused(t *testing.T) {
	if _, err := Emit(Config{BitRate: 4, BlockSize: 8, ISA: isa.Scalar}); err == nil {
		t.Fatal("expected an error for the scalar level")
	}
}

func TestEmitBadBitRatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for bit rate 3")
		}
	}()
	_, _ = Emit(Config{BitRate: 3, BlockSize: 8, ISA: isa.AVX2})
}
