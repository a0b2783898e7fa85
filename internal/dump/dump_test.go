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

package dump

import (
	"strings"
	"testing"

	"github.com/ajroetker/go-embedbag/internal/gen"
	"github.com/ajroetker/go-embedbag/internal/isa"
)

func TestName(t *testing.T) {
	tests := []struct {
		cfg  gen.Config
		want string
	}{
		{
			gen.Config{BitRate: 4, BlockSize: 64, Index64: true, ISA: isa.AVX512},
			"embeddinglookup_4bit__emd_dim_64_64bit_avx512.txt",
		},
		{
			gen.Config{
				BitRate: 2, BlockSize: 100, Prefetch: 16, HasWeight: true,
				NormalizeByLengths: true, RowWiseSparse: true, ISA: isa.AVX2,
			},
			"embeddinglookup_2bit__emd_dim_100_prefetch_hasweight_normalize_by_lengths_rowwise_sparse_32bit_avx2.txt",
		},
	}
	for _, tt := range tests {
		if got := Name(tt.cfg); got != tt.want {
			t.Errorf("Name(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestListingCoversAllBytes(t *testing.T) {
	cfg := gen.Config{BitRate: 4, BlockSize: 24, Prefetch: 8, ISA: isa.AVX2}
	code, err := gen.Emit(cfg)
	if err != nil {
		t.Fatal(err)
	}
	listing := Listing(code)
	if listing == "" {
		t.Fatal("empty listing")
	}
	lines := strings.Split(strings.TrimRight(listing, "\n"), "\n")
	if len(lines) < 20 {
		t.Errorf("suspiciously short listing: %d lines", len(lines))
	}
	// The AVX2 kernel is VEX/legacy encoded, which the decoder mostly
	// understands; raw-byte fallbacks should stay the rare exception.
	undecoded := 0
	for _, l := range lines {
		if strings.Contains(l, ".byte") {
			undecoded++
		}
	}
	if undecoded*4 > len(lines) {
		t.Errorf("%d of %d listing lines undecoded", undecoded, len(lines))
	}
}
