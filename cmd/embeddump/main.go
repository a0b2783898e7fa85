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

// embeddump emits an embedding lookup kernel for the given parameters and
// writes its assembly listing to a file. The emitter itself is portable, so
// listings can be produced on any host, not just amd64.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ajroetker/go-embedbag/internal/dump"
	"github.com/ajroetker/go-embedbag/internal/gen"
	"github.com/ajroetker/go-embedbag/internal/isa"
)

var (
	flagBitRate    int
	flagBlockSize  int
	flagPrefetch   int
	flagIndexWidth int
	flagTarget     string
	flagOutDir     string
	flagWeighted   bool
	flagPositional bool
	flagNormalize  bool
	flagRowwise    bool
)

var rootCmd = &cobra.Command{
	Use:           "embeddump",
	Short:         "Emit an embedding lookup kernel and write its assembly listing",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVar(&flagBitRate, "bit-rate", 4, "quantized bits per lane (2 or 4)")
	f.IntVar(&flagBlockSize, "block-size", 64, "embedding dimension")
	f.IntVar(&flagPrefetch, "prefetch", 16, "prefetch distance in rows, 0 disables")
	f.IntVar(&flagIndexWidth, "index-width", 64, "index width in bits (32 or 64)")
	f.StringVar(&flagTarget, "target", "avx512", "target instruction set (avx2 or avx512)")
	f.StringVar(&flagOutDir, "out", ".", "directory for the listing file")
	f.BoolVar(&flagWeighted, "weighted", false, "generate the weighted-sum kernel")
	f.BoolVar(&flagPositional, "positional", false, "index weights by position within the segment")
	f.BoolVar(&flagNormalize, "normalize", false, "normalize each output row by its segment length")
	f.BoolVar(&flagRowwise, "rowwise-sparse", false, "generate the rowwise-sparse variant")
}

func run(cmd *cobra.Command, args []string) error {
	var level isa.Level
	switch flagTarget {
	case "avx2":
		level = isa.AVX2
	case "avx512":
		level = isa.AVX512
	default:
		return fmt.Errorf("unknown target %q (want avx2 or avx512)", flagTarget)
	}
	if flagBitRate != 2 && flagBitRate != 4 {
		return fmt.Errorf("bit rate %d not supported (want 2 or 4)", flagBitRate)
	}
	if flagBlockSize <= 0 {
		return fmt.Errorf("block size must be positive")
	}
	if flagIndexWidth != 32 && flagIndexWidth != 64 {
		return fmt.Errorf("index width %d not supported (want 32 or 64)", flagIndexWidth)
	}

	cfg := gen.Config{
		BitRate:            flagBitRate,
		BlockSize:          flagBlockSize,
		HasWeight:          flagWeighted,
		IsWeightPositional: flagPositional,
		NormalizeByLengths: flagNormalize,
		Prefetch:           flagPrefetch,
		Index64:            flagIndexWidth == 64,
		RowWiseSparse:      flagRowwise,
		ISA:                level,
	}
	code, err := gen.Emit(cfg)
	if err != nil {
		return err
	}

	path := filepath.Join(flagOutDir, dump.Name(cfg))
	if err := dump.WriteFile(path, code); err != nil {
		return err
	}

	title := cases.Title(language.English)
	fmt.Printf("%s Kernel Listing\n", title.String(cfg.ISA.String()))
	fmt.Printf("  file: %s\n", path)
	fmt.Printf("  code size: %s\n", humanize.Bytes(uint64(len(code))))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "embeddump:", err)
		os.Exit(1)
	}
}
