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

//go:build !amd64 || (!linux && !darwin)

package embedbag

import "k8s.io/klog/v2"

// Platforms without the JIT always take the scalar reference path.

// SimdLevelName reports the dispatch decision, for diagnostics.
func SimdLevelName() string { return "scalar" }

func generateKernel[I Index](opts Options) (Kernel[I], error) {
	klog.V(1).Info("embedbag: JIT unavailable on this platform, taking the slow path")
	return refKernel[I](opts), nil
}

func generateRowWiseSparseKernel[I Index](opts Options) (RowWiseSparseKernel[I], error) {
	klog.V(1).Info("embedbag: JIT unavailable on this platform, taking the slow path")
	return refRowWiseSparseKernel[I](opts), nil
}
