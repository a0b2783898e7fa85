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

package codecache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateCachesValue(t *testing.T) {
	var c Cache[int, string]
	calls := 0
	v, err := c.GetOrCreate(7, func() (string, error) {
		calls++
		return "seven", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "seven", v)

	v, err = c.GetOrCreate(7, func() (string, error) {
		calls++
		return "other", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "seven", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCreateErrorNotCached(t *testing.T) {
	var c Cache[int, string]
	_, err := c.GetOrCreate(1, func() (string, error) {
		return "", errors.New("emit failed")
	})
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCreate(1, func() (string, error) {
		return "retried", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "retried", v)
}

// 64 concurrent requests for one signature must produce exactly one compile
// and hand every caller the same value.
func TestGetOrCreateConcurrent(t *testing.T) {
	var c Cache[string, uintptr]
	var produced atomic.Int32

	const n = 64
	results := make([]uintptr, n)
	var wg sync.WaitGroup
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrCreate("sig", func() (uintptr, error) {
				produced.Add(1)
				return 0xbeef, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), produced.Load())
	for _, v := range results {
		assert.Equal(t, uintptr(0xbeef), v)
	}
}

func TestDistinctKeysIndependent(t *testing.T) {
	var c Cache[int, int]
	for k := 0; k < 16; k++ {
		v, err := c.GetOrCreate(k, func() (int, error) { return k * k, nil })
		require.NoError(t, err)
		assert.Equal(t, k*k, v)
	}
	assert.Equal(t, 16, c.Len())
}
