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

// Package codecache provides a signature-keyed cache for compiled kernels.
package codecache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache maps kernel signatures to compiled values. Concurrent lookups for
// distinct keys proceed in parallel; concurrent lookups for the same key run
// the producer exactly once. A failed producer is not cached, so the key may
// be retried.
type Cache[Key comparable, V any] struct {
	mu    sync.RWMutex
	m     map[Key]V
	group singleflight.Group
}

// GetOrCreate returns the cached value for key, running produce on a miss.
func (c *Cache[Key, V]) GetOrCreate(key Key, produce func() (V, error)) (V, error) {
	c.mu.RLock()
	v, ok := c.m[key]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(fmt.Sprintf("%v", key), func() (any, error) {
		// A racing flight may have installed the value between the read
		// lock and the flight start.
		c.mu.RLock()
		v, ok := c.m[key]
		c.mu.RUnlock()
		if ok {
			return v, nil
		}
		v, err := produce()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.m == nil {
			c.m = make(map[Key]V)
		}
		c.m[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of cached entries.
func (c *Cache[Key, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
