// Copyright 2024 The Cockroach Authors
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

package alloc

import "math/bits"

const (
	minClassShift = 4  // 16 B
	maxClassShift = 16 // 64 KiB
	numClasses    = maxClassShift - minClassShift + 1
)

// PoolStats counts the operations performed by a Pool.
type PoolStats struct {
	Allocs int
	Frees  int
	// Reuses is the number of allocations satisfied from a free list.
	Reuses int
}

// Pool is an Allocator that keeps freed blocks on per-size-class free lists
// and hands them out again. Blocks are rounded up to a power of two between
// 16 B and 64 KiB; larger requests bypass the pool. Memory returned by Alloc
// may hold the contents of a previously freed block.
//
// A Pool is NOT goroutine-safe.
type Pool struct {
	free  [numClasses][][]byte
	stats PoolStats
}

var _ Allocator = (*Pool)(nil)

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// sizeClass returns the class for a request of n bytes, or false if the
// request is too large to be pooled.
func sizeClass(n int) (int, bool) {
	if n > 1<<maxClassShift {
		return 0, false
	}
	if n <= 1<<minClassShift {
		return 0, true
	}
	return bits.Len(uint(n-1)) - minClassShift, true
}

// capClass returns the class of a block with capacity c, or false if c is
// not exactly a class size.
func capClass(c int) (int, bool) {
	if c < 1<<minClassShift || c > 1<<maxClassShift || c&(c-1) != 0 {
		return 0, false
	}
	return bits.Len(uint(c)) - 1 - minClassShift, true
}

func (p *Pool) Alloc(n int) []byte {
	p.stats.Allocs++
	c, ok := sizeClass(n)
	if !ok {
		return make([]byte, n)
	}
	if l := p.free[c]; len(l) > 0 {
		b := l[len(l)-1]
		l[len(l)-1] = nil
		p.free[c] = l[:len(l)-1]
		p.stats.Reuses++
		return b[:n]
	}
	return make([]byte, n, 1<<(c+minClassShift))
}

func (p *Pool) AllocZeroed(n int) []byte {
	b := p.Alloc(n)
	clear(b)
	return b
}

func (p *Pool) Realloc(b []byte, n int) []byte {
	if b == nil {
		return p.Alloc(n)
	}
	if n <= cap(b) {
		return b[:n]
	}
	nb := p.Alloc(n)
	copy(nb, b)
	p.Free(b)
	return nb
}

func (p *Pool) Free(b []byte) {
	if b == nil {
		return
	}
	p.stats.Frees++
	c, ok := capClass(cap(b))
	if !ok {
		return
	}
	p.free[c] = append(p.free[c], b[:cap(b)])
}

// Stats returns the operation counts accumulated so far.
func (p *Pool) Stats() PoolStats {
	return p.stats
}

// Trim drops every pooled block so the garbage collector can reclaim it.
func (p *Pool) Trim() {
	for i := range p.free {
		clear(p.free[i])
		p.free[i] = nil
	}
}
