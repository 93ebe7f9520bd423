/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package engine

import "sync/atomic"

// Ring is a single-producer single-consumer float32 ring buffer joining the
// input and output callback threads of the ring-buffer driver model. Both
// sides are lock-free: positions only ever grow and each side owns exactly
// one of them.
type Ring struct {
	buf  []float32
	head atomic.Uint64 // total samples consumed
	tail atomic.Uint64 // total samples produced
}

// NewRing creates a ring holding up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Write copies as much of src as fits and returns the count written.
// Producer side only.
func (r *Ring) Write(src []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	free := uint64(len(r.buf)) - (tail - head)
	n := uint64(len(src))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)%uint64(len(r.buf))] = src[i]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// Read copies up to len(dst) samples out and returns the count read.
// Consumer side only.
func (r *Ring) Read(dst []float32) int {
	head := r.head.Load()
	tail := r.tail.Load()
	avail := tail - head
	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(head+i)%uint64(len(r.buf))]
	}
	r.head.Store(head + n)
	return int(n)
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}
