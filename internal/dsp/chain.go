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

package dsp

import (
	"sync"
	"sync/atomic"
)

// Chain is an ordered effect list plus a master volume.
//
// Structural mutation may happen while the audio thread is inside Process.
// Mutators therefore never edit the live slice: they build a copy under the
// mutex and publish it through an atomic pointer, so Process always sees
// either the pre- or post-mutation list, never a half-linked one.
type Chain struct {
	mu       sync.Mutex
	effects  atomic.Pointer[[]Effect]
	volume   atomic.Uint64 // math.Float64bits of the master volume
	onChange func()
}

// NewChain creates an empty chain at unity master volume.
func NewChain() *Chain {
	c := &Chain{}
	empty := make([]Effect, 0)
	c.effects.Store(&empty)
	c.SetVolume(1)
	return c
}

// OnChange registers a callback fired after every structural mutation.
// Intended for the UI collaborator; called on the mutating goroutine.
func (c *Chain) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Effects returns the current snapshot. Callers must not modify it.
func (c *Chain) Effects() []Effect {
	return *c.effects.Load()
}

// Len returns the number of effects in the chain.
func (c *Chain) Len() int {
	return len(*c.effects.Load())
}

// SetVolume sets the master volume, clamped to 0..2.
func (c *Chain) SetVolume(v float64) {
	c.volume.Store(floatBits(clampRange(v, 0, 2)))
}

// Volume returns the master volume.
func (c *Chain) Volume() float64 {
	return floatFromBits(c.volume.Load())
}

// Add appends an effect. Adding an effect already present is a no-op.
func (c *Chain) Add(e Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.effects.Load()
	if indexOf(cur, e) >= 0 {
		return
	}
	next := make([]Effect, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = e
	c.publish(next)
}

// Insert places an effect at index, clamped into range. Inserting an
// effect already present is a no-op.
func (c *Chain) Insert(index int, e Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.effects.Load()
	if indexOf(cur, e) >= 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(cur) {
		index = len(cur)
	}
	next := make([]Effect, 0, len(cur)+1)
	next = append(next, cur[:index]...)
	next = append(next, e)
	next = append(next, cur[index:]...)
	c.publish(next)
}

// Remove drops an effect by identity. Removing an absent effect is a no-op.
func (c *Chain) Remove(e Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.effects.Load()
	i := indexOf(cur, e)
	if i < 0 {
		return
	}
	next := make([]Effect, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	c.publish(next)
}

// Move relocates the effect at from to position to, preserving the relative
// order of everything else. Out-of-range indices and from == to are no-ops.
func (c *Chain) Move(from, to int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.effects.Load()
	if from == to || from < 0 || to < 0 || from >= len(cur) || to >= len(cur) {
		return
	}
	next := make([]Effect, 0, len(cur))
	next = append(next, cur...)
	e := next[from]
	next = append(next[:from], next[from+1:]...)

	rest := make([]Effect, 0, len(cur))
	rest = append(rest, next[:to]...)
	rest = append(rest, e)
	rest = append(rest, next[to:]...)
	c.publish(rest)
}

// publish swaps in the new snapshot and fires the change callback.
// Caller holds c.mu.
func (c *Chain) publish(next []Effect) {
	c.effects.Store(&next)
	if c.onChange != nil {
		c.onChange()
	}
}

// SetSampleRate pushes a new sample rate to every rate-dependent effect in
// the chain. Meant for the control thread while streams are stopped, after
// the engine learns which rate the device actually runs at.
func (c *Chain) SetSampleRate(sampleRate float64) {
	for _, e := range *c.effects.Load() {
		if ra, ok := e.(RateAware); ok {
			ra.SetSampleRate(sampleRate)
		}
	}
}

// Process runs every enabled effect in order, then applies master volume.
// Disabled effects are skipped outright so their internal state freezes.
func (c *Chain) Process(buf []float32) {
	effects := *c.effects.Load()
	for _, e := range effects {
		if e.Enabled() {
			e.Process(buf)
		}
	}
	if v := c.Volume(); v != 1 {
		for i := range buf {
			buf[i] = clamp1(float32(float64(buf[i]) * v))
		}
	}
}

func indexOf(effects []Effect, e Effect) int {
	for i, cur := range effects {
		if cur == e {
			return i
		}
	}
	return -1
}
