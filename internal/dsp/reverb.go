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

// Schroeder reverb: a parallel bank of damped feedback combs summed into
// two series all-pass diffusers. Delay lengths are mutually prime-ish so
// the comb resonances do not stack, and are rescaled from their 44.1 kHz
// reference values for other rates. Every delay-line write is clamped so a
// hot input can never push the tank into runaway.

// reference lengths at 44.1 kHz
var (
	reverbCombLengths    = [6]int{1116, 1188, 1277, 1356, 1422, 1491}
	reverbAllpassLengths = [2]int{556, 441}
)

// Reverb adds diffuse decay to the signal.
type Reverb struct {
	base

	// Decay sets the tail length, 0..1.
	Decay float64
	// Damping rolls highs off the tail, 0..1.
	Damping float64
	// Mix is the wet fraction, 0..1.
	Mix float64

	sampleRate float64
	combs      [6]comb
	allpasses  [2]allpass
}

type comb struct {
	buf         []float32
	idx         int
	filterState float64
}

type allpass struct {
	buf []float32
	idx int
}

// NewReverb creates a reverb sized for the given sample rate.
func NewReverb(sampleRate float64) *Reverb {
	r := &Reverb{
		base:    base{name: "reverb", enabled: true},
		Decay:   0.5,
		Damping: 0.4,
		Mix:     0.3,
	}
	r.SetSampleRate(sampleRate)
	return r
}

// SetSampleRate resizes the tank's delay lines for a new rate. The tail is
// cleared; comb state carries no meaning across a rate change.
func (r *Reverb) SetSampleRate(sampleRate float64) {
	if sampleRate == r.sampleRate {
		return
	}
	r.sampleRate = sampleRate
	scale := sampleRate / 44100
	for i := range r.combs {
		n := int(float64(reverbCombLengths[i]) * scale)
		if n < 1 {
			n = 1
		}
		r.combs[i] = comb{buf: make([]float32, n)}
	}
	for i := range r.allpasses {
		n := int(float64(reverbAllpassLengths[i]) * scale)
		if n < 1 {
			n = 1
		}
		r.allpasses[i] = allpass{buf: make([]float32, n)}
	}
}

func (c *comb) process(x, feedback, damping float64) float64 {
	out := float64(c.buf[c.idx])
	c.filterState = out*(1-damping) + c.filterState*damping
	c.buf[c.idx] = float32(clamp1f(x + c.filterState*feedback))
	c.idx++
	if c.idx == len(c.buf) {
		c.idx = 0
	}
	return out
}

func (a *allpass) process(x float64) float64 {
	bufOut := float64(a.buf[a.idx])
	out := bufOut - x
	a.buf[a.idx] = float32(clamp1f(x + bufOut*0.5))
	a.idx++
	if a.idx == len(a.buf) {
		a.idx = 0
	}
	return out
}

func (r *Reverb) Process(buf []float32) {
	feedback := 0.7 + 0.28*clampRange(r.Decay, 0, 1)
	damping := clampRange(r.Damping, 0, 1) * 0.8
	mix := clampRange(r.Mix, 0, 1)

	for i := range buf {
		x := float64(buf[i])

		wet := 0.0
		for j := range r.combs {
			wet += r.combs[j].process(x, feedback, damping)
		}
		wet /= float64(len(r.combs))

		for j := range r.allpasses {
			wet = r.allpasses[j].process(wet)
		}

		buf[i] = float32(clamp1f(x*(1-mix) + wet*mix))
	}
}
