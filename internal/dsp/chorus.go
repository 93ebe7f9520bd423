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

import "math"

const (
	chorusBaseDelay = 0.020 // seconds, center of the modulated read tap
	chorusMaxSweep  = 0.008 // seconds, maximum LFO excursion at Depth=1
)

// Chorus modulates a delayed copy of the signal with a sinusoidal LFO and
// mixes it back in. Fractional read positions are interpolated with a
// 4-point Hermite kernel, which stays clean under fast modulation where
// linear interpolation would dull the highs.
type Chorus struct {
	base

	// Rate is the LFO frequency in Hz, clamped to 0.1..5.
	Rate float64
	// Depth scales the sweep excursion, 0..1.
	Depth float64
	// Mix is the wet fraction, 0..1.
	Mix float64

	sampleRate float64
	buf        []float32
	writeIdx   int
	phase      float64
}

// NewChorus creates a chorus for the given sample rate.
func NewChorus(sampleRate float64) *Chorus {
	return &Chorus{
		base:       base{name: "chorus", enabled: true},
		Rate:       0.8,
		Depth:      0.5,
		Mix:        0.5,
		sampleRate: sampleRate,
		buf:        make([]float32, int((chorusBaseDelay+chorusMaxSweep)*maxSampleRate)+8),
	}
}

// SetSampleRate rescales the base delay, sweep excursion and LFO increment
// to a new rate. The line is sized for the maximum supported rate.
func (c *Chorus) SetSampleRate(sampleRate float64) {
	c.sampleRate = sampleRate
}

// hermite performs 4-point, 3rd-order Hermite interpolation between x0 and
// x1 at fractional position frac.
func hermite(frac, xm1, x0, x1, x2 float64) float64 {
	c := (x1 - xm1) * 0.5
	v := x0 - x1
	w := c + v
	a := w + v + (x2-x0)*0.5
	b := w + a
	return ((a*frac-b)*frac+c)*frac + x0
}

func (c *Chorus) Process(buf []float32) {
	rate := clampRange(c.Rate, 0.1, 5)
	depth := clampRange(c.Depth, 0, 1)
	mix := clampRange(c.Mix, 0, 1)

	size := len(c.buf)
	baseDelay := chorusBaseDelay * c.sampleRate
	sweep := depth * chorusMaxSweep * c.sampleRate
	phaseInc := 2 * math.Pi * rate / c.sampleRate

	for i := range buf {
		x := buf[i]
		c.buf[c.writeIdx] = x

		delay := baseDelay + sweep*(0.5+0.5*math.Sin(c.phase))
		c.phase += phaseInc
		if c.phase > 2*math.Pi {
			c.phase -= 2 * math.Pi
		}

		intDelay := int(delay)
		frac := delay - float64(intDelay)

		read := func(offset int) float64 {
			idx := c.writeIdx - offset
			if idx < 0 {
				idx += size
			}
			return float64(c.buf[idx])
		}

		// taps around writeIdx-intDelay, newest to oldest
		xm1 := read(intDelay - 1)
		x0 := read(intDelay)
		x1 := read(intDelay + 1)
		x2 := read(intDelay + 2)
		wet := hermite(frac, xm1, x0, x1, x2)

		c.writeIdx++
		if c.writeIdx == size {
			c.writeIdx = 0
		}

		buf[i] = float32(clamp1f(float64(x)*(1-mix) + wet*mix))
	}
}
