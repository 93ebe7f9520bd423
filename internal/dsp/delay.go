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

const (
	// maxDelaySeconds bounds the delay line so the buffer can be sized once
	// at construction for any supported rate.
	maxDelaySeconds = 2.0
	maxSampleRate   = 192000
)

// Delay is a feedback delay line. The feedback path is high-passed at
// ~80 Hz so repeated lows do not pile up, and feedback is clamped to 0.95
// so the line can never self-oscillate into clipping.
type Delay struct {
	base

	// Time is the delay time in seconds, re-derived from the sample rate on
	// every call so rate changes take effect immediately.
	Time float64
	// Feedback is the regeneration amount, clamped to 0..0.95.
	Feedback float64
	// Mix is the wet fraction, 0..1.
	Mix float64

	sampleRate float64
	buf        []float32
	writeIdx   int
	fbLowState float64

	fbHighCoeff float64
	lastRate    float64
}

// NewDelay creates a delay for the given sample rate. The line is sized for
// the maximum supported rate so a later rate change never overruns it.
func NewDelay(sampleRate float64) *Delay {
	return &Delay{
		base:       base{name: "delay", enabled: true},
		Time:       0.350,
		Feedback:   0.35,
		Mix:        0.35,
		sampleRate: sampleRate,
		buf:        make([]float32, int(maxDelaySeconds*maxSampleRate)),
	}
}

// SetSampleRate re-derives the delay in samples at the new rate. The line
// is already sized for the maximum supported rate, so no reallocation.
func (d *Delay) SetSampleRate(sampleRate float64) {
	d.sampleRate = sampleRate
}

func (d *Delay) Process(buf []float32) {
	if d.sampleRate != d.lastRate {
		d.fbHighCoeff = cutoffCoeff(80, d.sampleRate)
		d.lastRate = d.sampleRate
	}

	delaySamples := int(clampRange(d.Time, 0, maxDelaySeconds) * d.sampleRate)
	if delaySamples < 1 {
		delaySamples = 1
	}
	if delaySamples >= len(d.buf) {
		delaySamples = len(d.buf) - 1
	}

	feedback := clampRange(d.Feedback, 0, 0.95)
	mix := clampRange(d.Mix, 0, 1)
	size := len(d.buf)

	for i := range buf {
		x := float64(buf[i])

		readIdx := d.writeIdx - delaySamples
		if readIdx < 0 {
			readIdx += size
		}
		wet := float64(d.buf[readIdx])

		// high-pass the feedback tap to stop low-frequency buildup
		d.fbLowState += d.fbHighCoeff * (wet - d.fbLowState)
		fb := wet - d.fbLowState

		d.buf[d.writeIdx] = float32(clamp1f(x + fb*feedback))
		d.writeIdx++
		if d.writeIdx == size {
			d.writeIdx = 0
		}

		buf[i] = float32(clamp1f(x*(1-mix) + wet*mix))
	}
}
