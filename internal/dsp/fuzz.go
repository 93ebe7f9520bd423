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

// Fuzz models a transistor fuzz box: a squared-mask input gate kills
// sub-threshold noise, an asymmetric tanh clipper (positive half driven
// harder) mimics transistor asymmetry, and a tone low-pass plus one-pole DC
// blocker clean up the result.
//
// The effect keeps two independent state channels and assigns interleaved
// samples alternately, so it behaves on stereo-interleaved buffers without
// smearing channels. On mono buffers the two channels simply share the
// load sample by sample.
type Fuzz struct {
	base

	// Drive sets the clipping intensity, 0..1.
	Drive float64
	// GateLevel is the linear input level below which the mask closes.
	GateLevel float64
	// ToneHz is the tone low-pass cutoff.
	ToneHz float64

	sampleRate float64
	ch         [2]fuzzChannel

	gateAttack  float64
	gateRelease float64
	toneCoeff   float64
	dcCoeff     float64
	lastTone    float64
	lastRate    float64
}

type fuzzChannel struct {
	env       float64
	toneState float64
	dcIn      float64
	dcOut     float64
}

// NewFuzz creates a fuzz stage for the given sample rate.
func NewFuzz(sampleRate float64) *Fuzz {
	return &Fuzz{
		base:       base{name: "fuzz", enabled: true},
		Drive:      0.6,
		GateLevel:  0.01,
		ToneHz:     3000,
		sampleRate: sampleRate,
	}
}

// SetSampleRate moves the gate envelope, tone and DC-block filters to a
// new rate.
func (f *Fuzz) SetSampleRate(sampleRate float64) {
	f.sampleRate = sampleRate
}

func (f *Fuzz) updateCoeffs() {
	if f.ToneHz == f.lastTone && f.sampleRate == f.lastRate {
		return
	}
	// fast attack so picked notes open the mask instantly, slow release so
	// it does not flutter on vibrato
	f.gateAttack = onePoleCoeff(0.0005, f.sampleRate)
	f.gateRelease = onePoleCoeff(0.040, f.sampleRate)
	f.toneCoeff = cutoffCoeff(f.ToneHz, f.sampleRate)
	f.dcCoeff = 1 - 2*math.Pi*10/f.sampleRate
	f.lastTone = f.ToneHz
	f.lastRate = f.sampleRate
}

func (f *Fuzz) Process(buf []float32) {
	f.updateCoeffs()

	drive := clampRange(f.Drive, 0, 1)
	gain := 1 + drive*40
	comp := 1 / math.Sqrt(gain)
	gateSq := f.GateLevel * f.GateLevel

	for i := range buf {
		c := &f.ch[i&1]
		x := float64(buf[i])

		// input gate: squared-envelope mask with asymmetric attack/release
		a := abs64(x)
		if a > c.env {
			c.env += f.gateAttack * (a - c.env)
		} else {
			c.env += f.gateRelease * (a - c.env)
		}
		envSq := c.env * c.env
		mask := envSq / (envSq + gateSq)
		x *= mask

		// asymmetric clipping, positive half harder
		var y float64
		if x >= 0 {
			y = math.Tanh(gain * 1.5 * x)
		} else {
			y = math.Tanh(gain * x)
		}
		y *= comp

		// tone then DC block
		c.toneState += f.toneCoeff * (y - c.toneState)
		out := c.toneState - c.dcIn + f.dcCoeff*c.dcOut
		c.dcIn = c.toneState
		c.dcOut = out

		buf[i] = float32(clamp1f(out))
	}
}
