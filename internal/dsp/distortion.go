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

// Distortion is a tanh soft clipper with drive-dependent loudness
// compensation and a one-pole tone filter. The clipper runs at 2x the
// sample rate by averaging an intra-sample midpoint, which knocks down the
// worst of the clipping aliases.
type Distortion struct {
	base

	// Drive sets the clipping intensity, 0..1.
	Drive float64
	// ToneHz is the tone low-pass cutoff.
	ToneHz float64

	sampleRate float64
	prevIn     float64
	toneState  float64

	toneCoeff float64
	lastTone  float64
	lastRate  float64
}

// NewDistortion creates a distortion stage for the given sample rate.
func NewDistortion(sampleRate float64) *Distortion {
	return &Distortion{
		base:       base{name: "distortion", enabled: true},
		Drive:      0.5,
		ToneHz:     4000,
		sampleRate: sampleRate,
	}
}

// SetSampleRate moves the tone filter to a new rate.
func (d *Distortion) SetSampleRate(sampleRate float64) {
	d.sampleRate = sampleRate
}

func (d *Distortion) updateCoeffs() {
	if d.ToneHz == d.lastTone && d.sampleRate == d.lastRate {
		return
	}
	d.toneCoeff = cutoffCoeff(d.ToneHz, d.sampleRate)
	d.lastTone = d.ToneHz
	d.lastRate = d.sampleRate
}

func (d *Distortion) Process(buf []float32) {
	d.updateCoeffs()

	drive := clampRange(d.Drive, 0, 1)
	gain := 1 + drive*24
	comp := 1 / math.Sqrt(gain)

	clip := func(v float64) float64 {
		return math.Tanh(gain*clamp1f(v)) * comp
	}

	for i := range buf {
		x := float64(buf[i])

		// 2x oversampling by averaging the intra-sample midpoint.
		mid := (d.prevIn + x) * 0.5
		y := (clip(mid) + clip(x)) * 0.5
		d.prevIn = x

		d.toneState += d.toneCoeff * (y - d.toneState)
		buf[i] = float32(d.toneState)
	}
}
