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

// EQ3 is a three-band tone stack. Two cascaded one-pole low-pass splitters
// carve the spectrum into low/mid/high bands which are scaled independently
// and summed back together. Each knob spans -1..1 for roughly +/-16 dB
// (10^(0.8*knob)).
type EQ3 struct {
	base

	// Low, Mid, High are band knobs in -1..1, 0 = flat.
	Low  float64
	Mid  float64
	High float64

	// LowFreq and HighFreq are the splitter crossover points in Hz.
	LowFreq  float64
	HighFreq float64

	sampleRate float64

	// splitter state and memoized coefficients
	lpLow    float64
	lpHigh   float64
	coeffLow float64
	coeffHi  float64
	lastLow  float64
	lastHigh float64
	lastRate float64
}

// NewEQ3 creates a flat three-band EQ for the given sample rate.
func NewEQ3(sampleRate float64) *EQ3 {
	return &EQ3{
		base:       base{name: "eq3", enabled: true},
		LowFreq:    250,
		HighFreq:   4000,
		sampleRate: sampleRate,
	}
}

// SetSampleRate moves the splitter crossovers to a new rate. Coefficients
// are recomputed on the next Process.
func (e *EQ3) SetSampleRate(sampleRate float64) {
	e.sampleRate = sampleRate
}

func (e *EQ3) updateCoeffs() {
	if e.LowFreq == e.lastLow && e.HighFreq == e.lastHigh && e.sampleRate == e.lastRate {
		return
	}
	e.coeffLow = cutoffCoeff(e.LowFreq, e.sampleRate)
	e.coeffHi = cutoffCoeff(e.HighFreq, e.sampleRate)
	e.lastLow = e.LowFreq
	e.lastHigh = e.HighFreq
	e.lastRate = e.sampleRate
}

func (e *EQ3) Process(buf []float32) {
	e.updateCoeffs()

	gainLow := math.Pow(10, 0.8*clampRange(e.Low, -1, 1))
	gainMid := math.Pow(10, 0.8*clampRange(e.Mid, -1, 1))
	gainHigh := math.Pow(10, 0.8*clampRange(e.High, -1, 1))

	for i := range buf {
		x := float64(buf[i])

		e.lpLow += e.coeffLow * (x - e.lpLow)
		e.lpHigh += e.coeffHi * (x - e.lpHigh)

		low := e.lpLow
		high := x - e.lpHigh
		mid := x - low - high

		buf[i] = float32(low*gainLow + mid*gainMid + high*gainHigh)
	}
}
