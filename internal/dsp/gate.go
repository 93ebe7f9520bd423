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

// NoiseGate mutes the signal while its envelope stays below the threshold.
// Hysteresis (a lower close threshold) plus a hold counter keep the gate
// from chattering on decaying transients.
type NoiseGate struct {
	base

	// OpenThreshold is the linear level that opens the gate.
	OpenThreshold float64
	// CloseThreshold is the lower linear level that starts the hold
	// countdown. Values >= OpenThreshold are treated as OpenThreshold*0.5.
	CloseThreshold float64
	// Attack and Release shape the gain ramp in seconds.
	Attack  float64
	Release float64
	// Hold is how long the gate stays open after the envelope drops below
	// CloseThreshold, in seconds.
	Hold float64

	sampleRate float64
	env        float64
	gain       float64
	open       bool
	holdLeft   int

	envCoeff     float64
	attackCoeff  float64
	releaseCoeff float64
	holdSamples  int
	lastAttack   float64
	lastRelease  float64
	lastHold     float64
	lastRate     float64
}

// NewNoiseGate creates a gate with guitar-friendly defaults.
func NewNoiseGate(sampleRate float64) *NoiseGate {
	return &NoiseGate{
		base:           base{name: "noisegate", enabled: true},
		OpenThreshold:  0.02,
		CloseThreshold: 0.01,
		Attack:         0.002,
		Release:        0.050,
		Hold:           0.050,
		sampleRate:     sampleRate,
	}
}

// Open reports whether the gate is currently passing signal.
func (g *NoiseGate) Open() bool { return g.open }

// GainReductionDB reports the attenuation currently applied, as a positive
// dB amount.
func (g *NoiseGate) GainReductionDB() float64 {
	return -linToDB(g.gain)
}

// SetSampleRate rescales the envelope, ramp and hold times to a new rate.
func (g *NoiseGate) SetSampleRate(sampleRate float64) {
	g.sampleRate = sampleRate
}

func (g *NoiseGate) updateCoeffs() {
	if g.Attack == g.lastAttack && g.Release == g.lastRelease &&
		g.Hold == g.lastHold && g.sampleRate == g.lastRate {
		return
	}
	// ~2 ms envelope smoothing regardless of attack/release settings.
	g.envCoeff = onePoleCoeff(0.002, g.sampleRate)
	g.attackCoeff = onePoleCoeff(g.Attack, g.sampleRate)
	g.releaseCoeff = onePoleCoeff(g.Release, g.sampleRate)
	g.holdSamples = int(g.Hold * g.sampleRate)
	g.lastAttack = g.Attack
	g.lastRelease = g.Release
	g.lastHold = g.Hold
	g.lastRate = g.sampleRate
}

func (g *NoiseGate) Process(buf []float32) {
	g.updateCoeffs()

	closeAt := g.CloseThreshold
	if closeAt >= g.OpenThreshold {
		closeAt = g.OpenThreshold * 0.5
	}

	for i := range buf {
		x := float64(buf[i])
		g.env += g.envCoeff * (abs64(x) - g.env)

		if g.open {
			if g.env < closeAt {
				g.holdLeft--
				if g.holdLeft <= 0 {
					g.open = false
				}
			} else {
				g.holdLeft = g.holdSamples
			}
		} else if g.env > g.OpenThreshold {
			g.open = true
			g.holdLeft = g.holdSamples
		}

		target := 0.0
		if g.open {
			target = 1.0
		}
		if target > g.gain {
			g.gain += g.attackCoeff * (target - g.gain)
		} else {
			g.gain += g.releaseCoeff * (target - g.gain)
		}

		buf[i] = float32(x * g.gain)
	}
}
