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

// Package dsp implements the mono float32 effect units and the effect chain
// that the audio engine runs once per driver callback.
//
// All effects process buffers in place and never allocate inside Process.
// Parameter fields are plain scalars that the control thread may write while
// the audio thread is processing; a change may land one buffer late or
// mid-buffer, which is accepted, but it never corrupts filter state.
package dsp

import "math"

// Effect is a mono audio processor in the chain.
type Effect interface {
	// Name returns a stable identifier used by profiles and the UI.
	Name() string

	// Enabled reports whether Process should run. Disabled effects are
	// skipped entirely so effects with memory (delay, reverb) freeze their
	// tails instead of draining them.
	Enabled() bool

	// SetEnabled toggles the effect.
	SetEnabled(enabled bool)

	// Process transforms samples in place. It must tolerate an empty buffer
	// and must not touch anything beyond len(buf).
	Process(buf []float32)

	// GainReductionDB returns the current metering value for dynamics
	// effects, 0 for everything else.
	GainReductionDB() float64
}

// RateAware is implemented by effects whose coefficients or delay lines
// depend on the sample rate. The engine pushes the negotiated rate through
// Chain.SetSampleRate after device negotiation, before streams run.
type RateAware interface {
	SetSampleRate(sampleRate float64)
}

// base carries the name/enabled plumbing shared by every effect.
type base struct {
	name    string
	enabled bool
}

func (b *base) Name() string            { return b.name }
func (b *base) Enabled() bool           { return b.enabled }
func (b *base) SetEnabled(enabled bool) { b.enabled = enabled }
func (b *base) GainReductionDB() float64 {
	return 0
}

func clamp1(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func clamp1f(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// dbToLin converts decibels to a linear amplitude factor.
func dbToLin(db float64) float64 {
	return math.Pow(10, db/20)
}

// linToDB converts a linear amplitude to decibels, floored so silence does
// not produce -Inf.
func linToDB(lin float64) float64 {
	if lin < 1e-9 {
		lin = 1e-9
	}
	return 20 * math.Log10(lin)
}

// onePoleCoeff returns the smoothing coefficient for a one-pole filter with
// the given time constant in seconds.
func onePoleCoeff(seconds, sampleRate float64) float64 {
	if seconds <= 0 || sampleRate <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(seconds*sampleRate))
}

// cutoffCoeff returns the coefficient for a one-pole low-pass at the given
// cutoff frequency.
func cutoffCoeff(freq, sampleRate float64) float64 {
	if freq <= 0 || sampleRate <= 0 {
		return 1
	}
	return 1 - math.Exp(-2*math.Pi*freq/sampleRate)
}

func floatBits(v float64) uint64     { return math.Float64bits(v) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }
