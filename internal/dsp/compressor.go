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

// Compressor is a feed-forward peak compressor working in the dB domain.
// The envelope follower has independent attack/release time constants and
// the gain computer uses a quadratic soft knee around the threshold.
type Compressor struct {
	base

	// ThresholdDB is the level above which gain reduction starts.
	ThresholdDB float64
	// Ratio is the compression ratio, 1 = pass-through.
	Ratio float64
	// KneeDB is the full width of the soft-knee region in dB.
	KneeDB float64
	// Attack and Release are envelope time constants in seconds.
	Attack  float64
	Release float64
	// MakeupDB is applied after gain reduction.
	MakeupDB float64

	sampleRate float64
	envDB      float64
	reduction  float64

	attackCoeff  float64
	releaseCoeff float64
	lastAttack   float64
	lastRelease  float64
	lastRate     float64
}

// NewCompressor creates a compressor with moderate defaults for the given
// sample rate.
func NewCompressor(sampleRate float64) *Compressor {
	return &Compressor{
		base:        base{name: "compressor", enabled: true},
		ThresholdDB: -20,
		Ratio:       4,
		KneeDB:      6,
		Attack:      0.005,
		Release:     0.100,
		sampleRate:  sampleRate,
		envDB:       -96,
	}
}

// GainReductionDB reports the current reduction as a positive dB amount.
func (c *Compressor) GainReductionDB() float64 {
	return c.reduction
}

// SetSampleRate rescales the attack/release time constants to a new rate.
func (c *Compressor) SetSampleRate(sampleRate float64) {
	c.sampleRate = sampleRate
}

func (c *Compressor) updateCoeffs() {
	if c.Attack == c.lastAttack && c.Release == c.lastRelease && c.sampleRate == c.lastRate {
		return
	}
	c.attackCoeff = onePoleCoeff(c.Attack, c.sampleRate)
	c.releaseCoeff = onePoleCoeff(c.Release, c.sampleRate)
	c.lastAttack = c.Attack
	c.lastRelease = c.Release
	c.lastRate = c.sampleRate
}

// computeGainDB maps an envelope level to an output level through the
// soft-knee gain curve.
func (c *Compressor) computeGainDB(levelDB float64) float64 {
	ratio := c.Ratio
	if ratio < 1 {
		ratio = 1
	}
	knee := c.KneeDB
	over := levelDB - c.ThresholdDB

	switch {
	case knee > 0 && 2*over < -knee:
		return levelDB
	case knee > 0 && 2*over <= knee:
		// quadratic interpolation between straight-through and full ratio
		t := over + knee/2
		return levelDB + (1/ratio-1)*t*t/(2*knee)
	case over <= 0:
		return levelDB
	default:
		return c.ThresholdDB + over/ratio
	}
}

func (c *Compressor) Process(buf []float32) {
	c.updateCoeffs()
	makeup := dbToLin(c.MakeupDB)

	for i := range buf {
		x := float64(buf[i])
		levelDB := linToDB(abs64(x))

		if levelDB > c.envDB {
			c.envDB += c.attackCoeff * (levelDB - c.envDB)
		} else {
			c.envDB += c.releaseCoeff * (levelDB - c.envDB)
		}

		reductionDB := c.envDB - c.computeGainDB(c.envDB)
		if reductionDB < 0 {
			reductionDB = 0
		}
		c.reduction = reductionDB

		y := x * dbToLin(-reductionDB) * makeup
		buf[i] = float32(clamp1f(y))
	}
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
