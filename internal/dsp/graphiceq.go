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

// NumGraphicBands is the number of octave bands in the graphic EQ.
const NumGraphicBands = 10

// GraphicBandCenters lists the ISO octave center frequencies in Hz.
var GraphicBandCenters = [NumGraphicBands]float64{
	31, 62, 125, 250, 500, 1000, 2000, 4000, 8000, 16000,
}

// graphicQ is the quality factor for one-octave peaking bands.
const graphicQ = 1.41

// unityBypassDB is the band gain magnitude below which a band is skipped
// outright. Running a peaking biquad at exactly 0 dB only adds rounding
// noise.
const unityBypassDB = 0.05

// GraphicEQ is a ten-band octave graphic equalizer built from cascaded RBJ
// peaking biquads. Coefficients are recomputed only when a band gain or the
// sample rate changes.
type GraphicEQ struct {
	base

	sampleRate float64
	bands      [NumGraphicBands]graphicBand
}

type graphicBand struct {
	gainDB   float64
	bq       biquad
	lastGain float64
	lastRate float64
	active   bool
}

// NewGraphicEQ creates a flat graphic EQ for the given sample rate.
func NewGraphicEQ(sampleRate float64) *GraphicEQ {
	eq := &GraphicEQ{
		base:       base{name: "graphiceq", enabled: true},
		sampleRate: sampleRate,
	}
	return eq
}

// SetBandGain sets one band's gain in dB, clamped to +/-15.
func (g *GraphicEQ) SetBandGain(band int, gainDB float64) {
	if band < 0 || band >= NumGraphicBands {
		return
	}
	g.bands[band].gainDB = clampRange(gainDB, -15, 15)
}

// BandGain returns one band's gain in dB.
func (g *GraphicEQ) BandGain(band int) float64 {
	if band < 0 || band >= NumGraphicBands {
		return 0
	}
	return g.bands[band].gainDB
}

// SetSampleRate retunes every band for a new rate. Bands pushed past
// Nyquist by a lower rate drop out on the next Process.
func (g *GraphicEQ) SetSampleRate(sampleRate float64) {
	g.sampleRate = sampleRate
}

func (g *GraphicEQ) updateBand(i int) {
	b := &g.bands[i]
	if b.gainDB == b.lastGain && g.sampleRate == b.lastRate {
		return
	}
	center := GraphicBandCenters[i]
	// Bands at or beyond Nyquist are unusable at low sample rates.
	usable := center < g.sampleRate*0.45
	b.active = usable && (b.gainDB > unityBypassDB || b.gainDB < -unityBypassDB)
	if b.active {
		b.bq.setPeaking(g.sampleRate, center, graphicQ, b.gainDB)
	} else {
		b.bq.reset()
	}
	b.lastGain = b.gainDB
	b.lastRate = g.sampleRate
}

func (g *GraphicEQ) Process(buf []float32) {
	for i := range g.bands {
		g.updateBand(i)
	}
	for i := range g.bands {
		b := &g.bands[i]
		if !b.active {
			continue
		}
		for j := range buf {
			buf[j] = float32(b.bq.process(float64(buf[j])))
		}
	}
}
