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

// Package metronome generates a click track mixed after the recorder tap,
// so the click is audible but never recorded.
package metronome

import (
	"math"
	"sync"
)

const (
	MinBPM = 30
	MaxBPM = 300

	minBeatsPerBar = 1
	maxBeatsPerBar = 16

	// Click envelope: short linear attack, exponential decay.
	clickAttackSec = 0.001
	clickDecaySec  = 0.016

	downbeatHz = 880
	beatHz     = 660
)

// Metronome is a sample-accurate click generator. Beat timing is kept as a
// fractional sample count, so no drift accumulates no matter how the beat
// period divides the callback size.
type Metronome struct {
	mu sync.Mutex

	enabled     bool
	bpm         float64
	beatsPerBar int
	volume      float64
	sampleRate  float64

	onBeat func(beat int)

	// Position in the current beat period, in samples.
	phase float64
	beat  int

	// Active click voice.
	clickPos    int
	clickLen    int
	attackLen   int
	clickFreq   float64
	clickOctave bool
}

// New creates a disabled metronome at 120 BPM, 4/4, full volume.
func New() *Metronome {
	return &Metronome{
		bpm:         120,
		beatsPerBar: 4,
		volume:      1,
		sampleRate:  48000,
		beat:        -1,
	}
}

// SetSampleRate updates the sample rate and cancels any sounding click.
func (m *Metronome) SetSampleRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate > 0 {
		m.sampleRate = rate
	}
	m.clickPos = 0
	m.clickLen = 0
}

// Reset rewinds to just before the downbeat: the first click after Reset
// is beat 0.
func (m *Metronome) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = 0
	m.beat = -1
	m.clickPos = 0
	m.clickLen = 0
}

// SetEnabled toggles the click. Enabling restarts from the downbeat.
func (m *Metronome) SetEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on && !m.enabled {
		m.phase = 0
		m.beat = -1
		m.clickPos = 0
		m.clickLen = 0
	}
	m.enabled = on
}

// Enabled reports whether the click is active.
func (m *Metronome) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetBPM sets the tempo, clamped to [MinBPM, MaxBPM]. Takes effect on the
// next beat boundary.
func (m *Metronome) SetBPM(bpm float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bpm < MinBPM {
		bpm = MinBPM
	} else if bpm > MaxBPM {
		bpm = MaxBPM
	}
	m.bpm = bpm
}

// BPM returns the tempo.
func (m *Metronome) BPM() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bpm
}

// SetBeatsPerBar sets the bar length, clamped to [1, 16].
func (m *Metronome) SetBeatsPerBar(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < minBeatsPerBar {
		n = minBeatsPerBar
	} else if n > maxBeatsPerBar {
		n = maxBeatsPerBar
	}
	m.beatsPerBar = n
}

// BeatsPerBar returns the bar length.
func (m *Metronome) BeatsPerBar() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beatsPerBar
}

// SetVolume sets the click level, clamped to 0..1.
func (m *Metronome) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	m.volume = v
}

// Volume returns the click level.
func (m *Metronome) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Beat returns the last fired beat index within the bar, -1 before the
// first beat.
func (m *Metronome) Beat() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.beat
}

// OnBeat registers a callback fired from the audio thread on every beat.
// It must not block.
func (m *Metronome) OnBeat(fn func(beat int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBeat = fn
}

// Process mixes the click into buf in place. A no-op when disabled or
// effectively silent.
func (m *Metronome) Process(buf []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || m.volume < 1e-4 {
		return
	}

	period := 60.0 / m.bpm * m.sampleRate

	for i := range buf {
		m.phase++
		if m.phase >= period {
			// Decrement, never reset: the fractional remainder carries
			// into the next period.
			m.phase -= period
			m.beat = (m.beat + 1) % m.beatsPerBar
			m.startClickLocked(m.beat == 0)
			if m.onBeat != nil {
				m.onBeat(m.beat)
			}
		}
		if m.clickPos < m.clickLen {
			buf[i] = clamp1(buf[i] + float32(m.clickSampleLocked()))
			m.clickPos++
		}
	}
}

// startClickLocked arms a click voice. The downbeat gets an octave partial
// on top of the fundamental so bar starts stand out.
func (m *Metronome) startClickLocked(downbeat bool) {
	m.clickPos = 0
	m.clickLen = int((clickAttackSec + 6*clickDecaySec) * m.sampleRate)
	m.attackLen = int(clickAttackSec * m.sampleRate)
	if m.attackLen < 1 {
		m.attackLen = 1
	}
	if downbeat {
		m.clickFreq = downbeatHz
		m.clickOctave = true
	} else {
		m.clickFreq = beatHz
		m.clickOctave = false
	}
}

// clickSampleLocked synthesizes the next sample of the active click voice.
func (m *Metronome) clickSampleLocked() float64 {
	t := float64(m.clickPos) / m.sampleRate

	env := 1.0
	if m.clickPos < m.attackLen {
		env = float64(m.clickPos) / float64(m.attackLen)
	} else {
		env = math.Exp(-(t - clickAttackSec) / clickDecaySec)
	}

	s := math.Sin(2 * math.Pi * m.clickFreq * t)
	if m.clickOctave {
		s = 0.7*s + 0.3*math.Sin(2*math.Pi*m.clickFreq*2*t)
	}
	return s * env * m.volume * 0.5
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
