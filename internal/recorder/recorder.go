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

// Package recorder captures the processed mono stream, plays it back and
// exports it as WAV.
//
// The mutex here is the one lock the audio thread is allowed to take: it is
// only ever held for an O(count) copy, never for I/O.
package recorder

import (
	"errors"
	"sync"
)

// ErrEmpty is returned by playback and export when nothing is recorded.
var ErrEmpty = errors.New("recorder: no recording")

// State is the recorder transport state.
type State int

const (
	Idle State = iota
	Recording
	Playing
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// Recorder is a thread-safe capture/playback sample store.
type Recorder struct {
	mu      sync.Mutex
	state   State
	samples []float32
	cursor  int
}

// New creates an idle recorder.
func New() *Recorder {
	return &Recorder{}
}

// State returns the transport state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Recording reports whether samples are being captured.
func (r *Recorder) Recording() bool { return r.State() == Recording }

// Playing reports whether playback is active.
func (r *Recorder) Playing() bool { return r.State() == Playing }

// HasRecording reports whether the store holds any samples.
func (r *Recorder) HasRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) > 0
}

// Len returns the number of stored samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Progress returns the playback position as a 0..1 fraction, 0 when the
// store is empty.
func (r *Recorder) Progress() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return 0
	}
	return float64(r.cursor) / float64(len(r.samples))
}

// StartRecording clears the store and enters the Recording state,
// displacing playback if it was active.
func (r *Recorder) StartRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = r.samples[:0]
	r.cursor = 0
	r.state = Recording
}

// StopRecording leaves the Recording state, keeping the store.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Recording {
		r.state = Idle
	}
}

// StartPlayback rewinds and enters the Playing state. With an empty store
// it returns ErrEmpty and changes nothing.
func (r *Recorder) StartPlayback() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return ErrEmpty
	}
	r.cursor = 0
	r.state = Playing
	return nil
}

// StopPlayback leaves the Playing state.
func (r *Recorder) StopPlayback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Playing {
		r.state = Idle
	}
}

// StopAll cancels whatever transport activity is in flight. The store is
// kept.
func (r *Recorder) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
}

// WriteSamples appends one processed buffer. Called from the audio thread;
// growth doubles capacity so the per-call allocation cost stays amortized
// O(1).
func (r *Recorder) WriteSamples(buf []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return
	}
	need := len(r.samples) + len(buf)
	if need > cap(r.samples) {
		newCap := cap(r.samples) * 2
		if newCap < need {
			newCap = need
		}
		if newCap < 4096 {
			newCap = 4096
		}
		grown := make([]float32, len(r.samples), newCap)
		copy(grown, r.samples)
		r.samples = grown
	}
	r.samples = append(r.samples, buf...)
}

// ReadPlayback copies up to len(buf) samples from the cursor. A shortfall
// is zero-filled and ends playback. Returns the number of real samples
// copied.
func (r *Recorder) ReadPlayback(buf []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Playing {
		for i := range buf {
			buf[i] = 0
		}
		return 0
	}
	n := copy(buf, r.samples[r.cursor:])
	r.cursor += n
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	if r.cursor >= len(r.samples) {
		r.state = Idle
	}
	return n
}

// Clear stops any activity and releases the backing store.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	r.samples = nil
	r.cursor = 0
}

// Snapshot returns a copy of the store for encoding outside the lock.
func (r *Recorder) Snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float32, len(r.samples))
	copy(out, r.samples)
	return out
}
