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

package recorder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_InitialState(t *testing.T) {
	r := New()
	assert.Equal(t, Idle, r.State())
	assert.False(t, r.Recording())
	assert.False(t, r.Playing())
	assert.False(t, r.HasRecording())
	assert.Zero(t, r.Len())
	assert.Zero(t, r.Progress())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
	assert.Equal(t, "playing", Playing.String())
}

func TestRecorder_RecordRoundTrip(t *testing.T) {
	r := New()
	r.StartRecording()
	require.True(t, r.Recording())

	first := []float32{0.1, 0.2, 0.3}
	second := []float32{0.4, 0.5}
	r.WriteSamples(first)
	r.WriteSamples(second)
	r.StopRecording()

	require.Equal(t, 5, r.Len())
	require.True(t, r.HasRecording())

	require.NoError(t, r.StartPlayback())
	out := make([]float32, 5)
	n := r.ReadPlayback(out)
	assert.Equal(t, 5, n)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5}, out)
	assert.False(t, r.Playing(), "playback must self-stop at the end of the store")
}

func TestRecorder_WriteIgnoredWhenNotRecording(t *testing.T) {
	r := New()
	r.WriteSamples([]float32{1, 2, 3})
	assert.Zero(t, r.Len())
}

func TestRecorder_StartRecordingClearsStore(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2, 3})
	r.StopRecording()
	require.Equal(t, 3, r.Len())

	r.StartRecording()
	r.WriteSamples([]float32{9})
	r.StopRecording()
	assert.Equal(t, 1, r.Len())
}

func TestRecorder_PlaybackZeroFillsShortfall(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{0.5, 0.5})
	r.StopRecording()

	require.NoError(t, r.StartPlayback())
	out := []float32{9, 9, 9, 9}
	n := r.ReadPlayback(out)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.5, 0.5, 0, 0}, out, "tail past the store must be silence")
}

func TestRecorder_ReadWhileIdleIsSilence(t *testing.T) {
	r := New()
	out := []float32{9, 9}
	n := r.ReadPlayback(out)
	assert.Zero(t, n)
	assert.Equal(t, []float32{0, 0}, out)
}

func TestRecorder_StartPlaybackEmpty(t *testing.T) {
	r := New()
	err := r.StartPlayback()
	require.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, Idle, r.State())
}

func TestRecorder_PlaybackRewinds(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2, 3, 4})
	r.StopRecording()

	require.NoError(t, r.StartPlayback())
	out := make([]float32, 2)
	r.ReadPlayback(out)
	assert.InDelta(t, 0.5, r.Progress(), 1e-9)
	r.StopPlayback()

	// a fresh playback starts from the top
	require.NoError(t, r.StartPlayback())
	r.ReadPlayback(out)
	assert.Equal(t, []float32{1, 2}, out)
}

func TestRecorder_StartRecordingDisplacesPlayback(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2, 3})
	r.StopRecording()
	require.NoError(t, r.StartPlayback())

	r.StartRecording()
	assert.Equal(t, Recording, r.State())
	assert.Zero(t, r.Len(), "re-record must start from an empty store")
}

func TestRecorder_StopAllKeepsStore(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2})
	r.StopAll()
	assert.Equal(t, Idle, r.State())
	assert.Equal(t, 2, r.Len())
}

func TestRecorder_Clear(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2})
	r.Clear()
	assert.Equal(t, Idle, r.State())
	assert.False(t, r.HasRecording())
}

func TestRecorder_SnapshotIsACopy(t *testing.T) {
	r := New()
	r.StartRecording()
	r.WriteSamples([]float32{1, 2})

	snap := r.Snapshot()
	snap[0] = 99
	r.StopRecording()

	require.NoError(t, r.StartPlayback())
	out := make([]float32, 2)
	r.ReadPlayback(out)
	assert.Equal(t, float32(1), out[0], "mutating a snapshot must not touch the store")
}

func TestRecorder_GrowthAcrossManyWrites(t *testing.T) {
	r := New()
	r.StartRecording()

	block := make([]float32, 480)
	for i := range block {
		block[i] = float32(i)
	}
	for i := 0; i < 100; i++ {
		r.WriteSamples(block)
	}
	r.StopRecording()

	require.Equal(t, 48000, r.Len())
	samples := r.Snapshot()
	assert.Equal(t, float32(0), samples[0])
	assert.Equal(t, float32(479), samples[len(samples)-1])
}

func TestRecorder_ConcurrentAccess(t *testing.T) {
	// the audio thread writes while the UI thread polls
	r := New()
	r.StartRecording()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		block := make([]float32, 64)
		for i := 0; i < 1000; i++ {
			r.WriteSamples(block)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = r.Len()
			_ = r.Progress()
			_ = r.State()
		}
	}()
	wg.Wait()

	assert.Equal(t, 64000, r.Len())
}
