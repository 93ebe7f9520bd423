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
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const exportChunkFrames = 8192

// ExportWAV writes the recording to path as mono 32-bit IEEE float WAV,
// preserving the captured samples bit for bit. A partial file is removed
// on failure.
func (r *Recorder) ExportWAV(path string, sampleRate int) error {
	samples := r.Snapshot()
	if len(samples) == 0 {
		return ErrEmpty
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 32, 1, 3)
	for _, s := range samples {
		if err := enc.WriteFrame(s); err != nil {
			f.Close()
			os.Remove(path)
			return fmt.Errorf("failed to write WAV frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close WAV file: %w", err)
	}
	return nil
}

// ExportWAV16 writes the recording to path as mono 16-bit PCM WAV for
// players that cannot read float WAV. Samples are clamped and scaled to
// the int16 range.
func (r *Recorder) ExportWAV16(path string, sampleRate int) error {
	samples := r.Snapshot()
	if len(samples) == 0 {
		return ErrEmpty
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, 0, exportChunkFrames),
	}
	for start := 0; start < len(samples); start += exportChunkFrames {
		end := start + exportChunkFrames
		if end > len(samples) {
			end = len(samples)
		}
		buf.Data = buf.Data[:0]
		for _, s := range samples[start:end] {
			v := s
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			buf.Data = append(buf.Data, int(v*32767))
		}
		if err := enc.Write(buf); err != nil {
			f.Close()
			os.Remove(path)
			return fmt.Errorf("failed to write WAV chunk: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close WAV file: %w", err)
	}
	return nil
}
