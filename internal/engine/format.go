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

package engine

import (
	"encoding/binary"
	"math"
)

// WireFormat identifies the sample encoding of an interleaved wire block.
type WireFormat int

const (
	Float32 WireFormat = iota
	Int16
	Int24
	Int32
)

func (f WireFormat) String() string {
	switch f {
	case Float32:
		return "float32"
	case Int16:
		return "int16"
	case Int24:
		return "int24"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the wire width of one sample.
func (f WireFormat) BytesPerSample() int {
	switch f {
	case Int16:
		return 2
	case Int24:
		return 3
	default:
		return 4
	}
}

// Symmetric full-scale factors. Both directions use the positive maximum so
// a full-scale float round-trips to the same value.
const (
	scale16 = 32767.0
	scale24 = 8388607.0
	scale32 = 2147483647.0
)

func clamp32(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Per-sample conversions, shared between the interleaved byte codec below
// and the direct-model duplex path in the PortAudio backend.

func floatFromInt16(v int16) float32 {
	return float32(float64(v) / scale16)
}

func int16FromFloat(v float32) int16 {
	return int16(float64(clamp32(v)) * scale16)
}

// floatFromInt24 sign-extends a packed little-endian 24-bit sample.
func floatFromInt24(b0, b1, b2 byte) float32 {
	u := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
	v := int32(u<<8) >> 8
	return float32(float64(v) / scale24)
}

func int24FromFloat(v float32) (byte, byte, byte) {
	i := int32(float64(clamp32(v)) * scale24)
	return byte(i), byte(i >> 8), byte(i >> 16)
}

func floatFromInt32(v int32) float32 {
	return float32(float64(v) / scale32)
}

func int32FromFloat(v float32) int32 {
	return int32(float64(clamp32(v)) * scale32)
}

// decodeSample reads one little-endian sample from b.
func decodeSample(b []byte, f WireFormat) float32 {
	switch f {
	case Int16:
		return floatFromInt16(int16(binary.LittleEndian.Uint16(b)))
	case Int24:
		return floatFromInt24(b[0], b[1], b[2])
	case Int32:
		return floatFromInt32(int32(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

// encodeSample writes one little-endian sample to b, clamping to [-1, 1]
// before requantizing.
func encodeSample(b []byte, v float32, f WireFormat) {
	switch f {
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(int16FromFloat(v)))
	case Int24:
		b[0], b[1], b[2] = int24FromFloat(v)
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32FromFloat(v)))
	default:
		binary.LittleEndian.PutUint32(b, math.Float32bits(clamp32(v)))
	}
}

// DecodeMono decodes an interleaved wire block into mono float samples,
// averaging across channels. It returns the number of frames written, which
// is bounded by both the wire block and len(dst).
func DecodeMono(dst []float32, wire []byte, f WireFormat, channels int) int {
	if channels < 1 {
		channels = 1
	}
	bps := f.BytesPerSample()
	frames := len(wire) / (bps * channels)
	if frames > len(dst) {
		frames = len(dst)
	}
	inv := float32(1) / float32(channels)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * channels * bps
		for ch := 0; ch < channels; ch++ {
			sum += decodeSample(wire[base+ch*bps:], f)
		}
		dst[i] = sum * inv
	}
	return frames
}

// EncodeMono replicates mono float samples to every channel of an
// interleaved wire block. It returns the number of frames written.
func EncodeMono(wire []byte, src []float32, f WireFormat, channels int) int {
	if channels < 1 {
		channels = 1
	}
	bps := f.BytesPerSample()
	frames := len(wire) / (bps * channels)
	if frames > len(src) {
		frames = len(src)
	}
	for i := 0; i < frames; i++ {
		base := i * channels * bps
		for ch := 0; ch < channels; ch++ {
			encodeSample(wire[base+ch*bps:], src[i], f)
		}
	}
	return frames
}
