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

// DriverKind selects which of the two callback models the engine runs.
type DriverKind int

const (
	// SharedIO is the ring-buffer model against the platform's shared
	// mixer: separate input and output streams joined by an intermediate
	// ring that absorbs scheduler jitter.
	SharedIO DriverKind = iota

	// ExclusiveIO is the same ring-buffer model with exclusive device
	// access; the device's native rate wins over the configured one.
	ExclusiveIO

	// DirectIO is the direct model: one duplex stream handing the callback
	// raw per-channel buffers, addressed by channel offset and count.
	DirectIO
)

func (k DriverKind) String() string {
	switch k {
	case SharedIO:
		return "shared"
	case ExclusiveIO:
		return "exclusive"
	case DirectIO:
		return "direct"
	default:
		return "unknown"
	}
}

// Config is the engine configuration. Setting it is pure state mutation;
// illegal combinations are rejected by Start, not by Configure.
type Config struct {
	Driver       DriverKind
	SampleRate   float64
	BufferFrames int

	// ring-buffer model
	InputDevice  string
	OutputDevice string
	Channels     int // wire channels on the device side, default 2

	// Format is the device-side sample encoding. The ring-buffer model
	// takes Float32 or Int16; the direct model additionally takes Int24
	// and Int32.
	Format WireFormat

	// direct model: channel ranges negotiated against the driver's
	// advertised counts at Start. Offset+count routing is the one
	// supported addressing scheme.
	DriverName     string
	InputOffset    int
	InputChannels  int
	OutputOffset   int
	OutputChannels int
}

// withDefaults fills unset fields with workable values.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = 256
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.InputChannels <= 0 {
		c.InputChannels = 1
	}
	if c.OutputChannels <= 0 {
		c.OutputChannels = 2
	}
	return c
}
