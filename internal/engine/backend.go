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

// Backend abstracts the audio driver layer so the engine can be tested
// without hardware. Two implementations exist: the PortAudio backend and a
// mock used by tests.
type Backend interface {
	// Initialize the audio subsystem.
	Initialize() error

	// Terminate the audio subsystem.
	Terminate() error

	// OpenInput opens a capture stream. fn receives one interleaved wire
	// block per driver callback and runs on the driver's thread.
	OpenInput(p StreamParams, fn InputFunc) (Stream, error)

	// OpenOutput opens a render stream. fn must fill the interleaved wire
	// block it is handed and runs on the driver's thread.
	OpenOutput(p StreamParams, fn OutputFunc) (Stream, error)

	// OpenDuplex opens one bidirectional direct-model stream. fn receives
	// raw per-channel input and output buffers.
	OpenDuplex(p DuplexParams, fn DuplexFunc) (Stream, error)
}

// ChannelProber is an optional backend capability: report a direct-model
// driver's advertised channel counts without keeping a stream open.
// Queried through a type assertion instead of reflection.
type ChannelProber interface {
	ChannelCounts(driver string) (in, out int, err error)
}

// DeviceLister is an optional backend capability used to enumerate devices
// for pickers and to learn a device's preferred rate.
type DeviceLister interface {
	Devices() ([]DeviceInfo, error)
}

// DeviceInfo describes one audio device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// Stream is a started or startable audio stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// InputFunc consumes one interleaved wire block.
type InputFunc func(wire []byte)

// OutputFunc fills one interleaved wire block.
type OutputFunc func(wire []byte)

// DuplexFunc processes one direct-model callback. in and out hold every
// channel the stream was opened with; the engine applies its own channel
// offsets.
type DuplexFunc func(in, out [][]float32)

// StreamParams configures a one-directional ring-model stream.
type StreamParams struct {
	Device       string
	SampleRate   float64
	Channels     int
	BufferFrames int
	Format       WireFormat
}

// DuplexParams configures a direct-model duplex stream. Format names the
// device-side sample encoding; the backend converts to and from the float
// channel buffers the callback sees, so the engine never handles raw
// integer wires on this path.
type DuplexParams struct {
	Driver         string
	SampleRate     float64
	BufferFrames   int
	Format         WireFormat
	InputChannels  int
	OutputChannels int
}
