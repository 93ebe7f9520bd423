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
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend on top of the real PortAudio library.
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem.
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem.
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}
	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// Devices enumerates the available audio devices.
func (p *PortAudioBackend) Devices() ([]DeviceInfo, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	infos := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		infos = append(infos, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return infos, nil
}

// ChannelCounts reports a named device's advertised channel counts.
func (p *PortAudioBackend) ChannelCounts(driver string) (int, int, error) {
	if !p.initialized {
		return 0, 0, fmt.Errorf("PortAudio not initialized")
	}
	dev, err := p.deviceByName(driver, false)
	if err != nil {
		return 0, 0, err
	}
	return dev.MaxInputChannels, dev.MaxOutputChannels, nil
}

// deviceByName resolves a device by exact name. An empty name resolves to
// the default device for the requested direction.
func (p *PortAudioBackend) deviceByName(name string, output bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if output {
			return portaudio.DefaultOutputDevice()
		}
		return portaudio.DefaultInputDevice()
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio device %q not found", name)
}

// OpenInput opens a capture stream delivering interleaved wire blocks.
func (p *PortAudioBackend) OpenInput(params StreamParams, fn InputFunc) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	dev, err := p.deviceByName(params.Device, false)
	if err != nil {
		return nil, err
	}

	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.BufferFrames,
	}

	bps := params.Format.BytesPerSample()
	wire := make([]byte, params.BufferFrames*params.Channels*bps)

	var stream *portaudio.Stream
	switch params.Format {
	case Int16:
		stream, err = portaudio.OpenStream(sp, func(in []int16) {
			block := wire[:len(in)*2]
			for i, s := range in {
				binary.LittleEndian.PutUint16(block[i*2:], uint16(s))
			}
			fn(block)
		})
	case Float32:
		stream, err = portaudio.OpenStream(sp, func(in []float32) {
			block := wire[:len(in)*4]
			for i, s := range in {
				binary.LittleEndian.PutUint32(block[i*4:], math.Float32bits(s))
			}
			fn(block)
		})
	default:
		return nil, fmt.Errorf("%w: %s on capture stream", ErrUnsupportedFormat, params.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

// OpenOutput opens a render stream fed from interleaved wire blocks.
func (p *PortAudioBackend) OpenOutput(params StreamParams, fn OutputFunc) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	dev, err := p.deviceByName(params.Device, true)
	if err != nil {
		return nil, err
	}

	sp := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.BufferFrames,
	}

	bps := params.Format.BytesPerSample()
	wire := make([]byte, params.BufferFrames*params.Channels*bps)

	var stream *portaudio.Stream
	switch params.Format {
	case Int16:
		stream, err = portaudio.OpenStream(sp, func(out []int16) {
			block := wire[:len(out)*2]
			fn(block)
			for i := range out {
				out[i] = int16(binary.LittleEndian.Uint16(block[i*2:]))
			}
		})
	case Float32:
		stream, err = portaudio.OpenStream(sp, func(out []float32) {
			block := wire[:len(out)*4]
			fn(block)
			for i := range out {
				out[i] = math.Float32frombits(binary.LittleEndian.Uint32(block[i*4:]))
			}
		})
	default:
		return nil, fmt.Errorf("%w: %s on render stream", ErrUnsupportedFormat, params.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

// OpenDuplex opens one bidirectional non-interleaved stream for the direct
// driver model. The callback sees every opened channel as float32; for
// integer device formats the wire buffers are converted on the way in and
// requantized on the way out. Offset routing is the engine's job.
func (p *PortAudioBackend) OpenDuplex(params DuplexParams, fn DuplexFunc) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}
	dev, err := p.deviceByName(params.Driver, false)
	if err != nil {
		return nil, err
	}

	sp := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.InputChannels,
			Latency:  dev.DefaultLowInputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.OutputChannels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      params.SampleRate,
		FramesPerBuffer: params.BufferFrames,
	}

	var stream *portaudio.Stream
	switch params.Format {
	case Int16:
		cv := newDuplexConverter(params)
		stream, err = portaudio.OpenStream(sp, func(in, out [][]int16) {
			fin, fout := cv.buffers(len(in), len(out), wireFrames16(in, out))
			for ch := range fin {
				for i := range fin[ch] {
					fin[ch][i] = floatFromInt16(in[ch][i])
				}
			}
			fn(fin, fout)
			for ch := range fout {
				for i := range fout[ch] {
					out[ch][i] = int16FromFloat(fout[ch][i])
				}
			}
		})
	case Int24:
		cv := newDuplexConverter(params)
		stream, err = portaudio.OpenStream(sp, func(in, out [][]portaudio.Int24) {
			fin, fout := cv.buffers(len(in), len(out), wireFrames24(in, out))
			for ch := range fin {
				for i := range fin[ch] {
					s := in[ch][i]
					fin[ch][i] = floatFromInt24(s[0], s[1], s[2])
				}
			}
			fn(fin, fout)
			for ch := range fout {
				for i := range fout[ch] {
					b0, b1, b2 := int24FromFloat(fout[ch][i])
					out[ch][i] = portaudio.Int24{b0, b1, b2}
				}
			}
		})
	case Int32:
		cv := newDuplexConverter(params)
		stream, err = portaudio.OpenStream(sp, func(in, out [][]int32) {
			fin, fout := cv.buffers(len(in), len(out), wireFrames32(in, out))
			for ch := range fin {
				for i := range fin[ch] {
					fin[ch][i] = floatFromInt32(in[ch][i])
				}
			}
			fn(fin, fout)
			for ch := range fout {
				for i := range fout[ch] {
					out[ch][i] = int32FromFloat(fout[ch][i])
				}
			}
		})
	default:
		stream, err = portaudio.OpenStream(sp, func(in, out [][]float32) {
			fn(in, out)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open duplex stream: %w", err)
	}
	return &portAudioStream{stream: stream}, nil
}

// duplexConverter owns the float scratch channels for an integer-format
// duplex stream, allocated once at open so callbacks stay allocation-free.
type duplexConverter struct {
	in  [][]float32
	out [][]float32
}

func newDuplexConverter(params DuplexParams) *duplexConverter {
	cv := &duplexConverter{
		in:  make([][]float32, params.InputChannels),
		out: make([][]float32, params.OutputChannels),
	}
	for ch := range cv.in {
		cv.in[ch] = make([]float32, params.BufferFrames)
	}
	for ch := range cv.out {
		cv.out[ch] = make([]float32, params.BufferFrames)
	}
	return cv
}

// buffers returns the scratch channels sliced to this callback's frame
// count and channel counts.
func (cv *duplexConverter) buffers(inCh, outCh, frames int) ([][]float32, [][]float32) {
	if inCh > len(cv.in) {
		inCh = len(cv.in)
	}
	if outCh > len(cv.out) {
		outCh = len(cv.out)
	}
	fin := cv.in[:inCh]
	fout := cv.out[:outCh]
	for ch := range fin {
		if frames > len(cv.in[ch]) {
			frames = len(cv.in[ch])
		}
	}
	for ch := range fout {
		if frames > len(cv.out[ch]) {
			frames = len(cv.out[ch])
		}
	}
	for ch := range fin {
		fin[ch] = cv.in[ch][:frames]
	}
	for ch := range fout {
		fout[ch] = cv.out[ch][:frames]
		for i := range fout[ch] {
			fout[ch][i] = 0
		}
	}
	return fin, fout
}

func wireFrames16(in, out [][]int16) int {
	if len(in) > 0 {
		return len(in[0])
	}
	if len(out) > 0 {
		return len(out[0])
	}
	return 0
}

func wireFrames24(in, out [][]portaudio.Int24) int {
	if len(in) > 0 {
		return len(in[0])
	}
	if len(out) > 0 {
		return len(out[0])
	}
	return 0
}

func wireFrames32(in, out [][]int32) int {
	if len(in) > 0 {
		return len(in[0])
	}
	if len(out) > 0 {
		return len(out[0])
	}
	return 0
}

// portAudioStream wraps *portaudio.Stream as a Stream.
type portAudioStream struct {
	stream *portaudio.Stream
}

func (s *portAudioStream) Start() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Start()
}

func (s *portAudioStream) Stop() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Close()
}
