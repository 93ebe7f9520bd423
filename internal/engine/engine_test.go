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
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-amp-go/internal/dsp"
	"github.com/loqalabs/loqa-amp-go/internal/metronome"
	"github.com/loqalabs/loqa-amp-go/internal/recorder"
)

func newTestEngine(backend Backend) *Engine {
	e := New(backend, dsp.NewChain(), recorder.New(), metronome.New())
	e.SetLogf(func(string, ...any) {})
	return e
}

func ringConfig() Config {
	return Config{
		Driver:       SharedIO,
		SampleRate:   48000,
		BufferFrames: 256,
		InputDevice:  "mock",
		OutputDevice: "mock",
		Channels:     2,
		Format:       Float32,
	}
}

// encodeWire builds an interleaved wire block replicating mono samples.
func encodeWire(samples []float32, f WireFormat, channels int) []byte {
	wire := make([]byte, len(samples)*channels*f.BytesPerSample())
	EncodeMono(wire, samples, f, channels)
	return wire
}

func TestEngine_StartValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "direct model needs a driver name",
			cfg:     Config{Driver: DirectIO},
			wantErr: ErrNoDriver,
		},
		{
			name:    "ring model needs an input device",
			cfg:     Config{Driver: SharedIO, OutputDevice: "mock"},
			wantErr: ErrNoDevice,
		},
		{
			name:    "ring model needs an output device",
			cfg:     Config{Driver: ExclusiveIO, InputDevice: "mock"},
			wantErr: ErrNoDevice,
		},
		{
			name:    "ring model rejects int24",
			cfg:     Config{Driver: SharedIO, InputDevice: "mock", OutputDevice: "mock", Format: Int24},
			wantErr: ErrUnsupportedFormat,
		},
		{
			name:    "ring model rejects int32",
			cfg:     Config{Driver: SharedIO, InputDevice: "mock", OutputDevice: "mock", Format: Int32},
			wantErr: ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(NewMockBackend())
			require.NoError(t, e.Configure(tt.cfg))
			err := e.Start()
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, e.Running())
		})
	}
}

func TestEngine_StartStopRing(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	require.NoError(t, e.Configure(ringConfig()))

	require.NoError(t, e.Start())
	require.True(t, e.Running())

	in, out := backend.Input(), backend.Output()
	require.NotNil(t, in)
	require.NotNil(t, out)
	assert.True(t, in.Started())
	assert.True(t, out.Started())
	assert.Equal(t, "mock", in.Params().Device)
	assert.Equal(t, 2, in.Params().Channels)

	// second Start is rejected, as is reconfiguration mid-session
	assert.ErrorIs(t, e.Start(), ErrRunning)
	assert.ErrorIs(t, e.Configure(ringConfig()), ErrRunning)

	e.Stop()
	assert.False(t, e.Running())
	assert.True(t, in.Closed())
	assert.True(t, out.Closed())
	assert.False(t, backend.Initialized())

	// Stop is idempotent
	e.Stop()
}

func TestEngine_StartAdoptsDeviceRate(t *testing.T) {
	backend := NewMockBackend()
	backend.SetDevices([]DeviceInfo{{
		Name:              "mock",
		MaxInputChannels:  2,
		MaxOutputChannels: 2,
		DefaultSampleRate: 44100,
	}})
	e := newTestEngine(backend)

	cfg := ringConfig()
	cfg.SampleRate = 48000
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	assert.InDelta(t, 44100.0, e.SampleRate(), 1e-9, "device-preferred rate must win")
}

// rateCaptureEffect records the sample rate the chain pushes down.
type rateCaptureEffect struct {
	rate float64
}

func (r *rateCaptureEffect) Name() string               { return "ratecapture" }
func (r *rateCaptureEffect) Enabled() bool              { return true }
func (r *rateCaptureEffect) SetEnabled(bool)            {}
func (r *rateCaptureEffect) Process([]float32)          {}
func (r *rateCaptureEffect) GainReductionDB() float64   { return 0 }
func (r *rateCaptureEffect) SetSampleRate(rate float64) { r.rate = rate }

func TestEngine_AdoptedRateReachesChain(t *testing.T) {
	// When the device forces its own rate, the effects must be retuned to
	// it; a chain left at the configured rate would shift every filter
	// corner and delay time.
	backend := NewMockBackend()
	backend.SetDevices([]DeviceInfo{{
		Name:              "mock",
		MaxInputChannels:  2,
		MaxOutputChannels: 2,
		DefaultSampleRate: 44100,
	}})
	e := newTestEngine(backend)
	eff := &rateCaptureEffect{}
	e.Chain().Add(eff)

	cfg := ringConfig()
	cfg.SampleRate = 48000
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	assert.InDelta(t, 44100.0, eff.rate, 1e-9, "chain must run at the adopted device rate")
}

func TestEngine_StartFailureTearsDown(t *testing.T) {
	backend := NewMockBackend()
	backend.SetOpenError(errors.New("device busy"))
	e := newTestEngine(backend)
	require.NoError(t, e.Configure(ringConfig()))

	err := e.Start()
	require.Error(t, err)
	assert.False(t, e.Running())
	assert.False(t, backend.Initialized(), "failed start must terminate the backend")
}

func TestEngine_InitFailure(t *testing.T) {
	backend := NewMockBackend()
	backend.SetInitError(errors.New("no subsystem"))
	e := newTestEngine(backend)
	require.NoError(t, e.Configure(ringConfig()))
	require.Error(t, e.Start())
	assert.False(t, e.Running())
}

func TestEngine_RingPathProcessesAudio(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	e.Chain().Add(dsp.NewGain(1.5))

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	inWire := encodeWire(makeConst(0.4, cfg.BufferFrames), Float32, cfg.Channels)
	backend.Input().PumpInput(inWire)

	outWire := make([]byte, cfg.BufferFrames*cfg.Channels*4)
	backend.Output().PumpOutput(outWire)

	decoded := make([]float32, cfg.BufferFrames)
	DecodeMono(decoded, outWire, Float32, cfg.Channels)
	for i, s := range decoded {
		if math.Abs(float64(s)-0.6) > 1e-5 {
			t.Fatalf("sample %d: got %v, want 0.6 (0.4 through 1.5x gain)", i, s)
		}
	}
}

func TestEngine_GateAndGainScenario(t *testing.T) {
	// Full ring-model scenario at 48 kHz / 256 frames: a noise gate
	// followed by a 1.5x gain. A steady 0.5 input must open the gate and
	// come out at about 0.75.
	backend := NewMockBackend()
	e := newTestEngine(backend)
	e.Chain().Add(dsp.NewNoiseGate(48000))
	e.Chain().Add(dsp.NewGain(1.5))

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	inWire := encodeWire(makeConst(0.5, cfg.BufferFrames), Float32, cfg.Channels)
	outWire := make([]byte, cfg.BufferFrames*cfg.Channels*4)
	decoded := make([]float32, cfg.BufferFrames)

	// interleave input and output callbacks as the drivers would
	for i := 0; i < 10; i++ {
		backend.Input().PumpInput(inWire)
		backend.Output().PumpOutput(outWire)
	}

	DecodeMono(decoded, outWire, Float32, cfg.Channels)
	got := float64(decoded[len(decoded)-1])
	assert.InDelta(t, 0.75, got, 0.01)
}

func TestEngine_OutputUnderrunIsSilence(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	// render callback with nothing buffered must produce silence, not noise
	outWire := encodeWire(makeConst(0.9, cfg.BufferFrames), Float32, cfg.Channels)
	backend.Output().PumpOutput(outWire)

	decoded := make([]float32, cfg.BufferFrames)
	DecodeMono(decoded, outWire, Float32, cfg.Channels)
	for i, s := range decoded {
		if s != 0 {
			t.Fatalf("sample %d: underrun produced %v, want 0", i, s)
		}
	}
}

func TestEngine_RecordingTapsProcessedSignal(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	e.Chain().Add(dsp.NewGain(2))

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	e.Recorder().StartRecording()
	inWire := encodeWire(makeConst(0.25, cfg.BufferFrames), Float32, cfg.Channels)
	backend.Input().PumpInput(inWire)
	e.Recorder().StopRecording()

	samples := e.Recorder().Snapshot()
	require.Len(t, samples, cfg.BufferFrames)
	for i, s := range samples {
		if math.Abs(float64(s)-0.5) > 1e-5 {
			t.Fatalf("recorded sample %d: got %v, want post-chain 0.5", i, s)
		}
	}
}

func TestEngine_MetronomeNotRecorded(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	e.Metronome().SetEnabled(true)
	e.Metronome().SetBPM(300) // first click within 9600 samples
	e.Recorder().StartRecording()

	// silence in; the click plays but the recorder taps before the mix
	inWire := make([]byte, cfg.BufferFrames*cfg.Channels*4)
	outWire := make([]byte, cfg.BufferFrames*cfg.Channels*4)
	decoded := make([]float32, cfg.BufferFrames)
	clickHeard := false
	for i := 0; i < 50; i++ {
		backend.Input().PumpInput(inWire)
		backend.Output().PumpOutput(outWire)
		DecodeMono(decoded, outWire, Float32, cfg.Channels)
		for _, s := range decoded {
			if s != 0 {
				clickHeard = true
			}
		}
	}

	require.True(t, clickHeard, "the metronome click never reached the output")
	for i, s := range e.Recorder().Snapshot() {
		if s != 0 {
			t.Fatalf("recorded sample %d is %v: the click leaked into the recording", i, s)
		}
	}
}

func TestEngine_PlaybackReplacesLiveSignal(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	// record one block of 0.3
	e.Recorder().StartRecording()
	backend.Input().PumpInput(encodeWire(makeConst(0.3, cfg.BufferFrames), Float32, cfg.Channels))
	e.Recorder().StopRecording()

	// during playback, live input (0.9) must be replaced by the recording,
	// scaled by master volume
	e.Chain().SetVolume(0.5)
	require.NoError(t, e.Recorder().StartPlayback())
	backend.Input().PumpInput(encodeWire(makeConst(0.9, cfg.BufferFrames), Float32, cfg.Channels))

	outWire := make([]byte, cfg.BufferFrames*cfg.Channels*4)
	backend.Output().PumpOutput(outWire)
	decoded := make([]float32, cfg.BufferFrames)
	DecodeMono(decoded, outWire, Float32, cfg.Channels)

	for i, s := range decoded {
		if math.Abs(float64(s)-0.15) > 1e-5 {
			t.Fatalf("sample %d: got %v, want 0.15 (recorded 0.3 at volume 0.5)", i, s)
		}
	}

	// the exhausted store self-stops on the next callback
	backend.Input().PumpInput(encodeWire(makeConst(0.9, cfg.BufferFrames), Float32, cfg.Channels))
	assert.False(t, e.Recorder().Playing())
}

func TestEngine_DirectModelRouting(t *testing.T) {
	backend := NewMockBackend()
	backend.SetDevices([]DeviceInfo{{
		Name:              "card",
		MaxInputChannels:  4,
		MaxOutputChannels: 4,
		DefaultSampleRate: 48000,
	}})
	e := newTestEngine(backend)
	e.Chain().Add(dsp.NewGain(2))

	cfg := Config{
		Driver:         DirectIO,
		SampleRate:     48000,
		BufferFrames:   8,
		DriverName:     "card",
		InputOffset:    1,
		InputChannels:  2,
		OutputOffset:   2,
		OutputChannels: 2,
	}
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	stream := backend.Duplex()
	require.NotNil(t, stream)
	assert.Equal(t, 3, stream.DuplexOpenParams().InputChannels, "offset 1 + count 2")
	assert.Equal(t, 4, stream.DuplexOpenParams().OutputChannels, "offset 2 + count 2")

	in := [][]float32{
		makeConst(0.9, 8), // channel 0: outside the routed range
		makeConst(0.2, 8), // routed
		makeConst(0.4, 8), // routed
	}
	out := [][]float32{
		makeConst(0.5, 8), // stale driver memory, must be silenced
		makeConst(0.5, 8),
		makeConst(0.5, 8),
		makeConst(0.5, 8),
	}
	stream.PumpDuplex(in, out)

	// routed input average (0.2+0.4)/2 = 0.3 through 2x gain = 0.6
	for i := 0; i < 8; i++ {
		assert.Zero(t, out[0][i], "unrouted channel must be silent")
		assert.Zero(t, out[1][i], "unrouted channel must be silent")
		assert.InDelta(t, 0.6, out[2][i], 1e-5)
		assert.InDelta(t, 0.6, out[3][i], 1e-5)
	}
}

func TestEngine_DirectModelFallbackRouting(t *testing.T) {
	// Requests beyond the driver's advertised range fall back to channel 0
	// and a clamped width.
	backend := NewMockBackend()
	backend.SetDevices([]DeviceInfo{{
		Name:              "card",
		MaxInputChannels:  2,
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
	}})
	e := newTestEngine(backend)

	cfg := Config{
		Driver:         DirectIO,
		SampleRate:     48000,
		BufferFrames:   8,
		DriverName:     "card",
		InputOffset:    10,
		InputChannels:  2,
		OutputOffset:   1,
		OutputChannels: 4,
	}
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	p := backend.Duplex().DuplexOpenParams()
	assert.Equal(t, 2, p.InputChannels, "offset reset to 0, count kept at 2")
	assert.Equal(t, 2, p.OutputChannels, "offset 1 + clamped count 1")
}

func TestEngine_DirectModelCarriesWireFormat(t *testing.T) {
	// The direct path supports every wire format; the configured one must
	// reach the backend so the device runs in its native encoding. Only the
	// ring path is limited to float32/int16.
	for _, format := range []WireFormat{Float32, Int16, Int24, Int32} {
		t.Run(format.String(), func(t *testing.T) {
			backend := NewMockBackend()
			backend.SetDevices([]DeviceInfo{{
				Name:              "card",
				MaxInputChannels:  2,
				MaxOutputChannels: 2,
				DefaultSampleRate: 48000,
			}})
			e := newTestEngine(backend)

			cfg := Config{
				Driver:       DirectIO,
				SampleRate:   48000,
				BufferFrames: 8,
				DriverName:   "card",
				Format:       format,
			}
			require.NoError(t, e.Configure(cfg))
			require.NoError(t, e.Start())
			defer e.Stop()

			require.True(t, e.Running())
			assert.Equal(t, format, backend.Duplex().DuplexOpenParams().Format)
		})
	}
}

func TestClampChannelRange(t *testing.T) {
	tests := []struct {
		name                   string
		offset, count, max, fb int
		wantOff, wantCount     int
	}{
		{"fits", 1, 2, 4, 1, 1, 2},
		{"no probe info", 3, 2, 0, 2, 0, 2},
		{"offset past max", 8, 2, 4, 1, 0, 2},
		{"count past max", 2, 4, 4, 1, 2, 2},
		{"zero count uses fallback", 0, 0, 4, 2, 0, 2},
		{"negative offset", -3, 2, 4, 1, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, count := clampChannelRange(tt.offset, tt.count, tt.max, tt.fb)
			assert.Equal(t, tt.wantOff, off)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}

func TestEngine_ProbeChannelCounts(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)

	in, out := e.ProbeChannelCounts("mock")
	assert.Equal(t, 2, in)
	assert.Equal(t, 2, out)
	assert.False(t, backend.Initialized(), "probe must terminate what it initialized")

	in, out = e.ProbeChannelCounts("nope")
	assert.Zero(t, in)
	assert.Zero(t, out)
}

// panicEffect blows up on the first processed buffer.
type panicEffect struct{}

func (panicEffect) Name() string             { return "panic" }
func (panicEffect) Enabled() bool            { return true }
func (panicEffect) SetEnabled(bool)          {}
func (panicEffect) Process([]float32)        { panic("effect fault") }
func (panicEffect) GainReductionDB() float64 { return 0 }

func TestEngine_CallbackPanicIsContained(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	var logged bool
	e.SetLogf(func(string, ...any) { logged = true })
	e.Chain().Add(panicEffect{})

	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))
	require.NoError(t, e.Start())
	defer e.Stop()

	logged = false
	require.NotPanics(t, func() {
		backend.Input().PumpInput(encodeWire(makeConst(0.5, cfg.BufferFrames), Float32, cfg.Channels))
	})
	assert.True(t, logged, "callback fault must be logged")
	assert.True(t, e.Running(), "a faulting effect must not stop the session")
}

func TestEngine_Status(t *testing.T) {
	backend := NewMockBackend()
	e := newTestEngine(backend)
	cfg := ringConfig()
	require.NoError(t, e.Configure(cfg))

	s := e.Status()
	assert.False(t, s.Running)
	assert.Equal(t, "shared", s.Driver)
	assert.Equal(t, "idle", s.RecorderState)

	require.NoError(t, e.Start())
	defer e.Stop()

	backend.Input().PumpInput(encodeWire(makeConst(0.5, cfg.BufferFrames), Float32, cfg.Channels))

	s = e.Status()
	assert.True(t, s.Running)
	assert.InDelta(t, 48000.0, s.SampleRate, 1e-9)
	assert.Equal(t, 256, s.BufferFrames)
	assert.InDelta(t, 0.5, s.RMS, 1e-4)
	assert.InDelta(t, 0.5, s.Peak, 1e-4)
	assert.False(t, s.Clip)
	assert.GreaterOrEqual(t, s.LatencyMS, float64(cfg.BufferFrames)/48.0)
	assert.Equal(t, 120.0, s.BPM)
	assert.Equal(t, -1, s.Beat)
}

func makeConst(v float32, n int) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}
