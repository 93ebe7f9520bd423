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

// Package engine owns the live audio session: it resolves the configured
// driver model into running streams, converts wire formats to and from the
// internal mono float pipeline, and runs effect chain, recorder and
// metronome once per driver callback.
package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/loqalabs/loqa-amp-go/internal/dsp"
	"github.com/loqalabs/loqa-amp-go/internal/metronome"
	"github.com/loqalabs/loqa-amp-go/internal/recorder"
)

// Engine is the single owner of the real-time session. It is constructed
// once by the host and keeps no global state.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	backend Backend
	chain   *dsp.Chain
	rec     *recorder.Recorder
	metro   *metronome.Metronome
	tel     *Telemetry
	logf    func(format string, args ...any)

	running    bool
	sampleRate float64
	ring       *Ring
	procBuf    []float32 // capture/duplex callback scratch
	outBuf     []float32 // render callback scratch

	inStream  Stream
	outStream Stream
	duplex    Stream
}

// New creates an engine over the given backend and collaborators.
func New(backend Backend, chain *dsp.Chain, rec *recorder.Recorder, metro *metronome.Metronome) *Engine {
	return &Engine{
		backend: backend,
		chain:   chain,
		rec:     rec,
		metro:   metro,
		tel:     newTelemetry(),
		logf:    log.Printf,
	}
}

// SetLogf redirects the advisory log channel. Must be set before Start.
func (e *Engine) SetLogf(fn func(format string, args ...any)) {
	if fn != nil {
		e.logf = fn
	}
}

// OnOverload registers the CPU-overload edge callback. It fires on the
// audio thread, only when the overload state changes.
func (e *Engine) OnOverload(fn func(overloaded bool)) {
	e.tel.setOnOverload(fn)
}

// Chain returns the effect chain.
func (e *Engine) Chain() *dsp.Chain { return e.chain }

// Recorder returns the recorder.
func (e *Engine) Recorder() *recorder.Recorder { return e.rec }

// Metronome returns the metronome.
func (e *Engine) Metronome() *metronome.Metronome { return e.metro }

// Configure replaces the engine configuration. It performs no I/O and no
// validation; illegal combinations surface from Start. It is rejected
// while monitoring is active because device and rate are fixed for the
// lifetime of the open streams.
func (e *Engine) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}
	e.cfg = cfg
	return nil
}

// Config returns the current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Running reports whether monitoring is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SampleRate returns the rate the session is actually running at, which
// may differ from the configured one when the device forced its own.
func (e *Engine) SampleRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sampleRate > 0 {
		return e.sampleRate
	}
	return e.cfg.withDefaults().SampleRate
}

// Start resolves the configuration into live streams. On any failure it
// tears down whatever was opened and returns with the engine stopped.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunning
	}

	cfg := e.cfg.withDefaults()
	switch cfg.Driver {
	case DirectIO:
		if cfg.DriverName == "" {
			return ErrNoDriver
		}
	default:
		if cfg.InputDevice == "" || cfg.OutputDevice == "" {
			return ErrNoDevice
		}
		if cfg.Format != Float32 && cfg.Format != Int16 {
			return fmt.Errorf("%w: %s on the ring-buffer path", ErrUnsupportedFormat, cfg.Format)
		}
	}

	if err := e.backend.Initialize(); err != nil {
		return fmt.Errorf("engine: backend init: %w", err)
	}

	rate := cfg.SampleRate
	if cfg.Driver != DirectIO {
		rate = e.negotiateRate(cfg)
	}
	e.sampleRate = rate

	e.procBuf = make([]float32, cfg.BufferFrames)
	e.outBuf = make([]float32, cfg.BufferFrames)
	e.rec.StopAll()
	// the negotiated rate may differ from the configured one; every
	// rate-dependent collaborator has to hear about it before streams run
	e.chain.SetSampleRate(rate)
	e.metro.SetSampleRate(rate)
	e.metro.Reset()
	e.tel.reset(float64(cfg.BufferFrames) / rate)

	var err error
	if cfg.Driver == DirectIO {
		err = e.startDirect(cfg, rate)
	} else {
		err = e.startRing(cfg, rate)
	}
	if err != nil {
		e.teardownLocked()
		return err
	}

	e.running = true
	e.logf("engine: monitoring started (%s, %.0f Hz, %d frames)", cfg.Driver, rate, cfg.BufferFrames)
	return nil
}

// Stop tears down whatever handles are open. It is idempotent and returns
// only after the driver threads have quiesced.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasRunning := e.running
	e.teardownLocked()
	e.running = false
	if wasRunning {
		e.logf("engine: monitoring stopped")
	}
}

func (e *Engine) teardownLocked() {
	for _, s := range []Stream{e.inStream, e.outStream, e.duplex} {
		if s == nil {
			continue
		}
		if err := s.Stop(); err != nil {
			e.logf("engine: stream stop: %v", err)
		}
		if err := s.Close(); err != nil {
			e.logf("engine: stream close: %v", err)
		}
	}
	e.inStream, e.outStream, e.duplex = nil, nil, nil
	e.rec.StopAll()
	e.ring = nil
	e.procBuf = nil
	e.outBuf = nil
	if err := e.backend.Terminate(); err != nil {
		e.logf("engine: backend terminate: %v", err)
	}
}

// negotiateRate returns the sample rate the ring-model session should run
// at. The input device's preferred rate wins over the configured one.
func (e *Engine) negotiateRate(cfg Config) float64 {
	lister, ok := e.backend.(DeviceLister)
	if !ok {
		return cfg.SampleRate
	}
	devs, err := lister.Devices()
	if err != nil {
		return cfg.SampleRate
	}
	for _, d := range devs {
		if d.Name == cfg.InputDevice && d.DefaultSampleRate > 0 && d.DefaultSampleRate != cfg.SampleRate {
			e.logf("engine: device %q forces %.0f Hz (configured %.0f Hz), adopting device rate",
				d.Name, d.DefaultSampleRate, cfg.SampleRate)
			return d.DefaultSampleRate
		}
	}
	return cfg.SampleRate
}

// startRing opens the shared/exclusive model: one capture stream and one
// render stream joined by the jitter-absorbing ring.
func (e *Engine) startRing(cfg Config, rate float64) error {
	channels := cfg.Channels
	e.ring = NewRing(cfg.BufferFrames * channels * 10)

	in, err := e.backend.OpenInput(StreamParams{
		Device:       cfg.InputDevice,
		SampleRate:   rate,
		Channels:     channels,
		BufferFrames: cfg.BufferFrames,
		Format:       cfg.Format,
	}, e.makeWireInput(cfg.Format, channels))
	if err != nil {
		return fmt.Errorf("engine: open capture: %w", err)
	}
	e.inStream = in

	out, err := e.backend.OpenOutput(StreamParams{
		Device:       cfg.OutputDevice,
		SampleRate:   rate,
		Channels:     channels,
		BufferFrames: cfg.BufferFrames,
		Format:       cfg.Format,
	}, e.makeWireOutput(cfg.Format, channels))
	if err != nil {
		return fmt.Errorf("engine: open render: %w", err)
	}
	e.outStream = out

	if err := in.Start(); err != nil {
		return fmt.Errorf("engine: start capture: %w", err)
	}
	if err := out.Start(); err != nil {
		return fmt.Errorf("engine: start render: %w", err)
	}
	return nil
}

// startDirect opens the direct model: one duplex stream with channel
// offset routing negotiated against the driver's advertised counts.
func (e *Engine) startDirect(cfg Config, rate float64) error {
	maxIn, maxOut := 0, 0
	if prober, ok := e.backend.(ChannelProber); ok {
		var err error
		maxIn, maxOut, err = prober.ChannelCounts(cfg.DriverName)
		if err != nil {
			e.logf("engine: channel probe for %q failed, falling back to channel 0 / stereo out: %v",
				cfg.DriverName, err)
			maxIn, maxOut = 0, 0
		}
	}
	inOff, inCount := clampChannelRange(cfg.InputOffset, cfg.InputChannels, maxIn, 1)
	outOff, outCount := clampChannelRange(cfg.OutputOffset, cfg.OutputChannels, maxOut, 2)

	stream, err := e.backend.OpenDuplex(DuplexParams{
		Driver:         cfg.DriverName,
		SampleRate:     rate,
		BufferFrames:   cfg.BufferFrames,
		Format:         cfg.Format,
		InputChannels:  inOff + inCount,
		OutputChannels: outOff + outCount,
	}, e.makeDuplex(inOff, inCount, outOff, outCount))
	if err != nil {
		return fmt.Errorf("engine: open duplex: %w", err)
	}
	e.duplex = stream

	if err := stream.Start(); err != nil {
		return fmt.Errorf("engine: start duplex: %w", err)
	}
	return nil
}

// clampChannelRange fits a requested offset+count into a driver's
// advertised channel count. With nothing advertised the request falls back
// to channel 0 with the model's default width.
func clampChannelRange(offset, count, max, fallbackCount int) (int, int) {
	if count < 1 {
		count = fallbackCount
	}
	if max <= 0 {
		return 0, fallbackCount
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= max {
		offset = 0
	}
	if offset+count > max {
		count = max - offset
	}
	if count < 1 {
		count = 1
	}
	return offset, count
}

// makeWireInput builds the capture callback: decode, process, push onto
// the ring.
func (e *Engine) makeWireInput(format WireFormat, channels int) InputFunc {
	return func(wire []byte) {
		defer e.recoverCallback()
		start := time.Now()
		frames := DecodeMono(e.procBuf, wire, format, channels)
		buf := e.procBuf[:frames]
		e.pipeline(buf)
		// a full ring drops the newest samples; the render side zero-fills
		// on underrun, so neither edge can stall the driver
		e.ring.Write(buf)
		e.tel.update(buf, time.Since(start))
	}
}

// makeWireOutput builds the render callback: drain the ring, zero-fill any
// shortfall, encode.
func (e *Engine) makeWireOutput(format WireFormat, channels int) OutputFunc {
	return func(wire []byte) {
		defer e.recoverCallback()
		frames := len(wire) / (format.BytesPerSample() * channels)
		if frames > len(e.outBuf) {
			frames = len(e.outBuf)
		}
		buf := e.outBuf[:frames]
		n := e.ring.Read(buf)
		for i := n; i < frames; i++ {
			buf[i] = 0
		}
		EncodeMono(wire, buf, format, channels)
	}
}

// makeDuplex builds the direct-model callback: average the routed input
// channels, process, replicate to the routed output channels.
func (e *Engine) makeDuplex(inOff, inCount, outOff, outCount int) DuplexFunc {
	return func(in, out [][]float32) {
		defer e.recoverCallback()
		start := time.Now()

		// silence everything first so unrouted channels never replay stale
		// driver memory
		for _, ch := range out {
			for i := range ch {
				ch[i] = 0
			}
		}

		frames := 0
		if len(in) > 0 {
			frames = len(in[0])
		} else if len(out) > 0 {
			frames = len(out[0])
		}
		if frames > len(e.procBuf) {
			frames = len(e.procBuf)
		}
		buf := e.procBuf[:frames]
		for i := range buf {
			buf[i] = 0
		}

		used := 0
		for ch := inOff; ch < inOff+inCount && ch < len(in); ch++ {
			src := in[ch]
			n := frames
			if n > len(src) {
				n = len(src)
			}
			for i := 0; i < n; i++ {
				buf[i] += src[i]
			}
			used++
		}
		if used > 1 {
			inv := 1 / float32(used)
			for i := range buf {
				buf[i] *= inv
			}
		}

		e.pipeline(buf)

		for ch := outOff; ch < outOff+outCount && ch < len(out); ch++ {
			dst := out[ch]
			n := frames
			if n > len(dst) {
				n = len(dst)
			}
			copy(dst[:n], buf[:n])
		}

		e.tel.update(buf, time.Since(start))
	}
}

// pipeline runs one mono buffer through chain, recorder and metronome.
// The metronome is mixed after the recording tap so the click is never
// captured.
func (e *Engine) pipeline(buf []float32) {
	if e.rec.Playing() {
		// playback replaces the live signal with already-processed
		// samples; the chain is not reapplied, only master volume
		e.rec.ReadPlayback(buf)
		if v := e.chain.Volume(); v != 1 {
			for i := range buf {
				buf[i] = clamp32(float32(float64(buf[i]) * v))
			}
		}
	} else {
		e.chain.Process(buf)
		if e.rec.Recording() {
			e.rec.WriteSamples(buf)
		}
	}
	e.metro.Process(buf)
}

// recoverCallback keeps a processing fault inside one callback: the fault
// is logged and that buffer's output is whatever was written before the
// panic.
func (e *Engine) recoverCallback() {
	if r := recover(); r != nil {
		e.logf("engine: callback fault: %v", r)
	}
}

// ProbeChannelCounts reports a direct-model driver's advertised channel
// counts, (0, 0) on any failure. Only meant to size UI channel pickers.
func (e *Engine) ProbeChannelCounts(driver string) (int, int) {
	prober, ok := e.backend.(ChannelProber)
	if !ok {
		return 0, 0
	}

	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running {
		if err := e.backend.Initialize(); err != nil {
			return 0, 0
		}
		defer func() {
			if err := e.backend.Terminate(); err != nil {
				e.logf("engine: probe terminate: %v", err)
			}
		}()
	}

	in, out, err := prober.ChannelCounts(driver)
	if err != nil {
		e.logf("engine: channel probe for %q failed: %v", driver, err)
		return 0, 0
	}
	return in, out
}

// Snapshot is a telemetry snapshot for UI polling and the NATS status
// publisher.
type Snapshot struct {
	Running      bool    `json:"running"`
	Driver       string  `json:"driver"`
	SampleRate   float64 `json:"sample_rate"`
	BufferFrames int     `json:"buffer_frames"`

	RMS          float64 `json:"rms"`
	Peak         float64 `json:"peak"`
	Clip         bool    `json:"clip"`
	ProcessingMS float64 `json:"processing_ms"`
	CPUOverload  bool    `json:"cpu_overload"`
	LatencyMS    float64 `json:"latency_ms"`

	RecorderState    string  `json:"recorder_state"`
	RecordedSeconds  float64 `json:"recorded_seconds"`
	PlaybackProgress float64 `json:"playback_progress"`

	MetronomeOn bool    `json:"metronome_on"`
	BPM         float64 `json:"bpm"`
	Beat        int     `json:"beat"`
}

// Status assembles one telemetry snapshot. Meant to be polled at UI rate,
// roughly 30 times per second.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	running := e.running
	cfg := e.cfg.withDefaults()
	rate := e.sampleRate
	ring := e.ring
	e.mu.Unlock()

	if rate <= 0 {
		rate = cfg.SampleRate
	}
	backlog := 0.0
	if ring != nil {
		backlog = float64(ring.Len()) / rate
	}

	rms, peak, clip := e.tel.levels()
	proc, over, lat := e.tel.timing(backlog)

	return Snapshot{
		Running:          running,
		Driver:           cfg.Driver.String(),
		SampleRate:       rate,
		BufferFrames:     cfg.BufferFrames,
		RMS:              rms,
		Peak:             peak,
		Clip:             clip,
		ProcessingMS:     proc * 1000,
		CPUOverload:      over,
		LatencyMS:        lat * 1000,
		RecorderState:    e.rec.State().String(),
		RecordedSeconds:  float64(e.rec.Len()) / rate,
		PlaybackProgress: e.rec.Progress(),
		MetronomeOn:      e.metro.Enabled(),
		BPM:              e.metro.BPM(),
		Beat:             e.metro.Beat(),
	}
}
