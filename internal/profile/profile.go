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

// Package profile loads and saves rig profiles: engine setup, metronome
// settings and the effect chain, as YAML.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loqalabs/loqa-amp-go/internal/dsp"
	"github.com/loqalabs/loqa-amp-go/internal/engine"
)

// Profile is the on-disk rig description.
type Profile struct {
	Engine       EngineSection    `yaml:"engine"`
	Metronome    MetronomeSection `yaml:"metronome"`
	MasterVolume float64          `yaml:"master_volume"`
	Chain        []EffectSection  `yaml:"chain"`
}

// EngineSection mirrors engine.Config in YAML form.
type EngineSection struct {
	Driver       string  `yaml:"driver"`
	SampleRate   float64 `yaml:"sample_rate"`
	BufferFrames int     `yaml:"buffer_frames"`

	InputDevice  string `yaml:"input_device,omitempty"`
	OutputDevice string `yaml:"output_device,omitempty"`
	Channels     int    `yaml:"channels,omitempty"`
	Format       string `yaml:"format,omitempty"`

	DriverName     string `yaml:"driver_name,omitempty"`
	InputOffset    int    `yaml:"input_offset,omitempty"`
	InputChannels  int    `yaml:"input_channels,omitempty"`
	OutputOffset   int    `yaml:"output_offset,omitempty"`
	OutputChannels int    `yaml:"output_channels,omitempty"`
}

// MetronomeSection holds the persisted metronome settings.
type MetronomeSection struct {
	Enabled     bool    `yaml:"enabled"`
	BPM         float64 `yaml:"bpm"`
	BeatsPerBar int     `yaml:"beats_per_bar"`
	Volume      float64 `yaml:"volume"`
}

// EffectSection is one chain entry. Params carries the effect's knobs by
// name; Bands is only read by the graphic EQ.
type EffectSection struct {
	Type    string             `yaml:"type"`
	Enabled *bool              `yaml:"enabled,omitempty"`
	Params  map[string]float64 `yaml:"params,omitempty"`
	Bands   []float64          `yaml:"bands,omitempty"`
}

// Default returns the profile used when none exists on disk: shared-mode
// stereo float at 48k/256 with an empty chain and a 120 BPM metronome.
func Default() *Profile {
	return &Profile{
		Engine: EngineSection{
			Driver:       "shared",
			SampleRate:   48000,
			BufferFrames: 256,
			Channels:     2,
			Format:       "float32",
		},
		Metronome: MetronomeSection{
			BPM:         120,
			BeatsPerBar: 4,
			Volume:      1,
		},
		MasterVolume: 1,
	}
}

// Load reads a profile from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return p, nil
}

// Save writes the profile to path.
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// EngineConfig translates the engine section into an engine.Config.
func (p *Profile) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		SampleRate:   p.Engine.SampleRate,
		BufferFrames: p.Engine.BufferFrames,

		InputDevice:  p.Engine.InputDevice,
		OutputDevice: p.Engine.OutputDevice,
		Channels:     p.Engine.Channels,

		DriverName:     p.Engine.DriverName,
		InputOffset:    p.Engine.InputOffset,
		InputChannels:  p.Engine.InputChannels,
		OutputOffset:   p.Engine.OutputOffset,
		OutputChannels: p.Engine.OutputChannels,
	}

	switch p.Engine.Driver {
	case "", "shared":
		cfg.Driver = engine.SharedIO
	case "exclusive":
		cfg.Driver = engine.ExclusiveIO
	case "direct":
		cfg.Driver = engine.DirectIO
	default:
		return engine.Config{}, fmt.Errorf("unknown driver %q", p.Engine.Driver)
	}

	switch p.Engine.Format {
	case "", "float32":
		cfg.Format = engine.Float32
	case "int16":
		cfg.Format = engine.Int16
	case "int24":
		cfg.Format = engine.Int24
	case "int32":
		cfg.Format = engine.Int32
	default:
		return engine.Config{}, fmt.Errorf("unknown wire format %q", p.Engine.Format)
	}

	return cfg, nil
}

// BuildChain constructs the effect chain described by the profile for the
// given sample rate.
func (p *Profile) BuildChain(sampleRate float64) (*dsp.Chain, error) {
	chain := dsp.NewChain()
	chain.SetVolume(p.MasterVolume)
	for i, sec := range p.Chain {
		eff, err := buildEffect(sec, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("chain entry %d: %w", i, err)
		}
		if sec.Enabled != nil {
			eff.SetEnabled(*sec.Enabled)
		}
		chain.Add(eff)
	}
	return chain, nil
}

func buildEffect(sec EffectSection, sampleRate float64) (dsp.Effect, error) {
	get := func(key string, def float64) float64 {
		if v, ok := sec.Params[key]; ok {
			return v
		}
		return def
	}

	switch sec.Type {
	case "gain":
		return dsp.NewGain(float32(get("level", 1))), nil

	case "eq3":
		eq := dsp.NewEQ3(sampleRate)
		eq.Low = get("low", eq.Low)
		eq.Mid = get("mid", eq.Mid)
		eq.High = get("high", eq.High)
		eq.LowFreq = get("low_freq", eq.LowFreq)
		eq.HighFreq = get("high_freq", eq.HighFreq)
		return eq, nil

	case "graphiceq":
		eq := dsp.NewGraphicEQ(sampleRate)
		for band, gainDB := range sec.Bands {
			if band >= dsp.NumGraphicBands {
				return nil, fmt.Errorf("graphiceq: %d bands given, at most %d supported", len(sec.Bands), dsp.NumGraphicBands)
			}
			eq.SetBandGain(band, gainDB)
		}
		return eq, nil

	case "compressor":
		c := dsp.NewCompressor(sampleRate)
		c.ThresholdDB = get("threshold_db", c.ThresholdDB)
		c.Ratio = get("ratio", c.Ratio)
		c.KneeDB = get("knee_db", c.KneeDB)
		c.Attack = get("attack", c.Attack)
		c.Release = get("release", c.Release)
		c.MakeupDB = get("makeup_db", c.MakeupDB)
		return c, nil

	case "gate":
		g := dsp.NewNoiseGate(sampleRate)
		g.OpenThreshold = get("open_threshold", g.OpenThreshold)
		g.CloseThreshold = get("close_threshold", g.CloseThreshold)
		g.Attack = get("attack", g.Attack)
		g.Release = get("release", g.Release)
		g.Hold = get("hold", g.Hold)
		return g, nil

	case "distortion":
		d := dsp.NewDistortion(sampleRate)
		d.Drive = get("drive", d.Drive)
		d.ToneHz = get("tone_hz", d.ToneHz)
		return d, nil

	case "fuzz":
		f := dsp.NewFuzz(sampleRate)
		f.Drive = get("drive", f.Drive)
		f.GateLevel = get("gate_level", f.GateLevel)
		f.ToneHz = get("tone_hz", f.ToneHz)
		return f, nil

	case "delay":
		d := dsp.NewDelay(sampleRate)
		d.Time = get("time", d.Time)
		d.Feedback = get("feedback", d.Feedback)
		d.Mix = get("mix", d.Mix)
		return d, nil

	case "chorus":
		c := dsp.NewChorus(sampleRate)
		c.Rate = get("rate", c.Rate)
		c.Depth = get("depth", c.Depth)
		c.Mix = get("mix", c.Mix)
		return c, nil

	case "reverb":
		r := dsp.NewReverb(sampleRate)
		r.Decay = get("decay", r.Decay)
		r.Damping = get("damping", r.Damping)
		r.Mix = get("mix", r.Mix)
		return r, nil

	default:
		return nil, fmt.Errorf("unknown effect type %q", sec.Type)
	}
}
