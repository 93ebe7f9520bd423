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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-amp-go/internal/engine"
	"github.com/loqalabs/loqa-amp-go/internal/metronome"
	"github.com/loqalabs/loqa-amp-go/internal/natspub"
	"github.com/loqalabs/loqa-amp-go/internal/profile"
	"github.com/loqalabs/loqa-amp-go/internal/recorder"
)

func main() {
	// Command line flags
	profilePath := flag.String("profile", "", "Rig profile YAML (defaults when empty)")
	natsURL := flag.String("nats", "", "NATS server URL for status publishing (disabled when empty)")
	rigID := flag.String("id", "amp-rig-001", "Rig identifier")
	listDevices := flag.Bool("list-devices", false, "List audio devices and exit")
	probe := flag.String("probe", "", "Probe a driver's channel counts and exit")
	record := flag.Bool("record", false, "Start recording immediately")
	export := flag.String("export", "", "Export the recording to this WAV path on shutdown")
	exportBits := flag.Int("export-bits", 32, "WAV export bit depth: 32 (float) or 16 (PCM)")
	duration := flag.Duration("duration", 0, "Stop automatically after this long (0 = run until Ctrl+C)")
	click := flag.Bool("metronome", false, "Enable the metronome regardless of the profile")
	flag.Parse()

	backend := engine.NewPortAudioBackend()

	if *listDevices {
		if err := listAudioDevices(backend); err != nil {
			log.Fatalf("❌ Failed to list devices: %v", err)
		}
		return
	}

	prof := profile.Default()
	if *profilePath != "" {
		var err error
		prof, err = profile.Load(*profilePath)
		if err != nil {
			log.Fatalf("❌ Failed to load profile: %v", err)
		}
	}

	cfg, err := prof.EngineConfig()
	if err != nil {
		log.Fatalf("❌ Invalid profile: %v", err)
	}

	chain, err := prof.BuildChain(cfg.SampleRate)
	if err != nil {
		log.Fatalf("❌ Failed to build effect chain: %v", err)
	}

	rec := recorder.New()
	metro := metronome.New()
	metro.SetBPM(prof.Metronome.BPM)
	metro.SetBeatsPerBar(prof.Metronome.BeatsPerBar)
	metro.SetVolume(prof.Metronome.Volume)
	metro.SetEnabled(prof.Metronome.Enabled || *click)

	eng := engine.New(backend, chain, rec, metro)

	if *probe != "" {
		in, out := eng.ProbeChannelCounts(*probe)
		fmt.Printf("driver %q: %d in / %d out\n", *probe, in, out)
		return
	}

	if err := eng.Configure(cfg); err != nil {
		log.Fatalf("❌ Failed to configure engine: %v", err)
	}

	log.Printf("🚀 Starting Loqa Amp Rig")
	log.Printf("📋 Rig ID: %s", *rigID)
	log.Printf("🎛️  Driver model: %s, %d effects in chain", cfg.Driver, chain.Len())

	if err := eng.Start(); err != nil {
		log.Fatalf("❌ Failed to start engine: %v", err)
	}
	defer eng.Stop()

	eng.OnOverload(func(over bool) {
		if over {
			log.Printf("⚠️  CPU overload: processing exceeds the callback budget")
		} else {
			log.Printf("✅ CPU overload cleared")
		}
	})

	var pub *natspub.StatusPublisher
	if *natsURL != "" {
		pub, err = natspub.NewStatusPublisher(*natsURL, *rigID, eng)
		if err != nil {
			log.Fatalf("❌ Failed to start NATS publisher: %v", err)
		}
		pub.Start(time.Second)
		defer pub.Close()
	}

	if *record {
		rec.StartRecording()
		log.Printf("⏺️  Recording")
	}

	// Meter line every 2s so levels are visible without a UI.
	meterStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-meterStop:
				return
			case <-ticker.C:
				s := eng.Status()
				log.Printf("📊 rms=%.3f peak=%.3f clip=%v proc=%.2fms latency=%.1fms state=%s",
					s.RMS, s.Peak, s.Clip, s.ProcessingMS, s.LatencyMS, s.RecorderState)
			}
		}
	}()

	fmt.Println()
	fmt.Println("🎸 Loqa Amp - Live Rig Active!")
	fmt.Println("⏹️  Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-sigChan:
		case <-time.After(*duration):
			log.Printf("⏲️  Duration elapsed")
		}
	} else {
		<-sigChan
	}

	log.Println("🛑 Shutting down rig...")
	close(meterStop)
	rec.StopAll()

	if *export != "" {
		if err := exportRecording(rec, *export, *exportBits, int(eng.SampleRate())); err != nil {
			log.Printf("❌ Export failed: %v", err)
		} else {
			log.Printf("💾 Exported recording to %s", *export)
		}
	}

	log.Println("👋 Rig stopped")
}

func exportRecording(rec *recorder.Recorder, path string, bits, sampleRate int) error {
	switch bits {
	case 32:
		return rec.ExportWAV(path, sampleRate)
	case 16:
		return rec.ExportWAV16(path, sampleRate)
	default:
		return fmt.Errorf("unsupported export bit depth %d (want 16 or 32)", bits)
	}
}

func listAudioDevices(backend *engine.PortAudioBackend) error {
	if err := backend.Initialize(); err != nil {
		return err
	}
	defer backend.Terminate()

	devs, err := backend.Devices()
	if err != nil {
		return err
	}
	for _, d := range devs {
		fmt.Printf("%-40s %d in / %d out @ %.0f Hz\n",
			d.Name, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate)
	}
	return nil
}
