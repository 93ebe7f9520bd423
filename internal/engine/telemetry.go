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
	"math"
	"sync"
	"time"
)

// emaAlpha is the smoothing factor for the processing-time average.
const emaAlpha = 0.2

// Telemetry aggregates per-callback measurements for the UI poll loop. The
// audio thread calls update once per callback; everything it does under the
// mutex is O(1), so the lock is bounded like the recorder's.
type Telemetry struct {
	mu          sync.Mutex
	rms         float64
	peak        float64
	clip        bool
	smoothedSec float64
	seeded      bool
	overloaded  bool
	budgetSec   float64
	onOverload  func(overloaded bool)
}

func newTelemetry() *Telemetry {
	return &Telemetry{}
}

// reset arms the telemetry for a new monitoring session with the given
// real-time budget per callback (frames / sampleRate).
func (t *Telemetry) reset(budgetSec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rms = 0
	t.peak = 0
	t.clip = false
	t.smoothedSec = 0
	t.seeded = false
	t.overloaded = false
	t.budgetSec = budgetSec
}

// setOnOverload registers the CPU-overload edge callback. It fires only on
// transitions, not on every callback.
func (t *Telemetry) setOnOverload(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOverload = fn
}

// update records one processed buffer and its wall-clock processing time.
func (t *Telemetry) update(buf []float32, elapsed time.Duration) {
	var sum float64
	peak := 0.0
	clip := false
	for _, s := range buf {
		v := float64(s)
		sum += v * v
		a := math.Abs(v)
		if a > peak {
			peak = a
		}
		if a >= 1 {
			clip = true
		}
	}
	rms := 0.0
	if len(buf) > 0 {
		rms = math.Sqrt(sum / float64(len(buf)))
	}

	sec := elapsed.Seconds()

	t.mu.Lock()
	t.rms = rms
	t.peak = peak
	t.clip = clip
	if !t.seeded {
		t.smoothedSec = sec
		t.seeded = true
	} else {
		t.smoothedSec += emaAlpha * (sec - t.smoothedSec)
	}
	over := t.budgetSec > 0 && t.smoothedSec > t.budgetSec
	edge := over != t.overloaded
	t.overloaded = over
	fn := t.onOverload
	t.mu.Unlock()

	if edge && fn != nil {
		fn(over)
	}
}

// levels returns the current meter values.
func (t *Telemetry) levels() (rms, peak float64, clip bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rms, t.peak, t.clip
}

// timing returns the smoothed processing time, the overload flag and the
// calculated end-to-end latency, all in seconds. backlogSec is the extra
// ring-buffer backlog of the shared/exclusive model; the direct model
// passes 0.
func (t *Telemetry) timing(backlogSec float64) (procSec float64, overloaded bool, latencySec float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.smoothedSec, t.overloaded, t.budgetSec + t.smoothedSec + backlogSec
}
