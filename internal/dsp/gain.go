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

package dsp

// Gain scales the signal by a plain linear factor.
type Gain struct {
	base

	// Level is the linear gain factor, typically 0..2 with 1 = unity.
	Level float32
}

// NewGain creates an enabled gain stage at the given level.
func NewGain(level float32) *Gain {
	return &Gain{base: base{name: "gain", enabled: true}, Level: level}
}

func (g *Gain) Process(buf []float32) {
	level := g.Level
	if level == 1 {
		return
	}
	for i := range buf {
		buf[i] *= level
	}
}
