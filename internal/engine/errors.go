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

import "errors"

var (
	// ErrNoDevice means the ring-buffer driver model was started without an
	// input or output device configured.
	ErrNoDevice = errors.New("engine: input and output devices must be configured")

	// ErrNoDriver means the direct driver model was started without a
	// driver name configured.
	ErrNoDriver = errors.New("engine: no direct driver name configured")

	// ErrUnsupportedFormat means the configured wire format is not valid
	// for the selected driver model.
	ErrUnsupportedFormat = errors.New("engine: unsupported wire format")

	// ErrRunning means a configuration change was attempted that requires
	// the engine to be stopped.
	ErrRunning = errors.New("engine: already running")
)
