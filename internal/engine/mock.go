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
	"fmt"
	"sync"
)

// MockBackend implements Backend for testing without hardware. Streams do
// not run on their own; tests drive callbacks explicitly through the Pump
// methods, which makes callback timing deterministic.
type MockBackend struct {
	mu          sync.Mutex
	initialized bool

	initError error
	openError error

	devices []DeviceInfo

	inputs   []*MockStream
	outputs  []*MockStream
	duplexes []*MockStream
}

// NewMockBackend creates a mock backend advertising one stereo duplex
// device named "mock".
func NewMockBackend() *MockBackend {
	return &MockBackend{
		devices: []DeviceInfo{{
			Name:              "mock",
			MaxInputChannels:  2,
			MaxOutputChannels: 2,
			DefaultSampleRate: 48000,
		}},
	}
}

// SetInitError configures Initialize to fail.
func (m *MockBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetOpenError configures every Open call to fail.
func (m *MockBackend) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
}

// SetDevices replaces the advertised device list.
func (m *MockBackend) SetDevices(devs []DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = devs
}

// Initialize initializes the mock subsystem.
func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initError != nil {
		return m.initError
	}
	m.initialized = true
	return nil
}

// Terminate terminates the mock subsystem and drops all streams.
func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.inputs = nil
	m.outputs = nil
	m.duplexes = nil
	return nil
}

// Initialized reports whether Initialize has been called.
func (m *MockBackend) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Devices returns the advertised device list.
func (m *MockBackend) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, fmt.Errorf("mock backend not initialized")
	}
	return m.devices, nil
}

// ChannelCounts reports the named device's channel counts.
func (m *MockBackend) ChannelCounts(driver string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return 0, 0, fmt.Errorf("mock backend not initialized")
	}
	for _, d := range m.devices {
		if d.Name == driver {
			return d.MaxInputChannels, d.MaxOutputChannels, nil
		}
	}
	return 0, 0, fmt.Errorf("mock device %q not found", driver)
}

// OpenInput opens a mock capture stream.
func (m *MockBackend) OpenInput(p StreamParams, fn InputFunc) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, fmt.Errorf("mock backend not initialized")
	}
	if m.openError != nil {
		return nil, m.openError
	}
	s := &MockStream{params: p, onInput: fn}
	m.inputs = append(m.inputs, s)
	return s, nil
}

// OpenOutput opens a mock render stream.
func (m *MockBackend) OpenOutput(p StreamParams, fn OutputFunc) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, fmt.Errorf("mock backend not initialized")
	}
	if m.openError != nil {
		return nil, m.openError
	}
	s := &MockStream{params: p, onOutput: fn}
	m.outputs = append(m.outputs, s)
	return s, nil
}

// OpenDuplex opens a mock duplex stream.
func (m *MockBackend) OpenDuplex(p DuplexParams, fn DuplexFunc) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil, fmt.Errorf("mock backend not initialized")
	}
	if m.openError != nil {
		return nil, m.openError
	}
	s := &MockStream{duplexParams: p, onDuplex: fn}
	m.duplexes = append(m.duplexes, s)
	return s, nil
}

// Input returns the most recently opened capture stream, or nil.
func (m *MockBackend) Input() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

// Output returns the most recently opened render stream, or nil.
func (m *MockBackend) Output() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outputs) == 0 {
		return nil
	}
	return m.outputs[len(m.outputs)-1]
}

// Duplex returns the most recently opened duplex stream, or nil.
func (m *MockBackend) Duplex() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.duplexes) == 0 {
		return nil
	}
	return m.duplexes[len(m.duplexes)-1]
}

// MockStream implements Stream and exposes the Pump methods that stand in
// for driver callbacks.
type MockStream struct {
	mu           sync.Mutex
	params       StreamParams
	duplexParams DuplexParams
	started      bool
	closed       bool

	startError error

	onInput  InputFunc
	onOutput OutputFunc
	onDuplex DuplexFunc
}

// SetStartError configures Start to fail.
func (s *MockStream) SetStartError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startError = err
}

// Params returns the stream's open parameters.
func (s *MockStream) Params() StreamParams { return s.params }

// DuplexOpenParams returns the duplex stream's open parameters.
func (s *MockStream) DuplexOpenParams() DuplexParams { return s.duplexParams }

// Started reports whether the stream is running.
func (s *MockStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

// Closed reports whether the stream has been closed.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startError != nil {
		return s.startError
	}
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	s.started = true
	return nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

// PumpInput delivers one wire block to the capture callback, as the driver
// thread would.
func (s *MockStream) PumpInput(wire []byte) {
	if s.Started() && s.onInput != nil {
		s.onInput(wire)
	}
}

// PumpOutput asks the render callback to fill one wire block.
func (s *MockStream) PumpOutput(wire []byte) {
	if s.Started() && s.onOutput != nil {
		s.onOutput(wire)
	}
}

// PumpDuplex runs one duplex callback with the given channel buffers.
func (s *MockStream) PumpDuplex(in, out [][]float32) {
	if s.Started() && s.onDuplex != nil {
		s.onDuplex(in, out)
	}
}
