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

// Package natspub publishes engine status snapshots and log events over
// NATS so rigs on stage can be monitored from front of house.
package natspub

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-amp-go/internal/engine"
)

// RigNATSConnection interface for dependency injection
type RigNATSConnection interface {
	Publish(subject string, data []byte) error
	Close()
}

// RigNATSConnectionAdapter adapts *nats.Conn to RigNATSConnection interface
type RigNATSConnectionAdapter struct {
	conn *nats.Conn
}

func NewRigNATSConnectionAdapter(conn *nats.Conn) *RigNATSConnectionAdapter {
	return &RigNATSConnectionAdapter{conn: conn}
}

func (r *RigNATSConnectionAdapter) Publish(subject string, data []byte) error {
	return r.conn.Publish(subject, data)
}

func (r *RigNATSConnectionAdapter) Close() {
	r.conn.Close()
}

// StatusSource is anything that can snapshot its running state. The engine
// satisfies it.
type StatusSource interface {
	Status() engine.Snapshot
}

// LogEvent is a rig log line shipped over NATS.
type LogEvent struct {
	RigID   string    `json:"rig_id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// StatusPublisher periodically publishes engine snapshots on
// loqa.amp.status.<rigID> and log events on loqa.amp.log.<rigID>.
type StatusPublisher struct {
	natsConn RigNATSConnection
	rigID    string
	source   StatusSource

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// NewStatusPublisher connects to NATS with retry and returns a publisher
// for the given rig.
func NewStatusPublisher(natsURL, rigID string, source StatusSource) (*StatusPublisher, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(natsURL)
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/5): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)

	return NewStatusPublisherWithConnection(NewRigNATSConnectionAdapter(nc), rigID, source), nil
}

// NewStatusPublisherWithConnection creates a publisher with an existing
// connection (for testing).
func NewStatusPublisherWithConnection(natsConn RigNATSConnection, rigID string, source StatusSource) *StatusPublisher {
	return &StatusPublisher{
		natsConn: natsConn,
		rigID:    rigID,
		source:   source,
		stopCh:   make(chan struct{}),
	}
}

// Start begins publishing snapshots at the given interval until Close.
func (sp *StatusPublisher) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sp.stopCh:
				return
			case <-ticker.C:
				if err := sp.PublishStatus(); err != nil {
					log.Printf("⚠️  Failed to publish status: %v", err)
				}
			}
		}
	}()
	log.Printf("📡 Publishing rig status on %s", sp.statusSubject())
}

// PublishStatus publishes one snapshot immediately.
func (sp *StatusPublisher) PublishStatus() error {
	snap := sp.source.Status()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := sp.natsConn.Publish(sp.statusSubject(), data); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// PublishLog ships one log event.
func (sp *StatusPublisher) PublishLog(level, message string) error {
	ev := LogEvent{
		RigID:   sp.rigID,
		Level:   level,
		Message: message,
		Time:    time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal log event: %w", err)
	}
	if err := sp.natsConn.Publish(sp.logSubject(), data); err != nil {
		return fmt.Errorf("failed to publish log event: %w", err)
	}
	return nil
}

func (sp *StatusPublisher) statusSubject() string {
	return fmt.Sprintf("loqa.amp.status.%s", sp.rigID)
}

func (sp *StatusPublisher) logSubject() string {
	return fmt.Sprintf("loqa.amp.log.%s", sp.rigID)
}

// Close stops the publish loop and closes the NATS connection.
func (sp *StatusPublisher) Close() {
	sp.mu.Lock()
	if !sp.stopped {
		sp.stopped = true
		close(sp.stopCh)
	}
	sp.mu.Unlock()

	if sp.natsConn != nil {
		sp.natsConn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
