// Package events publishes orchestrator lifecycle events to NATS so that
// downstream consumers can follow discovery and broadcast activity.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/blockedby/herald/internal/logger"
)

const (
	SubjectTargetDiscovered = "herald.target.discovered"
	SubjectBroadcastCycle   = "herald.broadcast.cycle"
)

// TargetDiscoveredEvent is emitted when a session joins a chat found through
// an invite link and registers it as a broadcast target.
type TargetDiscoveredEvent struct {
	OwnerID      int64     `json:"owner_id"`
	Phone        string    `json:"phone"`
	ChatID       int64     `json:"chat_id"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// BroadcastCycleEvent is emitted after a session finishes one send cycle.
type BroadcastCycleEvent struct {
	OwnerID int64     `json:"owner_id"`
	Phone   string    `json:"phone"`
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
	At      time.Time `json:"at"`
}

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// Publisher emits orchestrator events on plain NATS subjects. Publishing is
// best-effort: failures are logged and never surfaced to the caller, so a
// flaky broker cannot stall a broadcast loop.
type Publisher struct {
	nc  NATSClient
	log *logger.Logger
}

// NewPublisher creates a publisher over an established connection.
func NewPublisher(conn *nats.Conn, log *logger.Logger) *Publisher {
	return &Publisher{nc: conn, log: log}
}

// TargetDiscovered publishes a target-discovered event.
func (p *Publisher) TargetDiscovered(ctx context.Context, ownerID int64, phone string, chatID int64) {
	p.publish(SubjectTargetDiscovered, TargetDiscoveredEvent{
		OwnerID:      ownerID,
		Phone:        phone,
		ChatID:       chatID,
		DiscoveredAt: time.Now().UTC(),
	})
}

// BroadcastCycle publishes a broadcast-cycle event.
func (p *Publisher) BroadcastCycle(ctx context.Context, ownerID int64, phone string, sent, failed int) {
	p.publish(SubjectBroadcastCycle, BroadcastCycleEvent{
		OwnerID: ownerID,
		Phone:   phone,
		Sent:    sent,
		Failed:  failed,
		At:      time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("publish event")
	}
}
