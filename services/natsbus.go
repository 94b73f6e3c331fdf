package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"cronwatch/models"
)

// NATSBridge relays events between instances. Local events are published on
// the subject; events from other instances are re-broadcast to local observers.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	origin  string
	local   Publisher
	sub     *nats.Subscription
}

func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("cronwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return nc, nil
}

func NewNATSBridge(nc *nats.Conn, subject, origin string, local Publisher) *NATSBridge {
	return &NATSBridge{nc: nc, subject: subject, origin: origin, local: local}
}

// Start subscribes to events published by other instances.
func (b *NATSBridge) Start() error {
	sub, err := b.nc.Subscribe(b.subject, b.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub
	return nil
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	var ev models.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("failed to unmarshal event", "error", err, "subject", msg.Subject)
		return
	}
	if ev.Origin == b.origin {
		return
	}
	b.local.Publish(ev)
}

func (b *NATSBridge) Publish(ev models.Event) {
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	if ev.Origin != b.origin {
		// Relayed from another instance; never echo it back.
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal event", "error", err)
		return
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		slog.Error("failed to publish event", "error", err, "subject", b.subject)
	}
}

func (b *NATSBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
}
