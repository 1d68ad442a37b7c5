package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

const defaultSubject = "telecine.events"

// NATSBus publishes structured event JSON on a NATS subject so other
// services can react to pipeline progress.
type NATSBus struct {
	nc      *nats.Conn
	subject string
}

func ConnectNATS(url, subject string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &NATSBus{nc: nc, subject: subject}, nil
}

type natsEvent struct {
	Event     Event     `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload,omitempty"`
}

func (b *NATSBus) Publish(_ context.Context, event Event, payload Payload) error {
	data, err := json.Marshal(natsEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

func (b *NATSBus) Close() error {
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}
