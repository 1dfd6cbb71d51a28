package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher публикует события в NATS, subject совпадает с типом события.
type NATSPublisher struct {
	conn natsConn
}

// NewNATSPublisher подключается к серверу NATS.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("orderbot"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish кодирует событие в JSON и отправляет его.
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(string(e.Type), data); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
