package publish

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"context"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// NATSPublisher publishes cycle events to a NATS subject.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher creates a new NATS publisher.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("ns-accounting"))
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = config.DefaultNATSSubject
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

// Publish serializes the batch and publishes it to the configured subject.
func (p *NATSPublisher) Publish(ctx context.Context, batch model.TrafficBatch) error {
	data, err := Encode(batch)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Content-Type", ContentType)
	msg.Header.Set("Cycle-Id", batch.CycleID)
	msg.Data = data
	if err := p.nc.PublishMsg(msg); err != nil {
		return err
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains and closes the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
