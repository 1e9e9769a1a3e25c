package publish

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"fmt"
)

// New creates the publisher selected by cfg.Type. It returns nil when publishing is disabled.
func New(cfg config.PublisherConfig) (model.Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Type {
	case "nats":
		p, err := NewNATSPublisher(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "amqp":
		p, err := NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown publisher type: '%s'", cfg.Type)
	}
}
