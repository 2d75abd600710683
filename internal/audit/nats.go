package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes audit data on <subject>.goal and <subject>.run.
type NATSPublisher struct {
	pub     publisher
	subject string
	close   func() error
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("goalflow-audit"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return &NATSPublisher{
		pub:     nc,
		subject: subject,
		close: func() error {
			return nc.Drain()
		},
	}, nil
}

func (p *NATSPublisher) RecordGoal(ctx context.Context, r Record) error {
	return p.publish(p.subject+".goal", r)
}

func (p *NATSPublisher) RecordRun(ctx context.Context, s Summary) error {
	return p.publish(p.subject+".run", s)
}

func (p *NATSPublisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
