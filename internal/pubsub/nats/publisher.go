// Package nats publishes scan events to a NATS subject so that other services can follow
// leaderboard updates without polling the dashboard.
package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "ipboard.scans"

// Publisher wraps a NATS connection bound to one subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("ipboard"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}

	logger.Info("connected to NATS", zap.String("url", url), zap.String("subject", subject))

	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// Publish sends the event as JSON.
func (p *Publisher) Publish(ctx context.Context, event domain.ScanEvent) error {
	if p == nil || p.nc == nil {
		return errors.New("nats publisher is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal scan event")
	}

	if err := p.nc.Publish(p.subject, payload); err != nil {
		return errors.Wrapf(err, "publish to %s", p.subject)
	}

	return nil
}

// Subject returns the subject events are published to.
func (p *Publisher) Subject() string {
	return p.subject
}

// Ready reports whether the connection is currently established.
func (p *Publisher) Ready() bool {
	if p == nil || p.nc == nil {
		return false
	}
	return p.nc.Status() == nats.CONNECTED
}

// Status returns the connection state, DISCONNECTED for an unconnected publisher.
func (p *Publisher) Status() nats.Status {
	if p == nil || p.nc == nil {
		return nats.DISCONNECTED
	}
	return p.nc.Status()
}

// Close drains pending messages and closes the connection. Safe to call more than once.
func (p *Publisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	if p.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := p.nc.Drain(); err != nil {
		p.logger.Error("failed to drain NATS connection", zap.Error(err))
		p.nc.Close()
		return errors.Wrap(err, "failed to drain NATS connection")
	}

	p.nc.Close()
	p.logger.Info("NATS connection closed")
	return nil
}
