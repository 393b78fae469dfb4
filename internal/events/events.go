// Package events publishes dataset lifecycle notifications.
//
// Events are best effort: a publish failure is logged by the caller and never
// fails the operation that produced it. Subjects follow
//
//	{prefix}.dataset.{type}
//
// e.g. ragd.dataset.ingested.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// Event types.
const (
	TypeIngested = "ingested"
	TypeDeleted  = "deleted"
)

// Event describes a change to a dataset.
type Event struct {
	Type          string    `json:"type"`
	DatasetID     string    `json:"datasetId"`
	IngestedFiles int       `json:"ingestedFiles,omitempty"`
	FailedFiles   int       `json:"failedFiles,omitempty"`
	Chunks        int       `json:"chunks,omitempty"`
	Time          time.Time `json:"time"`
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// NATSPublisher publishes events as JSON on core NATS subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
	owned  bool
}

// Connect dials url and returns a publisher that closes the connection on
// Close.
func Connect(url, prefix string, logger *logging.Logger) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	nc, err := nats.Connect(url,
		nats.Name("ragd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix, logger)
	p.owned = true
	return p, nil
}

// NewNATSPublisher wraps an existing connection. Close leaves nc open.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *logging.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "ragd"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject an event of type typ is published on.
func (p *NATSPublisher) Subject(typ string) string {
	return p.prefix + ".dataset." + typ
}

// Publish sends e. A zero Time is set to now.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.Type == "" || e.DatasetID == "" {
		return errors.New("event type and dataset id are required")
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(e.Type))
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}

	p.logger.Debug(ctx, "event published",
		zap.String("subject", msg.Subject),
		zap.String("dataset.id", e.DatasetID))
	return nil
}

// Close drains the connection if the publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
