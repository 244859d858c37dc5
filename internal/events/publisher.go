// Package events publishes store sync outcomes to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
	"storefront-builder-service/internal/models"
)

const (
	StreamName     = "STOREFRONT_EVENTS"
	streamSubjects = "storefront.>"
)

// Publisher emits sync events
type Publisher interface {
	Publish(ctx context.Context, event *models.SyncEvent) error
}

// NopPublisher drops every event
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, *models.SyncEvent) error { return nil }

// NATSPublisher publishes sync events to a JetStream stream
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *logrus.Entry
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS and ensures the event stream exists
func NewNATSPublisher(ctx context.Context, natsURL string, logger *logrus.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logrus.New()
	}
	log := logger.WithField("component", "nats-publisher")

	nc, err := nats.Connect(natsURL,
		nats.Name("storefront-builder-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("Reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("Disconnected from NATS")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{streamSubjects},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour * 7,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		log.WithError(err).Warn("Could not create storefront event stream")
	}

	return &NATSPublisher{nc: nc, js: js, logger: log}, nil
}

// Publish sends the event on the subject named by its type
func (p *NATSPublisher) Publish(ctx context.Context, event *models.SyncEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}
	if _, err := p.js.Publish(ctx, string(event.EventType), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType, err)
	}
	return nil
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.WithError(err).Warn("Failed to drain NATS connection")
	}
}
