// Package services implements the command pipeline: cursor-driven
// ingestion, command dispatch, the demand and proposal validation state
// machines, and reply delivery back over the originating channels.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

var (
	// ErrUnknownSource indicates no connector is registered for a channel.
	ErrUnknownSource = errors.New("no connector registered for source")
	// ErrCommunicationFailure indicates a reply could not be delivered,
	// either because the actor has no address on the channel or because the
	// channel backend rejected the send.
	ErrCommunicationFailure = errors.New("communication failure")
)

// ConnectorRegistry maps each source to the connector replies leave on.
type ConnectorRegistry map[domain.Source]ports.Connector

// NewConnectorRegistry indexes connectors by their source.
func NewConnectorRegistry(connectors ...ports.Connector) ConnectorRegistry {
	registry := make(ConnectorRegistry, len(connectors))
	for _, connector := range connectors {
		registry[connector.Source()] = connector
	}
	return registry
}

// Notifier delivers already-localized messages to actors over the channel
// their command arrived on. Delivery is best effort; callers log failures
// and never roll back entity writes because a reply bounced.
type Notifier struct {
	connectors ConnectorRegistry
	log        *slog.Logger
}

// NewNotifier constructs a notifier over the registered connectors.
func NewNotifier(connectors ConnectorRegistry, log *slog.Logger) *Notifier {
	return &Notifier{connectors: connectors, log: log}
}

// NotifyConsumer sends messages to a consumer on the given channel.
func (n *Notifier) NotifyConsumer(ctx context.Context, source domain.Source, consumer domain.Consumer, messages ...string) error {
	return n.send(ctx, source, consumer.AddressFor(source), messages)
}

// NotifySaleAssociate sends messages to a sale associate on the given channel.
func (n *Notifier) NotifySaleAssociate(ctx context.Context, source domain.Source, associate domain.SaleAssociate, messages ...string) error {
	return n.send(ctx, source, associate.AddressFor(source), messages)
}

func (n *Notifier) send(ctx context.Context, source domain.Source, address string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	if address == "" {
		return fmt.Errorf("%w: no %s address on record", ErrCommunicationFailure, source)
	}
	connector, ok := n.connectors[source]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if err := connector.Send(ctx, address, messages); err != nil {
		return fmt.Errorf("%w: %v", ErrCommunicationFailure, err)
	}
	n.log.DebugContext(ctx, "reply delivered", slog.String("source", string(source)), slog.Int("messages", len(messages)))
	return nil
}
