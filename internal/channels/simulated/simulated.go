// Package simulated is the in-process loop-back channel. Messages posted
// into it are fetched by the ingestion pass like any pull channel, and
// replies sent through it are kept for inspection. It backs integration
// tests and local experiments without any external messaging account.
package simulated

import (
	"context"
	"sync"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

// Connector implements ports.Connector in memory.
type Connector struct {
	mu      sync.Mutex
	nextID  int64
	inbound []ports.InboundMessage
	replies map[string][]string
}

// New returns an empty loop-back connector.
func New() *Connector {
	return &Connector{replies: map[string][]string{}}
}

func (c *Connector) Source() domain.Source { return domain.SourceSimulated }

// Post queues a message as if the emitter had sent it on a real channel
// and returns the assigned message identifier.
func (c *Connector) Post(emitterAddress, emitterName, text string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.inbound = append(c.inbound, ports.InboundMessage{
		MessageID:      c.nextID,
		EmitterAddress: emitterAddress,
		EmitterName:    emitterName,
		Text:           text,
	})
	return c.nextID
}

func (c *Connector) FetchSince(_ context.Context, sinceID int64) ([]ports.InboundMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ports.InboundMessage
	for _, item := range c.inbound {
		if item.MessageID > sinceID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *Connector) Send(_ context.Context, address string, messages []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[address] = append(c.replies[address], messages...)
	return nil
}

// Replies returns everything sent to an address so far.
func (c *Connector) Replies(address string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.replies[address]...)
}

var _ ports.Connector = (*Connector)(nil)
