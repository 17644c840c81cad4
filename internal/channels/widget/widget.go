// Package widget is the embeddable web widget channel. Unlike the pull
// channels it is push: the widget posts one CloudEvents envelope per
// command, and picks replies up again by polling. The event's sequence
// extension carries the source message identifier the pipeline dedups and
// advances the cursor on.
package widget

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	cebinding "github.com/cloudevents/sdk-go/v2/binding"
	ceevent "github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/app/services"
)

// EventType is the only CloudEvents type the widget endpoint accepts.
const EventType = "com.souk.widget.command"

// SequenceExtension names the extension carrying the source message id.
const SequenceExtension = "sequence"

var (
	// ErrInvalidEnvelope indicates the request is not a usable CloudEvent.
	ErrInvalidEnvelope = errors.New("invalid widget event envelope")
	// ErrUnsupportedEventType indicates an event type other than EventType.
	ErrUnsupportedEventType = errors.New("unsupported widget event type")
)

// command is the event payload.
type command struct {
	Emitter string `json:"emitter"`
	Name    string `json:"name"`
	Text    string `json:"text"`
}

// Channel accepts widget commands and holds replies until the widget polls
// them back.
type Channel struct {
	ingestion *services.Ingestion

	mu      sync.Mutex
	replies map[string][]string
}

// NewChannel constructs the widget channel over the ingestion service.
func NewChannel(ingestion *services.Ingestion) *Channel {
	return &Channel{ingestion: ingestion, replies: map[string][]string{}}
}

// SetIngestion binds the ingestion service after construction. The channel
// is registered with the connector registry the ingestion service is built
// over, so one side has to be wired late.
func (c *Channel) SetIngestion(ingestion *services.Ingestion) {
	c.ingestion = ingestion
}

func (c *Channel) Source() domain.Source { return domain.SourceWidget }

// FetchSince always returns nothing; the widget pushes.
func (c *Channel) FetchSince(context.Context, int64) ([]ports.InboundMessage, error) {
	return nil, nil
}

// Send parks replies for the widget's next poll.
func (c *Channel) Send(_ context.Context, address string, messages []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[address] = append(c.replies[address], messages...)
	return nil
}

// DrainReplies returns and clears the replies parked for an address.
func (c *Channel) DrainReplies(address string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.replies[address]
	delete(c.replies, address)
	return out
}

// HandleEvent decodes one CloudEvents envelope (binary or structured HTTP
// binding) and feeds it to the pipeline. A redelivered sequence returns
// services.ErrDuplicateSourceMessage so the transport can acknowledge it
// without creating anything.
func (c *Channel) HandleEvent(ctx context.Context, headers http.Header, body []byte) error {
	event, err := parseEvent(ctx, headers, body)
	if err != nil {
		return err
	}
	if event.Type() != EventType {
		return ErrUnsupportedEventType
	}

	sequence, err := sequenceOf(event)
	if err != nil {
		return err
	}

	var payload command
	if err := event.DataAs(&payload); err != nil {
		return ErrInvalidEnvelope
	}
	payload.Emitter = strings.TrimSpace(payload.Emitter)
	payload.Text = strings.TrimSpace(payload.Text)
	if payload.Emitter == "" || payload.Text == "" {
		return ErrInvalidEnvelope
	}

	return c.ingestion.IngestMessage(ctx, domain.SourceWidget, ports.InboundMessage{
		MessageID:      sequence,
		EmitterAddress: payload.Emitter,
		EmitterName:    payload.Name,
		Text:           payload.Text,
	})
}

func parseEvent(ctx context.Context, headers http.Header, body []byte) (*ceevent.Event, error) {
	req := &http.Request{
		Method: http.MethodPost,
		Header: headers.Clone(),
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	message := cehttp.NewMessageFromHttpRequest(req)
	defer func() {
		_ = message.Finish(nil)
	}()

	event, err := cebinding.ToEvent(ctx, message)
	if err != nil {
		return nil, ErrInvalidEnvelope
	}
	return event, nil
}

func sequenceOf(event *ceevent.Event) (int64, error) {
	raw, ok := event.Extensions()[SequenceExtension]
	if !ok {
		return 0, ErrInvalidEnvelope
	}
	switch value := raw.(type) {
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case string:
		sequence, err := strconv.ParseInt(value, 10, 64)
		if err != nil || sequence <= 0 {
			return 0, ErrInvalidEnvelope
		}
		return sequence, nil
	}
	return 0, ErrInvalidEnvelope
}

var _ ports.Connector = (*Channel)(nil)
