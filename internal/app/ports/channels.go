package ports

import (
	"context"

	"github.com/ryefield/souk/internal/app/domain"
)

// InboundMessage is one item fetched from a channel backend, not yet
// recorded.
type InboundMessage struct {
	// MessageID is the channel-assigned, monotonically comparable
	// identifier used for watermark arithmetic.
	MessageID      int64
	EmitterAddress string
	EmitterName    string
	Text           string
}

// Connector adapts one physical channel backend. Pull channels implement
// FetchSince; every channel implements Send so replies can leave on the
// channel the command arrived on.
type Connector interface {
	Source() domain.Source
	// FetchSince returns items strictly newer than sinceID, oldest first.
	FetchSince(ctx context.Context, sinceID int64) ([]InboundMessage, error)
	Send(ctx context.Context, address string, messages []string) error
}

// CommandParser turns raw text into a structured command. Grammar and NLP
// live behind this interface, outside the pipeline.
type CommandParser interface {
	Parse(ctx context.Context, raw domain.RawCommand) (domain.ParsedCommand, error)
}

// Geocoder resolves a location's postal address into coordinates. A failed
// resolution returns the location with sentinel coordinates, not an error;
// errors are reserved for provider or transport trouble.
type Geocoder interface {
	Resolve(ctx context.Context, location domain.Location) (domain.Location, error)
}
