package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

// ErrDuplicateSourceMessage indicates a channel redelivered a message that
// was already recorded. Callers skip the item; nothing new is enqueued.
var ErrDuplicateSourceMessage = errors.New("source message already recorded")

// Ingestion pulls new messages off channel backends, records each one as an
// immutable RawCommand with its dispatch task in a single atomic write, and
// only then advances the per-source cursor. Redelivered batches are
// deduplicated by the store's (source, message id) uniqueness; because the
// record and its task commit together, skipping a duplicate can never drop
// a message whose task was lost.
type Ingestion struct {
	settings    ports.SettingsStore
	rawCommands ports.RawCommandStore
	consumers   ports.ConsumerStore
	connectors  ConnectorRegistry
	now         func() time.Time
	log         *slog.Logger
}

// NewIngestion constructs the ingestion service.
func NewIngestion(
	settings ports.SettingsStore,
	rawCommands ports.RawCommandStore,
	consumers ports.ConsumerStore,
	connectors ConnectorRegistry,
	log *slog.Logger,
) *Ingestion {
	return &Ingestion{
		settings:    settings,
		rawCommands: rawCommands,
		consumers:   consumers,
		connectors:  connectors,
		now:         time.Now,
		log:         log,
	}
}

// RunPass executes one ingestion pass for a pull channel and reports how
// many new commands it recorded. An empty fetch leaves the cursor untouched.
// A failure mid-batch advances the cursor only past the items that were
// fully processed, so the failed item is fetched again on the next pass.
func (s *Ingestion) RunPass(ctx context.Context, source domain.Source) (int, error) {
	connector, ok := s.connectors[source]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}

	watermark, err := s.settings.GetWatermark(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("read %s watermark: %w", source, err)
	}

	items, err := connector.FetchSince(ctx, watermark)
	if err != nil {
		return 0, fmt.Errorf("fetch %s messages since %d: %w", source, watermark, err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	recorded := 0
	lastID := watermark
	var passErr error
	for _, item := range items {
		if err := s.ingestOne(ctx, source, item); err != nil {
			if errors.Is(err, ErrDuplicateSourceMessage) {
				s.log.InfoContext(ctx, "skipping redelivered message",
					slog.String("source", string(source)),
					slog.Int64("message_id", item.MessageID))
			} else {
				passErr = fmt.Errorf("ingest %s message %d: %w", source, item.MessageID, err)
				break
			}
		} else {
			recorded++
		}
		if item.MessageID > lastID {
			lastID = item.MessageID
		}
	}

	if lastID > watermark {
		if err := s.settings.AdvanceWatermark(ctx, source, lastID); err != nil {
			if passErr == nil {
				passErr = fmt.Errorf("advance %s watermark to %d: %w", source, lastID, err)
			}
		}
	}

	return recorded, passErr
}

func (s *Ingestion) ingestOne(ctx context.Context, source domain.Source, item ports.InboundMessage) error {
	if _, err := s.provisionConsumer(ctx, source, item.EmitterAddress, item.EmitterName); err != nil {
		return fmt.Errorf("provision consumer: %w", err)
	}
	_, err := s.Record(ctx, source, item.EmitterAddress, item.MessageID, item.Text)
	return err
}

// IngestMessage is the entry point for push channels that deliver one
// message at a time instead of being polled. It provisions the emitter,
// records the message and keeps the source cursor in step.
func (s *Ingestion) IngestMessage(ctx context.Context, source domain.Source, item ports.InboundMessage) error {
	if err := s.ingestOne(ctx, source, item); err != nil {
		return err
	}
	if err := s.settings.AdvanceWatermark(ctx, source, item.MessageID); err != nil {
		return fmt.Errorf("advance %s watermark to %d: %w", source, item.MessageID, err)
	}
	return nil
}

// Record writes one raw command together with its dispatch task. A message
// the store has already seen returns ErrDuplicateSourceMessage and writes
// nothing.
func (s *Ingestion) Record(ctx context.Context, source domain.Source, emitterID string, messageID int64, text string) (int64, error) {
	key, _, err := s.rawCommands.RecordCommandWithDispatch(ctx, domain.RawCommand{
		Source:    source,
		EmitterID: emitterID,
		MessageID: messageID,
		Command:   text,
		CreatedAt: s.now(),
	}, domain.TaskDispatchCommand)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return 0, ErrDuplicateSourceMessage
		}
		return 0, fmt.Errorf("record raw command: %w", err)
	}

	s.log.InfoContext(ctx, "raw command recorded",
		slog.String("source", string(source)),
		slog.Int64("message_id", messageID),
		slog.Int64("raw_command_key", key))
	return key, nil
}

func (s *Ingestion) provisionConsumer(ctx context.Context, source domain.Source, address, name string) (domain.Consumer, error) {
	consumer, err := s.consumers.GetConsumerByAddress(ctx, source, address)
	if err == nil {
		return consumer, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return domain.Consumer{}, err
	}

	consumer = domain.Consumer{Name: name, Language: "en"}
	switch source {
	case domain.SourceMail:
		consumer.Email = address
	default:
		consumer.MessagingHandle = address
	}

	key, err := s.consumers.CreateConsumer(ctx, consumer)
	if err != nil {
		// Two passes racing on the same new emitter; the loser reloads.
		if errors.Is(err, ports.ErrDuplicate) {
			return s.consumers.GetConsumerByAddress(ctx, source, address)
		}
		return domain.Consumer{}, err
	}
	consumer.Key = key

	s.log.InfoContext(ctx, "consumer provisioned",
		slog.String("source", string(source)),
		slog.Int64("consumer_key", key))
	return consumer, nil
}
