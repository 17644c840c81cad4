package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

func newTestIngestion(store *fakeStore, queue *fakeQueue, connectors ...ports.Connector) *Ingestion {
	store.queue = queue
	return NewIngestion(store, store, store, NewConnectorRegistry(connectors...), discardLogger())
}

func TestRunPassRecordsBatchAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{}
	connector := newFakeConnector(domain.SourceMessaging)
	connector.inbound = []ports.InboundMessage{
		{MessageID: 101, EmitterAddress: "buyer_one", EmitterName: "Buyer One", Text: "demand tags:console"},
		{MessageID: 102, EmitterAddress: "buyer_two", EmitterName: "Buyer Two", Text: "demand tags:retro"},
	}

	ingestion := newTestIngestion(store, queue, connector)

	recorded, err := ingestion.RunPass(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("run pass: %v", err)
	}
	if recorded != 2 {
		t.Fatalf("recorded = %d, want 2", recorded)
	}

	tasks := queue.byKind(domain.TaskDispatchCommand)
	if len(tasks) != 2 {
		t.Fatalf("dispatch tasks = %d, want 2", len(tasks))
	}

	mark, err := store.GetWatermark(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("get watermark: %v", err)
	}
	if mark != 102 {
		t.Fatalf("watermark = %d, want 102", mark)
	}

	if _, err := store.GetConsumerByAddress(ctx, domain.SourceMessaging, "buyer_one"); err != nil {
		t.Fatalf("consumer not provisioned: %v", err)
	}
}

func TestRunPassEmptyFetchLeavesEverythingUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	store.watermarks[domain.SourceMessaging] = 500
	queue := &fakeQueue{}
	connector := newFakeConnector(domain.SourceMessaging)

	ingestion := newTestIngestion(store, queue, connector)

	for range 3 {
		recorded, err := ingestion.RunPass(ctx, domain.SourceMessaging)
		if err != nil {
			t.Fatalf("run pass: %v", err)
		}
		if recorded != 0 {
			t.Fatalf("recorded = %d, want 0", recorded)
		}
	}

	if len(queue.tasks) != 0 {
		t.Fatalf("tasks enqueued on empty passes: %d", len(queue.tasks))
	}
	if mark := store.watermarks[domain.SourceMessaging]; mark != 500 {
		t.Fatalf("watermark moved to %d", mark)
	}
}

func TestRunPassSkipsRedeliveredMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{}
	connector := newFakeConnector(domain.SourceMessaging)
	connector.inbound = []ports.InboundMessage{
		{MessageID: 101, EmitterAddress: "buyer_one", Text: "demand tags:console"},
		{MessageID: 102, EmitterAddress: "buyer_one", Text: "demand tags:retro"},
	}

	ingestion := newTestIngestion(store, queue, connector)

	if _, err := ingestion.RunPass(ctx, domain.SourceMessaging); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// Simulate a cursor that was never advanced: the backend redelivers the
	// whole batch plus one genuinely new item.
	store.watermarks[domain.SourceMessaging] = 0
	connector.inbound = append(connector.inbound,
		ports.InboundMessage{MessageID: 103, EmitterAddress: "buyer_one", Text: "demand tags:games"})

	recorded, err := ingestion.RunPass(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("recorded = %d, want 1", recorded)
	}

	tasks := queue.byKind(domain.TaskDispatchCommand)
	if len(tasks) != 3 {
		t.Fatalf("dispatch tasks = %d, want 3 (one per distinct message)", len(tasks))
	}
	if mark := store.watermarks[domain.SourceMessaging]; mark != 103 {
		t.Fatalf("watermark = %d, want 103", mark)
	}
}

func TestRunPassFailureDoesNotAdvancePastFailedItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	store.seedConsumer(domain.Consumer{Name: "Buyer One", Language: "en", MessagingHandle: "buyer_one"})
	queue := &fakeQueue{}
	connector := newFakeConnector(domain.SourceMessaging)
	connector.inbound = []ports.InboundMessage{
		{MessageID: 101, EmitterAddress: "buyer_one", Text: "demand tags:console"},
		{MessageID: 102, EmitterAddress: "buyer_one", Text: "demand tags:retro"},
	}

	ingestion := newTestIngestion(store, queue, connector)
	store.failWith("CreateRawCommand", errors.New("store down"))

	_, err := ingestion.RunPass(ctx, domain.SourceMessaging)
	if err == nil {
		t.Fatal("expected pass to surface the store failure")
	}

	// The failed item must be fetched again, so the cursor stays put.
	if mark := store.watermarks[domain.SourceMessaging]; mark != 0 {
		t.Fatalf("watermark = %d, want 0", mark)
	}
	if len(queue.tasks) != 0 {
		t.Fatalf("tasks enqueued for failed batch: %d", len(queue.tasks))
	}
}

func TestRunPassEnqueueFailureLeavesMessageRedeliverable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{enqueueErr: errors.New("queue down")}
	connector := newFakeConnector(domain.SourceMessaging)
	connector.inbound = []ports.InboundMessage{
		{MessageID: 101, EmitterAddress: "buyer_one", Text: "demand tags:console"},
	}

	ingestion := newTestIngestion(store, queue, connector)

	if _, err := ingestion.RunPass(ctx, domain.SourceMessaging); err == nil {
		t.Fatal("expected pass to surface the enqueue failure")
	}

	// The record and its task commit together, so the failed message must
	// not be durably recorded: the duplicate skip would otherwise swallow
	// it on redelivery with no dispatch task ever written.
	if mark := store.watermarks[domain.SourceMessaging]; mark != 0 {
		t.Fatalf("watermark = %d, want 0", mark)
	}
	if len(store.rawCommands) != 0 {
		t.Fatalf("raw commands recorded without a dispatch task: %d", len(store.rawCommands))
	}

	queue.enqueueErr = nil
	recorded, err := ingestion.RunPass(ctx, domain.SourceMessaging)
	if err != nil {
		t.Fatalf("redelivery pass: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("recorded = %d, want 1", recorded)
	}
	if tasks := queue.byKind(domain.TaskDispatchCommand); len(tasks) != 1 {
		t.Fatalf("dispatch tasks = %d, want 1", len(tasks))
	}
}

func TestRecordDuplicateReturnsSentinelAndEnqueuesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newFakeStore()
	queue := &fakeQueue{}
	ingestion := newTestIngestion(store, queue)

	key, err := ingestion.Record(ctx, domain.SourceMail, "jane@example.com", 7, "demand tags:console")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if key == 0 {
		t.Fatal("record returned zero key")
	}

	_, err = ingestion.Record(ctx, domain.SourceMail, "jane@example.com", 7, "demand tags:console")
	if !errors.Is(err, ErrDuplicateSourceMessage) {
		t.Fatalf("want ErrDuplicateSourceMessage, got %v", err)
	}

	if tasks := queue.byKind(domain.TaskDispatchCommand); len(tasks) != 1 {
		t.Fatalf("dispatch tasks = %d, want 1", len(tasks))
	}
}

func TestRunPassUnknownSource(t *testing.T) {
	t.Parallel()

	ingestion := newTestIngestion(newFakeStore(), &fakeQueue{})

	_, err := ingestion.RunPass(context.Background(), domain.SourceMessaging)
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("want ErrUnknownSource, got %v", err)
	}
}
