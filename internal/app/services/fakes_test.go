package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeStore is an in-memory implementation of every storage port. Tests
// inject failures per method name through errs.
type fakeStore struct {
	mu sync.Mutex

	rawCommands     map[int64]domain.RawCommand
	watermarks      map[domain.Source]int64
	consumers       map[int64]domain.Consumer
	associates      map[int64]domain.SaleAssociate
	stores          map[int64]domain.Store
	defaultStoreKey int64
	locations       map[int64]domain.Location
	demands         map[int64]domain.Demand
	proposals       map[int64]domain.Proposal

	// queue receives the dispatch task paired with each recorded command,
	// mirroring the store's atomic record-plus-task write.
	queue *fakeQueue

	nextKey int64
	errs    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rawCommands: map[int64]domain.RawCommand{},
		watermarks:  map[domain.Source]int64{},
		consumers:   map[int64]domain.Consumer{},
		associates:  map[int64]domain.SaleAssociate{},
		stores:      map[int64]domain.Store{},
		locations:   map[int64]domain.Location{},
		demands:     map[int64]domain.Demand{},
		proposals:   map[int64]domain.Proposal{},
		errs:        map[string]error{},
	}
}

func (f *fakeStore) failWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeStore) injected(method string) error {
	return f.errs[method]
}

func (f *fakeStore) allocKey() int64 {
	f.nextKey++
	return f.nextKey
}

func (f *fakeStore) CreateRawCommand(_ context.Context, command domain.RawCommand) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateRawCommand"); err != nil {
		return 0, err
	}
	for _, existing := range f.rawCommands {
		if existing.Source == command.Source && existing.MessageID == command.MessageID {
			return 0, ports.ErrDuplicate
		}
	}
	command.Key = f.allocKey()
	f.rawCommands[command.Key] = command
	return command.Key, nil
}

func (f *fakeStore) RecordCommandWithDispatch(ctx context.Context, command domain.RawCommand, kind domain.TaskKind) (int64, domain.Task, error) {
	key, err := f.CreateRawCommand(ctx, command)
	if err != nil {
		return 0, domain.Task{}, err
	}
	if f.queue == nil {
		return key, domain.Task{Kind: kind, EntityKey: key}, nil
	}
	task, err := f.queue.Enqueue(ctx, kind, key)
	if err != nil {
		// Both writes commit or neither does.
		f.mu.Lock()
		delete(f.rawCommands, key)
		f.mu.Unlock()
		return 0, domain.Task{}, err
	}
	return key, task, nil
}

func (f *fakeStore) GetRawCommand(_ context.Context, key int64) (domain.RawCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetRawCommand"); err != nil {
		return domain.RawCommand{}, err
	}
	command, ok := f.rawCommands[key]
	if !ok {
		return domain.RawCommand{}, ports.ErrNotFound
	}
	return command, nil
}

func (f *fakeStore) GetWatermark(_ context.Context, source domain.Source) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetWatermark"); err != nil {
		return 0, err
	}
	return f.watermarks[source], nil
}

func (f *fakeStore) AdvanceWatermark(_ context.Context, source domain.Source, newWatermark int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("AdvanceWatermark"); err != nil {
		return err
	}
	if newWatermark > f.watermarks[source] {
		f.watermarks[source] = newWatermark
	}
	return nil
}

func (f *fakeStore) GetConsumer(_ context.Context, key int64) (domain.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetConsumer"); err != nil {
		return domain.Consumer{}, err
	}
	consumer, ok := f.consumers[key]
	if !ok {
		return domain.Consumer{}, ports.ErrNotFound
	}
	return consumer, nil
}

func (f *fakeStore) GetConsumerByAddress(_ context.Context, source domain.Source, address string) (domain.Consumer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetConsumerByAddress"); err != nil {
		return domain.Consumer{}, err
	}
	for _, consumer := range f.consumers {
		if consumer.AddressFor(source) == address {
			return consumer, nil
		}
	}
	return domain.Consumer{}, ports.ErrNotFound
}

func (f *fakeStore) CreateConsumer(_ context.Context, consumer domain.Consumer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateConsumer"); err != nil {
		return 0, err
	}
	consumer.Key = f.allocKey()
	f.consumers[consumer.Key] = consumer
	return consumer.Key, nil
}

func (f *fakeStore) GetSaleAssociate(_ context.Context, key int64) (domain.SaleAssociate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetSaleAssociate"); err != nil {
		return domain.SaleAssociate{}, err
	}
	associate, ok := f.associates[key]
	if !ok {
		return domain.SaleAssociate{}, ports.ErrNotFound
	}
	return associate, nil
}

func (f *fakeStore) GetSaleAssociateByConsumerKey(_ context.Context, consumerKey int64) (domain.SaleAssociate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetSaleAssociateByConsumerKey"); err != nil {
		return domain.SaleAssociate{}, err
	}
	for _, associate := range f.associates {
		if associate.ConsumerKey == consumerKey {
			return associate, nil
		}
	}
	return domain.SaleAssociate{}, ports.ErrNotFound
}

func (f *fakeStore) CreateSaleAssociate(_ context.Context, associate domain.SaleAssociate) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateSaleAssociate"); err != nil {
		return 0, err
	}
	for _, existing := range f.associates {
		if existing.ConsumerKey == associate.ConsumerKey {
			return 0, ports.ErrDuplicate
		}
	}
	associate.Key = f.allocKey()
	f.associates[associate.Key] = associate
	return associate.Key, nil
}

func (f *fakeStore) GetStore(_ context.Context, key int64) (domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetStore"); err != nil {
		return domain.Store{}, err
	}
	outlet, ok := f.stores[key]
	if !ok {
		return domain.Store{}, ports.ErrNotFound
	}
	return outlet, nil
}

func (f *fakeStore) GetDefaultStore(_ context.Context) (domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetDefaultStore"); err != nil {
		return domain.Store{}, err
	}
	outlet, ok := f.stores[f.defaultStoreKey]
	if !ok {
		return domain.Store{}, ports.ErrNotFound
	}
	return outlet, nil
}

func (f *fakeStore) GetLocation(_ context.Context, key int64) (domain.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetLocation"); err != nil {
		return domain.Location{}, err
	}
	location, ok := f.locations[key]
	if !ok {
		return domain.Location{}, ports.ErrNotFound
	}
	return location, nil
}

func (f *fakeStore) CreateLocation(_ context.Context, location domain.Location) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateLocation"); err != nil {
		return 0, err
	}
	location.Key = f.allocKey()
	f.locations[location.Key] = location
	return location.Key, nil
}

func (f *fakeStore) UpdateLocation(_ context.Context, location domain.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateLocation"); err != nil {
		return err
	}
	if _, ok := f.locations[location.Key]; !ok {
		return ports.ErrNotFound
	}
	f.locations[location.Key] = location
	return nil
}

func (f *fakeStore) GetDemand(_ context.Context, key int64) (domain.Demand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetDemand"); err != nil {
		return domain.Demand{}, err
	}
	demand, ok := f.demands[key]
	if !ok {
		return domain.Demand{}, ports.ErrNotFound
	}
	return demand, nil
}

func (f *fakeStore) CreateDemand(_ context.Context, demand domain.Demand) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateDemand"); err != nil {
		return 0, err
	}
	demand.Key = f.allocKey()
	f.demands[demand.Key] = demand
	return demand.Key, nil
}

func (f *fakeStore) UpdateDemand(_ context.Context, demand domain.Demand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateDemand"); err != nil {
		return err
	}
	if _, ok := f.demands[demand.Key]; !ok {
		return ports.ErrNotFound
	}
	f.demands[demand.Key] = demand
	return nil
}

func (f *fakeStore) GetProposal(_ context.Context, key, ownerKey, storeKey int64) (domain.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("GetProposal"); err != nil {
		return domain.Proposal{}, err
	}
	proposal, ok := f.proposals[key]
	if !ok {
		return domain.Proposal{}, ports.ErrNotFound
	}
	if ownerKey != 0 && proposal.OwnerKey != ownerKey {
		return domain.Proposal{}, ports.ErrNotFound
	}
	if storeKey != 0 && proposal.StoreKey != storeKey {
		return domain.Proposal{}, ports.ErrNotFound
	}
	return proposal, nil
}

func (f *fakeStore) CreateProposal(_ context.Context, proposal domain.Proposal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("CreateProposal"); err != nil {
		return 0, err
	}
	proposal.Key = f.allocKey()
	f.proposals[proposal.Key] = proposal
	return proposal.Key, nil
}

func (f *fakeStore) UpdateProposal(_ context.Context, proposal domain.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateProposal"); err != nil {
		return err
	}
	if _, ok := f.proposals[proposal.Key]; !ok {
		return ports.ErrNotFound
	}
	f.proposals[proposal.Key] = proposal
	return nil
}

func (f *fakeStore) UpdateProposalIfModifiable(_ context.Context, proposal domain.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.injected("UpdateProposalIfModifiable"); err != nil {
		return err
	}
	current, ok := f.proposals[proposal.Key]
	if !ok {
		return ports.ErrNotFound
	}
	if !current.State.Modifiable() {
		return ports.ErrStateConflict
	}
	f.proposals[proposal.Key] = proposal
	return nil
}

// seed helpers

func (f *fakeStore) seedConsumer(consumer domain.Consumer) domain.Consumer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if consumer.Key == 0 {
		consumer.Key = f.allocKey()
	}
	f.consumers[consumer.Key] = consumer
	return consumer
}

func (f *fakeStore) seedSaleAssociate(associate domain.SaleAssociate) domain.SaleAssociate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if associate.Key == 0 {
		associate.Key = f.allocKey()
	}
	f.associates[associate.Key] = associate
	return associate
}

func (f *fakeStore) seedStore(outlet domain.Store, isDefault bool) domain.Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if outlet.Key == 0 {
		outlet.Key = f.allocKey()
	}
	f.stores[outlet.Key] = outlet
	if isDefault {
		f.defaultStoreKey = outlet.Key
	}
	return outlet
}

func (f *fakeStore) seedLocation(location domain.Location) domain.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	if location.Key == 0 {
		location.Key = f.allocKey()
	}
	f.locations[location.Key] = location
	return location
}

func (f *fakeStore) seedDemand(demand domain.Demand) domain.Demand {
	f.mu.Lock()
	defer f.mu.Unlock()
	if demand.Key == 0 {
		demand.Key = f.allocKey()
	}
	f.demands[demand.Key] = demand
	return demand
}

func (f *fakeStore) seedProposal(proposal domain.Proposal) domain.Proposal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if proposal.Key == 0 {
		proposal.Key = f.allocKey()
	}
	f.proposals[proposal.Key] = proposal
	return proposal
}

func (f *fakeStore) seedRawCommand(command domain.RawCommand) domain.RawCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	if command.Key == 0 {
		command.Key = f.allocKey()
	}
	f.rawCommands[command.Key] = command
	return command
}

// fakeQueue records what got enqueued.
type fakeQueue struct {
	mu         sync.Mutex
	tasks      []domain.Task
	enqueueErr error
}

func (q *fakeQueue) Enqueue(_ context.Context, kind domain.TaskKind, entityKey int64) (domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return domain.Task{}, q.enqueueErr
	}
	task := domain.Task{
		ID:        fmt.Sprintf("task-%d", len(q.tasks)+1),
		Kind:      kind,
		EntityKey: entityKey,
		CreatedAt: time.Now(),
	}
	q.tasks = append(q.tasks, task)
	return task, nil
}

func (q *fakeQueue) byKind(kind domain.TaskKind) []domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Task
	for _, task := range q.tasks {
		if task.Kind == kind {
			out = append(out, task)
		}
	}
	return out
}

// fakeConnector is an in-memory channel backend.
type fakeConnector struct {
	mu       sync.Mutex
	source   domain.Source
	inbound  []ports.InboundMessage
	sent     map[string][]string
	fetchErr error
	sendErr  error
}

func newFakeConnector(source domain.Source) *fakeConnector {
	return &fakeConnector{source: source, sent: map[string][]string{}}
}

func (c *fakeConnector) Source() domain.Source { return c.source }

func (c *fakeConnector) FetchSince(_ context.Context, sinceID int64) ([]ports.InboundMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	var out []ports.InboundMessage
	for _, item := range c.inbound {
		if item.MessageID > sinceID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (c *fakeConnector) Send(_ context.Context, address string, messages []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent[address] = append(c.sent[address], messages...)
	return nil
}

func (c *fakeConnector) sentTo(address string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent[address]...)
}

// fakeParser maps raw command text to a prepared result.
type fakeParser struct {
	results map[string]domain.ParsedCommand
	err     error
}

func (p *fakeParser) Parse(_ context.Context, raw domain.RawCommand) (domain.ParsedCommand, error) {
	if p.err != nil {
		return domain.ParsedCommand{}, p.err
	}
	parsed, ok := p.results[raw.Command]
	if !ok {
		return domain.ParsedCommand{Action: domain.ActionUnsupported}, nil
	}
	return parsed, nil
}

// fakeGeocoder resolves through a hook.
type fakeGeocoder struct {
	resolveFn func(location domain.Location) (domain.Location, error)
	calls     int
}

func (g *fakeGeocoder) Resolve(_ context.Context, location domain.Location) (domain.Location, error) {
	g.calls++
	if g.resolveFn == nil {
		return location, nil
	}
	return g.resolveFn(location)
}
