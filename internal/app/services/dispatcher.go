package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/catalog"
)

var (
	// ErrUnsupportedAction indicates the parser produced an action the
	// pipeline has no route for. Retrying cannot help; the worker
	// dead-letters the task.
	ErrUnsupportedAction = errors.New("unsupported command action")
	// ErrNonModifiableState indicates an update targeted a proposal that
	// left the modifiable states. The emitter is told; nothing is written.
	ErrNonModifiableState = errors.New("proposal is not modifiable")
)

// Dispatcher turns recorded raw commands into demand or proposal writes and
// enqueues the follow-on validation task. It is the consumer of
// dispatchCommand tasks.
type Dispatcher struct {
	rawCommands    ports.RawCommandStore
	consumers      ports.ConsumerStore
	saleAssociates ports.SaleAssociateStore
	storeCatalog   ports.StoreCatalog
	demands        ports.DemandStore
	proposals      ports.ProposalStore
	parser         ports.CommandParser
	queue          ports.TaskEnqueuer
	notifier       *Notifier
	messages       *catalog.Bundle
	now            func() time.Time
	log            *slog.Logger
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(
	rawCommands ports.RawCommandStore,
	consumers ports.ConsumerStore,
	saleAssociates ports.SaleAssociateStore,
	storeCatalog ports.StoreCatalog,
	demands ports.DemandStore,
	proposals ports.ProposalStore,
	parser ports.CommandParser,
	queue ports.TaskEnqueuer,
	notifier *Notifier,
	messages *catalog.Bundle,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		rawCommands:    rawCommands,
		consumers:      consumers,
		saleAssociates: saleAssociates,
		storeCatalog:   storeCatalog,
		demands:        demands,
		proposals:      proposals,
		parser:         parser,
		queue:          queue,
		notifier:       notifier,
		messages:       messages,
		now:            time.Now,
		log:            log,
	}
}

// Dispatch loads one raw command, parses it and routes it to the demand or
// proposal path. ErrUnsupportedAction is permanent; everything else is a
// transient infrastructure failure the queue may retry.
func (d *Dispatcher) Dispatch(ctx context.Context, rawCommandKey int64) error {
	raw, err := d.rawCommands.GetRawCommand(ctx, rawCommandKey)
	if err != nil {
		return fmt.Errorf("load raw command %d: %w", rawCommandKey, err)
	}

	consumer, err := d.consumers.GetConsumerByAddress(ctx, raw.Source, raw.EmitterID)
	if err != nil {
		return fmt.Errorf("resolve emitter of raw command %d: %w", rawCommandKey, err)
	}

	parsed, err := d.parser.Parse(ctx, raw)
	if err != nil {
		return fmt.Errorf("%w: raw command %d: %v", ErrUnsupportedAction, rawCommandKey, err)
	}

	switch parsed.Action {
	case domain.ActionDemand:
		return d.dispatchDemand(ctx, raw, consumer, parsed.Demand)
	case domain.ActionPropose:
		return d.dispatchProposal(ctx, raw, consumer, parsed.Proposal)
	}
	return fmt.Errorf("%w: raw command %d action %q", ErrUnsupportedAction, rawCommandKey, parsed.Action)
}

func (d *Dispatcher) dispatchDemand(ctx context.Context, raw domain.RawCommand, consumer domain.Consumer, fields *domain.DemandFields) error {
	demand := domain.NewDemand(d.now())
	demand.ConsumerKey = consumer.Key
	demand.RawCommandKey = raw.Key
	demand.Source = raw.Source
	demand.UpdatedAt = d.now()
	for _, criterion := range fields.Criteria {
		demand.AddCriterion(criterion)
	}
	if !fields.ExpirationDate.IsZero() {
		demand.ExpirationDate = fields.ExpirationDate
	}
	if fields.LocationKey != 0 {
		demand.LocationKey = fields.LocationKey
	}
	if fields.Quantity > 0 {
		demand.Quantity = fields.Quantity
	}
	if fields.Range > 0 {
		demand.Range = fields.Range
	}
	if fields.RangeUnit != "" {
		demand.RangeUnit = domain.NormalizeRangeUnit(fields.RangeUnit)
	}

	key, err := d.demands.CreateDemand(ctx, demand)
	if err != nil {
		return fmt.Errorf("create demand for raw command %d: %w", raw.Key, err)
	}
	if _, err := d.queue.Enqueue(ctx, domain.TaskValidateDemand, key); err != nil {
		return fmt.Errorf("enqueue validation for demand %d: %w", key, err)
	}

	d.log.InfoContext(ctx, "demand created",
		slog.Int64("demand_key", key),
		slog.Int64("raw_command_key", raw.Key))

	ack := d.messages.Get(consumer.Language, "demand.acknowledge", key)
	if err := d.notifier.NotifyConsumer(ctx, raw.Source, consumer, ack); err != nil {
		d.log.WarnContext(ctx, "demand acknowledgement not delivered",
			slog.Int64("demand_key", key), slog.Any("error", err))
	}
	return nil
}

func (d *Dispatcher) dispatchProposal(ctx context.Context, raw domain.RawCommand, consumer domain.Consumer, fields *domain.ProposalFields) error {
	associate, err := d.resolveSaleAssociate(ctx, consumer)
	if err != nil {
		return fmt.Errorf("resolve sale associate for raw command %d: %w", raw.Key, err)
	}

	if fields.ProposalKey != 0 {
		return d.updateProposal(ctx, raw, associate, fields)
	}
	return d.createProposal(ctx, raw, associate, fields)
}

func (d *Dispatcher) createProposal(ctx context.Context, raw domain.RawCommand, associate domain.SaleAssociate, fields *domain.ProposalFields) error {
	outlet, err := d.storeCatalog.GetStore(ctx, associate.StoreKey)
	if err != nil {
		return fmt.Errorf("load store %d: %w", associate.StoreKey, err)
	}

	proposal := domain.Proposal{
		OwnerKey:      associate.Key,
		StoreKey:      associate.StoreKey,
		DemandKey:     fields.DemandKey,
		State:         domain.ProposalOpened,
		Price:         fields.Price,
		Total:         fields.Total,
		Quantity:      fields.Quantity,
		LocationKey:   outlet.LocationKey,
		RawCommandKey: raw.Key,
		Source:        raw.Source,
		UpdatedAt:     d.now(),
	}
	for _, criterion := range fields.Criteria {
		proposal.AddCriterion(criterion)
	}

	key, err := d.proposals.CreateProposal(ctx, proposal)
	if err != nil {
		return fmt.Errorf("create proposal for raw command %d: %w", raw.Key, err)
	}
	if _, err := d.queue.Enqueue(ctx, domain.TaskValidateOpenProposal, key); err != nil {
		return fmt.Errorf("enqueue validation for proposal %d: %w", key, err)
	}

	d.log.InfoContext(ctx, "proposal created",
		slog.Int64("proposal_key", key),
		slog.Int64("raw_command_key", raw.Key))

	reference := d.messages.Get(associate.Language, "proposal.reference", key)
	ack := d.messages.Get(associate.Language, "proposal.acknowledge_creation", reference)
	if err := d.notifier.NotifySaleAssociate(ctx, raw.Source, associate, ack); err != nil {
		d.log.WarnContext(ctx, "proposal acknowledgement not delivered",
			slog.Int64("proposal_key", key), slog.Any("error", err))
	}
	return nil
}

func (d *Dispatcher) updateProposal(ctx context.Context, raw domain.RawCommand, associate domain.SaleAssociate, fields *domain.ProposalFields) error {
	proposal, err := d.proposals.GetProposal(ctx, fields.ProposalKey, associate.Key, associate.StoreKey)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			d.reply(ctx, raw.Source, associate,
				d.messages.Get(associate.Language, "proposal.invalid_id"))
			return nil
		}
		return fmt.Errorf("load proposal %d: %w", fields.ProposalKey, err)
	}

	if !proposal.State.Modifiable() {
		d.replyNonModifiable(ctx, raw.Source, associate, proposal)
		return nil
	}

	for _, criterion := range fields.Criteria {
		proposal.AddCriterion(criterion)
	}
	if fields.DemandKey != 0 {
		proposal.DemandKey = fields.DemandKey
	}
	if fields.Price > 0 {
		proposal.Price = fields.Price
	}
	if fields.Total > 0 {
		proposal.Total = fields.Total
	}
	if fields.Quantity > 0 {
		proposal.Quantity = fields.Quantity
	}
	// Every accepted edit reopens the proposal for a fresh validation run.
	proposal.State = domain.ProposalOpened
	proposal.RawCommandKey = raw.Key
	proposal.UpdatedAt = d.now()

	if err := d.proposals.UpdateProposalIfModifiable(ctx, proposal); err != nil {
		// Lost the race against a state transition between load and write.
		if errors.Is(err, ports.ErrStateConflict) {
			current, loadErr := d.proposals.GetProposal(ctx, proposal.Key, associate.Key, associate.StoreKey)
			if loadErr != nil {
				return fmt.Errorf("reload proposal %d after state conflict: %w", proposal.Key, loadErr)
			}
			d.replyNonModifiable(ctx, raw.Source, associate, current)
			return nil
		}
		return fmt.Errorf("update proposal %d: %w", proposal.Key, err)
	}
	if _, err := d.queue.Enqueue(ctx, domain.TaskValidateOpenProposal, proposal.Key); err != nil {
		return fmt.Errorf("enqueue validation for proposal %d: %w", proposal.Key, err)
	}

	d.log.InfoContext(ctx, "proposal updated",
		slog.Int64("proposal_key", proposal.Key),
		slog.Int64("raw_command_key", raw.Key))

	reference := d.messages.Get(associate.Language, "proposal.reference", proposal.Key)
	d.reply(ctx, raw.Source, associate,
		d.messages.Get(associate.Language, "proposal.acknowledge_creation", reference))
	return nil
}

func (d *Dispatcher) replyNonModifiable(ctx context.Context, source domain.Source, associate domain.SaleAssociate, proposal domain.Proposal) {
	reference := d.messages.Get(associate.Language, "proposal.reference", proposal.Key)
	stateLabel := d.messages.Get(associate.Language, "proposal.state_label",
		d.messages.Get(associate.Language, "state."+string(proposal.State)))
	d.reply(ctx, source, associate,
		d.messages.Get(associate.Language, "proposal.non_modifiable_state", reference, stateLabel))
}

func (d *Dispatcher) reply(ctx context.Context, source domain.Source, associate domain.SaleAssociate, message string) {
	if err := d.notifier.NotifySaleAssociate(ctx, source, associate, message); err != nil {
		d.log.WarnContext(ctx, "reply not delivered",
			slog.Int64("sale_associate_key", associate.Key), slog.Any("error", err))
	}
}

func (d *Dispatcher) resolveSaleAssociate(ctx context.Context, consumer domain.Consumer) (domain.SaleAssociate, error) {
	associate, err := d.saleAssociates.GetSaleAssociateByConsumerKey(ctx, consumer.Key)
	if err == nil {
		return associate, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return domain.SaleAssociate{}, err
	}

	outlet, err := d.storeCatalog.GetDefaultStore(ctx)
	if err != nil {
		return domain.SaleAssociate{}, fmt.Errorf("load default store: %w", err)
	}

	associate = domain.SaleAssociate{
		ConsumerKey:     consumer.Key,
		StoreKey:        outlet.Key,
		Name:            consumer.Name,
		Language:        consumer.Language,
		MessagingHandle: consumer.MessagingHandle,
		Email:           consumer.Email,
	}
	key, err := d.saleAssociates.CreateSaleAssociate(ctx, associate)
	if err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return d.saleAssociates.GetSaleAssociateByConsumerKey(ctx, consumer.Key)
		}
		return domain.SaleAssociate{}, err
	}
	associate.Key = key

	d.log.InfoContext(ctx, "sale associate provisioned",
		slog.Int64("sale_associate_key", key),
		slog.Int64("consumer_key", consumer.Key))
	return associate, nil
}
