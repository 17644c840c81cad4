package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/catalog"
)

// ProposalValidator decides whether an opened proposal is publishable. It is
// the consumer of validateOpenProposal tasks; proposals in any other state
// are skipped so redelivery is harmless.
type ProposalValidator struct {
	proposals      ports.ProposalStore
	demands        ports.DemandStore
	saleAssociates ports.SaleAssociateStore
	queue          ports.TaskEnqueuer
	notifier       *Notifier
	messages       *catalog.Bundle
	now            func() time.Time
	log            *slog.Logger
}

// NewProposalValidator constructs the validator.
func NewProposalValidator(
	proposals ports.ProposalStore,
	demands ports.DemandStore,
	saleAssociates ports.SaleAssociateStore,
	queue ports.TaskEnqueuer,
	notifier *Notifier,
	messages *catalog.Bundle,
	log *slog.Logger,
) *ProposalValidator {
	return &ProposalValidator{
		proposals:      proposals,
		demands:        demands,
		saleAssociates: saleAssociates,
		queue:          queue,
		notifier:       notifier,
		messages:       messages,
		now:            time.Now,
		log:            log,
	}
}

// Validate runs the proposal checks and transitions the proposal to
// published or invalid.
func (v *ProposalValidator) Validate(ctx context.Context, proposalKey int64) error {
	proposal, err := v.proposals.GetProposal(ctx, proposalKey, 0, 0)
	if err != nil {
		return fmt.Errorf("load proposal %d: %w", proposalKey, err)
	}
	if proposal.State != domain.ProposalOpened {
		v.log.InfoContext(ctx, "proposal not opened, skipping validation",
			slog.Int64("proposal_key", proposalKey),
			slog.String("state", string(proposal.State)))
		return nil
	}

	owner, err := v.saleAssociates.GetSaleAssociate(ctx, proposal.OwnerKey)
	if err != nil {
		v.log.ErrorContext(ctx, "cannot load proposal owner, leaving proposal opened",
			slog.Int64("proposal_key", proposalKey),
			slog.Int64("owner_key", proposal.OwnerKey),
			slog.Any("error", err))
		return nil
	}

	reason := v.firstFailure(ctx, proposal, owner.Language)
	if reason == "" {
		return v.publish(ctx, proposal)
	}
	return v.invalidate(ctx, proposal, owner, reason)
}

func (v *ProposalValidator) firstFailure(ctx context.Context, proposal domain.Proposal, locale string) string {
	get := func(key string, args ...any) string {
		return v.messages.Get(locale, key, args...)
	}

	if len(proposal.Criteria) == 0 {
		return get("proposal.no_tag", proposal.Key)
	}
	if proposal.Quantity <= 0 {
		return get("proposal.no_quantity", proposal.Key)
	}
	if proposal.Price <= 0 && proposal.Total <= 0 {
		return get("proposal.no_price", proposal.Key)
	}
	if proposal.DemandKey == 0 {
		return get("proposal.no_demand", proposal.Key)
	}
	if _, err := v.demands.GetDemand(ctx, proposal.DemandKey); err != nil {
		return get("proposal.invalid_demand", proposal.Key, proposal.DemandKey)
	}
	return ""
}

func (v *ProposalValidator) publish(ctx context.Context, proposal domain.Proposal) error {
	proposal.State = domain.ProposalPublished
	proposal.UpdatedAt = v.now()
	if err := v.proposals.UpdateProposal(ctx, proposal); err != nil {
		v.log.ErrorContext(ctx, "cannot publish proposal, leaving proposal opened",
			slog.Int64("proposal_key", proposal.Key), slog.Any("error", err))
		return nil
	}
	if _, err := v.queue.Enqueue(ctx, domain.TaskProcessPublishedProposal, proposal.Key); err != nil {
		return fmt.Errorf("enqueue processing for published proposal %d: %w", proposal.Key, err)
	}
	v.log.InfoContext(ctx, "proposal published", slog.Int64("proposal_key", proposal.Key))
	return nil
}

func (v *ProposalValidator) invalidate(ctx context.Context, proposal domain.Proposal, owner domain.SaleAssociate, reason string) error {
	proposal.State = domain.ProposalInvalid
	proposal.UpdatedAt = v.now()
	if err := v.proposals.UpdateProposal(ctx, proposal); err != nil {
		v.log.ErrorContext(ctx, "cannot invalidate proposal, leaving proposal opened",
			slog.Int64("proposal_key", proposal.Key), slog.Any("error", err))
		return nil
	}

	v.log.InfoContext(ctx, "proposal invalidated",
		slog.Int64("proposal_key", proposal.Key))

	if err := v.notifier.NotifySaleAssociate(ctx, proposal.Source, owner, reason); err != nil {
		v.log.WarnContext(ctx, "validation report not delivered",
			slog.Int64("proposal_key", proposal.Key), slog.Any("error", err))
	}
	return nil
}
