package ports

import (
	"context"

	"github.com/ryefield/souk/internal/app/domain"
)

// RawCommandStore is the durable record of everything that ever arrived.
// Rows are write-once; Create fails with ErrDuplicate when the same
// (source, message id) pair was already recorded.
type RawCommandStore interface {
	CreateRawCommand(ctx context.Context, command domain.RawCommand) (int64, error)
	// RecordCommandWithDispatch writes the command and its dispatch task in
	// one atomic step, so a recorded message can never be left without the
	// task that carries it into the pipeline. Duplicates fail with
	// ErrDuplicate like CreateRawCommand.
	RecordCommandWithDispatch(ctx context.Context, command domain.RawCommand, kind domain.TaskKind) (int64, domain.Task, error)
	GetRawCommand(ctx context.Context, key int64) (domain.RawCommand, error)
}

// SettingsStore holds the per-source ingestion cursor.
type SettingsStore interface {
	GetWatermark(ctx context.Context, source domain.Source) (int64, error)
	// AdvanceWatermark is compare-and-set: it only writes when newWatermark
	// is strictly greater than the stored value, so stale or concurrent
	// passes can never move the cursor backwards.
	AdvanceWatermark(ctx context.Context, source domain.Source, newWatermark int64) error
}

// ConsumerStore provisions and resolves buyer-side actors.
type ConsumerStore interface {
	GetConsumer(ctx context.Context, key int64) (domain.Consumer, error)
	GetConsumerByAddress(ctx context.Context, source domain.Source, address string) (domain.Consumer, error)
	CreateConsumer(ctx context.Context, consumer domain.Consumer) (int64, error)
}

// SaleAssociateStore provisions and resolves seller-side actors.
type SaleAssociateStore interface {
	GetSaleAssociate(ctx context.Context, key int64) (domain.SaleAssociate, error)
	GetSaleAssociateByConsumerKey(ctx context.Context, consumerKey int64) (domain.SaleAssociate, error)
	CreateSaleAssociate(ctx context.Context, associate domain.SaleAssociate) (int64, error)
}

// StoreCatalog exposes the reference outlet data proposals bind to.
type StoreCatalog interface {
	GetStore(ctx context.Context, key int64) (domain.Store, error)
	// GetDefaultStore returns the outlet newly provisioned sale associates
	// are attached to until an operator reassigns them.
	GetDefaultStore(ctx context.Context) (domain.Store, error)
}

// LocationStore reads and updates postal locations and their resolved
// coordinates.
type LocationStore interface {
	GetLocation(ctx context.Context, key int64) (domain.Location, error)
	CreateLocation(ctx context.Context, location domain.Location) (int64, error)
	UpdateLocation(ctx context.Context, location domain.Location) error
}

// DemandStore persists buyer demands.
type DemandStore interface {
	GetDemand(ctx context.Context, key int64) (domain.Demand, error)
	CreateDemand(ctx context.Context, demand domain.Demand) (int64, error)
	UpdateDemand(ctx context.Context, demand domain.Demand) error
}

// ProposalStore persists seller proposals.
type ProposalStore interface {
	// GetProposal loads one proposal; non-zero ownerKey or storeKey narrow
	// the lookup to that owner or outlet (ErrNotFound on mismatch).
	GetProposal(ctx context.Context, key, ownerKey, storeKey int64) (domain.Proposal, error)
	CreateProposal(ctx context.Context, proposal domain.Proposal) (int64, error)
	UpdateProposal(ctx context.Context, proposal domain.Proposal) error
	// UpdateProposalIfModifiable re-reads the current state inside the same
	// transaction that writes the update and fails with ErrStateConflict
	// when the proposal has left the modifiable states, leaving the row
	// untouched. This is the guard against lost updates on retried tasks.
	UpdateProposalIfModifiable(ctx context.Context, proposal domain.Proposal) error
}
