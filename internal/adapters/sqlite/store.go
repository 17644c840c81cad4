// Package sqlite adapts the shared database to the storage ports, folding
// driver-level failures into the port sentinels so services never see
// sql or sqlite errors directly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/db"
)

// Store implements the entity storage ports over the shared connection.
type Store struct {
	db *db.Database
}

// NewStore wraps an open database.
func NewStore(database *db.Database) *Store {
	return &Store{db: database}
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ports.ErrNotFound
	case errors.Is(err, db.ErrNotModifiable):
		return ports.ErrStateConflict
	case isUniqueViolation(err):
		return ports.ErrDuplicate
	}
	return err
}

// The modernc driver reports constraint failures as formatted strings, not
// typed codes, so classification matches on the stable message prefix.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *Store) CreateRawCommand(ctx context.Context, command domain.RawCommand) (int64, error) {
	key, err := s.db.CreateRawCommand(ctx, command)
	if err != nil {
		return 0, fmt.Errorf("create raw command: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) RecordCommandWithDispatch(ctx context.Context, command domain.RawCommand, kind domain.TaskKind) (int64, domain.Task, error) {
	task := domain.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	key, err := s.db.CreateRawCommandWithTask(ctx, command, task)
	if err != nil {
		return 0, domain.Task{}, fmt.Errorf("record raw command with %s task: %w", kind, mapErr(err))
	}
	task.EntityKey = key
	return key, task, nil
}

func (s *Store) GetRawCommand(ctx context.Context, key int64) (domain.RawCommand, error) {
	command, err := s.db.GetRawCommand(ctx, key)
	if err != nil {
		return domain.RawCommand{}, fmt.Errorf("get raw command %d: %w", key, mapErr(err))
	}
	return command, nil
}

func (s *Store) GetWatermark(ctx context.Context, source domain.Source) (int64, error) {
	watermark, err := s.db.GetWatermark(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("get watermark for %s: %w", source, mapErr(err))
	}
	return watermark, nil
}

func (s *Store) AdvanceWatermark(ctx context.Context, source domain.Source, newWatermark int64) error {
	if err := s.db.AdvanceWatermark(ctx, source, newWatermark); err != nil {
		return fmt.Errorf("advance watermark for %s: %w", source, mapErr(err))
	}
	return nil
}

func (s *Store) GetConsumer(ctx context.Context, key int64) (domain.Consumer, error) {
	consumer, err := s.db.GetConsumer(ctx, key)
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("get consumer %d: %w", key, mapErr(err))
	}
	return consumer, nil
}

func (s *Store) GetConsumerByAddress(ctx context.Context, source domain.Source, address string) (domain.Consumer, error) {
	consumer, err := s.db.GetConsumerByAddress(ctx, source, address)
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("get consumer by address: %w", mapErr(err))
	}
	return consumer, nil
}

func (s *Store) CreateConsumer(ctx context.Context, consumer domain.Consumer) (int64, error) {
	key, err := s.db.CreateConsumer(ctx, consumer)
	if err != nil {
		return 0, fmt.Errorf("create consumer: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) GetSaleAssociate(ctx context.Context, key int64) (domain.SaleAssociate, error) {
	associate, err := s.db.GetSaleAssociate(ctx, key)
	if err != nil {
		return domain.SaleAssociate{}, fmt.Errorf("get sale associate %d: %w", key, mapErr(err))
	}
	return associate, nil
}

func (s *Store) GetSaleAssociateByConsumerKey(ctx context.Context, consumerKey int64) (domain.SaleAssociate, error) {
	associate, err := s.db.GetSaleAssociateByConsumerKey(ctx, consumerKey)
	if err != nil {
		return domain.SaleAssociate{}, fmt.Errorf("get sale associate for consumer %d: %w", consumerKey, mapErr(err))
	}
	return associate, nil
}

func (s *Store) CreateSaleAssociate(ctx context.Context, associate domain.SaleAssociate) (int64, error) {
	key, err := s.db.CreateSaleAssociate(ctx, associate)
	if err != nil {
		return 0, fmt.Errorf("create sale associate: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) GetStore(ctx context.Context, key int64) (domain.Store, error) {
	store, err := s.db.GetStore(ctx, key)
	if err != nil {
		return domain.Store{}, fmt.Errorf("get store %d: %w", key, mapErr(err))
	}
	return store, nil
}

func (s *Store) GetDefaultStore(ctx context.Context) (domain.Store, error) {
	store, err := s.db.GetDefaultStore(ctx)
	if err != nil {
		return domain.Store{}, fmt.Errorf("get default store: %w", mapErr(err))
	}
	return store, nil
}

func (s *Store) GetLocation(ctx context.Context, key int64) (domain.Location, error) {
	location, err := s.db.GetLocation(ctx, key)
	if err != nil {
		return domain.Location{}, fmt.Errorf("get location %d: %w", key, mapErr(err))
	}
	return location, nil
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (int64, error) {
	key, err := s.db.CreateLocation(ctx, location)
	if err != nil {
		return 0, fmt.Errorf("create location: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) UpdateLocation(ctx context.Context, location domain.Location) error {
	if err := s.db.UpdateLocation(ctx, location); err != nil {
		return fmt.Errorf("update location %d: %w", location.Key, mapErr(err))
	}
	return nil
}

func (s *Store) GetDemand(ctx context.Context, key int64) (domain.Demand, error) {
	demand, err := s.db.GetDemand(ctx, key)
	if err != nil {
		return domain.Demand{}, fmt.Errorf("get demand %d: %w", key, mapErr(err))
	}
	return demand, nil
}

func (s *Store) CreateDemand(ctx context.Context, demand domain.Demand) (int64, error) {
	key, err := s.db.CreateDemand(ctx, demand)
	if err != nil {
		return 0, fmt.Errorf("create demand: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) UpdateDemand(ctx context.Context, demand domain.Demand) error {
	if err := s.db.UpdateDemand(ctx, demand); err != nil {
		return fmt.Errorf("update demand %d: %w", demand.Key, mapErr(err))
	}
	return nil
}

func (s *Store) GetProposal(ctx context.Context, key, ownerKey, storeKey int64) (domain.Proposal, error) {
	proposal, err := s.db.GetProposal(ctx, key, ownerKey, storeKey)
	if err != nil {
		return domain.Proposal{}, fmt.Errorf("get proposal %d: %w", key, mapErr(err))
	}
	return proposal, nil
}

func (s *Store) CreateProposal(ctx context.Context, proposal domain.Proposal) (int64, error) {
	key, err := s.db.CreateProposal(ctx, proposal)
	if err != nil {
		return 0, fmt.Errorf("create proposal: %w", mapErr(err))
	}
	return key, nil
}

func (s *Store) UpdateProposal(ctx context.Context, proposal domain.Proposal) error {
	if err := s.db.UpdateProposal(ctx, proposal); err != nil {
		return fmt.Errorf("update proposal %d: %w", proposal.Key, mapErr(err))
	}
	return nil
}

func (s *Store) UpdateProposalIfModifiable(ctx context.Context, proposal domain.Proposal) error {
	if err := s.db.UpdateProposalIfModifiable(ctx, proposal); err != nil {
		return fmt.Errorf("guarded update of proposal %d: %w", proposal.Key, mapErr(err))
	}
	return nil
}

var (
	_ ports.RawCommandStore    = (*Store)(nil)
	_ ports.SettingsStore      = (*Store)(nil)
	_ ports.ConsumerStore      = (*Store)(nil)
	_ ports.SaleAssociateStore = (*Store)(nil)
	_ ports.StoreCatalog       = (*Store)(nil)
	_ ports.LocationStore      = (*Store)(nil)
	_ ports.DemandStore        = (*Store)(nil)
	_ ports.ProposalStore      = (*Store)(nil)
)
