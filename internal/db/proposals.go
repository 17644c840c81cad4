package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

// ErrNotModifiable is returned by UpdateProposalIfModifiable when the
// re-read state forbids the edit. The row is left untouched.
var ErrNotModifiable = errors.New("proposal is not in a modifiable state")

const createProposalQuery = `-- name: CreateProposal :one
INSERT INTO proposals (owner_id, store_id, demand_id, state, criteria, price,
    total, quantity, location_id, raw_command_id, source, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

// CreateProposal persists a freshly dispatched proposal.
func (c *Database) CreateProposal(ctx context.Context, proposal domain.Proposal) (int64, error) {
	criteria, err := encodeStrings(proposal.Criteria)
	if err != nil {
		return 0, err
	}
	var id int64
	err = c.dbtx.QueryRowContext(ctx, createProposalQuery,
		proposal.OwnerKey, proposal.StoreKey, proposal.DemandKey, string(proposal.State),
		criteria, proposal.Price, proposal.Total, proposal.Quantity, proposal.LocationKey,
		proposal.RawCommandKey, string(proposal.Source), formatTime(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const getProposalQuery = `-- name: GetProposal :one
SELECT id, owner_id, store_id, demand_id, state, criteria, price, total,
    quantity, location_id, raw_command_id, source, updated_at
FROM proposals
WHERE id = ?
  AND (?2 = 0 OR owner_id = ?2)
  AND (?3 = 0 OR store_id = ?3)`

// GetProposal fetches one proposal, optionally narrowed to an owner or an
// outlet. A mismatch reads like a missing row.
func (c *Database) GetProposal(ctx context.Context, key, ownerKey, storeKey int64) (domain.Proposal, error) {
	return scanProposal(c.dbtx.QueryRowContext(ctx, getProposalQuery, key, ownerKey, storeKey))
}

func scanProposal(row *sql.Row) (domain.Proposal, error) {
	var (
		out               domain.Proposal
		state, criteria   string
		source, updatedAt string
	)
	err := row.Scan(
		&out.Key, &out.OwnerKey, &out.StoreKey, &out.DemandKey, &state, &criteria,
		&out.Price, &out.Total, &out.Quantity, &out.LocationKey, &out.RawCommandKey,
		&source, &updatedAt,
	)
	if err != nil {
		return domain.Proposal{}, err
	}
	out.State = domain.ProposalState(state)
	if out.Criteria, err = decodeStrings(criteria); err != nil {
		return domain.Proposal{}, err
	}
	if out.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Proposal{}, err
	}
	if out.Source, err = domain.ParseSource(source); err != nil {
		return domain.Proposal{}, err
	}
	return out, nil
}

const updateProposalQuery = `-- name: UpdateProposal :exec
UPDATE proposals
SET demand_id = ?, state = ?, criteria = ?, price = ?, total = ?,
    quantity = ?, location_id = ?, updated_at = ?
WHERE id = ?`

// UpdateProposal rewrites the mutable proposal attributes unconditionally;
// callers that need the modifiability guard use UpdateProposalIfModifiable.
func (c *Database) UpdateProposal(ctx context.Context, proposal domain.Proposal) error {
	criteria, err := encodeStrings(proposal.Criteria)
	if err != nil {
		return err
	}
	_, err = c.dbtx.ExecContext(ctx, updateProposalQuery,
		proposal.DemandKey, string(proposal.State), criteria, proposal.Price,
		proposal.Total, proposal.Quantity, proposal.LocationKey,
		formatTime(time.Now()), proposal.Key,
	)
	return err
}

const getProposalStateQuery = `-- name: GetProposalState :one
SELECT state
FROM proposals
WHERE id = ?`

// UpdateProposalIfModifiable re-reads the current state inside the writing
// transaction and only commits when the proposal is still editable. A
// concurrent transition to a protected state makes the whole call fail with
// ErrNotModifiable and no partial write.
func (c *Database) UpdateProposalIfModifiable(ctx context.Context, proposal domain.Proposal) error {
	return c.withTx(ctx, func(tx DBTX) error {
		var state string
		if err := tx.QueryRowContext(ctx, getProposalStateQuery, proposal.Key).Scan(&state); err != nil {
			return err
		}
		if !domain.ProposalState(state).Modifiable() {
			return ErrNotModifiable
		}
		criteria, err := encodeStrings(proposal.Criteria)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, updateProposalQuery,
			proposal.DemandKey, string(proposal.State), criteria, proposal.Price,
			proposal.Total, proposal.Quantity, proposal.LocationKey,
			formatTime(time.Now()), proposal.Key,
		)
		return err
	})
}
