package db

import (
	"context"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

const createDemandQuery = `-- name: CreateDemand :one
INSERT INTO demands (consumer_id, state, criteria, expiration_date, location_id,
    quantity, search_range, range_unit, proposal_keys, raw_command_id, source, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`

// CreateDemand persists a freshly dispatched demand.
func (c *Database) CreateDemand(ctx context.Context, demand domain.Demand) (int64, error) {
	criteria, err := encodeStrings(demand.Criteria)
	if err != nil {
		return 0, err
	}
	proposalKeys, err := encodeInt64s(demand.ProposalKeys)
	if err != nil {
		return 0, err
	}
	var id int64
	err = c.dbtx.QueryRowContext(ctx, createDemandQuery,
		demand.ConsumerKey, string(demand.State), criteria, formatTime(demand.ExpirationDate),
		demand.LocationKey, demand.Quantity, demand.Range, string(demand.RangeUnit),
		proposalKeys, demand.RawCommandKey, string(demand.Source), formatTime(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const getDemandQuery = `-- name: GetDemand :one
SELECT id, consumer_id, state, criteria, expiration_date, location_id,
    quantity, search_range, range_unit, proposal_keys, raw_command_id, source, updated_at
FROM demands
WHERE id = ?`

// GetDemand fetches one demand by key.
func (c *Database) GetDemand(ctx context.Context, key int64) (domain.Demand, error) {
	var (
		out                  domain.Demand
		state, criteria      string
		expiration, unit     string
		proposalKeys, source string
		updatedAt            string
	)
	err := c.dbtx.QueryRowContext(ctx, getDemandQuery, key).Scan(
		&out.Key, &out.ConsumerKey, &state, &criteria, &expiration, &out.LocationKey,
		&out.Quantity, &out.Range, &unit, &proposalKeys, &out.RawCommandKey, &source, &updatedAt,
	)
	if err != nil {
		return domain.Demand{}, err
	}
	out.State = domain.DemandState(state)
	out.RangeUnit = domain.RangeUnit(unit)
	if out.Criteria, err = decodeStrings(criteria); err != nil {
		return domain.Demand{}, err
	}
	if out.ProposalKeys, err = decodeInt64s(proposalKeys); err != nil {
		return domain.Demand{}, err
	}
	if out.ExpirationDate, err = parseTime(expiration); err != nil {
		return domain.Demand{}, err
	}
	if out.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Demand{}, err
	}
	if out.Source, err = domain.ParseSource(source); err != nil {
		return domain.Demand{}, err
	}
	return out, nil
}

const updateDemandQuery = `-- name: UpdateDemand :exec
UPDATE demands
SET state = ?, criteria = ?, expiration_date = ?, location_id = ?,
    quantity = ?, search_range = ?, range_unit = ?, proposal_keys = ?, updated_at = ?
WHERE id = ?`

// UpdateDemand rewrites the mutable demand attributes.
func (c *Database) UpdateDemand(ctx context.Context, demand domain.Demand) error {
	criteria, err := encodeStrings(demand.Criteria)
	if err != nil {
		return err
	}
	proposalKeys, err := encodeInt64s(demand.ProposalKeys)
	if err != nil {
		return err
	}
	_, err = c.dbtx.ExecContext(ctx, updateDemandQuery,
		string(demand.State), criteria, formatTime(demand.ExpirationDate), demand.LocationKey,
		demand.Quantity, demand.Range, string(demand.RangeUnit), proposalKeys,
		formatTime(time.Now()), demand.Key,
	)
	return err
}
