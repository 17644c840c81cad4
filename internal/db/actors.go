package db

import (
	"context"
	"fmt"

	"github.com/ryefield/souk/internal/app/domain"
)

const getConsumerQuery = `-- name: GetConsumer :one
SELECT id, name, language, messaging_handle, email
FROM consumers
WHERE id = ?`

// GetConsumer fetches one consumer by key.
func (c *Database) GetConsumer(ctx context.Context, key int64) (domain.Consumer, error) {
	var out domain.Consumer
	err := c.dbtx.QueryRowContext(ctx, getConsumerQuery, key).Scan(
		&out.Key, &out.Name, &out.Language, &out.MessagingHandle, &out.Email,
	)
	if err != nil {
		return domain.Consumer{}, err
	}
	return out, nil
}

const getConsumerByMessagingHandleQuery = `-- name: GetConsumerByMessagingHandle :one
SELECT id, name, language, messaging_handle, email
FROM consumers
WHERE messaging_handle = ?
ORDER BY id
LIMIT 1`

const getConsumerByEmailQuery = `-- name: GetConsumerByEmail :one
SELECT id, name, language, messaging_handle, email
FROM consumers
WHERE email = ?
ORDER BY id
LIMIT 1`

// GetConsumerByAddress resolves a consumer from their channel address.
func (c *Database) GetConsumerByAddress(ctx context.Context, source domain.Source, address string) (domain.Consumer, error) {
	query := getConsumerByMessagingHandleQuery
	if source == domain.SourceMail {
		query = getConsumerByEmailQuery
	}
	var out domain.Consumer
	err := c.dbtx.QueryRowContext(ctx, query, address).Scan(
		&out.Key, &out.Name, &out.Language, &out.MessagingHandle, &out.Email,
	)
	if err != nil {
		return domain.Consumer{}, err
	}
	return out, nil
}

const createConsumerQuery = `-- name: CreateConsumer :one
INSERT INTO consumers (name, language, messaging_handle, email)
VALUES (?, ?, ?, ?)
RETURNING id`

// CreateConsumer provisions a consumer record.
func (c *Database) CreateConsumer(ctx context.Context, consumer domain.Consumer) (int64, error) {
	language := consumer.Language
	if language == "" {
		language = "en"
	}
	var id int64
	err := c.dbtx.QueryRowContext(ctx, createConsumerQuery,
		consumer.Name, language, consumer.MessagingHandle, consumer.Email,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const getSaleAssociateQuery = `-- name: GetSaleAssociate :one
SELECT id, consumer_id, store_id, name, language, messaging_handle, email
FROM sale_associates
WHERE id = ?`

// GetSaleAssociate fetches one sale associate by key.
func (c *Database) GetSaleAssociate(ctx context.Context, key int64) (domain.SaleAssociate, error) {
	return c.scanSaleAssociate(ctx, getSaleAssociateQuery, key)
}

const getSaleAssociateByConsumerQuery = `-- name: GetSaleAssociateByConsumer :one
SELECT id, consumer_id, store_id, name, language, messaging_handle, email
FROM sale_associates
WHERE consumer_id = ?`

// GetSaleAssociateByConsumerKey resolves the associate profile attached to a
// consumer account.
func (c *Database) GetSaleAssociateByConsumerKey(ctx context.Context, consumerKey int64) (domain.SaleAssociate, error) {
	return c.scanSaleAssociate(ctx, getSaleAssociateByConsumerQuery, consumerKey)
}

func (c *Database) scanSaleAssociate(ctx context.Context, query string, arg any) (domain.SaleAssociate, error) {
	var out domain.SaleAssociate
	err := c.dbtx.QueryRowContext(ctx, query, arg).Scan(
		&out.Key, &out.ConsumerKey, &out.StoreKey, &out.Name, &out.Language, &out.MessagingHandle, &out.Email,
	)
	if err != nil {
		return domain.SaleAssociate{}, err
	}
	return out, nil
}

const createSaleAssociateQuery = `-- name: CreateSaleAssociate :one
INSERT INTO sale_associates (consumer_id, store_id, name, language, messaging_handle, email)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

// CreateSaleAssociate provisions a sale associate attached to a store.
func (c *Database) CreateSaleAssociate(ctx context.Context, associate domain.SaleAssociate) (int64, error) {
	if associate.StoreKey == 0 {
		return 0, fmt.Errorf("sale associate requires a store")
	}
	language := associate.Language
	if language == "" {
		language = "en"
	}
	var id int64
	err := c.dbtx.QueryRowContext(ctx, createSaleAssociateQuery,
		associate.ConsumerKey, associate.StoreKey, associate.Name, language,
		associate.MessagingHandle, associate.Email,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const getStoreQuery = `-- name: GetStore :one
SELECT id, location_id, name
FROM stores
WHERE id = ?`

// GetStore fetches one outlet by key.
func (c *Database) GetStore(ctx context.Context, key int64) (domain.Store, error) {
	var out domain.Store
	err := c.dbtx.QueryRowContext(ctx, getStoreQuery, key).Scan(&out.Key, &out.LocationKey, &out.Name)
	if err != nil {
		return domain.Store{}, err
	}
	return out, nil
}

const getDefaultStoreQuery = `-- name: GetDefaultStore :one
SELECT id, location_id, name
FROM stores
ORDER BY id
LIMIT 1`

// GetDefaultStore returns the first registered outlet.
func (c *Database) GetDefaultStore(ctx context.Context) (domain.Store, error) {
	var out domain.Store
	err := c.dbtx.QueryRowContext(ctx, getDefaultStoreQuery).Scan(&out.Key, &out.LocationKey, &out.Name)
	if err != nil {
		return domain.Store{}, err
	}
	return out, nil
}

const createStoreQuery = `-- name: CreateStore :one
INSERT INTO stores (location_id, name)
VALUES (?, ?)
RETURNING id`

// CreateStore registers an outlet; used by seed tooling and tests.
func (c *Database) CreateStore(ctx context.Context, store domain.Store) (int64, error) {
	var id int64
	err := c.dbtx.QueryRowContext(ctx, createStoreQuery, store.LocationKey, store.Name).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const getLocationQuery = `-- name: GetLocation :one
SELECT id, postal_code, country_code, latitude, longitude
FROM locations
WHERE id = ?`

// GetLocation fetches one location by key.
func (c *Database) GetLocation(ctx context.Context, key int64) (domain.Location, error) {
	var out domain.Location
	err := c.dbtx.QueryRowContext(ctx, getLocationQuery, key).Scan(
		&out.Key, &out.PostalCode, &out.CountryCode, &out.Latitude, &out.Longitude,
	)
	if err != nil {
		return domain.Location{}, err
	}
	return out, nil
}

const createLocationQuery = `-- name: CreateLocation :one
INSERT INTO locations (postal_code, country_code, latitude, longitude)
VALUES (?, ?, ?, ?)
RETURNING id`

// CreateLocation registers a postal location, unresolved by default.
func (c *Database) CreateLocation(ctx context.Context, location domain.Location) (int64, error) {
	latitude, longitude := location.Latitude, location.Longitude
	if latitude == 0 && longitude == 0 {
		latitude, longitude = domain.InvalidCoordinate, domain.InvalidCoordinate
	}
	var id int64
	err := c.dbtx.QueryRowContext(ctx, createLocationQuery,
		location.PostalCode, location.CountryCode, latitude, longitude,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

const updateLocationQuery = `-- name: UpdateLocation :exec
UPDATE locations
SET postal_code = ?, country_code = ?, latitude = ?, longitude = ?
WHERE id = ?`

// UpdateLocation persists resolved coordinates.
func (c *Database) UpdateLocation(ctx context.Context, location domain.Location) error {
	_, err := c.dbtx.ExecContext(ctx, updateLocationQuery,
		location.PostalCode, location.CountryCode, location.Latitude, location.Longitude, location.Key)
	return err
}
