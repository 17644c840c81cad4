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

// Clock skew tolerated before an expiration date counts as past.
const expirationGrace = time.Minute

const (
	minRangeKm  = 5.0
	minRangeAny = 3.0
)

// DemandValidator decides whether an open demand is publishable. It is the
// consumer of validateDemand tasks and a no-op for demands in any other
// state, which makes redelivered tasks harmless.
type DemandValidator struct {
	demands   ports.DemandStore
	consumers ports.ConsumerStore
	locations ports.LocationStore
	geocoder  ports.Geocoder
	queue     ports.TaskEnqueuer
	notifier  *Notifier
	messages  *catalog.Bundle
	now       func() time.Time
	log       *slog.Logger
}

// NewDemandValidator constructs the validator.
func NewDemandValidator(
	demands ports.DemandStore,
	consumers ports.ConsumerStore,
	locations ports.LocationStore,
	geocoder ports.Geocoder,
	queue ports.TaskEnqueuer,
	notifier *Notifier,
	messages *catalog.Bundle,
	log *slog.Logger,
) *DemandValidator {
	return &DemandValidator{
		demands:   demands,
		consumers: consumers,
		locations: locations,
		geocoder:  geocoder,
		queue:     queue,
		notifier:  notifier,
		messages:  messages,
		now:       time.Now,
		log:       log,
	}
}

// Validate runs the demand checks and transitions the demand to published
// or invalid. A transient failure leaves the demand open and untouched, to
// be re-validated by an operator re-trigger; only the failure to load the
// demand itself is surfaced to the queue.
func (v *DemandValidator) Validate(ctx context.Context, demandKey int64) error {
	demand, err := v.demands.GetDemand(ctx, demandKey)
	if err != nil {
		return fmt.Errorf("load demand %d: %w", demandKey, err)
	}
	if demand.State != domain.DemandOpen {
		v.log.InfoContext(ctx, "demand not open, skipping validation",
			slog.Int64("demand_key", demandKey),
			slog.String("state", string(demand.State)))
		return nil
	}

	owner, err := v.consumers.GetConsumer(ctx, demand.ConsumerKey)
	if err != nil {
		v.log.ErrorContext(ctx, "cannot load demand owner, leaving demand open",
			slog.Int64("demand_key", demandKey),
			slog.Int64("consumer_key", demand.ConsumerKey),
			slog.Any("error", err))
		return nil
	}

	reason := v.firstFailure(ctx, &demand, owner.Language)
	if reason == "" {
		return v.publish(ctx, demand)
	}
	return v.invalidate(ctx, demand, owner, reason)
}

// firstFailure returns the localized report of the first failed check, or
// "" when the demand passes. The check order is fixed; later checks never
// run once one fails.
func (v *DemandValidator) firstFailure(ctx context.Context, demand *domain.Demand, locale string) string {
	get := func(key string, args ...any) string {
		return v.messages.Get(locale, key, args...)
	}

	if len(demand.Criteria) == 0 {
		return get("demand.no_tag", demand.Key)
	}
	if demand.ExpirationDate.Before(v.now().Add(-expirationGrace)) {
		return get("demand.expiration_in_past", demand.Key)
	}
	if demand.RangeUnit == domain.UnitKilometer && demand.Range < minRangeKm {
		return get("demand.range_km_too_small", demand.Key, demand.Range)
	}
	if demand.Range < minRangeAny {
		return get("demand.range_mi_too_small", demand.Key, demand.Range)
	}
	if demand.Quantity <= 0 {
		return get("demand.no_quantity", demand.Key)
	}
	if demand.LocationKey == 0 {
		return get("demand.no_location", demand.Key)
	}

	location, err := v.locations.GetLocation(ctx, demand.LocationKey)
	if err != nil {
		v.log.ErrorContext(ctx, "cannot load demand location",
			slog.Int64("demand_key", demand.Key),
			slog.Int64("location_key", demand.LocationKey),
			slog.Any("error", err))
		return get("demand.location_unavailable", demand.Key)
	}
	if !location.Resolved() {
		location = v.geocode(ctx, location)
	}
	if !location.Resolved() {
		return get("demand.invalid_location", demand.Key, location.PostalCode, location.CountryCode)
	}
	return ""
}

func (v *DemandValidator) geocode(ctx context.Context, location domain.Location) domain.Location {
	resolved, err := v.geocoder.Resolve(ctx, location)
	if err != nil {
		v.log.WarnContext(ctx, "geocoding failed",
			slog.Int64("location_key", location.Key),
			slog.Any("error", err))
		return location
	}
	if resolved.Resolved() {
		if err := v.locations.UpdateLocation(ctx, resolved); err != nil {
			v.log.WarnContext(ctx, "resolved coordinates not persisted",
				slog.Int64("location_key", location.Key),
				slog.Any("error", err))
		}
	}
	return resolved
}

func (v *DemandValidator) publish(ctx context.Context, demand domain.Demand) error {
	demand.State = domain.DemandPublished
	demand.UpdatedAt = v.now()
	if err := v.demands.UpdateDemand(ctx, demand); err != nil {
		v.log.ErrorContext(ctx, "cannot publish demand, leaving demand open",
			slog.Int64("demand_key", demand.Key), slog.Any("error", err))
		return nil
	}
	if _, err := v.queue.Enqueue(ctx, domain.TaskProcessPublishedDemand, demand.Key); err != nil {
		return fmt.Errorf("enqueue processing for published demand %d: %w", demand.Key, err)
	}
	v.log.InfoContext(ctx, "demand published", slog.Int64("demand_key", demand.Key))
	return nil
}

func (v *DemandValidator) invalidate(ctx context.Context, demand domain.Demand, owner domain.Consumer, reason string) error {
	demand.State = domain.DemandInvalid
	demand.UpdatedAt = v.now()
	if err := v.demands.UpdateDemand(ctx, demand); err != nil {
		v.log.ErrorContext(ctx, "cannot invalidate demand, leaving demand open",
			slog.Int64("demand_key", demand.Key), slog.Any("error", err))
		return nil
	}

	v.log.InfoContext(ctx, "demand invalidated",
		slog.Int64("demand_key", demand.Key))

	if err := v.notifier.NotifyConsumer(ctx, demand.Source, owner, reason); err != nil {
		if !errors.Is(err, ErrCommunicationFailure) && !errors.Is(err, ErrUnknownSource) {
			return err
		}
		v.log.WarnContext(ctx, "validation report not delivered",
			slog.Int64("demand_key", demand.Key), slog.Any("error", err))
	}
	return nil
}
