package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/catalog"
)

type demandValidatorHarness struct {
	store     *fakeStore
	queue     *fakeQueue
	connector *fakeConnector
	geocoder  *fakeGeocoder
	validator *DemandValidator
	now       time.Time
}

func newDemandValidatorHarness(t *testing.T) *demandValidatorHarness {
	t.Helper()

	store := newFakeStore()
	queue := &fakeQueue{}
	connector := newFakeConnector(domain.SourceMessaging)
	geocoder := &fakeGeocoder{}
	notifier := NewNotifier(NewConnectorRegistry(connector), discardLogger())

	validator := NewDemandValidator(store, store, store, geocoder, queue,
		notifier, catalog.MustLoad(), discardLogger())
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	validator.now = func() time.Time { return now }

	return &demandValidatorHarness{
		store:     store,
		queue:     queue,
		connector: connector,
		geocoder:  geocoder,
		validator: validator,
		now:       now,
	}
}

// seedOpenDemand returns a demand that passes every check, attached to a
// resolved location. Tests break one field at a time.
func (h *demandValidatorHarness) seedOpenDemand(t *testing.T) domain.Demand {
	t.Helper()

	h.store.seedConsumer(domain.Consumer{Name: "Jane", Language: "en", MessagingHandle: "jane_b"})
	location := h.store.seedLocation(domain.Location{
		PostalCode: "H3C2N6", CountryCode: "CA", Latitude: 45.5, Longitude: -73.6,
	})
	demand := domain.NewDemand(h.now)
	demand.ConsumerKey = 1
	demand.Source = domain.SourceMessaging
	demand.LocationKey = location.Key
	demand.AddCriterion("console")
	return h.store.seedDemand(demand)
}

func (h *demandValidatorHarness) reportedTo(address string) string {
	sent := h.connector.sentTo(address)
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

func TestValidDemandIsPublished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandPublished {
		t.Fatalf("state = %s, want published", updated.State)
	}

	tasks := h.queue.byKind(domain.TaskProcessPublishedDemand)
	if len(tasks) != 1 || tasks[0].EntityKey != demand.Key {
		t.Fatalf("follow-on task not enqueued: %v", tasks)
	}
}

func TestDemandValidationIsNoOpOutsideOpenState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("first validation: %v", err)
	}
	// Redelivered task: the demand is already published.
	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("second validation: %v", err)
	}

	if tasks := h.queue.byKind(domain.TaskProcessPublishedDemand); len(tasks) != 1 {
		t.Fatalf("redelivery produced extra follow-on tasks: %d", len(tasks))
	}
}

func TestDemandCheckOrderFirstFailureWins(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*domain.Demand)
		want   string
	}{
		{
			name:   "no criteria wins over everything",
			mutate: func(d *domain.Demand) { d.Criteria = nil; d.Quantity = 0; d.Range = 0 },
			want:   "search tag",
		},
		{
			name: "expiration in past",
			mutate: func(d *domain.Demand) {
				d.ExpirationDate = time.Date(2026, 3, 14, 9, 20, 0, 0, time.UTC)
				d.Quantity = 0
			},
			want: "expiration date",
		},
		{
			name:   "km range below five",
			mutate: func(d *domain.Demand) { d.Range = 4.5 },
			want:   "minimum range is 5 km",
		},
		{
			name: "any range below three",
			mutate: func(d *domain.Demand) {
				d.Range = 2.5
				d.RangeUnit = domain.UnitMile
			},
			want: "minimum range is 3 mi",
		},
		{
			name:   "zero quantity",
			mutate: func(d *domain.Demand) { d.Quantity = 0 },
			want:   "at least one item",
		},
		{
			name:   "missing location",
			mutate: func(d *domain.Demand) { d.LocationKey = 0 },
			want:   "must specify a location",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			h := newDemandValidatorHarness(t)
			demand := h.seedOpenDemand(t)
			tc.mutate(&demand)
			h.store.seedDemand(demand)

			if err := h.validator.Validate(ctx, demand.Key); err != nil {
				t.Fatalf("validate: %v", err)
			}

			updated, _ := h.store.GetDemand(ctx, demand.Key)
			if updated.State != domain.DemandInvalid {
				t.Fatalf("state = %s, want invalid", updated.State)
			}
			report := h.reportedTo("jane_b")
			if !strings.Contains(report, tc.want) {
				t.Fatalf("report %q does not mention %q", report, tc.want)
			}
			if tasks := h.queue.byKind(domain.TaskProcessPublishedDemand); len(tasks) != 0 {
				t.Fatalf("invalid demand produced follow-on tasks: %v", tasks)
			}
		})
	}
}

func TestExpirationGraceWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	// 30 seconds in the past is within the tolerated clock skew.
	demand.ExpirationDate = h.now.Add(-30 * time.Second)
	h.store.seedDemand(demand)

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandPublished {
		t.Fatalf("state = %s, want published inside grace window", updated.State)
	}
}

func TestUnresolvedLocationTriggersGeocoding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	location := h.store.seedLocation(domain.Location{
		Key:        demand.LocationKey,
		PostalCode: "H3C2N6", CountryCode: "CA",
		Latitude: domain.InvalidCoordinate, Longitude: domain.InvalidCoordinate,
	})
	h.geocoder.resolveFn = func(loc domain.Location) (domain.Location, error) {
		loc.Latitude = 45.5
		loc.Longitude = -73.6
		return loc, nil
	}

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandPublished {
		t.Fatalf("state = %s, want published after geocoding", updated.State)
	}
	if h.geocoder.calls != 1 {
		t.Fatalf("geocoder calls = %d, want 1", h.geocoder.calls)
	}

	persisted, _ := h.store.GetLocation(ctx, location.Key)
	if !persisted.Resolved() {
		t.Fatalf("resolved coordinates not persisted: %+v", persisted)
	}
}

func TestUngeodableLocationInvalidatesDemand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	h.store.seedLocation(domain.Location{
		Key:        demand.LocationKey,
		PostalCode: "XXXXXX", CountryCode: "CA",
		Latitude: domain.InvalidCoordinate, Longitude: domain.InvalidCoordinate,
	})

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandInvalid {
		t.Fatalf("state = %s, want invalid", updated.State)
	}
	report := h.reportedTo("jane_b")
	if !strings.Contains(report, "XXXXXX") || !strings.Contains(report, "geolocated") {
		t.Fatalf("report does not name the location: %q", report)
	}
}

func TestLocationLoadFailureInvalidatesDemand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	h.store.failWith("GetLocation", errors.New("store down"))

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandInvalid {
		t.Fatalf("state = %s, want invalid", updated.State)
	}
	if report := h.reportedTo("jane_b"); !strings.Contains(report, "cannot be fetched") {
		t.Fatalf("unexpected report: %q", report)
	}
}

func TestTransientConsumerFailureLeavesDemandOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	h.store.failWith("GetConsumer", errors.New("store down"))

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate must swallow the transient failure: %v", err)
	}

	updated, _ := h.store.GetDemand(ctx, demand.Key)
	if updated.State != domain.DemandOpen {
		t.Fatalf("state = %s, want open after transient failure", updated.State)
	}
	if len(h.queue.tasks) != 0 {
		t.Fatalf("transient failure enqueued tasks: %v", h.queue.tasks)
	}
}

func TestPersistFailureLeavesDemandOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	demand := h.seedOpenDemand(t)
	h.store.failWith("UpdateDemand", errors.New("store down"))

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate must swallow the transient failure: %v", err)
	}
	if tasks := h.queue.byKind(domain.TaskProcessPublishedDemand); len(tasks) != 0 {
		t.Fatalf("unpersisted publication enqueued tasks: %v", tasks)
	}
}

func TestDemandValidationReportLocalized(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newDemandValidatorHarness(t)
	consumer := h.store.seedConsumer(domain.Consumer{Name: "Jeanne", Language: "fr", MessagingHandle: "jeanne_a"})
	demand := domain.NewDemand(h.now)
	demand.ConsumerKey = consumer.Key
	demand.Source = domain.SourceMessaging
	demand = h.store.seedDemand(demand)

	if err := h.validator.Validate(ctx, demand.Key); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if report := h.reportedTo("jeanne_a"); !strings.Contains(report, "mot-clé") {
		t.Fatalf("report not localized: %q", report)
	}
}
