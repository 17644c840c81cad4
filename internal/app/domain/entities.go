package domain

import (
	"slices"
	"time"
)

// InvalidCoordinate is the sentinel stored in a Location whose postal
// address has not been resolved to geographic coordinates yet.
const InvalidCoordinate = -1000.0

// DefaultExpirationDelay is how far in the future a demand expires when the
// emitter did not say otherwise.
const DefaultExpirationDelay = 30 * 24 * time.Hour

// DefaultRange is the search range, in DefaultRangeUnit, applied to demands
// created without one.
const DefaultRange = 25.0

// RawCommand is the immutable record of one inbound message, written before
// any interpretation happens. Derived entities keep its key for audit and
// reply routing.
type RawCommand struct {
	Key       int64
	Source    Source
	EmitterID string
	// MessageID is the channel-assigned identifier used for watermark
	// comparison and duplicate detection. Unique together with Source.
	MessageID int64
	Command   string
	CreatedAt time.Time
}

// Settings holds the ingestion cursor for one source: the highest channel
// message identifier already consumed. It never decreases.
type Settings struct {
	Source                 Source
	LastProcessedMessageID int64
}

// Consumer is a buyer-side actor, auto-provisioned the first time a channel
// sees them.
type Consumer struct {
	Key             int64
	Name            string
	Language        string
	MessagingHandle string
	Email           string
}

// AddressFor returns the consumer's address on the given channel, or "".
func (c Consumer) AddressFor(source Source) string {
	switch source {
	case SourceMessaging, SourceSimulated, SourceWidget:
		return c.MessagingHandle
	case SourceMail:
		return c.Email
	}
	return ""
}

// SaleAssociate is a seller-side actor attached to a store. A minimal record
// is provisioned from the consumer profile the first time they propose.
type SaleAssociate struct {
	Key             int64
	ConsumerKey     int64
	StoreKey        int64
	Name            string
	Language        string
	MessagingHandle string
	Email           string
}

// AddressFor returns the sale associate's address on the given channel, or "".
func (s SaleAssociate) AddressFor(source Source) string {
	switch source {
	case SourceMessaging, SourceSimulated, SourceWidget:
		return s.MessagingHandle
	case SourceMail:
		return s.Email
	}
	return ""
}

// Store is the physical outlet a sale associate proposes on behalf of.
type Store struct {
	Key         int64
	LocationKey int64
	Name        string
}

// Location is a postal address plus, once resolved, geographic coordinates.
type Location struct {
	Key         int64
	PostalCode  string
	CountryCode string
	Latitude    float64
	Longitude   float64
}

// Resolved reports whether geocoding has filled in real coordinates.
func (l Location) Resolved() bool {
	return l.Latitude != InvalidCoordinate && l.Longitude != InvalidCoordinate
}

// Demand is a buyer request driven through the validation lifecycle.
type Demand struct {
	Key            int64
	ConsumerKey    int64
	State          DemandState
	Criteria       []string
	ExpirationDate time.Time
	LocationKey    int64
	Quantity       int64
	Range          float64
	RangeUnit      RangeUnit
	ProposalKeys   []int64
	RawCommandKey  int64
	Source         Source
	UpdatedAt      time.Time
}

// NewDemand returns a demand with the documented defaults applied.
func NewDemand(now time.Time) Demand {
	return Demand{
		State:          DemandOpen,
		ExpirationDate: now.Add(DefaultExpirationDelay),
		Quantity:       1,
		Range:          DefaultRange,
		RangeUnit:      UnitKilometer,
	}
}

// AddCriterion appends a search tag, suppressing duplicates.
func (d *Demand) AddCriterion(criterion string) {
	if criterion == "" || slices.Contains(d.Criteria, criterion) {
		return
	}
	d.Criteria = append(d.Criteria, criterion)
}

// AddProposalKey links a proposal, suppressing duplicates.
func (d *Demand) AddProposalKey(key int64) {
	if key == 0 || slices.Contains(d.ProposalKeys, key) {
		return
	}
	d.ProposalKeys = append(d.ProposalKeys, key)
}

// Proposal is a seller offer against a demand.
type Proposal struct {
	Key           int64
	OwnerKey      int64
	StoreKey      int64
	DemandKey     int64
	State         ProposalState
	Criteria      []string
	Price         float64
	Total         float64
	Quantity      int64
	LocationKey   int64
	RawCommandKey int64
	Source        Source
	UpdatedAt     time.Time
}

// AddCriterion appends a descriptive tag, suppressing duplicates.
func (p *Proposal) AddCriterion(criterion string) {
	if criterion == "" || slices.Contains(p.Criteria, criterion) {
		return
	}
	p.Criteria = append(p.Criteria, criterion)
}
