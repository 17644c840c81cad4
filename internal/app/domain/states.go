package domain

import (
	"fmt"
	"strings"
)

// Source identifies the channel a command arrived on and the channel any
// reply must leave on.
type Source string

const (
	SourceMessaging Source = "messaging"
	SourceMail      Source = "mail"
	SourceWidget    Source = "widget"
	// SourceSimulated is the in-process loop-back channel used by tests and
	// the robot responder.
	SourceSimulated Source = "simulated"
)

// ParseSource validates a stored or transported source label.
func ParseSource(value string) (Source, error) {
	switch Source(value) {
	case SourceMessaging, SourceMail, SourceWidget, SourceSimulated:
		return Source(value), nil
	}
	return "", fmt.Errorf("unknown source %q", value)
}

// DemandState is the demand lifecycle state.
type DemandState string

const (
	DemandOpen      DemandState = "open"
	DemandPublished DemandState = "published"
	DemandInvalid   DemandState = "invalid"
	DemandConfirmed DemandState = "confirmed"
	DemandClosed    DemandState = "closed"
	DemandExpired   DemandState = "expired"
)

// ProposalState is the proposal lifecycle state.
type ProposalState string

const (
	ProposalOpened    ProposalState = "opened"
	ProposalPublished ProposalState = "published"
	ProposalInvalid   ProposalState = "invalid"
	ProposalConfirmed ProposalState = "confirmed"
	ProposalClosed    ProposalState = "closed"
	ProposalDeclined  ProposalState = "declined"
)

// Modifiable reports whether the owning sale associate may still edit a
// proposal in this state. Any other state rejects edits outright.
func (s ProposalState) Modifiable() bool {
	switch s {
	case ProposalOpened, ProposalPublished, ProposalInvalid:
		return true
	}
	return false
}

// RangeUnit is the unit of a demand's search range.
type RangeUnit string

const (
	UnitKilometer RangeUnit = "km"
	UnitMile      RangeUnit = "mi"
)

// NormalizeRangeUnit maps free-form unit input to a supported unit,
// defaulting to kilometers like every other part of the pipeline.
func NormalizeRangeUnit(value string) RangeUnit {
	switch {
	case strings.EqualFold(value, string(UnitMile)),
		strings.EqualFold(value, "mile"),
		strings.EqualFold(value, "miles"):
		return UnitMile
	}
	return UnitKilometer
}
