package domain

import "time"

// Action tags a parsed command. Closed set with an explicit unsupported arm,
// so routing never falls through an open string switch.
type Action string

const (
	ActionDemand      Action = "demand"
	ActionPropose     Action = "propose"
	ActionUnsupported Action = "unsupported"
)

// DemandFields are the attributes a parsed demand command may carry. Zero
// values mean "not provided", the dispatcher fills defaults.
type DemandFields struct {
	Criteria       []string
	ExpirationDate time.Time
	LocationKey    int64
	Quantity       int64
	Range          float64
	RangeUnit      string
}

// ProposalFields are the attributes a parsed propose command may carry.
// ProposalKey non-zero means "update that proposal".
type ProposalFields struct {
	ProposalKey int64
	DemandKey   int64
	Criteria    []string
	Price       float64
	Total       float64
	Quantity    int64
}

// ParsedCommand is what the external parser turns a RawCommand into: one
// action arm populated, the others nil.
type ParsedCommand struct {
	Action   Action
	Demand   *DemandFields
	Proposal *ProposalFields
}
