// Package parser implements the free-form command grammar: a leading action
// word followed by prefix:value fields, where the tags field swallows bare
// words until the next prefix. Example:
//
//	demand tags:retro console quantity:2 range:10 mi expiration:2026-06-01
//	propose proposal:21 demand:9 price:25.80 total:51.60 tags:refurbished
package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
)

var prefixPattern = regexp.MustCompile(`^([a-zA-Z]+):(.*)$`)

// Accepted layouts for the expiration field.
var expirationLayouts = []string{"2006-01-02", time.RFC3339}

// Parser is the concrete ports.CommandParser over the prefix grammar.
type Parser struct{}

// New returns a grammar parser.
func New() *Parser {
	return &Parser{}
}

type field struct {
	name   string
	values []string
}

// Parse tokenizes the raw command text into a parsed command. Unknown
// actions come back as ActionUnsupported with a nil error; a malformed
// field value inside a known action is a parse error.
func (p *Parser) Parse(_ context.Context, raw domain.RawCommand) (domain.ParsedCommand, error) {
	action, fields := tokenize(raw.Command)

	switch action {
	case "demand", "request", "!demand":
		demand, err := demandFields(fields)
		if err != nil {
			return domain.ParsedCommand{}, err
		}
		return domain.ParsedCommand{Action: domain.ActionDemand, Demand: demand}, nil
	case "propose", "offer", "!propose":
		proposal, err := proposalFields(fields)
		if err != nil {
			return domain.ParsedCommand{}, err
		}
		return domain.ParsedCommand{Action: domain.ActionPropose, Proposal: proposal}, nil
	}
	return domain.ParsedCommand{Action: domain.ActionUnsupported}, nil
}

// tokenize splits the text into the action word and named fields. A bare
// first token is the action; an action: field anywhere overrides it. Bare
// tokens after a prefix attach to that prefix's value list.
func tokenize(text string) (string, []field) {
	tokens := strings.Fields(strings.TrimSpace(text))
	if len(tokens) == 0 {
		return "", nil
	}

	action := ""
	var fields []field
	current := -1
	for i, token := range tokens {
		match := prefixPattern.FindStringSubmatch(token)
		if match == nil {
			if i == 0 {
				action = strings.ToLower(token)
				continue
			}
			if current >= 0 {
				fields[current].values = append(fields[current].values, token)
			}
			continue
		}

		name := strings.ToLower(match[1])
		if name == "action" {
			action = strings.ToLower(match[2])
			current = -1
			continue
		}
		fields = append(fields, field{name: name})
		current = len(fields) - 1
		if match[2] != "" {
			fields[current].values = append(fields[current].values, match[2])
		}
	}
	return action, fields
}

func demandFields(fields []field) (*domain.DemandFields, error) {
	out := &domain.DemandFields{}
	for _, f := range fields {
		switch f.name {
		case "tags", "criteria":
			out.Criteria = append(out.Criteria, f.values...)
		case "quantity", "qty":
			value, err := parseInt(f)
			if err != nil {
				return nil, err
			}
			out.Quantity = value
		case "range":
			value, unit, err := parseRange(f)
			if err != nil {
				return nil, err
			}
			out.Range = value
			out.RangeUnit = unit
		case "expiration", "expires":
			value, err := parseExpiration(f)
			if err != nil {
				return nil, err
			}
			out.ExpirationDate = value
		case "location", "locale":
			value, err := parseInt(f)
			if err != nil {
				return nil, err
			}
			out.LocationKey = value
		default:
			return nil, fmt.Errorf("unknown demand field %q", f.name)
		}
	}
	return out, nil
}

func proposalFields(fields []field) (*domain.ProposalFields, error) {
	out := &domain.ProposalFields{}
	for _, f := range fields {
		switch f.name {
		case "tags", "criteria":
			out.Criteria = append(out.Criteria, f.values...)
		case "proposal", "ref":
			value, err := parseInt(f)
			if err != nil {
				return nil, err
			}
			out.ProposalKey = value
		case "demand":
			value, err := parseInt(f)
			if err != nil {
				return nil, err
			}
			out.DemandKey = value
		case "quantity", "qty":
			value, err := parseInt(f)
			if err != nil {
				return nil, err
			}
			out.Quantity = value
		case "price":
			value, err := parseFloat(f)
			if err != nil {
				return nil, err
			}
			out.Price = value
		case "total":
			value, err := parseFloat(f)
			if err != nil {
				return nil, err
			}
			out.Total = value
		default:
			return nil, fmt.Errorf("unknown proposal field %q", f.name)
		}
	}
	return out, nil
}

func parseInt(f field) (int64, error) {
	if len(f.values) == 0 {
		return 0, fmt.Errorf("field %q has no value", f.name)
	}
	value, err := strconv.ParseInt(f.values[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", f.name, err)
	}
	return value, nil
}

func parseFloat(f field) (float64, error) {
	if len(f.values) == 0 {
		return 0, fmt.Errorf("field %q has no value", f.name)
	}
	// Tolerate a currency marker the way emitters actually type prices.
	cleaned := strings.TrimLeft(f.values[0], "$£€")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", f.name, err)
	}
	return value, nil
}

// parseRange reads the numeric range plus an optional trailing unit word.
func parseRange(f field) (float64, string, error) {
	if len(f.values) == 0 {
		return 0, "", fmt.Errorf("field %q has no value", f.name)
	}
	value, err := strconv.ParseFloat(f.values[0], 64)
	if err != nil {
		return 0, "", fmt.Errorf("field %q: %w", f.name, err)
	}
	unit := ""
	if len(f.values) > 1 {
		unit = f.values[1]
	}
	return value, unit, nil
}

func parseExpiration(f field) (time.Time, error) {
	if len(f.values) == 0 {
		return time.Time{}, fmt.Errorf("field %q has no value", f.name)
	}
	for _, layout := range expirationLayouts {
		if value, err := time.Parse(layout, f.values[0]); err == nil {
			return value, nil
		}
	}
	return time.Time{}, fmt.Errorf("field %q: unrecognized date %q", f.name, f.values[0])
}

var _ ports.CommandParser = (*Parser)(nil)
