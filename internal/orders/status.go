package orders

import (
	"sort"
	"strings"
)

type Status string

const (
	StatusPending             Status = "pending"
	StatusPendingVerification Status = "pending_verification"
	StatusProcessing          Status = "processing"
	StatusShipped             Status = "shipped"
	StatusDelivered           Status = "delivered"
	StatusPaid                Status = "paid"
	StatusReturned            Status = "returned"
	StatusRefunded            Status = "refunded"
	StatusCancelled           Status = "cancelled"
	StatusFake                Status = "fake"
)

// weights express forward progression; equal weights are the same tier.
var weights = map[Status]int{
	StatusPending:             10,
	StatusPendingVerification: 10,
	StatusProcessing:          20,
	StatusShipped:             30,
	StatusDelivered:           40,
	StatusPaid:                50,
	StatusReturned:            60,
	StatusRefunded:            70,
	StatusCancelled:           80,
	StatusFake:                90,
}

// validNext is the reviewed transition table. Every edge keeps weight(to) >= weight(from).
var validNext = map[Status]map[Status]bool{
	StatusPending:             {StatusProcessing: true, StatusCancelled: true, StatusFake: true},
	StatusPendingVerification: {StatusProcessing: true, StatusCancelled: true, StatusFake: true},
	StatusProcessing:          {StatusShipped: true, StatusCancelled: true, StatusFake: true},
	StatusShipped:             {StatusDelivered: true, StatusReturned: true, StatusCancelled: true},
	StatusDelivered:           {StatusPaid: true, StatusReturned: true, StatusRefunded: true},
	StatusPaid:                {StatusReturned: true, StatusRefunded: true},
	StatusReturned:            {StatusRefunded: true},
	StatusRefunded:            {},
	StatusCancelled:           {},
	StatusFake:                {},
}

func AllStatuses() []Status {
	out := make([]Status, 0, len(weights))
	for s := range weights {
		out = append(out, s)
	}
	sortStatuses(out)
	return out
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", &ValidationError{Field: "status", Reason: "unknown order status " + s}
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	_, ok := weights[s]
	return ok
}

func (s Status) Weight() int { return weights[s] }

// IsTerminal reports statuses that accept no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusFake, StatusRefunded:
		return true
	}
	return false
}

// NeedsRestockDecision reports statuses that reverse a fulfilment; the caller
// has to say explicitly whether the ordered items go back to stock.
func (s Status) NeedsRestockDecision() bool {
	switch s {
	case StatusCancelled, StatusFake, StatusReturned:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Policy decides which status changes an operator may apply.
type Policy interface {
	Allowed(from, to Status) bool
	Next(from Status) []Status
}

// TablePolicy follows the reviewed transition table.
type TablePolicy struct{}

func (TablePolicy) Allowed(from, to Status) bool { return CanTransition(from, to) }

func (TablePolicy) Next(from Status) []Status {
	out := make([]Status, 0, len(validNext[from]))
	for s := range validNext[from] {
		out = append(out, s)
	}
	sortStatuses(out)
	return out
}

// WeightPolicy is the legacy rule: any status of equal or higher weight,
// unless the order already sits in a terminal status.
type WeightPolicy struct{}

func (WeightPolicy) Allowed(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() || from.IsTerminal() {
		return false
	}
	return to.Weight() >= from.Weight()
}

func (p WeightPolicy) Next(from Status) []Status {
	var out []Status
	for s := range weights {
		if s != from && p.Allowed(from, s) {
			out = append(out, s)
		}
	}
	sortStatuses(out)
	return out
}

func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "table":
		return TablePolicy{}, nil
	case "weight":
		return WeightPolicy{}, nil
	}
	return nil, &ValidationError{Field: "transition_policy", Reason: "unknown policy " + name}
}

func sortStatuses(s []Status) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Weight() != s[j].Weight() {
			return s[i].Weight() < s[j].Weight()
		}
		return s[i] < s[j]
	})
}
