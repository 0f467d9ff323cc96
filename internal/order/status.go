package order

import (
	"github.com/frahmantamala/pagepay/internal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ValidTransitions is the complete status machine. Paid and cancelled are
// terminal.
var ValidTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:      {},
	StatusFailed:    {StatusPending, StatusCancelled},
	StatusCancelled: {},
}

var AllStatuses = []Status{StatusPending, StatusPaid, StatusFailed, StatusCancelled}

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s.IsValid() && len(ValidTransitions[s]) == 0
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", internal.NewUnknownStatusError(raw)
	}
	return s, nil
}
