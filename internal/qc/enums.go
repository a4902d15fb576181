package qc

import (
	"fmt"
	"strings"
)

// Frequency is the recurrence tier of a worksheet.
//
// The zero value is invalid so an unset field never passes for "daily".
type Frequency uint8

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Quarterly
	Annual
)

// Frequencies lists every tier in dashboard order.
var Frequencies = []Frequency{Daily, Weekly, Monthly, Quarterly, Annual}

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Annual:
		return "annual"
	default:
		return fmt.Sprintf("frequency(%d)", uint8(f))
	}
}

func (f Frequency) Valid() bool { return f >= Daily && f <= Annual }

// ParseFrequency maps a wire name to a Frequency. "yearly" is accepted as an alias of annual.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	case "quarterly":
		return Quarterly, nil
	case "annual", "yearly":
		return Annual, nil
	default:
		return 0, &InputError{Field: "frequency", Value: s, Err: ErrInvalidFrequency}
	}
}

func (f Frequency) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, &InputError{Field: "frequency", Value: f.String(), Err: ErrInvalidFrequency}
	}
	return []byte(f.String()), nil
}

func (f *Frequency) UnmarshalText(b []byte) error {
	v, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Status is the compliance state of one due-date.
//
//	Upcoming -> DueToday -> Overdue -> Completed
//
// Completed is terminal for that due-date; the next due-date starts over as Upcoming.
type Status uint8

const (
	StatusUpcoming Status = iota + 1
	StatusDueToday
	StatusOverdue
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusUpcoming:
		return "upcoming"
	case StatusDueToday:
		return "dueToday"
	case StatusOverdue:
		return "overdue"
	case StatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, v := range []Status{StatusUpcoming, StatusDueToday, StatusOverdue, StatusCompleted} {
		if string(b) == v.String() {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("invalid status %q", string(b))
}

// Priority is a presentation hint for sorting and badging.
// It is not a safety classification.
type Priority uint8

const (
	PriorityMedium Priority = iota + 1
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	for _, v := range []Priority{PriorityMedium, PriorityHigh, PriorityCritical} {
		if string(b) == v.String() {
			*p = v
			return nil
		}
	}
	return fmt.Errorf("invalid priority %q", string(b))
}

// Source tells which store a completion record came from.
type Source uint8

const (
	SourceRemote Source = iota + 1
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceLocal:
		return "local"
	default:
		return ""
	}
}

func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Source) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "remote":
		*s = SourceRemote
	case "local":
		*s = SourceLocal
	case "":
		*s = 0
	default:
		return fmt.Errorf("invalid source %q", string(b))
	}
	return nil
}
