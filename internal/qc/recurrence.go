package qc

import "time"

// GenerateOptions tunes occurrence rules that differ per installation.
type GenerateOptions struct {
	// SkipWeekends drops Saturdays and Sundays from daily sequences.
	// It has no effect on other frequencies.
	SkipWeekends bool
}

// Generate returns the ascending due-dates of freq from start through horizon (inclusive).
//
// The first due-date is the first occurrence boundary on or after start:
//
//	daily      start itself
//	weekly     the next Monday
//	monthly    the 1st of the next month (start itself when it is a 1st)
//	quarterly  the next Jan/Apr/Jul/Oct 1st
//	annual     the next Jan 1st
//
// A horizon before start yields an empty, non-nil slice. The function is pure:
// a later horizon returns a sequence whose prefix equals the earlier one.
func Generate(freq Frequency, start, horizon Date, opt GenerateOptions) ([]Date, error) {
	if !freq.Valid() {
		return nil, &InputError{Field: "frequency", Value: freq.String(), Err: ErrInvalidFrequency}
	}
	if start.IsZero() {
		return nil, &InputError{Field: "startDate", Err: ErrInvalidStartDate}
	}
	out := []Date{}
	if horizon.IsZero() || horizon.Before(start) {
		return out, nil
	}

	skipWeekends := opt.SkipWeekends && freq == Daily
	for d := FirstOccurrence(freq, start); !d.After(horizon); d = NextOccurrence(freq, d) {
		if skipWeekends && d.IsWeekend() {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// FirstOccurrence returns the first boundary of freq on or after start.
func FirstOccurrence(freq Frequency, start Date) Date {
	p := PeriodStart(freq, start)
	if p.Equal(start) {
		return start
	}
	return NextOccurrence(freq, p)
}

// NextOccurrence returns the boundary following d. d must itself be a boundary.
func NextOccurrence(freq Frequency, d Date) Date {
	switch freq {
	case Daily:
		return d.AddDays(1)
	case Weekly:
		return d.AddDays(7)
	case Monthly:
		return d.AddMonths(1)
	case Quarterly:
		return d.AddMonths(3)
	case Annual:
		return d.AddMonths(12)
	default:
		panic("qc: NextOccurrence on invalid frequency " + freq.String())
	}
}

// PeriodStart returns the boundary of the period (day/week/month/quarter/year) containing d.
// Weeks start on Monday.
func PeriodStart(freq Frequency, d Date) Date {
	switch freq {
	case Daily:
		return d
	case Weekly:
		// Monday=0 ... Sunday=6
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDays(-offset)
	case Monthly:
		return NewDate(d.Year(), d.Month(), 1)
	case Quarterly:
		q := (int(d.Month()) - 1) / 3
		return NewDate(d.Year(), time.Month(q*3+1), 1)
	case Annual:
		return NewDate(d.Year(), time.January, 1)
	default:
		panic("qc: PeriodStart on invalid frequency " + freq.String())
	}
}

// PeriodContains reports whether d falls in the period that begins at boundary.
func PeriodContains(freq Frequency, boundary, d Date) bool {
	return !d.Before(boundary) && d.Before(NextOccurrence(freq, boundary))
}
