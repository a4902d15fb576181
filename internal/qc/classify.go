package qc

// Obligation is one (machine, worksheet) pair.
type Obligation struct {
	Machine   Machine
	Worksheet Worksheet
}

// Classify labels each due-date of ob against the completion evidence and today.
//
//	completion with matching date -> completed
//	dueDate == today             -> dueToday
//	dueDate <  today             -> overdue (daysOverdue = today - dueDate)
//	otherwise                    -> upcoming
func Classify(ob Obligation, dueDates []Date, done *CompletionSet, today Date) []Task {
	out := make([]Task, 0, len(dueDates))
	for _, due := range dueDates {
		t := Task{
			MachineID:      ob.Machine.ID,
			MachineName:    ob.Machine.Name,
			Type:           ob.Machine.Type,
			Location:       ob.Machine.Location,
			WorksheetID:    ob.Worksheet.ID,
			WorksheetTitle: ob.Worksheet.Title,
			Frequency:      ob.Worksheet.Frequency,
			DueDate:        due,
		}
		if rec, ok := done.Lookup(ob.Machine.ID, ob.Worksheet.ID, due); ok {
			t.Status = StatusCompleted
			t.CompletedBy = rec.PerformedBy
			t.Result = rec.OverallResult
			t.Source = rec.Source
		} else {
			switch {
			case due.Equal(today):
				t.Status = StatusDueToday
			case due.Before(today):
				t.Status = StatusOverdue
				t.DaysOverdue = today.DaysSince(due)
			default:
				t.Status = StatusUpcoming
			}
		}
		t.Priority = PriorityFor(t.Frequency, t.Status)
		out = append(out, t)
	}
	return out
}

// PriorityFor is the dashboard badge heuristic:
// critical for an overdue daily, high for an overdue weekly/monthly or anything
// due today, medium for everything else.
func PriorityFor(freq Frequency, status Status) Priority {
	switch status {
	case StatusDueToday:
		return PriorityHigh
	case StatusOverdue:
		switch freq {
		case Daily:
			return PriorityCritical
		case Weekly, Monthly:
			return PriorityHigh
		case Quarterly, Annual:
			return PriorityMedium
		}
	case StatusUpcoming, StatusCompleted:
		return PriorityMedium
	}
	return PriorityMedium
}
