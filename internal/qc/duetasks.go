package qc

// DueTasks is the dashboard shape of a Report: one named list per tier and bucket.
type DueTasks struct {
	Today Date `json:"today"`

	DailyOverdue            []Task `json:"dailyOverdue"`
	DailyDueToday           []Task `json:"dailyDueToday"`
	WeeklyOverdue           []Task `json:"weeklyOverdue"`
	WeeklyDueThisWeek       []Task `json:"weeklyDueThisWeek"`
	MonthlyOverdue          []Task `json:"monthlyOverdue"`
	MonthlyDueThisMonth     []Task `json:"monthlyDueThisMonth"`
	QuarterlyOverdue        []Task `json:"quarterlyOverdue"`
	QuarterlyDueThisQuarter []Task `json:"quarterlyDueThisQuarter"`
	AnnualOverdue           []Task `json:"annualOverdue"`
	AnnualDueThisYear       []Task `json:"annualDueThisYear"`

	// Degraded means completion status may be stale for StaleMachines.
	Degraded      bool      `json:"degraded"`
	StaleMachines []string  `json:"staleMachines,omitempty"`
	HiddenOverdue int       `json:"hiddenOverdue,omitempty"`
	Skipped       []Skipped `json:"skipped,omitempty"`
}

func (r Report) DueTasks() DueTasks {
	daily := r.Tier(Daily)
	weekly := r.Tier(Weekly)
	monthly := r.Tier(Monthly)
	quarterly := r.Tier(Quarterly)
	annual := r.Tier(Annual)

	return DueTasks{
		Today:                   r.Today,
		DailyOverdue:            nonNil(daily.Overdue),
		DailyDueToday:           nonNil(daily.DueToday),
		WeeklyOverdue:           nonNil(weekly.Overdue),
		WeeklyDueThisWeek:       nonNil(weekly.DueThisPeriod),
		MonthlyOverdue:          nonNil(monthly.Overdue),
		MonthlyDueThisMonth:     nonNil(monthly.DueThisPeriod),
		QuarterlyOverdue:        nonNil(quarterly.Overdue),
		QuarterlyDueThisQuarter: nonNil(quarterly.DueThisPeriod),
		AnnualOverdue:           nonNil(annual.Overdue),
		AnnualDueThisYear:       nonNil(annual.DueThisPeriod),
		Degraded:                r.Degraded,
		StaleMachines:           r.StaleMachines,
		HiddenOverdue:           r.Hidden,
		Skipped:                 r.Skipped,
	}
}

func nonNil(ts []Task) []Task {
	if ts == nil {
		return []Task{}
	}
	return ts
}
