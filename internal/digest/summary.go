package digest

import (
	"fmt"
	"html"
	"strings"

	"qctrack/internal/qc"
)

const defaultTopN = 10

type TierCount struct {
	Frequency     qc.Frequency `json:"frequency"`
	Overdue       int          `json:"overdue"`
	DueToday      int          `json:"dueToday"`
	DueThisPeriod int          `json:"dueThisPeriod"`
}

// Summary is the compact digest of one aggregation run.
type Summary struct {
	Today         qc.Date     `json:"today"`
	Tiers         []TierCount `json:"tiers"`
	Overdue       int         `json:"overdue"`
	Hidden        int         `json:"hidden,omitempty"`
	Top           []qc.Task   `json:"top"`
	Degraded      bool        `json:"degraded"`
	StaleMachines []string    `json:"staleMachines,omitempty"`
}

// Summarize keeps per-tier counts and the topN most urgent overdue tasks
// (critical first, then oldest).
func Summarize(rep qc.Report, topN int) Summary {
	if topN <= 0 {
		topN = defaultTopN
	}
	s := Summary{
		Today:         rep.Today,
		Hidden:        rep.Hidden,
		Degraded:      rep.Degraded,
		StaleMachines: rep.StaleMachines,
	}
	var overdue []qc.Task
	for _, f := range qc.Frequencies {
		b := rep.Tier(f)
		s.Tiers = append(s.Tiers, TierCount{
			Frequency:     f,
			Overdue:       len(b.Overdue),
			DueToday:      len(b.DueToday),
			DueThisPeriod: len(b.DueThisPeriod),
		})
		s.Overdue += len(b.Overdue)
		overdue = append(overdue, b.Overdue...)
	}
	sortUrgent(overdue)
	if len(overdue) > topN {
		overdue = overdue[:topN]
	}
	s.Top = overdue
	return s
}

func sortUrgent(ts []qc.Task) {
	// insertion sort; digests are small
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && moreUrgent(ts[j], ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func moreUrgent(a, b qc.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.DaysOverdue != b.DaysOverdue {
		return a.DaysOverdue > b.DaysOverdue
	}
	if a.MachineID != b.MachineID {
		return a.MachineID < b.MachineID
	}
	return a.WorksheetID < b.WorksheetID
}

// Text renders the summary as plain text.
func (s Summary) Text() string {
	return s.render(func(v string) string { return v }, "", "")
}

// HTML renders the summary for Telegram's HTML parse mode.
func (s Summary) HTML() string {
	return s.render(html.EscapeString, "<b>", "</b>")
}

func (s Summary) render(esc func(string) string, bo, bc string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sQC digest %s%s: %d overdue\n", bo, s.Today, bc, s.Overdue)
	if s.Degraded {
		fmt.Fprintf(&b, "completion status may be stale for: %s\n", esc(strings.Join(s.StaleMachines, ", ")))
	}
	for _, t := range s.Tiers {
		if t.Overdue == 0 && t.DueToday == 0 && t.DueThisPeriod == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d overdue, %d due today, %d due this period\n", t.Frequency, t.Overdue, t.DueToday, t.DueThisPeriod)
	}
	if s.Hidden > 0 {
		fmt.Fprintf(&b, "(%d older overdue tasks hidden)\n", s.Hidden)
	}
	if len(s.Top) > 0 {
		fmt.Fprintf(&b, "%sMost urgent%s\n", bo, bc)
	}
	for _, t := range s.Top {
		name := t.MachineName
		if name == "" {
			name = t.MachineID
		}
		title := t.WorksheetTitle
		if title == "" {
			title = t.WorksheetID
		}
		fmt.Fprintf(&b, "• [%s] %s / %s due %s (%dd)\n", t.Priority, esc(name), esc(title), t.DueDate, t.DaysOverdue)
	}
	return strings.TrimRight(b.String(), "\n")
}
