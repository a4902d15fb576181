package qc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	logx "qctrack/pkg/logx"
)

// AggregateOptions are the installation policies applied to every obligation.
type AggregateOptions struct {
	Generate GenerateOptions
	// MaxOverdueDays hides overdue tasks older than this many days. 0 keeps all of them.
	MaxOverdueDays int
}

// Buckets groups the tasks of one frequency tier.
type Buckets struct {
	Overdue       []Task `json:"overdue"`
	DueToday      []Task `json:"dueToday"`
	DueThisPeriod []Task `json:"dueThisPeriod"`
	Upcoming      []Task `json:"upcoming"`
}

// Skipped records an obligation that could not be scheduled (bad frequency or start date).
type Skipped struct {
	MachineID   string `json:"machineId"`
	WorksheetID string `json:"worksheetId"`
	Reason      string `json:"reason"`
}

// Report is the grouped output of one aggregation run.
type Report struct {
	Today         Date
	Tiers         map[Frequency]*Buckets
	Completed     int
	Hidden        int
	Degraded      bool
	StaleMachines []string
	Skipped       []Skipped
}

// Tier returns the buckets of f (empty when nothing landed there).
func (r Report) Tier(f Frequency) Buckets {
	if b, ok := r.Tiers[f]; ok && b != nil {
		return *b
	}
	return Buckets{}
}

// OverdueCount sums overdue tasks across all tiers.
func (r Report) OverdueCount() int {
	n := 0
	for _, b := range r.Tiers {
		n += len(b.Overdue)
	}
	return n
}

func (r *Report) bucket(f Frequency) *Buckets {
	if r.Tiers == nil {
		r.Tiers = make(map[Frequency]*Buckets, len(Frequencies))
	}
	b, ok := r.Tiers[f]
	if !ok {
		b = &Buckets{}
		r.Tiers[f] = b
	}
	return b
}

// Calendar is every task of one machine whose due-date falls in [From, To].
type Calendar struct {
	Machine  Machine `json:"machine"`
	From     Date    `json:"from"`
	To       Date    `json:"to"`
	Tasks    []Task  `json:"tasks"`
	Degraded bool    `json:"degraded"`
}

// Aggregator is the single computation path for due/overdue state.
// Dashboards and calendars read its output and never re-derive it.
type Aggregator struct {
	dir  Directory
	comp CompletionProvider
	log  logx.Logger

	mu  sync.RWMutex
	opt AggregateOptions
}

func NewAggregator(dir Directory, comp CompletionProvider, opt AggregateOptions, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{dir: dir, comp: comp, opt: opt, log: log}
}

// SetOptions swaps the policies used by subsequent runs.
func (a *Aggregator) SetOptions(opt AggregateOptions) {
	a.mu.Lock()
	a.opt = opt
	a.mu.Unlock()
}

// Options returns the policies currently in effect.
func (a *Aggregator) Options() AggregateOptions {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.opt
}

// Machine looks one machine up in the directory.
func (a *Aggregator) Machine(ctx context.Context, machineID string) (Machine, error) {
	return FindMachine(ctx, a.dir, machineID)
}

// DueTasks aggregates every machine known to the directory.
func (a *Aggregator) DueTasks(ctx context.Context, today Date) (Report, error) {
	machines, err := a.dir.ListMachines(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list machines: %w", err)
	}
	return a.Aggregate(ctx, machines, today)
}

// Aggregate classifies every worksheet of every machine with horizon = today
// and files the tasks into per-frequency buckets.
//
// Completions are fetched once per machine and shared by its worksheets.
// A task lands in exactly one bucket: a past due-date is always overdue, and
// only the current period's boundary falling on today counts as due this period.
func (a *Aggregator) Aggregate(ctx context.Context, machines []Machine, today Date) (Report, error) {
	if today.IsZero() {
		return Report{}, &InputError{Field: "today", Err: ErrInvalidDate}
	}
	opt := a.Options()
	rep := Report{Today: today, Tiers: make(map[Frequency]*Buckets, len(Frequencies))}

	seen := make(map[string]struct{}, len(machines))
	for _, m := range machines {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}

		worksheets, err := a.dir.ListWorksheetsForMachine(ctx, m.ID)
		if err != nil {
			return Report{}, fmt.Errorf("list worksheets for machine %s: %w", m.ID, err)
		}
		if len(worksheets) == 0 {
			continue
		}

		view := a.comp.MergedCompletions(ctx, m.ID)
		if view.Degraded {
			rep.Degraded = true
			rep.StaleMachines = append(rep.StaleMachines, m.ID)
		}

		for _, ws := range worksheets {
			dates, err := a.generate(m, ws, today, opt)
			if err != nil {
				rep.Skipped = append(rep.Skipped, Skipped{MachineID: m.ID, WorksheetID: ws.ID, Reason: err.Error()})
				continue
			}
			for _, t := range Classify(Obligation{Machine: m, Worksheet: ws}, dates, view.Set, today) {
				rep.place(t, today, opt)
			}
		}
	}

	for _, b := range rep.Tiers {
		sortTasks(b.Overdue)
		sortTasks(b.DueToday)
		sortTasks(b.DueThisPeriod)
		sortTasks(b.Upcoming)
	}
	a.log.Debug("aggregate done",
		logx.Stringer("today", today),
		logx.Int("machines", len(seen)),
		logx.Int("overdue", rep.OverdueCount()),
		logx.Int("completed", rep.Completed),
		logx.Int("skipped", len(rep.Skipped)),
		logx.Bool("degraded", rep.Degraded),
	)
	return rep, nil
}

func (r *Report) place(t Task, today Date, opt AggregateOptions) {
	b := r.bucket(t.Frequency)
	switch t.Status {
	case StatusCompleted:
		r.Completed++
	case StatusOverdue:
		if opt.MaxOverdueDays > 0 && t.DaysOverdue > opt.MaxOverdueDays {
			r.Hidden++
			return
		}
		b.Overdue = append(b.Overdue, t)
	case StatusDueToday:
		if t.Frequency != Daily && PeriodContains(t.Frequency, t.DueDate, today) {
			b.DueThisPeriod = append(b.DueThisPeriod, t)
			return
		}
		b.DueToday = append(b.DueToday, t)
	case StatusUpcoming:
		b.Upcoming = append(b.Upcoming, t)
	default:
		panic("qc: unhandled status " + t.Status.String())
	}
}

// Calendar returns the tasks of one machine due in [from, to], upcoming and completed included.
func (a *Aggregator) Calendar(ctx context.Context, machineID string, from, to, today Date) (Calendar, error) {
	if from.IsZero() {
		return Calendar{}, &InputError{Field: "from", Err: ErrInvalidDate}
	}
	if to.IsZero() || to.Before(from) {
		return Calendar{}, &InputError{Field: "to", Value: to.String(), Err: ErrInvalidDate}
	}
	m, err := FindMachine(ctx, a.dir, machineID)
	if err != nil {
		return Calendar{}, err
	}
	worksheets, err := a.dir.ListWorksheetsForMachine(ctx, m.ID)
	if err != nil {
		return Calendar{}, fmt.Errorf("list worksheets for machine %s: %w", m.ID, err)
	}

	cal := Calendar{Machine: m, From: from, To: to, Tasks: []Task{}}
	if len(worksheets) == 0 {
		return cal, nil
	}
	opt := a.Options()
	view := a.comp.MergedCompletions(ctx, m.ID)
	cal.Degraded = view.Degraded

	for _, ws := range worksheets {
		dates, err := a.generate(m, ws, to, opt)
		if err != nil {
			continue
		}
		i := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(from) })
		cal.Tasks = append(cal.Tasks, Classify(Obligation{Machine: m, Worksheet: ws}, dates[i:], view.Set, today)...)
	}
	sortTasks(cal.Tasks)
	return cal, nil
}

func (a *Aggregator) generate(m Machine, ws Worksheet, horizon Date, opt AggregateOptions) ([]Date, error) {
	start := ws.StartDate
	if start.IsZero() {
		start = m.InstalledOn
	}
	dates, err := Generate(ws.Frequency, start, horizon, opt.Generate)
	if err != nil {
		a.log.Warn("cannot schedule worksheet",
			logx.String("machine", m.ID),
			logx.String("worksheet", ws.ID),
			logx.Err(err),
		)
		return nil, err
	}
	return dates, nil
}

func sortTasks(ts []Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		if c := ts[i].DueDate.Compare(ts[j].DueDate); c != 0 {
			return c < 0
		}
		if ts[i].MachineID != ts[j].MachineID {
			return ts[i].MachineID < ts[j].MachineID
		}
		return ts[i].WorksheetID < ts[j].WorksheetID
	})
}
