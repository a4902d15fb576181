package qc

import "context"

// Machine is a piece of imaging equipment. Only the identity and display fields are consumed here.
type Machine struct {
	ID       string `json:"machineId"`
	Name     string `json:"machineName,omitempty"`
	Type     string `json:"type,omitempty"`
	Location string `json:"location,omitempty"`
	// InstalledOn is the start-date fallback for worksheets that don't carry one.
	InstalledOn Date `json:"installedOn,omitzero"`
}

// Worksheet is a QC test protocol with a recurrence, assigned to one or more machines.
type Worksheet struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title,omitempty"`
	Modality           string    `json:"modality,omitempty"`
	Frequency          Frequency `json:"frequency"`
	StartDate          Date      `json:"startDate"`
	AssignedMachineIDs []string  `json:"assignedMachineIds"`
}

func (w Worksheet) AssignedTo(machineID string) bool {
	for _, id := range w.AssignedMachineIDs {
		if id == machineID {
			return true
		}
	}
	return false
}

// CompletionRecord is evidence that one due-date was addressed. Records are never mutated.
type CompletionRecord struct {
	MachineID     string    `json:"machineId"`
	WorksheetID   string    `json:"worksheetId"`
	Frequency     Frequency `json:"frequency"`
	Date          Date      `json:"date"`
	OverallResult string    `json:"overallResult"`
	PerformedBy   string    `json:"performedBy"`
	Source        Source    `json:"source,omitempty"`
}

// Key identifies the obligation a record satisfies.
func (r CompletionRecord) Key() Key {
	return Key{MachineID: r.MachineID, WorksheetID: r.WorksheetID, Date: r.Date}
}

// Key is the identity of one due-date's obligation: (machineId, worksheetId, date).
type Key struct {
	MachineID   string
	WorksheetID string
	Date        Date
}

// Task is the derived, never-stored status of one due-date for one machine.
type Task struct {
	MachineID      string    `json:"machineId"`
	MachineName    string    `json:"machineName,omitempty"`
	Type           string    `json:"type,omitempty"`
	Location       string    `json:"location,omitempty"`
	WorksheetID    string    `json:"worksheetId"`
	WorksheetTitle string    `json:"worksheetTitle,omitempty"`
	Frequency      Frequency `json:"frequency"`
	DueDate        Date      `json:"dueDate"`
	Status         Status    `json:"status"`
	DaysOverdue    int       `json:"daysOverdue"`
	Priority       Priority  `json:"priority"`
	CompletedBy    string    `json:"completedBy,omitempty"`
	Result         string    `json:"overallResult,omitempty"`
	Source         Source    `json:"source,omitempty"`
}

// Directory is the worksheet-assignment read API.
type Directory interface {
	ListMachines(ctx context.Context) ([]Machine, error)
	ListWorksheetsForMachine(ctx context.Context, machineID string) ([]Worksheet, error)
}

// CompletionView is the merged completion evidence for one machine.
//
// Degraded is set when the authoritative store could not be read and the set
// holds local-cache data only; Err carries the underlying failure for logging.
type CompletionView struct {
	Set      *CompletionSet
	Degraded bool
	Err      error
}

// CompletionProvider exposes the merged, deduplicated completions of a machine.
type CompletionProvider interface {
	MergedCompletions(ctx context.Context, machineID string) CompletionView
}

// FindMachine looks a machine up through dir.
func FindMachine(ctx context.Context, dir Directory, machineID string) (Machine, error) {
	machines, err := dir.ListMachines(ctx)
	if err != nil {
		return Machine{}, err
	}
	for _, m := range machines {
		if m.ID == machineID {
			return m, nil
		}
	}
	return Machine{}, ErrUnknownMachine
}
