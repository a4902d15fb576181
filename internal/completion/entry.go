package completion

import (
	"fmt"
	"strings"

	"qctrack/internal/qc"
)

// Entry is the cache and request shape of a completion record.
//
// Everything is a string so a malformed value is caught by validation
// instead of failing the decode of the whole cache.
type Entry struct {
	MachineID     string `json:"machineId" validate:"required,max=128"`
	WorksheetID   string `json:"worksheetId" validate:"required,max=128"`
	Frequency     string `json:"frequency" validate:"required,qcfrequency"`
	Date          string `json:"date" validate:"required,qcdate"`
	OverallResult string `json:"overallResult" validate:"required,oneof=pass fail conditional"`
	PerformedBy   string `json:"performedBy" validate:"required,max=256"`
}

func EntryOf(r qc.CompletionRecord) Entry {
	return Entry{
		MachineID:     r.MachineID,
		WorksheetID:   r.WorksheetID,
		Frequency:     r.Frequency.String(),
		Date:          r.Date.String(),
		OverallResult: r.OverallResult,
		PerformedBy:   r.PerformedBy,
	}
}

// Record validates e and converts it, tagging the result with src.
func (e Entry) Record(src qc.Source) (qc.CompletionRecord, error) {
	e.normalize()
	if err := Validate.Struct(e); err != nil {
		return qc.CompletionRecord{}, err
	}
	freq, err := qc.ParseFrequency(e.Frequency)
	if err != nil {
		return qc.CompletionRecord{}, err
	}
	d, err := qc.ParseDate(e.Date)
	if err != nil {
		return qc.CompletionRecord{}, fmt.Errorf("date: %w", err)
	}
	return qc.CompletionRecord{
		MachineID:     e.MachineID,
		WorksheetID:   e.WorksheetID,
		Frequency:     freq,
		Date:          d,
		OverallResult: e.OverallResult,
		PerformedBy:   e.PerformedBy,
		Source:        src,
	}, nil
}

func (e *Entry) normalize() {
	e.MachineID = strings.TrimSpace(e.MachineID)
	e.WorksheetID = strings.TrimSpace(e.WorksheetID)
	e.Frequency = strings.ToLower(strings.TrimSpace(e.Frequency))
	e.Date = strings.TrimSpace(e.Date)
	e.OverallResult = strings.ToLower(strings.TrimSpace(e.OverallResult))
	e.PerformedBy = strings.TrimSpace(e.PerformedBy)
}
