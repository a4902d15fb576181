// Package inventory is the machine and worksheet-assignment directory.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"qctrack/internal/config"
	"qctrack/internal/qc"
)

// Static serves a directory held in memory. Replace swaps it atomically,
// so config reloads never expose a half-built inventory.
type Static struct {
	mu         sync.RWMutex
	machines   []qc.Machine
	byMachine  map[string][]qc.Worksheet
	worksheets int
}

func NewStatic(machines []qc.Machine, worksheets []qc.Worksheet) (*Static, error) {
	s := &Static{}
	if err := s.Replace(machines, worksheets); err != nil {
		return nil, err
	}
	return s, nil
}

// FromConfig converts the inventory section into domain values.
func FromConfig(cfg *config.InventoryConfig) ([]qc.Machine, []qc.Worksheet, error) {
	if cfg == nil {
		return nil, nil, nil
	}
	var errs []error
	machines := make([]qc.Machine, 0, len(cfg.Machines))
	for i, mc := range cfg.Machines {
		m := qc.Machine{
			ID:       strings.TrimSpace(mc.ID),
			Name:     mc.Name,
			Type:     mc.Type,
			Location: mc.Location,
		}
		if strings.TrimSpace(mc.InstalledOn) != "" {
			d, err := qc.ParseDate(mc.InstalledOn)
			if err != nil {
				errs = append(errs, fmt.Errorf("inventory.machines[%d].installed_on: %w", i, err))
			}
			m.InstalledOn = d
		}
		machines = append(machines, m)
	}

	worksheets := make([]qc.Worksheet, 0, len(cfg.Worksheets))
	for i, wc := range cfg.Worksheets {
		freq, err := qc.ParseFrequency(wc.Frequency)
		if err != nil {
			errs = append(errs, fmt.Errorf("inventory.worksheets[%d]: %w", i, err))
		}
		ws := qc.Worksheet{
			ID:                 strings.TrimSpace(wc.ID),
			Title:              wc.Title,
			Modality:           wc.Modality,
			Frequency:          freq,
			AssignedMachineIDs: wc.Machines,
		}
		if strings.TrimSpace(wc.StartDate) != "" {
			d, err := qc.ParseDate(wc.StartDate)
			if err != nil {
				errs = append(errs, fmt.Errorf("inventory.worksheets[%d].start_date: %w", i, err))
			}
			ws.StartDate = d
		}
		worksheets = append(worksheets, ws)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	return machines, worksheets, nil
}

// Replace validates and installs a new inventory.
func (s *Static) Replace(machines []qc.Machine, worksheets []qc.Worksheet) error {
	known := make(map[string]struct{}, len(machines))
	var errs []error
	for _, m := range machines {
		if m.ID == "" {
			errs = append(errs, errors.New("machine with empty id"))
			continue
		}
		if _, dup := known[m.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate machine %q", m.ID))
		}
		known[m.ID] = struct{}{}
	}

	byMachine := make(map[string][]qc.Worksheet, len(machines))
	seen := make(map[string]struct{}, len(worksheets))
	for _, ws := range worksheets {
		if ws.ID == "" {
			errs = append(errs, errors.New("worksheet with empty id"))
			continue
		}
		if _, dup := seen[ws.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate worksheet %q", ws.ID))
		}
		seen[ws.ID] = struct{}{}
		if !ws.Frequency.Valid() {
			errs = append(errs, fmt.Errorf("worksheet %q: %w", ws.ID, qc.ErrInvalidFrequency))
		}
		for _, id := range ws.AssignedMachineIDs {
			if _, ok := known[id]; !ok {
				errs = append(errs, fmt.Errorf("worksheet %q: %w %q", ws.ID, qc.ErrUnknownMachine, id))
				continue
			}
			byMachine[id] = append(byMachine[id], ws)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	ms := make([]qc.Machine, len(machines))
	copy(ms, machines)
	s.mu.Lock()
	s.machines = ms
	s.byMachine = byMachine
	s.worksheets = len(worksheets)
	s.mu.Unlock()
	return nil
}

func (s *Static) ListMachines(context.Context) ([]qc.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]qc.Machine, len(s.machines))
	copy(out, s.machines)
	return out, nil
}

func (s *Static) ListWorksheetsForMachine(_ context.Context, machineID string) ([]qc.Worksheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws := s.byMachine[machineID]
	out := make([]qc.Worksheet, len(ws))
	copy(out, ws)
	return out, nil
}

// Counts returns the number of machines and worksheets currently served.
func (s *Static) Counts() (machines, worksheets int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.machines), s.worksheets
}
