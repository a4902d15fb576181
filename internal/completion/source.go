package completion

import (
	"context"
	"errors"
	"fmt"

	"qctrack/internal/qc"
)

// Source is one store of completion evidence.
type Source interface {
	Name() qc.Source
	ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error)
}

// SourceError is an I/O failure of a completion source. It is the retryable
// tier; bad input to the engine surfaces as qc.InputError instead.
type SourceError struct {
	Source    qc.Source
	MachineID string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s completions for machine %s: %v", e.Source, e.MachineID, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Retryable reports whether trying again later may succeed.
func (e *SourceError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(e.Err, &r) {
		return r.Retryable()
	}
	return true
}

// RemoteAPI is the authoritative completion-record read API.
type RemoteAPI interface {
	ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error)
}

// RemoteSource tags records read from the authoritative store.
type RemoteSource struct {
	api RemoteAPI
}

func NewRemoteSource(api RemoteAPI) *RemoteSource { return &RemoteSource{api: api} }

func (s *RemoteSource) Name() qc.Source { return qc.SourceRemote }

func (s *RemoteSource) ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error) {
	recs, err := s.api.ListCompletions(ctx, machineID)
	if err != nil {
		return nil, err
	}
	// recs may be shared by the API; copy before tagging
	out := make([]qc.CompletionRecord, 0, len(recs))
	for _, r := range recs {
		if r.MachineID == "" {
			r.MachineID = machineID
		}
		if r.MachineID != machineID {
			continue
		}
		r.Source = qc.SourceRemote
		out = append(out, r)
	}
	return out, nil
}
