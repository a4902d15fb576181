package completion

import (
	"context"
	"sync/atomic"
	"time"

	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

// MergingStore composes the remote and local sources into one deduplicated view.
//
// Remote records win on conflicting keys. A failing remote read degrades the
// view to local data and never fails the caller.
type MergingStore struct {
	remote  Source
	local   Source
	timeout atomic.Int64
	log     logx.Logger
}

// NewMergingStore builds a store. Either source may be nil: no remote means
// the installation is local-only by configuration, which is not degraded.
func NewMergingStore(remote, local Source, timeout time.Duration, log logx.Logger) *MergingStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &MergingStore{remote: remote, local: local, log: log}
	m.SetTimeout(timeout)
	return m
}

// SetTimeout bounds each remote read. 0 disables the bound.
func (m *MergingStore) SetTimeout(d time.Duration) { m.timeout.Store(int64(d)) }

func (m *MergingStore) MergedCompletions(ctx context.Context, machineID string) qc.CompletionView {
	view := qc.CompletionView{Set: qc.NewCompletionSet()}

	if m.remote != nil {
		rctx := ctx
		if d := time.Duration(m.timeout.Load()); d > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		start := time.Now()
		recs, err := m.remote.ListCompletions(rctx, machineID)
		if err != nil {
			serr := &SourceError{Source: m.remote.Name(), MachineID: machineID, Err: err}
			view.Degraded = true
			view.Err = serr
			m.log.Warn("remote completions unavailable, using local cache only",
				logx.String("machine", machineID),
				logx.Duration("took", time.Since(start)),
				logx.Bool("retryable", serr.Retryable()),
				logx.Err(err),
			)
		}
		for _, r := range recs {
			view.Set.Add(r)
		}
	}

	if m.local != nil {
		recs, err := m.local.ListCompletions(ctx, machineID)
		if err != nil {
			m.log.Warn("local completion cache unavailable",
				logx.String("machine", machineID),
				logx.Err(&SourceError{Source: m.local.Name(), MachineID: machineID, Err: err}),
			)
		}
		for _, r := range recs {
			view.Set.Add(r)
		}
	}
	return view
}
