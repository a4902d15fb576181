package completion

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qctrack/internal/qc"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

type fakeSource struct {
	name  qc.Source
	recs  []qc.CompletionRecord
	err   error
	block bool
}

func (s *fakeSource) Name() qc.Source { return s.name }

func (s *fakeSource) ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []qc.CompletionRecord
	for _, r := range s.recs {
		if r.MachineID == machineID {
			r.Source = s.name
			out = append(out, r)
		}
	}
	return out, nil
}

func rec(machine, worksheet, date, by string) qc.CompletionRecord {
	return qc.CompletionRecord{
		MachineID: machine, WorksheetID: worksheet, Frequency: qc.Monthly,
		Date: qc.MustDate(date), OverallResult: "pass", PerformedBy: by,
	}
}

func openCache(t *testing.T) (*LocalCacheSource, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "cache.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewLocalCacheSource(st, "", logx.Nop()), st
}

func TestMergeRemotePrecedence(t *testing.T) {
	t.Parallel()
	remote := &fakeSource{name: qc.SourceRemote, recs: []qc.CompletionRecord{rec("ct-1", "w", "2025-08-01", "remote-tech")}}
	local := &fakeSource{name: qc.SourceLocal, recs: []qc.CompletionRecord{
		rec("ct-1", "w", "2025-08-01", "local-tech"),
		rec("ct-1", "w", "2025-07-01", "local-tech"),
	}}

	view := NewMergingStore(remote, local, time.Second, logx.Nop()).MergedCompletions(context.Background(), "ct-1")
	if view.Degraded || view.Err != nil {
		t.Fatalf("unexpected degraded view: %+v", view)
	}
	if view.Set.Len() != 2 {
		t.Fatalf("Len = %d, want 2", view.Set.Len())
	}
	r, _ := view.Set.Lookup("ct-1", "w", qc.MustDate("2025-08-01"))
	if r.Source != qc.SourceRemote || r.PerformedBy != "remote-tech" {
		t.Fatalf("conflicting key resolved to %+v, want remote record", r)
	}
	r, _ = view.Set.Lookup("ct-1", "w", qc.MustDate("2025-07-01"))
	if r.Source != qc.SourceLocal {
		t.Fatalf("local-only record source = %s, want local", r.Source)
	}
}

func TestMergeLocalOnlyCompletionCounts(t *testing.T) {
	t.Parallel()
	cache, _ := openCache(t)
	if _, err := cache.Record(context.Background(), rec("ct-1", "ct-monthly", "2025-08-01", "jo")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	remote := &fakeSource{name: qc.SourceRemote}

	view := NewMergingStore(remote, cache, time.Second, logx.Nop()).MergedCompletions(context.Background(), "ct-1")
	tasks := qc.Classify(
		qc.Obligation{Machine: qc.Machine{ID: "ct-1"}, Worksheet: qc.Worksheet{ID: "ct-monthly", Frequency: qc.Monthly}},
		[]qc.Date{qc.MustDate("2025-08-01")}, view.Set, qc.MustDate("2025-08-05"),
	)
	if tasks[0].Status != qc.StatusCompleted || tasks[0].Source != qc.SourceLocal {
		t.Fatalf("task = %+v, want completed from local", tasks[0])
	}
}

func TestMergeDegradesOnRemoteError(t *testing.T) {
	t.Parallel()
	netErr := errors.New("dial tcp: connection refused")
	remote := &fakeSource{name: qc.SourceRemote, err: netErr}
	local := &fakeSource{name: qc.SourceLocal, recs: []qc.CompletionRecord{rec("ct-1", "w", "2025-08-01", "jo")}}

	view := NewMergingStore(remote, local, time.Second, logx.Nop()).MergedCompletions(context.Background(), "ct-1")
	if !view.Degraded {
		t.Fatal("view not degraded after remote failure")
	}
	var serr *SourceError
	if !errors.As(view.Err, &serr) || serr.Source != qc.SourceRemote || !errors.Is(view.Err, netErr) {
		t.Fatalf("Err = %v, want remote SourceError wrapping the network error", view.Err)
	}
	if !serr.Retryable() {
		t.Fatal("network error should be retryable")
	}
	if view.Set.Len() != 1 {
		t.Fatalf("Len = %d, want local record only", view.Set.Len())
	}
}

func TestMergeAppliesRemoteTimeout(t *testing.T) {
	t.Parallel()
	remote := &fakeSource{name: qc.SourceRemote, block: true}
	m := NewMergingStore(remote, nil, 20*time.Millisecond, logx.Nop())

	start := time.Now()
	view := m.MergedCompletions(context.Background(), "ct-1")
	if !view.Degraded || !errors.Is(view.Err, context.DeadlineExceeded) {
		t.Fatalf("view = %+v, want degraded by deadline", view)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("timeout not applied, took %v", took)
	}
}

func TestMergeWithoutRemoteIsNotDegraded(t *testing.T) {
	t.Parallel()
	local := &fakeSource{name: qc.SourceLocal, recs: []qc.CompletionRecord{rec("ct-1", "w", "2025-08-01", "jo")}}
	view := NewMergingStore(nil, local, 0, logx.Nop()).MergedCompletions(context.Background(), "ct-1")
	if view.Degraded || view.Set.Len() != 1 {
		t.Fatalf("view = %+v", view)
	}
}

func TestLocalCacheDropsMalformedEntries(t *testing.T) {
	t.Parallel()
	cache, st := openCache(t)
	ctx := context.Background()
	raw := `[
		{"machineId":"ct-1","worksheetId":"w","frequency":"monthly","date":"2025-08-01","overallResult":"pass","performedBy":"jo"},
		{"machineId":"ct-1","frequency":"monthly","date":"2025-08-02","overallResult":"pass","performedBy":"jo"},
		{"machineId":"ct-1","worksheetId":"w","frequency":"fortnightly","date":"2025-08-03","overallResult":"pass","performedBy":"jo"},
		{"machineId":"ct-1","worksheetId":"w","frequency":"monthly","date":"08/04/2025","overallResult":"pass","performedBy":"jo"},
		{"machineId":42},
		"junk",
		{"machineId":"mr-1","worksheetId":"w","frequency":"Yearly","date":"2025-01-01","overallResult":"FAIL","performedBy":"al"}
	]`
	if err := st.Put(ctx, DefaultCacheKey, []byte(raw)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := cache.ListCompletions(ctx, "ct-1")
	if err != nil {
		t.Fatalf("ListCompletions: %v", err)
	}
	if len(got) != 1 || got[0].Date.String() != "2025-08-01" || got[0].Source != qc.SourceLocal {
		t.Fatalf("ct-1 records = %+v, want only the valid entry", got)
	}
	got, _ = cache.ListCompletions(ctx, "mr-1")
	if len(got) != 1 || got[0].Frequency != qc.Annual || got[0].OverallResult != "fail" {
		t.Fatalf("mr-1 records = %+v, want normalized annual fail", got)
	}
}

func TestLocalCacheCorruptValue(t *testing.T) {
	t.Parallel()
	cache, st := openCache(t)
	ctx := context.Background()
	if err := st.Put(ctx, DefaultCacheKey, []byte(`{"not":"an array"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cache.ListCompletions(ctx, "ct-1")
	if err != nil || len(got) != 0 {
		t.Fatalf("ListCompletions = %v, %v; want empty, nil", got, err)
	}
	if _, err := cache.Record(ctx, rec("ct-1", "w", "2025-08-01", "jo")); err == nil {
		t.Fatal("Record should refuse to overwrite a corrupt cache value")
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	t.Parallel()
	cache, _ := openCache(t)
	ctx := context.Background()
	first := rec("ct-1", "w", "2025-08-01", "first")

	added, err := cache.Record(ctx, first)
	if err != nil || !added {
		t.Fatalf("Record = %v, %v; want added", added, err)
	}
	added, err = cache.Record(ctx, rec("ct-1", "w", "2025-08-01", "second"))
	if err != nil || added {
		t.Fatalf("duplicate Record = %v, %v; want not added", added, err)
	}
	got, _ := cache.ListCompletions(ctx, "ct-1")
	if len(got) != 1 || got[0].PerformedBy != "first" {
		t.Fatalf("records = %+v, want the first-seen one", got)
	}
}

func TestRecordConcurrentWritersAddOnce(t *testing.T) {
	t.Parallel()
	cache, _ := openCache(t)
	ctx := context.Background()

	var added atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cache.Record(ctx, rec("ct-1", "w", "2025-08-01", "tab"))
			if err != nil {
				t.Errorf("Record: %v", err)
			}
			if ok {
				added.Add(1)
			}
		}()
	}
	wg.Wait()
	if added.Load() != 1 {
		t.Fatalf("added %d times, want 1", added.Load())
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	t.Parallel()
	cache, _ := openCache(t)
	bad := rec("ct-1", "w", "2025-08-01", "jo")
	bad.OverallResult = "maybe"
	_, err := cache.Record(context.Background(), bad)
	fields := FieldErrors(err)
	if fields["overallResult"] == "" {
		t.Fatalf("FieldErrors = %v, want overallResult message", fields)
	}
}

type statusErr struct{ retry bool }

func (e statusErr) Error() string   { return "status" }
func (e statusErr) Retryable() bool { return e.retry }

func TestSourceErrorRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("reset"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{statusErr{retry: false}, false},
		{statusErr{retry: true}, true},
	}
	for _, tt := range tests {
		e := &SourceError{Source: qc.SourceRemote, MachineID: "m", Err: tt.err}
		if got := e.Retryable(); got != tt.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type sharedAPI struct{ recs []qc.CompletionRecord }

func (a *sharedAPI) ListCompletions(context.Context, string) ([]qc.CompletionRecord, error) {
	return a.recs, nil
}

func TestRemoteSourceLeavesProviderSliceAlone(t *testing.T) {
	t.Parallel()
	api := &sharedAPI{recs: []qc.CompletionRecord{
		rec("mr-1", "w", "2025-08-01", "jo"),
		rec("ct-1", "w", "2025-08-01", "jo"),
	}}
	src := NewRemoteSource(api)

	ct, err := src.ListCompletions(context.Background(), "ct-1")
	if err != nil || len(ct) != 1 || ct[0].Source != qc.SourceRemote {
		t.Fatalf("ct-1 = %+v, %v", ct, err)
	}
	if api.recs[0].MachineID != "mr-1" || api.recs[0].Source != 0 {
		t.Fatalf("provider slice modified: %+v", api.recs)
	}
	mr, err := src.ListCompletions(context.Background(), "mr-1")
	if err != nil || len(mr) != 1 || mr[0].MachineID != "mr-1" {
		t.Fatalf("mr-1 = %+v, %v", mr, err)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	t.Parallel()
	remote := &fakeSource{name: qc.SourceRemote, recs: []qc.CompletionRecord{
		rec("ct-1", "w", "2025-08-01", "first"),
		rec("ct-1", "w", "2025-08-01", "second"),
		rec("ct-1", "w", "2025-09-01", "jo"),
	}}
	local := &fakeSource{name: qc.SourceLocal, recs: []qc.CompletionRecord{
		rec("ct-1", "w", "2025-07-01", "a"),
		rec("ct-1", "w", "2025-07-01", "b"),
		rec("ct-1", "w", "2025-09-01", "local"),
	}}
	m := NewMergingStore(remote, local, time.Second, logx.Nop())

	first := m.MergedCompletions(context.Background(), "ct-1")
	second := m.MergedCompletions(context.Background(), "ct-1")
	if first.Degraded != second.Degraded || first.Degraded {
		t.Fatalf("degraded = %v then %v", first.Degraded, second.Degraded)
	}
	if !reflect.DeepEqual(first.Set.Records(), second.Set.Records()) {
		t.Fatalf("merge not idempotent:\n%+v\n%+v", first.Set.Records(), second.Set.Records())
	}
	if first.Set.Len() != 3 {
		t.Fatalf("Len = %d, want 3", first.Set.Len())
	}
	if r, _ := first.Set.Lookup("ct-1", "w", qc.MustDate("2025-08-01")); r.PerformedBy != "first" {
		t.Fatalf("remote duplicate kept %q, want first", r.PerformedBy)
	}
	if r, _ := first.Set.Lookup("ct-1", "w", qc.MustDate("2025-07-01")); r.PerformedBy != "a" {
		t.Fatalf("local duplicate kept %q, want a", r.PerformedBy)
	}
	if r, _ := first.Set.Lookup("ct-1", "w", qc.MustDate("2025-09-01")); r.Source != qc.SourceRemote {
		t.Fatalf("conflict resolved to %s, want remote", r.Source)
	}
}
