package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

type fakeReporter struct {
	mu    sync.Mutex
	days  []qc.Date
	rep   qc.Report
	err   error
	calls int
}

func (f *fakeReporter) DueTasks(_ context.Context, today qc.Date) (qc.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.days = append(f.days, today)
	rep := f.rep
	rep.Today = today
	return rep, f.err
}

type fakeSink struct {
	mu  sync.Mutex
	got []Summary
	err error
	ch  chan Summary
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Deliver(_ context.Context, s Summary) error {
	f.mu.Lock()
	f.got = append(f.got, s)
	f.mu.Unlock()
	if f.ch != nil {
		select {
		case f.ch <- s:
		default:
		}
	}
	return f.err
}

func overdue(machine, ws string, f qc.Frequency, days int, p qc.Priority) qc.Task {
	return qc.Task{
		MachineID:   machine,
		WorksheetID: ws,
		Frequency:   f,
		DueDate:     qc.MustDate("2025-09-01").AddDays(-days),
		Status:      qc.StatusOverdue,
		DaysOverdue: days,
		Priority:    p,
	}
}

func sampleReport() qc.Report {
	return qc.Report{
		Tiers: map[qc.Frequency]*qc.Buckets{
			qc.Daily: {
				Overdue: []qc.Task{
					overdue("ct-1", "ws-d", qc.Daily, 1, qc.PriorityMedium),
					overdue("ct-1", "ws-d", qc.Daily, 3, qc.PriorityHigh),
				},
				DueToday: []qc.Task{{MachineID: "ct-1", WorksheetID: "ws-d"}},
			},
			qc.Annual: {
				Overdue: []qc.Task{overdue("mr-1", "ws-a", qc.Annual, 40, qc.PriorityCritical)},
			},
		},
		Degraded:      true,
		StaleMachines: []string{"mr-1"},
	}
}

func TestSummarizeOrdersAndTrims(t *testing.T) {
	t.Parallel()
	s := Summarize(sampleReport(), 2)
	if s.Overdue != 3 {
		t.Fatalf("Overdue = %d, want 3", s.Overdue)
	}
	if len(s.Tiers) != len(qc.Frequencies) {
		t.Fatalf("tiers = %d", len(s.Tiers))
	}
	if s.Tiers[0].Overdue != 2 || s.Tiers[0].DueToday != 1 {
		t.Fatalf("daily tier = %+v", s.Tiers[0])
	}
	if len(s.Top) != 2 {
		t.Fatalf("Top = %d, want 2", len(s.Top))
	}
	if s.Top[0].MachineID != "mr-1" || s.Top[1].DaysOverdue != 3 {
		t.Fatalf("Top order = %+v", s.Top)
	}
}

func TestSummaryRendering(t *testing.T) {
	t.Parallel()
	rep := sampleReport()
	rep.Today = qc.MustDate("2025-09-01")
	rep.Tiers[qc.Daily].Overdue[0].MachineName = "CT <north>"
	s := Summarize(rep, 0)

	txt := s.Text()
	for _, want := range []string{"QC digest 2025-09-01: 3 overdue", "stale for: mr-1", "- daily: 2 overdue, 1 due today", "CT <north>"} {
		if !strings.Contains(txt, want) {
			t.Fatalf("text missing %q:\n%s", want, txt)
		}
	}
	if strings.Contains(txt, "weekly") {
		t.Fatalf("empty tiers should be omitted:\n%s", txt)
	}

	h := s.HTML()
	if !strings.Contains(h, "<b>QC digest 2025-09-01</b>") || !strings.Contains(h, "CT &lt;north&gt;") {
		t.Fatalf("html = %s", h)
	}
}

func TestRunOnceUsesLocationForToday(t *testing.T) {
	t.Parallel()
	rep := &fakeReporter{rep: sampleReport()}
	sink := &fakeSink{}
	s := New(rep, logx.Nop())
	tokyo := time.FixedZone("JST", 9*3600)
	s.now = func() time.Time { return time.Date(2025, 8, 31, 20, 0, 0, 0, time.UTC) }
	if err := s.Apply(Config{Location: tokyo, TopN: 5}, sink); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if want := qc.MustDate("2025-09-01"); !sum.Today.Equal(want) {
		t.Fatalf("today = %s, want %s", sum.Today, want)
	}
	if len(sink.got) != 1 {
		t.Fatalf("deliveries = %d", len(sink.got))
	}
}

func TestRunOnceErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	s := New(&fakeReporter{err: boom}, logx.Nop())
	_ = s.Apply(Config{}, &fakeSink{})
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("reporter error = %v", err)
	}

	s = New(&fakeReporter{}, logx.Nop())
	_ = s.Apply(Config{}, &fakeSink{err: boom})
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, boom) || !strings.Contains(err.Error(), "fake") {
		t.Fatalf("sink error = %v", err)
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	cases := []struct {
		spec string
		ok   bool
	}{
		{"@daily", true},
		{"0 7 * * 1-5", true},
		{"30 0 7 * * *", true},
		{"", false},
		{"every morning", false},
		{"61 * * * *", false},
	}
	for _, c := range cases {
		err := ValidateSchedule(c.spec)
		if (err == nil) != c.ok {
			t.Fatalf("ValidateSchedule(%q) = %v, want ok=%v", c.spec, err, c.ok)
		}
	}

	s := New(&fakeReporter{}, logx.Nop())
	if err := s.Apply(Config{Enabled: true, Schedule: "nope"}, &fakeSink{}); err == nil {
		t.Fatal("Apply should reject a bad schedule")
	}
	if err := s.Apply(Config{Enabled: false, Schedule: "nope"}, &fakeSink{}); err != nil {
		t.Fatalf("disabled digest should not validate schedule: %v", err)
	}
}

func TestServiceRunsOnSchedule(t *testing.T) {
	t.Parallel()
	sink := &fakeSink{ch: make(chan Summary, 1)}
	s := New(&fakeReporter{rep: sampleReport()}, logx.Nop())
	if err := s.Apply(Config{Enabled: true, Schedule: "* * * * * *"}, sink); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		s.Stop(sctx)
	}()

	select {
	case sum := <-sink.ch:
		if sum.Overdue != 3 {
			t.Fatalf("Overdue = %d", sum.Overdue)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("digest never delivered")
	}
}

func TestTelegramSinkPostsHTML(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		body map[string]any
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"group"},"text":"ok"}}`))
	}))
	defer srv.Close()

	sink, err := NewTelegramSink(TelegramConfig{Token: "123:abc", ChatID: 42, URL: srv.URL})
	if err != nil {
		t.Fatalf("NewTelegramSink: %v", err)
	}
	sum := Summarize(sampleReport(), 3)
	if err := sink.Deliver(context.Background(), sum); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if fmt.Sprint(body["chat_id"]) != "42" || fmt.Sprint(body["parse_mode"]) != "HTML" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(fmt.Sprint(body["text"]), "<b>QC digest") {
		t.Fatalf("text = %v", body["text"])
	}
}

func TestNewTelegramSinkRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := NewTelegramSink(TelegramConfig{ChatID: 1}); err == nil {
		t.Fatal("expected token error")
	}
	if _, err := NewTelegramSink(TelegramConfig{Token: "x"}); err == nil {
		t.Fatal("expected chat error")
	}
}
