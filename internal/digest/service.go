// Package digest sends a periodic summary of overdue QC work to a sink.
package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

const runTimeout = time.Minute

// Reporter produces the due-task report a digest is built from.
type Reporter interface {
	DueTasks(ctx context.Context, today qc.Date) (qc.Report, error)
}

type Config struct {
	Enabled  bool
	Schedule string
	TopN     int
	Location *time.Location
}

// Service runs the digest on a cron schedule. Apply may be called at any
// time; a running service picks up the new schedule, sink and location.
type Service struct {
	rep    Reporter
	log    logx.Logger
	parser cron.Parser
	now    func() time.Time

	mu     sync.Mutex
	cfg    Config
	sink   Sink
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func New(rep Reporter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		rep: rep,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: newParser(),
		now:    time.Now,
	}
}

func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ValidateSchedule reports whether spec is a schedule the service accepts.
func ValidateSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return errors.New("schedule is empty")
	}
	if _, err := newParser().Parse(spec); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Service) Apply(cfg Config, sink Sink) error {
	if cfg.Enabled {
		if err := ValidateSchedule(cfg.Schedule); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.sink = sink
	if s.runCtx == nil {
		return nil
	}
	s.restartLocked()
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.restartLocked()
}

// restartLocked replaces the cron instance with one built from s.cfg.
func (s *Service) restartLocked() {
	if s.c != nil {
		// Running jobs finish in the background; SkipIfStillRunning covers overlap.
		s.c.Stop()
		s.c = nil
	}
	cfg := s.cfg
	if !cfg.Enabled || s.sink == nil {
		s.log.Info("digest disabled")
		return
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	runCtx := s.runCtx
	if _, err := c.AddFunc(cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(runCtx, runTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("digest run failed", logx.Err(err))
		}
	}); err != nil {
		// Apply validated the schedule already.
		s.log.Error("digest schedule rejected", logx.String("schedule", cfg.Schedule), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled",
		logx.String("schedule", cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.String("sink", s.sink.Name()),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c, s.cancel, s.runCtx = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce builds and delivers one digest for today in the configured zone.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	cfg := s.cfg
	sink := s.sink
	s.mu.Unlock()

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	today := qc.Today(s.now(), loc)
	rep, err := s.rep.DueTasks(ctx, today)
	if err != nil {
		return Summary{}, fmt.Errorf("due tasks: %w", err)
	}
	sum := Summarize(rep, cfg.TopN)
	if sink == nil {
		return sum, nil
	}
	start := time.Now()
	if err := sink.Deliver(ctx, sum); err != nil {
		return sum, fmt.Errorf("deliver to %s: %w", sink.Name(), err)
	}
	s.log.Debug("digest delivered",
		logx.String("sink", sink.Name()),
		logx.Int("overdue", sum.Overdue),
		logx.Duration("took", time.Since(start)),
	)
	return sum, nil
}

// cronLogger routes robfig/cron's own logging into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
