package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"qctrack/internal/completion"
	"qctrack/internal/qc"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

const defaultCalendarDays = 30

func (s *Server) healthz(ctx echo.Context) error {
	body := echo.Map{"status": "ok", "today": s.opts.Today()}
	if s.opts.Health != nil {
		body["runtime"] = s.opts.Health()
	}
	return ctx.JSON(http.StatusOK, body)
}

type scheduleResponse struct {
	Frequency      qc.Frequency `json:"frequency"`
	StartDate      qc.Date      `json:"startDate"`
	Horizon        qc.Date      `json:"horizon"`
	SkipWeekends   bool         `json:"skipWeekends"`
	DueDates       []qc.Date    `json:"dueDates"`
	CompletedDates []qc.Date    `json:"completedDates"`
}

// schedule exposes the recurrence generator. completedDates is echoed back
// for the caller to cross-reference; it never changes the generated dates.
func (s *Server) schedule(ctx echo.Context) error {
	freq, err := qc.ParseFrequency(ctx.QueryParam("frequency"))
	if err != nil {
		return err
	}
	start, err := dateParam(ctx, "startDate", qc.Date{})
	if err != nil {
		return err
	}
	if start.IsZero() {
		return &qc.InputError{Field: "startDate", Err: qc.ErrInvalidStartDate}
	}
	horizon, err := dateParam(ctx, "horizon", s.opts.Today())
	if err != nil {
		return err
	}
	opt := s.opts.Engine.Options().Generate
	if raw := ctx.QueryParam("skipWeekends"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return &qc.InputError{Field: "skipWeekends", Value: raw, Err: err}
		}
		opt.SkipWeekends = v
	}
	completed, err := dateListParam(ctx, "completedDates")
	if err != nil {
		return err
	}

	dates, err := qc.Generate(freq, start, horizon, opt)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, scheduleResponse{
		Frequency:      freq,
		StartDate:      start,
		Horizon:        horizon,
		SkipWeekends:   opt.SkipWeekends,
		DueDates:       dates,
		CompletedDates: completed,
	})
}

func (s *Server) dueTasks(ctx echo.Context) error {
	today, err := dateParam(ctx, "today", s.opts.Today())
	if err != nil {
		return err
	}
	rep, err := s.opts.Engine.DueTasks(ctx.Request().Context(), today)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rep.DueTasks())
}

func (s *Server) calendar(ctx echo.Context) error {
	today := s.opts.Today()
	from, err := dateParam(ctx, "from", today)
	if err != nil {
		return err
	}
	to, err := dateParam(ctx, "to", from.AddDays(defaultCalendarDays))
	if err != nil {
		return err
	}
	cal, err := s.opts.Engine.Calendar(ctx.Request().Context(), ctx.Param("id"), from, to, today)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cal)
}

type recordResponse struct {
	Added     bool             `json:"added"`
	Duplicate bool             `json:"duplicate"`
	Record    completion.Entry `json:"record"`
}

func (s *Server) recordCompletion(ctx echo.Context) error {
	if s.opts.Recorder == nil {
		return errRecorderDisabled
	}
	var in completion.Entry
	if err := ctx.Bind(&in); err != nil {
		return err
	}
	rec, err := in.Record(qc.SourceLocal)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	if _, err := s.opts.Engine.Machine(rctx, rec.MachineID); err != nil {
		return err
	}

	added, err := s.opts.Recorder.Record(rctx, rec)
	s.audit(ctx, rec, added, err)
	if err != nil {
		return err
	}

	resp := recordResponse{Added: added, Duplicate: !added, Record: completion.EntryOf(rec)}
	if added {
		return ctx.JSON(http.StatusCreated, resp)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (s *Server) audit(ctx echo.Context, rec qc.CompletionRecord, added bool, recErr error) {
	if s.opts.Auditor == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"added": added, "overallResult": rec.OverallResult})
	e := storage.AuditEntry{
		ID:        uuid.NewString(),
		At:        time.Now().UTC(),
		RequestID: ctx.Response().Header().Get(echo.HeaderXRequestID),
		Actor:     rec.PerformedBy,
		Action:    "completion.record",
		Target:    fmt.Sprintf("%s/%s/%s", rec.MachineID, rec.WorksheetID, rec.Date),
		OK:        recErr == nil,
		MetaJSON:  string(meta),
	}
	if recErr != nil {
		e.Error = recErr.Error()
	}
	if err := s.opts.Auditor.AppendAudit(ctx.Request().Context(), e); err != nil {
		s.log.Warn("audit append failed", logx.String("target", e.Target), logx.Err(err))
	}
}

func dateParam(ctx echo.Context, name string, def qc.Date) (qc.Date, error) {
	raw := strings.TrimSpace(ctx.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	d, err := qc.ParseDate(raw)
	if err != nil {
		return qc.Date{}, &qc.InputError{Field: name, Value: raw, Err: qc.ErrInvalidDate}
	}
	return d, nil
}

// dateListParam accepts repeated and comma-separated values.
func dateListParam(ctx echo.Context, name string) ([]qc.Date, error) {
	out := []qc.Date{}
	for _, v := range ctx.QueryParams()[name] {
		for _, raw := range strings.Split(v, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			d, err := qc.ParseDate(raw)
			if err != nil {
				return nil, &qc.InputError{Field: name, Value: raw, Err: qc.ErrInvalidDate}
			}
			out = append(out, d)
		}
	}
	return out, nil
}
