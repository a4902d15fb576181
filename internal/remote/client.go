// Package remote is the HTTP client for the authoritative QC record service.
//
// It implements both the completion read API and the worksheet-assignment
// directory. Requests are rate limited and retried on transient failures.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"qctrack/internal/completion"
	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

const (
	maxBody   = 8 << 20
	retryBase = 200 * time.Millisecond
	retryMax  = 5 * time.Second
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RatePerSec int
	Burst      int
	RetryMax   int
}

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("remote %s: %d %s: %s", e.URL, e.Code, http.StatusText(e.Code), e.Body)
}

// Retryable is true for throttling and server-side failures.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

type Client struct {
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	base    *url.URL
	hc      *http.Client
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{log: log}
	if err := c.Apply(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply swaps the configuration. In-flight requests finish with the old one.
func (c *Client) Apply(cfg Config) error {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil {
		return fmt.Errorf("remote.base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return fmt.Errorf("remote.base_url: unsupported scheme %q", base.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.base = base
	c.hc = &http.Client{Timeout: timeout}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return nil
}

func (c *Client) ListMachines(ctx context.Context) ([]qc.Machine, error) {
	var out []qc.Machine
	if err := c.getJSON(ctx, &out, "machines"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListWorksheetsForMachine(ctx context.Context, machineID string) ([]qc.Worksheet, error) {
	var out []qc.Worksheet
	if err := c.getJSON(ctx, &out, "machines", machineID, "worksheets"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCompletions reads the machine's records one by one. A malformed record
// is dropped and logged; only a body that is not a JSON array fails the read.
func (c *Client) ListCompletions(ctx context.Context, machineID string) ([]qc.CompletionRecord, error) {
	var items []json.RawMessage
	if err := c.getJSON(ctx, &items, "machines", machineID, "completions"); err != nil {
		return nil, err
	}
	out := make([]qc.CompletionRecord, 0, len(items))
	dropped := 0
	for i, item := range items {
		var e completion.Entry
		if err := json.Unmarshal(item, &e); err != nil {
			dropped++
			c.log.Debug("dropping malformed remote record", logx.String("machine", machineID), logx.Int("index", i), logx.Err(err))
			continue
		}
		if strings.TrimSpace(e.MachineID) == "" {
			e.MachineID = machineID
		}
		r, err := e.Record(qc.SourceRemote)
		if err != nil {
			dropped++
			c.log.Debug("dropping invalid remote record", logx.String("machine", machineID), logx.Int("index", i),
				logx.Any("fields", completion.FieldErrors(err)), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	if dropped > 0 {
		c.log.Warn("remote returned malformed completion records",
			logx.String("machine", machineID), logx.Int("dropped", dropped), logx.Int("kept", len(out)))
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, dst any, segments ...string) error {
	// Snapshot mutable dependencies to avoid races with Apply().
	c.mu.Lock()
	base := *c.base
	hc := c.hc
	lim := c.limiter
	token := c.cfg.Token
	retry := c.cfg.RetryMax
	c.mu.Unlock()

	esc := make([]string, len(segments))
	for i, s := range segments {
		esc[i] = url.PathEscape(s)
	}
	target := base.JoinPath(esc...).String()

	var last error
	for i := 0; i <= retry; i++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		err := c.do(ctx, hc, target, token, dst)
		if err == nil {
			c.log.Trace("remote request ok", logx.String("url", target), logx.Duration("took", time.Since(start)))
			return nil
		}
		last = err
		var se *StatusError
		if ctx.Err() != nil || (errors.As(err, &se) && !se.Retryable()) || i == retry {
			break
		}
		delay := retryDelay(i)
		c.log.Debug("remote request retry scheduled", logx.String("url", target), logx.Int("attempt", i+2), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	return last
}

// retryDelay doubles from retryBase per attempt, capped at retryMax.
func retryDelay(attempt int) time.Duration {
	d := retryBase
	for i := 0; i < attempt && d < retryMax; i++ {
		d *= 2
	}
	return min(d, retryMax)
}

func (c *Client) do(ctx context.Context, hc *http.Client, target, token string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBody)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(body, 512))
		return &StatusError{Code: resp.StatusCode, URL: target, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
