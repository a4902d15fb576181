package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks the structural rules of cfg. Section-specific semantics
// (cron expressions, inventory contents) are checked by their owners.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := cfg.Engine.Location()
	add(err)
	_, err = cfg.Engine.MaxOverdueDays()
	add(err)
	_, err = cfg.HTTP.Timeouts()
	add(err)

	if r := cfg.Remote; r != nil && strings.TrimSpace(r.BaseURL) != "" {
		u, err := url.Parse(strings.TrimSpace(r.BaseURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("remote.base_url: want an absolute http(s) URL, got %q", r.BaseURL))
		}
		_, err = ParseDurationField("remote.timeout", r.Timeout)
		add(err)
		if r.RatePerSec < 0 || r.Burst < 0 || r.RetryMax < 0 {
			add(errors.New("remote: rate_per_sec, burst and retry_max must be >= 0"))
		}
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				add(fmt.Errorf("storage.path is required for driver %q", s.Driver))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		_, err = ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	if d := cfg.Digest; d != nil && d.Enabled {
		if strings.TrimSpace(d.Schedule) == "" {
			add(errors.New("digest.schedule is required when digest is enabled"))
		}
		switch strings.ToLower(strings.TrimSpace(d.Sink)) {
		case "", "log":
		case "telegram":
			if d.Telegram == nil || strings.TrimSpace(d.Telegram.Token) == "" || d.Telegram.ChatID == 0 {
				add(errors.New("digest.telegram needs token and chat_id"))
			}
		default:
			add(fmt.Errorf("digest.sink: unknown sink %q", d.Sink))
		}
		if d.TopN < 0 {
			add(errors.New("digest.top_n must be >= 0"))
		}
	}

	if p := cfg.Pprof; p != nil && p.Enabled && strings.TrimSpace(p.Token) == "" {
		if addr := strings.TrimSpace(p.Addr); addr != "" && !isLoopback(addr) {
			add(fmt.Errorf("pprof.addr %q is not loopback; set pprof.token", addr))
		}
	}

	if inv := cfg.Inventory; inv != nil {
		switch inv.Source {
		case "", "auto", "static":
		default:
			add(fmt.Errorf("inventory.source: unknown source %q", inv.Source))
		}
	}
	if cfg.Inventory == nil && (cfg.Remote == nil || strings.TrimSpace(cfg.Remote.BaseURL) == "") {
		add(errors.New("either remote.base_url or an inventory section is required"))
	}

	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
