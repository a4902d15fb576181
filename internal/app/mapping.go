package app

import (
	"fmt"
	"strings"
	"time"

	"qctrack/internal/completion"
	"qctrack/internal/config"
	"qctrack/internal/digest"
	"qctrack/internal/observability/pprof"
	"qctrack/internal/qc"
	"qctrack/internal/remote"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func cacheKey(cfg *config.Config) string {
	if cfg.Storage != nil && strings.TrimSpace(cfg.Storage.CacheKey) != "" {
		return strings.TrimSpace(cfg.Storage.CacheKey)
	}
	return completion.DefaultCacheKey
}

// mapRemoteConfig returns ok=false when no remote service is configured.
func mapRemoteConfig(cfg *config.Config) (remote.Config, bool, error) {
	if cfg == nil || cfg.Remote == nil || strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return remote.Config{}, false, nil
	}
	rc := cfg.Remote
	timeout, err := config.ParseDurationOrDefault("remote.timeout", rc.Timeout, 10*time.Second)
	if err != nil {
		return remote.Config{}, false, err
	}
	return remote.Config{
		BaseURL:    strings.TrimSpace(rc.BaseURL),
		Token:      rc.Token,
		Timeout:    timeout,
		RatePerSec: rc.RatePerSec,
		Burst:      rc.Burst,
		RetryMax:   rc.RetryMax,
	}, true, nil
}

func mapEngineConfig(cfg *config.Config) (qc.AggregateOptions, *time.Location, error) {
	loc, err := cfg.Engine.Location()
	if err != nil {
		return qc.AggregateOptions{}, nil, err
	}
	days, err := cfg.Engine.MaxOverdueDays()
	if err != nil {
		return qc.AggregateOptions{}, nil, err
	}
	return qc.AggregateOptions{
		Generate:       qc.GenerateOptions{SkipWeekends: cfg.Engine.SkipWeekends},
		MaxOverdueDays: days,
	}, loc, nil
}

// mapDigestConfig builds the digest config and its sink. A disabled digest
// gets a nil sink.
func mapDigestConfig(cfg *config.Config, loc *time.Location, log logx.Logger) (digest.Config, digest.Sink, error) {
	d := cfg.Digest
	if d == nil || !d.Enabled {
		return digest.Config{Location: loc}, nil, nil
	}
	dc := digest.Config{Enabled: true, Schedule: strings.TrimSpace(d.Schedule), TopN: d.TopN, Location: loc}
	switch strings.ToLower(strings.TrimSpace(d.Sink)) {
	case "", "log":
		return dc, digest.NewLogSink(log), nil
	case "telegram":
		if d.Telegram == nil {
			return dc, nil, fmt.Errorf("digest.telegram is required for sink telegram")
		}
		sink, err := digest.NewTelegramSink(digest.TelegramConfig{
			Token:    d.Telegram.Token,
			ChatID:   d.Telegram.ChatID,
			ThreadID: d.Telegram.ThreadID,
		})
		if err != nil {
			return dc, nil, fmt.Errorf("digest.telegram: %w", err)
		}
		return dc, sink, nil
	default:
		return dc, nil, fmt.Errorf("digest.sink: unknown sink %q", d.Sink)
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	if cfg == nil || cfg.Pprof == nil {
		return pprof.Config{}
	}
	return pprof.Config{Enabled: cfg.Pprof.Enabled, Addr: cfg.Pprof.Addr, Token: cfg.Pprof.Token}
}
