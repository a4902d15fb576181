package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"qctrack/internal/config"
	"qctrack/internal/qc"
)

func baseConfig(dir string) *config.Config {
	return &config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Engine:  config.EngineConfig{Timezone: "Asia/Tokyo"},
		HTTP:    config.HTTPConfig{Addr: "127.0.0.1:0"},
		Storage: &config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "data", "qc.db")},
		Inventory: &config.InventoryConfig{
			Machines: []config.MachineConfig{{ID: "ct-1", Name: "CT 1", InstalledOn: "2025-01-01"}},
			Worksheets: []config.WorksheetConfig{
				{ID: "ct-daily", Frequency: "daily", StartDate: "2025-08-25", Machines: []string{"ct-1"}},
			},
		},
	}
}

func writeConfig(t *testing.T, dir string, cfg *config.Config) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "qctrack.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func newTestApp(t *testing.T, cfg *config.Config, dir string) *App {
	t.Helper()
	a, err := NewApp(writeConfig(t, dir, cfg))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() {
		if a.store != nil {
			_ = a.store.Close()
		}
	})
	return a
}

func TestNewAppWiresStaticInventoryAndCache(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := newTestApp(t, baseConfig(dir), dir)

	if a.client != nil {
		t.Fatal("no remote configured, client should be nil")
	}
	if a.local == nil || a.store == nil {
		t.Fatal("file storage should enable the local cache")
	}
	// 20:00 UTC on Aug 31 is already Sep 1 in Tokyo.
	a.now = func() time.Time { return time.Date(2025, 8, 31, 20, 0, 0, 0, time.UTC) }
	if got := a.Today(); !got.Equal(qc.MustDate("2025-09-01")) {
		t.Fatalf("Today = %s, want 2025-09-01", got)
	}

	rep, err := a.agg.DueTasks(context.Background(), a.Today())
	if err != nil {
		t.Fatalf("DueTasks: %v", err)
	}
	daily := rep.Tier(qc.Daily)
	if len(daily.Overdue) != 7 || len(daily.DueToday) != 1 || rep.Degraded {
		t.Fatalf("daily = %d overdue, %d today, degraded=%v", len(daily.Overdue), len(daily.DueToday), rep.Degraded)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(t.TempDir())
	cfg.Digest = &config.DigestConfig{Enabled: true, Schedule: "every morning"}
	cfg.Inventory.Worksheets[0].Machines = []string{"mr-9"}

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"digest", "inventory", "mr-9"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
	if err := validate(baseConfig(t.TempDir())); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Engine.Timezone = "Mars/Olympus"
	if _, err := NewApp(writeConfig(t, dir, cfg)); err == nil {
		t.Fatal("expected bad timezone to fail startup")
	}
}

func TestApplyConfigUpdatesLiveSections(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	oldCfg := baseConfig(dir)
	a := newTestApp(t, oldCfg, dir)

	newCfg := baseConfig(dir)
	newCfg.Engine = config.EngineConfig{Timezone: "UTC", SkipWeekends: true, MaxOverdueAge: "720h"}
	newCfg.Inventory.Machines = append(newCfg.Inventory.Machines, config.MachineConfig{ID: "mr-1"})
	newCfg.Digest = &config.DigestConfig{Enabled: true, Schedule: "@daily"}

	a.applyConfig(oldCfg, newCfg)

	opt := a.agg.Options()
	if !opt.Generate.SkipWeekends || opt.MaxOverdueDays != 30 {
		t.Fatalf("options = %+v", opt)
	}
	if a.loc.Load() != time.UTC {
		t.Fatalf("location = %v, want UTC", a.loc.Load())
	}
	if machines, _ := a.inv.Counts(); machines != 2 {
		t.Fatalf("machines = %d, want 2", machines)
	}

	// An invalid inventory keeps the previous one.
	bad := baseConfig(dir)
	bad.Inventory.Worksheets[0].Frequency = "fortnightly"
	a.applyConfig(newCfg, bad)
	if machines, _ := a.inv.Counts(); machines != 2 {
		t.Fatalf("machines after bad reload = %d, want 2", machines)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := newTestApp(t, baseConfig(dir), dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	time.Sleep(50 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
	if err := a.Err(); err != nil {
		t.Fatalf("Err = %v", err)
	}
}
