package config

import (
	"sort"
	"strings"

	logx "qctrack/pkg/logx"
)

// Sections that can't be swapped on a running process.
var restartSections = map[string]bool{"storage": true, "http": true}

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging (never includes tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if fingerprint(oldCfg.Logging) != fingerprint(newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if fingerprint(oldCfg.Engine) != fingerprint(newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.timezone", newCfg.Engine.Timezone),
			logx.Bool("engine.skip_weekends", newCfg.Engine.SkipWeekends),
			logx.String("engine.max_overdue_age", newCfg.Engine.MaxOverdueAge),
		)
	}

	if fingerprint(oldCfg.HTTP) != fingerprint(newCfg.HTTP) {
		changed = append(changed, "http")
		attrs = append(attrs, logx.String("http.addr", newCfg.HTTP.AddrOrDefault()))
	}

	oR, nR := derefRemote(oldCfg.Remote), derefRemote(newCfg.Remote)
	if fingerprint(oR) != fingerprint(nR) {
		changed = append(changed, "remote")
		attrs = append(attrs,
			logx.String("remote.base_url", strings.TrimSpace(nR.BaseURL)),
			logx.Bool("remote.token_set", strings.TrimSpace(nR.Token) != ""),
			logx.String("remote.timeout", nR.Timeout),
			logx.Int("remote.rate_per_sec", nR.RatePerSec),
		)
	}

	// Storage. Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if fingerprint(oS) != fingerprint(nS) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(nS.BusyTimeout)),
		)
	}

	oD, nD := derefDigest(oldCfg.Digest), derefDigest(newCfg.Digest)
	if fingerprint(oD) != fingerprint(nD) {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", nD.Enabled),
			logx.String("digest.schedule", nD.Schedule),
			logx.String("digest.sink", nD.Sink),
		)
	}

	if fingerprint(oldCfg.Inventory) != fingerprint(newCfg.Inventory) {
		changed = append(changed, "inventory")
		var machines, worksheets int
		if newCfg.Inventory != nil {
			machines, worksheets = len(newCfg.Inventory.Machines), len(newCfg.Inventory.Worksheets)
		}
		attrs = append(attrs,
			logx.Int("inventory.machines", machines),
			logx.Int("inventory.worksheets", worksheets),
		)
	}

	var oP, nP PprofConfig
	if oldCfg.Pprof != nil {
		oP = *oldCfg.Pprof
	}
	if newCfg.Pprof != nil {
		nP = *newCfg.Pprof
	}
	if fingerprint(oP) != fingerprint(nP) {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", nP.Enabled),
			logx.String("pprof.addr", nP.Addr),
			logx.Bool("pprof.token_set", strings.TrimSpace(nP.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed down to sections a reload cannot apply.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func derefRemote(r *RemoteConfig) RemoteConfig {
	if r == nil {
		return RemoteConfig{}
	}
	return *r
}

func derefDigest(d *DigestConfig) DigestConfig {
	if d == nil {
		return DigestConfig{}
	}
	return *d
}
