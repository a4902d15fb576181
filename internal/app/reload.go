package app

import (
	"context"
	"strings"

	"qctrack/internal/config"
	logx "qctrack/pkg/logx"
)

// applyConfig pushes a committed config into the running components.
// Sections that cannot change live are reported and left as they were.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	// logging first so the rest of the reload logs at the new level
	if err := a.logs.Apply(mapLoggingConfig(newCfg)); err != nil {
		a.log.Warn("log file unavailable, console only", logx.Err(err))
	}

	opts, loc, err := mapEngineConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid engine config; keeping previous", logx.Err(err))
	} else {
		a.agg.SetOptions(opts)
		a.loc.Store(loc)
	}

	if err := a.applyInventory(newCfg); err != nil {
		a.log.Warn("invalid inventory; keeping previous", logx.Err(err))
	}
	if oldCfg.UseStaticInventory() != newCfg.UseStaticInventory() {
		a.log.Warn("inventory source switch needs a restart to take effect")
	}

	rc, hasRemote, err := mapRemoteConfig(newCfg)
	switch {
	case err != nil:
		a.log.Warn("invalid remote config; keeping previous", logx.Err(err))
	case hasRemote != (a.client != nil):
		a.log.Warn("adding or removing the remote service needs a restart to take effect")
	case hasRemote:
		if err := a.client.Apply(rc); err != nil {
			a.log.Warn("remote config rejected; keeping previous", logx.Err(err))
		} else {
			a.merged.SetTimeout(rc.Timeout)
		}
	}

	if dc, sink, err := mapDigestConfig(newCfg, a.loc.Load(), a.log.Component("digest")); err != nil {
		a.log.Warn("invalid digest config; keeping previous", logx.Err(err))
	} else if err := a.digest.Apply(dc, sink); err != nil {
		a.log.Warn("digest config rejected; keeping previous", logx.Err(err))
	}

	if err := a.pprof.Reconfigure(context.Background(), mapPprofConfig(newCfg)); err != nil {
		a.log.Warn("pprof reconfigure failed", logx.Err(err))
	}

	a.log.Info("config reloaded", fields...)
}
