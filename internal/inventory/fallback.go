package inventory

import (
	"context"

	"qctrack/internal/qc"
	logx "qctrack/pkg/logx"
)

// Fallback reads the directory from Primary and answers from Secondary
// while Primary is failing. An empty Secondary does not count as an
// answer; Primary's error is returned instead.
type Fallback struct {
	Primary   qc.Directory
	Secondary *Static
	Log       logx.Logger
}

func (f *Fallback) ListMachines(ctx context.Context) ([]qc.Machine, error) {
	ms, err := f.Primary.ListMachines(ctx)
	if err == nil {
		return ms, nil
	}
	if !f.usable(ctx) {
		return nil, err
	}
	f.log().Warn("remote directory unavailable, serving static inventory", logx.Err(err))
	return f.Secondary.ListMachines(ctx)
}

func (f *Fallback) ListWorksheetsForMachine(ctx context.Context, machineID string) ([]qc.Worksheet, error) {
	ws, err := f.Primary.ListWorksheetsForMachine(ctx, machineID)
	if err == nil {
		return ws, nil
	}
	if !f.usable(ctx) {
		return nil, err
	}
	f.log().Warn("remote worksheets unavailable, serving static inventory",
		logx.String("machine", machineID), logx.Err(err))
	return f.Secondary.ListWorksheetsForMachine(ctx, machineID)
}

func (f *Fallback) usable(ctx context.Context) bool {
	if f.Secondary == nil || ctx.Err() != nil {
		return false
	}
	machines, _ := f.Secondary.Counts()
	return machines > 0
}

func (f *Fallback) log() logx.Logger {
	if f.Log.IsZero() {
		return logx.Nop()
	}
	return f.Log
}
