package executor

import (
	"time"

	"github.com/go-logr/logr"
)

// Observer receives progress events during a run.
type Observer interface {
	StageStarted(stage string)
	StageFinished(stage string, status Status, d time.Duration, err error)
	RunFinished(report *Report)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) StageStarted(string)                             {}
func (NopObserver) StageFinished(string, Status, time.Duration, error) {}
func (NopObserver) RunFinished(*Report)                             {}

// LogObserver emits events through a logr.Logger.
type LogObserver struct {
	Logger logr.Logger
}

func (o LogObserver) StageStarted(stage string) {
	o.Logger.Info("stage started", "stage", stage)
}

func (o LogObserver) StageFinished(stage string, status Status, d time.Duration, err error) {
	if err != nil {
		o.Logger.Error(err, "stage finished", "stage", stage, "status", status.String(), "duration", d.Round(time.Millisecond).String())
		return
	}
	o.Logger.Info("stage finished", "stage", stage, "status", status.String(), "duration", d.Round(time.Millisecond).String())
}

func (o LogObserver) RunFinished(report *Report) {
	counts := report.Counts()
	o.Logger.Info("run finished",
		"tenant", report.Tenant,
		"mode", report.Mode,
		"cancelled", report.Cancelled,
		"succeeded", counts[StatusSucceeded],
		"failed", counts[StatusFailed],
		"skipped", counts[StatusSkippedByCondition],
	)
}
