// Package schedule repeats ingestion batches on a cron schedule.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Validate reports whether spec is a usable schedule: five cron fields or a
// descriptor such as "@every 6h" or "@daily".
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run executes job once right away and then on every tick of spec until ctx
// is done. A tick that arrives while job is still running is skipped. Run
// returns after the active job has finished.
func Run(ctx context.Context, spec string, log logrus.FieldLogger, job func(context.Context)) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger := cron.PrintfLogger(log)
	wrapped := cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(sched, wrapped)
	c.Start()
	log.WithField("schedule", spec).Info("scheduler started")

	wrapped.Run()

	<-ctx.Done()
	log.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}
