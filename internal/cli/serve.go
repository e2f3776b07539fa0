package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskflow/internal/bot"
	"taskflow/internal/service"
)

const sweepJob = "sweep"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SweepOnStart bool
}

// NewServeCommand creates the long-running scheduler and ops bot process.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daily sweep scheduler and the ops bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SweepOnStart, "sweep-on-start", false, "run one sweep before waiting for the schedule")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	var telegramBot *bot.Bot
	if a.cfg.BotEnabled() {
		telegramBot, err = bot.New(&a.cfg, a.taskSvc, a.digestSvc, a.sweepSvc, a.log.WithField("component", "bot"))
		if err != nil {
			return err
		}
	}

	sweep := func() {
		report, err := a.sweepSvc.Run(ctx, 0)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Error("scheduled sweep")
			}
			return
		}
		if telegramBot != nil {
			telegramBot.NotifySweep(report)
		}
	}

	scheduler := service.NewSchedulerService(a.cfg.Location(), a.log.WithField("component", "scheduler"))
	if err := scheduler.RegisterDaily(sweepJob, a.cfg.SweepAt, sweep); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	if opts.SweepOnStart {
		if err := scheduler.RunNow(sweepJob); err != nil {
			return err
		}
	}

	next, _ := scheduler.Next(sweepJob)
	a.log.WithField("next_sweep", next).Info("taskflow started")
	if telegramBot != nil {
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	} else {
		<-ctx.Done()
	}
	a.log.Info("shutdown complete")
	return nil
}
