package bot

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devilmonastery/arachnid/internal/domain/services"
)

type sweepFunc func(ctx context.Context) (*services.SweepReport, error)

// startSweeps schedules each enabled sweep on its own ticker
func (b *Bot) startSweeps(ctx context.Context, g *errgroup.Group, reconciler *services.Reconciler) {
	sweeps := []struct {
		name     string
		interval time.Duration
		run      sweepFunc
	}{
		{name: "telegram", interval: b.config.Sweeps.TelegramInterval, run: reconciler.SweepTelegram},
		{name: "discord", interval: b.config.Sweeps.DiscordInterval, run: reconciler.SweepDiscord},
	}

	for _, s := range sweeps {
		if s.interval <= 0 {
			b.log.Info("sweep disabled", slog.String("sweep", s.name))
			continue
		}
		g.Go(func() error {
			runSweepLoop(ctx, s.name, s.interval, s.run, b.log)
			return nil
		})
	}
}

// runSweepLoop runs the sweep immediately and then on every tick until ctx is done.
// A failed run is logged and retried in full on the next tick.
func runSweepLoop(ctx context.Context, name string, interval time.Duration, run sweepFunc, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("starting sweep background job",
		slog.String("sweep", name),
		slog.Duration("interval", interval))

	runSweep(ctx, name, run, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping sweep background job", slog.String("sweep", name))
			return
		case <-ticker.C:
			runSweep(ctx, name, run, log)
		}
	}
}

func runSweep(ctx context.Context, name string, run sweepFunc, log *slog.Logger) {
	if _, err := run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("sweep failed",
			slog.String("sweep", name),
			slog.String("error", err.Error()))
	}
}
