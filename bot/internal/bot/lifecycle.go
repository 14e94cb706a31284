package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// lifecycle orders startup and shutdown around one long-lived connection.
// The connection runs on its own context so in-flight work can still use it
// while draining; it is torn down only after drain returns.
type lifecycle struct {
	// connect blocks until ctx is done or the connection fails
	connect func(ctx context.Context) error
	// serve registers the work that consumes the connection
	serve func(ctx context.Context, g *errgroup.Group)
	// drain waits for in-flight work started by serve
	drain func(ctx context.Context) error
	grace time.Duration
	log   *slog.Logger
}

func (l lifecycle) run(ctx context.Context) error {
	connCtx, disconnect := context.WithCancel(context.WithoutCancel(ctx))
	defer disconnect()

	var connErr error
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		connErr = l.connect(connCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-connDone:
			err := connErr
			if err == nil {
				err = errors.New("connection closed")
			}
			return fmt.Errorf("telegram client stopped: %w", err)
		case <-gctx.Done():
			return nil
		}
	})
	l.serve(gctx, g)

	err := g.Wait()

	l.log.Info("waiting for in-flight link requests", slog.Duration("grace", l.grace))
	drainCtx, cancel := context.WithTimeout(connCtx, l.grace)
	if drainErr := l.drain(drainCtx); drainErr != nil {
		l.log.Warn("abandoning in-flight link requests", slog.String("error", drainErr.Error()))
	}
	cancel()

	disconnect()
	<-connDone

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
