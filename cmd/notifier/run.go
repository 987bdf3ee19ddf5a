package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/rice-reservation/internal/app"
	"github.com/iliyamo/rice-reservation/internal/queue"
	"github.com/iliyamo/rice-reservation/internal/service"
)

func runCmd() *cobra.Command {
	var (
		dryRun   bool
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch on a ticker and consume broker queues until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, logger, err := bootstrap(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer a.Close()
			if interval > 0 {
				a.Cfg.DispatchInterval = interval
			}
			if limit > 0 {
				a.Cfg.DispatchLimit = limit
			}
			return run(cmd.Context(), a, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render messages without pushing or updating jobs")
	cmd.Flags().DurationVar(&interval, "interval", 0, "dispatch period (default DISPATCH_INTERVAL)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "batch size (default DISPATCH_LIMIT)")
	return cmd
}

// run dispatches every DispatchInterval and whenever a kick arrives. With a
// broker configured it also replays reservation events into the scheduler
// and delivers queued magic links.
func run(ctx context.Context, a *app.App, dryRun bool) error {
	log := a.Log.With(zap.String("component", "notifier"))
	kicks := make(chan struct{}, 1)
	if a.Cfg.DispatchInterval <= 0 {
		a.Cfg.DispatchInterval = time.Minute
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(a.Cfg.DispatchInterval)
		defer ticker.Stop()
		for {
			dispatch(ctx, a, log, dryRun)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			case <-kicks:
			}
		}
	})

	if a.Cfg.AMQPURL == "" {
		log.Info("no broker configured, running on the ticker only", zap.Duration("interval", a.Cfg.DispatchInterval))
		return g.Wait()
	}

	g.Go(func() error {
		return ignoreCanceled(queue.Consume(ctx, a.Cfg.AMQPURL, queue.NotificationKickQueue, log, func(_ context.Context, body []byte) error {
			var k queue.NotificationKick
			if err := json.Unmarshal(body, &k); err != nil {
				return err
			}
			log.Debug("kick", zap.String("reason", k.Reason), zap.String("reservation_id", k.ReservationID))
			select {
			case kicks <- struct{}{}:
			default:
			}
			return nil
		}))
	})
	g.Go(func() error {
		return ignoreCanceled(queue.Consume(ctx, a.Cfg.AMQPURL, queue.ReservationEventsQueue, log, func(ctx context.Context, body []byte) error {
			var ev queue.ReservationEvent
			if err := json.Unmarshal(body, &ev); err != nil {
				return err
			}
			switch ev.Type {
			case queue.EventConfirmed:
				return a.Scheduler.ReservationConfirmed(ctx, ev.ReservationID)
			case queue.EventCancelled:
				return a.Scheduler.ReservationCancelled(ctx, ev.ReservationID)
			default:
				return fmt.Errorf("unknown event type %q", ev.Type)
			}
		}))
	})
	mailer := service.LogMailer{Log: log}
	g.Go(func() error {
		return ignoreCanceled(queue.Consume(ctx, a.Cfg.AMQPURL, queue.MagicLinkMailQueue, log, func(ctx context.Context, body []byte) error {
			var msg queue.MagicLinkMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				return err
			}
			return mailer.SendMagicLink(ctx, msg)
		}))
	})
	return g.Wait()
}

func dispatch(ctx context.Context, a *app.App, log *zap.Logger, dryRun bool) {
	res, err := a.Dispatcher.SendPendingJobs(ctx, a.Cfg.DispatchLimit, dryRun)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("dispatch failed", zap.Error(err))
		}
		return
	}
	if res.Processed > 0 {
		log.Info("dispatched", zap.Int("processed", res.Processed), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
