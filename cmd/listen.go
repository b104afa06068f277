package cmd

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"licenselink/internal/bootstrap"
	"licenselink/internal/bootstrap/logging"
	"licenselink/internal/errs"
	"licenselink/internal/infrastructure/messaging/natsbus"
	"licenselink/internal/infrastructure/metrics"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Link records as insert events arrive over NATS",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		if app.Bus == nil {
			return errors.New("messaging.nats_url is not configured")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rebuildFirst, _ := cmd.Flags().GetBool("rebuild")
		if rebuildFirst {
			summary, err := app.Linking.RebuildAll(ctx)
			if err != nil {
				logging.Error(ctx, "initial rebuild failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "initial rebuild")
			}
			logging.Info(ctx, "initial rebuild finished", slog.String("run_id", summary.RunID), slog.Int("links", summary.Total))
		}

		sub := natsbus.NewSubscriber(app.Bus, app.Config.Messaging.Subject, app.Config.Messaging.Queue, app.Linking.LinkOne)
		sub.OnEvent(app.Metrics.ObserveEventReceived)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sub.Run(gctx)
		})
		if addr := app.Config.Metrics.Addr; addr != "" {
			handler := metrics.NewHandler(app.Registry)
			g.Go(func() error {
				return metrics.Serve(gctx, addr, handler)
			})
		}

		if err := g.Wait(); err != nil {
			logging.Error(ctx, "listener stopped with error", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "listen for record events")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().Bool("rebuild", false, "Run a full rebuild before consuming events")
}
