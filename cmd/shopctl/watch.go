package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/merchkit/shopfront/internal/debug"
	"github.com/merchkit/shopfront/internal/query"
	"github.com/merchkit/shopfront/internal/worker"
)

// newWatchCmd runs the client in long-lived mode: live subscriptions to
// the cart and training status, periodic revalidation, and a diagnostics
// server exposing health, metrics, and the cache snapshot.
func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch cart and training status with live cache revalidation",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				cartSub := a.shop.Cart(ctx)
				defer cartSub.Close()
				trainSub := a.shop.TrainingStatus(ctx)
				defer trainSub.Close()

				workers := []worker.Worker{
					worker.NewRevalidator(a.cache, a.cfg.Cache.Revalidate),
				}
				if a.cfg.Telemetry.Metrics.Enabled {
					handler := debug.New(debug.Deps{
						Cache:      a.cache,
						Registry:   a.registry,
						ReadyCheck: a.store.Ping,
					})
					workers = append(workers, worker.NewServe(a.cfg.Telemetry.Metrics.Addr, handler))
				}

				go func() {
					for {
						select {
						case <-cartSub.Updates():
							if cart, status := cartSub.Get(); status == query.StatusFulfilled {
								fmt.Printf("cart: %d items, total %.2f\n", len(cart.Items), cart.Total)
							}
						case <-trainSub.Updates():
							if t, status := trainSub.Get(); status == query.StatusFulfilled {
								fmt.Printf("training: %s (%.0f%%)\n", t.State, t.Progress*100)
							}
						case <-ctx.Done():
							return
						}
					}
				}()

				slog.Info("watching", "revalidate", a.cfg.Cache.Revalidate)
				err := worker.NewRunner(workers...).Run(ctx)
				slog.Info("watch stopped")
				return err
			})(c, args)
		},
	}
}
