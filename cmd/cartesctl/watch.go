package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/MrEthical07/goCartes/internal/telemetry"
	cartesprom "github.com/MrEthical07/goCartes/metrics/export/prometheus"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll statistics until interrupted, optionally serving client metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if _, err := a.restore(ctx); err != nil {
				return a.fail(err)
			}

			cfg := a.client.Config()
			shutdown, err := telemetry.Setup(ctx, telemetry.Config{
				ServiceName:    cfg.Tracing.ServiceName,
				ServiceVersion: cfg.App.Version,
				Endpoint:       cfg.Tracing.Endpoint,
				Insecure:       cfg.Tracing.Insecure,
			}, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				if err := shutdown(flushCtx); err != nil {
					a.logger.Warn().Err(err).Msg("tracing shutdown")
				}
			}()

			expired := make(chan struct{})
			unsubscribe := a.client.Subscribe(func(ev goCartes.Event) {
				log := a.logger.Info()
				if ev.Type == goCartes.EventSessionExpired {
					log = a.logger.Warn()
				}
				log.Str("event", string(ev.Type)).Str("reason", ev.Reason).Str("error", ev.Error).Msg("session event")
				if ev.Type == goCartes.EventSessionExpired {
					select {
					case <-expired:
					default:
						close(expired)
					}
				}
			})
			defer unsubscribe()

			g, gctx := errgroup.WithContext(ctx)

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metricsMux(cartesprom.NewPrometheusExporter(a.client)),
					ReadHeaderTimeout: 5 * time.Second,
				}
				g.Go(func() error {
					a.logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					stopCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					return srv.Shutdown(stopCtx)
				})
			}

			g.Go(func() error {
				defer cancel()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					stats, err := a.client.RefreshStatistics(gctx)
					switch {
					case err == nil:
						a.logger.Info().
							Int("total", stats.Global.Total).
							Int("withdrawn", stats.Global.Withdrawn).
							Int("percent", stats.Global.WithdrawalPercent()).
							Int("sites", len(stats.Sites)).
							Msg("statistics")
					case gctx.Err() != nil:
						return nil
					default:
						_ = a.fail(err)
					}

					select {
					case <-gctx.Done():
						return nil
					case <-expired:
						return goCartes.ErrSessionExpired
					case <-ticker.C:
						// The cached copy would be served until its TTL runs out.
						a.client.InvalidateCache()
					}
				}
			})

			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "time between statistics reads")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

func metricsMux(exporter *cartesprom.PrometheusExporter) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", exporter.Handler()).Methods(http.MethodGet)
	return r
}
