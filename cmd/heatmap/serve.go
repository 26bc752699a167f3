package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-heatmap/internal/api"
	"github.com/JakeFAU/replay-heatmap/internal/metrics"
	"github.com/JakeFAU/replay-heatmap/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the heatmap HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics.Init()
			handler := api.NewServer(rt.scraper(), rt.cfg, rt.logger.Named("api")).Handler()

			if tc := rt.cfg.Telemetry; tc.Enabled {
				providers, err := telemetry.Init(cmd.Context(), telemetry.Config{
					ServiceName: tc.ServiceName,
					Version:     version,
					ProjectID:   tc.ProjectID,
				})
				if err != nil {
					return fmt.Errorf("init telemetry: %w", err)
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
					defer cancel()
					if err := providers.Shutdown(ctx); err != nil {
						rt.logger.Warn("telemetry shutdown failed", zap.Error(err))
					}
				}()
				handler = telemetry.Handler(handler, "heatmap-api")
			}

			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", rt.cfg.Server.Port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(cmd.Context(), ln, handler, rt.logger)
		},
	}
	cmd.Flags().Int("port", 0, "listen port")
	bindFlag(rt.v, "server.port", cmd.Flags().Lookup("port"))
	return cmd
}

// serve runs handler on ln until ctx is canceled, then drains in-flight requests.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
