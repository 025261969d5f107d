package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/go-azure-oauth2-client/internal/app"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/metrics"
	"github.com/jrsteele09/go-azure-oauth2-client/server"
)

const shutdownTimeout = 5 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled jobs",
		Long: `Serve the login and callback routes, /healthz and /metrics.

SCHEDULE_REFRESH and SCHEDULE_CLEANUP enable the in-process token refresh and
state cleanup jobs; leave them unset when an external scheduler runs
"tokens refresh-expired" and "states cleanup" instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	displayAppname(c.config.GetAppName())

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("metrics.Register: %w", err)
	}

	return c.withApp(ctx, func(a *app.App) error {
		handler, err := server.New(c.config, a.Auth)
		if err != nil {
			return err
		}
		httpServer := &http.Server{
			Addr:              c.config.GetPort(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return listenAndServe(httpServer)
		})
		g.Go(func() error {
			<-ctx.Done()
			return shutdown(httpServer)
		})
		g.Go(func() error {
			return a.RunJobs(ctx)
		})

		if err := g.Wait(); err != nil {
			return err
		}
		log.Info().Msg("Server stopped")
		return nil
	})
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
