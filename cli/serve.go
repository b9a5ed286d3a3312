package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"vidconv/api"
	"vidconv/watch"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			if port != "" {
				cfg.Port = port
			}
			logger := ctx.logger()

			lock := flock.New(cfg.LockPath())
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another vidconv server is already using %s", cfg.DataDir)
			}
			defer func() { _ = lock.Unlock() }()

			a, err := newApp(cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.Close()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.runner.CheckInstalled(runCtx); err != nil {
				logger.Warn("ffmpeg check failed, encoding will not work", "binary", a.runner.Binary(), "error", err)
			}
			a.svc.Start(runCtx)
			a.svc.DetectEncoders(runCtx, false)

			if cfg.WatchDir != "" {
				w, err := watch.New(cfg.WatchDir, watch.DefaultSettleDelay, a.svc, logger.Named("watch"))
				if err != nil {
					return err
				}
				go func() { _ = w.Run(runCtx) }()
			}

			if logger.IsDebug() || logger.IsTrace() {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: api.SetupRouter(a.svc, cfg, logger.Named("http")),
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("server starting", "port", cfg.Port, "data_dir", cfg.DataDir)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err, ok := <-serveErr:
				if ok {
					return fmt.Errorf("listen: %w", err)
				}
				return nil
			case <-runCtx.Done():
			}

			// Restore default behavior on the interrupt signal.
			stop()
			logger.Info("shutting down gracefully, press Ctrl+C again to force")

			if a.svc.CancelEncoding() {
				logger.Info("running batch cancelled")
			}
			waitCtx, cancelWait := context.WithTimeout(context.Background(), shutdownWait)
			defer cancelWait()
			if err := a.svc.Wait(waitCtx); err != nil {
				logger.Warn("encoding did not stop in time", "error", err)
			}

			// The server has 5 seconds to finish the requests it is currently handling.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logger.Info("server exiting")
			return nil
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}
