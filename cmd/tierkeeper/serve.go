package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tierkeeper/internal/certs"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/notify"
	"github.com/Veraticus/tierkeeper/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		addr   string
		useTLS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rebalance and classification endpoints over HTTP",
		Long: `Start the HTTP surface. Queue runs stream progress as server-sent events.
When redis.addr is configured every progress event is also published there.
With --tls (or server.tls) a self-signed certificate is kept in server.cert_dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			deps, err := serverDeps(ctx, a)
			if err != nil {
				return err
			}

			srv := server.NewServer(server.NewRouter(deps), addr)
			if useTLS || a.cfg.Server.TLS {
				tlsCfg, err := certs.NewFileManager(a.cfg.Server.CertDir,
					certs.WithHosts(a.cfg.Server.TLSHosts...),
					certs.WithLogger(a.logger)).TLSConfig()
				if err != nil {
					return common.NewUserError("Could not prepare the TLS certificate", err)
				}
				srv.UseTLS(tlsCfg)
			}
			return runServer(ctx, srv, a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "Serve HTTPS with a self-signed certificate")
	return cmd
}

func serverDeps(ctx context.Context, a *app) (server.Deps, error) {
	rebalancer, err := a.rebalancer(true)
	if err != nil {
		return server.Deps{}, err
	}
	archive, err := a.archiveQueue(ctx)
	if err != nil {
		return server.Deps{}, err
	}

	deps := server.Deps{
		Store:      a.store,
		Rebalancer: rebalancer,
		Archive:    archive,
		Logger:     a.logger,
	}

	vision, err := a.visionQueue(ctx)
	switch {
	case err == nil:
		deps.Vision = vision
	case errors.Is(err, common.ErrInvalidConfig):
		a.logger.Warn("Vision endpoint disabled", "reason", err)
	default:
		return server.Deps{}, err
	}

	if a.cfg.Redis.Addr != "" {
		pub, err := notify.NewRedisPublisher(ctx, notify.RedisOptions{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			Channel:  a.cfg.Redis.Channel,
			DB:       a.cfg.Redis.DB,
		})
		if err != nil {
			return server.Deps{}, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = pub.Close() })
		deps.Publishers = append(deps.Publishers, pub)
		a.logger.Info("Publishing progress events", "channel", pub.Channel())
	}
	return deps, nil
}

// runServer serves until ctx is canceled, then shuts down gracefully.
func runServer(ctx context.Context, srv *server.Server, a *app) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr(), "tls", srv.TLS())
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server", "timeout", a.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
