package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"school-library/events"
	"school-library/httpapi"
	"school-library/isbn"
	"school-library/library"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pub, err := events.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	if err != nil {
		return err
	}
	defer pub.Close()

	lookup, err := isbn.New(isbn.Config{
		Timeout:   cfg.ISBN.Timeout,
		CacheSize: cfg.ISBN.CacheSize,
		NDLURL:    cfg.ISBN.NDLURL,
		OpenBDURL: cfg.ISBN.OpenBDURL,
		GoogleURL: cfg.ISBN.GoogleURL,
	}, logger)
	if err != nil {
		return err
	}

	opts := []library.Option{library.WithLookup(lookup)}
	if pub.Enabled() {
		opts = append(opts, library.WithPublisher(pub))
	}
	mgr, err := openManager(opts...)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if n, err := mgr.PurgeSessions(ctx, library.System); err != nil {
		logger.Warn().Err(err).Msg("purging expired sessions")
	} else if n > 0 {
		logger.Info().Int64("sessions", n).Msg("purged expired sessions")
	}

	api := httpapi.New(mgr, httpapi.Options{
		Logger:       logger,
		CORSOrigins:  cfg.Server.CORSOrigins,
		FontPath:     cfg.PDF.FontPath,
		SecureCookie: cfg.Auth.SecureCookie,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("events", pub.Enabled()).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager()
			if err != nil {
				return err
			}
			defer mgr.Close()
			if err := mgr.Ping(cmd.Context()); err != nil {
				return err
			}
			ok("Schema is up to date: %s", cfg.Database.Path)
			return nil
		},
	}
}
