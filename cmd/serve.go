package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/geohead/incidentdash/server"
)

// Serve implements the "serve" subcommand: load the dataset once and serve
// the dashboard API until interrupted.
func Serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var ds datasetFlags
	ds.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config, default :8080)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: incidentdash serve [source] [--addr :8080] [--config incidents.yaml]\n\nStart the dashboard HTTP API.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(reorderArgs(args))
	if fs.NArg() > 0 {
		ds.source = fs.Arg(0)
	}

	e, err := ds.env()
	if err != nil {
		fatalf("error loading config: %v", err)
	}
	if *addr != "" {
		e.cfg.Server.Addr = *addr
	}
	if err := serve(e); err != nil {
		e.logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func serve(e *env) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := e.load(ctx)
	if err != nil {
		return err
	}
	srv, err := server.New(data, e.cfg, e.logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:         e.cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  e.cfg.Server.ReadTimeout,
		WriteTimeout: e.cfg.Server.WriteTimeout,
		IdleTimeout:  e.cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		e.logger.Info("serving",
			slog.String("addr", e.cfg.Server.Addr),
			slog.String("source", data.Source),
			slog.Int("rows", data.Len()),
		)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.logger.Info("shutting down", slog.Duration("timeout", e.cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
