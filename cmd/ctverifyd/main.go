package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/certevidence/ct/audit"
	"github.com/certevidence/ct/http"
)

func main() {
	var dbPath, listenAddr string

	flag.StringVar(&dbPath, "audit-db", "audit.db", "the path to the audit database.")
	flag.StringVar(&listenAddr, "listen-addr", "localhost:8634", "the TCP address for the server to listen on, in the form 'host:port'.")
	flag.Parse()

	store, err := audit.Open(dbPath)
	if err != nil {
		slog.Error("failed to open audit database", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	srv := http.NewServer(store, listenAddr, prometheus.DefaultGatherer)

	slog.Info("starting ctverifyd", slog.String("addr", listenAddr))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("context done, preparing to exit")
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("could not gracefully close server", slog.Any("err", err))
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Info("unexpected errgroup error, exiting", slog.Any("err", err))
		os.Exit(1)
	}
}
