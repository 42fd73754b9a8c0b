package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blockwatch-bot/blockwatch/internal/store"
)

// botMain is the true entry point. It's split from main so deferred
// cleanup still runs on every return path, including a fatal bootstrap
// error.
func botMain() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setLogLevels(cfg.DebugLevel)
	defer backendLog.Flush()

	botLog.Infof("starting blockwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)

	st, err := store.Open(ctx, store.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Username:     cfg.Database.Username,
		Password:     cfg.Database.Password,
		DatabaseName: cfg.Database.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	b, err := newBot(st, *cfg)
	if err != nil {
		return fmt.Errorf("construct bot: %w", err)
	}

	if cfg.PrometheusListen != "" {
		go serveMetrics(cfg.PrometheusListen)
	}

	if ok, _ := daemon.SdNotify(false, daemon.SdNotifyReady); ok {
		botLog.Debugf("notified systemd readiness")
	}

	if err := b.run(ctx, *cfg); err != nil {
		return fmt.Errorf("bot exited: %w", err)
	}

	botLog.Infof("shutdown complete")
	return nil
}

// installSignalHandler cancels cancel on SIGINT/SIGTERM, replacing the
// daemon's historical shutdownChannel with a single context.Context.
func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		botLog.Infof("received signal %v, shutting down", sig)
		cancel()
	}()
}

// serveMetrics exposes the optional prometheus endpoint named in the
// spec's EXTERNAL INTERFACES section. A listener failure is logged, not
// fatal: metrics are an ambient concern, not a core dependency.
func serveMetrics(listenAddr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		botLog.Errorf("metrics listener stopped: %v", err)
	}
}

func main() {
	if err := botMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
