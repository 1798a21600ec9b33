// Command gatewaypkgd runs the gateway agent's dynamic package manager:
// it loads packages from a configured directory, wires them into a
// shared resource registry, and accepts load/unload/reload/update/list/
// stat commands from a named control pipe until the process is killed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huitest/liota/internal/bootstrap"
	"github.com/huitest/liota/internal/loader"
	"github.com/huitest/liota/internal/metrics"
)

func main() {
	configPath := flag.String("config", "/etc/liota/liota.conf", "path to the gateway agent configuration file")
	jsonLogs := flag.Bool("json-logs", false, "emit structured JSON logs instead of text")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	flag.Parse()

	log := newLogger(*jsonLogs)

	var metricsSource metrics.Source = metrics.NoopSource{}
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metricsSource = metrics.NewPromSource(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil { //nolint:gosec // operator-configured address
				log.Error("metrics server exited", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b bootstrap.Bootstrapper
	agent, err := b.Run(ctx, *configPath, loader.Default(), log, metricsSource)
	if err != nil {
		fmt.Fprintln(os.Stderr, "gatewaypkgd: bootstrap failed:", err)
		os.Exit(1)
	}

	if err := agent.Wait(); err != nil {
		log.Error("gatewaypkgd exiting", "error", err)
		os.Exit(1)
	}
}

func newLogger(jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
