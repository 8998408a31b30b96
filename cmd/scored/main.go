// Command scored serves score lookups from a periodically refreshed
// in-memory cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/valk-sh/go-scorecache/config"
	"github.com/valk-sh/go-scorecache/http/lookup"
	"github.com/valk-sh/go-scorecache/scorecache"
)

var log = logging.Logger("scored")

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file; defaults are used when empty")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "scored:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err = logging.SetLogLevel("*", cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownMetrics, err := setupMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := shutdownMetrics(sctx); err != nil {
			log.Warnw("Cannot shut down metrics", "err", err)
		}
	}()

	src, err := newSource(cfg.Sources)
	if err != nil {
		return err
	}

	log.Infow("Loading scores", "source", src, "preload", cfg.Refresh.Preload)
	cache := scorecache.New()
	defer cache.Close()
	refresher, err := scorecache.NewRefresher(cache, src,
		scorecache.WithRefreshInterval(cfg.Refresh.Interval),
		scorecache.WithFetchTimeout(cfg.Refresh.FetchTimeout),
		scorecache.WithPreload(cfg.Refresh.Preload))
	if err != nil {
		return err
	}

	events, cancelEvents := refresher.OnRefresh()
	defer cancelEvents()
	go logRefreshes(events)

	runDone := make(chan error, 1)
	go func() {
		runDone <- refresher.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           lookup.New(cache, refresher),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveDone := make(chan error, 1)
	go func() {
		log.Infow("Lookup server listening", "addr", cfg.ListenAddr)
		serveDone <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-serveDone:
		cancel()
		<-runDone
		return fmt.Errorf("lookup server stopped: %w", err)
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err = srv.Shutdown(sctx); err != nil {
		log.Warnw("Cannot shut down lookup server", "err", err)
	}
	if err = <-runDone; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSource(cfgs []config.SourceConfig) (scorecache.Source, error) {
	srcs := make([]scorecache.Source, 0, len(cfgs))
	for _, sc := range cfgs {
		var opts []scorecache.HTTPOption
		for k, v := range sc.Headers {
			opts = append(opts, scorecache.WithHeader(k, v))
		}
		if auth := sc.Auth(); auth != "" {
			opts = append(opts, scorecache.WithHeader("Authorization", auth))
		}
		if sc.Retry.Max > 0 {
			opts = append(opts, scorecache.WithRetry(sc.Retry.Max, sc.Retry.WaitMin, sc.Retry.WaitMax))
		}
		src, err := scorecache.NewHTTPSource(sc.URL, opts...)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}
	return scorecache.MultiSource(srcs...), nil
}

func logRefreshes(events <-chan scorecache.RefreshEvent) {
	for ev := range events {
		if ev.Err != nil {
			log.Warnw("Refresh failed, serving previous scores", "err", ev.Err, "elapsed", ev.Duration)
			continue
		}
		log.Debugw("Refresh complete", "scores", ev.Count, "elapsed", ev.Duration)
	}
}
