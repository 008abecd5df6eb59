package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"convert_bot/internal/auth"
	"convert_bot/internal/config"
	"convert_bot/internal/metrics"
	"convert_bot/internal/processor"
	"convert_bot/internal/reddit"
	"convert_bot/internal/rehost"
	"convert_bot/internal/reply"
	"convert_bot/internal/service"
	"convert_bot/internal/storage"
)

func main() {
	envFile := flag.String("env", "", "path to an env file (defaults to ./.env when present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logOut := newLogWriter(cfg)
	defer func() { _ = logOut.Close() }()
	log := newLogger(cfg.LogLevel, logOut)

	if err := run(cfg, log); err != nil {
		log.Error("bot failed", "error", err)
		_ = logOut.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	httpClient := reddit.NewHTTPClient(cfg.RedditUserAgent, cfg.HTTPTimeout)

	client := reddit.NewClient(httpClient, cfg.RedditAPIURL)
	authn := auth.New(auth.Config{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		TokenURL:     cfg.RedditTokenURL,
		HTTPClient:   httpClient,
	}, client, m, log)

	rehoster := rehost.New(httpClient, rehost.Config{
		ClientID:  cfg.ImgurClientID,
		UploadURL: cfg.ImgurUploadURL,
		UserAgent: cfg.RedditUserAgent,
		CacheTTL:  cfg.RehostCacheTTL,
	}, log)

	poster := reply.New(client, authn, m, log)
	proc := processor.New(store, rehoster, poster, m, log, processor.Options{
		SeenCap:       cfg.SeenCap,
		MaintainEvery: cfg.ProgressEvery,
	})
	stream := reddit.NewStream(httpClient, reddit.StreamConfig{
		FeedURL:  cfg.RedditFeedURL,
		Forum:    cfg.Subreddit,
		Interval: cfg.PollInterval,
	}, log)

	svc := service.New(stream, authn, proc, store, cfg.ReportSchedule, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("starting bot", "subreddit", cfg.Subreddit, "user", cfg.RedditUsername)

	g.Go(func() error {
		defer cancel()
		return svc.Run(ctx)
	})

	err = g.Wait()
	log.Info("bot stopped")
	return err
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
