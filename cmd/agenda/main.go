package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"dailyagenda/internal/agenda"
	"dailyagenda/internal/cache"
	"dailyagenda/internal/capture"
	"dailyagenda/internal/config"
	"dailyagenda/internal/digest"
	appLog "dailyagenda/internal/log"
	"dailyagenda/internal/web"
)

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	date       string
	tomorrow   bool
	preview    string
	capture    string
	serve      bool
	once       bool
	logLevel   string
}

func main() {
	flags := parseFlags()
	appLog.SetLevel(appLog.ParseLevel(flags.logLevel))
	appLog.Info("agenda starting", "version", "0.1.0")

	if err := config.LoadDotEnv(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envPath)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("invalid environment", err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"schedule", conf.Schedule,
		"calendars", len(conf.Calendars),
		"notion_databases", len(conf.Notion.Databases),
		"cache", conf.Cache.Enabled,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("agenda failed", err)
		os.Exit(1)
	}
	appLog.Info("agenda exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	store, err := cache.New(&cache.Config{Enabled: conf.Cache.Enabled, Path: conf.Cache.Path})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	runner, err := digest.NewFromConfig(ctx, conf, store)
	if err != nil {
		return err
	}

	date, err := targetDate(runner, flags)
	if err != nil {
		return err
	}

	switch {
	case flags.serve:
		if flags.once {
			if _, err := runner.Run(ctx, date); err != nil {
				appLog.Error("initial digest failed", err, "date", date.String())
			}
		}
		return serve(ctx, conf, runner, flags.capture)
	case flags.capture != "":
		return captureOnce(ctx, conf, runner, date, flags.capture)
	case flags.preview != "":
		return previewOnce(ctx, runner, date, flags.preview)
	default:
		_, err := runner.Run(ctx, date)
		return err
	}
}

// targetDate resolves -date / -tomorrow against today in the configured zone.
func targetDate(runner *digest.Runner, flags flagConfig) (agenda.Date, error) {
	date := runner.Today()
	if flags.date != "" {
		d, err := agenda.ParseDate(flags.date)
		if err != nil {
			return agenda.Date{}, err
		}
		date = d
	}
	if flags.tomorrow {
		date = date.AddDays(1)
	}
	return date, nil
}

func previewOnce(ctx context.Context, runner *digest.Runner, date agenda.Date, out string) error {
	rep, err := runner.Build(ctx, date)
	if err != nil {
		return err
	}
	if out == "-" {
		_, err = os.Stdout.WriteString(rep.HTML)
		return err
	}
	if err := os.WriteFile(out, []byte(rep.HTML), 0o644); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	appLog.Info("preview written", "path", out, "run_id", rep.RunID)
	return nil
}

// captureOnce serves the preview on an ephemeral loopback port just long
// enough for Chromium to screenshot it.
func captureOnce(ctx context.Context, conf *config.Config, runner *digest.Runner, date agenda.Date, out string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	local := *conf
	local.BasicAuth = nil
	srv := &http.Server{Handler: web.NewServer(&local, runner).Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("capture server failed", err)
		}
	}()
	defer srv.Close()

	url := fmt.Sprintf("http://%s/preview?date=%s", ln.Addr().String(), date.String())
	if err := capture.PreviewPNG(ctx, capture.Options{URL: url, OutputPath: out}); err != nil {
		return err
	}
	appLog.Info("preview captured", "path", out)
	return nil
}

// serve runs the daily cron job and the preview server until ctx ends.
func serve(ctx context.Context, conf *config.Config, runner *digest.Runner, pngPath string) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(conf.Schedule, func() {
		date := runner.Today()
		if _, err := runner.Run(ctx, date); err != nil {
			appLog.Error("scheduled digest failed", err, "date", date.String())
		}
		if pngPath != "" {
			if err := captureOnce(ctx, conf, runner, date, pngPath); err != nil {
				appLog.Error("scheduled capture failed", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", conf.Schedule, err)
	}
	c.Start()
	appLog.Info("scheduler started", "schedule", conf.Schedule, "tz", loc.String())

	srv := web.NewServer(conf, runner)
	srv.PreviewPNG = pngPath
	serveErr := srv.Serve(ctx)

	// Wait for a running job to finish.
	<-c.Stop().Done()
	return serveErr
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to .env file (optional)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.date, "date", "", "Target date YYYY-MM-DD (default: today in the configured timezone)")
	flag.BoolVar(&cfg.tomorrow, "tomorrow", false, "Use the day after the target date")
	flag.StringVar(&cfg.preview, "preview", "", "Write the digest HTML to this file ('-' for stdout) instead of sending")
	flag.StringVar(&cfg.capture, "capture", "", "Write a PNG screenshot of the digest to this file")
	flag.BoolVar(&cfg.serve, "serve", false, "Run the daily schedule and the preview server")
	flag.BoolVar(&cfg.once, "once", false, "Send the digest immediately (default unless -serve, -preview or -capture)")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug, info, error")

	flag.Parse()

	return cfg
}
