package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"schedcal/internal/busy"
	"schedcal/internal/capture"
	"schedcal/internal/config"
	appLog "schedcal/internal/log"
	"schedcal/internal/recommend"
	"schedcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	debug      bool
	once       bool
}

func main() {
	appLog.Info("schedcal starting", "version", "0.1.0")

	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"debounce_ms", conf.DebounceMs,
		"meeting_duration_minutes", conf.MeetingDurationMinutes,
		"window_days", conf.WindowDays,
		"gemini_model", conf.Gemini.Model,
		"gemini_configured", conf.Gemini.APIKey != "",
		"preview_enabled", conf.Preview.Enabled,
		"once", flags.once,
	)
	if conf.Gemini.APIKey == "" {
		appLog.Info("Gemini API key not configured; set GEMINI_API_KEY to enable recommendations")
	}

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

	state := busy.NewState()
	gemini := recommend.NewGeminiClient("", conf.Gemini.APIKey, conf.Gemini.Model)
	recommender := recommend.NewService(gemini, conf.MeetingDurationMinutes, conf.WindowDays)

	if flags.once {
		// Single-shot preview capture against an already-running instance.
		if err := runPreviewCapture(ctx, conf, flags.debug); err != nil {
			appLog.Error("preview capture failed", err)
			os.Exit(1)
		}
		appLog.Info("schedcal exiting")
		return
	}

	// Periodic preview refresh via cron.
	var scheduler *cron.Cron
	if conf.Preview.Enabled {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(conf.Preview.Cron, func() {
			if err := runPreviewCapture(ctx, conf, flags.debug); err != nil {
				appLog.Error("scheduled preview capture failed", err)
			}
		})
		if err != nil {
			appLog.Error("invalid preview cron expression", err, "cron", conf.Preview.Cron)
			os.Exit(1)
		}
		scheduler.Start()
		appLog.Info("preview capture scheduled", "cron", conf.Preview.Cron, "path", conf.Preview.Path)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- web.StartServer(ctx, conf, state, recommender, flags.debug)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	if scheduler != nil {
		stopCtx := scheduler.Stop()
		<-stopCtx.Done()
	}

	// Give some time for in-flight handlers to finish.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("schedcal exiting")
}

// runPreviewCapture snapshots the week grid into the configured PNG path.
func runPreviewCapture(ctx context.Context, conf *config.Config, debug bool) error {
	outPath := conf.Preview.Path
	if debug {
		outPath = "./cache/preview.png"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	return capture.GridPNG(ctx, capture.Options{
		URL:        "http://" + conf.Listen + "/",
		OutputPath: outPath,
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/schedcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging and local cache paths")
	flag.BoolVar(&cfg.once, "once", false, "Capture one grid preview against a running instance and exit")

	flag.Parse()

	return cfg
}
