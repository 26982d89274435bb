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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/aposazhennikov/local-audio-player/browse"
	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/device"
	httpServer "github.com/aposazhennikov/local-audio-player/http"
	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/playback"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
	"github.com/aposazhennikov/local-audio-player/session"
)

// Default configuration.
const (
	defaultPort        = 8000
	defaultMusicDir    = "./music"
	defaultLogLevel    = "WARNING"
	defaultScanWorkers = 4
	defaultArtworkSize = 256
	defaultEnv         = "development"
)

// Config is the application configuration.
type Config struct {
	Port        int
	MusicDir    string
	LogLevel    string
	LogFile     string
	Shuffle     bool
	Repeat      session.RepeatMode
	Watch       bool
	ScanWorkers int
	ArtworkSize int
	SentryDSN   string
	Env         string
}

func main() {
	// A missing .env file is fine; real environment variables win.
	_ = godotenv.Load()

	config, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(config.LogLevel)
	logCfg.File = config.LogFile
	log := logger.NewLogger(logCfg)
	slog.SetDefault(log)

	sentryEnabled := config.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.SentryDSN,
			Environment: config.Env,
			Release:     "local-audio-player@1.0.0",
		}); err != nil {
			log.Error("Sentry init failed, continuing without it", slog.String("error", err.Error()))
			sentryEnabled = false
		}
	}
	sentryHelper := sentryhelper.NewSentryHelper(sentryEnabled, log)
	defer sentryHelper.SafeFlush(2 * time.Second)
	defer sentry.Recover()

	logger.LogConfigEvent(log, slog.LevelInfo, "Configuration loaded",
		slog.Int("port", config.Port),
		slog.String("music_dir", config.MusicDir),
		slog.String("log_level", config.LogLevel),
		slog.Bool("shuffle", config.Shuffle),
		slog.String("repeat", config.Repeat.String()),
		slog.Bool("watch", config.Watch),
		slog.Int("scan_workers", config.ScanWorkers),
		slog.Bool("sentry", sentryEnabled))

	lib := catalog.New(catalog.Options{
		Root:      config.MusicDir,
		Extractor: catalog.NewTagExtractor(catalog.ThumbnailResizer{Size: uint(config.ArtworkSize)}, log),
		Workers:   config.ScanWorkers,
		Logger:    log,
		Sentry:    sentryHelper,
	})

	speaker := device.NewSpeaker(device.DefaultSampleRate, log, sentryHelper)
	arbiter := device.NewArbiter(log)
	noisy := device.NewNoisy(log)

	player := session.New(session.Options{
		Catalog: lib,
		Device:  speaker,
		Arbiter: arbiter,
		Resources: playback.Resources{
			WakeLock:    device.NewLock("wake_lock", log),
			NetworkLock: device.NewLock("network_lock", log),
			Foreground:  device.NewLock("foreground", log),
			Noisy:       noisy,
		},
		Shuffle: config.Shuffle,
		Repeat:  config.Repeat,
		Logger:  log,
		Sentry:  sentryHelper,
	})
	speaker.SetListener(player.DeviceListener())

	lib.RetrieveAsync(func(ok bool) {
		logger.LogScanEvent(log, slog.LevelInfo, "Initial scan finished", lib.Root(), slog.Bool("success", ok))
	})

	var watcher *catalog.Watcher
	if config.Watch {
		watcher, err = catalog.NewWatcher(lib, catalog.DefaultDebounce)
		if err != nil {
			log.Warn("Watching the music directory is disabled", slog.String("error", err.Error()))
			sentryHelper.CaptureError(err, "main", "watcher")
		} else {
			watcher.Start()
		}
	}

	server := httpServer.NewServer(httpServer.Options{
		Catalog:      lib,
		Browse:       browse.NewBuilder(lib, player, log),
		Player:       player,
		Noisy:        noisy,
		Interruption: device.NewInterruption(arbiter, "http"),
		Logger:       log,
		Sentry:       sentryHelper,
	})
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server started", slog.Int("port", config.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

wait:
	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				log.Info("SIGHUP received, rescanning music directory")
				lib.Refresh(func(ok bool) {
					logger.LogScanEvent(log, slog.LevelInfo, "Rescan finished", lib.Root(), slog.Bool("success", ok))
				})
				continue
			}
			log.Info("Shutting down", slog.String("signal", sig.String()))
			sentryHelper.CaptureMessage("Shutting down on "+sig.String(), "main")
			break wait
		case err := <-serverErr:
			log.Error("Server failed", slog.String("error", err.Error()))
			sentryHelper.CaptureError(err, "main", "listen")
			break wait
		}
	}
	signal.Stop(signals)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", slog.String("error", err.Error()))
		sentryHelper.CaptureError(err, "main", "shutdown")
	}
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			log.Warn("Failed to close watcher", slog.String("error", err.Error()))
		}
	}
	player.Close()
	log.Info("Server stopped")
}

// loadConfig reads the configuration. Environment variables take precedence
// over command-line flags, which take precedence over the defaults.
func loadConfig(args []string, getenv func(string) string) (*Config, error) {
	config := &Config{}
	var repeat string

	fs := flag.NewFlagSet("local-audio-player", flag.ContinueOnError)
	fs.IntVar(&config.Port, "port", defaultPort, "HTTP port")
	fs.StringVar(&config.MusicDir, "music-dir", defaultMusicDir, "Directory with music files")
	fs.StringVar(&config.LogLevel, "log-level", defaultLogLevel, "Log level: DEBUG, INFO, WARNING, ERROR")
	fs.StringVar(&config.LogFile, "log-file", "", "Also write logs to this rotated file")
	fs.BoolVar(&config.Shuffle, "shuffle", false, "Start with shuffle enabled")
	fs.StringVar(&repeat, "repeat", "none", "Repeat mode: none, all, one")
	fs.BoolVar(&config.Watch, "watch", true, "Rescan when the music directory changes")
	fs.IntVar(&config.ScanWorkers, "scan-workers", defaultScanWorkers, "Parallel metadata readers")
	fs.IntVar(&config.ArtworkSize, "artwork-size", defaultArtworkSize, "Maximum cover edge in pixels, 0 keeps the original")
	fs.StringVar(&config.SentryDSN, "sentry-dsn", "", "Sentry DSN, empty disables reporting")
	fs.StringVar(&config.Env, "env", defaultEnv, "Deployment environment reported to Sentry")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var errs []error
	envInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	envBool := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parse %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	envString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	envInt("PORT", &config.Port)
	envString("MUSIC_DIR", &config.MusicDir)
	envString("LOG_LEVEL", &config.LogLevel)
	envString("LOG_FILE", &config.LogFile)
	envBool("SHUFFLE", &config.Shuffle)
	envString("REPEAT", &repeat)
	envBool("WATCH", &config.Watch)
	envInt("SCAN_WORKERS", &config.ScanWorkers)
	envInt("ARTWORK_SIZE", &config.ArtworkSize)
	envString("SENTRY_DSN", &config.SentryDSN)
	envString("ENV", &config.Env)

	mode, err := session.ParseRepeatMode(repeat)
	if err != nil {
		errs = append(errs, err)
	}
	config.Repeat = mode

	if config.Port <= 0 || config.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", config.Port))
	}
	if config.ScanWorkers <= 0 {
		errs = append(errs, fmt.Errorf("scan workers must be positive, got %d", config.ScanWorkers))
	}
	if config.ArtworkSize < 0 {
		errs = append(errs, fmt.Errorf("artwork size must not be negative, got %d", config.ArtworkSize))
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)

	abs, err := filepath.Abs(config.MusicDir)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve music dir: %w", err))
	} else {
		config.MusicDir = abs
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return config, nil
}
