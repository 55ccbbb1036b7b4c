package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/ship"
)

const ConfigPath = "config/shipserver.yaml"

const version = "0.1.0"

// redialDelay paces reconnect attempts after the shipgate link drops.
const redialDelay = 5 * time.Second

var (
	showVersion = flag.Bool("version", false, "print the version and exit")
	verbose     = flag.Bool("verbose", false, "log at debug level")
	quiet       = flag.Bool("quiet", false, "log warnings and errors only")
	reallyQuiet = flag.Bool("reallyquiet", false, "log errors only")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("solvane ship server " + version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("SOLVANE_SHIP_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadShipServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	slog.Info("solvane ship server starting", "name", cfg.Name, "log_level", cfg.LogLevel)
	slog.Info("config loaded", "bind", cfg.BindAddress, "base_port", cfg.BasePort,
		"blocks", cfg.Blocks, "shipgate", cfg.ShipgateAddr)

	key, err := loadKey(cfg.KeyFile)
	if err != nil {
		return err
	}

	s := ship.New(cfg, 0, nil, slog.Default())

	if cfg.LimitsFile != "" {
		limits, err := ship.LoadLimits(cfg.LimitsFile)
		if err != nil {
			return fmt.Errorf("loading limits file: %w", err)
		}
		s.SetLimits(limits)
		slog.Info("legit limits loaded", "file", cfg.LimitsFile, "name", limits.Name)
	}

	g, gctx := errgroup.WithContext(ctx)

	server := ship.NewServer(s, slog.Default())
	g.Go(func() error {
		slog.Info("starting block listeners", "blocks", cfg.Blocks)
		if err := server.Serve(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("ship server: %w", err)
		}
		return nil
	})

	g.Go(func() error { return gateLoop(gctx, s, key) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// gateLoop keeps the shipgate session alive, redialing after drops. Clients
// stay connected while the hub is away; only cross-ship features pause.
func gateLoop(ctx context.Context, s *ship.Ship, key []byte) error {
	for {
		link, err := ship.DialGate(ctx, s, key, slog.Default())
		if err != nil {
			slog.Warn("shipgate unavailable", "err", err)
		} else {
			if err := link.Run(ctx); ctx.Err() == nil {
				slog.Warn("shipgate session ended", "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(redialDelay):
		}
	}
}

// loadKey reads the 128-byte shared key this ship authenticates with.
func loadKey(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("key_file not configured")
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	if len(key) != 128 {
		return nil, fmt.Errorf("key file %s: want 128 bytes, got %d", path, len(key))
	}
	return key, nil
}

// logLevel resolves the log level: verbosity flags win over the config.
func logLevel(cfg string) slog.Level {
	switch {
	case *reallyQuiet:
		return slog.LevelError
	case *quiet:
		return slog.LevelWarn
	case *verbose:
		return slog.LevelDebug
	}
	return parseLogLevel(cfg)
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
