package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/shipgate"
)

const ConfigPath = "config/shipgate.yaml"

const version = "0.1.0"

var (
	showVersion = flag.Bool("version", false, "print the version and exit")
	verbose     = flag.Bool("verbose", false, "log at debug level")
	quiet       = flag.Bool("quiet", false, "log warnings and errors only")
	reallyQuiet = flag.Bool("reallyquiet", false, "log errors only")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("solvane shipgate " + version)
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
	if p := os.Getenv("SOLVANE_SHIPGATE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadShipgate(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	slog.Info("solvane shipgate starting", "log_level", cfg.LogLevel)
	slog.Info("config loaded", "bind", cfg.BindAddress, "port", cfg.Port,
		"timeout", cfg.Timeout)

	// Connect to database
	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	// Run migrations
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	ships := db.NewShipRepository(database.Pool())
	accounts := db.NewAccountRepository(database.Pool())
	chars := db.NewCharacterRepository(database.Pool())
	bans := db.NewBanRepository(database.Pool())

	server := shipgate.NewServer(cfg, ships, accounts, chars, bans, slog.Default())

	slog.Info("accepting ships")
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("shipgate: %w", err)
	}
	return nil
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
