package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/solvane/solvane/internal/config"
	"github.com/solvane/solvane/internal/db"
	"github.com/solvane/solvane/internal/login"
	"github.com/solvane/solvane/internal/netaddr"
)

const ConfigPath = "config/loginserver.yaml"

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
		fmt.Println("solvane login server " + version)
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
	if p := os.Getenv("SOLVANE_LOGIN_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadLoginServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	slog.Info("solvane login server starting", "log_level", cfg.LogLevel)
	slog.Info("config loaded", "bind", cfg.BindAddress,
		"port_dc", cfg.PortDC, "port_pc", cfg.PortPC, "port_gc", cfg.PortGC,
		"port_web", cfg.PortWeb)

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

	netw, err := buildNetwork(cfg.OverrideAddr)
	if err != nil {
		return err
	}

	accounts := db.NewAccountRepository(database.Pool())
	bans := db.NewBanRepository(database.Pool())
	ships := db.NewShipRepository(database.Pool())

	server := login.NewServer(cfg, accounts, bans, ships, netw, slog.Default())

	slog.Info("starting login listeners")
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("login server: %w", err)
	}
	return nil
}

// buildNetwork discovers the local interface and applies the configured
// public address. Redirects fall back to ship external addresses when
// discovery fails.
func buildNetwork(override string) (netaddr.Network, error) {
	var netw netaddr.Network

	if override != "" {
		addr, err := netip.ParseAddr(override)
		if err != nil {
			return netaddr.Network{}, fmt.Errorf("parsing override_addr: %w", err)
		}
		netw.Override = addr
	}

	local, mask, err := netaddr.Discover()
	if err != nil {
		slog.Warn("interface discovery failed; LAN redirects disabled", "err", err)
		return netw, nil
	}
	netw.LocalAddr, netw.Netmask = local, mask
	slog.Info("network discovered", "local", local.String(), "netmask", mask.String())
	return netw, nil
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
