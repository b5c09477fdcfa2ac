package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/StoreStation/vibeshitcraft-core/pkg/config"
	"github.com/StoreStation/vibeshitcraft-core/pkg/gameplay"
	"github.com/StoreStation/vibeshitcraft-core/pkg/server"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	configPath := findConfigFlag(os.Args[1:])
	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			logger.Fatal("failed to load config file", zap.Error(err))
		}
		cfg = loaded
	}

	// The full config surface is bound on one FlagSet alongside -config
	// itself (registered but ignored here, its value already consumed
	// above) so flags always win over whatever LoadFile produced,
	// matching the teacher's flag-first cmd/server/main.go.
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	fs.String("config", "", "Path to a YAML config file (optional; flags override it)")
	config.BindFlags(fs, &cfg)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}
	srv.RegisterHandler(server.PacketChatMessage, gameplay.HandleChat)

	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("VibeShitCraft world-streaming core started",
		zap.String("address", cfg.BindAddress),
		zap.Bool("onlineMode", cfg.OnlineMode),
		zap.Int("viewDistance", cfg.ViewDistance),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := srv.Stop(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// findConfigFlag scans for -config/--config ahead of the real flag
// parse below, since the config file (if any) must be loaded before
// BindFlags runs so flags can override its values.
func findConfigFlag(args []string) string {
	for i, a := range args {
		if a == "-config" || a == "--config" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(a, "-config=") {
			return strings.TrimPrefix(a, "-config=")
		}
		if strings.HasPrefix(a, "--config=") {
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
