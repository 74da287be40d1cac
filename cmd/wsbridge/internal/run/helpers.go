package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/korvid-labs/wsbridge/pkg/bus"
	"github.com/korvid-labs/wsbridge/pkg/config"
	"github.com/korvid-labs/wsbridge/pkg/hostio"
	"github.com/korvid-labs/wsbridge/pkg/logger"
	"github.com/korvid-labs/wsbridge/pkg/registry"
	"github.com/korvid-labs/wsbridge/pkg/router"
	"github.com/korvid-labs/wsbridge/pkg/wsconn"
)

func runCmd(debug, quiet bool, logFile, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := setupLogging(cfg, debug, quiet, logFile); err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus := bus.New(256)
	reg := registry.New(cfg.Queue.Capacity)

	mgr := wsconn.NewManager(wsconn.OptionsFromConfig(cfg), reg, msgBus)
	mgr.UpdateAliases(cfg.Destinations)

	adapter := hostio.New(os.Stdin, os.Stdout, msgBus)
	rt := router.New(reg, mgr, msgBus, cancel)

	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		mgr.UpdateAliases(next.Destinations)
	})
	if err := watcher.Start(); err != nil {
		logger.WarnCF("run", "Config watcher unavailable", map[string]any{"error": err.Error()})
	} else {
		defer watcher.Stop()
	}

	go adapter.RunWriter(ctx)
	go func() {
		// Host closing its channel means the bridge is done.
		if err := adapter.RunReader(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("run", "Host channel failed", map[string]any{"error": err.Error()})
		}
		cancel()
	}()
	go rt.Run(ctx)

	logger.InfoCF("run", "Bridge started", map[string]any{
		"config":       configPath,
		"destinations": len(cfg.Destinations),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.InfoCF("run", "Shutting down on signal", map[string]any{"signal": sig.String()})
		cancel()
	case <-ctx.Done():
	}

	mgr.Shutdown()
	msgBus.Close()
	logger.InfoC("run", "Bridge stopped")
	return nil
}

func setupLogging(cfg *config.Config, debug, quiet bool, logFile string) error {
	if quiet {
		logger.Quiet()
		return nil
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	if logFile == "" {
		logFile = cfg.Log.File
	}
	if logFile != "" {
		if err := logger.SetLogFile(logFile); err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
	}
	return nil
}
