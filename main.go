package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wfunc/simon/config"
	"github.com/wfunc/simon/logger"
	"github.com/wfunc/simon/monitor"
	"github.com/wfunc/simon/server"
	"github.com/wfunc/simon/timer"
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "simon",
	Short: "Simon memory game server",
	Long: `simon serves the Simon memory game over websockets.

Each connected client can open a room, play the sequence the server presents,
and let other clients watch.

Example:
  simon serve --config ./deploy --log-level debug`,
}

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Start the game server",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Flags().Changed("log-level"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory containing config.yaml")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "override log.level")
	rootCmd.AddCommand(serveCmd)
}

func serve(overrideLevel bool) error {
	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if overrideLevel {
		cfg.Log.Level = logLevel
	}

	// Initialize logger
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	timers := timer.NewTimerManager(cfg.Timer.Resolution)
	defer timers.Stop()

	// Initialize Game Server
	gameServer, err := server.NewGameServer(cfg, timers, monitor.NewMonitor(cfg.Metrics.Namespace))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case sig := <-stop:
		logger.Log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
