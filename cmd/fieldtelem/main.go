package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fieldtelem/internal/config"
)

type cliFlags struct {
	configPath    string
	mode          string
	port          string
	gpsdAddr      string
	pollTimeout   time.Duration
	timeoutPolicy string
	logLevel      string
	metricsListen string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:           "fieldtelem [flags] <host>",
		Short:         "relay operator lines or gpsd fixes to a telemetry collector",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runMain(cmd, cfg, args[0])
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "path to YAML config")
	fl.StringVarP(&f.mode, "mode", "m", "relay", "relay or monitor")
	fl.StringVarP(&f.port, "port", "p", "12345", "collector TCP port")
	fl.StringVar(&f.gpsdAddr, "gpsd", "127.0.0.1:2947", "gpsd host:port (monitor mode)")
	fl.DurationVar(&f.pollTimeout, "poll-timeout", 5*time.Second, "max wait for gpsd data per poll")
	fl.StringVar(&f.timeoutPolicy, "timeout-policy", "retry", "on poll timeout: retry or fatal_after_timeout")
	fl.StringVar(&f.logLevel, "log-level", "info", "log level")
	fl.StringVar(&f.metricsListen, "metrics-listen", "", "serve Prometheus metrics on host:port")
	return cmd
}

// loadConfig reads the config file and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command, f cliFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("port") {
		cfg.Relay.Port = f.port
	}
	if changed("gpsd") {
		cfg.GPS.GPSDAddr = f.gpsdAddr
	}
	if changed("poll-timeout") {
		cfg.GPS.PollTimeout = f.pollTimeout
	}
	if changed("timeout-policy") {
		cfg.GPS.TimeoutPolicy = f.timeoutPolicy
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("metrics-listen") {
		cfg.Metrics.Listen = f.metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runMain(cmd *cobra.Command, cfg config.Config, host string) error {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	ctx := context.Background()
	if cfg.Mode == "monitor" {
		// Relay mode blocks on stdin, so it keeps the default signal
		// disposition; monitor mode shuts down in order on SIGINT/SIGTERM.
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}

	a := newApp(cfg, host, log)
	a.stdin = cmd.InOrStdin()
	a.stdout = cmd.OutOrStdout()
	return a.run(ctx)
}
