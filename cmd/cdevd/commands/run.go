package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Orochimarufan/cdev/pkg/config"
	"github.com/Orochimarufan/cdev/pkg/daemon"
	"github.com/Orochimarufan/cdev/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		coldplug bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device event daemon",
		Long: `Run the daemon: load the rule files, optionally replay the devices
already present in sysfs as add events, and keep the rules fresh by
watching the rule directories for changes.`,
		Example: `  # Run with the default configuration
  cdevd run

  # Run with a config file, skipping the coldplug scan
  cdevd run --config /etc/cdev/config.yaml --no-coldplug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.New(telemetryConfig(cfg, cmd.Root().Version))
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			log := tel.Logger.Component("main")
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("telemetry shutdown failed")
				}
			}()

			d, err := daemon.New(ctx, cfg, tel)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := tel.Metrics.StartMetricsServer(log); err != nil {
				return fmt.Errorf("starting metrics server: %w", err)
			}

			if err := d.Watch(ctx); err != nil {
				return fmt.Errorf("watching rule files: %w", err)
			}

			if coldplug {
				if err := d.Coldplug(ctx); err != nil {
					return err
				}
			}

			log.Info().Msg("daemon running")
			<-ctx.Done()
			log.Info().Msg("shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&coldplug, "coldplug", true, "replay devices present in sysfs as add events")

	return cmd
}

// loadConfig loads the config file named by the global flag, or the
// defaults when none is given. The verbose flag lowers the log level.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// telemetryConfig maps the daemon config onto the telemetry stack's.
func telemetryConfig(cfg *config.Config, version string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = version

	tc.Logging.Level = cfg.Log.Level
	if cfg.Log.Format != "" {
		tc.Logging.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		tc.Logging.Output = cfg.Log.Output
	}

	tc.Metrics.Enabled = cfg.Metrics.Enabled
	if cfg.Metrics.ListenAddress != "" {
		tc.Metrics.ListenAddress = cfg.Metrics.ListenAddress
	}

	tc.Tracing.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		tc.Tracing.Exporter = cfg.Tracing.Exporter
	}
	tc.Tracing.Endpoint = cfg.Tracing.Endpoint
	tc.Tracing.SamplingRate = cfg.Tracing.SamplingRate

	return tc
}
