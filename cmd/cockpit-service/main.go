package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cockpit-service/internal/api"
	"cockpit-service/internal/clock"
	"cockpit-service/internal/config"
	"cockpit-service/internal/core"
	"cockpit-service/internal/hardware"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/messaging"
	"cockpit-service/internal/metrics"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cockpit-service",
		Short:        "Cockpit automation for a simulated vehicle",
		Long:         `Runs the touchdown motion and landing throttle machines against the simulator host over Redis.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "/etc/cockpit-service/config.yaml", "Path to the YAML configuration")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before the configuration")
	root.PersistentFlags().StringVar(&logLevel, "log", "", "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG or a level name)")

	root.AddCommand(newProfilesCmd(), newCheckConfigCmd())
	return root
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the vehicles the throttle manager supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMATCH\tNAME")
			for _, p := range cfg.VehicleProfiles() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Match, p.Name)
			}
			return w.Flush()
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", configPath)
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	l := logger.NewStdout(cfg.LogLevel())
	l.Infof("Starting cockpit service...")

	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := core.Options{
		Profiles: cfg.VehicleProfiles(),
		Clock:    clock.Real{},
		Metrics:  collector,
	}
	td := cfg.TouchdownSettings()
	th := cfg.ThrottleSettings()
	opts.Touchdown = &td
	opts.Throttle = &th

	if cfg.Mirror.Backend != "" {
		mirror := messaging.NewMirror(messaging.MirrorOptions{
			Backend:      cfg.Mirror.Backend,
			TopicPrefix:  cfg.Mirror.TopicPrefix,
			MQTTBroker:   cfg.Mirror.MQTT.Broker,
			MQTTClientID: cfg.Mirror.MQTT.ClientID,
			KafkaBrokers: cfg.Mirror.Kafka.Brokers,
		}, l.WithTag("mirror"))
		if err := mirror.Connect(); err != nil {
			l.Warnf("Event mirror disabled: %v", err)
		} else {
			opts.Mirror = mirror
		}
	}

	var panel core.PanelIO
	if cfg.Hardware.Enabled {
		panel = hardware.NewLinuxPanel(panelConfig(cfg), l.WithTag("panel"))
	}

	redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l.WithTag("redis"), messaging.Callbacks{})
	system := core.NewCockpitSystem(redis, panel, opts, l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := system.Start(ctx); err != nil {
		return fmt.Errorf("failed to start system: %w", err)
	}
	defer system.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return system.Run(gctx)
	})

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewRouter(system, collector.Handler(), l.WithTag("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			l.Infof("HTTP listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	l.Infof("System started successfully")
	err = g.Wait()
	l.Infof("Shutting down...")
	return err
}

// panelConfig maps the hardware section onto the panel, leaving out lamps
// without a line.
func panelConfig(cfg *config.Config) hardware.PanelConfig {
	lamps := make(map[string]int)
	for name, offset := range map[string]int{
		hardware.LampThrottleArmed:      cfg.Hardware.Lamps.ThrottleArmed,
		hardware.LampTouchdownEnabled:   cfg.Hardware.Lamps.TouchdownEnabled,
		hardware.LampUnsupportedVehicle: cfg.Hardware.Lamps.UnsupportedVehicle,
	} {
		if offset >= 0 {
			lamps[name] = offset
		}
	}
	return hardware.PanelConfig{
		Chip:        cfg.Hardware.Chip,
		InputDevice: cfg.Hardware.InputDevice,
		Lamps:       lamps,
		Buttons:     cfg.ButtonCommands(),
	}
}
