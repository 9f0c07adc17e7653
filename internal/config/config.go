// Package config loads the cockpit service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/types"
)

// Config is the top-level service configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Mirror    MirrorConfig    `yaml:"mirror"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Touchdown TouchdownConfig `yaml:"touchdown"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// RedisConfig is the host bridge connection.
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// MirrorConfig copies reports, state changes and landings to a message
// broker.
type MirrorConfig struct {
	Backend     string      `yaml:"backend"` // "mqtt", "kafka" or empty to disable
	TopicPrefix string      `yaml:"topic_prefix"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
	Kafka       KafkaConfig `yaml:"kafka"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // tcp://host:port
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// HardwareConfig describes the optional cockpit panel.
type HardwareConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Chip        string         `yaml:"chip"`
	InputDevice string         `yaml:"input_device"`
	Lamps       LampConfig     `yaml:"lamps"`
	Buttons     map[int]string `yaml:"buttons"` // key code -> command
}

// LampConfig holds GPIO line offsets; a negative offset means no lamp.
type LampConfig struct {
	ThrottleArmed      int `yaml:"throttle_armed"`
	TouchdownEnabled   int `yaml:"touchdown_enabled"`
	UnsupportedVehicle int `yaml:"unsupported_vehicle"`
}

type TouchdownConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SettleTime     time.Duration `yaml:"settle_time"`
	CoarseInterval time.Duration `yaml:"coarse_interval"`
	FineInterval   time.Duration `yaml:"fine_interval"`
	NoseBump       float64       `yaml:"nose_bump"`
	FastMotion     bool          `yaml:"fast_motion"`
	AnnounceRate   bool          `yaml:"announce_rate"`
}

type ThrottleConfig struct {
	MaxAirspeed       float64         `yaml:"max_airspeed"`
	MinFlapAngle      float64         `yaml:"min_flap_angle"`
	MaxHeight         float64         `yaml:"max_height"`
	ReverseFloor      float64         `yaml:"reverse_floor"`
	CoarseInterval    time.Duration   `yaml:"coarse_interval"`
	FineInterval      time.Duration   `yaml:"fine_interval"`
	AnnounceLifecycle bool            `yaml:"announce_lifecycle"`
	Profiles          []ProfileConfig `yaml:"profiles"`
}

// ProfileConfig adds a supported vehicle. Unset identifiers use the
// standard ones.
type ProfileConfig struct {
	ID                string `yaml:"id"`
	Match             string `yaml:"match"`
	Name              string `yaml:"name"`
	ThrottleDown      string `yaml:"throttle_down"`
	ReverseThrust     string `yaml:"reverse_thrust"`
	ThrottleRatio     string `yaml:"throttle_ratio"`
	IndicatedAirspeed string `yaml:"indicated_airspeed"`
	AllWheelsOnGround string `yaml:"all_wheels_on_ground"`
	FlapAngle         string `yaml:"flap_angle"`
	GearDeployRatio   string `yaml:"gear_deploy_ratio"`
	HeightAboveGround string `yaml:"height_above_ground"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	td := automation.DefaultTouchdownConfig()
	th := automation.DefaultThrottleConfig()
	return &Config{
		Log:   LogConfig{Level: "info"},
		Redis: RedisConfig{Host: "127.0.0.1", Port: 6379},
		HTTP:  HTTPConfig{Addr: ":8090"},
		Mirror: MirrorConfig{
			TopicPrefix: "cockpit",
			MQTT: MQTTConfig{
				Broker:   "tcp://localhost:1883",
				ClientID: "cockpit-service",
			},
		},
		Hardware: HardwareConfig{
			Chip:        "gpiochip0",
			InputDevice: "/dev/input/by-path/cockpit-buttons",
			Lamps: LampConfig{
				ThrottleArmed:      -1,
				TouchdownEnabled:   -1,
				UnsupportedVehicle: -1,
			},
		},
		Touchdown: TouchdownConfig{
			Enabled:        td.Enabled,
			SettleTime:     td.SettleTime,
			CoarseInterval: td.CoarseInterval,
			FineInterval:   td.FineInterval,
			NoseBump:       td.NoseBump,
		},
		Throttle: ThrottleConfig{
			MaxAirspeed:    th.MaxAirspeed,
			MinFlapAngle:   th.MinFlapAngle,
			MaxHeight:      th.MaxHeight,
			ReverseFloor:   th.ReverseFloor,
			CoarseInterval: th.CoarseInterval,
			FineInterval:   th.FineInterval,
		},
	}
}

// Load reads a YAML config file, then applies environment overrides. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file when present. Variables
// already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides settings from COCKPIT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("COCKPIT_REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("COCKPIT_REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COCKPIT_REDIS_PORT: %w", err)
		}
		c.Redis.Port = port
	}
	if v := os.Getenv("COCKPIT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("COCKPIT_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("COCKPIT_MQTT_BROKER"); v != "" {
		c.Mirror.MQTT.Broker = v
		if c.Mirror.Backend == "" {
			c.Mirror.Backend = "mqtt"
		}
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		fail("redis.port out of range: %d", c.Redis.Port)
	}
	for name, d := range map[string]time.Duration{
		"touchdown.coarse_interval": c.Touchdown.CoarseInterval,
		"touchdown.fine_interval":   c.Touchdown.FineInterval,
		"throttle.coarse_interval":  c.Throttle.CoarseInterval,
		"throttle.fine_interval":    c.Throttle.FineInterval,
	} {
		if d <= 0 {
			fail("%s must be positive, got %v", name, d)
		}
	}
	if c.Touchdown.SettleTime < 0 {
		fail("touchdown.settle_time must not be negative")
	}
	if c.Touchdown.NoseBump < 0 {
		fail("touchdown.nose_bump must not be negative")
	}
	for name, v := range map[string]float64{
		"throttle.max_airspeed":   c.Throttle.MaxAirspeed,
		"throttle.min_flap_angle": c.Throttle.MinFlapAngle,
		"throttle.max_height":     c.Throttle.MaxHeight,
		"throttle.reverse_floor":  c.Throttle.ReverseFloor,
	} {
		if v < 0 {
			fail("%s must not be negative, got %v", name, v)
		}
	}
	switch c.Mirror.Backend {
	case "":
	case "mqtt":
		if c.Mirror.MQTT.Broker == "" {
			fail("mirror.mqtt.broker is required")
		}
	case "kafka":
		if len(c.Mirror.Kafka.Brokers) == 0 {
			fail("mirror.kafka.brokers is required")
		}
	default:
		fail("unknown mirror backend: %s", c.Mirror.Backend)
	}
	for i, p := range c.Throttle.Profiles {
		if p.Match == "" {
			fail("throttle.profiles[%d]: match is required", i)
		}
	}
	for code, name := range c.Hardware.Buttons {
		if _, err := types.ParseCommand(name); err != nil {
			fail("hardware.buttons[%d]: %v", code, err)
		}
	}
	return result.ErrorOrNil()
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logger.LogLevel {
	level, _ := logger.ParseLevel(c.Log.Level)
	return level
}

// TouchdownSettings converts the touchdown section.
func (c *Config) TouchdownSettings() automation.TouchdownConfig {
	t := c.Touchdown
	return automation.TouchdownConfig{
		Enabled:        t.Enabled,
		SettleTime:     t.SettleTime,
		CoarseInterval: t.CoarseInterval,
		FineInterval:   t.FineInterval,
		NoseBump:       t.NoseBump,
		FastMotion:     t.FastMotion,
		AnnounceRate:   t.AnnounceRate,
	}
}

// ThrottleSettings converts the throttle section.
func (c *Config) ThrottleSettings() automation.ThrottleConfig {
	t := c.Throttle
	cfg := automation.DefaultThrottleConfig()
	cfg.MaxAirspeed = t.MaxAirspeed
	cfg.MinFlapAngle = t.MinFlapAngle
	cfg.MaxHeight = t.MaxHeight
	cfg.ReverseFloor = t.ReverseFloor
	cfg.CoarseInterval = t.CoarseInterval
	cfg.FineInterval = t.FineInterval
	cfg.AnnounceLifecycle = t.AnnounceLifecycle
	return cfg
}

// VehicleProfiles returns the configured profiles followed by the built-in
// ones, so configuration can override a built-in match.
func (c *Config) VehicleProfiles() []automation.Profile {
	profiles := make([]automation.Profile, 0, len(c.Throttle.Profiles)+len(automation.BuiltinProfiles))
	for _, p := range c.Throttle.Profiles {
		profiles = append(profiles, automation.Profile{
			ID:                p.ID,
			Match:             p.Match,
			Name:              p.Name,
			ThrottleDown:      p.ThrottleDown,
			ReverseThrust:     p.ReverseThrust,
			ThrottleRatio:     p.ThrottleRatio,
			IndicatedAirspeed: p.IndicatedAirspeed,
			AllWheelsOnGround: p.AllWheelsOnGround,
			FlapAngle:         p.FlapAngle,
			GearDeployRatio:   p.GearDeployRatio,
			HeightAboveGround: p.HeightAboveGround,
		})
	}
	return append(profiles, automation.BuiltinProfiles...)
}

// ButtonCommands returns the panel key map with parsed commands. Invalid
// entries are skipped; Validate reports them.
func (c *Config) ButtonCommands() map[uint16]types.Command {
	out := make(map[uint16]types.Command, len(c.Hardware.Buttons))
	for code, name := range c.Hardware.Buttons {
		cmd, err := types.ParseCommand(name)
		if err != nil || code < 0 || code > 0xffff {
			continue
		}
		out[uint16(code)] = cmd
	}
	return out
}
