package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
)

const (
	DefaultLogLevel = "info"

	defaultInterval        = 5.0
	defaultFactor          = 0.0
	defaultSmoothingWindow = 5
	defaultBind            = "0.0.0.0:9848"
	defaultCPUTempPath     = "/sys/class/thermal/thermal_zone0/temp"
	defaultPMDevice        = "/dev/ttyAMA0"
)

// Config is the full configuration surface of the exporter. Loaded
// once at startup; never hot-reloaded.
type Config struct {
	// Sampling
	Interval        float64 `mapstructure:"interval"`         // minimum seconds between sampling cycles
	PMInterval      float64 `mapstructure:"pm_interval"`      // slow tier for the serial PM sensor, 0 = every cycle
	Factor          float64 `mapstructure:"factor"`           // CPU heat compensation factor, 0 disables
	SmoothingWindow int     `mapstructure:"smoothing_window"` // CPU temperature moving average window
	Enviro          bool    `mapstructure:"enviro"`           // basic Enviro board: no gas and PM sensors
	LogLevel        string  `mapstructure:"log_level"`

	// Hardware
	I2CBus      string `mapstructure:"i2c_bus"`       // empty = first available
	PMDevice    string `mapstructure:"pm_device"`     // PMS5003 serial port
	CPUTempPath string `mapstructure:"cpu_temp_path"` // aux CPU temperature sysfs node

	// Sinks
	Bind      string          `mapstructure:"bind"` // pull endpoint listen address
	Luftdaten LuftdatenConfig `mapstructure:"luftdaten"`
	Influx    InfluxConfig    `mapstructure:"influxdb"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Graphite  GraphiteConfig  `mapstructure:"graphite"`
}

type LuftdatenConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Interval float64 `mapstructure:"interval"`
	URL      string  `mapstructure:"url"`
	SensorID string  `mapstructure:"sensor_id"` // empty = raspi-<cpu serial>
}

type InfluxConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Interval float64 `mapstructure:"interval"`
	URL      string  `mapstructure:"url"`
	Token    string  `mapstructure:"token"`
	Org      string  `mapstructure:"org"`
	Bucket   string  `mapstructure:"bucket"`
	Location string  `mapstructure:"location"`
}

type MQTTConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Interval float64 `mapstructure:"interval"`
	Broker   string  `mapstructure:"broker"`
	ClientID string  `mapstructure:"client_id"`
	Topic    string  `mapstructure:"topic"`
}

type JournalConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Interval  float64 `mapstructure:"interval"`
	DBPath    string  `mapstructure:"database"`
	BatchSize int     `mapstructure:"batch_size"`
}

type GraphiteConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Interval float64 `mapstructure:"interval"`
	Address  string  `mapstructure:"address"` // host:port, UDP
	Prefix   string  `mapstructure:"prefix"`
}

// Load reads configuration from flags, environment and the optional
// TOML config file. Flags override the file, the file overrides
// defaults. A fresh flag set is used on every call so tests can load
// repeatedly.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("enviro-exporter", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	configFlag := fs.String("config", "", "Path to config file")
	fs.Float64("interval", defaultInterval, "Minimum seconds between sampling cycles")
	fs.Float64("factor", defaultFactor, "CPU heat compensation factor (0 disables)")
	fs.Int("smoothing-window", defaultSmoothingWindow, "CPU temperature smoothing window size")
	fs.Bool("enviro", false, "Basic Enviro board without gas and PM sensors")
	fs.String("bind", defaultBind, "Listen address of the metrics endpoint")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("interval", defaultInterval)
	v.SetDefault("pm_interval", 0.0)
	v.SetDefault("factor", defaultFactor)
	v.SetDefault("smoothing_window", defaultSmoothingWindow)
	v.SetDefault("enviro", false)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("i2c_bus", "")
	v.SetDefault("pm_device", defaultPMDevice)
	v.SetDefault("cpu_temp_path", defaultCPUTempPath)
	v.SetDefault("bind", defaultBind)
	v.SetDefault("luftdaten.interval", 30.0)
	v.SetDefault("luftdaten.url", "https://api.luftdaten.info/v1/push-sensor-data/")
	v.SetDefault("influxdb.interval", 5.0)
	v.SetDefault("influxdb.location", "")
	v.SetDefault("mqtt.interval", 5.0)
	v.SetDefault("mqtt.client_id", "enviro-exporter")
	v.SetDefault("mqtt.topic", "enviro/snapshot")
	v.SetDefault("journal.interval", 5.0)
	v.SetDefault("journal.database", "/var/lib/enviro-exporter/journal.db")
	v.SetDefault("journal.batch_size", 16)
	v.SetDefault("graphite.interval", 10.0)
	v.SetDefault("graphite.prefix", "enviro")

	v.SetEnvPrefix("ENVIRO_EXPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("ENVIRO_EXPORTER_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err).
				WithMessage("Failed to read config file")
		}
	} else {
		v.SetConfigName("enviro-exporter")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err).
					WithMessage("Failed to read config file")
			}
		}
	}

	// Command line flags override everything
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects malformed values outright. Nothing is silently
// clamped; a bad interval is fatal at startup.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.PMInterval < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.PMInterval)
	}
	if c.Factor < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "compensation factor must not be negative").
			WithData(c.Factor)
	}
	if c.SmoothingWindow < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "smoothing window must be at least 1").
			WithData(c.SmoothingWindow)
	}
	if c.Bind == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "bind address must not be empty")
	}
	if !isValidLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	for _, sink := range []struct {
		name     string
		enabled  bool
		interval float64
	}{
		{"luftdaten", c.Luftdaten.Enabled, c.Luftdaten.Interval},
		{"influxdb", c.Influx.Enabled, c.Influx.Interval},
		{"mqtt", c.MQTT.Enabled, c.MQTT.Interval},
		{"journal", c.Journal.Enabled, c.Journal.Interval},
		{"graphite", c.Graphite.Enabled, c.Graphite.Interval},
	} {
		if sink.enabled && sink.interval <= 0 {
			return errFactory.WithMessage(errors.ErrInvalidInterval, "sink interval must be positive").
				WithData(sink.name)
		}
	}

	if c.Journal.Enabled && c.Journal.BatchSize < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "journal batch size must be at least 1").
			WithData(c.Journal.BatchSize)
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warning", "warn", "error":
		return true
	default:
		return false
	}
}

// SampleInterval returns the sampling cadence as a duration.
func (c *Config) SampleInterval() time.Duration {
	return secondsToDuration(c.Interval)
}

// PMSampleInterval returns the slow tier cadence for the PM sensor.
// Zero means the PM sensor is read on every sampling cycle.
func (c *Config) PMSampleInterval() time.Duration {
	return secondsToDuration(c.PMInterval)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
