// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

// EnvPrefix prefixes every environment override (DMXSTAT_SERIAL_PORT, ...)
const EnvPrefix = "DMXSTAT"

// SerialConfig selects the receive port
type SerialConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Baud int    `mapstructure:"baud" yaml:"baud"`
}

// DMXConfig configures the receive engine
type DMXConfig struct {
	Monitored     []int `mapstructure:"monitored" yaml:"monitored"`
	ResyncOnStart bool  `mapstructure:"resyncOnStart" yaml:"resyncOnStart"`
}

// LumberjackConfig configures the rotating log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig holds log level and outputs
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// HTTPConfig configures the status server
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable" yaml:"enable"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`

	// Basic auth on every route except /healthz, enabled when both are set
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Frame events per second on /ws, 0 sends every frame
	StreamFrameRate float64 `mapstructure:"streamFrameRate" yaml:"streamFrameRate"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Config is the top level configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial" yaml:"serial"`
	DMX     DMXConfig     `mapstructure:"dmx" yaml:"dmx"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	HTTP    HTTPConfig    `mapstructure:"http" yaml:"http"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// New returns a viper instance with defaults and environment overrides
// applied. Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional YAML/TOML/JSON file into v and unmarshals the result.
// If path is empty, DMXSTAT_CONFIG is consulted, then ./dmxstat.yaml.
// A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dmxstat")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the engine would otherwise reject at start-up
func (c *Config) Validate() error {
	for _, a := range c.DMX.Monitored {
		if a < 0 || a >= dmx.SlotCount {
			return fmt.Errorf("dmx.monitored: %w: %d", dmx.ErrInvalidAddress, a)
		}
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if (c.HTTP.Username == "") != (c.HTTP.Password == "") {
		return errors.New("http.username and http.password must be set together")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", dmx.BaudRate)

	v.SetDefault("dmx.monitored", []int{})
	v.SetDefault("dmx.resyncOnStart", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("http.enable", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.username", "")
	v.SetDefault("http.password", "")
	v.SetDefault("http.streamFrameRate", 10.0)

	v.SetDefault("metrics.path", "/metrics")
}
