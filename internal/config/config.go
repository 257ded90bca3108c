package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Therapy   TherapyConfig   `mapstructure:"therapy"`
	Sensor    SensorConfig    `mapstructure:"sensor"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Voice     VoiceConfig     `mapstructure:"voice"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Persist   PersistConfig   `mapstructure:"persist"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig defines listen addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// TherapyConfig defines the measurement loop
type TherapyConfig struct {
	TickInterval string `mapstructure:"tick_interval"`
	UserID       string `mapstructure:"user_id"`
}

// SensorConfig defines where tilt readings come from
type SensorConfig struct {
	Source            string  `mapstructure:"source"` // "mock" or "mqtt"
	Topic             string  `mapstructure:"topic"`
	Invert            bool    `mapstructure:"invert"`
	CalibrationOffset float64 `mapstructure:"calibration_offset"`
	StaleAfter        string  `mapstructure:"stale_after"`
}

// MQTTConfig defines the broker shared by the sensor and voice outputs
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VoiceConfig defines voice guidance output
type VoiceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Output    string `mapstructure:"output"` // "log" or "mqtt"
	Topic     string `mapstructure:"topic"`
	Language  string `mapstructure:"language"`
	QueueSize int    `mapstructure:"queue_size"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "bolt" or "redis"
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// PersistConfig defines the asynchronous commit worker
type PersistConfig struct {
	QueueSize    int    `mapstructure:"queue_size"`
	MaxRetryTime string `mapstructure:"max_retry_time"`
}

// RetentionConfig defines cleanup of old records
type RetentionConfig struct {
	Days        int    `mapstructure:"days"`
	CleanupTime string `mapstructure:"cleanup_time"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("GRAVITYEASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	v.SetDefault("therapy.tick_interval", "100ms")
	v.SetDefault("therapy.user_id", "local_user")

	v.SetDefault("sensor.source", "mock")
	v.SetDefault("sensor.topic", "gravityease/sensor/tilt")
	v.SetDefault("sensor.invert", true)
	v.SetDefault("sensor.calibration_offset", 0.0)
	v.SetDefault("sensor.stale_after", "2s")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "gravityease")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("voice.enabled", true)
	v.SetDefault("voice.output", "log")
	v.SetDefault("voice.topic", "gravityease/voice")
	v.SetDefault("voice.language", "ko")
	v.SetDefault("voice.queue_size", 16)

	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/gravityease/gravityease.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	v.SetDefault("persist.queue_size", 64)
	v.SetDefault("persist.max_retry_time", "2m")

	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.cleanup_time", "03:00")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if d, err := time.ParseDuration(cfg.Therapy.TickInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid tick interval: %q", cfg.Therapy.TickInterval)
	}
	if cfg.Therapy.UserID == "" {
		return fmt.Errorf("therapy user_id is required")
	}

	switch cfg.Sensor.Source {
	case "mock", "mqtt":
	default:
		return fmt.Errorf("unsupported sensor source: %s", cfg.Sensor.Source)
	}

	switch cfg.Voice.Output {
	case "log", "mqtt":
	default:
		return fmt.Errorf("unsupported voice output: %s", cfg.Voice.Output)
	}
	switch cfg.Voice.Language {
	case "ko", "en":
	default:
		return fmt.Errorf("unsupported voice language: %s", cfg.Voice.Language)
	}

	if (cfg.Sensor.Source == "mqtt" || cfg.Voice.Output == "mqtt") && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	if cfg.Retention.Days < 0 {
		return fmt.Errorf("invalid retention days: %d", cfg.Retention.Days)
	}
	if _, err := time.Parse("15:04", cfg.Retention.CleanupTime); err != nil {
		return fmt.Errorf("invalid cleanup time %q: %w", cfg.Retention.CleanupTime, err)
	}

	return nil
}

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// UnknownKeys lists keys in the file at configPath that no setting reads.
func UnknownKeys(configPath string) ([]string, error) {
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return nil, err
	}

	known := viper.New()
	setDefaults(known)
	valid := make(map[string]bool)
	for _, key := range known.AllKeys() {
		valid[key] = true
	}

	unknown := []string{}
	for _, key := range file.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// Duration parses a duration string with a fallback
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// isNotExist reports a missing explicit config file, which viper returns as a
// plain fs error rather than ConfigFileNotFoundError.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
