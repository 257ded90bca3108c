package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/gravityease/internal/config"
	"github.com/spf13/cobra"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the GravityEase configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := config.UnknownKeys(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if validateDump {
		fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, config.Defaults(), unknownKeys)
	}

	return nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  http_port", cfg.Server.HTTPPort, defaultCfg.Server.HTTPPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)

	cyan.Println("\n[therapy]")
	dumpField("  tick_interval", cfg.Therapy.TickInterval, defaultCfg.Therapy.TickInterval, yellow, green)
	dumpField("  user_id", cfg.Therapy.UserID, defaultCfg.Therapy.UserID, yellow, green)

	cyan.Println("\n[sensor]")
	dumpField("  source", cfg.Sensor.Source, defaultCfg.Sensor.Source, yellow, green)
	dumpField("  topic", cfg.Sensor.Topic, defaultCfg.Sensor.Topic, yellow, green)
	dumpField("  invert", cfg.Sensor.Invert, defaultCfg.Sensor.Invert, yellow, green)
	dumpField("  calibration_offset", cfg.Sensor.CalibrationOffset, defaultCfg.Sensor.CalibrationOffset, yellow, green)
	dumpField("  stale_after", cfg.Sensor.StaleAfter, defaultCfg.Sensor.StaleAfter, yellow, green)

	cyan.Println("\n[mqtt]")
	dumpField("  broker", cfg.MQTT.Broker, defaultCfg.MQTT.Broker, yellow, green)
	dumpField("  client_id", cfg.MQTT.ClientID, defaultCfg.MQTT.ClientID, yellow, green)
	dumpField("  username", cfg.MQTT.Username, defaultCfg.MQTT.Username, yellow, green)
	dumpField("  password", redactPassword(cfg.MQTT.Password), redactPassword(defaultCfg.MQTT.Password), yellow, green)

	cyan.Println("\n[voice]")
	dumpField("  enabled", cfg.Voice.Enabled, defaultCfg.Voice.Enabled, yellow, green)
	dumpField("  output", cfg.Voice.Output, defaultCfg.Voice.Output, yellow, green)
	dumpField("  topic", cfg.Voice.Topic, defaultCfg.Voice.Topic, yellow, green)
	dumpField("  language", cfg.Voice.Language, defaultCfg.Voice.Language, yellow, green)
	dumpField("  queue_size", cfg.Voice.QueueSize, defaultCfg.Voice.QueueSize, yellow, green)

	cyan.Println("\n[storage]")
	dumpField("  type", cfg.Storage.Type, defaultCfg.Storage.Type, yellow, green)
	dumpField("  path", cfg.Storage.Path, defaultCfg.Storage.Path, yellow, green)
	cyan.Println("  [storage.redis]")
	dumpField("    host", cfg.Storage.Redis.Host, defaultCfg.Storage.Redis.Host, yellow, green)
	dumpField("    port", cfg.Storage.Redis.Port, defaultCfg.Storage.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Storage.Redis.Password), redactPassword(defaultCfg.Storage.Redis.Password), yellow, green)
	dumpField("    db", cfg.Storage.Redis.DB, defaultCfg.Storage.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Storage.Redis.PoolSize, defaultCfg.Storage.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Storage.Redis.MinIdleConns, defaultCfg.Storage.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Storage.Redis.DialTimeout, defaultCfg.Storage.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Storage.Redis.ReadTimeout, defaultCfg.Storage.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Storage.Redis.WriteTimeout, defaultCfg.Storage.Redis.WriteTimeout, yellow, green)

	cyan.Println("\n[persist]")
	dumpField("  queue_size", cfg.Persist.QueueSize, defaultCfg.Persist.QueueSize, yellow, green)
	dumpField("  max_retry_time", cfg.Persist.MaxRetryTime, defaultCfg.Persist.MaxRetryTime, yellow, green)

	cyan.Println("\n[retention]")
	dumpField("  days", cfg.Retention.Days, defaultCfg.Retention.Days, yellow, green)
	dumpField("  cleanup_time", cfg.Retention.CleanupTime, defaultCfg.Retention.CleanupTime, yellow, green)

	cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	valueStr := fmt.Sprintf("%v", value)

	if reflect.DeepEqual(value, defaultValue) {
		defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
