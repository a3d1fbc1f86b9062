package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backends the link manager can run on
const (
	BackendBluetooth = "bluetooth"
	BackendUSB       = "usb"
)

// Config represents the application configuration
type Config struct {
	Link    LinkConfig    `mapstructure:"link"`
	Serial  SerialConfig  `mapstructure:"serial"`
	USB     USBConfig     `mapstructure:"usb"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// LinkConfig selects how printers are found and tracked
type LinkConfig struct {
	Backend           string            `mapstructure:"backend"`
	Protocol          string            `mapstructure:"protocol"`
	ProtocolMap       map[string]string `mapstructure:"protocol_map"`
	FilterDisconnects bool              `mapstructure:"filter_disconnects"`
	PollInterval      time.Duration     `mapstructure:"poll_interval"`
}

// SerialConfig represents RFCOMM serial port configuration
type SerialConfig struct {
	BaudRate       int           `mapstructure:"baud_rate"`
	Channel        int           `mapstructure:"channel"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// USBConfig represents USB transport configuration
type USBConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from path (or zebra-print.yaml in the working
// directory when path is empty), environment variables prefixed with
// ZEBRA_PRINT_ and defaults. A missing default config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ZEBRA_PRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("zebra-print")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Link defaults
	v.SetDefault("link.backend", BackendBluetooth)
	v.SetDefault("link.protocol", "com.zebra.rawport")
	v.SetDefault("link.protocol_map", map[string]string{
		"00001101-0000-1000-8000-00805f9b34fb": "com.zebra.rawport", // serial port profile
		"usb:0a5f":                             "com.zebra.rawport", // Zebra Technologies vendor id
	})
	v.SetDefault("link.filter_disconnects", false)
	v.SetDefault("link.poll_interval", "2s")

	// Serial defaults
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.channel", 1)
	v.SetDefault("serial.read_timeout", "3s")
	v.SetDefault("serial.connect_timeout", "15s")

	v.SetDefault("usb.write_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// validate validates the configuration
func validate(config *Config) error {
	validBackends := []string{BackendBluetooth, BackendUSB}
	if !slices.Contains(validBackends, config.Link.Backend) {
		return fmt.Errorf("link.backend must be one of: %v", validBackends)
	}
	if config.Link.Protocol == "" {
		return fmt.Errorf("link.protocol is required")
	}
	if config.Link.PollInterval <= 0 {
		return fmt.Errorf("link.poll_interval must be positive")
	}
	if config.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if config.Serial.Channel < 1 || config.Serial.Channel > 30 {
		return fmt.Errorf("serial.channel must be between 1 and 30")
	}

	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	validFormats := []string{"json", "console"}
	if !slices.Contains(validFormats, config.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %v", validFormats)
	}

	return nil
}
