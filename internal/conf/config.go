// Package conf handles loading and validation of application settings
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// RotationType defines the log rotation strategy
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig holds settings for a rotating log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to the log file
	Rotation RotationType // type of log rotation
	MaxSize  int64        // max size in bytes for rotation
}

// MainSettings holds general application settings
type MainSettings struct {
	Name string    // name of this node, used in logs and events
	Log  LogConfig // application log settings
}

// SQLiteSettings holds the SQLite output configuration
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite output
	Path    string // path to the SQLite database file
}

// MySQLSettings holds the MySQL output configuration
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings selects the persistent store backend
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// ServiceSettings holds the HTTP API server configuration
type ServiceSettings struct {
	Address string // listen address, e.g. ":8585"
}

// InventorySettings holds the volume inference and label provisioning knobs.
// These are explicit configuration passed into the engines at call time, never
// module-level mutable globals.
type InventorySettings struct {
	StandardPourMl    float64 // single pour volume used for pours-remaining estimates
	FullTolerancePct  float64 // percent over 100 before an overfull warning is raised
	LowFillWarnPct    float64 // percent under which a nonzero fill is flagged implausibly low
	LabelPrefix       string  // fixed prefix for generated label codes
	LabelSuffixLength int     // random alphanumeric suffix length
}

// AnomalySettings holds the cross-session variance thresholds. Operators tune
// sensitivity per establishment, so these are config, not constants.
type AnomalySettings struct {
	VarianceDropPct float64 // flag when percentFull drops by more than this (negative)
	VarianceGainPct float64 // flag when percentFull rises by more than this
}

// Settings is the root configuration structure
type Settings struct {
	Debug bool // true to enable debug logging

	Main      MainSettings
	Output    OutputSettings
	Service   ServiceSettings
	Inventory InventorySettings
	Anomaly   AnomalySettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter,
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, run on defaults
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the list of paths searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "bottletag"))
	}
	paths = append(paths, ".")

	return paths, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
