// config.go: settings struct and loading for the podkeeper engine
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// MainSettings holds application-wide settings
type MainSettings struct {
	Name     string // instance name, used in audit events
	Debug    bool   // enable debug output
	LogPath  string // directory for service log files
	LogLevel string // debug, info, warn, error
}

// SQLiteSettings holds SQLite output settings
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings holds MySQL output settings
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects and configures the backing database
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// RoutingWeights are the confidence component weights; they must sum to 1.0
// within ±0.001 or the configuration is rejected at load
type RoutingWeights struct {
	Classification float64 `validate:"gte=0,lte=1"`
	Extraction     float64 `validate:"gte=0,lte=1"`
	Match          float64 `validate:"gte=0,lte=1"`
}

// RoutingSettings configure the auto-send decision table
type RoutingSettings struct {
	Enabled                     bool
	NoMatchRequiresReview       bool
	MinClassificationConfidence float64            `validate:"gte=0,lte=1"`
	DefaultThreshold            float64            `validate:"gte=0,lte=1"`
	SupplierThresholds          map[string]float64 // supplier key (case-insensitive) or "*" wildcard
	Weights                     RoutingWeights
	CacheTTL                    time.Duration // TTL for the supplier rules cache
}

// MatchingSettings configure the candidate matcher tiers
type MatchingSettings struct {
	ExactJobRefThreshold float64 `validate:"gte=0,lte=1"`
	ExactPlateThreshold  float64 `validate:"gte=0,lte=1"`
	FuzzyJobRefThreshold float64 `validate:"gte=0,lte=1"`
	FuzzyPlateThreshold  float64 `validate:"gte=0,lte=1"`
	MinimumScore         float64 `validate:"gte=0,lte=1"` // global floor below which everything is NO_MATCH
	MaxCandidates        int     `validate:"gt=0"`
}

// RetentionPolicy defines how long documents of the given entity types are
// kept, and whether they are archived before deletion
type RetentionPolicy struct {
	PolicyID            string   `validate:"required"`
	RetentionDays       int      `validate:"gt=0"`
	GraceDays           int      `validate:"gte=0"`
	ArchiveBeforeDelete bool
	AppliesTo           []string `validate:"min=1"` // entity types, e.g. "document"
}

// RetentionSettings configure the retention evaluator and cleanup sweep
type RetentionSettings struct {
	Enabled      bool
	Policies     []RetentionPolicy
	CleanupLimit int `validate:"gt=0"` // max documents per cleanup run
}

// ArchiveSettings configure bundle storage for the archive manager
type ArchiveSettings struct {
	Path                  string // directory for archive bundles
	ScratchPath           string // directory for restore unpacking
	BlobPath              string // directory for original document content
	PurgeBlobOnHardDelete bool
}

// Settings is the root configuration for the engine
type Settings struct {
	Main      MainSettings
	Output    OutputSettings
	Routing   RoutingSettings
	Matching  MatchingSettings
	Retention RetentionSettings
	Archive   ArchiveSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a
// Settings struct, validates it, and installs it as the active instance.
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

	viper.SetEnvPrefix("PODKEEPER")
	viper.AutomaticEnv()

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file, run on defaults and write one out for editing
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the default configuration to the first default
// config path so the operator has something to edit.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(configPaths[0], 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return fmt.Errorf("error unmarshaling defaults: %w", err)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling default config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the config search paths in precedence order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user home directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "podkeeper"),
		"/etc/podkeeper",
	}, nil
}

// Setting returns the active settings instance, loading it on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	instance := settingsInstance
	settingsMutex.RUnlock()
	if instance != nil {
		return instance
	}

	loaded, err := Load()
	if err != nil {
		panic(fmt.Sprintf("error loading settings: %v", err))
	}
	return loaded
}

// SetTestSettings installs a settings instance directly; tests only.
func SetTestSettings(settings *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings
}

// PolicyFor returns the retention policy applying to the given entity type,
// or nil if none is configured.
func (s *Settings) PolicyFor(entityType string) *RetentionPolicy {
	for i := range s.Retention.Policies {
		for _, t := range s.Retention.Policies[i].AppliesTo {
			if t == entityType {
				return &s.Retention.Policies[i]
			}
		}
	}
	return nil
}
