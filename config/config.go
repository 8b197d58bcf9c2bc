// Package config loads the server configuration.
//
// Sources are applied in order, later ones winning:
//
//	defaults -> YAML file -> .env file -> environment variables
//
// The command-line flags in cmd/server are applied on top of the result.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/member-ledger/ledger"
	"github.com/warp/member-ledger/pkg/logger"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when no -config flag is given.
const DefaultConfigFile = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      logger.Config  `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Settings SettingsSeed   `yaml:"settings"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	AllowedOrigins []string      `yaml:"allowed_origins"`

	// DemoScenarios mounts /api/scenarios, which can wipe the database.
	DemoScenarios bool `yaml:"demo_scenarios"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig maps bearer tokens to operators. With Enabled false every
// request runs with all capabilities.
type AuthConfig struct {
	Enabled bool          `yaml:"enabled"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Token        string   `yaml:"token"`
	Operator     string   `yaml:"operator"`
	Capabilities []string `yaml:"capabilities"`
}

// SettingsSeed is written to the settings table on first start only.
type SettingsSeed struct {
	ShopName        string `yaml:"shop_name"`
	ShopAddress     string `yaml:"shop_address"`
	ShopPhone       string `yaml:"shop_phone"`
	PointRate       int64  `yaml:"point_rate"`
	SilverThreshold int64  `yaml:"tier_silver_threshold"`
	GoldThreshold   int64  `yaml:"tier_gold_threshold"`
	PrintReceipt    bool   `yaml:"print_receipt"`
}

// Ledger converts the seed into engine settings.
func (s SettingsSeed) Ledger() ledger.Settings {
	return ledger.Settings{
		ShopName:        s.ShopName,
		ShopAddress:     s.ShopAddress,
		ShopPhone:       s.ShopPhone,
		PointRate:       s.PointRate,
		SilverThreshold: s.SilverThreshold,
		GoldThreshold:   s.GoldThreshold,
		PrintReceipt:    s.PrintReceipt,
	}
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			ShutdownGrace:  30 * time.Second,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "members.db"},
		Log: logger.Config{
			Level:      "info",
			Filename:   "logs/ledger.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Settings: SettingsSeed{
			PointRate:       ledger.DefaultPointRate,
			SilverThreshold: ledger.DefaultSilverThreshold,
			GoldThreshold:   ledger.DefaultGoldThreshold,
		},
	}
}

// Load reads the config from path. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvAsInt("LEDGER_PORT", cfg.Server.Port)
	cfg.Database.Path = getEnv("LEDGER_DB_PATH", cfg.Database.Path)
	cfg.Log.Level = getEnv("LEDGER_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Filename = getEnv("LEDGER_LOG_FILE", cfg.Log.Filename)
	cfg.Auth.Enabled = getEnvAsBool("LEDGER_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Server.DemoScenarios = getEnvAsBool("LEDGER_DEMO_SCENARIOS", cfg.Server.DemoScenarios)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
