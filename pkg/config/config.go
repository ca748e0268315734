/*
Package config manages the TOML config for pickserve.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/charmbracelet/log"
)

// Backend names accepted in [data].backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds the entire config structure
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Server ServerConfig `toml:"server"`
	Data   DataConfig   `toml:"data"`
	Redis  RedisConfig  `toml:"redis"`
	CLI    CliConfig    `toml:"cli"`
}

// EngineConfig holds the defaults applied to every binding.
type EngineConfig struct {
	MinQueryLength int    `toml:"min_query_length"`
	MaxResults     int    `toml:"max_results"`
	MatchMode      string `toml:"match_mode"`
}

// ServerConfig has server related options.
type ServerConfig struct {
	Listen       string   `toml:"listen"`
	ReloadEvery  int      `toml:"reload_every"`
	PingInterval Duration `toml:"ping_interval"`
	MaxQueryLen  int      `toml:"max_query_length"`
}

// DataConfig says where candidates come from.
type DataConfig struct {
	Catalogs []string `toml:"catalogs"`
	Backend  string   `toml:"backend"`
	DBPath   string   `toml:"db_path"`
	Watch    bool     `toml:"watch"`
	UseIndex bool     `toml:"use_index"`
}

// RedisConfig configures the redis suggestion backend.
type RedisConfig struct {
	Addr    string `toml:"addr"`
	Prefix  string `toml:"prefix"`
	MaxIdle int    `toml:"max_idle"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultList string `toml:"default_list"`
	Width       int    `toml:"width"`
	ShowMeta    bool   `toml:"show_meta"`
}

// Duration is a time.Duration written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Options converts the engine section into binding defaults.
func (e EngineConfig) Options() autocomplete.Options {
	return autocomplete.Options{
		MinQueryLength: e.MinQueryLength,
		MaxResults:     e.MaxResults,
		MatchMode:      autocomplete.ParseMatchMode(e.MatchMode),
	}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/pickserve
// 2. ~/Library/Application Support/pickserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", utils.AppDirName)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", utils.AppDirName)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/pickserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err == nil {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
			log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MinQueryLength: autocomplete.DefaultMinQueryLength,
			MaxResults:     autocomplete.DefaultMaxResults,
			MatchMode:      autocomplete.MatchContains.String(),
		},
		Server: ServerConfig{
			Listen:       "127.0.0.1:8740",
			ReloadEvery:  50,
			PingInterval: Duration{30 * time.Second},
			MaxQueryLen:  120,
		},
		Data: DataConfig{
			Backend:  BackendMemory,
			DBPath:   "pickserve.db",
			Watch:    true,
			UseIndex: true,
		},
		Redis: RedisConfig{
			Addr:    "127.0.0.1:6379",
			Prefix:  "pickserve:",
			MaxIdle: 4,
		},
		CLI: CliConfig{
			DefaultList: "items",
			Width:       48,
			ShowMeta:    true,
		},
	}
}

// Validate reports settings that cannot work. Out of range engine values are
// not errors; the engine clamps them.
func (c *Config) Validate() error {
	switch c.Data.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown data backend %q (want %s, %s or %s)",
			c.Data.Backend, BackendMemory, BackendSQLite, BackendRedis)
	}
	if c.Data.Backend == BackendSQLite && c.Data.DBPath == "" {
		return fmt.Errorf("data.db_path is required for the sqlite backend")
	}
	if c.Data.Backend == BackendRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis backend")
	}
	return nil
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse keeps every value that still parses on its own.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "data"); ok {
		extractDataConfig(section, &config.Data)
	}
	if section, ok := utils.ExtractSection(tempConfig, "redis"); ok {
		extractRedisConfig(section, &config.Redis)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		extractCliConfig(section, &config.CLI)
	}
	return config, nil
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractInt64(data, "min_query_length"); ok {
		engine.MinQueryLength = val
	}
	if val, ok := utils.ExtractInt64(data, "max_results"); ok {
		engine.MaxResults = val
	}
	if val, ok := utils.ExtractString(data, "match_mode"); ok {
		engine.MatchMode = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractString(data, "listen"); ok {
		server.Listen = val
	}
	if val, ok := utils.ExtractInt64(data, "reload_every"); ok {
		server.ReloadEvery = val
	}
	if val, ok := utils.ExtractDuration(data, "ping_interval"); ok {
		server.PingInterval = Duration{val}
	}
	if val, ok := utils.ExtractInt64(data, "max_query_length"); ok {
		server.MaxQueryLen = val
	}
}

func extractDataConfig(data map[string]any, d *DataConfig) {
	if val, ok := utils.ExtractStrings(data, "catalogs"); ok {
		d.Catalogs = val
	}
	if val, ok := utils.ExtractString(data, "backend"); ok {
		d.Backend = val
	}
	if val, ok := utils.ExtractString(data, "db_path"); ok {
		d.DBPath = val
	}
	if val, ok := utils.ExtractBool(data, "watch"); ok {
		d.Watch = val
	}
	if val, ok := utils.ExtractBool(data, "use_index"); ok {
		d.UseIndex = val
	}
}

func extractRedisConfig(data map[string]any, r *RedisConfig) {
	if val, ok := utils.ExtractString(data, "addr"); ok {
		r.Addr = val
	}
	if val, ok := utils.ExtractString(data, "prefix"); ok {
		r.Prefix = val
	}
	if val, ok := utils.ExtractInt64(data, "max_idle"); ok {
		r.MaxIdle = val
	}
}

func extractCliConfig(data map[string]any, cli *CliConfig) {
	if val, ok := utils.ExtractString(data, "default_list"); ok {
		cli.DefaultList = val
	}
	if val, ok := utils.ExtractInt64(data, "width"); ok {
		cli.Width = val
	}
	if val, ok := utils.ExtractBool(data, "show_meta"); ok {
		cli.ShowMeta = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(defaultPath)); err != nil {
		return err
	}
	return SaveConfig(DefaultConfig(), defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Update changes engine defaults and saves to file. Nil values are left alone.
func (c *Config) Update(configPath string, minQueryLength, maxResults *int, matchMode *string) error {
	c.Apply(minQueryLength, maxResults, matchMode)
	return SaveConfig(c, configPath)
}

// Apply changes the engine defaults in memory. Nil values are left alone.
func (c *Config) Apply(minQueryLength, maxResults *int, matchMode *string) {
	engine := &c.Engine
	if minQueryLength != nil {
		engine.MinQueryLength = *minQueryLength
	}
	if maxResults != nil {
		engine.MaxResults = *maxResults
	}
	if matchMode != nil {
		engine.MatchMode = autocomplete.ParseMatchMode(*matchMode).String()
	}
}
