package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Redis       RedisConfig               `json:"redis"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	UploadDir     string `json:"upload_dir"`
	Provider      string `json:"provider"`

	MinWorkers      int `json:"min_workers"`
	MaxWorkers      int `json:"max_workers"`
	QueueSize       int `json:"queue_size"`
	AnalysisTimeout int `json:"analysis_timeout_seconds"`

	InsightWindow   int `json:"insight_window_seconds"`
	InsightCooldown int `json:"insight_cooldown_seconds"`
	InsightCacheTTL int `json:"insight_cache_ttl_seconds"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}

	// Paths in the config file are relative to the file itself.
	baseDir := filepath.Dir(absPath)
	for name, db := range cfg.Databases {
		if name == "mysql" || db.DSN == "" || filepath.IsAbs(db.DSN) {
			continue
		}
		db.DSN = filepath.Join(baseDir, db.DSN)
		cfg.Databases[name] = db
	}
	if !filepath.IsAbs(cfg.BasicConfig.UploadDir) {
		cfg.BasicConfig.UploadDir = filepath.Join(baseDir, cfg.BasicConfig.UploadDir)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":8081"
	}
	if b.UploadDir == "" {
		b.UploadDir = "uploads"
	}
	if b.Provider == "" {
		b.Provider = "gemini"
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 2
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = b.MinWorkers
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 64
	}
	if b.AnalysisTimeout <= 0 {
		b.AnalysisTimeout = 60
	}
	if b.InsightWindow <= 0 {
		b.InsightWindow = 60
	}
	if b.InsightCooldown <= 0 {
		b.InsightCooldown = 5
	}
	if b.InsightCacheTTL <= 0 {
		b.InsightCacheTTL = 10
	}
}
