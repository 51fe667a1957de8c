package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Redis     RedisConfig     `json:"redis"`
	Alerting  AlertingConfig  `json:"alerting"`
	Simulator SimulatorConfig `json:"simulator"`
}

type ServerConfig struct {
	BindAddr string `json:"bindAddr"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	// Disabled runs the monitor on the in-memory store.
	Disabled bool `json:"disabled"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// RedisConfig configures the alert cache; an empty Addr disables it.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AlertingConfig struct {
	Recorder    RecorderConfig    `json:"recorder"`
	Evaluation  EvaluationConfig  `json:"evaluation"`
	KPI         KPIConfig         `json:"kpi"`
	Remediation RemediationConfig `json:"remediation"`
	Ruleset     RulesetConfig     `json:"ruleset"`
}

type RecorderConfig struct {
	BufferSize    int    `json:"bufferSize"`
	FlushInterval string `json:"flushInterval"` // e.g. "5s"
	MaxPending    int    `json:"maxPending"`
}

type EvaluationConfig struct {
	Interval      string `json:"interval"` // e.g. "2s"
	WindowMinutes int    `json:"windowMinutes"`
}

type KPIConfig struct {
	DefaultWindowMinutes int `json:"defaultWindowMinutes"`
}

type RemediationConfig struct {
	FollowUpDelay string `json:"followUpDelay"` // e.g. "5s"
}

type RulesetConfig struct {
	ConfigFile string `json:"configFile"` // YAML threshold overrides, optional
}

type SimulatorConfig struct {
	Enabled      bool   `json:"enabled"`
	TickInterval string `json:"tickInterval"` // e.g. "50ms"
	Seed         uint64 `json:"seed"`
}

// Load reads the environment and the file given by -f, if any.
func Load() (*Config, error) {
	configFile := flag.String("f", "", "Path to configuration file")
	flag.Parse()
	return LoadFile(*configFile)
}

// LoadFile builds the config from environment defaults overlaid with the JSON file
// at path. An empty path uses the environment only.
func LoadFile(path string) (*Config, error) {
	cfg := fromEnv()
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			log.Error().Err(err).Msg("load config file failed")
			return nil, err
		}
	}
	cfg.fillDefaults()
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr: getEnv("SERVER_BIND_ADDR", "0.0.0.0:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "venueops"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Disabled: getEnvBool("DB_DISABLED", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Alerting: AlertingConfig{
			Recorder: RecorderConfig{
				BufferSize:    getEnvInt("RECORDER_BUFFER_SIZE", 1000),
				FlushInterval: getEnv("RECORDER_FLUSH_INTERVAL", "5s"),
				MaxPending:    getEnvInt("RECORDER_MAX_PENDING", 0),
			},
			Evaluation: EvaluationConfig{
				Interval:      getEnv("EVAL_INTERVAL", "2s"),
				WindowMinutes: getEnvInt("EVAL_WINDOW_MINUTES", 5),
			},
			KPI: KPIConfig{
				DefaultWindowMinutes: getEnvInt("KPI_DEFAULT_WINDOW_MINUTES", 60),
			},
			Remediation: RemediationConfig{
				FollowUpDelay: getEnv("REMEDIATION_FOLLOWUP_DELAY", "5s"),
			},
			Ruleset: RulesetConfig{
				ConfigFile: getEnv("ALERT_RULES_CONFIG_FILE", ""),
			},
		},
		Simulator: SimulatorConfig{
			Enabled:      getEnvBool("SIMULATOR_ENABLED", false),
			TickInterval: getEnv("SIMULATOR_TICK_INTERVAL", "50ms"),
			Seed:         uint64(getEnvInt("SIMULATOR_SEED", 0)),
		},
	}
}

// fill reasonable defaults when fields omitted in file
func (cfg *Config) fillDefaults() {
	if cfg.Server.BindAddr == "" {
		cfg.Server.BindAddr = "0.0.0.0:8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Alerting.Recorder.BufferSize <= 0 {
		cfg.Alerting.Recorder.BufferSize = 1000
	}
	if cfg.Alerting.Recorder.FlushInterval == "" {
		cfg.Alerting.Recorder.FlushInterval = "5s"
	}
	if cfg.Alerting.Evaluation.Interval == "" {
		cfg.Alerting.Evaluation.Interval = "2s"
	}
	if cfg.Alerting.Evaluation.WindowMinutes <= 0 {
		cfg.Alerting.Evaluation.WindowMinutes = 5
	}
	if cfg.Alerting.KPI.DefaultWindowMinutes <= 0 {
		cfg.Alerting.KPI.DefaultWindowMinutes = 60
	}
	if cfg.Alerting.Remediation.FollowUpDelay == "" {
		cfg.Alerting.Remediation.FollowUpDelay = "5s"
	}
	if cfg.Simulator.TickInterval == "" {
		cfg.Simulator.TickInterval = "50ms"
	}
}

// ParseDuration parses s, falling back to d when s is empty or malformed.
func ParseDuration(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	if v, err := time.ParseDuration(s); err == nil && v > 0 {
		return v
	}
	log.Warn().Str("value", s).Dur("fallback", d).Msg("invalid duration in config")
	return d
}

func loadFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
