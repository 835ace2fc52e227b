package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// DefaultRedisAddr is used when REDIS_ADDR is empty.
const DefaultRedisAddr = "localhost:6379"

// Config is the service configuration, read from the environment.
type Config struct {
	// GhidraInstallDir is checked by the service start gate rather than by envconfig
	// so the gate can report it before any engine bootstrap.
	GhidraInstallDir string `envconfig:"GHIDRA_INSTALL_DIR"`
	GhidraScriptsDir string `envconfig:"GHIDRA_SCRIPTS_DIR"`
	GhidraExtraArgs  string `envconfig:"GHIDRA_EXTRA_ARGS"`

	WorkDir     string `envconfig:"WORK_DIR"`
	ArtifactDir string `envconfig:"ARTIFACT_DIR" default:"./artifacts"`

	Redis RedisConfig

	Workers     int           `envconfig:"WORKERS" default:"1" validate:"min=1"`
	TaskTimeout time.Duration `envconfig:"TASK_TIMEOUT" default:"0"`
	MetricsAddr string        `envconfig:"METRICS_ADDR" default:":9090"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
}

// RedisConfig locates the task queue and result store.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Prefix   string `envconfig:"REDIS_PREFIX" default:"ghidra_auto_analysis" validate:"required"`
}

// FromEnv loads, defaults and validates the config.
func FromEnv(log logrus.FieldLogger) (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	cfg.Redis.Addr = LoadRedisAddr(log, cfg.Redis.Addr)
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadRedisAddr falls back to localhost when REDIS_ADDR is not set.
func LoadRedisAddr(log logrus.FieldLogger, addr string) string {
	if addr == "" {
		addr = DefaultRedisAddr
		log.Infof("REDIS_ADDR is not set, using default %s", DefaultRedisAddr)
	}
	return addr
}
