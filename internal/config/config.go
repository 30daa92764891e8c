package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=socialfeed port=5432 sslmode=disable TimeZone=UTC"

type Config struct {
	Port               string        `mapstructure:"port"`
	DatabaseDSN        string        `mapstructure:"database_dsn"`
	Env                string        `mapstructure:"env"`
	RegistrationWindow time.Duration `mapstructure:"registration_window"`
	RegistrationLimit  int           `mapstructure:"registration_limit"`
	PasswordLength     int           `mapstructure:"password_length"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// env 变量名沿用部署脚本里已有的命名。
var envKeys = map[string]string{
	"port":                "APP_PORT",
	"database_dsn":        "DATABASE_DSN",
	"env":                 "APP_ENV",
	"registration_window": "REGISTRATION_WINDOW",
	"registration_limit":  "REGISTRATION_LIMIT",
	"password_length":     "PASSWORD_LENGTH",
	"rate_limit_rps":      "RATE_LIMIT_RPS",
	"rate_limit_burst":    "RATE_LIMIT_BURST",
}

// Load 按 命令行参数 > 环境变量 > 默认值 的优先级加载配置。
func Load(args []string) (Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("database_dsn", defaultDSN)
	v.SetDefault("env", "dev")
	v.SetDefault("registration_window", 10*time.Minute)
	v.SetDefault("registration_limit", 3)
	v.SetDefault("password_length", 12)
	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	fs := pflag.NewFlagSet("socialfeed", pflag.ContinueOnError)
	fs.String("port", "8080", "HTTP listen port")
	fs.String("dsn", defaultDSN, "database DSN (postgres, or sqlite:<path>)")
	fs.String("env", "dev", "runtime environment: dev, test or prod")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	for key, flag := range map[string]string{"port": "port", "database_dsn": "dsn", "env": "env"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate 在启动前检查配置是否可用。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	switch cfg.Env {
	case "dev", "test", "prod":
	default:
		return fmt.Errorf("unknown env %q", cfg.Env)
	}
	if cfg.RegistrationWindow <= 0 {
		return errors.New("registration window must be positive")
	}
	if cfg.RegistrationLimit <= 0 {
		return errors.New("registration limit must be positive")
	}
	if cfg.PasswordLength < 8 {
		return errors.New("password length must be at least 8")
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	return nil
}
