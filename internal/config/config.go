package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port         string `envconfig:"PORT" default:"4021"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	Env          string `envconfig:"APP_ENV" default:"dev"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" default:"50"`
}

// Load 从环境变量加载配置并校验，DATABASE_URL 缺失属于启动期致命错误。
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置合法性，单独导出便于测试。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: PORT is empty")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL is not set")
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > 200 {
		return fmt.Errorf("config: HISTORY_LIMIT %d out of range (1-200)", cfg.HistoryLimit)
	}
	return nil
}
