package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	NowPayments struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		JWT            string `yaml:"jwt"`
		IPNSecret      string `yaml:"ipn_secret"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"nowpayments"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.NowPayments.BaseURL == "" {
		cfg.NowPayments.BaseURL = "https://api.nowpayments.io/v1"
	}
	if cfg.NowPayments.APIKey == "" && cfg.NowPayments.JWT == "" {
		return nil, errors.New("nowpayments.api_key or nowpayments.jwt is required")
	}
	if cfg.NowPayments.IPNSecret == "" {
		return nil, errors.New("nowpayments.ipn_secret is required")
	}
	if cfg.NowPayments.TimeoutSeconds <= 0 {
		cfg.NowPayments.TimeoutSeconds = 30
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitCommaList(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("NOWPAYMENTS_BASE_URL"); v != "" {
		cfg.NowPayments.BaseURL = v
	}
	if v := os.Getenv("NOWPAYMENTS_API_KEY"); v != "" {
		cfg.NowPayments.APIKey = v
	}
	if v := os.Getenv("NOWPAYMENTS_JWT"); v != "" {
		cfg.NowPayments.JWT = v
	}
	if v := os.Getenv("NOWPAYMENTS_IPN_SECRET"); v != "" {
		cfg.NowPayments.IPNSecret = v
	}
	if v := os.Getenv("NOWPAYMENTS_TIMEOUT"); v != "" {
		cfg.NowPayments.TimeoutSeconds = atoiOr(cfg.NowPayments.TimeoutSeconds, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
