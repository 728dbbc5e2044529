package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses "90s" / "5m" style values from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MySQLDSN    string `yaml:"mysql_dsn"`
	RedisAddr   string `yaml:"redis_addr"`
	CatalogPath string `yaml:"catalog_path"`
	LogMode     string `yaml:"log_mode"`

	Match struct {
		AcceptThreshold float64 `yaml:"accept_threshold"`
		RejectThreshold float64 `yaml:"reject_threshold"`
	} `yaml:"match"`

	QualityConfidenceFloor float64 `yaml:"quality_confidence_floor"`

	SessionIdleTTL  Duration `yaml:"session_idle_ttl"`
	AuditCollectTTL Duration `yaml:"audit_collect_ttl"`
}

// Load reads the YAML config and applies env overrides for deployment
// specifics. Every tunable has a default so an empty file still runs.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:               ":8080",
		MySQLDSN:               "root:root@tcp(localhost:3306)/guildbank?parseTime=true",
		RedisAddr:              "localhost:6379",
		CatalogPath:            "configs/items.yaml",
		LogMode:                "dev",
		QualityConfidenceFloor: 0.25,
		SessionIdleTTL:         Duration(3 * time.Minute),
		AuditCollectTTL:        Duration(10 * time.Minute),
	}
	cfg.Match.AcceptThreshold = 0.82
	cfg.Match.RejectThreshold = 0.55

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.MySQLDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		cfg.LogMode = v
	}

	if cfg.Match.RejectThreshold > cfg.Match.AcceptThreshold {
		return nil, fmt.Errorf("match.reject_threshold above match.accept_threshold")
	}
	return cfg, nil
}
