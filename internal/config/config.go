// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string       `yaml:"port"`
	DBPath         string       `yaml:"db_path"`
	MaxUploadBytes int64        `yaml:"max_upload_bytes"`
	Log            LogConfig    `yaml:"log"`
	Redis          RedisConfig  `yaml:"redis"`
	Policy         PolicyConfig `yaml:"policy"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RedisConfig struct {
	// Addr enables distributed locking when set; otherwise locks are in-process.
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	LockTTLSec int    `yaml:"lock_ttl_seconds"`
}

// PolicyConfig holds the reconciliation thresholds.
type PolicyConfig struct {
	POWarningPercent      float64 `yaml:"po_warning_percent"`
	POCriticalPercent     float64 `yaml:"po_critical_percent"`
	ContractExpiryDays    int     `yaml:"contract_expiry_warning_days"`
	InvoiceLookbackDays   int     `yaml:"invoice_lookback_days"`
	InvoiceLookaheadDays  int     `yaml:"invoice_lookahead_days"`
	AmountTolerance       float64 `yaml:"amount_tolerance"`
	BalanceCloseRatio     float64 `yaml:"balance_close_ratio"`
	IdentityAmountPercent float64 `yaml:"identity_amount_tolerance"`
}

func Default() *Config {
	return &Config{
		Port:           "8080",
		DBPath:         "dms.db",
		MaxUploadBytes: 10 << 20,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			LockTTLSec: 300,
		},
		Policy: PolicyConfig{
			POWarningPercent:      80,
			POCriticalPercent:     95,
			ContractExpiryDays:    30,
			InvoiceLookbackDays:   365,
			InvoiceLookaheadDays:  30,
			AmountTolerance:       0.20,
			BalanceCloseRatio:     0.9,
			IdentityAmountPercent: 0.01,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// CONFIG_FILE is consulted; a missing file is an error only when it was
// named explicitly.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			if !(errors.Is(err, os.ErrNotExist) && !explicit) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PORT":           &cfg.Port,
		"DB_PATH":        &cfg.DBPath,
		"LOG_LEVEL":      &cfg.Log.Level,
		"LOG_FORMAT":     &cfg.Log.Format,
		"REDIS_ADDR":     &cfg.Redis.Addr,
		"REDIS_PASSWORD": &cfg.Redis.Password,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"REDIS_DB":                     &cfg.Redis.DB,
		"LOCK_TTL_SECONDS":             &cfg.Redis.LockTTLSec,
		"CONTRACT_EXPIRY_WARNING_DAYS": &cfg.Policy.ContractExpiryDays,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"PO_WARNING_THRESHOLD":  &cfg.Policy.POWarningPercent,
		"PO_CRITICAL_THRESHOLD": &cfg.Policy.POCriticalPercent,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.MaxUploadBytes = n
	}

	return nil
}

// Validate rejects threshold combinations the alert policy cannot honour.
func (c *Config) Validate() error {
	p := c.Policy
	if p.POWarningPercent <= 0 || p.POCriticalPercent <= 0 {
		return errors.New("po utilization thresholds must be positive")
	}
	if p.POWarningPercent > p.POCriticalPercent {
		return fmt.Errorf("po warning threshold %.1f exceeds critical threshold %.1f",
			p.POWarningPercent, p.POCriticalPercent)
	}
	if p.ContractExpiryDays < 0 {
		return errors.New("contract expiry warning days must not be negative")
	}
	if p.AmountTolerance < 0 || p.IdentityAmountPercent < 0 {
		return errors.New("amount tolerances must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	return nil
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.LockTTLSec) * time.Second
}
