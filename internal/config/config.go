// Package config loads meshbuf settings from defaults, an optional YAML
// file and MESHBUF_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MESHBUF"

// Config is the complete meshbuf configuration.
type Config struct {
	Log    LogConfig    `yaml:"log" env:"LOG"`
	Decode DecodeConfig `yaml:"decode" env:"DECODE"`
	Scan   ScanConfig   `yaml:"scan" env:"SCAN"`
	Store  StoreConfig  `yaml:"store" env:"STORE"`
	Index  IndexConfig  `yaml:"index" env:"INDEX"`
	Export ExportConfig `yaml:"export" env:"EXPORT"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error or none.
	Level string `yaml:"level" env:"LEVEL"`
}

// DecodeConfig controls the container codec.
type DecodeConfig struct {
	// MaxPayload bounds the decompressed size of one container.
	MaxPayload uint32 `yaml:"max_payload" env:"MAX_PAYLOAD"`
	// Compression is the zstd level used when writing containers:
	// fastest, default, better or best.
	Compression string `yaml:"compression" env:"COMPRESSION"`
}

// ScanConfig controls directory scans.
type ScanConfig struct {
	Workers    int      `yaml:"workers" env:"WORKERS"`
	Extensions []string `yaml:"extensions" env:"EXTENSIONS"`
	SkipErrors bool     `yaml:"skip_errors" env:"SKIP_ERRORS"`
}

// StoreConfig controls the decoded buffer store.
type StoreConfig struct {
	Dir       string `yaml:"dir" env:"DIR"`
	CacheSize int    `yaml:"cache_size" env:"CACHE_SIZE"`
}

// IndexConfig controls the layout index.
type IndexConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// ExportConfig controls bucket exports.
type ExportConfig struct {
	// BucketConfig is a path to an objstore bucket YAML file.
	BucketConfig string `yaml:"bucket_config" env:"BUCKET_CONFIG"`
	Prefix       string `yaml:"prefix" env:"PREFIX"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Decode: DecodeConfig{
			MaxPayload:  1 << 30,
			Compression: "default",
		},
		Scan: ScanConfig{
			Workers:    4,
			Extensions: []string{".mgeo"},
		},
		Store: StoreConfig{
			Dir:       ".meshbuf/store",
			CacheSize: 64,
		},
		Index:  IndexConfig{Path: ".meshbuf/index.db"},
		Export: ExportConfig{Prefix: "meshbuf"},
	}
}

// Loader assembles a Config.
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader returns a loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file to read. A missing file is ignored.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnv replaces the environment lookup, mainly for tests.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// Load applies defaults, the file and the environment, then validates.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}
		value, ok := l.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []string
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch c.Decode.Compression {
	case "fastest", "default", "better", "best":
	default:
		errs = append(errs, fmt.Sprintf("unknown compression %q", c.Decode.Compression))
	}
	if c.Decode.MaxPayload == 0 {
		errs = append(errs, "decode.max_payload must be positive")
	}
	if c.Scan.Workers <= 0 {
		errs = append(errs, "scan.workers must be positive")
	}
	if c.Store.CacheSize < 0 {
		errs = append(errs, "store.cache_size must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
