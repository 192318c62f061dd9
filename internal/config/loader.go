package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HARVEST_"

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then .env files, then HARVEST_* environment variables.
// The result is validated.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env.local then .env. Variables already set win, and
// missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies HARVEST_* variables on top of cfg.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("URL", &cfg.URL)
	str("EVENT", &cfg.Event)
	str("METRICS_ADDR", &cfg.MetricsAddr)

	duration("TIMEOUT", &cfg.Fetch.Timeout)
	duration("CONNECT_TIMEOUT", &cfg.Fetch.ConnectTimeout)
	num("MAX_IDLE_CONNECTIONS", &cfg.Fetch.MaxIdleConns)
	num("MAX_CONNECTIONS_PER_HOST", &cfg.Fetch.MaxConnsPerHost)
	num("MAX_ATTEMPTS", &cfg.Fetch.MaxAttempts)
	float("REQUESTS_PER_SECOND", &cfg.Fetch.RequestsPerSecond)
	flag("INSECURE_SKIP_VERIFY", &cfg.Fetch.InsecureSkipVerify)
	str("USER_AGENT", &cfg.Fetch.UserAgent)

	num("CONCURRENCY", &cfg.Run.Concurrency)
	num("BATCH_WIDTH", &cfg.Run.BatchWidth)
	duration("BATCH_PAUSE", &cfg.Run.BatchPause)
	num("MAX_PAGES", &cfg.Run.MaxPages)

	str("OUTPUT_DIR", &cfg.Export.Dir)
	str("OUTPUT_PREFIX", &cfg.Export.Prefix)
	str("FORMAT", &cfg.Export.Format)
	str("COMPRESSION", &cfg.Export.Compression)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	num("REDIS_DB", &cfg.Redis.DB)
	flag("REDIS_COOLDOWN", &cfg.Redis.Cooldown)
	flag("REDIS_CACHE", &cfg.Redis.Cache)
	duration("CACHE_TTL", &cfg.Redis.CacheTTL)

	str("LOG_LEVEL", &cfg.Log.Level)
	flag("LOG_PRETTY", &cfg.Log.Pretty)
	str("LOG_FILE", &cfg.Log.File)

	return errors.Join(errs...)
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Validate checks cfg against its validation tags.
func Validate(cfg *Config) error {
	cfg.Export.Format = strings.ToLower(cfg.Export.Format)
	cfg.Export.Compression = strings.ToLower(cfg.Export.Compression)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msg := fmt.Sprintf("%s failed '%s'", e.Namespace(), e.Tag())
				if e.Param() != "" {
					msg += fmt.Sprintf(" (%s)", e.Param())
				}
				msgs = append(msgs, msg)
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("validate configuration: %w", err)
	}
	return nil
}
