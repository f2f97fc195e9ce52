package embedding

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Code4me2/data-compose/internal/platform/envutil"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Dims    int
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidURL   ConfigErrorCode = "invalid_url"
	ConfigErrorMissingModel ConfigErrorCode = "missing_model"
	ConfigErrorInvalidDims  ConfigErrorCode = "invalid_dims"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid embedding config"
	}
	switch e.Code {
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid EMBEDDING_BASE_URL=%q; expected absolute URL like http://embeddings:8080",
			e.Value,
		)
	case ConfigErrorMissingModel:
		return "EMBEDDING_MODEL is required"
	case ConfigErrorInvalidDims:
		return fmt.Sprintf("invalid EMBEDDING_DIMS=%q; expected positive integer", e.Value)
	default:
		return "invalid embedding config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL: envutil.Str("EMBEDDING_BASE_URL", "http://embeddings:8080"),
		APIKey:  envutil.Str("EMBEDDING_API_KEY", ""),
		Model:   envutil.Str("EMBEDDING_MODEL", "BAAI/bge-small-en-v1.5"),
		Dims:    envutil.Int("EMBEDDING_DIMS", 384),
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.BaseURL,
			Cause: err,
		}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return &ConfigError{Code: ConfigErrorMissingModel}
	}
	if cfg.Dims <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidDims,
			Value: fmt.Sprint(cfg.Dims),
		}
	}
	return nil
}
