package elastic

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	URL        string
	Index      string
	APIKey     string
	VectorDims int
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingIndex      ConfigErrorCode = "missing_index"
	ConfigErrorInvalidVectorDims ConfigErrorCode = "invalid_vector_dims"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid elasticsearch config"
	}
	switch e.Code {
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid ELASTICSEARCH_HOST=%q; expected absolute URL like http://elasticsearch:9200",
			e.Value,
		)
	case ConfigErrorMissingIndex:
		return "ELASTICSEARCH_INDEX is required"
	case ConfigErrorInvalidVectorDims:
		return fmt.Sprintf(
			"invalid EMBEDDING_DIMS=%q; expected positive integer",
			e.Value,
		)
	default:
		return "invalid elasticsearch config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	rawDims := strings.TrimSpace(os.Getenv("EMBEDDING_DIMS"))
	dims := 384
	if rawDims != "" {
		parsed, err := strconv.Atoi(rawDims)
		if err != nil {
			return Config{}, &ConfigError{
				Code:  ConfigErrorInvalidVectorDims,
				Value: rawDims,
				Cause: err,
			}
		}
		dims = parsed
	}

	cfg := Config{
		URL:        strings.TrimSpace(os.Getenv("ELASTICSEARCH_HOST")),
		Index:      strings.TrimSpace(os.Getenv("ELASTICSEARCH_INDEX")),
		APIKey:     strings.TrimSpace(os.Getenv("ELASTICSEARCH_API_KEY")),
		VectorDims: dims,
	}
	if cfg.URL == "" {
		cfg.URL = "http://elasticsearch:9200"
	}
	if cfg.Index == "" {
		cfg.Index = "judicial-documents"
	}

	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return &ConfigError{Code: ConfigErrorMissingIndex}
	}
	if cfg.VectorDims <= 0 {
		return &ConfigError{
			Code:  ConfigErrorInvalidVectorDims,
			Value: strconv.Itoa(cfg.VectorDims),
		}
	}
	return nil
}
