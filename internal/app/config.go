package app

import (
	"github.com/Code4me2/data-compose/internal/platform/elastic"
	"github.com/Code4me2/data-compose/internal/platform/embedding"
	"github.com/Code4me2/data-compose/internal/platform/envutil"
)

type Config struct {
	Port        int
	LogMode     string
	OtelEnabled bool

	Elastic   elastic.Config
	Embedding embedding.Config
}

func LoadConfig() (Config, error) {
	esCfg, err := elastic.ResolveConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	embCfg, err := embedding.ResolveConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Port:        envutil.Int("PORT", 8000),
		LogMode:     envutil.Str("LOG_MODE", "production"),
		OtelEnabled: envutil.Bool("OTEL_ENABLED", false),
		Elastic:     esCfg,
		Embedding:   embCfg,
	}, nil
}
