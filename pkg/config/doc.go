// Package config loads application configuration from environment variables
// into annotated structs, caching each parsed type for the process lifetime.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - Load parses env tags into any struct, reading an optional .env file on
//     first use.
//   - LoadEnv loads one or more named dotenv files up front.
//   - MustLoad panics on failure, for configuration the process cannot start
//     without.
//   - ResetCache clears the per-type cache, which tests rely on.
//
// # Usage
//
//	type PaddleConfig struct {
//	    APIKey        string `env:"PADDLE_API_KEY,required"`
//	    WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
//	    Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"sandbox"`
//	}
//
//	var cfg PaddleConfig
//	config.MustLoad(&cfg)
//
// Each configuration type is parsed at most once; concurrent callers share a
// sync.Once per type and read the same cached copy afterwards.
package config
