package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmaster/billing/pkg/config"
)

type successConfig struct {
	Name    string `env:"TEST_BILLING_NAME" envDefault:"billing"`
	Workers int    `env:"TEST_BILLING_WORKERS" envDefault:"4"`
	Debug   bool   `env:"TEST_BILLING_DEBUG" envDefault:"false"`
}

type defaultsConfig struct {
	Name    string `env:"TEST_DEFAULTS_NAME" envDefault:"billing"`
	Workers int    `env:"TEST_DEFAULTS_WORKERS" envDefault:"4"`
}

type requiredConfig struct {
	APIKey string `env:"TEST_REQUIRED_API_KEY,required"`
}

type cachedConfig struct {
	Value string `env:"TEST_CACHED_VALUE" envDefault:"first"`
}

type dotenvConfig struct {
	Endpoint string `env:"TEST_DOTENV_ENDPOINT"`
}

func TestLoad_Success(t *testing.T) {
	t.Setenv("TEST_BILLING_NAME", "billing-worker")
	t.Setenv("TEST_BILLING_WORKERS", "8")
	t.Setenv("TEST_BILLING_DEBUG", "true")

	var cfg successConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "billing-worker", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Debug)
}

func TestLoad_DefaultValues(t *testing.T) {
	os.Unsetenv("TEST_DEFAULTS_NAME")
	os.Unsetenv("TEST_DEFAULTS_WORKERS")

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "billing", cfg.Name)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("TEST_REQUIRED_API_KEY")

	var cfg requiredConfig
	err := config.Load(&cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_NilPointer(t *testing.T) {
	err := config.Load[successConfig](nil)
	assert.ErrorIs(t, err, config.ErrNilPointer)
}

func TestLoad_CachesPerType(t *testing.T) {
	config.ResetCache()
	t.Setenv("TEST_CACHED_VALUE", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))
	require.Equal(t, "first", first.Value)

	// A later environment change must not leak into an already loaded type.
	t.Setenv("TEST_CACHED_VALUE", "second")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)
}

func TestResetCache_AllowsReparse(t *testing.T) {
	config.ResetCache()
	t.Setenv("TEST_CACHED_VALUE", "before")

	var cfg cachedConfig
	require.NoError(t, config.Load(&cfg))
	require.Equal(t, "before", cfg.Value)

	config.ResetCache()
	t.Setenv("TEST_CACHED_VALUE", "after")

	var reloaded cachedConfig
	require.NoError(t, config.Load(&reloaded))
	assert.Equal(t, "after", reloaded.Value)
}

func TestLoadEnv_CustomPath(t *testing.T) {
	os.Unsetenv("TEST_DOTENV_ENDPOINT")
	config.ResetCache()

	path := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("TEST_DOTENV_ENDPOINT=https://sandbox-api.paddle.com\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_DOTENV_ENDPOINT") })

	require.NoError(t, config.LoadEnv(path))

	var cfg dotenvConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "https://sandbox-api.paddle.com", cfg.Endpoint)
}

func TestLoadEnv_MissingFile(t *testing.T) {
	err := config.LoadEnv(filepath.Join(t.TempDir(), "does-not-exist.env"))
	assert.Error(t, err)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	os.Unsetenv("TEST_REQUIRED_API_KEY")
	config.ResetCache()

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
