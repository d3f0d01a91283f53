package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() *Config {
	cfg := &Config{}
	cfg.Proxy.Port = 8992
	cfg.Proxy.Cached = true
	cfg.Proxy.Verbose = true
	cfg.Cache.MaxItemSize = 1024
	cfg.Cache.MaxTotalSize = 4096
	cfg.WorkerPool.Size = 50
	cfg.Network.IOTimeout = 10_000_000_000 // 10s in nanoseconds
	cfg.Admin.Port = 9092
	cfg.Logging.Level = "info"
	return cfg
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(defaults()))
}

func TestValidate_RejectsItemSizeAboveTotalSize(t *testing.T) {
	cfg := defaults()
	cfg.Cache.MaxItemSize = cfg.Cache.MaxTotalSize + 1

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max item size")
}

func TestValidate_RejectsInvalidPort(t *testing.T) {
	cfg := defaults()
	cfg.Proxy.Port = 0

	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := defaults()
	cfg.Logging.Level = "trace"

	assert.Error(t, Validate(cfg))
}

func TestApplyCLIArgs_OverridesPositionalFields(t *testing.T) {
	cfg := defaults()

	require.NoError(t, cfg.ApplyCLIArgs([]string{"9000", "false", "false"}))

	assert.Equal(t, 9000, cfg.Proxy.Port)
	assert.False(t, cfg.Proxy.Cached)
	assert.False(t, cfg.Proxy.Verbose)
}

func TestApplyCLIArgs_PartialArgsLeaveRestUntouched(t *testing.T) {
	cfg := defaults()

	require.NoError(t, cfg.ApplyCLIArgs([]string{"9001"}))

	assert.Equal(t, 9001, cfg.Proxy.Port)
	assert.True(t, cfg.Proxy.Cached)
	assert.True(t, cfg.Proxy.Verbose)
}

func TestApplyCLIArgs_RejectsNonIntegerPort(t *testing.T) {
	cfg := defaults()
	assert.Error(t, cfg.ApplyCLIArgs([]string{"not-a-port"}))
}

func TestRegisterFlags_DefaultsMatchConfig(t *testing.T) {
	cfg := defaults()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, cfg)

	require.NoError(t, fs.Parse([]string{"-port=8000", "-cached=false"}))

	assert.Equal(t, 8000, cfg.Proxy.Port)
	assert.False(t, cfg.Proxy.Cached)
	assert.True(t, cfg.Proxy.Verbose)
}
