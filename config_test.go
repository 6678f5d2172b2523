package memd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Run("overrides defaults", func(t *testing.T) {
		config, err := ReadConfig(strings.NewReader(`
bucket: travel-sample
nodes:
  - 10.0.0.1:11210
  - "[fe80::1]:11210"
num_vbuckets: 128
collections_enabled: true
inbound_decompression: true
max_conns_per_node: 2
dial_timeout: 250ms
circuit_breaker:
  enabled: false
  timeout: 1s
`))
		require.NoError(t, err)
		require.NoError(t, config.Validate())

		assert.Equal(t, "travel-sample", config.Bucket)
		assert.Equal(t, []string{"10.0.0.1:11210", "[fe80::1]:11210"}, config.Nodes)
		assert.Equal(t, 128, config.NumVBuckets)
		assert.True(t, config.CollectionsEnabled)
		assert.True(t, config.InboundDecompression)
		assert.Equal(t, int32(2), config.MaxConnsPerNode)
		assert.Equal(t, 250*time.Millisecond, config.DialTimeout)
		assert.False(t, config.CircuitBreaker.Enabled)
		assert.Equal(t, time.Second, config.CircuitBreaker.Timeout)

		// untouched defaults
		assert.Equal(t, uint32(1), config.CircuitBreaker.MaxRequests)
		assert.Equal(t, "memd", config.MetricsNamespace)
	})

	t.Run("empty document", func(t *testing.T) {
		config, err := ReadConfig(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := ReadConfig(strings.NewReader("buckets: typo\n"))
		assert.ErrorContains(t, err, "invalid config")
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: [127.0.0.1:11210]\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:11210"}, config.Nodes)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Nodes = []string{"127.0.0.1:11210"}
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no nodes", func(c *Config) { c.Nodes = nil }},
		{"bad address", func(c *Config) { c.Nodes = []string{"localhost"} }},
		{"no connections", func(c *Config) { c.MaxConnsPerNode = 0 }},
		{"negative vbuckets", func(c *Config) { c.NumVBuckets = -1 }},
		{"too many vbuckets", func(c *Config) { c.NumVBuckets = 1<<16 + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid()
	c.Nodes = nil
	assert.ErrorIs(t, c.Validate(), ErrNoNodes)
}
