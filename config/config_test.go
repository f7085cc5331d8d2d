package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromReaderOverridesDefaults(t *testing.T) {
	in := `
[Chain]
  Contract = "0x00000000000000000000000000000000000e5c70"
  StartBlock = 1200
  Confidence = 3
  PollInterval = "2s"

[Storage.Postgresql.Database1]
  URL = "postgres://escrow:escrow@db:5432/escrow"
  SchemaName = "escrow"
  PoolSize = 5
`
	cfg, err := FromReader(strings.NewReader(in), DefaultConf())
	require.NoError(t, err)

	assert.Equal(t, "0x00000000000000000000000000000000000e5c70", cfg.Chain.Contract)
	assert.Equal(t, uint64(1200), cfg.Chain.StartBlock)
	assert.Equal(t, 3, cfg.Chain.Confidence)
	assert.Equal(t, Duration(2*time.Second), cfg.Chain.PollInterval)
	// untouched values keep their defaults
	assert.Equal(t, uint64(2000), cfg.Chain.BatchSize)

	pg := cfg.Storage.Postgresql["Database1"]
	assert.Equal(t, "escrow", pg.SchemaName)
	assert.Equal(t, 5, pg.PoolSize)
}

func TestFromFileMissingUsesDefaults(t *testing.T) {
	cfg, err := FromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConf(), cfg)
}

func TestEnsureExistsWritesCommentedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, EnsureExists(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Chain]")
	assert.Contains(t, string(data), `#  Confidence = 12`)

	// a fully commented file decodes to the defaults
	cfg, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConf(), cfg)

	// a second call leaves the file alone
	require.NoError(t, os.WriteFile(path, []byte("[Chain]\nConfidence = 1\n"), 0o644))
	require.NoError(t, EnsureExists(path))
	cfg, err = FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Chain.Confidence)
}

func TestChainEndpointPrefersEnv(t *testing.T) {
	c := ChainConf{RPCEndpointEnv: "ESCROWDEX_TEST_RPC", RPCEndpoint: "http://fallback"}
	assert.Equal(t, "http://fallback", c.Endpoint())

	t.Setenv("ESCROWDEX_TEST_RPC", "http://from-env")
	assert.Equal(t, "http://from-env", c.Endpoint())
}

func TestChainEndpointsSplitsList(t *testing.T) {
	c := ChainConf{RPCEndpoint: " http://a:8545, ,http://b:8545 "}
	assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, c.Endpoints())

	assert.Empty(t, ChainConf{}.Endpoints())
}
