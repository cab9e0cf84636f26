package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_KeepsDefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, `{"listen_port": 9000, "rounds": [{"id": "r1", "artifact": "out.json", "activated_at": 100}]}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.ListenPort)
	assert.Equal(t, "memory", cfg.Storage.Engine)
	assert.Equal(t, "EIP712Example", cfg.Permit.Domain.Name)
	assert.Equal(t, "I authorize claim to", cfg.Permit.AuthMsg)
	assert.Equal(t, []uint64{10000, 5000, 0}, cfg.Vesting.Percentages)
	require.Len(t, cfg.Rounds, 1)
	assert.Equal(t, int64(100), cfg.Rounds[0].ActivatedAt)
	assert.Nil(t, cfg.Rounds[0].Vesting)
}

func TestLoad_RoundOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"storage": {"engine": "bolt", "dir": "/tmp/ledger"},
		"rounds": [{"id": "r1", "artifact": "out.json", "vesting": {"percentages": [5000, 10000], "time_deltas": [0, 60]}}],
		"registry": {"url": "http://registry:8080"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Rounds[0].Vesting)
	assert.Equal(t, []uint64{0, 60}, cfg.Rounds[0].Vesting.TimeDeltas)
	assert.Equal(t, "http://registry:8080", cfg.Registry.URL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"listen_port":`},
		{"unknown engine", `{"storage": {"engine": "redis"}}`},
		{"leveldb without dir", `{"storage": {"engine": "leveldb"}}`},
		{"empty domain", `{"permit": {"domain": {"name": "", "version": "1"}}}`},
		{"round without id", `{"rounds": [{"artifact": "x.json"}]}`},
		{"duplicate round", `{"rounds": [{"id": "a", "artifact": "x"}, {"id": "a", "artifact": "y"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
