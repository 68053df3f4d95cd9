package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, "hash", cfg.DRBG)
	assert.Equal(t, 2048, cfg.RSABits)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Duration)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SICRYPTO_GRPC_ADDR", ":6000")
	t.Setenv("SICRYPTO_RATE_LIMIT_RPS", "7")
	t.Setenv("SICRYPTO_AUDIT_BUFFER", "not a number")
	t.Setenv("SICRYPTO_SHUTDOWN_TIMEOUT", "3s")

	cfg := Load()
	assert.Equal(t, ":6000", cfg.GRPCAddr)
	assert.Equal(t, 7, cfg.RateLimitRPS)
	assert.Equal(t, 1024, cfg.AuditBuffer, "invalid numbers keep the default")
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout.Duration)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sicrypto.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grpcAddr: ":7000"
drbg: ctr
engineSlots: 2
reseedInterval: 10
shutdownTimeout: 1m
`), 0600))
	t.Setenv("SICRYPTO_ENGINE_SLOTS", "4")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.GRPCAddr)
	assert.Equal(t, "ctr", cfg.DRBG)
	assert.Equal(t, uint64(10), cfg.ReseedInterval)
	assert.Equal(t, 4, cfg.EngineSlots, "environment wins over the file")
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout.Duration)
	assert.Equal(t, "SHA-256", cfg.DefaultHash)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unknownField: 1\n"), 0600))
	_, err = LoadFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("shutdownTimeout: soon\n"), 0600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
