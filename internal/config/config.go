package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"sigs.k8s.io/yaml"
)

type Config struct {
	GRPCAddr       string `json:"grpcAddr"`
	TLSCert        string `json:"tlsCert"`
	TLSKey         string `json:"tlsKey"`
	AuthToken      string `json:"authToken"`
	AuditBuffer    int    `json:"auditBuffer"`
	AuditRetention int    `json:"auditRetention"`
	RateLimitRPS   int    `json:"rateLimitRPS"`
	DataDir        string `json:"dataDir"`
	LogLevel       string `json:"logLevel"`

	// EngineSlots bounds concurrent engine requests; zero means one per CPU.
	EngineSlots int `json:"engineSlots"`
	// IsolatedSeed is the hex encoded device secret isolated keys derive
	// from. Empty means a random seed per process.
	IsolatedSeed string `json:"isolatedSeed"`
	// DefaultHash is used by operations that do not name one.
	DefaultHash string `json:"defaultHash"`
	RSABits     int    `json:"rsaBits"`

	DRBG           string `json:"drbg"`
	ReseedInterval uint64 `json:"reseedInterval"`

	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

// Duration reads as a time.ParseDuration string, e.g. "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("duration must be a string: %s", b)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaults() Config {
	return Config{
		GRPCAddr:        ":50051",
		AuthToken:       "dev-token",
		AuditBuffer:     1024,
		AuditRetention:  100000,
		RateLimitRPS:    100,
		LogLevel:        "info",
		DefaultHash:     "SHA-256",
		RSABits:         2048,
		DRBG:            "hash",
		ReseedInterval:  1 << 20,
		ShutdownTimeout: Duration{10 * time.Second},
	}
}

// Load returns the defaults overridden by SICRYPTO_* environment variables.
func Load() Config {
	cfg := defaults()
	applyEnv(&cfg)
	return cfg
}

// LoadFile reads a YAML configuration file on top of the defaults, then
// applies environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.GRPCAddr = envOr("SICRYPTO_GRPC_ADDR", cfg.GRPCAddr)
	cfg.TLSCert = envOr("SICRYPTO_TLS_CERT", cfg.TLSCert)
	cfg.TLSKey = envOr("SICRYPTO_TLS_KEY", cfg.TLSKey)
	cfg.AuthToken = envOr("SICRYPTO_AUTH_TOKEN", cfg.AuthToken)
	cfg.AuditBuffer = envInt("SICRYPTO_AUDIT_BUFFER", cfg.AuditBuffer)
	cfg.AuditRetention = envInt("SICRYPTO_AUDIT_RETENTION", cfg.AuditRetention)
	cfg.RateLimitRPS = envInt("SICRYPTO_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.DataDir = envOr("SICRYPTO_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = envOr("SICRYPTO_LOG_LEVEL", cfg.LogLevel)
	cfg.EngineSlots = envInt("SICRYPTO_ENGINE_SLOTS", cfg.EngineSlots)
	cfg.IsolatedSeed = envOr("SICRYPTO_ISOLATED_SEED", cfg.IsolatedSeed)
	cfg.DefaultHash = envOr("SICRYPTO_DEFAULT_HASH", cfg.DefaultHash)
	cfg.RSABits = envInt("SICRYPTO_RSA_BITS", cfg.RSABits)
	cfg.DRBG = envOr("SICRYPTO_DRBG", cfg.DRBG)
	cfg.ReseedInterval = uint64(envInt("SICRYPTO_RESEED_INTERVAL", int(cfg.ReseedInterval)))
	if v := os.Getenv("SICRYPTO_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = Duration{d}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
