package config

import (
	"flag"
	"fmt"
	"time"

	"membership-registry/internal/domain"
)

// Storage backends for the account ledger.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// ServerConfig configures membershipd.
type ServerConfig struct {
	ListenAddr      string        `env:"MEMBERSHIP_LISTEN_ADDR" envDefault:":8899"`
	ProgramID       string        `env:"MEMBERSHIP_PROGRAM_ID"`
	Storage         string        `env:"MEMBERSHIP_STORAGE" envDefault:"memory"`
	PostgresDSN     string        `env:"POSTGRES_DSN"`
	ClickHouseDSN   string        `env:"CLICKHOUSE_DSN"`
	Migrate         bool          `env:"MEMBERSHIP_MIGRATE" envDefault:"true"`
	ClaimIssuer     string        `env:"MEMBERSHIP_CLAIM_ISSUER"`
	MaxBodyBytes    int64         `env:"MEMBERSHIP_MAX_BODY_BYTES" envDefault:"1048576"`
	WSPingInterval  time.Duration `env:"MEMBERSHIP_WS_PING_INTERVAL" envDefault:"30s"`
	WSSendBuffer    int           `env:"MEMBERSHIP_WS_SEND_BUFFER" envDefault:"256"`
	ShutdownTimeout time.Duration `env:"MEMBERSHIP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// ParseServerConfig reads the environment, then applies flag overrides.
func ParseServerConfig(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := ParseEnv(&cfg); err != nil {
		return ServerConfig{}, err
	}

	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address for JSON-RPC, /ws, /health and /metrics")
	fs.StringVar(&cfg.ProgramID, "program-id", cfg.ProgramID, "membership program ID (default: built-in program ID)")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "ledger backend: memory or postgres")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (required with -storage=postgres)")
	fs.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", cfg.ClickHouseDSN, "ClickHouse connection string for the event log (default: in-memory event log)")
	fs.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "apply embedded migrations on startup")
	fs.StringVar(&cfg.ClaimIssuer, "claim-issuer", cfg.ClaimIssuer, "base58 ed25519 key that signs claim tickets (default: open claims)")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "maximum JSON-RPC request body size")
	fs.DurationVar(&cfg.WSPingInterval, "ws-ping-interval", cfg.WSPingInterval, "WebSocket ping interval")
	fs.IntVar(&cfg.WSSendBuffer, "ws-send-buffer", cfg.WSSendBuffer, "queued notifications per WebSocket connection")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks flag combinations.
func (c ServerConfig) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("-postgres-dsn is required with -storage=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown storage %q (want %s or %s)", c.Storage, StorageMemory, StoragePostgres)
	}

	if c.ProgramID != "" {
		if _, err := domain.ParsePublicKey(c.ProgramID); err != nil {
			return fmt.Errorf("invalid -program-id: %w", err)
		}
	}
	if c.ClaimIssuer != "" {
		if _, err := domain.ParsePublicKey(c.ClaimIssuer); err != nil {
			return fmt.Errorf("invalid -claim-issuer: %w", err)
		}
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("-listen is required")
	}
	return nil
}

// ProgramKey returns the configured program ID or the default.
func (c ServerConfig) ProgramKey() domain.PublicKey {
	if c.ProgramID == "" {
		return domain.DefaultProgramID
	}
	return domain.MustParsePublicKey(c.ProgramID)
}
