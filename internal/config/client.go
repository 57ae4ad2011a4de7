package config

import (
	"flag"
	"time"
)

// ClientConfig configures membershipctl.
type ClientConfig struct {
	RPCURL  string        `env:"MEMBERSHIP_RPC_URL" envDefault:"http://localhost:8899/"`
	WSURL   string        `env:"MEMBERSHIP_WS_URL" envDefault:"ws://localhost:8899/ws"`
	Keypair string        `env:"MEMBERSHIP_KEYPAIR" envDefault:"id.json"`
	Mint    string        `env:"MEMBERSHIP_MINT"`
	Timeout time.Duration `env:"MEMBERSHIP_TIMEOUT" envDefault:"30s"`
}

// ParseClientConfig reads the environment, then applies flag overrides.
// Remaining arguments are left in fs.Args().
func ParseClientConfig(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := ParseEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}

	fs.StringVar(&cfg.RPCURL, "rpc", cfg.RPCURL, "node JSON-RPC endpoint")
	fs.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "node WebSocket endpoint")
	fs.StringVar(&cfg.Keypair, "keypair", cfg.Keypair, "path to a JSON keypair file (64-byte array)")
	fs.StringVar(&cfg.Mint, "mint", cfg.Mint, "governance mint address")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
