package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"membership-registry/internal/domain"
)

type envTestConfig struct {
	Port int `env:"MEMBERSHIP_TEST_PORT" envDefault:"123"`
}

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("MEMBERSHIP_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseServerConfig_Defaults(t *testing.T) {
	cfg, err := ParseServerConfig(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("ParseServerConfig: %v", err)
	}
	if cfg.ListenAddr != ":8899" {
		t.Errorf("ListenAddr = %q, want :8899", cfg.ListenAddr)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Storage = %q, want memory", cfg.Storage)
	}
	if !cfg.Migrate {
		t.Error("Migrate should default to true")
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.ProgramKey() != domain.DefaultProgramID {
		t.Errorf("ProgramKey() = %s, want default", cfg.ProgramKey())
	}
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("MEMBERSHIP_LISTEN_ADDR", ":1000")
	t.Setenv("MEMBERSHIP_STORAGE", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://env")

	cfg, err := ParseServerConfig(newFlagSet(), []string{"-listen", ":2000", "-postgres-dsn", "postgres://flag"})
	if err != nil {
		t.Fatalf("ParseServerConfig: %v", err)
	}
	if cfg.ListenAddr != ":2000" {
		t.Errorf("ListenAddr = %q, want :2000", cfg.ListenAddr)
	}
	if cfg.Storage != StoragePostgres {
		t.Errorf("Storage = %q, want postgres from env", cfg.Storage)
	}
	if cfg.PostgresDSN != "postgres://flag" {
		t.Errorf("PostgresDSN = %q, want flag value", cfg.PostgresDSN)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	valid := ServerConfig{ListenAddr: ":8899", Storage: StorageMemory}

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{"valid", func(*ServerConfig) {}, ""},
		{"unknown storage", func(c *ServerConfig) { c.Storage = "sqlite" }, "unknown storage"},
		{"postgres without dsn", func(c *ServerConfig) { c.Storage = StoragePostgres }, "-postgres-dsn"},
		{"bad program id", func(c *ServerConfig) { c.ProgramID = "not-base58!" }, "-program-id"},
		{"bad claim issuer", func(c *ServerConfig) { c.ClaimIssuer = "abc" }, "-claim-issuer"},
		{"empty listen", func(c *ServerConfig) { c.ListenAddr = "" }, "-listen"},
		{"custom program id", func(c *ServerConfig) { c.ProgramID = domain.PublicKey{1}.String() }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseClientConfig(t *testing.T) {
	t.Setenv("MEMBERSHIP_MINT", "mintFromEnv")

	fs := newFlagSet()
	cfg, err := ParseClientConfig(fs, []string{"-rpc", "http://node:1/", "status", "x"})
	if err != nil {
		t.Fatalf("ParseClientConfig: %v", err)
	}
	if cfg.RPCURL != "http://node:1/" {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
	if cfg.Mint != "mintFromEnv" {
		t.Errorf("Mint = %q, want env value", cfg.Mint)
	}
	if cfg.Keypair != "id.json" {
		t.Errorf("Keypair = %q, want default id.json", cfg.Keypair)
	}
	if got := fs.Args(); len(got) != 2 || got[0] != "status" {
		t.Errorf("Args() = %v, want [status x]", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nMEMBERSHIP_TEST_A=from-file\nMEMBERSHIP_TEST_B = \"quoted\"\nbroken line\nMEMBERSHIP_TEST_C=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("MEMBERSHIP_TEST_C", "from-env")
	// Register A and B for cleanup so values set by LoadEnvFile do not leak.
	t.Setenv("MEMBERSHIP_TEST_A", "")
	t.Setenv("MEMBERSHIP_TEST_B", "")
	os.Unsetenv("MEMBERSHIP_TEST_A")
	os.Unsetenv("MEMBERSHIP_TEST_B")

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}

	if got := os.Getenv("MEMBERSHIP_TEST_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("MEMBERSHIP_TEST_B"); got != "quoted" {
		t.Errorf("B = %q, want quoted", got)
	}
	if got := os.Getenv("MEMBERSHIP_TEST_C"); got != "from-env" {
		t.Errorf("C = %q, existing env must win", got)
	}
}

func TestLoadEnvFile_Missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
}
