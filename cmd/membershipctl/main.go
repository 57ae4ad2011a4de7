// Package main is a command-line client for a membership registry node.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"membership-registry/internal/client"
	"membership-registry/internal/config"
	"membership-registry/internal/keypair"
)

// command is one membershipctl subcommand.
type command struct {
	usage string
	run   func(ctx context.Context, c *cli, args []string) error
}

var commands = map[string]command{
	"keygen":         {"keygen <path>", runKeygen},
	"address":        {"address", runAddress},
	"derive":         {"derive [creator]", runDerive},
	"init":           {"init", runInit},
	"create-mint":    {"create-mint [mint-keypair]", runCreateMint},
	"create-account": {"create-account [owner]", runCreateAccount},
	"create":         {"create", runCreate},
	"claim":          {"claim [-proof base64] <creator>", runClaim},
	"issue-ticket":   {"issue-ticket <creator> <claimant>", runIssueTicket},
	"thaw":           {"thaw <creator> <sink-owner>", runThaw},
	"transfer":       {"transfer <destination-owner> <amount>", runTransfer},
	"membership":     {"membership <creator>", runMembership},
	"account":        {"account [owner]", runAccount},
	"mint":           {"mint", runMint},
	"authority":      {"authority", runAuthority},
	"events":         {"events <creator>", runEvents},
	"tx":             {"tx <signature>", runTx},
	"slot":           {"slot", runSlot},
	"watch":          {"watch [creator]", runWatch},
}

// cli holds the state shared by subcommands. The keypair is loaded lazily
// so keygen and queries work without one.
type cli struct {
	cfg config.ClientConfig
	rpc *client.HTTPClient
	kp  *keypair.Keypair
}

func (c *cli) keypair() (*keypair.Keypair, error) {
	if c.kp != nil {
		return c.kp, nil
	}
	kp, err := keypair.Load(c.cfg.Keypair)
	if err != nil {
		return nil, err
	}
	c.kp = kp
	return kp, nil
}

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	flag.Usage = usage
	cfg, err := config.ParseClientConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}

	c := &cli{
		cfg: cfg,
		rpc: client.NewHTTPClient(cfg.RPCURL, client.WithTimeout(cfg.Timeout)),
	}

	// watch runs until interrupted; everything else is bounded by the timeout.
	ctx := context.Background()
	if args[0] != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := cmd.run(ctx, c, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: membershipctl [flags] <command> [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	flag.PrintDefaults()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
