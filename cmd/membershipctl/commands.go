package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"membership-registry/internal/client"
	"membership-registry/internal/domain"
	"membership-registry/internal/keypair"
	"membership-registry/internal/membership"
	"membership-registry/internal/pda"
	"membership-registry/internal/rpc"
	"membership-registry/internal/runtime"
)

var errUsage = errors.New("invalid arguments")

func runKeygen(_ context.Context, _ *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: keygen <path>", errUsage)
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	kp, err := keypair.Generate()
	if err != nil {
		return err
	}
	if err := kp.Save(args[0]); err != nil {
		return err
	}
	return printJSON(map[string]string{"path": args[0], "public_key": kp.Public.String()})
}

func runAddress(_ context.Context, c *cli, _ []string) error {
	kp, err := c.keypair()
	if err != nil {
		return err
	}
	fmt.Println(kp.Public)
	return nil
}

func runDerive(ctx context.Context, c *cli, args []string) error {
	creator, err := c.principalArg(args)
	if err != nil {
		return err
	}
	var mint *domain.PublicKey
	if c.cfg.Mint != "" {
		m, err := c.mint()
		if err != nil {
			return err
		}
		mint = &m
	}
	derived, err := c.rpc.DeriveAddresses(ctx, creator, mint)
	if err != nil {
		return err
	}
	return printJSON(derived)
}

func runInit(ctx context.Context, c *cli, _ []string) error {
	kp, err := c.keypair()
	if err != nil {
		return err
	}
	authority, err := c.authority(ctx, kp.Public)
	if err != nil {
		return err
	}
	return c.send(ctx, kp, runtime.Instruction{
		Initialize: &membership.InitializeArgs{Payer: kp.Public, Authority: authority},
	})
}

func runCreateMint(ctx context.Context, c *cli, args []string) error {
	kp, err := c.keypair()
	if err != nil {
		return err
	}

	var mint domain.PublicKey
	switch len(args) {
	case 0:
		fresh, err := keypair.Generate()
		if err != nil {
			return err
		}
		mint = fresh.Public
	case 1:
		if mint, err = domain.ParsePublicKey(args[0]); err != nil {
			return fmt.Errorf("mint: %w", err)
		}
	default:
		return fmt.Errorf("%w: create-mint [address]", errUsage)
	}

	authority, err := c.authority(ctx, kp.Public)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Creating mint %s\n", mint)
	return c.send(ctx, kp, runtime.Instruction{
		CreateMint: &membership.CreateMintArgs{Payer: kp.Public, Mint: mint, Authority: authority},
	})
}

func runCreateAccount(ctx context.Context, c *cli, args []string) error {
	kp, err := c.keypair()
	if err != nil {
		return err
	}
	owner, err := c.principalArg(args)
	if err != nil {
		return err
	}
	mint, err := c.mint()
	if err != nil {
		return err
	}
	return c.send(ctx, kp, runtime.Instruction{
		CreateTokenAccount: &runtime.CreateTokenAccountArgs{Payer: kp.Public, Owner: owner, Mint: mint},
	})
}

func runCreate(ctx context.Context, c *cli, _ []string) error {
	kp, err := c.keypair()
	if err != nil {
		return err
	}
	mint, err := c.mint()
	if err != nil {
		return err
	}
	derived, err := c.rpc.DeriveAddresses(ctx, kp.Public, &mint)
	if err != nil {
		return err
	}
	return c.send(ctx, kp, runtime.Instruction{
		CreateMembership: &membership.CreateArgs{
			Creator:      kp.Public,
			Membership:   derived.Membership,
			TokenAccount: *derived.TokenAccount,
			Mint:         mint,
			Authority:    derived.Authority,
		},
	})
}

func runClaim(ctx context.Context, c *cli, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	proof := fs.String("proof", "", "base64 claim ticket issued by the registry's claim issuer")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: claim [-proof base64] <creator>", errUsage)
	}
	creator, err := domain.ParsePublicKey(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}

	kp, err := c.keypair()
	if err != nil {
		return err
	}

	var proofBytes []byte
	if *proof != "" {
		if proofBytes, err = base64.StdEncoding.DecodeString(*proof); err != nil {
			return fmt.Errorf("proof: %w", err)
		}
	}

	derived, record, err := c.lookupMembership(ctx, creator)
	if err != nil {
		return err
	}
	claimantAccount, err := pda.AssociatedTokenAddress(kp.Public, record.Mint)
	if err != nil {
		return err
	}
	holderAccount, err := pda.AssociatedTokenAddress(record.Holder, record.Mint)
	if err != nil {
		return err
	}

	return c.send(ctx, kp, runtime.Instruction{
		ClaimMembership: &membership.ClaimArgs{
			Claimant:        kp.Public,
			Membership:      derived.Membership,
			Mint:            record.Mint,
			Authority:       derived.Authority,
			ClaimantAccount: claimantAccount,
			HolderAccount:   holderAccount,
			Proof:           proofBytes,
		},
	})
}

// runIssueTicket signs a claim ticket with the configured keypair, which
// must be the node's claim issuer. The ticket binds the record's claim
// count, so it becomes invalid as soon as any claim on the membership commits.
func runIssueTicket(ctx context.Context, c *cli, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: issue-ticket <creator> <claimant>", errUsage)
	}
	creator, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	claimant, err := domain.ParsePublicKey(args[1])
	if err != nil {
		return fmt.Errorf("claimant: %w", err)
	}

	issuer, err := c.keypair()
	if err != nil {
		return err
	}
	derived, record, err := c.lookupMembership(ctx, creator)
	if err != nil {
		return err
	}

	proof, err := membership.SignClaimTicket(issuer.Private, membership.ClaimTicket{
		Membership: derived.Membership,
		Claimant:   claimant,
		Holder:     record.Holder,
		Claims:     record.Claims,
	})
	if err != nil {
		return err
	}
	fmt.Println(base64.StdEncoding.EncodeToString(proof))
	return nil
}

func runThaw(ctx context.Context, c *cli, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: thaw <creator> <sink-owner>", errUsage)
	}
	creator, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	sinkOwner, err := domain.ParsePublicKey(args[1])
	if err != nil {
		return fmt.Errorf("sink owner: %w", err)
	}

	kp, err := c.keypair()
	if err != nil {
		return err
	}
	derived, record, err := c.lookupMembership(ctx, creator)
	if err != nil {
		return err
	}
	account, err := pda.AssociatedTokenAddress(kp.Public, record.Mint)
	if err != nil {
		return err
	}
	sink, err := pda.AssociatedTokenAddress(sinkOwner, record.Mint)
	if err != nil {
		return err
	}

	return c.send(ctx, kp, runtime.Instruction{
		ThawAccount: &membership.ThawArgs{
			Owner:      kp.Public,
			Membership: derived.Membership,
			Account:    account,
			Mint:       record.Mint,
			Authority:  derived.Authority,
			Sink:       sink,
		},
	})
}

func runTransfer(ctx context.Context, c *cli, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: transfer <destination-owner> <amount>", errUsage)
	}
	dest, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	kp, err := c.keypair()
	if err != nil {
		return err
	}
	mint, err := c.mint()
	if err != nil {
		return err
	}
	source, err := pda.AssociatedTokenAddress(kp.Public, mint)
	if err != nil {
		return err
	}
	destination, err := pda.AssociatedTokenAddress(dest, mint)
	if err != nil {
		return err
	}

	return c.send(ctx, kp, runtime.Instruction{
		Transfer: &runtime.TransferArgs{Owner: kp.Public, Source: source, Destination: destination, Amount: amount},
	})
}

func runMembership(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: membership <creator>", errUsage)
	}
	creator, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	_, record, err := c.lookupMembership(ctx, creator)
	if err != nil {
		return err
	}
	return printJSON(record)
}

func runAccount(ctx context.Context, c *cli, args []string) error {
	owner, err := c.principalArg(args)
	if err != nil {
		return err
	}
	mint, err := c.mint()
	if err != nil {
		return err
	}
	address, err := pda.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return err
	}
	account, err := c.rpc.GetTokenAccount(ctx, address)
	if err != nil {
		return err
	}
	if account == nil {
		return fmt.Errorf("no token account for %s", owner)
	}
	return printJSON(account)
}

func runMint(ctx context.Context, c *cli, _ []string) error {
	mint, err := c.mint()
	if err != nil {
		return err
	}
	info, err := c.rpc.GetMint(ctx, mint)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("mint %s not found", mint)
	}
	return printJSON(info)
}

func runAuthority(ctx context.Context, c *cli, _ []string) error {
	info, err := c.rpc.GetAuthority(ctx)
	if err != nil {
		return err
	}
	if info == nil {
		return errors.New("registry is not initialized")
	}
	return printJSON(info)
}

func runEvents(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: events <creator>", errUsage)
	}
	creator, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return fmt.Errorf("creator: %w", err)
	}
	derived, err := c.rpc.DeriveAddresses(ctx, creator, nil)
	if err != nil {
		return err
	}
	events, err := c.rpc.GetMembershipEvents(ctx, derived.Membership)
	if err != nil {
		return err
	}
	return printJSON(events)
}

func runTx(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: tx <signature>", errUsage)
	}
	info, err := c.rpc.GetTransaction(ctx, args[0])
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("transaction %s not found", args[0])
	}
	return printJSON(info)
}

func runSlot(ctx context.Context, c *cli, _ []string) error {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return err
	}
	fmt.Println(slot)
	return nil
}

// runWatch streams membership events until interrupted.
func runWatch(ctx context.Context, c *cli, args []string) error {
	var filter rpc.SubscribeFilter
	if len(args) > 0 {
		creator, err := domain.ParsePublicKey(args[0])
		if err != nil {
			return fmt.Errorf("creator: %w", err)
		}
		derived, err := c.rpc.DeriveAddresses(ctx, creator, nil)
		if err != nil {
			return err
		}
		filter.Membership = &derived.Membership
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsConfig := client.DefaultWSConfig()
	wsConfig.Logger = log.New(os.Stderr, "[ws] ", log.LstdFlags)
	ws, err := client.NewWSClient(ctx, c.cfg.WSURL, &wsConfig)
	if err != nil {
		return err
	}
	defer ws.Close()

	notifications, err := ws.SubscribeMemberships(ctx, filter)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			if err := printJSON(rpc.EventNotification{Context: rpc.Context{Slot: n.Slot}, Value: n.Event}); err != nil {
				return err
			}
		}
	}
}

// send submits in signed by kp alone and prints the result.
func (c *cli) send(ctx context.Context, kp *keypair.Keypair, in runtime.Instruction) error {
	tx, err := runtime.NewTransaction(in, uint64(time.Now().UnixNano()), kp.Private)
	if err != nil {
		return err
	}
	res, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s: %w", in.Name(), err)
	}
	return printJSON(res)
}

// authority resolves the Asset Authority address through the node so the
// CLI never needs to know the program ID.
func (c *cli) authority(ctx context.Context, principal domain.PublicKey) (domain.PublicKey, error) {
	derived, err := c.rpc.DeriveAddresses(ctx, principal, nil)
	if err != nil {
		return domain.ZeroKey, err
	}
	return derived.Authority, nil
}

// lookupMembership derives the membership address of creator and loads it.
func (c *cli) lookupMembership(ctx context.Context, creator domain.PublicKey) (*rpc.DerivedAddresses, *rpc.MembershipInfo, error) {
	derived, err := c.rpc.DeriveAddresses(ctx, creator, nil)
	if err != nil {
		return nil, nil, err
	}
	record, err := c.rpc.GetMembership(ctx, derived.Membership)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		return nil, nil, fmt.Errorf("no membership registered by %s", creator)
	}
	return derived, record, nil
}

func (c *cli) mint() (domain.PublicKey, error) {
	if c.cfg.Mint == "" {
		return domain.ZeroKey, errors.New("-mint (or MEMBERSHIP_MINT) is required")
	}
	mint, err := domain.ParsePublicKey(c.cfg.Mint)
	if err != nil {
		return domain.ZeroKey, fmt.Errorf("mint: %w", err)
	}
	return mint, nil
}

// principalArg parses an optional principal argument, defaulting to the
// configured keypair's public key.
func (c *cli) principalArg(args []string) (domain.PublicKey, error) {
	switch len(args) {
	case 0:
		kp, err := c.keypair()
		if err != nil {
			return domain.ZeroKey, err
		}
		return kp.Public, nil
	case 1:
		return domain.ParsePublicKey(args[0])
	default:
		return domain.ZeroKey, errUsage
	}
}
