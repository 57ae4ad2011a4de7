// Package main runs a membership registry node: the membership program over
// a transactional account ledger, exposed through JSON-RPC and WebSocket
// subscriptions.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"membership-registry/internal/api"
	"membership-registry/internal/config"
	"membership-registry/internal/domain"
	"membership-registry/internal/membership"
	"membership-registry/internal/runtime"
	"membership-registry/internal/storage"
	chstore "membership-registry/internal/storage/clickhouse"
	"membership-registry/internal/storage/memory"
	"membership-registry/internal/storage/migrations"
	pgstore "membership-registry/internal/storage/postgres"
)

// stores holds the ledger and event log selected by configuration.
type stores struct {
	ledger     storage.Ledger
	ledgerName string
	events     storage.EventStore
}

func main() {
	// Load .env file if exists
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	cfg, err := config.ParseServerConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New(os.Stdout, "[membershipd] ", log.LstdFlags|log.Lshortfile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	handler, hub, err := buildNode(cfg, st)
	if err != nil {
		logger.Fatalf("Failed to build node: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("Listening on %s (storage=%s, program=%s)", cfg.ListenAddr, st.ledgerName, cfg.ProgramKey())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serveErr:
		if err != nil {
			logger.Printf("HTTP server error: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	go func() {
		// Second signal forces exit
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-shutdownCtx.Done():
		}
	}()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	cancel()

	logger.Println("Shutdown complete")
}

// buildNode wires the program, executor, subscription hub and API server.
func buildNode(cfg config.ServerConfig, st *stores) (http.Handler, *api.Hub, error) {
	opts := membership.Options{ProgramID: cfg.ProgramKey()}
	if cfg.ClaimIssuer != "" {
		opts.Authorizer = membership.TicketAuthorizer{Issuer: domain.MustParsePublicKey(cfg.ClaimIssuer)}
	}
	program, err := membership.NewProgram(opts)
	if err != nil {
		return nil, nil, err
	}

	hubConfig := api.DefaultHubConfig()
	hubConfig.PingInterval = cfg.WSPingInterval
	hubConfig.ReadTimeout = 2 * cfg.WSPingInterval
	hubConfig.SendBuffer = cfg.WSSendBuffer
	hub := api.NewHub(hubConfig, log.New(os.Stdout, "[ws] ", log.LstdFlags))

	exec, err := runtime.NewExecutor(runtime.ExecutorOptions{
		Ledger:     st.ledger,
		Program:    program,
		EventStore: st.events,
		Publisher:  hub,
		LedgerName: st.ledgerName,
		Logger:     log.New(os.Stdout, "[runtime] ", log.LstdFlags),
	})
	if err != nil {
		return nil, nil, err
	}

	server, err := api.NewServer(api.ServerOptions{
		Executor:     exec,
		Ledger:       st.ledger,
		EventStore:   st.events,
		Hub:          hub,
		Logger:       log.New(os.Stdout, "[api] ", log.LstdFlags),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, nil, err
	}

	return server.Handler(), hub, nil
}

// createStores creates the ledger and event log.
func createStores(ctx context.Context, cfg config.ServerConfig, logger *log.Logger) (*stores, func(), error) {
	st := &stores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)

		if cfg.Migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				cleanup()
				return nil, nil, err
			}
			logger.Println("PostgreSQL migrations applied")
		}
		st.ledger = pgstore.NewLedger(pool)
		st.ledgerName = config.StoragePostgres
	default:
		logger.Println("Using in-memory ledger")
		st.ledger = memory.NewLedger()
		st.ledgerName = config.StorageMemory
	}

	if cfg.ClickHouseDSN == "" {
		st.events = memory.NewEventStore()
		return st, cleanup, nil
	}

	var conn *chstore.Conn
	var err error
	if cfg.Migrate {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err == nil {
			logger.Println("ClickHouse migrations applied")
		}
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() {
		if err := conn.Close(); err != nil {
			logger.Printf("close clickhouse: %v", err)
		}
	})
	st.events = chstore.NewEventStore(conn)

	return st, cleanup, nil
}
