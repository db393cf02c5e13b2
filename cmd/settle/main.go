// Package main settles the game: it computes the proportional payout plan
// from a credits snapshot and executes it against the ledger, exiting paid
// wallets from the admission registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"portsol-gate/internal/domain"
	"portsol-gate/internal/settlement"
	"portsol-gate/internal/solana"
	"portsol-gate/internal/storage"
	"portsol-gate/internal/storage/memory"
	"portsol-gate/internal/storage/migrations"
	pgstore "portsol-gate/internal/storage/postgres"
	"portsol-gate/internal/submitter"
)

func main() {
	loadEnvFile()

	creditsPath := flag.String("credits", "", "Path to JSON file mapping wallet address to credits")
	poolLamports := flag.Uint64("pool", 0, "Pool to distribute in lamports (0 = full treasury balance minus fee reserve)")
	runID := flag.String("run-id", "", "Settlement run identifier; reuse to resume a crashed run")
	keypairPath := flag.String("keypair", os.Getenv("TREASURY_KEYPAIR"), "Path to treasury keypair JSON")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint for confirmations (empty = poll over HTTP)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for the payout ledger")
	maxAttempts := flag.Int("max-attempts", 3, "Transfer attempts per payout")
	dryRun := flag.Bool("dry-run", false, "Print the plan without sending anything")
	keepEntries := flag.Bool("keep-entries", false, "Do not remove paid wallets from the admission registry")

	flag.Parse()

	logger := log.New(os.Stdout, "[settle] ", log.LstdFlags)

	if *creditsPath == "" {
		logger.Fatal("--credits is required")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}

	credits, err := loadCredits(*creditsPath)
	if err != nil {
		logger.Fatalf("Load credits: %v", err)
	}
	if len(credits) == 0 {
		logger.Fatal("Credits file is empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, stopping after the current payout...", sig)
		cancel()
	}()

	rpc := solana.NewHTTPClient(*rpcEndpoint)

	var key *solana.Keypair
	var treasury string
	if *dryRun && *keypairPath == "" {
		// A dry run only needs the treasury address for the pool clamp.
		treasury = os.Getenv("TREASURY_PUBKEY")
		if treasury == "" {
			logger.Fatal("--keypair or TREASURY_PUBKEY is required")
		}
	} else {
		if *keypairPath == "" {
			logger.Fatal("--keypair is required")
		}
		data, err := os.ReadFile(*keypairPath)
		if err != nil {
			logger.Fatalf("Read keypair: %v", err)
		}
		key, err = solana.KeypairFromJSON(string(data))
		if err != nil {
			logger.Fatalf("Parse keypair: %v", err)
		}
		treasury = key.Pubkey()
	}

	pool, err := settlement.ClampPool(ctx, rpc, treasury, requestedPool(*poolLamports), settlement.DefaultFeeReserve)
	if err != nil {
		logger.Fatalf("Determine pool: %v", err)
	}
	if *poolLamports > 0 && pool < *poolLamports {
		logger.Printf("Requested pool %d exceeds treasury; clamped to %d lamports", *poolLamports, pool)
	}

	plan := settlement.ComputePlan(pool, credits)
	printPlan(plan)

	if *dryRun {
		logger.Println("Dry run, nothing sent")
		return
	}

	id := *runID
	if id == "" {
		id = fmt.Sprintf("settle-%s", time.Now().UTC().Format("20060102-150405"))
		logger.Printf("Run ID: %s", id)
	}

	ledger, entries, cleanup, err := createStores(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()
	if *postgresDSN == "" {
		logger.Println("WARNING: in-memory payout ledger; a crashed run cannot be resumed safely")
	}

	subOpts := []submitter.Option{
		submitter.WithLogger(log.New(os.Stdout, "[submitter] ", log.LstdFlags)),
	}
	if *wsEndpoint != "" {
		confirmer, err := solana.NewWSConfirmer(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Printf("WebSocket confirmer unavailable (%v); falling back to status polling", err)
		} else {
			defer confirmer.Close()
			subOpts = append(subOpts, submitter.WithConfirmer(confirmer))
		}
	}
	sub := submitter.New(rpc, subOpts...)

	opts := []settlement.Option{
		settlement.WithLogger(logger),
		settlement.WithMaxAttempts(*maxAttempts),
	}
	if entries != nil && !*keepEntries {
		opts = append(opts, settlement.WithEntryStore(entries))
	}
	dist := settlement.NewDistributor(sub, rpc, ledger, opts...)

	outcomes := dist.ExecutePlan(ctx, id, plan, key)

	failures := printOutcomes(outcomes)
	if failures > 0 {
		logger.Fatalf("%d payout(s) failed; re-run with --run-id %s to retry them", failures, id)
	}
	logger.Println("Settlement complete")
}

// requestedPool maps the flag's zero value to "everything available".
func requestedPool(flagValue uint64) uint64 {
	if flagValue == 0 {
		return ^uint64(0)
	}
	return flagValue
}

// loadCredits reads the wallet -> credits snapshot.
func loadCredits(path string) (map[string]uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var credits map[string]uint64
	if err := json.Unmarshal(data, &credits); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for wallet := range credits {
		if err := solana.ValidateAddress(wallet); err != nil {
			return nil, fmt.Errorf("wallet %s: %w", wallet, err)
		}
	}
	return credits, nil
}

// createStores builds the payout ledger and, when PostgreSQL is configured,
// the entry store used to exit paid wallets.
func createStores(ctx context.Context, dsn string) (storage.PayoutLedgerStore, storage.EntryStore, func(), error) {
	if dsn == "" {
		return memory.NewPayoutLedgerStore(), nil, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	return pgstore.NewPayoutLedgerStore(pool), pgstore.NewEntryStore(pool), func() { pool.Close() }, nil
}

// printPlan writes the computed distribution to stdout.
func printPlan(plan *domain.SettlementPlan) {
	fmt.Printf("Pool: %d lamports (%.4f SOL), total credits: %d\n",
		plan.PoolLamports, float64(plan.PoolLamports)/solana.LamportsPerSOL, plan.TotalCredits)
	fmt.Printf("%-44s %12s %16s\n", "WALLET", "CREDITS", "PAYOUT")
	for _, e := range plan.Entries {
		fmt.Printf("%-44s %12d %16d\n", e.Wallet, e.Credits, e.PayoutLamports)
	}
	fmt.Printf("Dust retained by treasury: %d lamports\n", plan.DustLamports)
}

// printOutcomes writes per-wallet results and returns the failure count.
func printOutcomes(outcomes []domain.PayoutOutcome) int {
	failures := 0
	for _, o := range outcomes {
		if o.Err != "" {
			failures++
			fmt.Printf("FAILED    %-44s %12d  %s\n", o.Wallet, o.PayoutLamports, o.Err)
			continue
		}
		fmt.Printf("CONFIRMED %-44s %12d  %s\n", o.Wallet, o.PayoutLamports, o.Signature)
	}
	return failures
}

// loadEnvFile loads environment variables from .env if present, without
// overriding variables already set.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
