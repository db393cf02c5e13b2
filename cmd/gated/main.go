// Package main runs the gate daemon: it owns the admission registry,
// keeps the price oracle warm, and serves health, status and metrics
// endpoints for operators.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"portsol-gate/internal/config"
	"portsol-gate/internal/gate"
	"portsol-gate/internal/observability"
	"portsol-gate/internal/oracle"
	"portsol-gate/internal/solana"
	"portsol-gate/internal/storage"
	chstore "portsol-gate/internal/storage/clickhouse"
	"portsol-gate/internal/storage/memory"
	"portsol-gate/internal/storage/migrations"
	pgstore "portsol-gate/internal/storage/postgres"
)

// Daemon holds the running components.
type Daemon struct {
	cfg    *config.Config
	gate   *gate.Gate
	oracle *oracle.Client
	logger *log.Logger

	started time.Time

	mu            sync.Mutex
	lastPriceAt   time.Time
	lastPrice     float64
	priceRefreshs int
}

func main() {
	loadEnvFile()

	logger := log.New(os.Stdout, "[gated] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries, samples, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("Create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)

	g, err := gate.New(gate.Config{
		Treasury:        cfg.TreasuryPubkey,
		EntryFee:        cfg.EntryFeeLamports,
		EntryDuration:   cfg.EntryDuration(),
		EnforceExpiry:   cfg.EntryExpiryEnforced,
		BypassAdmission: cfg.DebugMode,
	}, rpc, entries, log.New(os.Stdout, "[gate] ", log.LstdFlags))
	if err != nil {
		logger.Fatalf("Create gate: %v", err)
	}

	oracleOpts := []oracle.Option{oracle.WithTTL(cfg.PriceCacheTTL)}
	if samples != nil {
		oracleOpts = append(oracleOpts, oracle.WithSampleStore(samples))
	}
	orc := oracle.New(cfg.PythHermesURL, oracleOpts...)

	d := &Daemon{
		cfg:     cfg,
		gate:    g,
		oracle:  orc,
		logger:  logger,
		started: time.Now(),
	}

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
		select {
		case <-sigCh:
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go d.startHTTPServer(cfg.MetricsAddr)
	go d.runOracleRefresh(ctx)

	logger.Printf("Gate daemon started: network=%s treasury=%s fee=%d lamports",
		cfg.Network, cfg.TreasuryPubkey, cfg.EntryFeeLamports)

	<-ctx.Done()
	close(done)
	logger.Println("Shutdown complete")
}

// createStores builds the entry and price-sample stores. Empty DSNs select
// in-memory storage; the price-sample store is nil unless ClickHouse is
// configured.
func createStores(ctx context.Context, cfg *config.Config) (storage.EntryStore, storage.PriceSampleStore, func(), error) {
	if cfg.PostgresDSN == "" {
		var samples storage.PriceSampleStore
		cleanup := func() {}

		if cfg.ClickhouseDSN != "" {
			conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
			}
			if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
				conn.Close()
				return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
			}
			samples = chstore.NewPriceSampleStore(conn)
			cleanup = func() { conn.Close() }
		}

		return memory.NewEntryStore(), samples, cleanup, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	var samples storage.PriceSampleStore
	cleanup := func() { pool.Close() }

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		samples = chstore.NewPriceSampleStore(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	}

	return pgstore.NewEntryStore(pool), samples, cleanup, nil
}

// runOracleRefresh keeps the price cache warm so reads during the game
// never block on the feed, and the sample history keeps accumulating.
func (d *Daemon) runOracleRefresh(ctx context.Context) {
	feedID := d.cfg.PriceFeedID
	if feedID == "" {
		feedID = oracle.SOLUSDFeedID
	}

	refresh := func() {
		price, ok := d.oracle.Price(ctx, feedID)
		if !ok {
			return
		}
		d.mu.Lock()
		d.lastPrice = price
		d.lastPriceAt = time.Now()
		d.priceRefreshs++
		d.mu.Unlock()
	}

	refresh()
	ticker := time.NewTicker(d.cfg.PriceCacheTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// startHTTPServer serves health, metrics and status.
func (d *Daemon) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if !d.gate.Connected(ctx) {
			http.Error(w, "rpc unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", d.handleStatus)

	d.logger.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		d.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status        string  `json:"status"`
	Network       string  `json:"network"`
	Uptime        string  `json:"uptime"`
	ActiveEntries int     `json:"active_entries"`
	RewardPool    uint64  `json:"reward_pool_lamports"`
	PoolKnown     bool    `json:"reward_pool_known"`
	LastPrice     float64 `json:"last_price"`
	LastPriceAt   string  `json:"last_price_at,omitempty"`
	PriceRefreshs int     `json:"price_refreshes"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp := StatusResponse{
		Status:  "running",
		Network: d.cfg.Network,
		Uptime:  time.Since(d.started).String(),
	}

	if entries, err := d.gate.Entries(ctx); err == nil {
		resp.ActiveEntries = len(entries)
	}
	resp.RewardPool, resp.PoolKnown = d.gate.RewardPool(ctx)

	d.mu.Lock()
	resp.LastPrice = d.lastPrice
	if !d.lastPriceAt.IsZero() {
		resp.LastPriceAt = d.lastPriceAt.Format(time.RFC3339)
	}
	resp.PriceRefreshs = d.priceRefreshs
	d.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
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
