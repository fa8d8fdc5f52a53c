package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/duesync/duesync/internal/identity"
	"github.com/duesync/duesync/internal/metrics"
	"github.com/duesync/duesync/internal/rpc"
	"github.com/duesync/duesync/internal/store/sqlite"
	"github.com/duesync/duesync/pkg/logging"
)

// config carries all process configuration explicitly; nothing below main
// reads the environment.
type config struct {
	addr      string
	dbPath    string
	jwtSecret string
	logFormat string
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func loadConfig() config {
	return config{
		addr:      getEnv("LISTEN_ADDR", ":8080"),
		dbPath:    getEnv("DB_PATH", "./data/duesync.db"),
		jwtSecret: getEnv("JWT_SECRET", "dev-only-secret"),
		logFormat: getEnv("LOG_FORMAT", "text"),
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	if cfg.logFormat == "json" {
		logging.SetupJSON(logging.LevelFromEnv())
	} else {
		logging.Setup()
	}

	store, err := sqlite.New(cfg.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.dbPath)

	// The verifier shares the signing secret with the clients' identity
	// providers; it only validates and extracts, it never mints here.
	verifier := identity.NewTokenVerifier(cfg.jwtSecret)

	mux := http.NewServeMux()
	handler := rpc.NewStoreHandler(store)
	handler.Mount(mux, connect.WithInterceptors(
		rpc.StampIdentity(verifier.Verify),
		rpc.LoggingInterceptor(),
	))

	mux.Handle("/metrics", metrics.Handler())

	// h2c enables HTTP/2 without TLS, required for Connect streaming.
	h2cHandler := h2c.NewHandler(corsMiddleware(mux), &http2.Server{})

	server := &http.Server{
		Addr:    cfg.addr,
		Handler: h2cHandler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", cfg.addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
