package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-favorites/backend/internal/config"
	"github.com/zhouzirui/z-favorites/backend/internal/handler"
	"github.com/zhouzirui/z-favorites/backend/internal/service/directory"
	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
	"github.com/zhouzirui/z-favorites/backend/internal/storage/kv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := kv.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("failed to open %s storage: %v", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("warning: failed to close storage: %v", err)
		}
	}()

	directoryClient := directory.NewHTTPClient(cfg.Directory.BaseURL,
		directory.WithTimeout(cfg.Directory.Timeout),
		directory.WithAPIKey(cfg.Directory.APIKey),
	)
	if cfg.Directory.APIKey == "" {
		log.Println("DIRECTORY_API_KEY not set, directory requests are sent without x-api-key")
	}

	favoritesSvc := favorites.NewService(directoryClient, store, favorites.Config{
		Page: cfg.Directory.Page,
		Key:  cfg.Storage.Key,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := favoritesSvc.Close(closeCtx); err != nil {
			log.Printf("warning: failed to flush favorites: %v", err)
		}
	}()

	// Both loads are best-effort; the server starts with whatever they produced.
	favoritesSvc.Bootstrap(ctx)

	router := handler.NewRouter(favoritesSvc)

	if err := startServer(ctx, cfg.Server, router); err != nil {
		log.Printf("server error: %v", err)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	ln, err := net.Listen("tcp", serverCfg.Addr)
	if err != nil {
		return err
	}

	log.Printf("favorites backend listening on %s", ln.Addr())
	return runServer(ctx, newServer(ctx, router), ln)
}

// newServer ties every request context to ctx, so long-lived SSE and
// WebSocket handlers return once shutdown begins.
func newServer(ctx context.Context, router http.Handler) *http.Server {
	return &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runServer(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		log.Println("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("warning: graceful shutdown incomplete: %v", err)
			_ = srv.Close()
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
