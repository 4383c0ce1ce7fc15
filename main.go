package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/vrsandeep/collections-go/internal/api"
	"github.com/vrsandeep/collections-go/internal/core"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	app.Version = version

	// Setup the API server
	server := api.NewServer(app)
	cfg := app.Config()
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Could not listen on %s: %v", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		// Progress streams hold their connection open, so cap them.
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}

	// --- Graceful Shutdown ---
	go func() {
		log.Printf("Starting web server on %s", addr)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop running jobs at their next batch boundary before the
	// connections carrying their progress go away.
	app.Engine().CancelAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
