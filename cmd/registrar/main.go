// Command registrar runs the singleton membership and ring-assembly
// service. Nodes register with it on startup, and it rebuilds the ring
// topology in ascending-UID order whenever a node registers or asks for a
// rebuild.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ringvote/ringvote/internal/config"
	"github.com/ringvote/ringvote/internal/logging"
	"github.com/ringvote/ringvote/internal/registrar"
	"github.com/ringvote/ringvote/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a registrar YAML config file")
	dev := flag.Bool("dev", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	cfg, err := config.LoadRegistrar(*configPath)
	if err != nil {
		log.Fatalf("registrar: load config: %v", err)
	}

	sugar := logging.New("registrar", *dev)
	defer sugar.Sync()

	reg := registrar.New()
	srv := registrar.NewServer(reg, sugar)

	mux := srv.Mux()
	mux.Handle("/metrics", telemetry.MetricsHandler())

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: telemetry.Instrument("registrar", mux),
	}

	go func() {
		sugar.Infow("registrar listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("registrar server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sugar.Infow("registrar shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		sugar.Errorw("registrar shutdown error", "err", err)
	}
}
