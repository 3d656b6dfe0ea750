// Command node runs a single ring participant. It registers with the
// Registrar, serves the election/leader RPCs, runs a failure detector
// against the current leader, and exposes a line-oriented operator console.
//
// Example usage:
//
//	NODE_UID=5 NODE_LISTEN=:8081 NODE_ADDR=http://localhost:8081 \
//	REGISTRAR_ADDR=http://localhost:8080 ./node
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ringvote/ringvote/internal/config"
	"github.com/ringvote/ringvote/internal/detector"
	"github.com/ringvote/ringvote/internal/logging"
	"github.com/ringvote/ringvote/internal/node"
	"github.com/ringvote/ringvote/internal/telemetry"
)

const (
	registerAttempts = 10
	registerDelay    = 400 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "", "path to a node YAML config file")
	dev := flag.Bool("dev", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node: load config: %v\n", err)
		os.Exit(1)
	}

	sugar := logging.New(fmt.Sprintf("node-%d", cfg.UID), *dev)
	defer sugar.Sync()

	n := node.New(cfg.UID, cfg, sugar)

	mux := n.Mux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: telemetry.Instrument(fmt.Sprintf("node-%d", cfg.UID), mux),
	}

	go func() {
		sugar.Infow("node listening", "uid", cfg.UID, "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("node server failed", "err", err)
		}
	}()

	if err := registerWithRetry(context.Background(), n, sugar); err != nil {
		sugar.Fatalw("node: registration exhausted retries", "err", err)
	}

	det := detector.New(n, cfg.HeartbeatPeriod, cfg.ProbeTimeout, sugar)
	ctx, cancelDetector := context.WithCancel(context.Background())
	det.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	consoleDone := make(chan struct{})
	go runConsole(context.Background(), n, consoleDone)

	select {
	case <-stop:
	case <-consoleDone:
	}

	sugar.Infow("node shutting down", "uid", cfg.UID)
	det.Stop()
	cancelDetector()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func registerWithRetry(ctx context.Context, n *node.Node, log interface {
	Warnw(string, ...any)
}) error {
	var lastErr error
	for i := 0; i < registerAttempts; i++ {
		lastErr = n.Register(ctx)
		if lastErr == nil {
			return nil
		}
		log.Warnw("node: registration attempt failed, retrying", "attempt", i+1, "err", lastErr)
		time.Sleep(registerDelay)
	}
	return lastErr
}

// runConsole is the direct generalization of the original operator input
// loop: each line maps to exactly one Node operation.
func runConsole(ctx context.Context, n *node.Node, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("ready. commands: start, leader, kill, recover, status, debug, reset, help, exit")
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "":
			continue
		case "start":
			if err := n.InitiateElection(ctx, false); err != nil {
				fmt.Println("error:", err)
			}
		case "leader":
			snap := n.Status()
			if snap.HasLeader {
				fmt.Println("leader:", snap.LeaderUID)
			} else {
				fmt.Println("no leader")
			}
		case "kill":
			if err := n.SetAlive(ctx, false); err != nil {
				fmt.Println("error:", err)
			}
		case "recover":
			if err := n.Recover(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "status":
			snap := n.Status()
			fmt.Printf("uid=%d alive=%v state=%s leader=%d round=%d epoch=%d successor=%d\n",
				snap.UID, snap.Alive, snap.State, snap.LeaderUID, snap.ElectionRound, snap.Epoch, snap.Successor.UID)
		case "debug":
			for _, e := range n.Ledger().All() {
				fmt.Printf("[%d] round=%s %s %s\n", e.Seq, e.RoundID, e.Kind, e.Detail)
			}
		case "reset":
			n.Reset()
		case "help":
			fmt.Println("start, leader, kill, recover, status, debug, reset, help, exit")
		case "exit":
			return
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}
