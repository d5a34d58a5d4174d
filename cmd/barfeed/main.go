// Command barfeed drives a running indengine with bars, either replayed
// from the SQLite archive or generated by a random walk.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"charting-systemv1/internal/feed"
	"charting-systemv1/internal/logger"
	"charting-systemv1/internal/model"
	"charting-systemv1/internal/store/sqlite"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	engine := flag.String("engine", envOrDefault("BARFEED_ENGINE", "http://localhost:9095"), "engine base URL")
	mode := flag.String("mode", "sim", "replay | sim")
	dbPath := flag.String("db", envOrDefault("SQLITE_PATH", "data/bars.db"), "archive to replay from")
	symbols := flag.String("symbols", "AAPL,MSFT", "comma-separated symbols (replay: empty means all)")
	limit := flag.Int("limit", 1000, "replay: newest bars per symbol")
	speed := flag.Float64("speed", 10, "replay: speed multiplier, 0 for no pacing")
	interval := flag.Duration("interval", time.Second, "sim: wall time between bars")
	step := flag.Duration("step", time.Minute, "sim: bar duration")
	count := flag.Int("count", 0, "sim: periods to generate, 0 for unbounded")
	price := flag.Float64("price", 100, "sim: starting price")
	level := flag.String("log-level", envOrDefault("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	lvl, err := logger.ParseLevel(*level)
	log := logger.Init("barfeed", lvl)
	if err != nil {
		log.Warn("falling back to info level", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syms := splitSymbols(*symbols)
	bars := make(chan model.SymbolBar, 64)
	poster := feed.NewPoster(strings.TrimRight(*engine, "/"), log)

	done := make(chan struct{})
	var posted, failed int
	go func() {
		posted, failed = poster.Run(ctx, bars)
		close(done)
	}()

	switch *mode {
	case "replay":
		reader, err := sqlite.NewReader(*dbPath)
		if err != nil {
			log.Error("open archive", "error", err)
			os.Exit(1)
		}
		defer reader.Close()
		if _, err := feed.NewReplayer(reader, log).Run(ctx, syms, *limit, *speed, bars); err != nil && ctx.Err() == nil {
			log.Error("replay failed", "error", err)
		}
	case "sim":
		if len(syms) == 0 {
			fmt.Fprintln(os.Stderr, "barfeed: -symbols is required in sim mode")
			os.Exit(2)
		}
		sim := feed.NewSimulator(syms, *price, time.Now().Truncate(*step), *step, time.Now().UnixNano())
		log.Info("simulating", "symbols", syms, "interval", *interval, "step", *step)
		sim.Run(ctx, *count, *interval, bars)
	default:
		fmt.Fprintf(os.Stderr, "barfeed: unknown mode %q\n", *mode)
		os.Exit(2)
	}

	close(bars)
	<-done
	log.Info("feed finished", "posted", posted, "failed", failed)
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
