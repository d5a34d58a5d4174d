// Package feed produces bars for the engine outside of production ingest:
// replaying the SQLite archive or simulating random-walk markets, and
// posting the result to a running engine.
package feed

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"charting-systemv1/internal/model"
)

// Source is the read side of the bar archive.
type Source interface {
	Symbols() ([]string, error)
	ReadBars(symbol string, limit int) ([]model.Bar, error)
}

// maxReplayGap caps the sleep between two replayed bars.
const maxReplayGap = 5 * time.Second

// Replayer emits archived bars in time order at a configurable speed.
type Replayer struct {
	src Source
	log *slog.Logger
}

// NewReplayer creates a Replayer over src.
func NewReplayer(src Source, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{src: src, log: log.With("component", "replay")}
}

// Run replays the newest limit bars of each symbol (all symbols when
// symbols is empty), merged by time. speed 1 is real time, 10 is ten times
// faster and 0 means no pacing. Returns the number of bars sent.
func (r *Replayer) Run(ctx context.Context, symbols []string, limit int, speed float64, out chan<- model.SymbolBar) (int, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = r.src.Symbols(); err != nil {
			return 0, err
		}
	}
	var all []model.SymbolBar
	for _, sym := range symbols {
		bars, err := r.src.ReadBars(sym, limit)
		if err != nil {
			return 0, err
		}
		for _, b := range bars {
			all = append(all, model.SymbolBar{Symbol: sym, Bar: b})
		}
	}
	if len(all) == 0 {
		r.log.Info("archive is empty, nothing to replay")
		return 0, nil
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time < all[j].Time })
	r.log.Info("replay loaded", "bars", len(all), "symbols", len(symbols), "speed", speed)

	var prev int64
	for i, sb := range all {
		if speed > 0 && i > 0 && sb.Time > prev {
			gap := time.Duration(float64(time.Duration(sb.Time-prev)*time.Second) / speed)
			if gap > maxReplayGap {
				gap = maxReplayGap
			}
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(gap):
			}
		}
		prev = sb.Time
		select {
		case out <- sb:
		case <-ctx.Done():
			return i, ctx.Err()
		}
	}
	r.log.Info("replay complete", "bars", len(all))
	return len(all), nil
}
