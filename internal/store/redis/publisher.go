package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"charting-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

var _ model.RecordWriter = (*Publisher)(nil)

// DefaultPublishPrefix prefixes record channels: pub:ind:<id>:<symbol>.
const DefaultPublishPrefix = "pub:ind"

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Prefix       string        // channel prefix, default DefaultPublishPrefix
	MaxFailures  int           // consecutive failures before the breaker opens, default 5
	ResetTimeout time.Duration // breaker open time before a probe, default 10s
	Logger       *slog.Logger

	// OnWrite is called after every pipeline round-trip.
	OnWrite func(d time.Duration, err error)
	// OnStateChange is called on breaker transitions.
	OnStateChange func(from, to State)
}

// Publisher publishes indicator records on redis pub/sub. Writes go
// through a circuit breaker; while it is open the newest record per
// (symbol, id) is held back and published with the next successful batch.
// Older records for the same key are superseded, so nothing stale is
// replayed after an outage.
type Publisher struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	prefix  string
	log     *slog.Logger
	onWrite func(time.Duration, error)

	mu      sync.Mutex
	pending map[string]model.Record
}

// NewPublisher wraps client. The caller keeps ownership of client until
// Close.
func NewPublisher(client *goredis.Client, cfg PublisherConfig) *Publisher {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPublishPrefix
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	log := cfg.Logger.With("component", "redis-publisher")
	cb.OnStateChange = func(from, to State) {
		log.Warn("circuit breaker transition", "from", from.String(), "to", to.String())
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(from, to)
		}
	}
	return &Publisher{
		client:  client,
		cb:      cb,
		prefix:  cfg.Prefix,
		log:     log,
		onWrite: cfg.OnWrite,
		pending: make(map[string]model.Record),
	}
}

// Channel returns the pub/sub channel of a record.
func (p *Publisher) Channel(r *model.Record) string {
	return p.prefix + ":" + r.ID + ":" + r.Symbol
}

// Breaker exposes the circuit breaker for health reporting.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// Pending returns the number of records held back by an open breaker.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// WriteRecordBatch publishes records, plus anything held back, in one
// pipeline. On failure the batch is held back and the error returned.
func (p *Publisher) WriteRecordBatch(ctx context.Context, records []model.Record) error {
	batch := p.takePending(records)
	if len(batch) == 0 {
		return nil
	}
	err := p.cb.Execute(func() error { return p.publish(ctx, batch) })
	if err != nil {
		p.holdBack(batch)
		return err
	}
	return nil
}

// Run publishes batches from in until ctx is cancelled or in is closed.
func (p *Publisher) Run(ctx context.Context, in <-chan []model.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-in:
			if !ok {
				return
			}
			err := p.WriteRecordBatch(ctx, batch)
			switch {
			case err == nil, ctx.Err() != nil:
			case errors.Is(err, ErrCircuitOpen):
				p.log.Debug("publish deferred, breaker open", "held", p.Pending())
			default:
				p.log.Warn("publish failed", "records", len(batch), "error", err)
			}
		}
	}
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

func (p *Publisher) publish(ctx context.Context, batch []model.Record) error {
	start := time.Now()
	pipe := p.client.Pipeline()
	for i := range batch {
		r := &batch[i]
		pipe.Publish(ctx, p.Channel(r), r.MessageJSON())
	}
	_, err := pipe.Exec(ctx)
	if p.onWrite != nil {
		p.onWrite(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("publish pipeline (%d records): %w", len(batch), err)
	}
	return nil
}

// takePending merges records over the held-back set and returns the batch
// in key order.
func (p *Publisher) takePending(records []model.Record) []model.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return records
	}
	for _, r := range records {
		p.pending[r.Key()] = r
	}
	keys := make([]string, 0, len(p.pending))
	for k := range p.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := make([]model.Record, len(keys))
	for i, k := range keys {
		batch[i] = p.pending[k]
	}
	p.pending = make(map[string]model.Record, len(keys))
	return batch
}

// holdBack keeps the newest record per key. A key filled meanwhile by a
// concurrent caller wins over the failed batch.
func (p *Publisher) holdBack(batch []model.Record) {
	newest := make(map[string]model.Record, len(batch))
	for _, r := range batch {
		newest[r.Key()] = r
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, r := range newest {
		if _, ok := p.pending[k]; !ok {
			p.pending[k] = r
		}
	}
}
