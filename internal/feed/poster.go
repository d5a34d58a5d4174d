package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"charting-systemv1/internal/model"
)

// Poster sends bars to an engine's POST /api/symbols/{symbol}/bars.
type Poster struct {
	base   string
	client *http.Client
	log    *slog.Logger
}

// NewPoster targets the engine at base, e.g. "http://localhost:9095".
func NewPoster(base string, log *slog.Logger) *Poster {
	if log == nil {
		log = slog.Default()
	}
	return &Poster{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With("component", "poster"),
	}
}

// Post sends one bar. A non-2xx answer is returned as an error carrying
// the engine's message.
func (p *Poster) Post(ctx context.Context, sb model.SymbolBar) error {
	body, err := json.Marshal(sb.Bar)
	if err != nil {
		return err
	}
	u := p.base + "/api/symbols/" + url.PathEscape(sb.Symbol) + "/bars"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s@%d: %w", sb.Symbol, sb.Time, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(raw, &e)
		return fmt.Errorf("post %s@%d: %s: %s", sb.Symbol, sb.Time, resp.Status, e.Error)
	}
	return nil
}

// Run posts bars from in until it is closed or ctx is cancelled. Rejected
// bars are logged and skipped. Returns posted and failed counts.
func (p *Poster) Run(ctx context.Context, in <-chan model.SymbolBar) (posted, failed int) {
	for {
		select {
		case <-ctx.Done():
			return
		case sb, ok := <-in:
			if !ok {
				return
			}
			if err := p.Post(ctx, sb); err != nil {
				if ctx.Err() != nil {
					return
				}
				failed++
				p.log.Warn("bar not accepted", "error", err)
				continue
			}
			posted++
		}
	}
}
