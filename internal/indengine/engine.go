package indengine

import (
	"context"
	"time"

	"charting-systemv1/internal/barstore"
	"charting-systemv1/internal/dispatch"
	"charting-systemv1/internal/indicator"
	"charting-systemv1/internal/logger"
	"charting-systemv1/internal/metrics"
	"charting-systemv1/internal/model"
	redisstore "charting-systemv1/internal/store/redis"
)

// processLoop is the only goroutine that touches the store and the
// dispatcher.
func (svc *Service) processLoop(ctx context.Context) {
	defer close(svc.quit)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-svc.cmds:
			cmd()
		}
	}
}

// exec runs fn on the processing goroutine and waits for it.
func (svc *Service) exec(ctx context.Context, fn func(d *dispatch.Dispatcher)) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn(svc.disp)
	}
	select {
	case svc.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-svc.quit:
		return ErrStopped
	}
	<-done
	return nil
}

// Emit implements dispatch.Sink. It runs on the processing goroutine.
func (svc *Service) Emit(records []model.Record) {
	svc.prom.RecordsEmitted.Add(float64(len(records)))
	select {
	case svc.recordCh <- records:
	case <-svc.stopping:
	}
}

// IngestResult summarizes one bars request.
type IngestResult struct {
	Appended int `json:"appended"`
	Replaced int `json:"replaced"`
	Records  int `json:"records"`
}

// AppendBars feeds bars to symbol in order. It stops at the first rejected
// bar and returns its error together with what was accepted before it.
func (svc *Service) AppendBars(ctx context.Context, symbol string, bars []model.Bar) (IngestResult, error) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, time.Now()))
	var res IngestResult
	var appendErr error
	err := svc.exec(ctx, func(d *dispatch.Dispatcher) {
		for _, b := range bars {
			last, hadLast := svc.store.Last(symbol)
			records, err := d.Append(symbol, b)
			if err != nil {
				appendErr = err
				return
			}
			if hadLast && last.Time == b.Time {
				res.Replaced++
			} else {
				res.Appended++
			}
			res.Records += len(records)
			svc.prom.LastBarLag.Set(time.Since(b.TS()).Seconds())
			svc.archiveBar(model.SymbolBar{Symbol: symbol, Bar: b})
		}
	})
	if err != nil {
		return res, err
	}
	if appendErr != nil {
		svc.log.Debug("bars request stopped at rejected bar", append(logger.LogWithTrace(ctx), "symbol", symbol, "error", appendErr)...)
	}
	return res, appendErr
}

func (svc *Service) archiveBar(sb model.SymbolBar) {
	if svc.archive == nil {
		return
	}
	select {
	case svc.archiveCh <- sb:
	case <-svc.stopping:
	}
}

// Activate adds id to symbol's selection and returns the initial record
// when the symbol already has bars.
func (svc *Service) Activate(ctx context.Context, symbol, id string) (*model.Record, error) {
	var rec *model.Record
	var actErr error
	if err := svc.exec(ctx, func(d *dispatch.Dispatcher) { rec, actErr = d.Activate(symbol, id) }); err != nil {
		return nil, err
	}
	return rec, actErr
}

// Deactivate removes id from symbol's selection and reports whether it was
// active.
func (svc *Service) Deactivate(ctx context.Context, symbol, id string) (bool, error) {
	var removed bool
	err := svc.exec(ctx, func(d *dispatch.Dispatcher) { removed = d.Deactivate(symbol, id) })
	return removed, err
}

// SetActive replaces symbol's selection.
func (svc *Service) SetActive(ctx context.Context, symbol string, ids []string) (preserved, created int, err error) {
	var setErr error
	if err := svc.exec(ctx, func(d *dispatch.Dispatcher) { preserved, created, setErr = d.SetActive(symbol, ids) }); err != nil {
		return 0, 0, err
	}
	return preserved, created, setErr
}

// ListActive returns symbol's active ids in activation order.
func (svc *Service) ListActive(ctx context.Context, symbol string) ([]string, error) {
	var ids []string
	err := svc.exec(ctx, func(d *dispatch.Dispatcher) { ids = d.ListActive(symbol) })
	return ids, err
}

// Query returns the current record of id on symbol.
func (svc *Service) Query(ctx context.Context, symbol, id string) (model.Record, error) {
	var rec model.Record
	var qErr error
	if err := svc.exec(ctx, func(d *dispatch.Dispatcher) { rec, qErr = d.Query(symbol, id) }); err != nil {
		return model.Record{}, err
	}
	return rec, qErr
}

// Latest returns the current record of every active indicator of symbol.
func (svc *Service) Latest(ctx context.Context, symbol string) ([]model.Record, error) {
	var recs []model.Record
	err := svc.exec(ctx, func(d *dispatch.Dispatcher) { recs = d.Snapshot(symbol) })
	return recs, err
}

// History returns the newest limit bars of symbol; limit <= 0 returns all.
func (svc *Service) History(ctx context.Context, symbol string, limit int) ([]model.Bar, error) {
	var bars []model.Bar
	err := svc.exec(ctx, func(d *dispatch.Dispatcher) { bars = d.History(symbol) })
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, err
}

// Catalog lists the available indicators. The catalog is immutable and
// needs no trip through the processing loop.
func (svc *Service) Catalog() []indicator.Definition {
	return svc.catalog.List()
}

// warmStart seeds the store from the archive. It runs before the
// processing loop starts.
func (svc *Service) warmStart() {
	if svc.warm == nil {
		return
	}
	symbols, err := svc.warm.Symbols()
	if err != nil {
		svc.log.Warn("warm start: list symbols failed", "error", err)
		return
	}
	total := 0
	for _, sym := range symbols {
		bars, err := svc.warm.ReadBars(sym, svc.store.Capacity())
		if err != nil {
			svc.log.Warn("warm start: read bars failed", "symbol", sym, "error", err)
			continue
		}
		total += svc.store.Seed(sym, bars)
	}
	if total > 0 {
		svc.log.Info("warm start complete", "symbols", len(symbols), "bars", total)
		svc.health.ObserveBar(time.Now(), len(svc.store.Symbols()))
	}
}

func (svc *Service) pruneLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.sqlWriter.Prune(svc.cfg.ArchiveRetention)
			if err != nil {
				svc.log.Warn("archive prune failed", "error", err)
				continue
			}
			if n > 0 {
				svc.log.Info("archive pruned", "rows", n, "keep", svc.cfg.ArchiveRetention)
			}
		}
	}
}

func (svc *Service) saturationLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	sample := func(name string, n, c int) {
		if c > 0 {
			svc.prom.ChannelSaturationPct.WithLabelValues(name).Set(float64(n) / float64(c) * 100)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample("records", len(svc.recordCh), cap(svc.recordCh))
			sample("archive", len(svc.archiveCh), cap(svc.archiveCh))
			for _, st := range svc.fanout.ChannelStats() {
				sample("fanout_"+st.Name, st.Len, st.Cap)
			}
		}
	}
}

// engineObserver forwards dispatcher hooks to metrics and health.
type engineObserver struct {
	*metrics.Metrics
	health *metrics.HealthStatus
	store  *barstore.Store
}

func (o engineObserver) BarAccepted(symbol string, res barstore.AppendResult) {
	o.Metrics.BarAccepted(symbol, res)
	o.health.ObserveBar(time.Now(), len(o.store.Symbols()))
}

// hubController adapts the service to gateway.Controller.
type hubController struct{ svc *Service }

func (h hubController) Activate(ctx context.Context, symbol, id string) error {
	_, err := h.svc.Activate(ctx, symbol, id)
	return err
}

func (h hubController) Deactivate(ctx context.Context, symbol, id string) error {
	_, err := h.svc.Deactivate(ctx, symbol, id)
	return err
}

func (h hubController) Latest(ctx context.Context, symbol string) ([]model.Record, error) {
	return h.svc.Latest(ctx, symbol)
}

// handleCommand applies a selection command received over Redis.
func (svc *Service) handleCommand(ctx context.Context, cmd redisstore.Command) error {
	svc.prom.RedisCommandsTotal.WithLabelValues(cmd.Action).Inc()
	switch cmd.Action {
	case redisstore.ActionActivate:
		_, err := svc.Activate(ctx, cmd.Symbol, cmd.ID)
		return err
	case redisstore.ActionDeactivate:
		_, err := svc.Deactivate(ctx, cmd.Symbol, cmd.ID)
		return err
	case redisstore.ActionSet:
		preserved, created, err := svc.SetActive(ctx, cmd.Symbol, cmd.IDs)
		if err == nil {
			svc.log.Info("selection replaced over redis", "symbol", cmd.Symbol, "preserved", preserved, "created", created)
		}
		return err
	}
	return nil
}
