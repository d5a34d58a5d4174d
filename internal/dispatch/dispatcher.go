// Package dispatch ties the bar store, the indicator catalog and the
// per-symbol active sets together: every accepted bar recomputes the active
// indicators of its symbol and emits one record per indicator.
//
// Dispatcher is single-writer. The owner calls it from one goroutine; the
// records it emits are immutable and may be shared freely.
package dispatch

import (
	"log/slog"
	"time"

	"charting-systemv1/internal/barstore"
	"charting-systemv1/internal/indicator"
	"charting-systemv1/internal/model"
)

// Sink receives the records produced by one update. Implementations must
// not block the dispatcher for long.
type Sink interface {
	Emit(records []model.Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(records []model.Record)

func (f SinkFunc) Emit(records []model.Record) { f(records) }

// Observer receives timing and counting hooks (metrics). All methods are
// optional through NopObserver.
type Observer interface {
	BarAccepted(symbol string, res barstore.AppendResult)
	BarRejected(symbol string, err error)
	Computed(id string, d time.Duration)
	ActiveChanged(symbol string, n int)
}

// NopObserver ignores every hook.
type NopObserver struct{}

func (NopObserver) BarAccepted(string, barstore.AppendResult) {}
func (NopObserver) BarRejected(string, error)                 {}
func (NopObserver) Computed(string, time.Duration)            {}
func (NopObserver) ActiveChanged(string, int)                 {}

// symbolContext is the per-symbol state: selection plus one tracker per
// active indicator.
type symbolContext struct {
	active   *ActiveSet
	trackers map[string]*indicator.Tracker
}

func newSymbolContext() *symbolContext {
	return &symbolContext{active: NewActiveSet(), trackers: make(map[string]*indicator.Tracker, 8)}
}

// Dispatcher owns the symbol → context map.
type Dispatcher struct {
	store   *barstore.Store
	catalog *indicator.Catalog
	sink    Sink
	obs     Observer
	log     *slog.Logger

	symbols map[string]*symbolContext
	seq     uint64 // bumped on every change that emits records
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSink delivers every emitted batch to s.
func WithSink(s Sink) Option { return func(d *Dispatcher) { d.sink = s } }

// WithObserver installs metric hooks.
func WithObserver(o Observer) Option { return func(d *Dispatcher) { d.obs = o } }

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(d *Dispatcher) { d.log = l } }

// New creates a dispatcher over store and catalog.
func New(store *barstore.Store, catalog *indicator.Catalog, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		catalog: catalog,
		obs:     NopObserver{},
		log:     slog.Default(),
		symbols: make(map[string]*symbolContext, 16),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Dispatcher) context(symbol string) *symbolContext {
	sc, ok := d.symbols[symbol]
	if !ok {
		sc = newSymbolContext()
		d.symbols[symbol] = sc
	}
	return sc
}

// Append stores bar and returns one record per active indicator of symbol,
// in activation order. Rejected bars return the store error and emit nothing.
func (d *Dispatcher) Append(symbol string, bar model.Bar) ([]model.Record, error) {
	res, err := d.store.Append(symbol, bar)
	if err != nil {
		d.obs.BarRejected(symbol, err)
		d.log.Debug("bar rejected", "symbol", symbol, "time", bar.Time, "error", err)
		return nil, err
	}
	d.obs.BarAccepted(symbol, res)
	d.seq++

	sc := d.context(symbol)
	if sc.active.Len() == 0 {
		return nil, nil
	}

	hist := d.store.History(symbol)
	ch := indicator.Change{Replaced: res.Action == barstore.Replaced, Evicted: res.Evicted}
	records := make([]model.Record, 0, sc.active.Len())
	for _, id := range sc.active.List() {
		tr := sc.trackers[id]
		start := time.Now()
		tr.Apply(hist, ch)
		records = append(records, model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: tr.Output()})
		d.obs.Computed(id, time.Since(start))
	}
	d.emit(records)
	return records, nil
}

// Activate adds id to symbol's active set. Unknown ids are rejected with
// *indicator.UnknownIndicatorError. When the symbol already has bars the
// initial record is emitted and returned.
func (d *Dispatcher) Activate(symbol, id string) (*model.Record, error) {
	def, err := d.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	sc := d.context(symbol)
	if !sc.active.Activate(id) {
		return nil, nil
	}
	tr := indicator.NewTracker(def.Spec)
	sc.trackers[id] = tr
	d.seq++
	d.obs.ActiveChanged(symbol, sc.active.Len())
	d.log.Info("indicator activated", "symbol", symbol, "id", id)

	hist := d.store.History(symbol)
	start := time.Now()
	tr.Reset(hist)
	if len(hist) == 0 {
		return nil, nil
	}
	rec := model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: tr.Output()}
	d.obs.Computed(id, time.Since(start))
	d.emit([]model.Record{rec})
	return &rec, nil
}

// Deactivate removes id from symbol's active set. Absent ids are a no-op.
func (d *Dispatcher) Deactivate(symbol, id string) bool {
	sc, ok := d.symbols[symbol]
	if !ok || !sc.active.Deactivate(id) {
		return false
	}
	delete(sc.trackers, id)
	d.obs.ActiveChanged(symbol, sc.active.Len())
	d.log.Info("indicator deactivated", "symbol", symbol, "id", id)
	return true
}

// SetActive replaces symbol's selection with ids, in order. Trackers of ids
// that stay selected keep their incremental state; only new ids are computed
// from scratch. Every id is checked before anything changes.
func (d *Dispatcher) SetActive(symbol string, ids []string) (preserved, created int, err error) {
	defs := make([]indicator.Definition, len(ids))
	for i, id := range ids {
		if defs[i], err = d.catalog.Get(id); err != nil {
			return 0, 0, err
		}
	}

	d.seq++
	old := d.context(symbol)
	next := newSymbolContext()
	hist := d.store.History(symbol)
	var fresh []model.Record
	for i, id := range ids {
		if !next.active.Activate(id) {
			continue
		}
		if tr, ok := old.trackers[id]; ok {
			next.trackers[id] = tr
			preserved++
			continue
		}
		tr := indicator.NewTracker(defs[i].Spec)
		tr.Reset(hist)
		next.trackers[id] = tr
		created++
		if len(hist) > 0 {
			fresh = append(fresh, model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: tr.Output()})
		}
	}
	d.symbols[symbol] = next
	d.obs.ActiveChanged(symbol, next.active.Len())
	d.log.Info("active set replaced", "symbol", symbol, "preserved", preserved, "created", created)
	if len(fresh) > 0 {
		d.emit(fresh)
	}
	return preserved, created, nil
}

// ListAvailable returns the catalog definitions.
func (d *Dispatcher) ListAvailable() []indicator.Definition {
	return d.catalog.List()
}

// ListActive returns symbol's active ids in activation order.
func (d *Dispatcher) ListActive(symbol string) []string {
	sc, ok := d.symbols[symbol]
	if !ok {
		return []string{}
	}
	return sc.active.List()
}

// Query returns the current record of an active indicator without mutating
// anything. Inactive ids are computed on the fly from the catalog.
func (d *Dispatcher) Query(symbol, id string) (model.Record, error) {
	if sc, ok := d.symbols[symbol]; ok {
		if tr, ok := sc.trackers[id]; ok {
			return model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: tr.Output()}, nil
		}
	}
	def, err := d.catalog.Get(id)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: indicator.Compute(def.Spec, d.store.History(symbol))}, nil
}

// Snapshot returns the current record of every active indicator of symbol.
// Its records carry the current Seq, so any record emitted earlier has an
// equal or lower Seq.
func (d *Dispatcher) Snapshot(symbol string) []model.Record {
	sc, ok := d.symbols[symbol]
	if !ok || sc.active.Len() == 0 || d.store.Len(symbol) == 0 {
		return nil
	}
	out := make([]model.Record, 0, sc.active.Len())
	for _, id := range sc.active.List() {
		out = append(out, model.Record{Symbol: symbol, ID: id, Seq: d.seq, Output: sc.trackers[id].Output()})
	}
	return out
}

// History returns a copy of symbol's bars.
func (d *Dispatcher) History(symbol string) []model.Bar {
	return d.store.History(symbol)
}

// Symbols lists symbols with stored bars.
func (d *Dispatcher) Symbols() []string {
	return d.store.Symbols()
}

func (d *Dispatcher) emit(records []model.Record) {
	if d.sink != nil && len(records) > 0 {
		d.sink.Emit(records)
	}
}
