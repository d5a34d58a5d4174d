package indengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"charting-systemv1/internal/barstore"
	"charting-systemv1/internal/indicator"
	"charting-systemv1/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBarsBody = 8 << 20

// Handler returns the HTTP routes of the service.
func (svc *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", svc.health.ServeHTTP)
	r.Handle("/metrics", svc.prom.Handler())
	r.Handle("/ws", svc.hub)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(requestLogger(svc.log))
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(cors)

		r.Get("/indicators", svc.handleListIndicators)
		r.Route("/symbols/{symbol}", func(r chi.Router) {
			r.Post("/bars", svc.handleAppendBars)
			r.Get("/bars", svc.handleGetBars)
			r.Get("/active", svc.handleGetActive)
			r.Put("/active", svc.handleSetActive)
			r.Post("/active/{id}", svc.handleActivate)
			r.Delete("/active/{id}", svc.handleDeactivate)
			r.Get("/indicators/{id}", svc.handleQuery)
		})
	})
	return r
}

func (svc *Service) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"indicators": svc.Catalog()})
}

// handleAppendBars accepts one bar object or an array of bars.
func (svc *Service) handleAppendBars(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	bars, err := decodeBars(http.MaxBytesReader(w, r.Body, maxBarsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := svc.AppendBars(r.Context(), symbol, bars)
	if err != nil {
		status := statusFor(err)
		writeJSON(w, status, struct {
			Error string `json:"error"`
			IngestResult
		}{err.Error(), res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBars(body io.Reader) ([]model.Bar, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON: " + err.Error())
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var bars []model.Bar
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, errors.New("invalid bars: " + err.Error())
		}
		return bars, nil
	}
	var b model.Bar
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.New("invalid bar: " + err.Error())
	}
	return []model.Bar{b}, nil
}

func (svc *Service) handleGetBars(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	bars, err := svc.History(r.Context(), symbol, limit)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "bars": bars})
}

func (svc *Service) handleGetActive(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	ids, err := svc.ListActive(r.Context(), symbol)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "active": ids})
}

func (svc *Service) handleSetActive(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	preserved, created, err := svc.SetActive(r.Context(), symbol, body.IDs)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	ids, err := svc.ListActive(r.Context(), symbol)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"active":    ids,
		"preserved": preserved,
		"created":   created,
	})
}

func (svc *Service) handleActivate(w http.ResponseWriter, r *http.Request) {
	symbol, id := chi.URLParam(r, "symbol"), chi.URLParam(r, "id")
	rec, err := svc.Activate(r.Context(), symbol, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := map[string]interface{}{"symbol": symbol, "id": id, "active": true}
	if rec != nil {
		resp["record"] = rec.Message()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (svc *Service) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	symbol, id := chi.URLParam(r, "symbol"), chi.URLParam(r, "id")
	removed, err := svc.Deactivate(r.Context(), symbol, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "id": id, "removed": removed})
}

func (svc *Service) handleQuery(w http.ResponseWriter, r *http.Request) {
	symbol, id := chi.URLParam(r, "symbol"), chi.URLParam(r, "id")
	rec, err := svc.Query(r.Context(), symbol, id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec.Message())
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *barstore.ValidationError
		oerr *barstore.OutOfOrderError
		uerr *indicator.UnknownIndicatorError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &oerr):
		return http.StatusConflict
	case errors.As(err, &uerr):
		return http.StatusNotFound
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one structured line per API request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
