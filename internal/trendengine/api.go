package trendengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"trendsys/internal/analyzer"
	"trendsys/internal/trend"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKeyRequestID struct{}

const maxBodyBytes = 4 << 20

// startHTTP launches the HTTP server.
func (svc *Service) startHTTP(ctx context.Context) {
	svc.httpSrv = &http.Server{
		Addr:              svc.cfg.HTTPAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", svc.cfg.HTTPAddr))
		if err := svc.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()
}

// Router builds the HTTP routes.
func (svc *Service) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(requestLoggingMiddleware)
	api.HandleFunc("/analyze", svc.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/breakdown", svc.handleBreakdown).Methods(http.MethodPost)
	api.HandleFunc("/peaks", svc.handleExtrema(trend.Peaks, "peaks")).Methods(http.MethodPost)
	api.HandleFunc("/valleys", svc.handleExtrema(trend.Valleys, "valleys")).Methods(http.MethodPost)
	api.HandleFunc("/trend/{kind:peak|valley|overall}", svc.handleTrendLine).Methods(http.MethodPost)
	api.HandleFunc("/presets", handlePresets).Methods(http.MethodGet)
	api.HandleFunc("/config", svc.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/latest/{exchange}/{token}/{tf:[0-9]+}", svc.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/reports/{exchange}/{token}/{tf:[0-9]+}", svc.handleReports).Methods(http.MethodGet)
	api.HandleFunc("/missed", svc.handleMissed).Methods(http.MethodGet)

	r.HandleFunc("/reload", svc.handleReload).Methods(http.MethodPost)
	r.Handle("/healthz", svc.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.Handle("/ws", svc.hub).Methods(http.MethodGet)
	return r
}

// requestIDMiddleware tags each request with a short ID, reusing the caller's
// X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()[:8]
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		id, _ := r.Context().Value(ctxKeyRequestID{}).(string)
		slog.Debug("http request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the trend error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	kind := errorKind(err)
	code := http.StatusInternalServerError
	switch kind {
	case "invalid_input":
		code = http.StatusBadRequest
	case "insufficient_data", "invalid_configuration", "degenerate_fit":
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", trend.ErrInvalidInput, err)
	}
	return nil
}

// seriesRequest is the body shared by the stateless analysis endpoints.
// Omitted parameters fall back to the engine's current options.
type seriesRequest struct {
	Prices          []float64         `json:"prices"`
	Highs           []float64         `json:"highs,omitempty"`
	Lows            []float64         `json:"lows,omitempty"`
	Config          *trend.ConfigSpec `json:"config,omitempty"`
	Period          *int              `json:"period,omitempty"`
	ClosestNeighbor *int              `json:"closest_neighbor,omitempty"`
}

// currentOptions returns the options the engine is running with.
func (svc *Service) currentOptions() analyzer.Options {
	if svc.engine != nil {
		return svc.engine.Config().Options
	}
	if svc.cfg.Engine.Options.ExtremaPeriod > 0 {
		return svc.cfg.Engine.Options
	}
	return analyzer.DefaultOptions()
}

// options overlays the request's parameters on the current options.
func (req seriesRequest) options(base analyzer.Options) (analyzer.Options, error) {
	opt := base
	if req.Config != nil {
		cfg, err := req.Config.Build()
		if err != nil {
			return opt, err
		}
		opt.Config = cfg
	}
	if req.Period != nil {
		opt.ExtremaPeriod = *req.Period
	}
	if req.ClosestNeighbor != nil {
		opt.ExtremaNeighbor = *req.ClosestNeighbor
	}
	return opt, nil
}

func (svc *Service) parseSeries(w http.ResponseWriter, r *http.Request) (seriesRequest, analyzer.Options, error) {
	var req seriesRequest
	if err := decodeBody(w, r, &req); err != nil {
		return req, analyzer.Options{}, err
	}
	opt, err := req.options(svc.currentOptions())
	return req, opt, err
}

// segmentView adds the derived fields clients usually want.
type segmentView struct {
	trend.Segment
	Length    int             `json:"length"`
	Direction trend.Direction `json:"direction"`
}

func segmentViews(segs []trend.Segment) []segmentView {
	out := make([]segmentView, len(segs))
	for i, s := range segs {
		out[i] = segmentView{Segment: s, Length: s.Len(), Direction: s.Direction()}
	}
	return out
}

// handleAnalyze handles POST /api/v1/analyze: the full decomposition.
func (svc *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, opt, err := svc.parseSeries(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := analyzer.Analyze(analyzer.Series{Close: req.Prices, High: req.Highs, Low: req.Lows}, opt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":        opt.Config.String(),
		"points":        len(req.Prices),
		"segments":      segmentViews(res.Segments),
		"peaks":         res.Peaks,
		"valleys":       res.Valleys,
		"peak_trend":    res.PeakTrend,
		"valley_trend":  res.ValleyTrend,
		"overall_trend": res.OverallTrend,
	})
}

// handleBreakdown handles POST /api/v1/breakdown.
func (svc *Service) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	req, opt, err := svc.parseSeries(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	segs, err := trend.BreakDownTrends(req.Prices, opt.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":   opt.Config.String(),
		"segments": segmentViews(segs),
	})
}

type extremaFunc func(prices []float64, period, closestNeighbor int) ([]trend.Extremum, error)

// handleExtrema handles POST /api/v1/peaks and /api/v1/valleys.
func (svc *Service) handleExtrema(find extremaFunc, field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, opt, err := svc.parseSeries(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		ext, err := find(req.Prices, opt.ExtremaPeriod, opt.ExtremaNeighbor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{field: ext})
	}
}

// handleTrendLine handles POST /api/v1/trend/{peak|valley|overall}.
func (svc *Service) handleTrendLine(w http.ResponseWriter, r *http.Request) {
	req, opt, err := svc.parseSeries(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	var line trend.TrendLine
	switch mux.Vars(r)["kind"] {
	case "peak":
		line, err = trend.PeakTrend(req.Prices, opt.ExtremaPeriod)
	case "valley":
		line, err = trend.ValleyTrend(req.Prices, opt.ExtremaPeriod)
	default:
		line, err = trend.OverallTrend(req.Prices)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

type presetView struct {
	Name       string           `json:"name"`
	Thresholds trend.Thresholds `json:"thresholds"`
}

// handlePresets handles GET /api/v1/presets.
func handlePresets(w http.ResponseWriter, r *http.Request) {
	var out []presetView
	for _, p := range trend.Presets() {
		t, err := trend.PresetConfig(p).Resolve()
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, presetView{Name: p.String(), Thresholds: t})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleConfig handles GET /api/v1/config: the options in effect.
func (svc *Service) handleConfig(w http.ResponseWriter, r *http.Request) {
	opt := svc.currentOptions()
	t, err := opt.Config.Resolve()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config":           opt.Config.String(),
		"thresholds":       t,
		"extrema_period":   opt.ExtremaPeriod,
		"extrema_neighbor": opt.ExtremaNeighbor,
	})
}

func seriesVars(r *http.Request) (exchange, token string, tf int) {
	v := mux.Vars(r)
	tf, _ = strconv.Atoi(v["tf"])
	return v["exchange"], v["token"], tf
}

// handleLatest handles GET /api/v1/latest/{exchange}/{token}/{tf}.
func (svc *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	exchange, token, tf := seriesVars(r)
	if svc.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "engine not ready", Kind: "unavailable"})
		return
	}
	rep, ok := svc.engine.Latest(exchange, token, tf)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no report for series", Kind: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// handleReports handles GET /api/v1/reports/{exchange}/{token}/{tf}?limit=N.
func (svc *Service) handleReports(w http.ResponseWriter, r *http.Request) {
	exchange, token, tf := seriesVars(r)
	if svc.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "report archive unavailable", Kind: "unavailable"})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, fmt.Errorf("%w: limit must be 1..1000", trend.ErrInvalidInput))
			return
		}
		limit = n
	}
	reps, err := svc.archive.ReadReports(exchange, token, tf, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

// handleMissed handles GET /api/v1/missed?channel=..&from=N&to=M: buffered
// websocket envelopes for gap backfill.
func (svc *Service) handleMissed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := q.Get("channel")
	from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
	to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
	if channel == "" || errFrom != nil || errTo != nil || from > to {
		writeError(w, fmt.Errorf("%w: channel, from and to are required", trend.ErrInvalidInput))
		return
	}
	msgs := svc.hub.Replay(channel, from, to)
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel":     channel,
		"channel_seq": svc.hub.ChannelSeq(channel),
		"messages":    out,
	})
}
