package trendengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"trendsys/internal/analyzer"
	"trendsys/internal/trend"
)

// ConfigChannel is the Pub/Sub channel carrying live reload requests.
const ConfigChannel = "config:trend"

// ReloadRequest changes the engine's analysis options. The embedded spec is
// optional; when it is empty the thresholds in effect are kept.
type ReloadRequest struct {
	trend.ConfigSpec
	ExtremaPeriod   *int `json:"extrema_period,omitempty"`
	ExtremaNeighbor *int `json:"extrema_neighbor,omitempty"`
}

func (req ReloadRequest) isEmpty() bool {
	return req.ConfigSpec == (trend.ConfigSpec{}) && req.ExtremaPeriod == nil && req.ExtremaNeighbor == nil
}

// apply overlays the request on base.
func (req ReloadRequest) apply(base analyzer.Options) (analyzer.Options, error) {
	if req.isEmpty() {
		return base, fmt.Errorf("%w: empty reload request", trend.ErrInvalidConfiguration)
	}
	opt := base
	if req.ConfigSpec != (trend.ConfigSpec{}) {
		cfg, err := req.ConfigSpec.Build()
		if err != nil {
			return base, err
		}
		opt.Config = cfg
	}
	if req.ExtremaPeriod != nil {
		opt.ExtremaPeriod = *req.ExtremaPeriod
	}
	if req.ExtremaNeighbor != nil {
		opt.ExtremaNeighbor = *req.ExtremaNeighbor
	}
	return opt, opt.Validate()
}

// reload applies a request to the running engine.
func (svc *Service) reload(req ReloadRequest, source string) (analyzer.Options, error) {
	if svc.engine == nil {
		return analyzer.Options{}, fmt.Errorf("%w: engine not ready", trend.ErrInvalidConfiguration)
	}
	opt, err := req.apply(svc.engine.Config().Options)
	if err != nil {
		return opt, err
	}
	if err := svc.engine.Reload(opt); err != nil {
		return opt, err
	}
	svc.prom.ConfigReloads.WithLabelValues(source).Inc()
	svc.health.SetConfig(opt.Config.String())
	return opt, nil
}

// handleReload handles POST /reload for live threshold updates via HTTP.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	var req ReloadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	opt, err := svc.reload(req, "http")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"config":           opt.Config.String(),
		"extrema_period":   opt.ExtremaPeriod,
		"extrema_neighbor": opt.ExtremaNeighbor,
	})
}

// startConfigSubscriber listens on Redis Pub/Sub for reload requests.
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	go func() {
		pubsub := svc.redisReader.SubscribeChannel(ctx, ConfigChannel)
		if pubsub == nil {
			slog.Warn("could not subscribe to config channel", slog.String("channel", ConfigChannel))
			return
		}
		defer pubsub.Close()
		slog.Info("subscribed for dynamic reload", slog.String("channel", ConfigChannel))

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				svc.reloadFromPayload(msg.Payload)
			}
		}
	}()
}

func (svc *Service) reloadFromPayload(payload string) {
	var req ReloadRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		slog.Warn("invalid config update", slog.String("payload", payload), slog.String("error", err.Error()))
		return
	}
	opt, err := svc.reload(req, "pubsub")
	if err != nil {
		svc.prom.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		slog.Warn("config update rejected", slog.String("error", err.Error()))
		return
	}
	slog.Info("config updated from pubsub", slog.String("config", opt.Config.String()))
}
