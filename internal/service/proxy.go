// Package service implements the per-request orchestration: replay from
// fixtures when possible, otherwise forward upstream and record.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"replay-proxy/internal/config"
	"replay-proxy/internal/fixture"
	"replay-proxy/internal/metrics"
	"replay-proxy/internal/model"
	"replay-proxy/internal/reqctx"
)

// ErrNoFixture is returned in replay-only mode when no fixture matches.
var ErrNoFixture = errors.New("no fixture matches the request and recording is disabled (replay-only mode)")

// ProxyService routes each request through the dispatcher and, on a miss,
// the forwarder, according to the current mode.
type ProxyService struct {
	dispatcher *fixture.Dispatcher
	forwarder  *Forwarder
	mode       atomic.Value // model.Mode
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewProxyService creates a ProxyService starting in the configured mode.
// The metrics parameter is optional.
func NewProxyService(d *fixture.Dispatcher, f *Forwarder, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	s := &ProxyService{
		dispatcher: d,
		forwarder:  f,
		logger:     logger.With("component", "proxy_service"),
		metrics:    m,
	}
	s.mode.Store(cfg.Mode())
	return s
}

// Mode returns the current proxy mode.
func (s *ProxyService) Mode() model.Mode {
	return s.mode.Load().(model.Mode)
}

// SetMode switches the proxy mode for requests that arrive afterwards and
// returns the previous mode.
func (s *ProxyService) SetMode(m model.Mode) model.Mode {
	prev := s.mode.Swap(m).(model.Mode)
	if prev != m {
		s.logger.Info("proxy mode changed", "from", prev, "to", m)
	}
	return prev
}

// Serve answers one request and reports how: metrics.OutcomeReplayed or
// metrics.OutcomeRecorded. The mode is read once, on entry. On success the
// response has been ended.
func (s *ProxyService) Serve(rc *reqctx.Context, res *reqctx.Response) (string, error) {
	mode := s.Mode()

	if mode.Replays() {
		handled, err := s.dispatcher.Dispatch(rc, res)
		if err != nil {
			return "", err
		}
		s.countDispatch(handled)
		if handled {
			return metrics.OutcomeReplayed, nil
		}
		if !mode.Records() {
			return "", fmt.Errorf("%w: %s", ErrNoFixture, rc.Target())
		}
	}

	if _, err := s.forwarder.Forward(rc, res); err != nil {
		return "", err
	}
	return metrics.OutcomeRecorded, nil
}

func (s *ProxyService) countDispatch(hit bool) {
	if s.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	s.metrics.Dispatches.WithLabelValues(result).Inc()
}
