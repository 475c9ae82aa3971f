package fixture

import (
	"fmt"
	"log/slog"

	"replay-proxy/internal/reqctx"
)

// Source lists and loads fixtures. *Store is the on-disk implementation.
type Source interface {
	List() ([]string, error)
	Load(name string) (Fixture, error)
}

// Dispatcher answers requests from the fixture library.
type Dispatcher struct {
	source Source
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over the fixture store.
func NewDispatcher(store *Store, logger *slog.Logger) *Dispatcher {
	return NewDispatcherFrom(store, logger)
}

// NewDispatcherFrom creates a Dispatcher over any fixture source.
func NewDispatcherFrom(src Source, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		source: src,
		logger: logger.With("component", "dispatcher"),
	}
}

// Dispatch tries the fixtures in lexicographic order and lets the first
// match respond. It reports false, with nothing written, when no fixture
// matches. Fixtures are listed and parsed afresh on every call.
func (d *Dispatcher) Dispatch(rc *reqctx.Context, res *reqctx.Response) (bool, error) {
	names, err := d.source.List()
	if err != nil {
		return false, err
	}

	path, query := rc.URL.Path, rc.URL.RawQuery
	for _, name := range names {
		fx, err := d.source.Load(name)
		if err != nil {
			return false, err
		}
		if !fx.Matches(rc.Method, path, query) {
			continue
		}
		rc.Log("replaying fixture", "fixture", name)
		if err := fx.Respond(rc, res); err != nil {
			return true, fmt.Errorf("replay %s: %w", name, err)
		}
		return true, nil
	}

	d.logger.Debug("no fixture matched", "index", rc.Index, "target", rc.Target(), "candidates", len(names))
	return false, nil
}
