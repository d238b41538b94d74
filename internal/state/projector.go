package state

import (
	"errors"
	"log/slog"

	"cellflow/internal/eventlog"
	"cellflow/internal/events"
)

// Projector folds a log into the store: replay first, then the live stream,
// both through the same materializer path so replaying twice produces
// identical tables.
type Projector struct {
	mat    *Materializer
	logger *slog.Logger
}

func NewProjector(store *Store, logger *slog.Logger) (*Projector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mat, err := NewMaterializer(store)
	if err != nil {
		return nil, err
	}
	return &Projector{mat: mat, logger: logger}, nil
}

func (p *Projector) Follow(log eventlog.Log) (func(), error) {
	if log == nil {
		return nil, errors.New("log is required")
	}
	return log.Attach(func(c eventlog.Committed) {
		ev, err := events.Unwrap(c.Envelope)
		if err != nil {
			// Validated at commit time; anything malformed here means a
			// corrupt relay peer. Drop it.
			p.logger.Warn("dropping malformed event", "seq", c.Seq, "type", c.Envelope.EventType, "error", err)
			return
		}
		if err := p.mat.Apply(ev); err != nil {
			p.logger.Error("materializer apply failed", "seq", c.Seq, "type", c.Envelope.EventType, "error", err)
		}
	})
}
