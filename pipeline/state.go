package pipeline

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Operation states. Every operation walks IDLE through the working
// states to DONE or FAILED; each transition is logged under the
// operation's UUID so a single crawl can be traced end to end.
const (
	StateIdle       = "IDLE"
	StateNavigating = "NAVIGATING"
	StateExtracting = "EXTRACTING"
	StateRetrying   = "RETRYING"
	StateDone       = "DONE"
	StateFailed     = "FAILED"
)

type operation struct {
	id      string
	log     *slog.Logger
	state   string
	started time.Time
}

func newOperation(kind string, log *slog.Logger) *operation {
	op := &operation{
		id:      uuid.NewString(),
		state:   StateIdle,
		started: time.Now(),
	}
	op.log = log.With("op", op.id, "kind", kind)
	op.log.Info("operation started")
	return op
}

func (o *operation) transition(state string) {
	if state == o.state {
		return
	}
	o.log.Debug("state transition", "from", o.state, "to", state)
	o.state = state
}

func (o *operation) finish(err error) {
	elapsed := time.Since(o.started).Round(time.Millisecond)
	if err != nil {
		o.transition(StateFailed)
		o.log.Warn("operation failed", "elapsed", elapsed, "error", err)
		return
	}
	o.transition(StateDone)
	o.log.Info("operation finished", "elapsed", elapsed)
}
