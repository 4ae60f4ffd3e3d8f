package store

import (
	"context"
	"fmt"

	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/observability"
)

// Recorder runs change capture and persistence as one step inside the
// host's save path. Capture failures propagate to the caller, so an
// un-auditable save does not commit.
type Recorder struct {
	capturer *audit.Capturer
	store    Store
	logger   *observability.Logger
}

// NewRecorder creates a recorder over the given capturer and store
func NewRecorder(capturer *audit.Capturer, store Store, logger *observability.Logger) *Recorder {
	return &Recorder{
		capturer: capturer,
		store:    store,
		logger:   logger,
	}
}

// Record captures the change set and stages the resulting logs through
// exec. Hosts call this before committing and pass their open transaction;
// a nil exec persists in the store's own transaction.
func (r *Recorder) Record(ctx context.Context, exec Execer, changes audit.ChangeSet, reqCtx audit.RequestContext) error {
	logs := r.capturer.Capture(changes, reqCtx)
	if len(logs) == 0 {
		return nil
	}

	if err := r.store.Insert(ctx, exec, logs); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).WithField("log_count", len(logs)).Error("failed to persist audit logs")
		}
		return fmt.Errorf("failed to persist audit logs: %w", err)
	}

	return nil
}
