// Package recorder appends one change event per successful mutation.
//
// Recording is best-effort. A failed append is logged and counted but never
// returned to the caller: the mutation has already committed and must not be
// reported as failed because its bookkeeping failed. Clients bound the
// resulting staleness by doing a full reload on login and manual refresh.
package recorder

import (
	"context"
	"log"
	"os"

	"github.com/taskfeed/taskfeed/internal/metrics"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// Appender is the change log write used by the recorder.
type Appender interface {
	AppendChangeContext(ctx context.Context, typ schema.EventType, entityID, projectID int64) (schema.ChangeEvent, error)
}

// Notifier is told about each recorded event id. Implementations must not
// block.
type Notifier interface {
	Notify(latestID int64)
}

// Recorder writes change events after mutations commit.
type Recorder struct {
	store    Appender
	notifier Notifier
	logger   *log.Logger
}

// New creates a Recorder. notifier may be nil. If logger is nil, a default
// logger writing to stderr is used.
func New(appender Appender, notifier Notifier, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(os.Stderr, "[recorder] ", log.LstdFlags)
	}
	return &Recorder{
		store:    appender,
		notifier: notifier,
		logger:   logger,
	}
}

// Record appends exactly one event. It never fails; the boolean reports
// whether the event was written.
//
// The append runs on a context detached from ctx's cancellation so a client
// hanging up right after its mutation committed does not drop the event.
func (r *Recorder) Record(ctx context.Context, typ schema.EventType, entityID, projectID int64) bool {
	ev, err := r.store.AppendChangeContext(context.WithoutCancel(ctx), typ, entityID, projectID)
	if err != nil {
		metrics.ChangeRecordFailures.WithLabelValues(string(typ)).Inc()
		r.logger.Printf("Warning: failed to record change event: type=%s, entityId=%d, projectId=%d, error=%v",
			typ, entityID, projectID, err)
		return false
	}

	metrics.ChangesRecorded.WithLabelValues(string(typ)).Inc()
	if r.notifier != nil {
		r.notifier.Notify(ev.ID)
	}
	return true
}
