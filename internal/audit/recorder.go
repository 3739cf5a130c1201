package audit

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/util"
)

const (
	writeTimeout = 10 * time.Second
	drainTimeout = 30 * time.Second
)

// Sink receives finished activity entries. Implementations must tolerate
// being called from many goroutines.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *models.ActivityEntry) error
}

// Recorder fans entries out to its sinks from detached goroutines. Recording
// never blocks or fails the request that produced the entry; a sink that
// cannot keep up loses data, not requests.
type Recorder struct {
	sinks []Sink
	wg    sync.WaitGroup
}

func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Record hands the entry to every sink on a fresh context. The request that
// observed the action is already answered, so its context must not govern
// these writes.
func (r *Recorder) Record(entry *models.ActivityEntry) {
	if entry == nil || len(r.sinks) == 0 {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		for _, sink := range r.sinks {
			if err := sink.Write(ctx, entry); err != nil {
				util.Error("Audit sink write failed",
					zap.String("sink", sink.Name()),
					zap.String("action", entry.Action),
					zap.String("user_id", entry.UserID),
					zap.Error(err))
			}
		}
	}()
}

// Close waits for in-flight writes, then closes sinks that hold resources.
func (r *Recorder) Close() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		util.Warn("Audit recorder drain timed out, abandoning in-flight writes")
	}

	for _, sink := range r.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				util.Error("Failed to close audit sink",
					zap.String("sink", sink.Name()),
					zap.Error(err))
			}
		}
	}
}
