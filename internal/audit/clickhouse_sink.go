package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"finboard/internal/client"
	"finboard/internal/config"
	"finboard/internal/models"
	"finboard/internal/util"
)

// ClickHouseSink buffers entries and ships them to the analytics table in
// batches. Analytics is best effort: a failed flush drops the batch and
// logs, it never backs up into the recorder.
type ClickHouseSink struct {
	ch        *client.ClickHouseClient
	batchSize int
	interval  time.Duration

	mu  sync.Mutex
	buf []*models.ActivityEntry

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewClickHouseSink(chClient *client.ClickHouseClient, cfg *config.Config) *ClickHouseSink {
	s := &ClickHouseSink{
		ch:        chClient,
		batchSize: cfg.Clickhouse.BatchSize,
		interval:  cfg.Clickhouse.FlushInterval,
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s
}

func (s *ClickHouseSink) Name() string {
	return "clickhouse"
}

func (s *ClickHouseSink) Write(ctx context.Context, entry *models.ActivityEntry) error {
	s.mu.Lock()
	s.buf = append(s.buf, entry)
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
	return nil
}

func (s *ClickHouseSink) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			s.flush()
			return
		}
	}
}

func (s *ClickHouseSink) flush() {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	rows := make([][]interface{}, 0, len(batch))
	for _, entry := range batch {
		details := "{}"
		if len(entry.Details) > 0 {
			if raw, err := json.Marshal(entry.Details); err == nil {
				details = string(raw)
			}
		}
		rows = append(rows, []interface{}{
			entry.UserID, entry.Action, details, entry.Email,
			entry.FirstName, entry.LastName, entry.IP, entry.UserAgent,
			entry.CreatedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := s.ch.BatchInsert(ctx, `
        INSERT INTO activity_events (
            user_id, action, details, email, first_name, last_name,
            ip, user_agent, created_at
        )`, rows)
	if err != nil {
		util.Error("Failed to flush activity batch to ClickHouse",
			zap.Int("dropped", len(rows)),
			zap.Error(err))
	}
}

// Close stops the flusher after one final flush.
func (s *ClickHouseSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}
