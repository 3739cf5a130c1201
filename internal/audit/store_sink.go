package audit

import (
	"context"

	"finboard/internal/models"
	"finboard/internal/repository/scylla"
)

// storeSink appends entries to the primary activity log. This is the sink
// the admin activity view reads back.
type storeSink struct {
	repo scylla.ActivityRepository
}

func NewStoreSink(repo scylla.ActivityRepository) Sink {
	return &storeSink{repo: repo}
}

func (s *storeSink) Name() string {
	return "scylla"
}

func (s *storeSink) Write(ctx context.Context, entry *models.ActivityEntry) error {
	return s.repo.Insert(ctx, entry)
}
