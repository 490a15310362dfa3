// Package store persists the history of an engine manager: every result
// delivered to listeners and every engine lifecycle event.
package store

import (
	"context"
	"errors"

	"github.com/jonathon-love/silky/internal/model"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("not found")

// ResultStats holds aggregate result statistics.
type ResultStats struct {
	Total         int            `json:"total"`
	Complete      int            `json:"complete"`
	CountByStatus map[string]int `json:"count_by_status"`
	Terminations  int            `json:"terminations"`
}

// Store defines the persistence operations for result and event history.
type Store interface {
	RecordResult(ctx context.Context, r *model.ResultRecord) error
	ListResults(ctx context.Context, managerID string, requestID uint64) ([]*model.ResultRecord, error)
	RecordEvent(ctx context.Context, e *model.EngineEventRecord) error
	GetEvent(ctx context.Context, id string) (*model.EngineEventRecord, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*model.EngineEventRecord, int, error)
	GetResultStats(ctx context.Context) (*ResultStats, error)
	Close() error
}
