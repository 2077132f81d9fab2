// Package store persists execution records and run summaries to SQLite.
//
// Writes are append-only: records accumulate per run and are never updated
// or deleted, matching the engine's trace semantics.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/flowgraph-io/flowgraph/types"
)

type recordRow struct {
	ID               uint   `gorm:"primaryKey"`
	RunID            string `gorm:"index;size:64"`
	NodeID           string `gorm:"size:128"`
	StartTime        time.Time
	EndTime          time.Time
	DurationNS       int64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Iteration        int
	Error            string
	CreatedAt        time.Time
}

func (recordRow) TableName() string { return "execution_records" }

type summaryRow struct {
	RunID     string `gorm:"primaryKey;size:64"`
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (summaryRow) TableName() string { return "run_summaries" }

// SQLiteStore implements the persistence capability over a SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// Open opens or creates the database at path and migrates the schema.
func Open(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store %q: %w", path, err)
	}
	if err := db.AutoMigrate(&recordRow{}, &summaryRow{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// AppendRecord implements capability.Store.
func (s *SQLiteStore) AppendRecord(ctx context.Context, rec types.ExecutionRecord) error {
	row := recordRow{
		RunID:            rec.RunID,
		NodeID:           rec.NodeID,
		StartTime:        rec.StartTime,
		EndTime:          rec.EndTime,
		DurationNS:       int64(rec.Duration),
		PromptTokens:     rec.Usage.PromptTokens,
		CompletionTokens: rec.Usage.CompletionTokens,
		TotalTokens:      rec.Usage.TotalTokens,
		Cost:             rec.Cost,
		Iteration:        rec.Iteration,
		Error:            rec.Error,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// WriteSummary implements capability.Store. The last summary written for a
// run wins; records themselves are never touched.
func (s *SQLiteStore) WriteSummary(ctx context.Context, runID string, sum types.BottleneckSummary) error {
	payload, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	row := summaryRow{RunID: runID, Payload: string(payload)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Records implements capability.Store, returning a run's records in commit
// order.
func (s *SQLiteStore) Records(ctx context.Context, runID string) ([]types.ExecutionRecord, error) {
	var rows []recordRow
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	recs := make([]types.ExecutionRecord, len(rows))
	for i, row := range rows {
		recs[i] = types.ExecutionRecord{
			RunID:     row.RunID,
			NodeID:    row.NodeID,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
			Duration:  time.Duration(row.DurationNS),
			Usage: types.Usage{
				PromptTokens:     row.PromptTokens,
				CompletionTokens: row.CompletionTokens,
				TotalTokens:      row.TotalTokens,
			},
			Cost:      row.Cost,
			Iteration: row.Iteration,
			Error:     row.Error,
		}
	}
	return recs, nil
}

// Summary loads a run's stored summary.
func (s *SQLiteStore) Summary(ctx context.Context, runID string) (types.BottleneckSummary, error) {
	var row summaryRow
	if err := s.db.WithContext(ctx).First(&row, "run_id = ?", runID).Error; err != nil {
		return types.BottleneckSummary{}, fmt.Errorf("load summary: %w", err)
	}
	var sum types.BottleneckSummary
	if err := json.Unmarshal([]byte(row.Payload), &sum); err != nil {
		return types.BottleneckSummary{}, fmt.Errorf("decode summary: %w", err)
	}
	return sum, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
