package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/unikmhz/npui-sub001/pkg/access"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = gorm.ErrRecordNotFound

// SyncRunRepository handles sync run history
type SyncRunRepository struct {
	db        *gorm.DB
	retention time.Duration
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// SetRetention makes SaveRun drop runs started more than d ago. Zero keeps
// every run.
func (r *SyncRunRepository) SetRetention(d time.Duration) {
	r.retention = d
}

// SaveRun records a finished run and prunes expired history
func (r *SyncRunRepository) SaveRun(ctx context.Context, run access.RunStatus) error {
	if err := r.db.WithContext(ctx).Create(SyncRunFrom(run)).Error; err != nil {
		return err
	}
	if r.retention <= 0 {
		return nil
	}
	if _, err := r.DeleteOlderThan(time.Now().Add(-r.retention)); err != nil {
		return fmt.Errorf("failed to prune sync history: %w", err)
	}
	return nil
}

// GetRecent retrieves the most recent N runs
func (r *SyncRunRepository) GetRecent(limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := r.db.Order("start_time DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRecentPaginated retrieves runs with pagination
func (r *SyncRunRepository) GetRecentPaginated(page, perPage int) ([]SyncRun, int64, error) {
	var runs []SyncRun
	var total int64

	if err := r.db.Model(&SyncRun{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * perPage
	err := r.db.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&runs).Error

	return runs, total, err
}

// GetByRunID retrieves one run
func (r *SyncRunRepository) GetByRunID(runID string) (*SyncRun, error) {
	var run SyncRun
	if err := r.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// GetByResult retrieves runs with the given result
func (r *SyncRunRepository) GetByResult(result string, limit int) ([]SyncRun, error) {
	var runs []SyncRun
	err := r.db.Where("result = ?", result).
		Order("start_time DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// DeleteOlderThan deletes runs started before the specified time
func (r *SyncRunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&SyncRun{})
	return result.RowsAffected, result.Error
}
