package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// DefaultBatchSize keeps multi-row inserts below typical driver parameter limits.
const DefaultBatchSize = 500

// OccurrenceRepository persists task occurrences and their assignee join rows.
type OccurrenceRepository struct {
	db *gorm.DB
}

func NewOccurrenceRepository(db *gorm.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *OccurrenceRepository) WithTx(tx *gorm.DB) *OccurrenceRepository {
	return &OccurrenceRepository{db: tx}
}

// ListByTask returns every occurrence of the task ordered by index.
func (r *OccurrenceRepository) ListByTask(ctx context.Context, taskID uint) ([]model.TaskOccurrence, error) {
	var rows []model.TaskOccurrence
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("occurrence_index ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	return rows, nil
}

// AssigneeIDs maps each occurrence id to its assigned user ids.
func (r *OccurrenceRepository) AssigneeIDs(ctx context.Context, occurrenceIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint, len(occurrenceIDs))
	if len(occurrenceIDs) == 0 {
		return out, nil
	}
	var rows []model.OccurrenceAssignee
	if err := r.db.WithContext(ctx).Where("occurrence_id IN ?", occurrenceIDs).
		Order("occurrence_id ASC, user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list occurrence assignees: %w", err)
	}
	for _, row := range rows {
		out[row.OccurrenceID] = append(out[row.OccurrenceID], row.UserID)
	}
	return out, nil
}

// CreateBatch inserts rows in chunks of batchSize; ids are written back
// into the slice.
func (r *OccurrenceRepository) CreateBatch(ctx context.Context, rows []model.TaskOccurrence, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, batchSize).Error; err != nil {
		return fmt.Errorf("create occurrences: %w", err)
	}
	return nil
}

// DeleteByIDs removes the given occurrences together with their assignee rows.
func (r *OccurrenceRepository) DeleteByIDs(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("occurrence_id IN ?", ids).Delete(&model.OccurrenceAssignee{}).Error; err != nil {
		return 0, fmt.Errorf("delete occurrence assignees: %w", err)
	}
	res := db.Where("id IN ?", ids).Delete(&model.TaskOccurrence{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete occurrences: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteByTask removes every occurrence of the task and their assignee rows.
func (r *OccurrenceRepository) DeleteByTask(ctx context.Context, taskID uint) (int64, error) {
	db := r.db.WithContext(ctx)
	owned := db.Model(&model.TaskOccurrence{}).Select("id").Where("task_id = ?", taskID)
	if err := db.Where("occurrence_id IN (?)", owned).Delete(&model.OccurrenceAssignee{}).Error; err != nil {
		return 0, fmt.Errorf("delete occurrence assignees: %w", err)
	}
	res := db.Where("task_id = ?", taskID).Delete(&model.TaskOccurrence{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete occurrences: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateIndex moves one occurrence to a new position in the series.
func (r *OccurrenceRepository) UpdateIndex(ctx context.Context, id uint, index int) error {
	if err := r.db.WithContext(ctx).Model(&model.TaskOccurrence{}).Where("id = ?", id).
		Update("occurrence_index", index).Error; err != nil {
		return fmt.Errorf("update occurrence index: %w", err)
	}
	return nil
}

// UpdateCore rewrites the schedule and descriptive fields of one
// occurrence. Status, remarks and completion are never touched here.
func (r *OccurrenceRepository) UpdateCore(ctx context.Context, occ *model.TaskOccurrence) error {
	if err := r.db.WithContext(ctx).Model(&model.TaskOccurrence{}).Where("id = ?", occ.ID).
		Updates(map[string]interface{}{
			"occurrence_index": occ.OccurrenceIndex,
			"start_date":       occ.StartDate,
			"due_date":         occ.DueDate,
			"title":            occ.Title,
			"description":      occ.Description,
			"priority":         occ.Priority,
			"client_id":        occ.ClientID,
			"project_id":       occ.ProjectID,
		}).Error; err != nil {
		return fmt.Errorf("update occurrence: %w", err)
	}
	return nil
}

// ReplaceAssignees sets exactly userIDs on every occurrence in ids and
// points the legacy assignee column at the first user.
func (r *OccurrenceRepository) ReplaceAssignees(ctx context.Context, ids, userIDs []uint, batchSize int) error {
	if len(ids) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	db := r.db.WithContext(ctx)
	if err := db.Where("occurrence_id IN ?", ids).Delete(&model.OccurrenceAssignee{}).Error; err != nil {
		return fmt.Errorf("clear occurrence assignees: %w", err)
	}
	if len(userIDs) > 0 {
		rows := make([]model.OccurrenceAssignee, 0, len(ids)*len(userIDs))
		for _, id := range ids {
			for _, userID := range userIDs {
				rows = append(rows, model.OccurrenceAssignee{OccurrenceID: id, UserID: userID})
			}
		}
		if err := db.CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("create occurrence assignees: %w", err)
		}
	}
	if err := db.Model(&model.TaskOccurrence{}).Where("id IN ?", ids).
		Update("assigned_to_id", firstOrNil(userIDs)).Error; err != nil {
		return fmt.Errorf("update occurrence assignee pointer: %w", err)
	}
	return nil
}

// ListOpenAfter returns ids of not yet completed occurrences starting after t.
func (r *OccurrenceRepository) ListOpenAfter(ctx context.Context, taskID uint, t time.Time) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.TaskOccurrence{}).
		Where("task_id = ? AND start_date > ? AND is_completed = ? AND status <> ?", taskID, t.UTC(), false, model.StatusCompleted).
		Order("occurrence_index ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list open occurrences: %w", err)
	}
	return ids, nil
}
