package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskflow/internal/model"
)

// TaskRepository handles CRUD for tasks and their assignee set.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a copy bound to tx.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// ListRecurringIDs returns ids of recurring tasks, limited to one
// organization when orgID is non-zero.
func (r *TaskRepository) ListRecurringIDs(ctx context.Context, orgID uint) ([]uint, error) {
	query := r.db.WithContext(ctx).Model(&model.Task{}).Where("is_recurring = ?", true)
	if orgID != 0 {
		query = query.Where("org_id = ?", orgID)
	}
	var ids []uint
	if err := query.Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list recurring tasks: %w", err)
	}
	return ids, nil
}

// UpdateWatermark stores the generation high-water mark.
func (r *TaskRepository) UpdateWatermark(ctx context.Context, taskID uint, until *time.Time) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Update("last_generated_until", until).Error; err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	return nil
}

// AssigneeIDs returns the task-level assignee set in its stored order.
func (r *TaskRepository) AssigneeIDs(ctx context.Context, taskID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.TaskAssignee{}).
		Where("task_id = ?", taskID).
		Order("position ASC, user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list task assignees: %w", err)
	}
	return ids, nil
}

// ReplaceAssignees swaps the task-level assignee set and the legacy pointer.
func (r *TaskRepository) ReplaceAssignees(ctx context.Context, taskID uint, userIDs []uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id = ?", taskID).Delete(&model.TaskAssignee{}).Error; err != nil {
		return fmt.Errorf("clear task assignees: %w", err)
	}
	if len(userIDs) > 0 {
		rows := make([]model.TaskAssignee, 0, len(userIDs))
		for i, userID := range userIDs {
			rows = append(rows, model.TaskAssignee{TaskID: taskID, UserID: userID, Position: i})
		}
		if err := db.Create(&rows).Error; err != nil {
			return fmt.Errorf("create task assignees: %w", err)
		}
	}
	if err := db.Model(&model.Task{}).Where("id = ?", taskID).
		Update("assigned_to_id", firstOrNil(userIDs)).Error; err != nil {
		return fmt.Errorf("update task assignee pointer: %w", err)
	}
	return nil
}

// Delete removes the task row and its assignee set. Occurrences are removed
// separately by the caller inside the same transaction.
func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("task_id = ?", taskID).Delete(&model.TaskAssignee{}).Error; err != nil {
		return fmt.Errorf("delete task assignees: %w", err)
	}
	if err := db.Where("id = ?", taskID).Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func firstOrNil(ids []uint) *uint {
	if len(ids) == 0 {
		return nil
	}
	id := ids[0]
	return &id
}
