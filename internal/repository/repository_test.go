package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
)

func createTask(t *testing.T, repo *TaskRepository) *model.Task {
	t.Helper()
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	task := &model.Task{
		OrgID:             1,
		Title:             "Payroll",
		StartDate:         time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
		DueDate:           time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC),
		RecurrenceRule:    recurrence.FrequencyMonthly,
		RecurrenceEndDate: &end,
		IsRecurring:       true,
	}
	require.NoError(t, repo.Create(context.Background(), task))
	return task
}

func TestNewDB_RejectsUnknownDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewDB("oracle", "whatever", logger)
	assert.Error(t, err)
}

func TestNewDB_CreatesParentDir(t *testing.T) {
	logger, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "nested", "dir", "tasks.db")
	db, err := NewDB("", path, logger)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.Close()
	assert.FileExists(t, path)
}

func TestTaskRepository_Assignees(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	task := createTask(t, repo)

	require.NoError(t, repo.ReplaceAssignees(ctx, task.ID, []uint{7, 3, 5}))
	ids, err := repo.AssigneeIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 3, 5}, ids)

	reloaded, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.AssignedToID)
	assert.Equal(t, uint(7), *reloaded.AssignedToID)

	require.NoError(t, repo.ReplaceAssignees(ctx, task.ID, nil))
	ids, err = repo.AssigneeIDs(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	reloaded, err = repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.AssignedToID)
}

func TestTaskRepository_ListRecurringIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	a := createTask(t, repo)
	b := createTask(t, repo)
	require.NoError(t, repo.Create(ctx, &model.Task{OrgID: 2, Title: "other", IsRecurring: true}))
	require.NoError(t, repo.Create(ctx, &model.Task{OrgID: 1, Title: "single"}))

	ids, err := repo.ListRecurringIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ID, b.ID}, ids)

	all, err := repo.ListRecurringIDs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTaskRepository_Watermark(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(setupTestDB(t))
	task := createTask(t, repo)

	require.NoError(t, repo.UpdateWatermark(ctx, task.ID, task.RecurrenceEndDate))
	reloaded, err := repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastGeneratedUntil)
	assert.True(t, reloaded.LastGeneratedUntil.Equal(*task.RecurrenceEndDate))

	require.NoError(t, repo.UpdateWatermark(ctx, task.ID, nil))
	reloaded, err = repo.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.LastGeneratedUntil)
}

func occurrencesFor(taskID uint, n int) []model.TaskOccurrence {
	rows := make([]model.TaskOccurrence, 0, n)
	for i := 0; i < n; i++ {
		start := time.Date(2026, time.Month(i+1), 1, 9, 0, 0, 0, time.UTC)
		rows = append(rows, model.TaskOccurrence{
			TaskID:          taskID,
			OccurrenceIndex: i,
			StartDate:       start,
			DueDate:         start.Add(8 * time.Hour),
			Status:          model.StatusOpen,
		})
	}
	return rows
}

func TestOccurrenceRepository_CreateBatchBackfillsIDs(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := createTask(t, NewTaskRepository(db))
	repo := NewOccurrenceRepository(db)

	rows := occurrencesFor(task.ID, 7)
	require.NoError(t, repo.CreateBatch(ctx, rows, 3))
	for _, row := range rows {
		assert.NotZero(t, row.ID)
	}

	stored, err := repo.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, stored, 7)
	for i, row := range stored {
		assert.Equal(t, i, row.OccurrenceIndex)
	}
}

func TestOccurrenceRepository_UniqueIndexPerTask(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := createTask(t, NewTaskRepository(db))
	repo := NewOccurrenceRepository(db)

	require.NoError(t, repo.CreateBatch(ctx, occurrencesFor(task.ID, 1), 0))
	err := repo.CreateBatch(ctx, occurrencesFor(task.ID, 1), 0)
	assert.Error(t, err)
}

func TestOccurrenceRepository_AssigneesAndDelete(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := createTask(t, NewTaskRepository(db))
	repo := NewOccurrenceRepository(db)

	rows := occurrencesFor(task.ID, 3)
	require.NoError(t, repo.CreateBatch(ctx, rows, 0))
	ids := []uint{rows[0].ID, rows[1].ID, rows[2].ID}

	require.NoError(t, repo.ReplaceAssignees(ctx, ids, []uint{4, 2}, 0))
	require.NoError(t, repo.ReplaceAssignees(ctx, ids, []uint{4, 2}, 0))

	assigned, err := repo.AssigneeIDs(ctx, ids)
	require.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, []uint{2, 4}, assigned[id])
	}

	stored, err := repo.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, stored[0].AssignedToID)
	assert.Equal(t, uint(4), *stored[0].AssignedToID)

	deleted, err := repo.DeleteByIDs(ctx, []uint{rows[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = repo.DeleteByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var joinRows int64
	require.NoError(t, db.Model(&model.OccurrenceAssignee{}).Count(&joinRows).Error)
	assert.Zero(t, joinRows)
}

func TestOccurrenceRepository_ListOpenAfter(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := createTask(t, NewTaskRepository(db))
	repo := NewOccurrenceRepository(db)

	rows := occurrencesFor(task.ID, 4)
	rows[3].Status = model.StatusCompleted
	rows[3].IsCompleted = true
	require.NoError(t, repo.CreateBatch(ctx, rows, 0))

	ids, err := repo.ListOpenAfter(ctx, task.ID, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []uint{rows[1].ID, rows[2].ID}, ids)
}

func TestOccurrenceRepository_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := createTask(t, NewTaskRepository(db))
	repo := NewOccurrenceRepository(db)
	require.NoError(t, repo.CreateBatch(ctx, occurrencesFor(task.ID, 2), 0))

	err := db.Transaction(func(tx *gorm.DB) error {
		txRepo := repo.WithTx(tx)
		if _, err := txRepo.DeleteByTask(ctx, task.ID); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	stored, err := repo.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
