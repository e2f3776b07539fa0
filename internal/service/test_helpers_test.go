package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

type fixture struct {
	db        *gorm.DB
	tasks     *repository.TaskRepository
	users     *repository.UserRepository
	occRepo   *repository.OccurrenceRepository
	assignees *AssigneeService
	sync      *OccurrenceService
	taskSvc   *TaskService
	locker    *TaskLocker
	clock     time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	db, err := repository.NewDB(repository.DriverSQLite, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{
		db:      db,
		tasks:   repository.NewTaskRepository(db),
		users:   repository.NewUserRepository(db),
		occRepo: repository.NewOccurrenceRepository(db),
		locker:  NewTaskLocker(),
		clock:   now,
	}
	f.assignees = NewAssigneeService(db, f.tasks, f.occRepo, 0, logger)
	f.sync = NewOccurrenceService(db, f.tasks, f.occRepo, f.assignees, OccurrenceOptions{
		Location: time.UTC,
		Now:      func() time.Time { return f.clock },
	}, logger)
	f.taskSvc = NewTaskService(db, f.tasks, f.users, f.sync, f.assignees, f.locker, 0, logger)
	return f
}

func date(year int, month time.Month, day, hour int) time.Time {
	return time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

// createTask stores a task directly, without generating occurrences.
func (f *fixture) createTask(t *testing.T, task model.Task, assignees ...uint) *model.Task {
	t.Helper()
	task.IsRecurring = task.Frequency().IsRecurring() && task.RecurrenceEndDate != nil
	require.NoError(t, f.tasks.Create(context.Background(), &task))
	require.NoError(t, f.tasks.ReplaceAssignees(context.Background(), task.ID, assignees))
	return &task
}

func (f *fixture) createUser(t *testing.T, name string) uint {
	t.Helper()
	user := model.User{OrgID: 1, Name: name}
	require.NoError(t, f.users.Create(context.Background(), &user))
	return user.ID
}

func (f *fixture) monthlyTask(t *testing.T, start time.Time, end time.Time, assignees ...uint) *model.Task {
	t.Helper()
	return f.createTask(t, model.Task{
		OrgID:             1,
		Title:             "Payroll",
		Priority:          "HIGH",
		StartDate:         start,
		DueDate:           start.Add(2 * time.Hour),
		RecurrenceRule:    recurrence.FrequencyMonthly,
		RecurrenceEndDate: &end,
	}, assignees...)
}

func (f *fixture) occurrences(t *testing.T, taskID uint) []model.TaskOccurrence {
	t.Helper()
	rows, err := f.occRepo.ListByTask(context.Background(), taskID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) occurrenceUsers(t *testing.T, id uint) []uint {
	t.Helper()
	byID, err := f.occRepo.AssigneeIDs(context.Background(), []uint{id})
	require.NoError(t, err)
	return byID[id]
}

func requireContiguous(t *testing.T, rows []model.TaskOccurrence) {
	t.Helper()
	for i, row := range rows {
		require.Equal(t, i, row.OccurrenceIndex)
	}
}

func startDates(rows []model.TaskOccurrence) []time.Time {
	out := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.StartDate.UTC())
	}
	return out
}

func findByStart(t *testing.T, rows []model.TaskOccurrence, start time.Time) model.TaskOccurrence {
	t.Helper()
	for _, row := range rows {
		if row.StartDate.Equal(start) {
			return row
		}
	}
	require.Failf(t, "occurrence not found", "no occurrence starts at %s", start)
	return model.TaskOccurrence{}
}
