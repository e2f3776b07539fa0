package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	OrgID             uint
	Title             string
	Description       string
	Priority          string
	Remarks           string
	Status            string
	ClientID          *uint
	ProjectID         *uint
	StartDate         time.Time
	DueDate           time.Time
	RecurrenceRule    string
	RecurrenceEndDate *time.Time
	Timezone          string
	AssigneeIDs       []uint
}

// TaskUpdate carries a partial edit; nil fields stay unchanged.
type TaskUpdate struct {
	Title             *string
	Description       *string
	Priority          *string
	Remarks           *string
	Status            *string
	StartDate         *time.Time
	DueDate           *time.Time
	RecurrenceRule    *string
	RecurrenceEndDate *time.Time
	// ClearRecurrenceEnd removes the end date, which stops the recurrence.
	ClearRecurrenceEnd bool
	AssigneeIDs        *[]uint
}

// TaskService wraps task-related business logic and decides when the
// occurrence series has to follow an edit.
type TaskService struct {
	db          *gorm.DB
	tasks       *repository.TaskRepository
	users       *repository.UserRepository
	occurrences *OccurrenceService
	assignees   *AssigneeService
	locker      *TaskLocker
	tolerance   time.Duration
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewTaskService(
	db *gorm.DB,
	tasks *repository.TaskRepository,
	users *repository.UserRepository,
	occurrences *OccurrenceService,
	assignees *AssigneeService,
	locker *TaskLocker,
	tolerance time.Duration,
	log logrus.FieldLogger,
) *TaskService {
	if tolerance <= 0 {
		tolerance = recurrence.DefaultDateTolerance
	}
	return &TaskService{
		db:          db,
		tasks:       tasks,
		users:       users,
		occurrences: occurrences,
		assignees:   assignees,
		locker:      locker,
		tolerance:   tolerance,
		now:         occurrences.now,
		log:         log,
	}
}

// CreateTask stores the task with its assignees and generates its series.
func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, SyncResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, SyncResult{}, fmt.Errorf("title is required")
	}
	if input.DueDate.Before(input.StartDate) {
		return nil, SyncResult{}, fmt.Errorf("due date precedes start date")
	}

	assignees, err := s.users.FilterExisting(ctx, input.OrgID, input.AssigneeIDs)
	if err != nil {
		return nil, SyncResult{}, err
	}

	task := model.Task{
		OrgID:             input.OrgID,
		Title:             title,
		Description:       input.Description,
		Status:            input.Status,
		Priority:          input.Priority,
		Remarks:           input.Remarks,
		ClientID:          input.ClientID,
		ProjectID:         input.ProjectID,
		StartDate:         input.StartDate.UTC(),
		DueDate:           input.DueDate.UTC(),
		Timezone:          input.Timezone,
		RecurrenceEndDate: utcPtr(input.RecurrenceEndDate),
		AssignedToID:      firstID(assignees),
	}
	if task.Status == "" {
		task.Status = model.StatusOpen
	}
	s.applyRule(&task, input.RecurrenceRule)

	// The task row stays invisible to other runs until this commits, so no
	// lock is needed for its first synchronization.
	var result SyncResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.tasks.WithTx(tx)
		if err := repo.Create(ctx, &task); err != nil {
			return err
		}
		if err := repo.ReplaceAssignees(ctx, task.ID, assignees); err != nil {
			return err
		}
		var err error
		result, err = s.occurrences.SynchronizeTx(ctx, tx, &task, s.now())
		return err
	})
	if err != nil {
		return nil, SyncResult{}, fmt.Errorf("create task: %w", err)
	}
	return &task, result, nil
}

// UpdateTask applies an edit and brings the series in line with it.
func (s *TaskService) UpdateTask(ctx context.Context, taskID uint, update TaskUpdate) (*model.Task, SyncResult, error) {
	unlock := s.locker.Lock(taskID)
	defer unlock()

	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, SyncResult{}, err
	}
	before := task.Snapshot()

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return nil, SyncResult{}, fmt.Errorf("title is required")
		}
		task.Title = title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Remarks != nil {
		task.Remarks = *update.Remarks
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.StartDate != nil {
		task.StartDate = update.StartDate.UTC()
	}
	if update.DueDate != nil {
		task.DueDate = update.DueDate.UTC()
	}
	if task.DueDate.Before(task.StartDate) {
		return nil, SyncResult{}, fmt.Errorf("due date precedes start date")
	}
	if update.ClearRecurrenceEnd {
		task.RecurrenceEndDate = nil
	} else if update.RecurrenceEndDate != nil {
		task.RecurrenceEndDate = utcPtr(update.RecurrenceEndDate)
	}
	rule := string(task.RecurrenceRule)
	if update.RecurrenceRule != nil {
		rule = *update.RecurrenceRule
	}
	s.applyRule(task, rule)

	var assignees []uint
	if update.AssigneeIDs != nil {
		assignees, err = s.users.FilterExisting(ctx, task.OrgID, *update.AssigneeIDs)
		if err != nil {
			return nil, SyncResult{}, err
		}
		task.AssignedToID = firstID(assignees)
	}

	after := task.Snapshot()
	decision := recurrence.Decide(before, after, s.tolerance)
	log := s.log.WithFields(logrus.Fields{
		"task_id":           task.ID,
		"rule_changed":      decision.RuleChanged,
		"status_changed":    decision.RecurringStatusChanged,
		"dates_changed":     decision.DatesChanged,
		"will_be_recurring": decision.WillBeRecurring,
	})
	now := s.now()

	// The edit and the series change commit together; a failed run leaves
	// the old configuration in place so the same edit can be retried.
	var result SyncResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.tasks.WithTx(tx)
		if err := repo.Save(ctx, task); err != nil {
			return err
		}
		if update.AssigneeIDs != nil {
			if err := repo.ReplaceAssignees(ctx, task.ID, assignees); err != nil {
				return err
			}
		}

		var err error
		switch {
		case decision.Collapse:
			log.Info("task stopped recurring")
			result, err = s.occurrences.CollapseTx(ctx, tx, task)
		case decision.NeedsRegeneration:
			log.Info("regenerating occurrences")
			result, err = s.occurrences.SynchronizeTx(ctx, tx, task, now)
		case !decision.WillBeRecurring && singletonMoved(before, after, s.tolerance):
			// The single occurrence follows its task's dates.
			result, err = s.occurrences.SynchronizeTx(ctx, tx, task, now)
		}
		if err != nil {
			return err
		}

		// Preserved open rows later this month are outside any regeneration,
		// so an assignee change always reaches them here.
		if update.AssigneeIDs != nil {
			_, err = s.assignees.ResyncFutureAssigneesTx(ctx, tx, task.ID, now)
		}
		return err
	})
	if err != nil {
		return nil, SyncResult{}, fmt.Errorf("update task %d: %w", taskID, err)
	}
	return task, result, nil
}

// SetAssignees replaces the task's assignee set; open future occurrences
// follow, history keeps its assignees.
func (s *TaskService) SetAssignees(ctx context.Context, taskID uint, userIDs []uint) (*model.Task, error) {
	task, _, err := s.UpdateTask(ctx, taskID, TaskUpdate{AssigneeIDs: &userIDs})
	return task, err
}

// Resync reloads the task and runs one synchronization under its lock.
func (s *TaskService) Resync(ctx context.Context, taskID uint) (*model.Task, SyncResult, error) {
	unlock := s.locker.Lock(taskID)
	defer unlock()

	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, SyncResult{}, err
	}
	result, err := s.occurrences.GenerateOrSynchronize(ctx, task)
	if err != nil {
		return task, SyncResult{}, err
	}
	return task, result, nil
}

// GetTask returns the task or ErrTaskNotFound.
func (s *TaskService) GetTask(ctx context.Context, taskID uint) (*model.Task, error) {
	return s.load(ctx, taskID)
}

// DeleteTask removes a task together with its occurrences and assignees.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	unlock := s.locker.Lock(taskID)
	defer unlock()

	if _, err := s.load(ctx, taskID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.occurrences.occurrences.WithTx(tx).DeleteByTask(ctx, taskID); err != nil {
			return err
		}
		return s.tasks.WithTx(tx).Delete(ctx, taskID)
	})
	if err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	s.log.WithField("task_id", taskID).Info("task deleted")
	return nil
}

func (s *TaskService) load(ctx context.Context, taskID uint) (*model.Task, error) {
	return loadTask(ctx, s.tasks, taskID)
}

// loadTask maps a missing row to ErrTaskNotFound.
func loadTask(ctx context.Context, tasks *repository.TaskRepository, taskID uint) (*model.Task, error) {
	task, err := tasks.FindByID(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	return task, nil
}

// applyRule normalizes the raw rule onto the task and derives IsRecurring.
func (s *TaskService) applyRule(task *model.Task, raw string) {
	freq := recurrence.Parse(raw)
	if strings.TrimSpace(raw) != "" && !freq.IsRecurring() {
		s.log.WithFields(logrus.Fields{
			"task_id": task.ID,
			"rule":    raw,
		}).Warn("unrecognized recurrence rule, treating task as non-recurring")
	}
	task.RecurrenceRule = freq
	task.IsRecurring = freq.IsRecurring() && task.RecurrenceEndDate != nil
}

func singletonMoved(before, after recurrence.Snapshot, tolerance time.Duration) bool {
	return outside(before.StartDate, after.StartDate, tolerance) ||
		outside(before.DueDate, after.DueDate, tolerance)
}

func outside(a, b time.Time, tolerance time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
