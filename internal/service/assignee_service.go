package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/internal/repository"
)

// AssigneeService copies a task's assignee set onto its occurrences.
type AssigneeService struct {
	db          *gorm.DB
	tasks       *repository.TaskRepository
	occurrences *repository.OccurrenceRepository
	batchSize   int
	log         logrus.FieldLogger
}

func NewAssigneeService(
	db *gorm.DB,
	tasks *repository.TaskRepository,
	occurrences *repository.OccurrenceRepository,
	batchSize int,
	log logrus.FieldLogger,
) *AssigneeService {
	if batchSize <= 0 {
		batchSize = repository.DefaultBatchSize
	}
	return &AssigneeService{
		db:          db,
		tasks:       tasks,
		occurrences: occurrences,
		batchSize:   batchSize,
		log:         log,
	}
}

// WithTx returns a copy whose repositories run inside tx.
func (s *AssigneeService) WithTx(tx *gorm.DB) *AssigneeService {
	clone := *s
	clone.db = tx
	clone.tasks = s.tasks.WithTx(tx)
	clone.occurrences = s.occurrences.WithTx(tx)
	return &clone
}

// Propagate makes every occurrence in occurrenceIDs carry exactly userIDs.
// Occurrences outside the list are left alone.
func (s *AssigneeService) Propagate(ctx context.Context, taskID uint, userIDs, occurrenceIDs []uint) error {
	if len(occurrenceIDs) == 0 {
		return nil
	}
	userIDs = uniqueIDs(userIDs)
	if err := s.occurrences.ReplaceAssignees(ctx, occurrenceIDs, userIDs, s.batchSize); err != nil {
		return fmt.Errorf("propagate assignees for task %d: %w", taskID, err)
	}
	s.log.WithFields(logrus.Fields{
		"task_id":     taskID,
		"occurrences": len(occurrenceIDs),
		"assignees":   len(userIDs),
	}).Debug("assignees propagated")
	return nil
}

// ResyncFutureAssignees applies the task's current assignees to every open
// occurrence starting after now. It returns the number of rows touched.
func (s *AssigneeService) ResyncFutureAssignees(ctx context.Context, taskID uint, now time.Time) (int, error) {
	var touched int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		touched, err = s.ResyncFutureAssigneesTx(ctx, tx, taskID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return touched, nil
}

// ResyncFutureAssigneesTx is ResyncFutureAssignees inside a transaction
// owned by the caller.
func (s *AssigneeService) ResyncFutureAssigneesTx(ctx context.Context, tx *gorm.DB, taskID uint, now time.Time) (int, error) {
	bound := s.WithTx(tx)
	userIDs, err := bound.tasks.AssigneeIDs(ctx, taskID)
	if err != nil {
		return 0, fmt.Errorf("resync future assignees: %w", err)
	}
	ids, err := bound.occurrences.ListOpenAfter(ctx, taskID, now)
	if err != nil {
		return 0, fmt.Errorf("resync future assignees: %w", err)
	}
	if err := bound.Propagate(ctx, taskID, userIDs, ids); err != nil {
		return 0, fmt.Errorf("resync future assignees: %w", err)
	}
	return len(ids), nil
}
