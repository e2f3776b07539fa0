package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"taskflow/internal/repository"
)

// SweepReport aggregates one pass over all recurring tasks.
type SweepReport struct {
	RunID     string
	Tasks     int
	Created   int
	Deleted   int
	Preserved int
	Failed    int
	Duration  time.Duration
}

// SweepService re-synchronizes every recurring task so the preservation
// window keeps rolling forward as months pass.
type SweepService struct {
	tasks       *repository.TaskRepository
	occurrences *OccurrenceService
	locker      *TaskLocker
	workers     int
	timeout     time.Duration
	log         logrus.FieldLogger
}

func NewSweepService(
	tasks *repository.TaskRepository,
	occurrences *OccurrenceService,
	locker *TaskLocker,
	workers int,
	timeout time.Duration,
	log logrus.FieldLogger,
) *SweepService {
	if workers <= 0 {
		workers = 1
	}
	return &SweepService{
		tasks:       tasks,
		occurrences: occurrences,
		locker:      locker,
		workers:     workers,
		timeout:     timeout,
		log:         log,
	}
}

// Run synchronizes the recurring tasks of orgID, or of every organization
// when orgID is zero. A failing task is logged and counted; only
// cancellation of ctx aborts the run.
func (s *SweepService) Run(ctx context.Context, orgID uint) (SweepReport, error) {
	started := time.Now()
	report := SweepReport{RunID: uuid.Must(uuid.NewV7()).String()}
	log := s.log.WithField("run_id", report.RunID)

	ids, err := s.tasks.ListRecurringIDs(ctx, orgID)
	if err != nil {
		return report, fmt.Errorf("sweep: %w", err)
	}
	report.Tasks = len(ids)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.syncOne(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				log.WithError(err).WithField("task_id", id).Error("sweep task failed")
				return nil
			}
			report.Created += result.CreatedCount
			report.Deleted += result.DeletedCount
			report.Preserved += result.PreservedCount
			return nil
		})
	}
	err = g.Wait()
	report.Duration = time.Since(started)

	log.WithFields(logrus.Fields{
		"tasks":     report.Tasks,
		"created":   report.Created,
		"deleted":   report.Deleted,
		"preserved": report.Preserved,
		"failed":    report.Failed,
		"duration":  report.Duration.String(),
	}).Info("sweep finished")

	if err != nil {
		return report, fmt.Errorf("sweep: %w", err)
	}
	return report, nil
}

func (s *SweepService) syncOne(ctx context.Context, taskID uint) (SyncResult, error) {
	unlock := s.locker.Lock(taskID)
	defer unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load task %d: %w", taskID, err)
	}
	// The task may have stopped recurring since the id list was taken.
	if !task.IsRecurring {
		return SyncResult{}, nil
	}
	return s.occurrences.GenerateOrSynchronize(ctx, task)
}
