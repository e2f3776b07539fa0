package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrIndexInvariant signals a synchronization bug: the computed series
	// would leave duplicate or missing occurrence indices.
	ErrIndexInvariant = errors.New("occurrence index invariant violated")
)

// SyncResult summarizes one synchronization run.
type SyncResult struct {
	CreatedCount   int
	DeletedCount   int
	PreservedCount int
	UpdatedCount   int
}

// OccurrenceOptions configures the synchronizer.
type OccurrenceOptions struct {
	// Location is used for tasks without a timezone of their own.
	Location       *time.Location
	MaxOccurrences int
	BatchSize      int
	// Now is the clock the preservation cutoff is derived from.
	Now func() time.Time
}

// OccurrenceService keeps a task's stored occurrences in line with its
// recurrence configuration. Callers serialize runs per task.
type OccurrenceService struct {
	db          *gorm.DB
	tasks       *repository.TaskRepository
	occurrences *repository.OccurrenceRepository
	assignees   *AssigneeService
	loc         *time.Location
	maxCount    int
	batchSize   int
	now         func() time.Time
	log         logrus.FieldLogger
}

func NewOccurrenceService(
	db *gorm.DB,
	tasks *repository.TaskRepository,
	occurrences *repository.OccurrenceRepository,
	assignees *AssigneeService,
	opts OccurrenceOptions,
	log logrus.FieldLogger,
) *OccurrenceService {
	s := &OccurrenceService{
		db:          db,
		tasks:       tasks,
		occurrences: occurrences,
		assignees:   assignees,
		loc:         opts.Location,
		maxCount:    opts.MaxOccurrences,
		batchSize:   opts.BatchSize,
		now:         opts.Now,
		log:         log,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.maxCount <= 0 {
		s.maxCount = recurrence.DefaultMaxOccurrences
	}
	if s.batchSize <= 0 {
		s.batchSize = repository.DefaultBatchSize
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// syncRun groups the repositories bound to one transaction.
type syncRun struct {
	tasks       *repository.TaskRepository
	occurrences *repository.OccurrenceRepository
	assignees   *AssigneeService
}

func (s *OccurrenceService) bind(tx *gorm.DB) syncRun {
	return syncRun{
		tasks:       s.tasks.WithTx(tx),
		occurrences: s.occurrences.WithTx(tx),
		assignees:   s.assignees.WithTx(tx),
	}
}

// GenerateOrSynchronize reconciles the task's occurrences against its
// current recurrence configuration using the service clock.
func (s *OccurrenceService) GenerateOrSynchronize(ctx context.Context, task *model.Task) (SyncResult, error) {
	return s.SynchronizeAt(ctx, task, s.now())
}

// SynchronizeAt runs one synchronization with an explicit current time.
// Everything happens inside a single transaction.
func (s *OccurrenceService) SynchronizeAt(ctx context.Context, task *model.Task, now time.Time) (SyncResult, error) {
	var result SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.SynchronizeTx(ctx, tx, task, now)
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}
	return result, nil
}

// SynchronizeTx is SynchronizeAt inside a transaction owned by the caller,
// so a task edit and its series change commit or roll back together.
func (s *OccurrenceService) SynchronizeTx(ctx context.Context, tx *gorm.DB, task *model.Task, now time.Time) (SyncResult, error) {
	log := s.log.WithField("task_id", task.ID)
	result, until, err := s.synchronize(ctx, s.bind(tx), task, now, log)
	if err != nil {
		return SyncResult{}, fmt.Errorf("synchronize task %d: %w", task.ID, err)
	}

	task.LastGeneratedUntil = until
	log.WithFields(logrus.Fields{
		"created":   result.CreatedCount,
		"deleted":   result.DeletedCount,
		"preserved": result.PreservedCount,
		"updated":   result.UpdatedCount,
	}).Info("occurrences synchronized")
	return result, nil
}

// synchronize returns the run's counts and the watermark it stored.
func (s *OccurrenceService) synchronize(ctx context.Context, run syncRun, task *model.Task, now time.Time, log logrus.FieldLogger) (SyncResult, *time.Time, error) {
	loc := s.Location(task)

	userIDs, err := run.tasks.AssigneeIDs(ctx, task.ID)
	if err != nil {
		return SyncResult{}, nil, err
	}
	existing, err := run.occurrences.ListByTask(ctx, task.ID)
	if err != nil {
		return SyncResult{}, nil, err
	}

	freq := task.Frequency()
	if !freq.IsRecurring() || task.RecurrenceEndDate == nil {
		result, err := s.syncSingle(ctx, run, task, existing, userIDs)
		return result, task.RecurrenceEndDate, err
	}

	expander := recurrence.Expander{MaxCount: s.maxCount, Log: log}
	candidates, capped := expander.Expand(task.StartDate.In(loc), task.RecurrenceEndDate.In(loc), freq)
	if len(candidates) == 0 {
		log.Warn("recurrence end date precedes start date, keeping a single occurrence")
		result, err := s.syncSingle(ctx, run, task, existing, userIDs)
		return result, task.RecurrenceEndDate, err
	}

	until := task.RecurrenceEndDate
	if capped {
		last := storageInstant(candidates[len(candidates)-1])
		until = &last
	}
	cutoff := recurrence.PreservationCutoff(now, loc)
	result, err := s.syncSeries(ctx, run, task, existing, userIDs, candidates, cutoff, until)
	return result, until, err
}

// Collapse replaces the whole series with one occurrence at index 0. It is
// used when a task stops recurring; history is not preserved.
func (s *OccurrenceService) Collapse(ctx context.Context, task *model.Task) (SyncResult, error) {
	var result SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.CollapseTx(ctx, tx, task)
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}
	return result, nil
}

// CollapseTx is Collapse inside a transaction owned by the caller.
func (s *OccurrenceService) CollapseTx(ctx context.Context, tx *gorm.DB, task *model.Task) (SyncResult, error) {
	result, err := s.collapse(ctx, s.bind(tx), task)
	if err != nil {
		return SyncResult{}, fmt.Errorf("collapse task %d: %w", task.ID, err)
	}

	task.LastGeneratedUntil = task.RecurrenceEndDate
	s.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"deleted": result.DeletedCount,
	}).Info("recurring series collapsed to a single occurrence")
	return result, nil
}

func (s *OccurrenceService) collapse(ctx context.Context, run syncRun, task *model.Task) (SyncResult, error) {
	var result SyncResult

	userIDs, err := run.tasks.AssigneeIDs(ctx, task.ID)
	if err != nil {
		return result, err
	}
	deleted, err := run.occurrences.DeleteByTask(ctx, task.ID)
	if err != nil {
		return result, err
	}
	result.DeletedCount = int(deleted)

	rows := []model.TaskOccurrence{newOccurrence(task, storageInstant(task.StartDate), 0, taskStatus(task), userIDs)}
	if err := run.occurrences.CreateBatch(ctx, rows, s.batchSize); err != nil {
		return result, err
	}
	result.CreatedCount = 1

	if err := run.assignees.Propagate(ctx, task.ID, userIDs, []uint{rows[0].ID}); err != nil {
		return result, err
	}
	return result, run.tasks.UpdateWatermark(ctx, task.ID, task.RecurrenceEndDate)
}

// Location resolves the zone a task's series is stepped in.
func (s *OccurrenceService) Location(task *model.Task) *time.Location {
	if task.Timezone == "" {
		return s.loc
	}
	loc, err := time.LoadLocation(task.Timezone)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"task_id":  task.ID,
			"timezone": task.Timezone,
		}).Warn("unknown task timezone, using default")
		return s.loc
	}
	return loc
}

// syncSingle keeps exactly one occurrence at index 0 mirroring the task.
func (s *OccurrenceService) syncSingle(ctx context.Context, run syncRun, task *model.Task, existing []model.TaskOccurrence, userIDs []uint) (SyncResult, error) {
	var result SyncResult

	var primary *model.TaskOccurrence
	var extra []uint
	for i := range existing {
		if existing[i].OccurrenceIndex == 0 && primary == nil {
			primary = &existing[i]
			continue
		}
		extra = append(extra, existing[i].ID)
	}

	deleted, err := run.occurrences.DeleteByIDs(ctx, extra)
	if err != nil {
		return result, err
	}
	result.DeletedCount = int(deleted)

	fresh := newOccurrence(task, storageInstant(task.StartDate), 0, taskStatus(task), userIDs)
	if primary == nil {
		rows := []model.TaskOccurrence{fresh}
		if err := run.occurrences.CreateBatch(ctx, rows, s.batchSize); err != nil {
			return result, err
		}
		fresh.ID = rows[0].ID
		result.CreatedCount = 1
	} else {
		fresh.ID = primary.ID
		if sameCore(*primary, fresh) {
			result.PreservedCount = 1
		} else {
			if err := run.occurrences.UpdateCore(ctx, &fresh); err != nil {
				return result, err
			}
			result.UpdatedCount = 1
		}
	}

	if err := run.assignees.Propagate(ctx, task.ID, userIDs, []uint{fresh.ID}); err != nil {
		return result, err
	}
	if err := run.tasks.UpdateWatermark(ctx, task.ID, task.RecurrenceEndDate); err != nil {
		return result, err
	}
	return result, nil
}

// syncSeries reconciles a recurring task. Rows at or before cutoff are
// history: they are never deleted and only their index may change. Rows
// after cutoff always reflect the latest rule; a future row survives only
// when it is identical to what regeneration would produce.
func (s *OccurrenceService) syncSeries(
	ctx context.Context,
	run syncRun,
	task *model.Task,
	existing []model.TaskOccurrence,
	userIDs []uint,
	candidates []time.Time,
	cutoff time.Time,
	until *time.Time,
) (SyncResult, error) {
	var result SyncResult

	var pastCandidates, futureCandidates []time.Time
	for _, c := range candidates {
		instant := storageInstant(c)
		if instant.After(cutoff) {
			futureCandidates = append(futureCandidates, instant)
		} else {
			pastCandidates = append(pastCandidates, instant)
		}
	}

	var pastRows, futureRows []model.TaskOccurrence
	for _, row := range existing {
		if row.StartDate.After(cutoff) {
			futureRows = append(futureRows, row)
		} else {
			pastRows = append(pastRows, row)
		}
	}

	// Repair holes in the preserved window without touching existing rows.
	present := make(map[int64]bool, len(pastRows))
	for _, row := range pastRows {
		present[instantKey(row.StartDate)] = true
	}
	var gaps []model.TaskOccurrence
	for _, c := range pastCandidates {
		if !present[instantKey(c)] {
			gaps = append(gaps, newOccurrence(task, c, 0, taskStatus(task), userIDs))
			present[instantKey(c)] = true
		}
	}

	// Preserved window layout: existing history plus repaired gaps, by start.
	layout := make([]*model.TaskOccurrence, 0, len(pastRows)+len(gaps))
	for i := range pastRows {
		layout = append(layout, &pastRows[i])
	}
	for i := range gaps {
		layout = append(layout, &gaps[i])
	}
	sort.SliceStable(layout, func(i, j int) bool {
		a, b := layout[i], layout[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		// Existing rows (non-zero id) before new ones, then by id.
		if (a.ID == 0) != (b.ID == 0) {
			return a.ID != 0
		}
		return a.ID < b.ID
	})

	var moved []reindex
	for i, row := range layout {
		if row.ID != 0 && row.OccurrenceIndex != i {
			moved = append(moved, reindex{id: row.ID, to: i})
		}
		row.OccurrenceIndex = i
	}

	// Future window: expected rows continue the sequence.
	offset := len(layout)
	expected := make([]model.TaskOccurrence, 0, len(futureCandidates))
	for j, c := range futureCandidates {
		expected = append(expected, newOccurrence(task, c, offset+j, model.StatusOpen, userIDs))
	}

	futureIDs := make([]uint, 0, len(futureRows))
	for _, row := range futureRows {
		futureIDs = append(futureIDs, row.ID)
	}
	futureAssignees, err := run.occurrences.AssigneeIDs(ctx, futureIDs)
	if err != nil {
		return result, err
	}

	byStart := make(map[int64][]model.TaskOccurrence, len(futureRows))
	for _, row := range futureRows {
		key := instantKey(row.StartDate)
		byStart[key] = append(byStart[key], row)
	}
	var created []model.TaskOccurrence
	kept := make(map[uint]bool)
	for _, want := range expected {
		match := false
		for _, row := range byStart[instantKey(want.StartDate)] {
			if !kept[row.ID] && matchesGenerated(row, want, futureAssignees[row.ID], userIDs) {
				kept[row.ID] = true
				match = true
				break
			}
		}
		if !match {
			created = append(created, want)
		}
	}

	var stale []uint
	for _, row := range futureRows {
		if !kept[row.ID] {
			stale = append(stale, row.ID)
		}
	}

	if err := verifyContiguous(layout, expected); err != nil {
		return result, err
	}

	deleted, err := run.occurrences.DeleteByIDs(ctx, stale)
	if err != nil {
		return result, err
	}
	result.DeletedCount = int(deleted)

	if err := s.applyReindex(ctx, run, moved); err != nil {
		return result, err
	}
	result.UpdatedCount = len(moved)

	// gaps already carry their final index through layout.
	created = append(gaps, created...)
	if err := run.occurrences.CreateBatch(ctx, created, s.batchSize); err != nil {
		return result, err
	}
	result.CreatedCount = len(created)
	result.PreservedCount = len(pastRows) + len(kept)

	scope := make([]uint, 0, len(created))
	for _, row := range created {
		scope = append(scope, row.ID)
	}
	if err := run.assignees.Propagate(ctx, task.ID, userIDs, scope); err != nil {
		return result, err
	}

	if err := run.tasks.UpdateWatermark(ctx, task.ID, until); err != nil {
		return result, err
	}
	return result, nil
}

type reindex struct {
	id uint
	to int
}

// applyReindex moves rows in two phases so the unique (task_id,
// occurrence_index) constraint never sees a transient duplicate.
func (s *OccurrenceService) applyReindex(ctx context.Context, run syncRun, moved []reindex) error {
	for i, m := range moved {
		if err := run.occurrences.UpdateIndex(ctx, m.id, -(i + 1)); err != nil {
			return err
		}
	}
	for _, m := range moved {
		if err := run.occurrences.UpdateIndex(ctx, m.id, m.to); err != nil {
			return err
		}
	}
	return nil
}

func verifyContiguous(layout []*model.TaskOccurrence, future []model.TaskOccurrence) error {
	seen := make(map[int]bool, len(layout)+len(future))
	check := func(idx int) error {
		if idx < 0 || seen[idx] {
			return fmt.Errorf("%w: index %d", ErrIndexInvariant, idx)
		}
		seen[idx] = true
		return nil
	}
	for _, row := range layout {
		if err := check(row.OccurrenceIndex); err != nil {
			return err
		}
	}
	for _, row := range future {
		if err := check(row.OccurrenceIndex); err != nil {
			return err
		}
	}
	for i := 0; i < len(seen); i++ {
		if !seen[i] {
			return fmt.Errorf("%w: missing index %d", ErrIndexInvariant, i)
		}
	}
	return nil
}

// newOccurrence builds a row inheriting the task's current business fields.
func newOccurrence(task *model.Task, start time.Time, index int, status string, userIDs []uint) model.TaskOccurrence {
	return model.TaskOccurrence{
		TaskID:          task.ID,
		OccurrenceIndex: index,
		StartDate:       start,
		DueDate:         storageInstant(start.Add(task.Duration())),
		Title:           task.Title,
		Description:     task.Description,
		Status:          status,
		Priority:        task.Priority,
		Remarks:         task.Remarks,
		ClientID:        copyID(task.ClientID),
		ProjectID:       copyID(task.ProjectID),
		AssignedToID:    firstID(userIDs),
	}
}

// sameCore reports whether the fields UpdateCore writes already match.
func sameCore(row, want model.TaskOccurrence) bool {
	return row.OccurrenceIndex == want.OccurrenceIndex &&
		instantKey(row.StartDate) == instantKey(want.StartDate) &&
		instantKey(row.DueDate) == instantKey(want.DueDate) &&
		row.Title == want.Title &&
		row.Description == want.Description &&
		row.Priority == want.Priority &&
		sameID(row.ClientID, want.ClientID) &&
		sameID(row.ProjectID, want.ProjectID)
}

// matchesGenerated reports whether a stored future row is indistinguishable
// from a freshly generated one, so regenerating it would change nothing.
func matchesGenerated(row, want model.TaskOccurrence, rowUsers, userIDs []uint) bool {
	return sameCore(row, want) &&
		row.Status == want.Status &&
		row.Remarks == want.Remarks &&
		!row.IsCompleted &&
		row.CompletedAt == nil &&
		sameID(row.AssignedToID, want.AssignedToID) &&
		sameUserSet(rowUsers, userIDs)
}

func taskStatus(task *model.Task) string {
	if task.Status == "" {
		return model.StatusOpen
	}
	return task.Status
}

// storageInstant normalizes an instant to what every supported driver
// round-trips exactly.
func storageInstant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func instantKey(t time.Time) int64 {
	return t.UnixMilli()
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func firstID(ids []uint) *uint {
	if len(ids) == 0 {
		return nil
	}
	v := ids[0]
	return &v
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameUserSet(a, b []uint) bool {
	a, b = uniqueIDs(a), uniqueIDs(b)
	if len(a) != len(b) {
		return false
	}
	set := make(map[uint]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// uniqueIDs drops zero and repeated ids, keeping first-seen order.
func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
