package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"taskflow/internal/model"
	"taskflow/internal/recurrence"
	"taskflow/internal/repository"
)

// digestLimit caps the occurrence lines of one message.
const digestLimit = 25

// DigestService builds human-readable summaries for operator notifications.
type DigestService struct {
	tasks       *repository.TaskRepository
	occurrences *repository.OccurrenceRepository
	users       *repository.UserRepository
	sync        *OccurrenceService
}

func NewDigestService(
	tasks *repository.TaskRepository,
	occurrences *repository.OccurrenceRepository,
	users *repository.UserRepository,
	sync *OccurrenceService,
) *DigestService {
	return &DigestService{tasks: tasks, occurrences: occurrences, users: users, sync: sync}
}

// TaskDigest lists a task's occurrences, marking the preserved ones.
func (s *DigestService) TaskDigest(ctx context.Context, taskID uint, now time.Time) (string, error) {
	task, err := loadTask(ctx, s.tasks, taskID)
	if err != nil {
		return "", err
	}
	rows, err := s.occurrences.ListByTask(ctx, taskID)
	if err != nil {
		return "", err
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	assigned, err := s.occurrences.AssigneeIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	names, err := s.userNames(ctx, assigned)
	if err != nil {
		return "", err
	}

	loc := s.sync.Location(task)
	cutoff := recurrence.PreservationCutoff(now, loc)

	var builder strings.Builder
	builder.WriteString(formatTaskHeader(*task, loc))
	builder.WriteString(fmt.Sprintf("🗓 History up to %s\n\n", cutoff.Format("2006-01-02")))

	if len(rows) == 0 {
		builder.WriteString("— no occurrences\n")
	}
	for i, row := range rows {
		if i == digestLimit {
			builder.WriteString(fmt.Sprintf("… and %d more\n", len(rows)-digestLimit))
			break
		}
		builder.WriteString(formatOccurrence(row, loc, cutoff, assigned[row.ID], names))
	}
	return strings.TrimSpace(builder.String()), nil
}

func (s *DigestService) userNames(ctx context.Context, assigned map[uint][]uint) (map[uint]string, error) {
	var ids []uint
	for _, users := range assigned {
		ids = append(ids, users...)
	}
	users, err := s.users.ListByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, user := range users {
		names[user.ID] = user.Name
	}
	return names, nil
}

// SweepSummary renders a sweep report for the operator chat.
func SweepSummary(report SweepReport) string {
	icon := "✅"
	if report.Failed > 0 {
		icon = "⚠️"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s <b>Sweep finished</b>\n", icon))
	sb.WriteString(fmt.Sprintf("🆔 <code>%s</code>\n", html.EscapeString(report.RunID)))
	sb.WriteString(fmt.Sprintf("♻️ tasks: %d · failed: %d\n", report.Tasks, report.Failed))
	sb.WriteString(fmt.Sprintf("➕ created: %d · ➖ deleted: %d · 📌 preserved: %d\n", report.Created, report.Deleted, report.Preserved))
	sb.WriteString(fmt.Sprintf("⏱ %s", report.Duration.Round(time.Millisecond)))
	return sb.String()
}

// SyncSummary renders one synchronization result.
func SyncSummary(task model.Task, result SyncResult) string {
	return fmt.Sprintf("♻️ <b>#%d %s</b>\n➕ created: %d · ➖ deleted: %d · 📌 preserved: %d · ✏️ updated: %d",
		task.ID, html.EscapeString(strings.TrimSpace(task.Title)),
		result.CreatedCount, result.DeletedCount, result.PreservedCount, result.UpdatedCount)
}

func formatTaskHeader(task model.Task, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>#%d %s</b>\n", task.ID, html.EscapeString(strings.TrimSpace(task.Title))))

	freq := task.Frequency()
	switch {
	case freq.IsRecurring() && task.RecurrenceEndDate != nil:
		sb.WriteString(fmt.Sprintf("🔁 %s until %s (%s)\n", freq, task.RecurrenceEndDate.In(loc).Format("2006-01-02"), loc))
	case freq.IsRecurring():
		sb.WriteString(fmt.Sprintf("🔁 %s without end date, single occurrence\n", freq))
	default:
		sb.WriteString("🔂 one-off\n")
	}
	return sb.String()
}

func formatOccurrence(row model.TaskOccurrence, loc *time.Location, cutoff time.Time, users []uint, names map[uint]string) string {
	var sb strings.Builder

	icon := "🟢"
	switch {
	case row.IsCompleted || row.Status == model.StatusCompleted:
		icon = "✅"
	case !row.StartDate.After(cutoff):
		icon = "📌"
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s → %s · %s",
		icon,
		row.OccurrenceIndex,
		row.StartDate.In(loc).Format("2006-01-02 15:04"),
		row.DueDate.In(loc).Format("2006-01-02 15:04"),
		html.EscapeString(row.Status)))

	if len(users) > 0 {
		labels := make([]string, 0, len(users))
		for _, id := range users {
			name := strings.TrimSpace(names[id])
			if name == "" {
				name = fmt.Sprintf("user %d", id)
			}
			labels = append(labels, html.EscapeString(name))
		}
		sb.WriteString(fmt.Sprintf("\n   👤 %s", strings.Join(labels, ", ")))
	}

	sb.WriteByte('\n')
	return sb.String()
}
