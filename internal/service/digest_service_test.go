package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/internal/model"
)

func TestDigestService_TaskDigest(t *testing.T) {
	f := newFixture(t, date(2025, time.March, 10, 0))
	ctx := context.Background()
	alice := f.createUser(t, "Alice <ops>")
	task := f.monthlyTask(t, date(2025, time.January, 5, 9), date(2025, time.June, 30, 23), alice)
	task.Title = "Payroll & taxes"
	require.NoError(t, f.tasks.Save(ctx, task))

	_, err := f.sync.GenerateOrSynchronize(ctx, task)
	require.NoError(t, err)

	digest := NewDigestService(f.tasks, f.occRepo, f.users, f.sync)
	text, err := digest.TaskDigest(ctx, task.ID, f.clock)
	require.NoError(t, err)

	assert.Contains(t, text, "Payroll &amp; taxes")
	assert.Contains(t, text, "MONTHLY until 2025-06-30")
	assert.Contains(t, text, "History up to 2025-03-31")
	assert.Contains(t, text, "📌 #0 2025-01-05 09:00")
	assert.Contains(t, text, "🟢 #3 2025-04-05 09:00")
	assert.Contains(t, text, "Alice &lt;ops&gt;")
	assert.Equal(t, 3, strings.Count(text, "📌"))
}

func TestDigestService_TruncatesLongSeries(t *testing.T) {
	f := newFixture(t, date(2025, time.March, 10, 0))
	ctx := context.Background()
	end := date(2025, time.December, 31, 23)
	task := f.createTask(t, model.Task{
		OrgID:             1,
		Title:             "Standup",
		StartDate:         date(2025, time.January, 1, 9),
		DueDate:           date(2025, time.January, 1, 10),
		RecurrenceRule:    "DAILY",
		RecurrenceEndDate: &end,
	})
	_, err := f.sync.GenerateOrSynchronize(ctx, task)
	require.NoError(t, err)

	text, err := NewDigestService(f.tasks, f.occRepo, f.users, f.sync).TaskDigest(ctx, task.ID, f.clock)
	require.NoError(t, err)
	assert.Contains(t, text, "… and 340 more")
}

func TestDigestService_UnknownTask(t *testing.T) {
	f := newFixture(t, date(2025, time.March, 10, 0))

	_, err := NewDigestService(f.tasks, f.occRepo, f.users, f.sync).TaskDigest(context.Background(), 999, f.clock)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestSweepSummary(t *testing.T) {
	text := SweepSummary(SweepReport{RunID: "abc", Tasks: 3, Created: 4, Deleted: 1, Preserved: 9, Failed: 1, Duration: 1500 * time.Millisecond})
	assert.True(t, strings.HasPrefix(text, "⚠️"))
	assert.Contains(t, text, "<code>abc</code>")
	assert.Contains(t, text, "tasks: 3 · failed: 1")
	assert.Contains(t, text, "created: 4 · ➖ deleted: 1 · 📌 preserved: 9")
	assert.Contains(t, text, "1.5s")
}

func TestSyncSummary(t *testing.T) {
	text := SyncSummary(model.Task{ID: 7, Title: "<VAT>"}, SyncResult{CreatedCount: 2, UpdatedCount: 1})
	assert.Contains(t, text, "#7 &lt;VAT&gt;")
	assert.Contains(t, text, "created: 2")
	assert.Contains(t, text, "updated: 1")
}
