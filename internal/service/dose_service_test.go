package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

type doseFixture struct {
	store *storage.Storage
	svc   *DoseService
	user  *domain.User
	sch   *domain.Schedule
}

func newDoseFixture(t *testing.T) *doseFixture {
	t.Helper()
	store := newTestStorage(t)
	user := newTestUser(t, store)

	m := &domain.Medicine{UserID: user.ID, Name: "Ibuprofen", Dosage: "400 mg"}
	sch := &domain.Schedule{
		StartDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		TimeSlots: "08:00",
		TakeDays:  1,
	}
	require.NoError(t, store.CreateSchedule(m, sch, nil))

	return &doseFixture{
		store: store,
		svc:   NewDoseService(store, time.UTC),
		user:  user,
		sch:   sch,
	}
}

func (f *doseFixture) addRecord(t *testing.T, at time.Time) int64 {
	t.Helper()
	inserted, err := f.store.InsertRecordIfAbsent(f.sch.ID, at)
	require.NoError(t, err)
	require.True(t, inserted)

	records, err := f.store.ListRecordsBySchedule(f.sch.ID)
	require.NoError(t, err)
	for _, r := range records {
		if r.ScheduledAt.Equal(at.UTC()) {
			return r.ID
		}
	}
	t.Fatalf("record for %v not found", at)
	return 0
}

func TestDoseService_RecordAndUndo(t *testing.T) {
	f := newDoseFixture(t)
	recordID := f.addRecord(t, time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))

	now := time.Now()
	require.NoError(t, f.svc.Record(recordID, &now, nil))

	view, err := f.svc.Get(recordID)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.True(t, view.Taken)

	// Undo returns the dose to pending.
	require.NoError(t, f.svc.Record(recordID, nil, nil))

	view, err = f.svc.Get(recordID)
	require.NoError(t, err)
	assert.False(t, view.Taken)
	assert.False(t, view.Skipped)
	assert.Nil(t, view.TakenAt)
}

func TestDoseService_SkipThenRecord_LaterWins(t *testing.T) {
	f := newDoseFixture(t)
	recordID := f.addRecord(t, time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))

	require.NoError(t, f.svc.Skip(recordID, nil))

	now := time.Now()
	require.NoError(t, f.svc.Record(recordID, &now, nil))

	view, err := f.svc.Get(recordID)
	require.NoError(t, err)
	assert.True(t, view.Taken)
	assert.False(t, view.Skipped)
}

func TestDoseService_RecordUnknown(t *testing.T) {
	f := newDoseFixture(t)

	now := time.Now()
	assert.ErrorIs(t, f.svc.Record(999, &now, nil), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Skip(999, nil), domain.ErrNotFound)
}

func TestDoseService_ScheduleReminder(t *testing.T) {
	f := newDoseFixture(t)
	recordID := f.addRecord(t, time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))

	assert.ErrorIs(t, f.svc.ScheduleReminder(999, time.Now()), domain.ErrNotFound)

	trigger := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.svc.ScheduleReminder(recordID, trigger))

	// Re-scheduling replaces the trigger instead of stacking a second one.
	require.NoError(t, f.svc.ScheduleReminder(recordID, trigger.Add(time.Hour)))

	due, err := f.svc.DueReminders(trigger.Add(2 * time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].Reminder.TriggerAt.Equal(trigger.Add(time.Hour)))
}

func TestDoseService_PlanReminders_Idempotent(t *testing.T) {
	f := newDoseFixture(t)
	f.addRecord(t, time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC))
	f.addRecord(t, time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC))

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	planned, err := f.svc.PlanReminders(from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, planned)

	planned, err = f.svc.PlanReminders(from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, planned, "second planning pass arms nothing new")
}

func TestDoseService_TakingDropsPendingReminder(t *testing.T) {
	f := newDoseFixture(t)
	instant := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	recordID := f.addRecord(t, instant)

	require.NoError(t, f.svc.ScheduleReminder(recordID, instant))

	now := time.Now()
	require.NoError(t, f.svc.Record(recordID, &now, nil))

	due, err := f.svc.DueReminders(instant.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDoseService_ObserveDay(t *testing.T) {
	f := newDoseFixture(t)
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	recordID := f.addRecord(t, day.Add(8*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := f.svc.ObserveDay(ctx, f.user.ID, day)
	require.NoError(t, err)

	select {
	case views := <-ch:
		require.Len(t, views, 1)
		assert.False(t, views[0].Taken)
	case <-time.After(time.Second):
		t.Fatal("no initial emission")
	}

	now := time.Now()
	require.NoError(t, f.svc.Record(recordID, &now, nil))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case views := <-ch:
			require.Len(t, views, 1)
			if views[0].Taken {
				return
			}
		case <-deadline:
			t.Fatal("no emission reflecting the mutation")
		}
	}
}

func TestDoseService_Stats(t *testing.T) {
	f := newDoseFixture(t)

	now := time.Now().UTC()
	taken := f.addRecord(t, now.Add(-48*time.Hour))
	skipped := f.addRecord(t, now.Add(-24*time.Hour))
	f.addRecord(t, now.Add(-2*time.Hour)) // missed: past and still pending
	f.addRecord(t, now.Add(20*time.Hour)) // upcoming

	takenAt := now.Add(-47 * time.Hour)
	require.NoError(t, f.svc.Record(taken, &takenAt, nil))
	require.NoError(t, f.svc.Skip(skipped, nil))

	stats, err := f.svc.Stats(f.user.ID, now.AddDate(0, 0, -7), now.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, stats, 1)

	st := stats[0]
	assert.Equal(t, "Ibuprofen", st.MedicineName)
	assert.Equal(t, 1, st.Taken)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 1, st.Missed)
	assert.Equal(t, 1, st.Upcoming)
}
