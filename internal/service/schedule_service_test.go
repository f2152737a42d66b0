package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *storage.Storage) *domain.User {
	t.Helper()
	u := &domain.User{TelegramID: 100, Name: "Maria", Role: domain.RoleOwner}
	require.NoError(t, s.CreateUser(u))
	return u
}

func TestScheduleService_Create_Validation(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	base := domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"08:00"},
		TakeDays:  1,
		StartDate: time.Now(),
	}

	tests := []struct {
		name   string
		mutate func(p *domain.CreateScheduleParams)
	}{
		{"zero take days", func(p *domain.CreateScheduleParams) { p.TakeDays = 0 }},
		{"negative rest days", func(p *domain.CreateScheduleParams) { p.RestDays = -1 }},
		{"no time slots", func(p *domain.CreateScheduleParams) { p.TimeSlots = nil }},
		{"bad time slot", func(p *domain.CreateScheduleParams) { p.TimeSlots = []string{"25:00"} }},
		{"zero start date", func(p *domain.CreateScheduleParams) { p.StartDate = time.Time{} }},
		{"end before start", func(p *domain.CreateScheduleParams) {
			end := p.StartDate.AddDate(0, 0, -1)
			p.EndDate = &end
		}},
		{"no medicine name", func(p *domain.CreateScheduleParams) { p.Name = "  " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := svc.Create(p)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestScheduleService_Create_NewMedicineAndInitialRecords(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	sch, err := svc.Create(domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Vitamin D",
		Dosage:    "1000 IU",
		TimeSlots: []string{"09:00"},
		TakeDays:  1,
		StartDate: time.Now(),
	})
	require.NoError(t, err)
	require.NotZero(t, sch.ID)
	require.NotZero(t, sch.MedicineID, "medicine created in the same call")

	medicine, err := store.GetMedicine(sch.MedicineID)
	require.NoError(t, err)
	require.NotNil(t, medicine)
	assert.Equal(t, "Vitamin D", medicine.Name)
	assert.Equal(t, user.ID, medicine.UserID)

	// One record per day from today through the 14-day horizon, inclusive.
	records, err := store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)
	assert.Len(t, records, 15)

	require.NotNil(t, sch.GeneratedThrough)
}

func TestScheduleService_Create_ExistingMedicineOwnership(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	other := &domain.User{TelegramID: 200, Name: "Alex", Role: domain.RolePartner}
	require.NoError(t, store.CreateUser(other))

	m := &domain.Medicine{UserID: other.ID, Name: "Theirs"}
	require.NoError(t, store.CreateMedicine(m))

	svc := NewScheduleService(store, time.UTC, 14)
	_, err := svc.Create(domain.CreateScheduleParams{
		UserID:     user.ID,
		MedicineID: m.ID,
		TimeSlots:  []string{"08:00"},
		TakeDays:   1,
		StartDate:  time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScheduleService_EnsureOccurrencesUpTo_Idempotent(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	sch, err := svc.Create(domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"08:00"},
		TakeDays:  1,
		StartDate: time.Now(),
	})
	require.NoError(t, err)

	horizon := svc.DefaultHorizon(time.Now()).AddDate(0, 0, 7)

	created, err := svc.EnsureOccurrencesUpTo(horizon)
	require.NoError(t, err)
	assert.Equal(t, 7, created, "extends past the already generated range")

	created, err = svc.EnsureOccurrencesUpTo(horizon)
	require.NoError(t, err)
	assert.Equal(t, 0, created, "second pass has nothing to add")

	records, err := store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)
	assert.Len(t, records, 22)
}

func TestScheduleService_Update_FutureOnly(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	start := time.Now().AddDate(0, 0, -10)
	sch, err := svc.Create(domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"08:00"},
		TakeDays:  1,
		StartDate: start,
	})
	require.NoError(t, err)

	records, err := store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	takenAt := records[0].ScheduledAt.Add(time.Minute)
	require.NoError(t, store.SetRecordTaken(records[0].ID, &takenAt, nil))
	historyInstant := records[0].ScheduledAt

	err = svc.Update(sch.ID, user.ID, domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"09:00"},
		TakeDays:  1,
		StartDate: start,
	})
	require.NoError(t, err)

	records, err = store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var keptHistory bool
	for _, r := range records {
		if r.ScheduledAt.Equal(historyInstant) {
			keptHistory = true
			assert.True(t, r.Taken)
			continue
		}
		if !r.ScheduledAt.Before(today) {
			assert.Equal(t, 9, r.ScheduledAt.UTC().Hour(), "regenerated instants use the new slot")
		}
	}
	assert.True(t, keptHistory, "taken record survives the rewrite")
}

func TestScheduleService_Update_NotOwned(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	sch, err := svc.Create(domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"08:00"},
		TakeDays:  1,
		StartDate: time.Now(),
	})
	require.NoError(t, err)

	err = svc.Update(sch.ID, user.ID+99, domain.CreateScheduleParams{
		TimeSlots: []string{"09:00"},
		TakeDays:  1,
		StartDate: time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScheduleService_Delete_KeepsHistory(t *testing.T) {
	store := newTestStorage(t)
	user := newTestUser(t, store)
	svc := NewScheduleService(store, time.UTC, 14)

	sch, err := svc.Create(domain.CreateScheduleParams{
		UserID:    user.ID,
		Name:      "Ibuprofen",
		TimeSlots: []string{"08:00"},
		TakeDays:  1,
		StartDate: time.Now().AddDate(0, 0, -3),
	})
	require.NoError(t, err)

	records, err := store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	takenAt := records[0].ScheduledAt.Add(time.Minute)
	require.NoError(t, store.SetRecordTaken(records[0].ID, &takenAt, nil))

	require.NoError(t, svc.Delete(sch.ID, user.ID))

	got, err := svc.Get(sch.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "deleted schedule is gone from reads")

	records, err = store.ListRecordsBySchedule(sch.ID)
	require.NoError(t, err)
	require.NotEmpty(t, records, "past records survive the delete")

	// Only future pending doses are pruned; past ones stay for history.
	now := time.Now().UTC()
	var sawTaken bool
	for _, r := range records {
		assert.True(t, r.ScheduledAt.Before(now), "no future record left")
		sawTaken = sawTaken || r.Taken
	}
	assert.True(t, sawTaken)

	assert.ErrorIs(t, svc.Delete(sch.ID, user.ID), domain.ErrNotFound)
}

func TestScheduleService_ParseAddArgs(t *testing.T) {
	svc := NewScheduleService(nil, time.UTC, 14)

	p, err := svc.ParseAddArgs("3 08:00,20:00 5/2 2024-01-01 2024-02-01", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.MedicineID)
	assert.Equal(t, []string{"08:00", "20:00"}, p.TimeSlots)
	assert.Equal(t, 5, p.TakeDays)
	assert.Equal(t, 2, p.RestDays)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), p.StartDate)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), *p.EndDate)

	p, err = svc.ParseAddArgs("3 09:00 daily", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, p.TakeDays)
	assert.Equal(t, 0, p.RestDays)
	assert.Nil(t, p.EndDate)

	_, err = svc.ParseAddArgs("3 09:00", 7)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.ParseAddArgs("3 09:00 5-2", 7)
	assert.True(t, domain.IsValidation(err))
}
