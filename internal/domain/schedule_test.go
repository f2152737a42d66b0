package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSchedule_IsTakeDay_Cycle(t *testing.T) {
	start := date(2024, time.January, 1)
	sch := &Schedule{StartDate: start, TakeDays: 5, RestDays: 2}

	// Take days D..D+4, rest D+5..D+6, repeating with cycle length 7.
	for offset := 0; offset < 21; offset++ {
		day := start.AddDate(0, 0, offset)
		want := offset%7 < 5
		assert.Equal(t, want, sch.IsTakeDay(day), "offset %d", offset)
	}
}

func TestSchedule_IsTakeDay_NoRest(t *testing.T) {
	sch := &Schedule{StartDate: date(2024, time.January, 1), TakeDays: 1, RestDays: 0}

	for offset := 0; offset < 30; offset++ {
		assert.True(t, sch.IsTakeDay(sch.StartDate.AddDate(0, 0, offset)))
	}
}

func TestSchedule_IsTakeDay_OutOfRange(t *testing.T) {
	end := date(2024, time.January, 10)
	sch := &Schedule{StartDate: date(2024, time.January, 5), EndDate: &end, TakeDays: 1}

	assert.False(t, sch.IsTakeDay(date(2024, time.January, 4)), "before start")
	assert.True(t, sch.IsTakeDay(date(2024, time.January, 5)))
	assert.True(t, sch.IsTakeDay(date(2024, time.January, 10)), "end date is inclusive")
	assert.False(t, sch.IsTakeDay(date(2024, time.January, 11)), "after end")
}

func TestSchedule_Occurrences_DailyTwoSlots(t *testing.T) {
	sch := &Schedule{
		StartDate: date(2024, time.January, 1),
		TimeSlots: "08:00,20:00",
		TakeDays:  1,
		RestDays:  0,
	}

	got := sch.Occurrences(date(2024, time.January, 1), date(2024, time.January, 3))
	require.Len(t, got, 6)

	want := []time.Time{
		time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 1, 20, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 2, 20, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 3, 20, 0, 0, 0, time.UTC),
	}
	for i, w := range want {
		assert.True(t, got[i].Equal(w), "instant %d: got %v want %v", i, got[i], w)
	}
}

func TestSchedule_Occurrences_TakeRestCycle(t *testing.T) {
	sch := &Schedule{
		StartDate: date(2024, time.January, 1),
		TimeSlots: "09:00",
		TakeDays:  2,
		RestDays:  1,
	}

	got := sch.Occurrences(date(2024, time.January, 1), date(2024, time.January, 6))
	require.Len(t, got, 4)

	var days []int
	for _, at := range got {
		days = append(days, at.Day())
	}
	assert.Equal(t, []int{1, 2, 4, 5}, days)
}

func TestSchedule_Occurrences_WindowClamping(t *testing.T) {
	end := date(2024, time.January, 5)
	sch := &Schedule{
		StartDate: date(2024, time.January, 3),
		EndDate:   &end,
		TimeSlots: "12:00",
		TakeDays:  1,
	}

	// Window wider than the schedule on both sides.
	got := sch.Occurrences(date(2024, time.January, 1), date(2024, time.January, 31))
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Day())
	assert.Equal(t, 5, got[2].Day())
}

func TestSchedule_Occurrences_EmptyWindows(t *testing.T) {
	end := date(2024, time.January, 10)
	sch := &Schedule{
		StartDate: date(2024, time.January, 1),
		EndDate:   &end,
		TimeSlots: "08:00",
		TakeDays:  1,
	}

	assert.Empty(t, sch.Occurrences(date(2024, time.February, 1), date(2024, time.February, 10)),
		"end date precedes the window")

	later := &Schedule{StartDate: date(2024, time.March, 1), TimeSlots: "08:00", TakeDays: 1}
	assert.Empty(t, later.Occurrences(date(2024, time.January, 1), date(2024, time.January, 10)),
		"start date after the horizon")
}

func TestSchedule_Occurrences_MidCycleWindow(t *testing.T) {
	// The cycle stays anchored at the start date even when generation
	// begins mid-cycle.
	sch := &Schedule{
		StartDate: date(2024, time.January, 1),
		TimeSlots: "09:00",
		TakeDays:  5,
		RestDays:  2,
	}

	got := sch.Occurrences(date(2024, time.January, 6), date(2024, time.January, 10))
	// Jan 6, 7 are rest (offsets 5, 6); Jan 8-10 open the next cycle.
	require.Len(t, got, 3)
	assert.Equal(t, 8, got[0].Day())
	assert.Equal(t, 10, got[2].Day())
}

func TestSchedule_GetTimeSlots_SortAndDedupe(t *testing.T) {
	sch := &Schedule{TimeSlots: "20:00, 08:00,8:00,20:00"}
	assert.Equal(t, []string{"08:00", "20:00"}, sch.GetTimeSlots())
}

func TestSchedule_SetTimeSlots_Canonical(t *testing.T) {
	sch := &Schedule{}
	sch.SetTimeSlots([]string{"9:30", "07:00", "9:30"})
	assert.Equal(t, "07:00,09:30", sch.TimeSlots)
}

func TestParseTimeSlot(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"08:00", 8, 0, false},
		{"23:59", 23, 59, false},
		{"7:05", 7, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		h, m, err := ParseTimeSlot(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.hour, h, tt.in)
		assert.Equal(t, tt.minute, m, tt.in)
	}
}

func TestDaysBetween_AcrossDSTBoundary(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 2024-03-31 is the spring-forward date in Berlin.
	a := time.Date(2024, time.March, 30, 0, 0, 0, 0, loc)
	b := time.Date(2024, time.April, 1, 0, 0, 0, 0, loc)
	assert.Equal(t, 2, daysBetween(a, b))
}
