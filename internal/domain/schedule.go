package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schedule is a recurring intake rule for one medicine. The take/rest
// cycle is anchored at StartDate: day offset 0 begins the take phase,
// so take=5 rest=2 means five active days, then two off, repeating.
type Schedule struct {
	ID               int64
	MedicineID       int64
	StartDate        time.Time  // inclusive; time-of-day part ignored
	EndDate          *time.Time // inclusive, nil = open-ended
	TimeSlots        string     // comma-separated "HH:MM" slots, e.g. "08:00,20:00"
	TakeDays         int        // >= 1
	RestDays         int        // >= 0; 0 = every day in range is a take-day
	IsActive         bool
	GeneratedThrough *time.Time // last date records were materialized for
	CreatedAt        time.Time
	DeletedAt        *time.Time
}

func (s *Schedule) CycleLength() int {
	return s.TakeDays + s.RestDays
}

func (s *Schedule) IsDeleted() bool {
	return s.DeletedAt != nil
}

// GetTimeSlots returns the parsed slots, sorted ascending with
// duplicates removed.
func (s *Schedule) GetTimeSlots() []string {
	if s.TimeSlots == "" {
		return nil
	}
	seen := make(map[string]bool)
	var slots []string
	for _, raw := range strings.Split(s.TimeSlots, ",") {
		slot := strings.TrimSpace(raw)
		if slot == "" {
			continue
		}
		h, m, err := ParseTimeSlot(slot)
		if err != nil {
			continue
		}
		slot = fmt.Sprintf("%02d:%02d", h, m)
		if !seen[slot] {
			seen[slot] = true
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)
	return slots
}

// SetTimeSlots stores slots in canonical comma-separated form.
func (s *Schedule) SetTimeSlots(slots []string) {
	s.TimeSlots = strings.Join(slots, ",")
	s.TimeSlots = strings.Join(s.GetTimeSlots(), ",")
}

// IsTakeDay reports whether date falls on an active day of the cycle.
// Dates before the start date or after the end date are never take-days.
func (s *Schedule) IsTakeDay(date time.Time) bool {
	d := daysBetween(s.StartDate, date)
	if d < 0 {
		return false
	}
	if s.EndDate != nil && daysBetween(*s.EndDate, date) > 0 {
		return false
	}
	if s.RestDays <= 0 {
		return true
	}
	return d%s.CycleLength() < s.TakeDays
}

// Occurrences returns the ordered scheduled instants within [from, to]
// inclusive, one per time slot per take-day. The window is clamped to
// [StartDate, EndDate]; an empty window yields nil. Instants are built
// in from's location. Deduplication against already persisted records
// is the caller's job.
func (s *Schedule) Occurrences(from, to time.Time) []time.Time {
	if s.TakeDays < 1 {
		return nil
	}
	loc := from.Location()

	lo := dateOnly(from)
	if daysBetween(s.StartDate, lo) < 0 {
		lo = time.Date(s.StartDate.Year(), s.StartDate.Month(), s.StartDate.Day(), 0, 0, 0, 0, loc)
	}
	hi := dateOnly(to)
	if s.EndDate != nil && daysBetween(*s.EndDate, hi) > 0 {
		hi = time.Date(s.EndDate.Year(), s.EndDate.Month(), s.EndDate.Day(), 0, 0, 0, 0, loc)
	}
	span := daysBetween(lo, hi)
	if span < 0 {
		return nil
	}

	slots := s.GetTimeSlots()
	if len(slots) == 0 {
		return nil
	}

	offset := daysBetween(s.StartDate, lo)
	year, month, day := lo.Date()

	var out []time.Time
	for i := 0; i <= span; i++ {
		if s.RestDays > 0 && (offset+i)%s.CycleLength() >= s.TakeDays {
			continue
		}
		date := time.Date(year, month, day+i, 0, 0, 0, 0, loc)
		for _, slot := range slots {
			h, m, _ := ParseTimeSlot(slot)
			out = append(out, time.Date(date.Year(), date.Month(), date.Day(), h, m, 0, 0, loc))
		}
	}
	return out
}

// ParseTimeSlot parses an "HH:MM" clock time.
func ParseTimeSlot(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time slot: %s", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in slot: %s", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in slot: %s", s)
	}
	return hour, minute, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daysBetween counts civil days from a to b, ignoring time of day and
// DST transitions (both dates are mapped to UTC midnights first).
func daysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au) / (24 * time.Hour))
}
