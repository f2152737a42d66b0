package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

type DoseService struct {
	storage  *storage.Storage
	timezone *time.Location
}

func NewDoseService(s *storage.Storage, tz *time.Location) *DoseService {
	if tz == nil {
		tz = time.UTC
	}
	return &DoseService{storage: s, timezone: tz}
}

// ListForDate returns the dose views for a single calendar date.
func (s *DoseService) ListForDate(userID int64, date time.Time) ([]*domain.DoseView, error) {
	start := s.dayStart(date)
	return s.storage.ListDosesBetween(userID, start, start.AddDate(0, 0, 1))
}

// ObserveDay streams the dose views for a date, re-emitting after every
// storage mutation until ctx is cancelled. The current state is emitted
// first.
func (s *DoseService) ObserveDay(ctx context.Context, userID int64, date time.Time) (<-chan []*domain.DoseView, error) {
	initial, err := s.ListForDate(userID, date)
	if err != nil {
		return nil, err
	}

	changes := s.storage.Subscribe(ctx)
	ch := make(chan []*domain.DoseView, 1)
	ch <- initial

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				views, err := s.ListForDate(userID, date)
				if err != nil {
					continue
				}
				select {
				case ch <- views:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Record logs an intake. A nil takenAt undoes a previous log and
// returns the dose to the pending state; either way any skip mark is
// cleared. A nil note keeps the stored note.
func (s *DoseService) Record(recordID int64, takenAt *time.Time, note *string) error {
	if err := s.storage.SetRecordTaken(recordID, takenAt, note); err != nil {
		return err
	}
	if takenAt != nil {
		// The dose is logged, a pending reminder has nothing to say.
		if err := s.storage.DeleteUnsentReminder(recordID); err != nil {
			return fmt.Errorf("drop reminder: %w", err)
		}
	}
	return nil
}

// Skip marks the dose as deliberately not taken. Mutually exclusive
// with Record: the later call wins.
func (s *DoseService) Skip(recordID int64, note *string) error {
	if err := s.storage.SetRecordSkipped(recordID, note); err != nil {
		return err
	}
	if err := s.storage.DeleteUnsentReminder(recordID); err != nil {
		return fmt.Errorf("drop reminder: %w", err)
	}
	return nil
}

// Get returns the dose view, or nil when the record does not exist.
func (s *DoseService) Get(recordID int64) (*domain.DoseView, error) {
	return s.storage.GetDoseView(recordID)
}

// ScheduleReminder registers a notification for the record at
// triggerAt. Re-scheduling the same record replaces the prior trigger,
// so snoozing is just another call with a later time.
func (s *DoseService) ScheduleReminder(recordID int64, triggerAt time.Time) error {
	record, err := s.storage.GetRecord(recordID)
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}
	if record == nil {
		return domain.ErrNotFound
	}
	return s.storage.UpsertReminder(recordID, triggerAt)
}

// PlanReminders arms a reminder at the scheduled instant for every
// pending dose between now and until. Records that already have one
// keep it, so the planning tick can run as often as it likes.
func (s *DoseService) PlanReminders(now, until time.Time) (int, error) {
	records, err := s.storage.ListPendingRecordsBetween(now, until)
	if err != nil {
		return 0, fmt.Errorf("list pending records: %w", err)
	}

	planned := 0
	for _, r := range records {
		inserted, err := s.storage.InsertReminderIfAbsent(r.ID, r.ScheduledAt)
		if err != nil {
			return planned, fmt.Errorf("insert reminder: %w", err)
		}
		if inserted {
			planned++
		}
	}
	return planned, nil
}

func (s *DoseService) DueReminders(now time.Time) ([]*domain.DueReminder, error) {
	return s.storage.ListDueReminders(now)
}

func (s *DoseService) MarkReminderSent(id int64) error {
	return s.storage.MarkReminderSent(id, time.Now())
}

// MedicineStats is the adherence tally for one medicine over a period.
type MedicineStats struct {
	MedicineID   int64
	MedicineName string
	Taken        int
	Skipped      int
	Missed       int // pending doses whose instant has passed
	Upcoming     int
}

// Stats aggregates adherence per medicine for doses in [from, to).
func (s *DoseService) Stats(userID int64, from, to time.Time) ([]*MedicineStats, error) {
	views, err := s.storage.ListDosesBetween(userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doses: %w", err)
	}

	now := time.Now()
	byMed := make(map[int64]*MedicineStats)
	for _, v := range views {
		st, ok := byMed[v.MedicineID]
		if !ok {
			st = &MedicineStats{MedicineID: v.MedicineID, MedicineName: v.MedicineName}
			byMed[v.MedicineID] = st
		}
		switch {
		case v.Taken:
			st.Taken++
		case v.Skipped:
			st.Skipped++
		case v.ScheduledAt.Before(now):
			st.Missed++
		default:
			st.Upcoming++
		}
	}

	stats := make([]*MedicineStats, 0, len(byMed))
	for _, st := range byMed {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].MedicineName < stats[j].MedicineName })
	return stats, nil
}

func (s *DoseService) FormatDayDoses(views []*domain.DoseView, date time.Time) string {
	header := fmt.Sprintf("<b>📅 %s</b>\n\n", date.In(s.timezone).Format("Mon, 02 Jan"))
	if len(views) == 0 {
		return header + "No doses scheduled."
	}

	var sb strings.Builder
	sb.WriteString(header)
	for _, v := range views {
		sb.WriteString(fmt.Sprintf("%s %s <b>%s</b>", v.StatusEmoji(), v.ScheduledAt.In(s.timezone).Format("15:04"), v.MedicineName))
		if v.Dosage != "" {
			sb.WriteString(" — " + v.Dosage)
		}
		if v.Note != "" {
			sb.WriteString(" (" + v.Note + ")")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *DoseService) FormatStats(stats []*MedicineStats, days int) string {
	if len(stats) == 0 {
		return "No dose history yet."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>📊 Last %d days</b>\n\n", days))
	for _, st := range stats {
		done := st.Taken + st.Skipped + st.Missed
		rate := 0
		if done > 0 {
			rate = st.Taken * 100 / done
		}
		sb.WriteString(fmt.Sprintf("<b>%s</b>: %d%% (✅ %d, ⏭ %d, ❌ %d)\n",
			st.MedicineName, rate, st.Taken, st.Skipped, st.Missed))
	}
	return sb.String()
}

func (s *DoseService) dayStart(date time.Time) time.Time {
	date = date.In(s.timezone)
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.timezone)
}
